package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Array is the decoded form of a ZCL array value: a count of elements
// sharing one element type.
type Array struct {
	ElemType uint8
	Items    []any
}

// Struct is the decoded form of a ZCL structure value: an ordered list of
// individually typed fields.
type Struct struct {
	Fields []TypedValue
}

// TypedValue pairs a wire type id with a decoded value.
type TypedValue struct {
	Type  uint8
	Value any
}

// uintLE accumulates n little-endian bytes into a uint64.
func uintLE(data []byte, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// putUintLE appends v as n little-endian bytes.
func putUintLE(dst []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// signExtend interprets the low n*8 bits of v as a signed value.
func signExtend(v uint64, n int) int64 {
	shift := 64 - 8*n
	return int64(v<<shift) >> shift
}

// DecodeValue decodes one ZCL typed value from the front of data, returning
// the Go value and the number of bytes consumed. Encode and decode are
// exact inverses for every supported type.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	if size := FixedSize(typeID); size >= 0 {
		if len(data) < size {
			return nil, 0, fmt.Errorf("zcl: type %s needs %d bytes, have %d", TypeName(typeID), size, len(data))
		}
		return decodeFixed(typeID, data[:size]), size, nil
	}

	switch typeID {
	case TypeOctetStr, TypeCharStr, TypeOctetStr16, TypeCharStr16:
		return decodeString(typeID, data)
	case TypeArray:
		return decodeArray(data)
	case TypeStruct:
		return decodeStruct(data)
	}
	return nil, 0, fmt.Errorf("zcl: decode of type 0x%02X not supported", typeID)
}

func decodeFixed(typeID uint8, data []byte) any {
	switch typeID {
	case TypeNoData:
		return nil
	case TypeBool:
		return data[0] != 0
	case TypeFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data))
	case TypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data))
	case TypeEUI64:
		var addr [8]byte
		copy(addr[:], data)
		return addr
	}

	raw := uintLE(data, len(data))
	if signedType(typeID) {
		s := signExtend(raw, len(data))
		switch len(data) {
		case 1:
			return int8(s)
		case 2:
			return int16(s)
		default:
			return int32(s)
		}
	}
	switch len(data) {
	case 1:
		return uint8(raw)
	case 2:
		return uint16(raw)
	case 3, 4:
		return uint32(raw)
	default:
		return raw
	}
}

func decodeString(typeID uint8, data []byte) (any, int, error) {
	prefix := 1
	if typeID == TypeOctetStr16 || typeID == TypeCharStr16 {
		prefix = 2
	}
	if len(data) < prefix {
		return nil, 0, fmt.Errorf("zcl: %s missing length prefix", TypeName(typeID))
	}
	var n int
	if prefix == 1 {
		n = int(data[0])
		if n == 0xFF {
			return nil, 1, nil // invalid-value marker
		}
	} else {
		n = int(binary.LittleEndian.Uint16(data))
		if n == 0xFFFF {
			return nil, 2, nil
		}
	}
	if len(data) < prefix+n {
		return nil, 0, fmt.Errorf("zcl: %s truncated: need %d bytes, have %d", TypeName(typeID), n, len(data)-prefix)
	}
	body := data[prefix : prefix+n]
	if typeID == TypeCharStr || typeID == TypeCharStr16 {
		return string(body), prefix + n, nil
	}
	b := make([]byte, n)
	copy(b, body)
	return b, prefix + n, nil
}

func decodeArray(data []byte) (any, int, error) {
	if len(data) < 3 {
		return nil, 0, fmt.Errorf("zcl: array header truncated")
	}
	arr := Array{ElemType: data[0]}
	count := int(binary.LittleEndian.Uint16(data[1:]))
	used := 3
	for i := 0; i < count; i++ {
		v, n, err := DecodeValue(arr.ElemType, data[used:])
		if err != nil {
			return nil, 0, fmt.Errorf("zcl: array element %d: %w", i, err)
		}
		arr.Items = append(arr.Items, v)
		used += n
	}
	return arr, used, nil
}

func decodeStruct(data []byte) (any, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("zcl: struct header truncated")
	}
	var st Struct
	count := int(binary.LittleEndian.Uint16(data))
	used := 2
	for i := 0; i < count; i++ {
		if len(data) < used+1 {
			return nil, 0, fmt.Errorf("zcl: struct field %d missing type", i)
		}
		ft := data[used]
		v, n, err := DecodeValue(ft, data[used+1:])
		if err != nil {
			return nil, 0, fmt.Errorf("zcl: struct field %d: %w", i, err)
		}
		st.Fields = append(st.Fields, TypedValue{Type: ft, Value: v})
		used += 1 + n
	}
	return st, used, nil
}

// EncodeValue encodes a Go value into ZCL wire format for typeID.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	switch typeID {
	case TypeNoData:
		return nil, nil

	case TypeBool:
		b, ok := toBool(val)
		if !ok {
			return nil, convErr(typeID, val)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case TypeFloat32:
		f, ok := toFloat64(val)
		if !ok {
			return nil, convErr(typeID, val)
		}
		return putUintLE(nil, uint64(math.Float32bits(float32(f))), 4), nil

	case TypeFloat64:
		f, ok := toFloat64(val)
		if !ok {
			return nil, convErr(typeID, val)
		}
		return putUintLE(nil, math.Float64bits(f), 8), nil

	case TypeEUI64:
		switch a := val.(type) {
		case [8]byte:
			out := make([]byte, 8)
			copy(out, a[:])
			return out, nil
		case []byte:
			if len(a) != 8 {
				return nil, fmt.Errorf("zcl: EUI64 needs 8 bytes, got %d", len(a))
			}
			out := make([]byte, 8)
			copy(out, a)
			return out, nil
		}
		return nil, convErr(typeID, val)

	case TypeOctetStr, TypeOctetStr16:
		b, ok := val.([]byte)
		if !ok {
			return nil, convErr(typeID, val)
		}
		return encodeString(typeID, b)

	case TypeCharStr, TypeCharStr16:
		s, ok := val.(string)
		if !ok {
			return nil, convErr(typeID, val)
		}
		return encodeString(typeID, []byte(s))

	case TypeArray:
		arr, ok := val.(Array)
		if !ok {
			return nil, convErr(typeID, val)
		}
		out := putUintLE([]byte{arr.ElemType}, uint64(len(arr.Items)), 2)
		for i, item := range arr.Items {
			enc, err := EncodeValue(arr.ElemType, item)
			if err != nil {
				return nil, fmt.Errorf("zcl: array element %d: %w", i, err)
			}
			out = append(out, enc...)
		}
		return out, nil

	case TypeStruct:
		st, ok := val.(Struct)
		if !ok {
			return nil, convErr(typeID, val)
		}
		out := putUintLE(nil, uint64(len(st.Fields)), 2)
		for i, f := range st.Fields {
			enc, err := EncodeValue(f.Type, f.Value)
			if err != nil {
				return nil, fmt.Errorf("zcl: struct field %d: %w", i, err)
			}
			out = append(out, f.Type)
			out = append(out, enc...)
		}
		return out, nil
	}

	size := FixedSize(typeID)
	if size < 0 {
		return nil, fmt.Errorf("zcl: encode of type 0x%02X not supported", typeID)
	}

	if signedType(typeID) {
		v, ok := toInt64(val)
		if !ok {
			return nil, convErr(typeID, val)
		}
		lo := -(int64(1) << (8*size - 1))
		hi := int64(1)<<(8*size-1) - 1
		if v < lo || v > hi {
			return nil, fmt.Errorf("zcl: value %d out of range for %s", v, TypeName(typeID))
		}
		return putUintLE(nil, uint64(v), size), nil
	}

	v, ok := toUint64(val)
	if !ok {
		return nil, convErr(typeID, val)
	}
	if size < 8 && v > (uint64(1)<<(8*size))-1 {
		return nil, fmt.Errorf("zcl: value %d out of range for %s", v, TypeName(typeID))
	}
	return putUintLE(nil, v, size), nil
}

func encodeString(typeID uint8, body []byte) ([]byte, error) {
	if typeID == TypeOctetStr || typeID == TypeCharStr {
		if len(body) > 254 {
			return nil, fmt.Errorf("zcl: %s too long: %d bytes (max 254)", TypeName(typeID), len(body))
		}
		return append([]byte{uint8(len(body))}, body...), nil
	}
	if len(body) > 65534 {
		return nil, fmt.Errorf("zcl: %s too long: %d bytes (max 65534)", TypeName(typeID), len(body))
	}
	return append(putUintLE(nil, uint64(len(body)), 2), body...), nil
}

func convErr(typeID uint8, val any) error {
	return fmt.Errorf("zcl: cannot encode %T as %s", val, TypeName(typeID))
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case int:
		return val != 0, true
	case float64:
		return val != 0, true
	}
	return false, false
}

func toUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case uint:
		return uint64(val), true
	case int:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case int64:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case float64:
		if val < 0 || val != math.Trunc(val) {
			return 0, false
		}
		return uint64(val), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 || val < math.MinInt64 {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	}
	return 0, false
}
