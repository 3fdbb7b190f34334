// Package zcl implements the ZigBee Cluster Library core shared by every
// cluster on the node: the wire-type codec, the typed attribute model and
// its manufacturer-keyed tree, and the general (profile-wide) command
// handler.
package zcl

import (
	"encoding/binary"
	"fmt"
)

// ZCL data type ids.
const (
	TypeNoData     uint8 = 0x00
	TypeBool       uint8 = 0x10
	TypeBitmap8    uint8 = 0x18
	TypeBitmap16   uint8 = 0x19
	TypeBitmap24   uint8 = 0x1A
	TypeBitmap32   uint8 = 0x1B
	TypeUint8      uint8 = 0x20
	TypeUint16     uint8 = 0x21
	TypeUint24     uint8 = 0x22
	TypeUint32     uint8 = 0x23
	TypeUint40     uint8 = 0x24
	TypeUint48     uint8 = 0x25
	TypeInt8       uint8 = 0x28
	TypeInt16      uint8 = 0x29
	TypeInt24      uint8 = 0x2A
	TypeInt32      uint8 = 0x2B
	TypeEnum8      uint8 = 0x30
	TypeEnum16     uint8 = 0x31
	TypeFloat16    uint8 = 0x38
	TypeFloat32    uint8 = 0x39
	TypeFloat64    uint8 = 0x3A
	TypeOctetStr   uint8 = 0x41
	TypeCharStr    uint8 = 0x42
	TypeOctetStr16 uint8 = 0x43
	TypeCharStr16  uint8 = 0x44
	TypeArray      uint8 = 0x48
	TypeStruct     uint8 = 0x4C
	TypeToD        uint8 = 0xE0
	TypeDate       uint8 = 0xE1
	TypeUTC        uint8 = 0xE2
	TypeClusterID  uint8 = 0xE8
	TypeAttrID     uint8 = 0xE9
	TypeEUI64      uint8 = 0xF0
)

// FixedSize returns the wire width in bytes of a fixed-size type, or -1 for
// variable-length and unknown types.
func FixedSize(typeID uint8) int {
	switch {
	case typeID == TypeNoData:
		return 0
	case typeID == TypeBool:
		return 1
	case typeID >= TypeBitmap8 && typeID <= TypeBitmap32:
		return int(typeID-TypeBitmap8) + 1
	case typeID >= TypeUint8 && typeID <= TypeUint48:
		return int(typeID-TypeUint8) + 1
	case typeID >= TypeInt8 && typeID <= TypeInt32:
		return int(typeID-TypeInt8) + 1
	case typeID == TypeEnum8:
		return 1
	case typeID == TypeEnum16, typeID == TypeFloat16, typeID == TypeClusterID, typeID == TypeAttrID:
		return 2
	case typeID == TypeFloat32, typeID == TypeToD, typeID == TypeDate, typeID == TypeUTC:
		return 4
	case typeID == TypeFloat64, typeID == TypeEUI64:
		return 8
	default:
		return -1
	}
}

// Orderable reports whether the type has a total order, i.e. whether
// minimum/maximum bounds are meaningful for it. Only integers and
// enumerations qualify; strings, bitmaps and composites never carry bounds.
func Orderable(typeID uint8) bool {
	switch {
	case typeID >= TypeUint8 && typeID <= TypeUint48:
		return true
	case typeID >= TypeInt8 && typeID <= TypeInt32:
		return true
	case typeID == TypeEnum8, typeID == TypeEnum16:
		return true
	}
	return false
}

func signedType(typeID uint8) bool {
	return typeID >= TypeInt8 && typeID <= TypeInt32
}

// ValueLength returns the number of bytes the encoded value of typeID
// occupies at the start of data, length prefixes and nested elements
// included. ok is false when the type is unknown or data is truncated; the
// caller cannot locate the next record in that case.
func ValueLength(typeID uint8, data []byte) (int, bool) {
	if size := FixedSize(typeID); size >= 0 {
		if len(data) < size {
			return 0, false
		}
		return size, true
	}

	switch typeID {
	case TypeOctetStr, TypeCharStr:
		if len(data) < 1 {
			return 0, false
		}
		n := int(data[0])
		if n == 0xFF { // invalid-value marker, no payload
			return 1, true
		}
		if len(data) < 1+n {
			return 0, false
		}
		return 1 + n, true

	case TypeOctetStr16, TypeCharStr16:
		if len(data) < 2 {
			return 0, false
		}
		n := int(binary.LittleEndian.Uint16(data))
		if n == 0xFFFF {
			return 2, true
		}
		if len(data) < 2+n {
			return 0, false
		}
		return 2 + n, true

	case TypeArray:
		if len(data) < 3 {
			return 0, false
		}
		elemType := data[0]
		count := int(binary.LittleEndian.Uint16(data[1:]))
		total := 3
		for i := 0; i < count; i++ {
			n, ok := ValueLength(elemType, data[total:])
			if !ok {
				return 0, false
			}
			total += n
		}
		return total, true

	case TypeStruct:
		if len(data) < 2 {
			return 0, false
		}
		count := int(binary.LittleEndian.Uint16(data))
		total := 2
		for i := 0; i < count; i++ {
			if len(data) < total+1 {
				return 0, false
			}
			n, ok := ValueLength(data[total], data[total+1:])
			if !ok {
				return 0, false
			}
			total += 1 + n
		}
		return total, true
	}

	return 0, false
}

// TypeName returns a short human-readable name for a type id.
func TypeName(typeID uint8) string {
	switch typeID {
	case TypeNoData:
		return "nodata"
	case TypeBool:
		return "bool"
	case TypeBitmap8, TypeBitmap16, TypeBitmap24, TypeBitmap32:
		return fmt.Sprintf("map%d", 8*(int(typeID-TypeBitmap8)+1))
	case TypeUint8, TypeUint16, TypeUint24, TypeUint32, TypeUint40, TypeUint48:
		return fmt.Sprintf("uint%d", 8*(int(typeID-TypeUint8)+1))
	case TypeInt8, TypeInt16, TypeInt24, TypeInt32:
		return fmt.Sprintf("int%d", 8*(int(typeID-TypeInt8)+1))
	case TypeEnum8:
		return "enum8"
	case TypeEnum16:
		return "enum16"
	case TypeFloat16:
		return "float16"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeOctetStr:
		return "octstr"
	case TypeCharStr:
		return "string"
	case TypeOctetStr16:
		return "octstr16"
	case TypeCharStr16:
		return "string16"
	case TypeArray:
		return "array"
	case TypeStruct:
		return "struct"
	case TypeToD:
		return "ToD"
	case TypeDate:
		return "date"
	case TypeUTC:
		return "UTC"
	case TypeClusterID:
		return "clusterId"
	case TypeAttrID:
		return "attrId"
	case TypeEUI64:
		return "EUI64"
	default:
		return fmt.Sprintf("0x%02X", typeID)
	}
}
