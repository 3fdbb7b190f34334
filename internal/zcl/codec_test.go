package zcl

import (
	"bytes"
	"math"
	"testing"
)

func TestDecodeEncodeUint8(t *testing.T) {
	val, n, err := DecodeValue(TypeUint8, []byte{0x42})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("consumed %d, want 1", n)
	}
	if val.(uint8) != 0x42 {
		t.Errorf("got %v, want 0x42", val)
	}

	enc, err := EncodeValue(TypeUint8, uint8(0x42))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, []byte{0x42}) {
		t.Errorf("encoded % X, want 42", enc)
	}
}

func TestDecodeEncodeUint16(t *testing.T) {
	val, n, err := DecodeValue(TypeUint16, []byte{0x34, 0x12})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || val.(uint16) != 0x1234 {
		t.Errorf("got (%v, %d), want (0x1234, 2)", val, n)
	}
}

func TestDecodeUint24(t *testing.T) {
	val, n, err := DecodeValue(TypeUint24, []byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || val.(uint32) != 0x030201 {
		t.Errorf("got (%v, %d), want (0x030201, 3)", val, n)
	}
}

func TestDecodeInt16Negative(t *testing.T) {
	val, _, err := DecodeValue(TypeInt16, []byte{0x9C, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if val.(int16) != -100 {
		t.Errorf("got %v, want -100", val)
	}
}

func TestDecodeInt24SignExtension(t *testing.T) {
	// -2 as 24-bit two's complement
	val, _, err := DecodeValue(TypeInt24, []byte{0xFE, 0xFF, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if val.(int32) != -2 {
		t.Errorf("got %v, want -2", val)
	}
}

func TestDecodeEncodeBool(t *testing.T) {
	val, _, err := DecodeValue(TypeBool, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	if val.(bool) != true {
		t.Error("expected true")
	}

	enc, err := EncodeValue(TypeBool, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, []byte{0}) {
		t.Errorf("encoded % X, want 00", enc)
	}
}

func TestDecodeEncodeCharStr(t *testing.T) {
	data := []byte{5, 'H', 'e', 'l', 'l', 'o'}
	val, n, err := DecodeValue(TypeCharStr, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 || val.(string) != "Hello" {
		t.Errorf("got (%q, %d), want (Hello, 6)", val, n)
	}

	enc, err := EncodeValue(TypeCharStr, "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, data) {
		t.Errorf("encoded % X, want % X", enc, data)
	}
}

func TestDecodeCharStrInvalidMarker(t *testing.T) {
	val, n, err := DecodeValue(TypeCharStr, []byte{0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if val != nil || n != 1 {
		t.Errorf("got (%v, %d), want (nil, 1)", val, n)
	}
}

func TestEncodeCharStrTooLong(t *testing.T) {
	if _, err := EncodeValue(TypeCharStr, string(make([]byte, 255))); err == nil {
		t.Error("expected error for 255-byte short string")
	}
}

func TestDecodeEncodeFloat32(t *testing.T) {
	want := float32(21.5)
	enc, err := EncodeValue(TypeFloat32, want)
	if err != nil {
		t.Fatal(err)
	}
	val, n, err := DecodeValue(TypeFloat32, enc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || val.(float32) != want {
		t.Errorf("got (%v, %d), want (%v, 4)", val, n, want)
	}
}

func TestDecodeEncodeEUI64(t *testing.T) {
	addr := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	enc, err := EncodeValue(TypeEUI64, addr)
	if err != nil {
		t.Fatal(err)
	}
	val, n, err := DecodeValue(TypeEUI64, enc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 || val.([8]byte) != addr {
		t.Errorf("got (%v, %d), want (%v, 8)", val, n, addr)
	}
}

func TestEncodeUintRangeCheck(t *testing.T) {
	if _, err := EncodeValue(TypeUint8, 256); err == nil {
		t.Error("expected range error for 256 as uint8")
	}
	if _, err := EncodeValue(TypeUint8, 255); err != nil {
		t.Errorf("255 should fit uint8: %v", err)
	}
}

func TestEncodeIntRangeCheck(t *testing.T) {
	if _, err := EncodeValue(TypeInt8, -129); err == nil {
		t.Error("expected range error for -129 as int8")
	}
	enc, err := EncodeValue(TypeInt8, -128)
	if err != nil {
		t.Fatalf("-128 should fit int8: %v", err)
	}
	if !bytes.Equal(enc, []byte{0x80}) {
		t.Errorf("encoded % X, want 80", enc)
	}
}

func TestEncodeRejectsNegativeUnsigned(t *testing.T) {
	if _, err := EncodeValue(TypeUint16, -1); err == nil {
		t.Error("expected error for negative value as uint16")
	}
}

func TestEncodeRejectsNonIntegralFloat(t *testing.T) {
	if _, err := EncodeValue(TypeUint16, 1.5); err == nil {
		t.Error("expected error for fractional value as uint16")
	}
	if _, err := EncodeValue(TypeUint16, float64(42)); err != nil {
		t.Errorf("integral float should encode: %v", err)
	}
}

func TestDecodeEncodeArray(t *testing.T) {
	data := []byte{byte(TypeUint16), 2, 0, 0x34, 0x12, 0x78, 0x56}
	val, n, err := DecodeValue(TypeArray, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d, want %d", n, len(data))
	}
	arr := val.(Array)
	if arr.ElemType != TypeUint16 || len(arr.Items) != 2 {
		t.Fatalf("got %+v", arr)
	}
	if arr.Items[0].(uint16) != 0x1234 || arr.Items[1].(uint16) != 0x5678 {
		t.Errorf("items %v", arr.Items)
	}

	enc, err := EncodeValue(TypeArray, arr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, data) {
		t.Errorf("encoded % X, want % X", enc, data)
	}
}

func TestDecodeEncodeStruct(t *testing.T) {
	data := []byte{2, 0, byte(TypeUint8), 0x07, byte(TypeBool), 0x01}
	val, n, err := DecodeValue(TypeStruct, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d, want %d", n, len(data))
	}
	st := val.(Struct)
	if len(st.Fields) != 2 {
		t.Fatalf("got %d fields", len(st.Fields))
	}
	if st.Fields[0].Value.(uint8) != 7 || st.Fields[1].Value.(bool) != true {
		t.Errorf("fields %+v", st.Fields)
	}

	enc, err := EncodeValue(TypeStruct, st)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, data) {
		t.Errorf("encoded % X, want % X", enc, data)
	}
}

func TestDecodeNotEnoughData(t *testing.T) {
	if _, _, err := DecodeValue(TypeUint32, []byte{1, 2}); err == nil {
		t.Error("expected error for truncated uint32")
	}
	if _, _, err := DecodeValue(TypeCharStr, []byte{5, 'a'}); err == nil {
		t.Error("expected error for truncated string")
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	want := math.Pi
	enc, err := EncodeValue(TypeFloat64, want)
	if err != nil {
		t.Fatal(err)
	}
	val, _, err := DecodeValue(TypeFloat64, enc)
	if err != nil {
		t.Fatal(err)
	}
	if val.(float64) != want {
		t.Errorf("got %v, want %v", val, want)
	}
}
