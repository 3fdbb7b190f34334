package zcl

import (
	"bytes"
	"testing"
)

func TestParseHeaderProfileWide(t *testing.T) {
	payload := []byte{0x00, 0x2A, 0x00, 0x12, 0x34}
	h, body, err := ParseHeader(payload)
	if err != nil {
		t.Fatal(err)
	}
	if h.ClusterSpecific || h.MfgSpecific || h.ToClient || h.DisableDefaultResponse {
		t.Errorf("unexpected flags: %+v", h)
	}
	if h.Seq != 0x2A || h.Command != 0x00 {
		t.Errorf("seq/cmd = %02X/%02X", h.Seq, h.Command)
	}
	if !bytes.Equal(body, []byte{0x12, 0x34}) {
		t.Errorf("body % X", body)
	}
}

func TestParseHeaderReservedFrameType(t *testing.T) {
	// The frame type is a two-bit field; only value 01 means
	// cluster-specific. Reserved values fall through to profile-wide
	// handling so an unknown command id gets a clean status response.
	for _, fc := range []uint8{0x02, 0x03} {
		h, _, err := ParseHeader([]byte{fc, 0x01, 0x00})
		if err != nil {
			t.Fatal(err)
		}
		if h.ClusterSpecific {
			t.Errorf("fc=0x%02X classified cluster-specific", fc)
		}
	}
}

func TestParseHeaderManufacturerSpecific(t *testing.T) {
	payload := []byte{0x05, 0x5E, 0x11, 0x07, 0x01}
	h, body, err := ParseHeader(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !h.ClusterSpecific || !h.MfgSpecific {
		t.Errorf("flags: %+v", h)
	}
	if h.Manufacturer != 0x115E {
		t.Errorf("manufacturer 0x%04X, want 0x115E", h.Manufacturer)
	}
	if h.Seq != 0x07 || h.Command != 0x01 {
		t.Errorf("seq/cmd = %02X/%02X", h.Seq, h.Command)
	}
	if len(body) != 0 {
		t.Errorf("body % X", body)
	}
}

func TestParseHeaderTruncated(t *testing.T) {
	if _, _, err := ParseHeader([]byte{0x00, 0x01}); err == nil {
		t.Error("expected error for 2-byte payload")
	}
	// mfg flag set but no manufacturer code
	if _, _, err := ParseHeader([]byte{0x04, 0x5E, 0x11}); err == nil {
		t.Error("expected error for truncated manufacturer header")
	}
}

func TestHeaderMarshalRoundTrip(t *testing.T) {
	h := Header{
		ClusterSpecific:        true,
		MfgSpecific:            true,
		Manufacturer:           0x1037,
		ToClient:               true,
		DisableDefaultResponse: true,
		Seq:                    9,
		Command:                0x02,
	}
	payload := h.Marshal([]byte{0xAA})
	got, body, err := ParseHeader(payload)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("round trip: got %+v, want %+v", got, h)
	}
	if !bytes.Equal(body, []byte{0xAA}) {
		t.Errorf("body % X", body)
	}
}

func TestResponseHeaderFlipsDirection(t *testing.T) {
	h := Header{Seq: 3, Command: CmdReadAttributes}
	r := h.response(CmdReadAttributesResponse, false)
	if !r.ToClient {
		t.Error("response should flip direction")
	}
	if !r.DisableDefaultResponse {
		t.Error("response must suppress default responses")
	}
	if r.Seq != 3 {
		t.Errorf("seq %d, want 3", r.Seq)
	}
	if r.Command != CmdReadAttributesResponse {
		t.Errorf("command %02X", r.Command)
	}
}
