package zcl

import (
	"encoding/binary"
	"fmt"
)

// Frame-control byte layout.
const (
	fcTypeMask        uint8 = 0x03
	fcTypeCluster     uint8 = 0x01
	fcMfgSpecific     uint8 = 0x04
	fcDirection       uint8 = 0x08 // set: server to client
	fcDisableDefault  uint8 = 0x10
)

// Header is the parsed ZCL frame header preceding every command payload.
type Header struct {
	ClusterSpecific        bool
	MfgSpecific            bool
	Manufacturer           uint16 // valid only when MfgSpecific
	ToClient               bool   // direction bit: frame addressed to the client role
	DisableDefaultResponse bool
	Seq                    uint8
	Command                uint8
}

// ParseHeader splits payload into a ZCL header and the command body.
func ParseHeader(payload []byte) (Header, []byte, error) {
	if len(payload) < 3 {
		return Header{}, nil, fmt.Errorf("zcl: frame header truncated: %d bytes", len(payload))
	}
	fc := payload[0]
	h := Header{
		ClusterSpecific:        fc&fcTypeMask == fcTypeCluster,
		MfgSpecific:            fc&fcMfgSpecific != 0,
		ToClient:               fc&fcDirection != 0,
		DisableDefaultResponse: fc&fcDisableDefault != 0,
	}
	rest := payload[1:]
	if h.MfgSpecific {
		if len(rest) < 4 {
			return Header{}, nil, fmt.Errorf("zcl: manufacturer-specific header truncated")
		}
		h.Manufacturer = binary.LittleEndian.Uint16(rest)
		rest = rest[2:]
	}
	h.Seq = rest[0]
	h.Command = rest[1]
	return h, rest[2:], nil
}

// Marshal prepends the encoded header to body and returns the full ZCL
// payload.
func (h Header) Marshal(body []byte) []byte {
	var fc uint8
	if h.ClusterSpecific {
		fc |= fcTypeCluster
	}
	if h.MfgSpecific {
		fc |= fcMfgSpecific
	}
	if h.ToClient {
		fc |= fcDirection
	}
	if h.DisableDefaultResponse {
		fc |= fcDisableDefault
	}
	out := make([]byte, 0, 5+len(body))
	out = append(out, fc)
	if h.MfgSpecific {
		out = putUintLE(out, uint64(h.Manufacturer), 2)
	}
	out = append(out, h.Seq, h.Command)
	return append(out, body...)
}

// response derives the header for a reply to h: same sequence number and
// manufacturer scope, direction flipped, default responses suppressed.
func (h Header) response(cmd uint8, clusterSpecific bool) Header {
	return Header{
		ClusterSpecific:        clusterSpecific,
		MfgSpecific:            h.MfgSpecific,
		Manufacturer:           h.Manufacturer,
		ToClient:               !h.ToClient,
		DisableDefaultResponse: true,
		Seq:                    h.Seq,
		Command:                cmd,
	}
}
