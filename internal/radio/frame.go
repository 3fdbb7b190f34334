package radio

import (
	"encoding/binary"
	"fmt"

	"zigbee-node/internal/aps"
)

// XBee-style API framing: 0x7E delimiter, big-endian length, frame data,
// checksum (0xFF minus the low byte of the frame-data sum).
const (
	frameDelimiter uint8 = 0x7E

	frameTypeExplicitTX uint8 = 0x11 // explicit addressing transmit request
	frameTypeExplicitRX uint8 = 0x91 // explicit receive indicator

	rxOptionAPSEncrypted uint8 = 0x20
	txOptionAPSEncrypt   uint8 = 0x20

	maxFrameLen = 2048
)

// remote identifies the peer a received frame came from, so replies can be
// addressed back to it.
type remote struct {
	ieee     [8]byte
	network  uint16
	endpoint uint8
}

// rxFrame is a decoded explicit receive indicator.
type rxFrame struct {
	src   remote
	frame aps.Frame
}

func checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return 0xFF - sum
}

// decodeExplicitRX parses the frame data of an explicit RX indicator
// (delimiter, length and checksum already stripped and verified).
func decodeExplicitRX(data []byte) (*rxFrame, error) {
	// type + addr64 + addr16 + srcEP + dstEP + cluster + profile + options
	if len(data) < 18 {
		return nil, fmt.Errorf("radio: explicit rx truncated: %d bytes", len(data))
	}
	if data[0] != frameTypeExplicitRX {
		return nil, fmt.Errorf("radio: unexpected frame type 0x%02X", data[0])
	}
	var r rxFrame
	copy(r.src.ieee[:], data[1:9])
	r.src.network = binary.BigEndian.Uint16(data[9:])
	r.src.endpoint = data[11]
	r.frame = aps.Frame{
		Endpoint:  data[12],
		ClusterID: binary.BigEndian.Uint16(data[13:]),
		ProfileID: binary.BigEndian.Uint16(data[15:]),
		Secured:   data[17]&rxOptionAPSEncrypted != 0,
		Payload:   append([]byte(nil), data[18:]...),
	}
	return &r, nil
}

// encodeExplicitTX builds the frame data of an explicit TX request sending
// f from its local endpoint to dst.
func encodeExplicitTX(f *aps.Frame, dst remote, frameID uint8) []byte {
	out := make([]byte, 0, 20+len(f.Payload))
	out = append(out, frameTypeExplicitTX, frameID)
	out = append(out, dst.ieee[:]...)
	out = binary.BigEndian.AppendUint16(out, dst.network)
	out = append(out, f.Endpoint, dst.endpoint)
	out = binary.BigEndian.AppendUint16(out, f.ClusterID)
	out = binary.BigEndian.AppendUint16(out, f.ProfileID)
	var opts uint8
	if f.Secured {
		opts = txOptionAPSEncrypt
	}
	out = append(out, 0 /* radius: maximum */, opts)
	return append(out, f.Payload...)
}

// wrap frames data for the wire: delimiter, length, data, checksum.
func wrap(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	out = append(out, frameDelimiter)
	out = binary.BigEndian.AppendUint16(out, uint16(len(data)))
	out = append(out, data...)
	return append(out, checksum(data))
}
