package radio

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"zigbee-node/internal/aps"
)

// Serial is a Transport over a serially attached radio module speaking API
// framing. Frame processing is run-to-completion, so replies are addressed
// to the peer of the most recently received frame.
type Serial struct {
	port    serial.Port
	reader  *bufio.Reader
	logger  *slog.Logger
	writeMu sync.Mutex

	frameID uint8
	last    remote // peer of the last received frame
	hasLast bool
}

// OpenSerial opens the radio's serial port.
func OpenSerial(portName string, baud int, logger *slog.Logger) (*Serial, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("radio: open %s: %w", portName, err)
	}
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	return &Serial{
		port:   port,
		reader: bufio.NewReader(port),
		logger: logger.With("component", "radio"),
	}, nil
}

// Receive reads API frames until an explicit RX indicator arrives, then
// returns it as an application frame. Frames failing the checksum and
// non-RX frame types are logged and skipped.
func (s *Serial) Receive(ctx context.Context) (*aps.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.readAPIFrame()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			s.logger.Warn("bad API frame", "err", err)
			continue
		}
		if len(data) == 0 || data[0] != frameTypeExplicitRX {
			if len(data) > 0 {
				s.logger.Debug("ignoring API frame", "type", fmt.Sprintf("0x%02X", data[0]))
			}
			continue
		}
		rx, err := decodeExplicitRX(data)
		if err != nil {
			s.logger.Warn("bad explicit rx", "err", err)
			continue
		}
		s.last = rx.src
		s.hasLast = true
		return &rx.frame, nil
	}
}

// readAPIFrame scans for a delimiter and returns one verified frame's data.
func (s *Serial) readAPIFrame() ([]byte, error) {
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == frameDelimiter {
			break
		}
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(s.reader, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(lenBuf[:]))
	if n == 0 || n > maxFrameLen {
		return nil, fmt.Errorf("radio: implausible frame length %d", n)
	}
	data := make([]byte, n+1) // frame data plus checksum
	if _, err := io.ReadFull(s.reader, data); err != nil {
		return nil, err
	}
	if checksum(data[:n]) != data[n] {
		return nil, fmt.Errorf("radio: checksum mismatch")
	}
	return data[:n], nil
}

// Send transmits one outbound frame to the peer of the last received
// frame.
func (s *Serial) Send(_ context.Context, f *aps.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.hasLast {
		return fmt.Errorf("radio: no peer to address")
	}
	s.frameID++
	if s.frameID == 0 {
		s.frameID = 1
	}
	raw := wrap(encodeExplicitTX(f, s.last, s.frameID))
	if _, err := s.port.Write(raw); err != nil {
		return fmt.Errorf("radio: write: %w", err)
	}
	return nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}
