// Package radio is the transport boundary of the node: it delivers fully
// framed inbound application frames from the radio module and accepts
// outbound frames for transmission. Radio-layer addressing, routing and key
// management stay on the module side of this boundary; only a verified-
// security flag crosses it.
package radio

import (
	"context"
	"sync"

	"zigbee-node/internal/aps"
)

// Transport is the narrow contract between the frame-processing core and
// the radio.
type Transport interface {
	// Receive blocks until the next inbound application frame arrives.
	Receive(ctx context.Context) (*aps.Frame, error)

	// Send queues one outbound frame for transmission.
	Send(ctx context.Context, f *aps.Frame) error

	Close() error
}

// Pipe is an in-process Transport for tests and loopback development: what
// the test sends "To" the node comes out of Receive, and frames the node
// Sends surface on From.
type Pipe struct {
	To   chan *aps.Frame
	From chan *aps.Frame

	closeOnce sync.Once
}

// NewPipe creates a Pipe with buffered channels.
func NewPipe() *Pipe {
	return &Pipe{
		To:   make(chan *aps.Frame, 16),
		From: make(chan *aps.Frame, 16),
	}
}

func (p *Pipe) Receive(ctx context.Context) (*aps.Frame, error) {
	select {
	case f, ok := <-p.To:
		if !ok {
			return nil, context.Canceled
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipe) Send(ctx context.Context, f *aps.Frame) error {
	select {
	case p.From <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.To) })
	return nil
}
