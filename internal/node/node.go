// Package node ties the frame-processing core to its runtime: the radio
// transport loop, the device-owned value store, the event bus, and the
// attribute report scheduler.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"zigbee-node/internal/aps"
	"zigbee-node/internal/radio"
	"zigbee-node/internal/zcl"
)

// Node runs the frame loop for one device.
type Node struct {
	device    *aps.Device
	transport radio.Transport
	values    *Values
	events    *EventBus
	logger    *slog.Logger
}

// New assembles a node. The device's registries must already be fully
// configured; they are immutable from here on.
func New(device *aps.Device, transport radio.Transport, values *Values, events *EventBus, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		device:    device,
		transport: transport,
		values:    values,
		events:    events,
		logger:    logger.With("component", "node"),
	}
	values.OnChange(func(k zcl.Key, v any) {
		events.Emit(Event{Type: EventValueChange, Data: map[string]any{"key": k, "value": v}})
	})
	return n
}

// Device returns the endpoint registry.
func (n *Node) Device() *aps.Device { return n.device }

// Values returns the device value store.
func (n *Node) Values() *Values { return n.values }

// Events returns the node event bus.
func (n *Node) Events() *EventBus { return n.events }

// Run processes inbound frames until ctx is cancelled or the transport
// closes. Each frame is dispatched synchronously to completion before the
// next one is considered; handlers never block.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("frame loop started")
	for {
		f, err := n.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				n.logger.Info("frame loop stopped")
				return nil
			}
			return fmt.Errorf("node: receive: %w", err)
		}

		out, err := n.device.Dispatch(f)
		if err != nil {
			// Routing-level failures drop silently: nothing answers on
			// the wire.
			n.logger.Debug("frame dropped", "endpoint", f.Endpoint,
				"cluster", fmt.Sprintf("0x%04X", f.ClusterID), "reason", err)
			n.events.Emit(Event{Type: EventFrameDropped, Data: map[string]any{
				"endpoint": f.Endpoint,
				"cluster":  f.ClusterID,
				"reason":   err.Error(),
			}})
			continue
		}
		if out == nil {
			continue
		}
		if err := n.transport.Send(ctx, out); err != nil {
			n.logger.Warn("send response", "err", err)
		}
	}
}
