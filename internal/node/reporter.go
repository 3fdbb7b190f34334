package node

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"zigbee-node/internal/aps"
	"zigbee-node/internal/radio"
	"zigbee-node/internal/zcl"
)

// Reporter emits Report Attributes frames for the node's configured
// reports, honoring each configuration's min/max intervals. It reads
// attribute values through the same codec path as the command handlers and
// runs outside the frame loop.
type Reporter struct {
	device    *aps.Device
	values    *Values
	table     zcl.ReportingTable
	transport radio.Transport
	logger    *slog.Logger

	tick  time.Duration
	seq   uint8
	state map[zcl.ReportKey]*reportState
}

type reportState struct {
	lastSent  time.Time
	lastValue []byte
}

// NewReporter creates a report scheduler over the device's registries.
func NewReporter(device *aps.Device, values *Values, table zcl.ReportingTable, transport radio.Transport, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		device:    device,
		values:    values,
		table:     table,
		transport: transport,
		logger:    logger.With("component", "reporter"),
		tick:      time.Second,
		state:     make(map[zcl.ReportKey]*reportState),
	}
}

// Run sweeps the reporting table until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, f := range r.sweep(now) {
				if err := r.transport.Send(ctx, f); err != nil {
					r.logger.Warn("send report", "err", err)
				}
			}
		}
	}
}

// sweep returns the report frames due at now.
func (r *Reporter) sweep(now time.Time) []*aps.Frame {
	var frames []*aps.Frame
	for _, entry := range r.table.List() {
		if f := r.check(now, entry.Key, entry.Config); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

func (r *Reporter) check(now time.Time, key zcl.ReportKey, cfg zcl.ReportConfig) *aps.Frame {
	a := r.lookup(key)
	if a == nil {
		return nil
	}
	enc, status := zcl.ReadValue(a, r.values)
	if status != zcl.StatusSuccess {
		return nil
	}

	st := r.state[key]
	if st == nil {
		st = &reportState{lastSent: now, lastValue: enc}
		r.state[key] = st
		return nil
	}

	elapsed := now.Sub(st.lastSent)
	changed := !bytes.Equal(enc, st.lastValue)
	due := cfg.MaxInterval > 0 && elapsed >= time.Duration(cfg.MaxInterval)*time.Second
	if changed && elapsed >= time.Duration(cfg.MinInterval)*time.Second {
		due = true
	}
	if !due {
		return nil
	}

	st.lastSent = now
	st.lastValue = enc
	r.seq++
	ep := r.device.Endpoint(key.Endpoint)
	return zcl.BuildReport(key.Endpoint, key.Cluster, ep.ProfileID, key.Manufacturer, r.seq,
		[]zcl.ReportRecord{{Attr: key.Attr, Type: a.Type, Value: enc}})
}

// lookup resolves a report key to its attribute. Keys describe server-role
// attributes of local clusters.
func (r *Reporter) lookup(key zcl.ReportKey) *zcl.Attribute {
	ep := r.device.Endpoint(key.Endpoint)
	if ep == nil {
		return nil
	}
	cl := ep.Cluster(key.Cluster)
	if cl == nil {
		return nil
	}
	tree, ok := cl.Context.(*zcl.Tree)
	if !ok {
		return nil
	}
	attrs := tree.Attributes(key.Manufacturer, false)
	for i := range attrs {
		if attrs[i].ID == key.Attr {
			return &attrs[i]
		}
	}
	return nil
}
