// Package zdo serves ZigBee device-object discovery from the reserved
// endpoint 0. It answers device and service discovery queries from a
// read-only traversal of the endpoint and cluster registries; it never
// dereferences a cluster's context, which keeps discovery decoupled from
// cluster implementations.
package zdo

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"zigbee-node/internal/aps"
)

// ZDP cluster ids. A response cluster is the request cluster with the high
// bit set.
const (
	ClusterSimpleDescReq uint16 = 0x0004
	ClusterActiveEPReq   uint16 = 0x0005
	ClusterMatchDescReq  uint16 = 0x0006
	ResponseBit          uint16 = 0x8000
)

// Status is a ZDP status code.
type Status uint8

const (
	StatusSuccess         Status = 0x00
	StatusInvalidRequest  Status = 0x80
	StatusDeviceNotFound  Status = 0x81
	StatusInvalidEndpoint Status = 0x82
	StatusNotActive       Status = 0x83
	StatusNotSupported    Status = 0x84
)

// Discovery answers ZDP queries for the local device. It is stateless
// beyond the registries it reads.
type Discovery struct {
	device *aps.Device
	addr   func() uint16 // this node's network address
	logger *slog.Logger

	// ext maps non-standard ZDP request clusters to handlers, so vendor
	// requests extend discovery without growing the standard switch.
	ext map[uint16]aps.Handler
}

// New creates the discovery handler. addr supplies the node's current
// 16-bit network address for response bodies. The handler must be bound to
// a device with Bind before it serves frames; binding is separate because
// the device's endpoint list includes the endpoint this handler serves.
func New(addr func() uint16, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == nil {
		addr = func() uint16 { return 0xFFFE }
	}
	return &Discovery{
		addr:   addr,
		logger: logger.With("component", "zdo"),
		ext:    make(map[uint16]aps.Handler),
	}
}

// Bind attaches the device whose registries discovery reads.
func (d *Discovery) Bind(device *aps.Device) {
	d.device = device
}

// Register adds a handler for a non-standard ZDP request cluster. Must be
// called before the dispatcher starts serving frames.
func (d *Discovery) Register(cluster uint16, h aps.Handler) {
	d.ext[cluster] = h
}

// Endpoint returns the reserved discovery endpoint descriptor with this
// handler as its catch-all.
func (d *Discovery) Endpoint() *aps.Endpoint {
	return &aps.Endpoint{
		ID:        aps.EndpointZDO,
		ProfileID: aps.ProfileZDO,
		CatchAll:  d,
	}
}

// requestKind is the closed enumeration of standard discovery requests.
type requestKind uint16

const (
	reqSimpleDesc requestKind = requestKind(ClusterSimpleDescReq)
	reqActiveEP   requestKind = requestKind(ClusterActiveEPReq)
	reqMatchDesc  requestKind = requestKind(ClusterMatchDescReq)
)

// HandleFrame implements aps.Handler for the discovery endpoint.
func (d *Discovery) HandleFrame(f *aps.Frame, cl *aps.Cluster) (*aps.Frame, error) {
	if len(f.Payload) < 1 {
		return nil, fmt.Errorf("zdo: frame without sequence byte")
	}
	seq := f.Payload[0]
	body := f.Payload[1:]

	switch requestKind(f.ClusterID) {
	case reqActiveEP:
		return d.activeEndpoints(f, seq, body)
	case reqSimpleDesc:
		return d.simpleDescriptor(f, seq, body)
	case reqMatchDesc:
		return d.matchDescriptor(f, seq, body)
	default:
		if h, ok := d.ext[f.ClusterID]; ok {
			return h.HandleFrame(f, cl)
		}
		d.logger.Debug("unsupported ZDP request", "cluster", fmt.Sprintf("0x%04X", f.ClusterID))
		return d.respond(f, seq, []byte{byte(StatusNotSupported)}), nil
	}
}

func (d *Discovery) activeEndpoints(f *aps.Frame, seq uint8, body []byte) (*aps.Frame, error) {
	if len(body) < 2 {
		return d.respond(f, seq, d.statusBody(StatusInvalidRequest)), nil
	}
	var eps []uint8
	for _, ep := range d.device.Endpoints() {
		if ep.ID != aps.EndpointZDO {
			eps = append(eps, ep.ID)
		}
	}
	out := d.statusBody(StatusSuccess)
	out = append(out, uint8(len(eps)))
	out = append(out, eps...)
	return d.respond(f, seq, out), nil
}

func (d *Discovery) simpleDescriptor(f *aps.Frame, seq uint8, body []byte) (*aps.Frame, error) {
	if len(body) < 3 {
		return d.respond(f, seq, append(d.statusBody(StatusInvalidRequest), 0)), nil
	}
	target := body[2]

	if target == aps.EndpointZDO || target == aps.EndpointBroadcast {
		return d.respond(f, seq, append(d.statusBody(StatusInvalidEndpoint), 0)), nil
	}
	ep := d.device.Endpoint(target)
	if ep == nil {
		// Not-found is a status, not an error; the endpoint's context
		// is never touched.
		return d.respond(f, seq, append(d.statusBody(StatusNotActive), 0)), nil
	}

	in := ep.ClusterIDs(aps.Input)
	out := ep.ClusterIDs(aps.Output)
	desc := []byte{ep.ID}
	desc = putUint16(desc, ep.ProfileID)
	desc = putUint16(desc, ep.DeviceID)
	desc = append(desc, ep.DeviceVersion&0x0F)
	desc = append(desc, uint8(len(in)))
	for _, id := range in {
		desc = putUint16(desc, id)
	}
	desc = append(desc, uint8(len(out)))
	for _, id := range out {
		desc = putUint16(desc, id)
	}

	rsp := d.statusBody(StatusSuccess)
	rsp = append(rsp, uint8(len(desc)))
	rsp = append(rsp, desc...)
	return d.respond(f, seq, rsp), nil
}

func (d *Discovery) matchDescriptor(f *aps.Frame, seq uint8, body []byte) (*aps.Frame, error) {
	if len(body) < 5 {
		return d.respond(f, seq, append(d.statusBody(StatusInvalidRequest), 0)), nil
	}
	profile := binary.LittleEndian.Uint16(body[2:])
	p := body[4:]

	inList, p, ok := readClusterList(p)
	if !ok {
		return d.respond(f, seq, append(d.statusBody(StatusInvalidRequest), 0)), nil
	}
	outList, _, ok := readClusterList(p)
	if !ok {
		return d.respond(f, seq, append(d.statusBody(StatusInvalidRequest), 0)), nil
	}

	var matches []uint8
	for _, ep := range d.device.Endpoints() {
		if ep.ID == aps.EndpointZDO {
			continue
		}
		if profile != aps.ProfileWildcard && ep.ProfileID != profile {
			continue
		}
		// Server/client matching: the query's desired input clusters are
		// served by our output clusters and vice versa; either
		// intersection qualifies the endpoint.
		if intersects(ep.ClusterIDs(aps.Output), inList) || intersects(ep.ClusterIDs(aps.Input), outList) {
			matches = append(matches, ep.ID)
		}
	}

	rsp := d.statusBody(StatusSuccess)
	rsp = append(rsp, uint8(len(matches)))
	rsp = append(rsp, matches...)
	return d.respond(f, seq, rsp), nil
}

func readClusterList(p []byte) ([]uint16, []byte, bool) {
	if len(p) < 1 {
		return nil, nil, false
	}
	count := int(p[0])
	p = p[1:]
	if len(p) < 2*count {
		return nil, nil, false
	}
	var ids []uint16
	for i := 0; i < count; i++ {
		ids = append(ids, binary.LittleEndian.Uint16(p[2*i:]))
	}
	return ids, p[2*count:], true
}

func intersects(a, b []uint16) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// statusBody starts a response body with status and our network address,
// the common prefix of the standard discovery responses.
func (d *Discovery) statusBody(s Status) []byte {
	return putUint16([]byte{byte(s)}, d.addr())
}

func (d *Discovery) respond(f *aps.Frame, seq uint8, body []byte) *aps.Frame {
	return &aps.Frame{
		Endpoint:  aps.EndpointZDO,
		ClusterID: f.ClusterID | ResponseBit,
		ProfileID: aps.ProfileZDO,
		Payload:   append([]byte{seq}, body...),
	}
}

func putUint16(dst []byte, v uint16) []byte {
	return append(dst, byte(v), byte(v>>8))
}
