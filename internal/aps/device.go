package aps

import (
	"errors"
	"fmt"
)

// Routing-level failures. None of these ever produce a response frame; the
// caller logs and drops.
var (
	ErrEndpointNotFound     = errors.New("aps: endpoint not found")
	ErrNoHandler            = errors.New("aps: no handler for cluster and no catch-all")
	ErrInsufficientSecurity = errors.New("aps: cluster requires APS security")
)

// Device owns the endpoint table and routes inbound frames. The table is
// built once via NewDevice and is immutable afterwards; only attribute
// values (owned by external device state) mutate at runtime.
type Device struct {
	endpoints []*Endpoint
}

// NewDevice validates and assembles the endpoint table. Duplicate endpoint
// ids, reserved ids, or duplicate cluster ids within an endpoint/direction
// are configuration errors: the process must refuse to start rather than
// serve frames against an inconsistent table.
func NewDevice(endpoints ...*Endpoint) (*Device, error) {
	seen := make(map[uint8]bool, len(endpoints))
	for _, ep := range endpoints {
		if ep.ID == EndpointBroadcast {
			return nil, fmt.Errorf("aps: endpoint id 0x%02X is reserved for broadcast", ep.ID)
		}
		if seen[ep.ID] {
			return nil, fmt.Errorf("aps: duplicate endpoint id %d", ep.ID)
		}
		seen[ep.ID] = true
		if err := validateClusters(ep); err != nil {
			return nil, err
		}
	}
	return &Device{endpoints: endpoints}, nil
}

func validateClusters(ep *Endpoint) error {
	for i := range ep.Clusters {
		a := &ep.Clusters[i]
		if a.Direction == 0 {
			return fmt.Errorf("aps: endpoint %d cluster 0x%04X has no direction", ep.ID, a.ID)
		}
		for j := i + 1; j < len(ep.Clusters); j++ {
			b := &ep.Clusters[j]
			if a.ID == b.ID && a.Direction&b.Direction != 0 {
				return fmt.Errorf("aps: endpoint %d: duplicate cluster 0x%04X for same direction", ep.ID, a.ID)
			}
		}
	}
	return nil
}

// Endpoint returns the endpoint descriptor for id, or nil.
func (d *Device) Endpoint(id uint8) *Endpoint {
	for _, ep := range d.endpoints {
		if ep.ID == id {
			return ep
		}
	}
	return nil
}

// Endpoints returns the endpoint table in configuration order.
func (d *Device) Endpoints() []*Endpoint {
	return d.endpoints
}

// Dispatch routes one inbound frame. It returns the response frame to
// transmit (nil for none) or a routing error, in which case the frame is
// silently dropped. Profile id is not consulted for routing: endpoint id
// plus cluster id select the handler, profile id is informational and used
// only by discovery.
func (d *Device) Dispatch(f *Frame) (*Frame, error) {
	ep := d.Endpoint(f.Endpoint)
	if ep == nil {
		return nil, fmt.Errorf("%w: %d", ErrEndpointNotFound, f.Endpoint)
	}

	cl := ep.Cluster(f.ClusterID)
	if cl != nil && cl.RequireSecurity && !f.Secured {
		return nil, fmt.Errorf("%w: endpoint %d cluster 0x%04X", ErrInsufficientSecurity, f.Endpoint, f.ClusterID)
	}

	if cl != nil && cl.Handler != nil {
		return cl.Handler.HandleFrame(f, cl)
	}
	if ep.CatchAll != nil {
		return ep.CatchAll.HandleFrame(f, cl)
	}
	return nil, fmt.Errorf("%w: endpoint %d cluster 0x%04X", ErrNoHandler, f.Endpoint, f.ClusterID)
}
