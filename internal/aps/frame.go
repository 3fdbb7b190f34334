// Package aps implements the application-support view of a ZigBee node: the
// frame shape exchanged with the radio transport, the endpoint and cluster
// tables, and the dispatcher routing inbound frames to their handlers.
package aps

// Well-known endpoint and profile ids.
const (
	EndpointZDO       uint8 = 0x00 // reserved for device/service discovery
	EndpointBroadcast uint8 = 0xFF // never assigned to an endpoint

	ProfileZDO      uint16 = 0x0000
	ProfileHA       uint16 = 0x0104
	ProfileWildcard uint16 = 0xFFFF
)

// Frame is one fully-framed application frame, as delivered by the radio
// transport (inbound) or handed to it for transmission (outbound). For
// inbound frames Endpoint is the destination endpoint on this node; for
// outbound frames it is the local endpoint originating the reply.
type Frame struct {
	Endpoint  uint8
	ClusterID uint16
	ProfileID uint16
	Secured   bool // APS security was verified by the transport
	Payload   []byte
}

// Handler processes one inbound frame addressed to a cluster or endpoint.
// cl is the matched cluster descriptor, or nil when the frame's cluster id
// is not in the endpoint's table. A nil response frame means no reply.
type Handler interface {
	HandleFrame(f *Frame, cl *Cluster) (*Frame, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(f *Frame, cl *Cluster) (*Frame, error)

func (fn HandlerFunc) HandleFrame(f *Frame, cl *Cluster) (*Frame, error) {
	return fn(f, cl)
}
