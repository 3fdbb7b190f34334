package aps

// Direction flags for a cluster descriptor.
type Direction uint8

const (
	Input  Direction = 0x01 // server role
	Output Direction = 0x02 // client role
)

// Input reports whether the cluster acts in the server (input) role.
func (d Direction) Input() bool { return d&Input != 0 }

// Output reports whether the cluster acts in the client (output) role.
func (d Direction) Output() bool { return d&Output != 0 }

// Context is the opaque per-cluster state handed to its handler. The set of
// context kinds is closed: nil (no context) or a type providing the marker
// method, such as the zcl attribute tree.
type Context interface {
	ClusterContext()
}

// Cluster describes one cluster hosted on an endpoint.
type Cluster struct {
	ID              uint16
	Direction       Direction
	RequireSecurity bool // drop frames that were not APS-secured
	Handler         Handler
	Context         Context
}

// Endpoint describes one addressable endpoint on the device.
type Endpoint struct {
	ID            uint8
	ProfileID     uint16
	DeviceID      uint16
	DeviceVersion uint8
	Clusters      []Cluster

	// CatchAll handles frames for clusters with no handler of their own.
	// Normally the ZCL general command handler.
	CatchAll Handler
}

// Cluster returns the endpoint's cluster descriptor for id, or nil.
func (e *Endpoint) Cluster(id uint16) *Cluster {
	for i := range e.Clusters {
		if e.Clusters[i].ID == id {
			return &e.Clusters[i]
		}
	}
	return nil
}

// ClusterIDs returns the ids of clusters matching the direction flag, in
// table order. Used by discovery to build simple descriptors.
func (e *Endpoint) ClusterIDs(dir Direction) []uint16 {
	var ids []uint16
	for i := range e.Clusters {
		if e.Clusters[i].Direction&dir != 0 {
			ids = append(ids, e.Clusters[i].ID)
		}
	}
	return ids
}
