// Package store persists the node's reporting configurations and metadata.
// Attribute values are deliberately not persisted; they are owned by live
// device state.
package store

import (
	"errors"

	"zigbee-node/internal/zcl"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Reports is the durable reporting-configuration table served to the
	// general command handler.
	Reports() zcl.ReportingTable

	// Node state
	SaveNodeState(state *NodeState) error
	GetNodeState() (*NodeState, error)

	Close() error
}
