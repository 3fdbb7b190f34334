package store

import "time"

// NodeState holds persisted node identity and bookkeeping.
type NodeState struct {
	FriendlyName   string    `json:"friendly_name,omitempty"`
	NetworkAddress uint16    `json:"network_address"`
	LastStart      time.Time `json:"last_start"`
}
