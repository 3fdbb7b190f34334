package zcl

import (
	"fmt"
	"sort"
)

// GeneralNamespace is the manufacturer id of the non-manufacturer (general)
// attribute namespace. Every tree contains a node for it.
const GeneralNamespace uint16 = 0x0000

// CommandHandler processes one manufacturer-specific cluster command with
// the resolved attribute list as context. It returns the response command
// id and body (resp == nil means no response frame beyond the default
// response), or ok == false when the command is not recognized.
type CommandHandler func(h *Header, body []byte, attrs []Attribute, st ValueStore) (respCmd uint8, resp []byte, ok bool)

// Node is one manufacturer namespace of a cluster's attribute tree: two
// independent attribute lists for the cluster's server and client roles,
// and an optional handler for that manufacturer's cluster commands.
type Node struct {
	Manufacturer uint16
	Server       []Attribute
	Client       []Attribute
	Handler      CommandHandler
}

// Tree is the attribute collection attached to one cluster instance as its
// context. The structure is immutable after construction; only the values
// behind the store mutate.
type Tree struct {
	nodes []Node
	store ValueStore
}

// ClusterContext marks Tree as a valid aps cluster context kind.
func (t *Tree) ClusterContext() {}

// NewTree validates and assembles an attribute tree over the given value
// store. A node for the general namespace is always present (an empty one
// is synthesized if absent). Duplicate manufacturer ids, duplicate
// attribute ids within a node and role, or ill-formed bounds are
// configuration errors.
func NewTree(store ValueStore, nodes ...Node) (*Tree, error) {
	if store == nil {
		return nil, fmt.Errorf("zcl: tree requires a value store")
	}
	seen := make(map[uint16]bool, len(nodes))
	hasGeneral := false
	for i := range nodes {
		n := &nodes[i]
		if seen[n.Manufacturer] {
			return nil, fmt.Errorf("zcl: duplicate manufacturer node 0x%04X", n.Manufacturer)
		}
		seen[n.Manufacturer] = true
		if n.Manufacturer == GeneralNamespace {
			hasGeneral = true
		}
		for role, attrs := range map[string][]Attribute{"server": n.Server, "client": n.Client} {
			if err := validateAttributes(n.Manufacturer, role, attrs); err != nil {
				return nil, err
			}
			sort.Slice(attrs, func(a, b int) bool { return attrs[a].ID < attrs[b].ID })
		}
	}
	if !hasGeneral {
		nodes = append([]Node{{Manufacturer: GeneralNamespace}}, nodes...)
	}
	return &Tree{nodes: nodes, store: store}, nil
}

func validateAttributes(mfg uint16, role string, attrs []Attribute) error {
	ids := make(map[uint16]bool, len(attrs))
	for i := range attrs {
		a := &attrs[i]
		if ids[a.ID] {
			return fmt.Errorf("zcl: mfg 0x%04X %s: duplicate attribute 0x%04X", mfg, role, a.ID)
		}
		ids[a.ID] = true
		if a.Key == "" {
			return fmt.Errorf("zcl: mfg 0x%04X %s: attribute 0x%04X has no value key", mfg, role, a.ID)
		}
		if a.Bounded() {
			if a.Ext == nil {
				return fmt.Errorf("zcl: mfg 0x%04X %s: bounded attribute 0x%04X lacks extension", mfg, role, a.ID)
			}
			if !Orderable(a.Type) {
				return fmt.Errorf("zcl: mfg 0x%04X %s: attribute 0x%04X: type %s cannot carry bounds", mfg, role, a.ID, TypeName(a.Type))
			}
			if a.Ext.Min > a.Ext.Max {
				return fmt.Errorf("zcl: mfg 0x%04X %s: attribute 0x%04X: min %d > max %d", mfg, role, a.ID, a.Ext.Min, a.Ext.Max)
			}
		}
	}
	return nil
}

// Store returns the value store backing the tree's attributes.
func (t *Tree) Store() ValueStore { return t.store }

// Node returns the tree node for a manufacturer id, or nil. Lookup is a
// linear scan; manufacturer tables are small in practice.
func (t *Tree) Node(mfg uint16) *Node {
	for i := range t.nodes {
		if t.nodes[i].Manufacturer == mfg {
			return &t.nodes[i]
		}
	}
	return nil
}

// Attributes resolves the attribute list for a manufacturer id and role
// (client selects the client list). It returns nil when no node exists for
// the manufacturer.
func (t *Tree) Attributes(mfg uint16, client bool) []Attribute {
	n := t.Node(mfg)
	if n == nil {
		return nil
	}
	if client {
		return n.Client
	}
	return n.Server
}
