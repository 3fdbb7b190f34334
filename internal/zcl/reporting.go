package zcl

import "sync"

// ReportKey identifies one configured attribute report on this node.
type ReportKey struct {
	Endpoint     uint8
	Cluster      uint16
	Manufacturer uint16
	Attr         uint16
}

// ReportConfig is the reporting configuration accepted for an attribute.
type ReportConfig struct {
	Type             uint8
	MinInterval      uint16 // seconds
	MaxInterval      uint16 // seconds; 0xFFFF disables reporting
	ReportableChange []byte // encoded minimum change, analog types only
}

// ReportEntry pairs a key with its configuration for enumeration.
type ReportEntry struct {
	Key    ReportKey
	Config ReportConfig
}

// ReportingTable stores reporting configurations. The bbolt-backed
// implementation lives in the store package; MemoryReports serves tests and
// store-less nodes.
type ReportingTable interface {
	Put(k ReportKey, c ReportConfig) error
	Get(k ReportKey) (ReportConfig, bool)
	Remove(k ReportKey) error
	List() []ReportEntry
}

// ReportRecord is one attribute record of a Report Attributes command.
type ReportRecord struct {
	Attr  uint16
	Type  uint8
	Value []byte
}

// ReportSink consumes inbound Report Attributes commands (reports sent to
// this node's client-role clusters).
type ReportSink func(endpoint uint8, cluster uint16, mfg uint16, records []ReportRecord)

// MemoryReports is an in-memory ReportingTable.
type MemoryReports struct {
	mu sync.RWMutex
	m  map[ReportKey]ReportConfig
}

func NewMemoryReports() *MemoryReports {
	return &MemoryReports{m: make(map[ReportKey]ReportConfig)}
}

func (r *MemoryReports) Put(k ReportKey, c ReportConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[k] = c
	return nil
}

func (r *MemoryReports) Get(k ReportKey) (ReportConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[k]
	return c, ok
}

func (r *MemoryReports) Remove(k ReportKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, k)
	return nil
}

func (r *MemoryReports) List() []ReportEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ReportEntry, 0, len(r.m))
	for k, c := range r.m {
		out = append(out, ReportEntry{Key: k, Config: c})
	}
	return out
}
