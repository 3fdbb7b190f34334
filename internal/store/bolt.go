package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"zigbee-node/internal/zcl"
)

var (
	bucketReports = []byte("reports")
	bucketNode    = []byte("node")
	keyNodeState  = []byte("state")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db      *bolt.DB
	reports *boltReports
}

// NewBoltStore opens or creates a BoltDB database and loads the reporting
// table into memory; writes go through to disk.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketReports, bucketNode} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	reports, err := loadReports(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, reports: reports}, nil
}

func (s *BoltStore) Reports() zcl.ReportingTable { return s.reports }

func (s *BoltStore) SaveNodeState(state *NodeState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNode).Put(keyNodeState, data)
	})
}

func (s *BoltStore) GetNodeState() (*NodeState, error) {
	var state NodeState
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNode).Get(keyNodeState)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// boltReports is a write-through reporting table: reads come from memory,
// writes land in both.
type boltReports struct {
	db *bolt.DB
	mu sync.RWMutex
	m  map[zcl.ReportKey]zcl.ReportConfig
}

func loadReports(db *bolt.DB) (*boltReports, error) {
	r := &boltReports{db: db, m: make(map[zcl.ReportKey]zcl.ReportConfig)}
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(k, v []byte) error {
			key, err := decodeReportKey(k)
			if err != nil {
				return err
			}
			var cfg zcl.ReportConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return err
			}
			r.m[key] = cfg
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load reporting configs: %w", err)
	}
	return r, nil
}

func encodeReportKey(k zcl.ReportKey) []byte {
	out := make([]byte, 7)
	out[0] = k.Endpoint
	binary.LittleEndian.PutUint16(out[1:], k.Cluster)
	binary.LittleEndian.PutUint16(out[3:], k.Manufacturer)
	binary.LittleEndian.PutUint16(out[5:], k.Attr)
	return out
}

func decodeReportKey(b []byte) (zcl.ReportKey, error) {
	if len(b) != 7 {
		return zcl.ReportKey{}, fmt.Errorf("bad report key length %d", len(b))
	}
	return zcl.ReportKey{
		Endpoint:     b[0],
		Cluster:      binary.LittleEndian.Uint16(b[1:]),
		Manufacturer: binary.LittleEndian.Uint16(b[3:]),
		Attr:         binary.LittleEndian.Uint16(b[5:]),
	}, nil
}

func (r *boltReports) Put(k zcl.ReportKey, c zcl.ReportConfig) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketReports).Put(encodeReportKey(k), data)
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.m[k] = c
	r.mu.Unlock()
	return nil
}

func (r *boltReports) Get(k zcl.ReportKey) (zcl.ReportConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[k]
	return c, ok
}

func (r *boltReports) Remove(k zcl.ReportKey) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Delete(encodeReportKey(k))
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.m, k)
	r.mu.Unlock()
	return nil
}

func (r *boltReports) List() []zcl.ReportEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]zcl.ReportEntry, 0, len(r.m))
	for k, c := range r.m {
		out = append(out, zcl.ReportEntry{Key: k, Config: c})
	}
	return out
}
