package node

import (
	"reflect"
	"sync"

	"zigbee-node/internal/zcl"
)

// Values is the device-owned attribute value storage. It implements the
// zcl.ValueStore accessor contract; the mutex makes each individual access
// safe under concurrent mutation by device logic running outside the
// frame-processing path.
type Values struct {
	mu       sync.RWMutex
	m        map[zcl.Key]any
	onChange []func(zcl.Key, any)
}

// NewValues creates an empty value store.
func NewValues() *Values {
	return &Values{m: make(map[zcl.Key]any)}
}

// Load implements zcl.ValueStore.
func (v *Values) Load(k zcl.Key) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.m[k]
	return val, ok
}

// Store implements zcl.ValueStore. Change observers run outside the lock.
func (v *Values) Store(k zcl.Key, val any) {
	v.mu.Lock()
	prev, had := v.m[k]
	v.m[k] = val
	observers := v.onChange
	v.mu.Unlock()

	if had && reflect.DeepEqual(prev, val) {
		return
	}
	for _, fn := range observers {
		fn(k, val)
	}
}

// OnChange registers an observer invoked after a key's value changes.
// Observers must be registered before frame processing starts.
func (v *Values) OnChange(fn func(zcl.Key, any)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = append(v.onChange, fn)
}

// Snapshot returns a copy of the current values.
func (v *Values) Snapshot() map[zcl.Key]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[zcl.Key]any, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}
