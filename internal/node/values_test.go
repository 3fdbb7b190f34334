package node

import (
	"testing"

	"zigbee-node/internal/zcl"
)

func TestValuesLoadStore(t *testing.T) {
	v := NewValues()
	if _, ok := v.Load("missing"); ok {
		t.Error("unexpected value for missing key")
	}
	v.Store("temp", int16(42))
	got, ok := v.Load("temp")
	if !ok || got.(int16) != 42 {
		t.Errorf("got (%v, %v)", got, ok)
	}
}

func TestValuesChangeObserver(t *testing.T) {
	v := NewValues()
	var events []any
	v.OnChange(func(k zcl.Key, val any) {
		if k != "x" {
			t.Errorf("key %q", k)
		}
		events = append(events, val)
	})

	v.Store("x", true)       // new key: fires
	v.Store("x", true)       // unchanged: silent
	v.Store("x", false)      // changed: fires
	v.Store("x", false)      // unchanged: silent

	if len(events) != 2 {
		t.Fatalf("observer ran %d times, want 2", len(events))
	}
	if events[0].(bool) != true || events[1].(bool) != false {
		t.Errorf("events %v", events)
	}
}

func TestValuesObserverHandlesSlices(t *testing.T) {
	v := NewValues()
	calls := 0
	v.OnChange(func(zcl.Key, any) { calls++ })

	v.Store("b", []byte{1, 2})
	v.Store("b", []byte{1, 2}) // deep-equal, no event
	v.Store("b", []byte{1, 3})

	if calls != 2 {
		t.Errorf("observer ran %d times, want 2", calls)
	}
}

func TestValuesSnapshotIsCopy(t *testing.T) {
	v := NewValues()
	v.Store("a", uint8(1))
	snap := v.Snapshot()
	snap["a"] = uint8(99)
	if got, _ := v.Load("a"); got.(uint8) != 1 {
		t.Error("snapshot mutation leaked into the store")
	}
}
