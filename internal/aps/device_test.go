package aps

import (
	"errors"
	"testing"
)

type recordingHandler struct {
	frames   []*Frame
	clusters []*Cluster
	resp     *Frame
}

func (h *recordingHandler) HandleFrame(f *Frame, cl *Cluster) (*Frame, error) {
	h.frames = append(h.frames, f)
	h.clusters = append(h.clusters, cl)
	return h.resp, nil
}

func TestDispatchToClusterHandler(t *testing.T) {
	h := &recordingHandler{resp: &Frame{Endpoint: 1}}
	catchAll := &recordingHandler{}
	device, err := NewDevice(&Endpoint{
		ID:       1,
		Clusters: []Cluster{{ID: 0x0006, Direction: Input, Handler: h}},
		CatchAll: catchAll,
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x0006})
	if err != nil {
		t.Fatal(err)
	}
	if resp != h.resp {
		t.Error("response not propagated from handler")
	}
	if len(h.frames) != 1 || len(catchAll.frames) != 0 {
		t.Errorf("handler=%d catchall=%d calls", len(h.frames), len(catchAll.frames))
	}
	if h.clusters[0] == nil || h.clusters[0].ID != 0x0006 {
		t.Error("handler must receive its cluster descriptor")
	}
}

func TestDispatchFallsBackToCatchAll(t *testing.T) {
	catchAll := &recordingHandler{}
	device, err := NewDevice(&Endpoint{
		ID:       1,
		Clusters: []Cluster{{ID: 0x0006, Direction: Input}},
		CatchAll: catchAll,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Known cluster without a handler: catch-all gets the descriptor.
	if _, err := device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x0006}); err != nil {
		t.Fatal(err)
	}
	if catchAll.clusters[0] == nil || catchAll.clusters[0].ID != 0x0006 {
		t.Error("catch-all should see the matched cluster")
	}

	// Unknown cluster: catch-all still runs, with a nil descriptor.
	if _, err := device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x9999}); err != nil {
		t.Fatal(err)
	}
	if catchAll.clusters[1] != nil {
		t.Error("unmatched cluster must pass a nil descriptor")
	}
}

func TestDispatchUnknownEndpoint(t *testing.T) {
	device, err := NewDevice(&Endpoint{ID: 1, CatchAll: &recordingHandler{}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = device.Dispatch(&Frame{Endpoint: 9})
	if !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("err = %v, want ErrEndpointNotFound", err)
	}
}

func TestDispatchNoHandlerAtAll(t *testing.T) {
	device, err := NewDevice(&Endpoint{ID: 1})
	if err != nil {
		t.Fatal(err)
	}
	_, err = device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x0006})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("err = %v, want ErrNoHandler", err)
	}
}

func TestDispatchSecurityRequired(t *testing.T) {
	h := &recordingHandler{}
	device, err := NewDevice(&Endpoint{
		ID:       1,
		Clusters: []Cluster{{ID: 0x0101, Direction: Input, RequireSecurity: true, Handler: h}},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x0101})
	if !errors.Is(err, ErrInsufficientSecurity) {
		t.Errorf("err = %v, want ErrInsufficientSecurity", err)
	}
	if len(h.frames) != 0 {
		t.Error("handler must not run for an unsecured frame")
	}

	if _, err := device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x0101, Secured: true}); err != nil {
		t.Errorf("secured frame rejected: %v", err)
	}
	if len(h.frames) != 1 {
		t.Error("secured frame should reach the handler")
	}
}

func TestDispatchSecurityGatesCatchAll(t *testing.T) {
	// The security attribute belongs to the cluster descriptor, not to
	// whichever handler ends up serving it: a handlerless secured cluster
	// must not leak to the catch-all unsecured.
	catchAll := &recordingHandler{}
	device, err := NewDevice(&Endpoint{
		ID:       1,
		Clusters: []Cluster{{ID: 0x0101, Direction: Input, RequireSecurity: true}},
		CatchAll: catchAll,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x0101})
	if !errors.Is(err, ErrInsufficientSecurity) {
		t.Errorf("err = %v, want ErrInsufficientSecurity", err)
	}
	if len(catchAll.frames) != 0 {
		t.Error("catch-all must not run for an unsecured frame")
	}

	if _, err := device.Dispatch(&Frame{Endpoint: 1, ClusterID: 0x0101, Secured: true}); err != nil {
		t.Errorf("secured frame rejected: %v", err)
	}
	if len(catchAll.frames) != 1 || catchAll.clusters[0] == nil {
		t.Error("secured frame should reach the catch-all with its descriptor")
	}
}

func TestNewDeviceRejectsBroadcastEndpoint(t *testing.T) {
	if _, err := NewDevice(&Endpoint{ID: EndpointBroadcast}); err == nil {
		t.Error("expected error for broadcast endpoint id")
	}
}

func TestNewDeviceRejectsDuplicateEndpoints(t *testing.T) {
	if _, err := NewDevice(&Endpoint{ID: 1}, &Endpoint{ID: 1}); err == nil {
		t.Error("expected error for duplicate endpoint ids")
	}
}

func TestNewDeviceRejectsBadClusters(t *testing.T) {
	// Missing direction.
	_, err := NewDevice(&Endpoint{
		ID:       1,
		Clusters: []Cluster{{ID: 0x0006}},
	})
	if err == nil {
		t.Error("expected error for cluster without direction")
	}

	// Same id and direction twice.
	_, err = NewDevice(&Endpoint{
		ID: 1,
		Clusters: []Cluster{
			{ID: 0x0006, Direction: Input},
			{ID: 0x0006, Direction: Input},
		},
	})
	if err == nil {
		t.Error("expected error for duplicate cluster direction")
	}

	// Same id, opposite directions is fine.
	_, err = NewDevice(&Endpoint{
		ID: 1,
		Clusters: []Cluster{
			{ID: 0x0006, Direction: Input},
			{ID: 0x0006, Direction: Output},
		},
	})
	if err != nil {
		t.Errorf("opposite directions should be valid: %v", err)
	}
}

func TestClusterIDsByDirection(t *testing.T) {
	ep := &Endpoint{
		ID: 1,
		Clusters: []Cluster{
			{ID: 0x0000, Direction: Input},
			{ID: 0x0006, Direction: Input},
			{ID: 0x0402, Direction: Output},
		},
	}
	in := ep.ClusterIDs(Input)
	if len(in) != 2 || in[0] != 0x0000 || in[1] != 0x0006 {
		t.Errorf("input ids %v", in)
	}
	out := ep.ClusterIDs(Output)
	if len(out) != 1 || out[0] != 0x0402 {
		t.Errorf("output ids %v", out)
	}
}
