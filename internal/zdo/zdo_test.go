package zdo

import (
	"bytes"
	"testing"

	"zigbee-node/internal/aps"
)

func testDiscovery(t *testing.T) *Discovery {
	t.Helper()
	d := New(func() uint16 { return 0x1234 }, nil)
	device, err := aps.NewDevice(d.Endpoint(),
		&aps.Endpoint{
			ID:            1,
			ProfileID:     aps.ProfileHA,
			DeviceID:      0x0100,
			DeviceVersion: 2,
			Clusters: []aps.Cluster{
				{ID: 0x0000, Direction: aps.Input},
				{ID: 0x0006, Direction: aps.Input},
				{ID: 0x0402, Direction: aps.Output},
			},
		},
		&aps.Endpoint{
			ID:        2,
			ProfileID: 0x0109,
			Clusters: []aps.Cluster{
				{ID: 0x0702, Direction: aps.Input},
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	d.Bind(device)
	return d
}

func zdpRequest(cluster uint16, seq uint8, body []byte) *aps.Frame {
	return &aps.Frame{
		Endpoint:  aps.EndpointZDO,
		ClusterID: cluster,
		ProfileID: aps.ProfileZDO,
		Payload:   append([]byte{seq}, body...),
	}
}

func TestActiveEndpoints(t *testing.T) {
	d := testDiscovery(t)
	resp, err := d.HandleFrame(zdpRequest(ClusterActiveEPReq, 5, []byte{0x34, 0x12}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ClusterID != ClusterActiveEPReq|ResponseBit {
		t.Errorf("response cluster 0x%04X", resp.ClusterID)
	}
	// seq, status, nwk addr, count, endpoint list (endpoint 0 excluded)
	want := []byte{5, byte(StatusSuccess), 0x34, 0x12, 2, 1, 2}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X, want % X", resp.Payload, want)
	}
}

func TestSimpleDescriptor(t *testing.T) {
	d := testDiscovery(t)
	resp, err := d.HandleFrame(zdpRequest(ClusterSimpleDescReq, 6, []byte{0x34, 0x12, 1}), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		6, byte(StatusSuccess), 0x34, 0x12,
		14,         // descriptor length
		1,          // endpoint
		0x04, 0x01, // profile 0x0104
		0x00, 0x01, // device id 0x0100
		2,          // device version
		2,          // input cluster count
		0x00, 0x00, // basic
		0x06, 0x00, // on/off
		1,          // output cluster count
		0x02, 0x04, // temperature measurement
	}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X\nwant % X", resp.Payload, want)
	}
}

func TestSimpleDescriptorNotActive(t *testing.T) {
	d := testDiscovery(t)
	resp, err := d.HandleFrame(zdpRequest(ClusterSimpleDescReq, 7, []byte{0x34, 0x12, 9}), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{7, byte(StatusNotActive), 0x34, 0x12, 0}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X, want % X", resp.Payload, want)
	}
}

func TestSimpleDescriptorReservedEndpoints(t *testing.T) {
	d := testDiscovery(t)
	for _, target := range []uint8{0, 0xFF} {
		resp, err := d.HandleFrame(zdpRequest(ClusterSimpleDescReq, 8, []byte{0x34, 0x12, target}), nil)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Payload[1] != byte(StatusInvalidEndpoint) {
			t.Errorf("endpoint %d: status %02X, want INVALID_EP", target, resp.Payload[1])
		}
	}
}

func TestMatchDescriptorByInputCluster(t *testing.T) {
	d := testDiscovery(t)
	// Looking for a peer serving On/Off (our input list on endpoint 1).
	body := []byte{
		0x34, 0x12, // nwk addr of interest
		0x04, 0x01, // profile HA
		0,          // in cluster count
		1,          // out cluster count
		0x06, 0x00, // on/off
	}
	resp, err := d.HandleFrame(zdpRequest(ClusterMatchDescReq, 9, body), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{9, byte(StatusSuccess), 0x34, 0x12, 1, 1}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X, want % X", resp.Payload, want)
	}
}

func TestMatchDescriptorByOutputCluster(t *testing.T) {
	d := testDiscovery(t)
	// Peer offers temperature readings; our endpoint 1 consumes them.
	body := []byte{
		0x34, 0x12,
		0x04, 0x01,
		1,          // in cluster count
		0x02, 0x04, // temperature measurement
		0, // out cluster count
	}
	resp, err := d.HandleFrame(zdpRequest(ClusterMatchDescReq, 10, body), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{10, byte(StatusSuccess), 0x34, 0x12, 1, 1}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X, want % X", resp.Payload, want)
	}
}

func TestMatchDescriptorProfileFilter(t *testing.T) {
	d := testDiscovery(t)
	// Smart Energy profile: only endpoint 2 qualifies.
	body := []byte{
		0x34, 0x12,
		0x09, 0x01, // profile 0x0109
		0,
		1,
		0x02, 0x07, // metering
	}
	resp, err := d.HandleFrame(zdpRequest(ClusterMatchDescReq, 11, body), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{11, byte(StatusSuccess), 0x34, 0x12, 1, 2}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X, want % X", resp.Payload, want)
	}
}

func TestMatchDescriptorWildcardProfile(t *testing.T) {
	d := testDiscovery(t)
	body := []byte{
		0x34, 0x12,
		0xFF, 0xFF, // wildcard
		0,
		2,
		0x06, 0x00, // on/off -> endpoint 1
		0x02, 0x07, // metering -> endpoint 2
	}
	resp, err := d.HandleFrame(zdpRequest(ClusterMatchDescReq, 12, body), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{12, byte(StatusSuccess), 0x34, 0x12, 2, 1, 2}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X, want % X", resp.Payload, want)
	}
}

func TestMatchDescriptorNoMatch(t *testing.T) {
	d := testDiscovery(t)
	body := []byte{
		0x34, 0x12,
		0x04, 0x01,
		0,
		1,
		0x01, 0x01, // door lock: nobody serves it
	}
	resp, err := d.HandleFrame(zdpRequest(ClusterMatchDescReq, 13, body), nil)
	if err != nil {
		t.Fatal(err)
	}
	// Empty match list is still a success.
	want := []byte{13, byte(StatusSuccess), 0x34, 0x12, 0}
	if !bytes.Equal(resp.Payload, want) {
		t.Errorf("payload % X, want % X", resp.Payload, want)
	}
}

func TestUnsupportedRequest(t *testing.T) {
	d := testDiscovery(t)
	resp, err := d.HandleFrame(zdpRequest(0x0013, 14, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Payload[1] != byte(StatusNotSupported) {
		t.Errorf("status %02X, want NOT_SUPPORTED", resp.Payload[1])
	}
}

func TestExtensionHandler(t *testing.T) {
	d := testDiscovery(t)
	called := false
	d.Register(0x0031, aps.HandlerFunc(func(f *aps.Frame, cl *aps.Cluster) (*aps.Frame, error) {
		called = true
		return nil, nil
	}))
	if _, err := d.HandleFrame(zdpRequest(0x0031, 15, nil), nil); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("extension handler not invoked")
	}
}
