// Package clusters provides ready-made cluster instances for the node's
// endpoints, built on the generic attribute tree.
package clusters

import (
	"zigbee-node/internal/aps"
	"zigbee-node/internal/zcl"
)

// Standard cluster ids used by this package.
const (
	ClusterBasic    uint16 = 0x0000
	ClusterIdentify uint16 = 0x0003
	ClusterOnOff    uint16 = 0x0006
)

// Basic cluster attribute ids.
const (
	attrZCLVersion         uint16 = 0x0000
	attrApplicationVersion uint16 = 0x0001
	attrStackVersion       uint16 = 0x0002
	attrManufacturerName   uint16 = 0x0004
	attrModelIdentifier    uint16 = 0x0005
	attrPowerSource        uint16 = 0x0007
)

// BasicInfo is the identity published by the Basic cluster.
type BasicInfo struct {
	ManufacturerName   string
	ModelIdentifier    string
	ApplicationVersion uint8
	StackVersion       uint8
	PowerSource        uint8
}

// Basic builds the Basic cluster (0x0000): read-only identity attributes
// seeded into the value store. All attributes are base variants served by
// the general command handler through the endpoint's catch-all.
func Basic(store zcl.ValueStore, info BasicInfo) (aps.Cluster, error) {
	seed := map[zcl.Key]any{
		"basic/zcl_version":   uint8(3),
		"basic/app_version":   info.ApplicationVersion,
		"basic/stack_version": info.StackVersion,
		"basic/manufacturer":  info.ManufacturerName,
		"basic/model":         info.ModelIdentifier,
		"basic/power_source":  info.PowerSource,
	}
	for k, v := range seed {
		store.Store(k, v)
	}

	tree, err := zcl.NewTree(store, zcl.Node{
		Manufacturer: zcl.GeneralNamespace,
		Server: []zcl.Attribute{
			{ID: attrZCLVersion, Type: zcl.TypeUint8, Flags: zcl.FlagReadOnly, Key: "basic/zcl_version"},
			{ID: attrApplicationVersion, Type: zcl.TypeUint8, Flags: zcl.FlagReadOnly, Key: "basic/app_version"},
			{ID: attrStackVersion, Type: zcl.TypeUint8, Flags: zcl.FlagReadOnly, Key: "basic/stack_version"},
			{ID: attrManufacturerName, Type: zcl.TypeCharStr, Flags: zcl.FlagReadOnly, Key: "basic/manufacturer"},
			{ID: attrModelIdentifier, Type: zcl.TypeCharStr, Flags: zcl.FlagReadOnly, Key: "basic/model"},
			{ID: attrPowerSource, Type: zcl.TypeEnum8, Flags: zcl.FlagReadOnly, Key: "basic/power_source"},
		},
	})
	if err != nil {
		return aps.Cluster{}, err
	}
	return aps.Cluster{ID: ClusterBasic, Direction: aps.Input, Context: tree}, nil
}
