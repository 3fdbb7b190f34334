package clusters

import (
	"zigbee-node/internal/aps"
	"zigbee-node/internal/zcl"
)

// On/Off cluster commands and attributes.
const (
	AttrOnOff uint16 = 0x0000

	cmdOff    uint8 = 0x00
	cmdOn     uint8 = 0x01
	cmdToggle uint8 = 0x02
)

// OnOff builds the On/Off cluster (0x0006): a reportable boolean state
// attribute plus the off/on/toggle commands. Commands it does not
// recognize are forwarded to the general handler, which also serves all
// profile-wide commands against the cluster's tree. notify, if non-nil, is
// called after a state-changing command with the command id.
func OnOff(general *zcl.General, store zcl.ValueStore, key zcl.Key, notify func(cmd uint8)) (aps.Cluster, error) {
	if _, ok := store.Load(key); !ok {
		store.Store(key, false)
	}

	tree, err := zcl.NewTree(store, zcl.Node{
		Manufacturer: zcl.GeneralNamespace,
		Server: []zcl.Attribute{
			{ID: AttrOnOff, Type: zcl.TypeBool, Flags: zcl.FlagReadOnly | zcl.FlagReportable, Key: key},
		},
	})
	if err != nil {
		return aps.Cluster{}, err
	}

	handler := aps.HandlerFunc(func(f *aps.Frame, cl *aps.Cluster) (*aps.Frame, error) {
		hdr, _, err := zcl.ParseHeader(f.Payload)
		if err != nil || !hdr.ClusterSpecific || hdr.MfgSpecific {
			return general.HandleFrame(f, cl)
		}
		switch hdr.Command {
		case cmdOff:
			store.Store(key, false)
		case cmdOn:
			store.Store(key, true)
		case cmdToggle:
			cur, _ := store.Load(key)
			on, _ := cur.(bool)
			store.Store(key, !on)
		default:
			// Not ours; let the general handler answer.
			return general.HandleFrame(f, cl)
		}
		if notify != nil {
			notify(hdr.Command)
		}
		return zcl.DefaultResponse(f, &hdr, zcl.StatusSuccess), nil
	})

	return aps.Cluster{ID: ClusterOnOff, Direction: aps.Input, Handler: handler, Context: tree}, nil
}
