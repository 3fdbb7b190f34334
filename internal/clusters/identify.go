package clusters

import (
	"encoding/binary"
	"time"

	"zigbee-node/internal/aps"
	"zigbee-node/internal/zcl"
)

const (
	AttrIdentifyTime uint16 = 0x0000

	cmdIdentify          uint8 = 0x00
	cmdIdentifyQuery     uint8 = 0x01
	cmdIdentifyQueryResp uint8 = 0x00

	maxIdentifySeconds = 3600
)

// Identify builds the Identify cluster (0x0003). IdentifyTime is an
// extended attribute: bounded, refreshed on every read from a stored
// deadline, and with a write hook that arms the deadline, so writes via
// the general Write Attributes command behave exactly like the Identify
// command.
func Identify(general *zcl.General, store zcl.ValueStore, key zcl.Key) (aps.Cluster, error) {
	deadlineKey := key + "/deadline"
	store.Store(key, uint16(0))

	remaining := func() uint16 {
		v, ok := store.Load(deadlineKey)
		if !ok {
			return 0
		}
		deadline, ok := v.(time.Time)
		if !ok {
			return 0
		}
		left := time.Until(deadline)
		if left <= 0 {
			return 0
		}
		return uint16((left + time.Second - 1) / time.Second)
	}
	arm := func(seconds uint16) {
		store.Store(deadlineKey, time.Now().Add(time.Duration(seconds)*time.Second))
		store.Store(key, seconds)
	}

	tree, err := zcl.NewTree(store, zcl.Node{
		Manufacturer: zcl.GeneralNamespace,
		Server: []zcl.Attribute{
			{
				ID:    AttrIdentifyTime,
				Type:  zcl.TypeUint16,
				Flags: zcl.FlagBounded,
				Key:   key,
				Ext: &zcl.Extension{
					Min: 0,
					Max: maxIdentifySeconds,
					OnRead: func(st zcl.ValueStore, a *zcl.Attribute) {
						st.Store(a.Key, remaining())
					},
					OnWrite: func(st zcl.ValueStore, a *zcl.Attribute, v any) zcl.Status {
						if seconds, ok := v.(uint16); ok {
							arm(seconds)
						}
						return zcl.StatusSuccess
					},
				},
			},
		},
	})
	if err != nil {
		return aps.Cluster{}, err
	}

	handler := aps.HandlerFunc(func(f *aps.Frame, cl *aps.Cluster) (*aps.Frame, error) {
		hdr, body, err := zcl.ParseHeader(f.Payload)
		if err != nil || !hdr.ClusterSpecific || hdr.MfgSpecific {
			return general.HandleFrame(f, cl)
		}
		switch hdr.Command {
		case cmdIdentify:
			if len(body) < 2 {
				return zcl.DefaultResponse(f, &hdr, zcl.StatusMalformedCommand), nil
			}
			arm(binary.LittleEndian.Uint16(body))
			return zcl.DefaultResponse(f, &hdr, zcl.StatusSuccess), nil
		case cmdIdentifyQuery:
			left := remaining()
			if left == 0 {
				// Not identifying: no query response.
				return zcl.DefaultResponse(f, &hdr, zcl.StatusSuccess), nil
			}
			resp := []byte{byte(left), byte(left >> 8)}
			return zcl.Reply(f, &hdr, cmdIdentifyQueryResp, true, resp), nil
		default:
			return general.HandleFrame(f, cl)
		}
	})

	return aps.Cluster{ID: ClusterIdentify, Direction: aps.Input, Handler: handler, Context: tree}, nil
}
