package zcl

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"zigbee-node/internal/aps"
)

// General (profile-wide) command ids.
const (
	CmdReadAttributes              uint8 = 0x00
	CmdReadAttributesResponse      uint8 = 0x01
	CmdWriteAttributes             uint8 = 0x02
	CmdWriteAttributesUndivided    uint8 = 0x03
	CmdWriteAttributesResponse     uint8 = 0x04
	CmdWriteAttributesNoResponse   uint8 = 0x05
	CmdConfigureReporting          uint8 = 0x06
	CmdConfigureReportingResponse  uint8 = 0x07
	CmdReadReportingConfig         uint8 = 0x08
	CmdReadReportingConfigResponse uint8 = 0x09
	CmdReportAttributes            uint8 = 0x0A
	CmdDefaultResponse             uint8 = 0x0B
	CmdDiscoverAttributes          uint8 = 0x0C
	CmdDiscoverAttributesResponse  uint8 = 0x0D
)

// GeneralOption configures the general command handler.
type GeneralOption func(*General)

// WithReporting backs Configure/Read Reporting Configuration with a table.
func WithReporting(t ReportingTable) GeneralOption {
	return func(g *General) { g.reports = t }
}

// WithReportSink delivers inbound Report Attributes records to sink.
func WithReportSink(sink ReportSink) GeneralOption {
	return func(g *General) { g.sink = sink }
}

// General implements the profile-wide command protocol shared by all
// clusters. It serves as an endpoint's catch-all handler and as the
// delegate for cluster handlers that do not recognize a command. It only
// touches attribute values through the tree's value store.
type General struct {
	logger  *slog.Logger
	reports ReportingTable
	sink    ReportSink
}

// NewGeneral creates the general command handler.
func NewGeneral(logger *slog.Logger, opts ...GeneralOption) *General {
	if logger == nil {
		logger = slog.Default()
	}
	g := &General{logger: logger.With("component", "zcl")}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HandleFrame implements aps.Handler.
func (g *General) HandleFrame(f *aps.Frame, cl *aps.Cluster) (*aps.Frame, error) {
	hdr, body, err := ParseHeader(f.Payload)
	if err != nil {
		// Too short to recover a sequence number: no response possible.
		return nil, fmt.Errorf("zcl: dropping frame: %w", err)
	}

	var tree *Tree
	if cl != nil {
		tree, _ = cl.Context.(*Tree)
	}
	mfg := GeneralNamespace
	if hdr.MfgSpecific {
		mfg = hdr.Manufacturer
	}
	var attrs []Attribute
	var st ValueStore
	if tree != nil {
		attrs = tree.Attributes(mfg, hdr.ToClient)
		st = tree.Store()
	}

	if hdr.ClusterSpecific {
		return g.handleClusterCommand(f, &hdr, body, tree, mfg, attrs, st)
	}

	switch hdr.Command {
	case CmdReadAttributes:
		return g.handleRead(f, &hdr, body, attrs, st)
	case CmdWriteAttributes, CmdWriteAttributesUndivided, CmdWriteAttributesNoResponse:
		return g.handleWrite(f, &hdr, body, attrs, st)
	case CmdDiscoverAttributes:
		return g.handleDiscover(f, &hdr, body, attrs)
	case CmdConfigureReporting:
		return g.handleConfigureReporting(f, &hdr, body, mfg, attrs)
	case CmdReadReportingConfig:
		return g.handleReadReportingConfig(f, &hdr, body, mfg, attrs)
	case CmdReportAttributes:
		return g.handleReport(f, &hdr, body, mfg)
	case CmdDefaultResponse:
		if len(body) >= 2 {
			g.logger.Debug("default response received",
				"cluster", fmt.Sprintf("0x%04X", f.ClusterID),
				"command", fmt.Sprintf("0x%02X", body[0]),
				"status", Status(body[1]).String())
		}
		return nil, nil
	case CmdReadAttributesResponse, CmdWriteAttributesResponse,
		CmdConfigureReportingResponse, CmdReadReportingConfigResponse,
		CmdDiscoverAttributesResponse:
		g.logger.Debug("unsolicited response ignored", "command", fmt.Sprintf("0x%02X", hdr.Command))
		return nil, nil
	default:
		return g.defaultResponse(f, &hdr, StatusUnsupGeneralCommand), nil
	}
}

// handleClusterCommand applies the cluster-specific side of the decision
// table: manufacturer-specific commands go to the handler registered under
// that manufacturer on the cluster's tree; everything else nobody claimed
// is an unsupported cluster command.
func (g *General) handleClusterCommand(f *aps.Frame, hdr *Header, body []byte, tree *Tree, mfg uint16, attrs []Attribute, st ValueStore) (*aps.Frame, error) {
	if hdr.MfgSpecific && tree != nil {
		if n := tree.Node(mfg); n != nil && n.Handler != nil {
			cmd, resp, ok := n.Handler(hdr, body, attrs, st)
			if !ok {
				return g.defaultResponse(f, hdr, StatusUnsupClusterCommand), nil
			}
			if resp == nil {
				return g.defaultResponse(f, hdr, StatusSuccess), nil
			}
			return reply(f, hdr.response(cmd, true), resp), nil
		}
	}
	return g.defaultResponse(f, hdr, StatusUnsupClusterCommand), nil
}

func (g *General) handleRead(f *aps.Frame, hdr *Header, body []byte, attrs []Attribute, st ValueStore) (*aps.Frame, error) {
	if len(body)%2 != 0 {
		return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
	}
	var out []byte
	for i := 0; i < len(body); i += 2 {
		id := binary.LittleEndian.Uint16(body[i:])
		out = putUintLE(out, uint64(id), 2)
		a := findAttribute(attrs, id)
		if a == nil {
			out = append(out, byte(StatusUnsupportedAttribute))
			continue
		}
		enc, status := ReadValue(a, st)
		out = append(out, byte(status))
		if status == StatusSuccess {
			out = append(out, a.Type)
			out = append(out, enc...)
		}
	}
	return reply(f, hdr.response(CmdReadAttributesResponse, false), out), nil
}

type writeRecord struct {
	id  uint16
	typ uint8
	raw []byte
}

func parseWriteRecords(body []byte) ([]writeRecord, bool) {
	var recs []writeRecord
	for len(body) > 0 {
		if len(body) < 3 {
			return nil, false
		}
		id := binary.LittleEndian.Uint16(body)
		typ := body[2]
		body = body[3:]
		n, ok := ValueLength(typ, body)
		if !ok {
			return nil, false
		}
		recs = append(recs, writeRecord{id: id, typ: typ, raw: body[:n]})
		body = body[n:]
	}
	return recs, true
}

func (g *General) handleWrite(f *aps.Frame, hdr *Header, body []byte, attrs []Attribute, st ValueStore) (*aps.Frame, error) {
	recs, ok := parseWriteRecords(body)
	if !ok {
		return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
	}

	undivided := hdr.Command == CmdWriteAttributesUndivided
	commit := true
	if undivided {
		// Validate the whole batch before committing any of it: one
		// rejection aborts all writes.
		for _, r := range recs {
			a := findAttribute(attrs, r.id)
			if a == nil {
				commit = false
				break
			}
			if _, status := CheckValue(a, r.typ, r.raw); status != StatusSuccess {
				commit = false
				break
			}
		}
	}

	type failure struct {
		status Status
		id     uint16
	}
	var failures []failure
	for _, r := range recs {
		a := findAttribute(attrs, r.id)
		var status Status
		switch {
		case a == nil:
			status = StatusUnsupportedAttribute
		case commit:
			status = WriteValue(a, st, r.typ, r.raw)
		default:
			_, status = CheckValue(a, r.typ, r.raw)
		}
		if status != StatusSuccess {
			failures = append(failures, failure{status, r.id})
		}
	}

	if hdr.Command == CmdWriteAttributesNoResponse {
		return nil, nil
	}
	var out []byte
	if len(failures) == 0 {
		out = []byte{byte(StatusSuccess)}
	} else {
		for _, fl := range failures {
			out = append(out, byte(fl.status))
			out = putUintLE(out, uint64(fl.id), 2)
		}
	}
	return reply(f, hdr.response(CmdWriteAttributesResponse, false), out), nil
}

func (g *General) handleDiscover(f *aps.Frame, hdr *Header, body []byte, attrs []Attribute) (*aps.Frame, error) {
	if len(body) < 3 {
		return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
	}
	start := binary.LittleEndian.Uint16(body)
	max := int(body[2])

	out := []byte{1} // discovery complete; cleared below if truncated
	listed := 0
	for i := range attrs { // attribute lists are sorted by id at tree build
		if attrs[i].ID < start {
			continue
		}
		if listed == max {
			out[0] = 0
			break
		}
		out = putUintLE(out, uint64(attrs[i].ID), 2)
		out = append(out, attrs[i].Type)
		listed++
	}
	return reply(f, hdr.response(CmdDiscoverAttributesResponse, false), out), nil
}

// analog types carry a reportable-change field in reporting configuration.
func analog(typeID uint8) bool {
	return Orderable(typeID) || typeID == TypeFloat16 || typeID == TypeFloat32 || typeID == TypeFloat64
}

func (g *General) handleConfigureReporting(f *aps.Frame, hdr *Header, body []byte, mfg uint16, attrs []Attribute) (*aps.Frame, error) {
	type failure struct {
		status Status
		dir    uint8
		id     uint16
	}
	var failures []failure

	p := body
	for len(p) > 0 {
		if len(p) < 3 {
			return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
		}
		dir := p[0]
		id := binary.LittleEndian.Uint16(p[1:])
		p = p[3:]

		switch dir {
		case 0x00: // configure reports this node will send
			if len(p) < 5 {
				return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
			}
			cfg := ReportConfig{
				Type:        p[0],
				MinInterval: binary.LittleEndian.Uint16(p[1:]),
				MaxInterval: binary.LittleEndian.Uint16(p[3:]),
			}
			p = p[5:]
			if analog(cfg.Type) {
				size := FixedSize(cfg.Type)
				if len(p) < size {
					return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
				}
				cfg.ReportableChange = append([]byte(nil), p[:size]...)
				p = p[size:]
			}

			status := g.configureReport(f, mfg, id, cfg, attrs)
			if status != StatusSuccess {
				failures = append(failures, failure{status, dir, id})
			}

		case 0x01: // peer announces reports it will send; timeout ignored
			if len(p) < 2 {
				return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
			}
			p = p[2:]

		default:
			return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
		}
	}

	var out []byte
	if len(failures) == 0 {
		out = []byte{byte(StatusSuccess)}
	} else {
		for _, fl := range failures {
			out = append(out, byte(fl.status), fl.dir)
			out = putUintLE(out, uint64(fl.id), 2)
		}
	}
	return reply(f, hdr.response(CmdConfigureReportingResponse, false), out), nil
}

func (g *General) configureReport(f *aps.Frame, mfg uint16, id uint16, cfg ReportConfig, attrs []Attribute) Status {
	a := findAttribute(attrs, id)
	if a == nil {
		return StatusUnsupportedAttribute
	}
	if !a.Reportable() {
		return StatusUnreportableAttribute
	}
	if cfg.Type != a.Type {
		return StatusInvalidDataType
	}
	if g.reports == nil {
		return StatusInsufficientSpace
	}
	key := ReportKey{Endpoint: f.Endpoint, Cluster: f.ClusterID, Manufacturer: mfg, Attr: id}
	if cfg.MaxInterval == 0xFFFF {
		if err := g.reports.Remove(key); err != nil {
			g.logger.Error("remove reporting config", "err", err)
			return StatusFailure
		}
		return StatusSuccess
	}
	if err := g.reports.Put(key, cfg); err != nil {
		g.logger.Error("store reporting config", "err", err)
		return StatusFailure
	}
	return StatusSuccess
}

func (g *General) handleReadReportingConfig(f *aps.Frame, hdr *Header, body []byte, mfg uint16, attrs []Attribute) (*aps.Frame, error) {
	if len(body) == 0 || len(body)%3 != 0 {
		return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
	}
	var out []byte
	for i := 0; i < len(body); i += 3 {
		dir := body[i]
		id := binary.LittleEndian.Uint16(body[i+1:])

		status := StatusNotFound
		var cfg ReportConfig
		var found bool
		if dir == 0x00 {
			a := findAttribute(attrs, id)
			switch {
			case a == nil:
				status = StatusUnsupportedAttribute
			case !a.Reportable():
				status = StatusUnreportableAttribute
			case g.reports != nil:
				key := ReportKey{Endpoint: f.Endpoint, Cluster: f.ClusterID, Manufacturer: mfg, Attr: id}
				if cfg, found = g.reports.Get(key); found {
					status = StatusSuccess
				}
			}
		}

		out = append(out, byte(status), dir)
		out = putUintLE(out, uint64(id), 2)
		if status == StatusSuccess {
			out = append(out, cfg.Type)
			out = putUintLE(out, uint64(cfg.MinInterval), 2)
			out = putUintLE(out, uint64(cfg.MaxInterval), 2)
			out = append(out, cfg.ReportableChange...)
		}
	}
	return reply(f, hdr.response(CmdReadReportingConfigResponse, false), out), nil
}

func (g *General) handleReport(f *aps.Frame, hdr *Header, body []byte, mfg uint16) (*aps.Frame, error) {
	var recs []ReportRecord
	p := body
	for len(p) > 0 {
		if len(p) < 3 {
			return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
		}
		id := binary.LittleEndian.Uint16(p)
		typ := p[2]
		p = p[3:]
		n, ok := ValueLength(typ, p)
		if !ok {
			return g.defaultResponse(f, hdr, StatusMalformedCommand), nil
		}
		recs = append(recs, ReportRecord{Attr: id, Type: typ, Value: append([]byte(nil), p[:n]...)})
		p = p[n:]
	}
	if g.sink != nil {
		g.sink(f.Endpoint, f.ClusterID, mfg, recs)
	}
	return g.defaultResponse(f, hdr, StatusSuccess), nil
}

func (g *General) defaultResponse(f *aps.Frame, hdr *Header, status Status) *aps.Frame {
	return DefaultResponse(f, hdr, status)
}

// DefaultResponse builds a Default Response frame for an inbound command,
// or nil when the sender suppressed it.
func DefaultResponse(f *aps.Frame, hdr *Header, status Status) *aps.Frame {
	if hdr.DisableDefaultResponse {
		return nil
	}
	body := []byte{hdr.Command, byte(status)}
	return reply(f, hdr.response(CmdDefaultResponse, false), body)
}

// Reply builds a command response frame mirroring the inbound frame's
// addressing and header scope. Cluster handlers use it for their
// cluster-specific responses.
func Reply(f *aps.Frame, hdr *Header, cmd uint8, clusterSpecific bool, body []byte) *aps.Frame {
	return reply(f, hdr.response(cmd, clusterSpecific), body)
}

// reply wraps a ZCL payload in an outbound frame mirroring the inbound
// frame's addressing.
func reply(f *aps.Frame, h Header, body []byte) *aps.Frame {
	return &aps.Frame{
		Endpoint:  f.Endpoint,
		ClusterID: f.ClusterID,
		ProfileID: f.ProfileID,
		Secured:   f.Secured,
		Payload:   h.Marshal(body),
	}
}

// BuildReport composes an unsolicited Report Attributes frame originating
// from a local server-role cluster.
func BuildReport(endpoint uint8, cluster, profile, mfg uint16, seq uint8, records []ReportRecord) *aps.Frame {
	h := Header{
		MfgSpecific:            mfg != GeneralNamespace,
		Manufacturer:           mfg,
		ToClient:               true,
		DisableDefaultResponse: true,
		Seq:                    seq,
		Command:                CmdReportAttributes,
	}
	var body []byte
	for _, r := range records {
		body = putUintLE(body, uint64(r.Attr), 2)
		body = append(body, r.Type)
		body = append(body, r.Value...)
	}
	return &aps.Frame{
		Endpoint:  endpoint,
		ClusterID: cluster,
		ProfileID: profile,
		Payload:   h.Marshal(body),
	}
}
