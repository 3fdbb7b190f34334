// Package web serves the node's JSON API and the live WebSocket event feed.
package web

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"zigbee-node/internal/automation"
	"zigbee-node/internal/node"
	"zigbee-node/internal/store"
	"zigbee-node/internal/zcl"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication on /api/ routes.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAutomation exposes script control endpoints.
func WithAutomation(engine *automation.Engine) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
	}
}

// WithStore exposes persisted node state and the reporting table.
func WithStore(st store.Store) ServerOption {
	return func(s *Server) {
		s.store = st
	}
}

// WithVersion sets the version string reported by the API.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP server for the node API.
type Server struct {
	node           *node.Node
	feed           *eventFeed
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	autoEngine     *automation.Engine
	store          store.Store
	version        string
	unsubEvents    func()
}

// ClusterView describes one cluster in the endpoint registry.
type ClusterView struct {
	ID        uint16 `json:"id"`
	Direction string `json:"direction"`
	Secured   bool   `json:"secured"`
}

// EndpointView describes one endpoint in the registry.
type EndpointView struct {
	ID            uint8         `json:"id"`
	ProfileID     uint16        `json:"profile_id"`
	DeviceID      uint16        `json:"device_id"`
	DeviceVersion uint8         `json:"device_version"`
	Clusters      []ClusterView `json:"clusters"`
}

// NodeView is the full registry view returned by GET /api/node.
type NodeView struct {
	FriendlyName   string         `json:"friendly_name,omitempty"`
	NetworkAddress uint16         `json:"network_address"`
	Endpoints      []EndpointView `json:"endpoints"`
}

// NewServer creates the node API server and wires the event feed.
func NewServer(n *node.Node, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:   n,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.feed = newEventFeed(s.logger)
	s.unsubEvents = n.Events().OnAll(s.feed.publish)

	s.routes()
	return s
}

// Stop detaches from the event bus and shuts down the WebSocket feed.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.feed.shutdown()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/node", s.handleNode)
	s.mux.HandleFunc("GET /api/values", s.handleListValues)
	s.mux.HandleFunc("GET /api/values/{key...}", s.handleGetValue)
	s.mux.HandleFunc("PUT /api/values/{key...}", s.handleSetValue)
	s.mux.HandleFunc("GET /api/reports", s.handleListReports)
	s.mux.HandleFunc("GET /api/version", s.handleVersion)

	s.mux.HandleFunc("POST /api/scripts/run", s.handleRunScript)
	s.mux.HandleFunc("POST /api/scripts/{name}/reload", s.handleReloadScript)

	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	if s.apiKey != "" && strings.HasPrefix(r.URL.Path, "/api/") {
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	view := NodeView{}

	if s.store != nil {
		if state, err := s.store.GetNodeState(); err == nil {
			view.FriendlyName = state.FriendlyName
			view.NetworkAddress = state.NetworkAddress
		}
	}

	for _, ep := range s.node.Device().Endpoints() {
		ev := EndpointView{
			ID:            ep.ID,
			ProfileID:     ep.ProfileID,
			DeviceID:      ep.DeviceID,
			DeviceVersion: ep.DeviceVersion,
		}
		for _, cl := range ep.Clusters {
			dir := "input"
			if cl.Direction.Output() {
				if cl.Direction.Input() {
					dir = "both"
				} else {
					dir = "output"
				}
			}
			ev.Clusters = append(ev.Clusters, ClusterView{
				ID:        cl.ID,
				Direction: dir,
				Secured:   cl.RequireSecurity,
			})
		}
		view.Endpoints = append(view.Endpoints, ev)
	}

	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListValues(w http.ResponseWriter, r *http.Request) {
	snapshot := s.node.Values().Snapshot()
	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		out[string(k)] = jsonSafe(v)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, ok := s.node.Values().Load(zcl.Key(key))
	if !ok {
		s.writeError(w, http.StatusNotFound, "value not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": jsonSafe(v)})
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	switch req.Value.(type) {
	case map[string]any, []any:
		s.writeError(w, http.StatusBadRequest, "composite values not supported")
		return
	case nil:
		s.writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	s.node.Values().Store(zcl.Key(key), req.Value)
	s.writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": req.Value})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}

	type reportView struct {
		Endpoint     uint8  `json:"endpoint"`
		Cluster      uint16 `json:"cluster"`
		Manufacturer uint16 `json:"manufacturer,omitempty"`
		Attr         uint16 `json:"attr"`
		Type         uint8  `json:"type"`
		MinInterval  uint16 `json:"min_interval"`
		MaxInterval  uint16 `json:"max_interval"`
	}

	entries := s.store.Reports().List()
	out := make([]reportView, 0, len(entries))
	for _, e := range entries {
		out = append(out, reportView{
			Endpoint:     e.Key.Endpoint,
			Cluster:      e.Key.Cluster,
			Manufacturer: e.Key.Manufacturer,
			Attr:         e.Key.Attr,
			Type:         e.Config.Type,
			MinInterval:  e.Config.MinInterval,
			MaxInterval:  e.Config.MaxInterval,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request) {
	if s.autoEngine == nil {
		s.writeError(w, http.StatusNotFound, "automation disabled")
		return
	}
	code, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.autoEngine.RunLuaCode(string(code)))
}

func (s *Server) handleReloadScript(w http.ResponseWriter, r *http.Request) {
	if s.autoEngine == nil {
		s.writeError(w, http.StatusNotFound, "automation disabled")
		return
	}
	name := r.PathValue("name")
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		s.writeError(w, http.StatusBadRequest, "invalid script name")
		return
	}
	if err := s.autoEngine.ReloadScript(name); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// jsonSafe converts value-store contents that have no natural JSON form.
func jsonSafe(v any) any {
	switch val := v.(type) {
	case []byte:
		return fmt.Sprintf("%x", val)
	case [8]byte:
		return fmt.Sprintf("%x", val[:])
	default:
		return v
	}
}

// writeJSON renders to a buffer first, so marshal failures produce a clean
// error response instead of a truncated body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
