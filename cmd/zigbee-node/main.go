package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"zigbee-node/internal/aps"
	"zigbee-node/internal/automation"
	"zigbee-node/internal/clusters"
	"zigbee-node/internal/mqtt"
	"zigbee-node/internal/node"
	"zigbee-node/internal/radio"
	"zigbee-node/internal/store"
	"zigbee-node/internal/web"
	"zigbee-node/internal/zcl"
	"zigbee-node/internal/zdo"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Radio struct {
		Type string `yaml:"type"` // "xbee" or "loopback"
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"radio"`
	Node struct {
		FriendlyName    string `yaml:"friendly_name"`
		Manufacturer    string `yaml:"manufacturer"`
		Model           string `yaml:"model"`
		NetworkAddress  uint16 `yaml:"network_address"`
		RequireSecurity bool   `yaml:"require_security"`
	} `yaml:"node"`
	Web struct {
		Enabled        bool     `yaml:"enabled"`
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	switch c.Radio.Type {
	case "xbee":
		if c.Radio.Port == "" {
			return fmt.Errorf("radio.port is required for xbee radio")
		}
	case "loopback":
	default:
		return fmt.Errorf("unknown radio type: %q (supported: xbee, loopback)", c.Radio.Type)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbee-node starting", "version", version)

	// Open store.
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	values := node.NewValues()
	events := node.NewEventBus(logger)

	// General command handler shared by all application clusters.
	general := zcl.NewGeneral(logger,
		zcl.WithReporting(db.Reports()),
		zcl.WithReportSink(func(endpoint uint8, cluster uint16, mfg uint16, records []zcl.ReportRecord) {
			events.Emit(node.Event{Type: node.EventReportReceived, Data: map[string]any{
				"endpoint": endpoint,
				"cluster":  cluster,
				"mfg":      mfg,
				"records":  len(records),
			}})
		}),
	)

	endpoint, err := buildApplicationEndpoint(cfg, general, values, events)
	if err != nil {
		logger.Error("build endpoint", "err", err)
		os.Exit(1)
	}

	discovery := zdo.New(func() uint16 { return cfg.Node.NetworkAddress }, logger)

	device, err := aps.NewDevice(discovery.Endpoint(), endpoint)
	if err != nil {
		logger.Error("build device", "err", err)
		os.Exit(1)
	}
	discovery.Bind(device)

	transport, err := openRadio(cfg, logger)
	if err != nil {
		logger.Error("open radio", "err", err)
		os.Exit(1)
	}
	defer transport.Close()

	n := node.New(device, transport, values, events, logger)

	if err := db.SaveNodeState(&store.NodeState{
		FriendlyName:   cfg.Node.FriendlyName,
		NetworkAddress: cfg.Node.NetworkAddress,
		LastStart:      time.Now(),
	}); err != nil {
		logger.Warn("save node state", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := n.Run(ctx); err != nil {
			logger.Error("frame loop", "err", err)
			cancel()
		}
	}()

	reporter := node.NewReporter(device, values, db.Reports(), transport, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	// Automation engine.
	var auto *automation.Engine
	if cfg.ScriptsDir != "" {
		auto = automation.NewEngine(n, cfg.ScriptsDir, logger)
		if err := auto.Start(); err != nil {
			logger.Error("start automation", "err", err)
			os.Exit(1)
		}
	}

	// Web server.
	var webServer *web.Server
	var httpServer *http.Server
	if cfg.Web.Enabled {
		webOpts := []web.ServerOption{
			web.WithStore(db),
			web.WithVersion(version),
		}
		if cfg.Web.APIKey != "" {
			webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
		}
		if len(cfg.Web.AllowedOrigins) > 0 {
			webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
		}
		if auto != nil {
			webOpts = append(webOpts, web.WithAutomation(auto))
		}

		webServer = web.NewServer(n, logger, webOpts...)
		httpServer = &http.Server{
			Addr:         cfg.Web.Listen,
			Handler:      webServer,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			logger.Info("web server starting", "addr", cfg.Web.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server", "err", err)
			}
		}()
	}

	// MQTT bridge.
	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge, err = mqtt.NewBridge(n, mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
		}, logger)
		if err != nil {
			logger.Error("connect mqtt", "err", err)
			os.Exit(1)
		}
		bridge.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	cancel()
	if auto != nil {
		auto.Stop()
	}
	if bridge != nil {
		bridge.Stop()
	}
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "err", err)
		}
		shutdownCancel()
		webServer.Stop()
	}
	transport.Close()
	wg.Wait()

	logger.Info("goodbye")
}

// buildApplicationEndpoint assembles endpoint 1 with the Basic, Identify,
// and On/Off clusters. Unclaimed frames fall through to the general
// command handler.
func buildApplicationEndpoint(cfg *Config, general *zcl.General, values *node.Values, events *node.EventBus) (*aps.Endpoint, error) {
	basic, err := clusters.Basic(values, clusters.BasicInfo{
		ManufacturerName:   cfg.Node.Manufacturer,
		ModelIdentifier:    cfg.Node.Model,
		ApplicationVersion: 1,
		StackVersion:       1,
		PowerSource:        0x01, // mains
	})
	if err != nil {
		return nil, fmt.Errorf("basic cluster: %w", err)
	}

	identify, err := clusters.Identify(general, values, "identify/time")
	if err != nil {
		return nil, fmt.Errorf("identify cluster: %w", err)
	}

	onoff, err := clusters.OnOff(general, values, "onoff/state", func(cmd uint8) {
		events.Emit(node.Event{Type: node.EventClusterCommand, Data: map[string]any{
			"cluster": clusters.ClusterOnOff,
			"command": cmd,
		}})
	})
	if err != nil {
		return nil, fmt.Errorf("onoff cluster: %w", err)
	}
	onoff.RequireSecurity = cfg.Node.RequireSecurity

	return &aps.Endpoint{
		ID:            1,
		ProfileID:     aps.ProfileHA,
		DeviceID:      0x0100, // on/off light
		DeviceVersion: 1,
		Clusters:      []aps.Cluster{basic, identify, onoff},
		CatchAll:      general,
	}, nil
}

func openRadio(cfg *Config, logger *slog.Logger) (radio.Transport, error) {
	switch cfg.Radio.Type {
	case "xbee":
		logger.Info("using XBee radio", "port", cfg.Radio.Port, "baud", cfg.Radio.Baud)
		return radio.OpenSerial(cfg.Radio.Port, cfg.Radio.Baud, logger)
	case "loopback":
		logger.Info("using loopback radio")
		return radio.NewPipe(), nil
	default:
		return nil, fmt.Errorf("unknown radio type: %q", cfg.Radio.Type)
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Radio.Type == "" {
		cfg.Radio.Type = "xbee"
	}
	if cfg.Radio.Baud == 0 {
		cfg.Radio.Baud = 115200
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "zigbee-node.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "zigbee-node"
	}
	if cfg.Node.Manufacturer == "" {
		cfg.Node.Manufacturer = "zigbee-node"
	}
	if cfg.Node.Model == "" {
		cfg.Node.Model = "node-1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
