package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "radio:\n  type: loopback\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Radio.Baud != 115200 {
		t.Errorf("baud %d", cfg.Radio.Baud)
	}
	if cfg.Web.Listen != "127.0.0.1:8080" {
		t.Errorf("listen %q", cfg.Web.Listen)
	}
	if cfg.Store.Path != "zigbee-node.db" {
		t.Errorf("store path %q", cfg.Store.Path)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log %+v", cfg.Log)
	}
}

func TestLoadConfigFull(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
radio:
  type: xbee
  port: /dev/ttyUSB0
  baud: 9600
node:
  friendly_name: hallway
  network_address: 0x1234
  require_security: true
mqtt:
  enabled: true
  broker: tcp://localhost:1883
scripts_dir: ./scripts
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Radio.Port != "/dev/ttyUSB0" || cfg.Radio.Baud != 9600 {
		t.Errorf("radio %+v", cfg.Radio)
	}
	if cfg.Node.NetworkAddress != 0x1234 || !cfg.Node.RequireSecurity {
		t.Errorf("node %+v", cfg.Node)
	}
	if cfg.ScriptsDir != "./scripts" {
		t.Errorf("scripts dir %q", cfg.ScriptsDir)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []string{
		"radio:\n  type: xbee\n",                                  // missing port
		"radio:\n  type: lora\n",                                  // unknown radio
		"radio:\n  type: loopback\nmqtt:\n  enabled: true\n",      // mqtt without broker
	}
	for _, content := range cases {
		cfg, err := loadConfig(writeConfig(t, content))
		if err != nil {
			t.Fatal(err)
		}
		if err := cfg.validate(); err == nil {
			t.Errorf("config %q passed validation", content)
		}
	}
}
