package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boothmesh.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Booth.Capacity != 5 {
		t.Errorf("expected capacity=5, got %d", cfg.Booth.Capacity)
	}
	if cfg.Booth.BeaconInterval != time.Second {
		t.Errorf("expected beacon_interval=1s, got %v", cfg.Booth.BeaconInterval)
	}
	if cfg.Scan.Timeout != 5*time.Second {
		t.Errorf("expected scan timeout=5s, got %v", cfg.Scan.Timeout)
	}
	if cfg.Link.Distance != 1 {
		t.Errorf("expected distance=1, got %g", cfg.Link.Distance)
	}
	if cfg.Monitor.Listen != "" {
		t.Errorf("expected monitor disabled, got %q", cfg.Monitor.Listen)
	}

	// The id has no default and must be supplied
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "node.id") {
		t.Errorf("expected node.id validation error, got %v", err)
	}
	cfg.Node.ID = 7
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with an id should validate: %v", err)
	}
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Booth.Capacity != Default().Booth.Capacity {
		t.Errorf("expected default capacity, got %d", cfg.Booth.Capacity)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	path := writeConfig(t, `
node:
  id: 101
booth:
  capacity: 2
  beacon_interval: 250ms
scan:
  timeout: 2s
link:
  distance: 4.5
  frame_logs: true
monitor:
  listen: 127.0.0.1:8090
log:
  level: debug
`)
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if cfg.NodeID() != 101 {
		t.Errorf("expected id=101, got %d", cfg.NodeID())
	}
	if cfg.Booth.Capacity != 2 {
		t.Errorf("expected capacity=2, got %d", cfg.Booth.Capacity)
	}
	if cfg.Booth.BeaconInterval != 250*time.Millisecond {
		t.Errorf("expected beacon_interval=250ms, got %v", cfg.Booth.BeaconInterval)
	}
	if cfg.Scan.Timeout != 2*time.Second {
		t.Errorf("expected timeout=2s, got %v", cfg.Scan.Timeout)
	}
	if cfg.Link.Distance != 4.5 || !cfg.Link.FrameLogs {
		t.Errorf("unexpected link config: %+v", cfg.Link)
	}
	// Unset fields keep their defaults
	if cfg.Link.Dir != "" || cfg.Link.PacketLoss != 0 {
		t.Errorf("expected link defaults to survive, got %+v", cfg.Link)
	}
	if cfg.Monitor.Listen != "127.0.0.1:8090" {
		t.Errorf("expected monitor listen address, got %q", cfg.Monitor.Listen)
	}
}

func TestLoad_ExplicitPathWinsOverEnvironment(t *testing.T) {
	envPath := writeConfig(t, "node:\n  id: 1\n")
	flagPath := writeConfig(t, "node:\n  id: 2\n")
	t.Setenv(EnvConfig, envPath)

	cfg, err := Load(flagPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Node.ID != 2 {
		t.Errorf("expected id from explicit path, got %d", cfg.Node.ID)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "booth: [unclosed")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_ExpandsLinkDir(t *testing.T) {
	t.Setenv("BOOTHMESH_DIR", "/tmp/mesh")
	path := writeConfig(t, `
link:
  dir: ${BOOTHMESH_DIR}/sockets
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Link.Dir != "/tmp/mesh/sockets" {
		t.Errorf("expected expanded dir, got %q", cfg.Link.Dir)
	}

	if got := expandVars("${BOOTHMESH_UNSET_VAR:-/fallback}/x"); got != "/fallback/x" {
		t.Errorf("expected default expansion, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"broadcast id", func(c *Config) { c.Node.ID = 255 }, "node.id"},
		{"id too large", func(c *Config) { c.Node.ID = 300 }, "node.id"},
		{"zero capacity", func(c *Config) { c.Booth.Capacity = 0 }, "booth.capacity"},
		{"zero beacon interval", func(c *Config) { c.Booth.BeaconInterval = 0 }, "booth.beacon_interval"},
		{"negative scan timeout", func(c *Config) { c.Scan.Timeout = -time.Second }, "scan.timeout"},
		{"zero distance", func(c *Config) { c.Link.Distance = 0 }, "link.distance"},
		{"certain loss", func(c *Config) { c.Link.PacketLoss = 1 }, "link.packet_loss"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Node.ID = 10
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Booth.Capacity = 0
	cfg.Link.Distance = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"node.id", "booth.capacity", "link.distance"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %v", want, err)
		}
	}
}
