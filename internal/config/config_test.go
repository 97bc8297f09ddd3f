package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	m, err := NewManager(viper.New(), path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Loaded() {
		t.Error("missing file reported as loaded")
	}

	cfg := m.Get()
	want := Defaults()
	if *cfg != *want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
display: ":1"
bus:
  type: system
discovery:
  interval: 500ms
  hang_timeout: 10s
api:
  enabled: true
  listen: 127.0.0.1:9000
log_level: debug
`)

	m, err := NewManager(viper.New(), path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()

	if cfg.Display != ":1" || cfg.Bus.Type != "system" {
		t.Errorf("display/bus not loaded: %+v", cfg)
	}
	if cfg.Bus.Name != "org.shadowblip.Gamescope" {
		t.Errorf("unset key lost its default: %q", cfg.Bus.Name)
	}
	if cfg.Discovery.Interval != 500*time.Millisecond || cfg.Discovery.HangTimeout != 10*time.Second {
		t.Errorf("durations: %+v", cfg.Discovery)
	}
	if cfg.Discovery.CallTimeout != 2*time.Second {
		t.Errorf("call timeout default: %s", cfg.Discovery.CallTimeout)
	}
	if !cfg.API.Enabled || cfg.API.Listen != "127.0.0.1:9000" {
		t.Errorf("api: %+v", cfg.API)
	}
	if m.GetConfigPath() != path {
		t.Errorf("path %s, want %s", m.GetConfigPath(), path)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("GAMESCOPE_DBUS_DISCOVERY_INTERVAL", "5s")
	t.Setenv("GAMESCOPE_DBUS_LOG_LEVEL", "warn")

	m, err := NewManager(viper.New(), filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.Discovery.Interval != 5*time.Second {
		t.Errorf("interval %s, want 5s", cfg.Discovery.Interval)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "zero interval", mutate: func(c *Config) { c.Discovery.Interval = 0 }, want: "discovery.interval"},
		{name: "hang below interval", mutate: func(c *Config) { c.Discovery.HangTimeout = time.Second }, want: "hang_timeout"},
		{name: "zero call timeout", mutate: func(c *Config) { c.Discovery.CallTimeout = 0 }, want: "call_timeout"},
		{name: "bad bus", mutate: func(c *Config) { c.Bus.Type = "tcp" }, want: "bus.type"},
		{name: "empty name", mutate: func(c *Config) { c.Bus.Name = "" }, want: "bus.name"},
		{name: "api without listen", mutate: func(c *Config) { c.API.Enabled = true; c.API.Listen = "" }, want: "api.listen"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "verbose" }, want: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error mentioning %s", err, tt.want)
			}
		})
	}
}

func TestInvalidFileRejected(t *testing.T) {
	path := writeConfig(t, "discovery:\n  interval: 10s\n  hang_timeout: 5s\n")
	if _, err := NewManager(viper.New(), path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSetAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(viper.New(), path)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Set("discovery.interval", "3s"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set("bus.type", "tcp"); err == nil {
		t.Error("invalid value accepted")
	}
	if got := m.Get().Bus.Type; got != "session" {
		t.Errorf("rejected value kept: %q", got)
	}
	if err := m.Set("no.such.key", "1"); err == nil {
		t.Error("unknown key accepted")
	}

	reloaded, err := NewManager(viper.New(), path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Loaded() {
		t.Fatal("saved file not found")
	}
	if got := reloaded.Get().Discovery.Interval; got != 3*time.Second {
		t.Errorf("reloaded interval %s, want 3s", got)
	}
}
