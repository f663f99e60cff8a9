package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should validate, got: %v", err)
	}
	if cfg.Media.PresenceGrace != 500*time.Millisecond {
		t.Errorf("expected default presence grace 500ms, got %v", cfg.Media.PresenceGrace)
	}
}

func TestValidate_PortRange(t *testing.T) {
	cases := []struct {
		name     string
		min, max uint16
		wantErr  bool
	}{
		{"unset", 0, 0, false},
		{"valid", 50000, 50100, false},
		{"inverted", 50100, 50000, true},
		{"half set", 50000, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.WebRTC.PortRange.Min = tc.min
			cfg.WebRTC.PortRange.Max = tc.max

			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_RedisRequiresAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = ""

	if err := cfg.Validate(); err == nil {
		t.Error("expected error when redis is enabled without address")
	}
}

func TestValidate_TracingSampleRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.SampleRate = 1.5

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sample rate above 1")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":4000"
signal:
  send_buffer_size: 128
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != ":4000" {
		t.Errorf("expected address :4000, got %s", cfg.Server.Address)
	}
	if cfg.Signal.SendBufferSize != 128 {
		t.Errorf("expected send buffer size 128, got %d", cfg.Signal.SendBufferSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Media.PresenceGrace != DefaultConfig().Media.PresenceGrace {
		t.Errorf("expected default presence grace, got %v", cfg.Media.PresenceGrace)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should not fail, got: %v", err)
	}
	if cfg.Server.Address != DefaultConfig().Server.Address {
		t.Errorf("expected default address, got %s", cfg.Server.Address)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ROOMLINK_SERVER_ADDRESS", ":9999")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: \":4000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("environment override should win, got %s", cfg.Server.Address)
	}
}
