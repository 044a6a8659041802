package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetIntervalFloor(t *testing.T) {
	tests := []struct {
		name    string
		value   time.Duration
		wantErr bool
	}{
		{"below floor", 999 * time.Millisecond, true},
		{"zero", 0, true},
		{"negative", -time.Second, true},
		{"at floor", time.Second, false},
		{"above floor", 30 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSettings()
			err := s.SetInterval(tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrIntervalTooShort) {
					t.Fatalf("SetInterval(%s) = %v, want ErrIntervalTooShort", tt.value, err)
				}
				if got := s.Interval(); got != DefaultInterval {
					t.Fatalf("rejected set mutated interval: got %s, want %s", got, DefaultInterval)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetInterval(%s) = %v, want nil", tt.value, err)
			}
			if got := s.Interval(); got != tt.value {
				t.Fatalf("Interval() = %s, want %s", got, tt.value)
			}
		})
	}
}

func TestSetEndpointEmptyResets(t *testing.T) {
	s := NewSettings()
	s.SetEndpoint("http://example.com/probe")
	if got := s.Endpoint(); got != "http://example.com/probe" {
		t.Fatalf("Endpoint() = %q", got)
	}
	s.SetEndpoint("")
	if got := s.Endpoint(); got != DefaultEndpoint {
		t.Fatalf("Endpoint() = %q, want default", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("Load of missing file = %+v, want defaults", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "listen_addr: \":9090\"\ninterval_ms: 2000\nendpoint: \"http://probe.local/ok\"\ndebug_logging: true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.IntervalMS != 2000 {
		t.Fatalf("IntervalMS = %d", cfg.IntervalMS)
	}
	if cfg.Endpoint != "http://probe.local/ok" {
		t.Fatalf("Endpoint = %q", cfg.Endpoint)
	}
	if !cfg.DebugLogging {
		t.Fatal("DebugLogging = false, want true")
	}
	if cfg.ProbeTimeoutMS != DefaultConfig().ProbeTimeoutMS {
		t.Fatalf("ProbeTimeoutMS = %d, want default", cfg.ProbeTimeoutMS)
	}
}

func TestLoadRejectsShortInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("interval_ms: 500\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("Load = %v, want ErrIntervalTooShort", err)
	}
}

func TestApply(t *testing.T) {
	s := NewSettings()
	cfg := Config{IntervalMS: 1500, Endpoint: "http://probe.local/ok", ProbeTimeoutMS: 2500, DebugLogging: true}
	if err := cfg.Apply(s); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := s.Interval(); got != 1500*time.Millisecond {
		t.Fatalf("Interval = %s", got)
	}
	if got := s.ProbeTimeout(); got != 2500*time.Millisecond {
		t.Fatalf("ProbeTimeout = %s", got)
	}
	if !s.DebugLogging() {
		t.Fatal("DebugLogging not applied")
	}
}
