package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinInterval is the lowest accepted probe interval.
	MinInterval = time.Second

	// DefaultInterval is the probe cadence used when none is configured.
	DefaultInterval = 5 * time.Second

	// DefaultProbeTimeout bounds a single reachability request.
	DefaultProbeTimeout = 4 * time.Second

	// DefaultEndpoint is a well-known captive-portal probe URL.
	DefaultEndpoint = "http://connectivitycheck.gstatic.com/generate_204"
)

// ErrIntervalTooShort is returned when a probe interval below MinInterval
// is requested. The prior configuration is left untouched.
var ErrIntervalTooShort = errors.New("probe interval must be at least 1s")

// Settings holds the runtime probe configuration owned by the engine.
// Setters validate; a rejected value never mutates stored state.
// Safe for concurrent use.
type Settings struct {
	mu           sync.RWMutex
	interval     time.Duration
	endpoint     string
	probeTimeout time.Duration
	debugLogging bool
}

// NewSettings returns settings populated with defaults.
func NewSettings() *Settings {
	return &Settings{
		interval:     DefaultInterval,
		endpoint:     DefaultEndpoint,
		probeTimeout: DefaultProbeTimeout,
	}
}

// Interval returns the configured probe interval. A running poll cycle
// keeps the interval it started with; a new value is only read the next
// time polling starts from an empty registration set.
func (s *Settings) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// SetInterval stores a new probe interval. Values below MinInterval are
// rejected with ErrIntervalTooShort.
func (s *Settings) SetInterval(d time.Duration) error {
	if d < MinInterval {
		return fmt.Errorf("%w (got %s)", ErrIntervalTooShort, d)
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return nil
}

// Endpoint returns the reachability probe URL.
func (s *Settings) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// SetEndpoint replaces the probe URL. Empty values reset to the default.
func (s *Settings) SetEndpoint(url string) {
	s.mu.Lock()
	if url == "" {
		url = DefaultEndpoint
	}
	s.endpoint = url
	s.mu.Unlock()
}

// ProbeTimeout returns the per-request probe timeout.
func (s *Settings) ProbeTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probeTimeout
}

// SetProbeTimeout replaces the probe timeout. Non-positive values reset
// to the default.
func (s *Settings) SetProbeTimeout(d time.Duration) {
	s.mu.Lock()
	if d <= 0 {
		d = DefaultProbeTimeout
	}
	s.probeTimeout = d
	s.mu.Unlock()
}

// DebugLogging reports whether verbose logging is requested.
func (s *Settings) DebugLogging() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debugLogging
}

// SetDebugLogging toggles verbose logging.
func (s *Settings) SetDebugLogging(enabled bool) {
	s.mu.Lock()
	s.debugLogging = enabled
	s.mu.Unlock()
}

// Config represents the service configuration file.
type Config struct {
	ListenAddr     string `yaml:"listen_addr"`
	IntervalMS     int    `yaml:"interval_ms"`
	Endpoint       string `yaml:"endpoint"`
	ProbeTimeoutMS int    `yaml:"probe_timeout_ms"`
	DebugLogging   bool   `yaml:"debug_logging"`
}

// DefaultConfig returns sensible defaults in case no configuration file
// is provided.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		IntervalMS:     int(DefaultInterval / time.Millisecond),
		Endpoint:       DefaultEndpoint,
		ProbeTimeoutMS: int(DefaultProbeTimeout / time.Millisecond),
	}
}

// Load reads configuration from a yaml file. Missing files fall back to
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	if cfg.IntervalMS == 0 {
		cfg.IntervalMS = DefaultConfig().IntervalMS
	}
	if time.Duration(cfg.IntervalMS)*time.Millisecond < MinInterval {
		return Config{}, fmt.Errorf("interval_ms %d: %w", cfg.IntervalMS, ErrIntervalTooShort)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ProbeTimeoutMS <= 0 {
		cfg.ProbeTimeoutMS = DefaultConfig().ProbeTimeoutMS
	}
	return cfg, nil
}

// Apply copies the file configuration into runtime settings.
func (c Config) Apply(s *Settings) error {
	if err := s.SetInterval(time.Duration(c.IntervalMS) * time.Millisecond); err != nil {
		return err
	}
	s.SetEndpoint(c.Endpoint)
	s.SetProbeTimeout(time.Duration(c.ProbeTimeoutMS) * time.Millisecond)
	s.SetDebugLogging(c.DebugLogging)
	return nil
}
