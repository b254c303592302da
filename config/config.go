// Package config loads roundtable configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bazelment/yoloswe/roundtable/stream"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = ".roundtable.yaml"

// Duration wraps time.Duration so YAML values can be written in the usual
// "50ms" / "10s" form.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds the roundtable settings from .roundtable.yaml.
type Config struct {
	// UpstreamURL is the websocket endpoint delivering token events.
	UpstreamURL string `yaml:"upstream_url"`

	// ListenAddr is the address the snapshot hub binds to.
	ListenAddr string `yaml:"listen_addr"`

	// Debounce is the per-agent quiet window before buffered fragments
	// are published.
	Debounce Duration `yaml:"debounce"`

	// IdleThreshold is how long a stream may stall before being marked
	// inactive.
	IdleThreshold Duration `yaml:"idle_threshold"`

	// SweepInterval is how often the idle sweep runs.
	SweepInterval Duration `yaml:"sweep_interval"`

	// FinalizeGrace is how long a finalized entry stays visible before
	// it is cleared.
	FinalizeGrace Duration `yaml:"finalize_grace"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		UpstreamURL:   "ws://127.0.0.1:8700/stream",
		ListenAddr:    "127.0.0.1:8701",
		Debounce:      Duration(50 * time.Millisecond),
		IdleThreshold: Duration(10 * time.Second),
		SweepInterval: Duration(2 * time.Second),
		FinalizeGrace: Duration(500 * time.Millisecond),
	}
}

// Load reads the config file at path. A missing file yields the defaults;
// fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// StreamOptions converts the timing settings into aggregator options.
func (c *Config) StreamOptions() stream.Options {
	return stream.Options{
		Debounce:      time.Duration(c.Debounce),
		IdleThreshold: time.Duration(c.IdleThreshold),
		SweepInterval: time.Duration(c.SweepInterval),
		FinalizeGrace: time.Duration(c.FinalizeGrace),
	}
}
