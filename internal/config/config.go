// Package config loads the optional launcher configuration file and the
// environment switches the launcher honors. The wrapped tool's own
// configuration (.buckconfig) is never parsed here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the optional per-project launcher configuration file.
const FileName = ".buckw.yaml"

// Config holds launcher tunables. All fields have working defaults; the
// config file only overrides them.
type Config struct {
	Daemon DaemonConfig
}

// DaemonConfig exposes the supervisor's polling and recycling policy.
type DaemonConfig struct {
	// MaxRunCount bounds consecutive reuses of one daemon before a forced
	// recycle.
	MaxRunCount int

	// Port discovery: attempts x interval bounds how long a freshly spawned
	// daemon gets to announce its port.
	PortAttempts int
	PortInterval time.Duration

	// Kill: attempts x interval bounds the graceful-termination wait before
	// escalating to a forced kill.
	KillAttempts int
	KillInterval time.Duration

	// ClientTimeoutMillis is handed to the nailgun server at spawn time.
	ClientTimeoutMillis int
}

// rawConfig is the on-disk shape. Durations are strings ("100ms", "2s")
// parsed with time.ParseDuration.
type rawConfig struct {
	Daemon struct {
		MaxRunCount         int    `yaml:"max_run_count"`
		PortAttempts        int    `yaml:"port_attempts"`
		PortInterval        string `yaml:"port_interval"`
		KillAttempts        int    `yaml:"kill_attempts"`
		KillInterval        string `yaml:"kill_interval"`
		ClientTimeoutMillis int    `yaml:"client_timeout_millis"`
	} `yaml:"daemon"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			MaxRunCount:         64,
			PortAttempts:        100,
			PortInterval:        100 * time.Millisecond,
			KillAttempts:        100,
			KillInterval:        100 * time.Millisecond,
			ClientTimeoutMillis: 60000,
		},
	}
}

// Load reads the launcher config file at path. A missing file is not an
// error; defaults are returned. Invalid YAML is an error, not silently
// ignored.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read launcher config: %w", err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse launcher config %s: %w", path, err)
	}
	cfg.Daemon.MaxRunCount = raw.Daemon.MaxRunCount
	cfg.Daemon.PortAttempts = raw.Daemon.PortAttempts
	cfg.Daemon.KillAttempts = raw.Daemon.KillAttempts
	cfg.Daemon.ClientTimeoutMillis = raw.Daemon.ClientTimeoutMillis
	if cfg.Daemon.PortInterval, err = parseInterval(raw.Daemon.PortInterval, "port_interval"); err != nil {
		return nil, err
	}
	if cfg.Daemon.KillInterval, err = parseInterval(raw.Daemon.KillInterval, "kill_interval"); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// parseInterval parses a duration field; empty means "use the default".
func parseInterval(raw, field string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}

// normalize clamps zero/negative values back to defaults so a sparse config
// file never disables a bound entirely.
func (c *Config) normalize() {
	def := Default()
	if c.Daemon.MaxRunCount <= 0 {
		c.Daemon.MaxRunCount = def.Daemon.MaxRunCount
	}
	if c.Daemon.PortAttempts <= 0 {
		c.Daemon.PortAttempts = def.Daemon.PortAttempts
	}
	if c.Daemon.PortInterval <= 0 {
		c.Daemon.PortInterval = def.Daemon.PortInterval
	}
	if c.Daemon.KillAttempts <= 0 {
		c.Daemon.KillAttempts = def.Daemon.KillAttempts
	}
	if c.Daemon.KillInterval <= 0 {
		c.Daemon.KillInterval = def.Daemon.KillInterval
	}
	if c.Daemon.ClientTimeoutMillis <= 0 {
		c.Daemon.ClientTimeoutMillis = def.Daemon.ClientTimeoutMillis
	}
}
