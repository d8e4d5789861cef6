package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Token string `yaml:"token"`

	PollTick     time.Duration `yaml:"-"`
	RawTick      string        `yaml:"poll_tick"`
	RefreshDelay time.Duration `yaml:"-"`
	RawDelay     string        `yaml:"refresh_delay"`

	StaleAfter time.Duration `yaml:"-"`
	RawStale   string        `yaml:"stale_after"`
	DepsLabel  string        `yaml:"dependencies_label"`

	StateFile string `yaml:"state_file"`
	Sort      string `yaml:"sort"`

	LogFile string    `yaml:"log_file"`
	Log     LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// envVarPattern matches ${VAR_NAME} references in the config file.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if c.Token == "" {
		c.Token = os.Getenv("GITHUB_TOKEN")
	}

	if c.RawTick == "" {
		c.RawTick = "1m"
	}
	tick, err := time.ParseDuration(c.RawTick)
	if err != nil {
		return fmt.Errorf("parse poll_tick %q: %w", c.RawTick, err)
	}
	c.PollTick = tick

	if c.RawDelay == "" {
		c.RawDelay = "10m"
	}
	delay, err := time.ParseDuration(c.RawDelay)
	if err != nil {
		return fmt.Errorf("parse refresh_delay %q: %w", c.RawDelay, err)
	}
	c.RefreshDelay = delay

	if c.RawStale == "" {
		c.RawStale = "84h"
	}
	stale, err := time.ParseDuration(c.RawStale)
	if err != nil {
		return fmt.Errorf("parse stale_after %q: %w", c.RawStale, err)
	}
	c.StaleAfter = stale

	if c.DepsLabel == "" {
		c.DepsLabel = "dependencies"
	}
	if c.Sort == "" {
		c.Sort = "created"
	}

	if c.StateFile == "" || c.LogFile == "" {
		dir := stateDir()
		if c.StateFile == "" {
			c.StateFile = filepath.Join(dir, "state.db")
		}
		if c.LogFile == "" {
			c.LogFile = filepath.Join(dir, "logs", "pullwatch.log")
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

func (c *Config) validate() error {
	if c.Token == "" {
		return fmt.Errorf("token required (set token or GITHUB_TOKEN)")
	}
	if c.PollTick <= 0 {
		return fmt.Errorf("poll_tick must be positive, got %s", c.RawTick)
	}
	if c.RefreshDelay < c.PollTick {
		return fmt.Errorf("refresh_delay %s must be at least poll_tick %s", c.RawDelay, c.RawTick)
	}
	switch c.Sort {
	case "created", "priority":
	default:
		return fmt.Errorf("invalid sort %q (created|priority)", c.Sort)
	}
	return nil
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pullwatch"
	}
	return filepath.Join(home, ".pullwatch")
}
