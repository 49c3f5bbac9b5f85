package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds user preferences. Zero fields in a file take the defaults.
type Config struct {
	SampleRate      int     `yaml:"sampleRate"`
	BufferFrames    int     `yaml:"bufferFrames"`
	Tempo           float64 `yaml:"tempo"`
	Channels        int     `yaml:"channels"`   // channels in a new document
	Instrument      string  `yaml:"instrument"` // instrument loaded into new channels
	LogLevel        string  `yaml:"logLevel"`
	RunoutSeconds   float64 `yaml:"runoutSeconds"`
	RunoutThreshold float64 `yaml:"runoutThreshold"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SampleRate:      48000,
		BufferFrames:    512,
		Tempo:           120,
		Channels:        2,
		Instrument:      "fm",
		LogLevel:        "info",
		RunoutSeconds:   2,
		RunoutThreshold: 1e-4,
	}
}

// fill replaces unset fields with defaults.
func (c *Config) fill() {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BufferFrames <= 0 {
		c.BufferFrames = d.BufferFrames
	}
	if c.Tempo <= 0 {
		c.Tempo = d.Tempo
	}
	if c.Channels < 0 {
		c.Channels = d.Channels
	}
	if c.Instrument == "" {
		c.Instrument = d.Instrument
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.RunoutSeconds <= 0 {
		c.RunoutSeconds = d.RunoutSeconds
	}
	if c.RunoutThreshold <= 0 {
		c.RunoutThreshold = d.RunoutThreshold
	}
}

// Level parses LogLevel, defaulting to Info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "plink"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "plink"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from the default path, or returns defaults if there
// is none.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	cfg.fill()
	return cfg, nil
}

// Save writes the config to the default path.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
