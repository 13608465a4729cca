// Package config loads the capwatch configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/capwatch/internal/logging"
)

// FileName is the configuration file name inside Dir.
const FileName = "config.yaml"

// DefaultCapabilities are monitored when the file does not list any.
var DefaultCapabilities = []string{"microphone", "webcam", "location"}

// Dir returns the capwatch config directory. On Windows it is
// %APPDATA%\capwatch; elsewhere it respects XDG_CONFIG_HOME and defaults to
// ~/.config/capwatch.
func Dir() (string, error) {
	if runtime.GOOS == "windows" {
		if base := os.Getenv("APPDATA"); base != "" {
			return filepath.Join(base, "capwatch"), nil
		}
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "capwatch"), nil
}

// Path returns the default configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// LogConfig selects the structured logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the parsed configuration file.
type Config struct {
	Capabilities  []string  `yaml:"capabilities"`
	Log           LogConfig `yaml:"log"`
	SuppressEmpty bool      `yaml:"suppress_empty"`
	DBPath        string    `yaml:"db_path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Capabilities: append([]string(nil), DefaultCapabilities...),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults. If the file does not
// exist, the defaults are returned without an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate normalises capability names and checks the log settings.
// Capability names are lowercased, trimmed and deduplicated in order.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Capabilities))
	names := make([]string, 0, len(c.Capabilities))
	for _, raw := range c.Capabilities {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			return errors.New("empty capability name")
		}
		if strings.ContainsAny(name, `\/`) {
			return fmt.Errorf("capability %q must not contain path separators", raw)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return errors.New("no capabilities configured")
	}
	c.Capabilities = names

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "console", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
