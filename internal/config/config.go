// Package config loads the broker's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names an alternate config file.
const EnvConfigPath = "SB_BROKER_CONFIG"

const appDirName = "scriptbridge"

// Config is the broker configuration.
type Config struct {
	HostsFile     string        `yaml:"hosts_file"`
	DataDir       string        `yaml:"data_dir"`
	LogFile       string        `yaml:"log_file"`
	LogLevel      string        `yaml:"log_level"`
	Browser       string        `yaml:"browser"`
	ManifestDir   string        `yaml:"manifest_dir"`
	BrokerPath    string        `yaml:"broker_path"`
	ScriptTimeout time.Duration `yaml:"script_timeout"`
	MaxFrameSize  int           `yaml:"max_frame_size"`
	MaxOutputSize int           `yaml:"max_output_size"`
	ManageAddr    string        `yaml:"manage_addr"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel:      "info",
		Browser:       "chrome",
		ScriptTimeout: 30 * time.Second,
		MaxFrameSize:  64 << 20,
		MaxOutputSize: 4 << 20,
		ManageAddr:    "127.0.0.1:8765",
	}
}

// DefaultDataDir is <UserConfigDir>/scriptbridge.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDirName)
}

// Load reads the first config file found: explicit path, $SB_BROKER_CONFIG,
// then the data directory. No file yields defaults; a file that exists but
// cannot be parsed is an error.
func Load(explicit string) (Config, error) {
	candidates := []string{explicit, os.Getenv(EnvConfigPath), filepath.Join(DefaultDataDir(), "config.yaml")}

	for i, path := range candidates {
		if path == "" {
			continue
		}
		cfg, err := loadFile(path)
		if errors.Is(err, os.ErrNotExist) && i > 0 {
			continue
		}
		if err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	cfg := Default()
	cfg.applyDefaults()
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.Source = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.HostsFile == "" {
		c.HostsFile = filepath.Join(c.DataDir, "hosts.json")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "broker.log")
	}
}

// Validate rejects values the broker cannot run with.
func (c Config) Validate() error {
	if c.ScriptTimeout < 0 {
		return fmt.Errorf("script_timeout must not be negative")
	}
	// yaml.v3 reads a bare integer as nanoseconds.
	if c.ScriptTimeout > 0 && c.ScriptTimeout < time.Millisecond {
		return fmt.Errorf("script_timeout %d is below 1ms; write a duration such as \"30s\"", int64(c.ScriptTimeout))
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("max_frame_size must not be negative")
	}
	if c.MaxOutputSize < 0 {
		return fmt.Errorf("max_output_size must not be negative")
	}
	return nil
}
