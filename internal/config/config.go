package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the optional span configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Nil means "not set".
type DefaultsConfig struct {
	FreePercent *int    `toml:"free_percent"`
	Retries     *int    `toml:"retries"`
	RetryDelay  *string `toml:"retry_delay"`
	BWLimit     *string `toml:"bwlimit"`
	StateFile   *string `toml:"state_file"`
	LogFile     *string `toml:"log_file"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "span", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file from an explicit path. A missing file yields
// a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("parse %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Apply overlays the file defaults onto s and returns the result.
func (d DefaultsConfig) Apply(s Settings) (Settings, error) {
	if d.FreePercent != nil {
		s.FreeSpacePercent = *d.FreePercent
	}
	if d.Retries != nil {
		s.Retries = *d.Retries
	}
	if d.RetryDelay != nil {
		delay, err := time.ParseDuration(*d.RetryDelay)
		if err != nil {
			return s, fmt.Errorf("retry_delay: %w", err)
		}
		s.RetryDelay = delay
	}
	return s, nil
}
