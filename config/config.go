// Package config handles uatu.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/uatu/store"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "uatu.toml"

// Config represents a uatu.toml file.
type Config struct {
	Trace Trace `toml:"trace" json:"trace"`
	Store Store `toml:"store" json:"store"`
	Log   Log   `toml:"log" json:"log"`

	// Dir is the directory containing the uatu.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Trace configures the tracer itself.
type Trace struct {
	Debug     bool `toml:"debug" json:"debug"`
	MaxEvents int  `toml:"max_events" json:"max_events"`
}

// Store configures where events are persisted besides memory.
type Store struct {
	Backend     string `toml:"backend" json:"backend"`
	Path        string `toml:"path" json:"path"`
	URL         string `toml:"url" json:"url"`
	KeyPrefix   string `toml:"key_prefix" json:"key_prefix"`
	Timeout     string `toml:"timeout" json:"timeout"`
	ClearOnOpen bool   `toml:"clear_on_open" json:"clear_on_open"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "none"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "uatu"
	}
	if c.Store.Timeout == "" {
		c.Store.Timeout = "2s"
	}
}

// Load parses a uatu.toml file from the given directory, applies defaults and
// validates the result.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()

	if err := Validate(&c); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a uatu.toml file, then loads
// it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// StoreTimeout returns the parsed store timeout.
func (c *Config) StoreTimeout() time.Duration {
	d, err := time.ParseDuration(c.Store.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// StoreConfig converts the [store] section for store.Open. Relative paths
// are resolved against the config file's directory.
func (c *Config) StoreConfig() store.Config {
	path := c.Store.Path
	if path != "" && !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	return store.Config{
		Backend:     c.Store.Backend,
		Path:        path,
		URL:         c.Store.URL,
		KeyPrefix:   c.Store.KeyPrefix,
		ClearOnOpen: c.Store.ClearOnOpen,
	}
}

// LogFile returns the log file path, or nil to log to stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	path := c.Log.File
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	return &path
}
