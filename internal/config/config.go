// Package config loads runtime settings for the steamguard CLI: defaults,
// then an optional JSON file, then command-line flags, each layer
// overriding the previous one.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the steamguard CLI.
//
// Fields:
//   - MafilesDir: directory holding manifest.json and the secret files.
//   - RequestTimeout: timeout applied to the HTTP transport talking to Steam.
type Config struct {
	MafilesDir     string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults. The store directory
// defaults to "steamguard/maFiles" under the user config directory, or
// "./maFiles" when that cannot be resolved.
func (c *Config) LoadDefaults() {
	c.MafilesDir = "maFiles"
	if dir, err := os.UserConfigDir(); err == nil {
		c.MafilesDir = filepath.Join(dir, "steamguard", "maFiles")
	}
	c.RequestTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// ManifestPath is the manifest location inside the store directory.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.MafilesDir, "manifest.json")
}
