// Package config handles the global appscore configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents configuration stored in ~/.config/appscore/config.yml.
// Command-line flags and environment variables override these values.
type Config struct {
	APIKey        string  `yaml:"api_key,omitempty"`
	BaseURL       string  `yaml:"base_url,omitempty"`
	AffiliationID string  `yaml:"affiliation_id,omitempty"`
	RateLimit     float64 `yaml:"rate_limit,omitempty"`
	Workers       int     `yaml:"workers,omitempty"`
	CachePath     string  `yaml:"cache_path,omitempty"`
	TablePath     string  `yaml:"table_path,omitempty"`
	Years         []int   `yaml:"years,omitempty"`
}

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "appscore"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"

	// DefaultAffiliationID is the institutional affiliation applied when
	// neither the config file nor the flag sets one.
	DefaultAffiliationID = "60021379"
	// DefaultWorkers bounds concurrent record fetches.
	DefaultWorkers = 4
)

// cache caches the loaded config for the process lifetime.
var cache *Config

// Path returns the path to the config file. Respects XDG_CONFIG_HOME,
// defaults to ~/.config/appscore/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load loads the configuration file and applies defaults. Returns a
// default config (not an error) if the file doesn't exist.
func Load() (*Config, error) {
	if cache != nil {
		return cache, nil
	}

	cfg := &Config{}
	path := Path()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.CachePath = ExpandTilde(cfg.CachePath)
	cfg.TablePath = ExpandTilde(cfg.TablePath)
	applyDefaults(cfg)

	cache = cfg
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AffiliationID == "" {
		cfg.AffiliationID = DefaultAffiliationID
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.CachePath == "" {
		cfg.CachePath = defaultCachePath()
	}
}

// defaultCachePath places the cache under XDG_CACHE_HOME.
func defaultCachePath() string {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, ConfigDir, "publications.db")
}

// Reset clears the cached config. Useful for testing.
func Reset() {
	cache = nil
}

// ExpandTilde expands a leading ~/ to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
