// Package config materializes the engine configuration from viper. All
// sources (flags, environment, config files) are merged here into an
// explicit Config value; the engine packages never read the process
// environment themselves.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/index"
	"github.com/matzehuels/depstage/pkg/resolve"
)

// Default configuration values.
const (
	DefaultMode          = "strict"
	DefaultAddToPath     = true
	DefaultPathVar       = "DEPSTAGE_PATH"
	DefaultIndexUsername = "pat"
	DefaultWorkers       = 4
	DefaultLockTimeout   = 60 * time.Second
	DefaultListingTTL    = 30 * time.Minute
)

// Config holds every switch the engine recognizes.
type Config struct {
	// Resolution mode: strict, newest or legacy
	Mode resolve.Mode

	// Environment store root
	CachePath string

	// Skip cache lookup, always recompute
	BypassCache bool

	// Library paths prepended before every resolved package
	ForcedLibs []string

	// Append the composed paths to the search-path variable
	AddToPath bool
	// Search-path variable name
	PathVar string

	// Index base URLs in query order
	Indexes []string
	// Basic-auth username when a token is found
	IndexUsername string
	// Index prepended at rank 0 ahead of Indexes
	DefaultIndex string

	// Logging verbosity (0 quiet, 1 info, 2 debug)
	Verbosity int

	// Emit per-stage timing on completion
	Profile bool

	// Explicit manifest paths, overriding discovery
	Manifests []string

	// Path to a version-overrides file
	OverridesFile string

	// Fetch worker pool size
	Workers int

	// How long a miss waits for the fingerprint lock
	LockTimeout time.Duration

	// Version-listing cache expiry
	ListingTTL time.Duration

	// Optional redis backend for the listing cache
	RedisAddr string
}

// Load materializes a Config from the current viper state and applies
// defaults and validation.
func Load() (*Config, error) {
	mode, err := resolve.ParseMode(viper.GetString("mode"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode:          mode,
		CachePath:     viper.GetString("cache_path"),
		BypassCache:   viper.GetBool("bypass_cache"),
		ForcedLibs:    splitList(viper.GetString("forced_libs")),
		AddToPath:     viper.GetBool("add_to_path"),
		PathVar:       viper.GetString("path_var"),
		Indexes:       splitList(viper.GetString("indexes")),
		IndexUsername: viper.GetString("index_username"),
		DefaultIndex:  viper.GetString("default_index"),
		Verbosity:     viper.GetInt("verbosity"),
		Profile:       viper.GetBool("profile"),
		Manifests:     splitList(viper.GetString("manifest")),
		OverridesFile: viper.GetString("overrides"),
		Workers:       viper.GetInt("workers"),
		LockTimeout:   viper.GetDuration("lock_timeout"),
		ListingTTL:    viper.GetDuration("listing_ttl"),
		RedisAddr:     viper.GetString("redis_addr"),
	}

	if cfg.CachePath == "" {
		cfg.CachePath = defaultCachePath()
	}
	if cfg.PathVar == "" {
		cfg.PathVar = DefaultPathVar
	}
	if cfg.IndexUsername == "" {
		cfg.IndexUsername = DefaultIndexUsername
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = DefaultListingTTL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks index URLs and resolves forced-library paths.
func (c *Config) Validate() error {
	for _, url := range c.Indexes {
		if err := errors.ValidateIndexURL(url); err != nil {
			return err
		}
	}
	if c.DefaultIndex != "" {
		if err := errors.ValidateIndexURL(c.DefaultIndex); err != nil {
			return err
		}
	}

	for i, lib := range c.ForcedLibs {
		if abs, err := filepath.Abs(lib); err == nil {
			c.ForcedLibs[i] = abs
		}
	}

	if abs, err := filepath.Abs(c.CachePath); err == nil {
		c.CachePath = abs
	}
	return nil
}

// IndexList builds the ordered index configuration: the default index at
// rank 0, then the extra indexes in declaration order.
func (c *Config) IndexList() []index.Index {
	var out []index.Index
	rank := 0
	if c.DefaultIndex != "" {
		out = append(out, index.Index{URL: trimSlash(c.DefaultIndex), Username: c.IndexUsername, Rank: rank})
		rank++
	}
	for _, url := range c.Indexes {
		out = append(out, index.Index{URL: trimSlash(url), Username: c.IndexUsername, Rank: rank})
		rank++
	}
	return out
}

// splitList parses a semicolon-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func trimSlash(url string) string { return strings.TrimRight(url, "/") }

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "depstage")
	}
	return filepath.Join(home, ".cache", "depstage")
}
