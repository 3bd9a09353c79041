package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader wires viper's sources together in precedence order: defaults,
// then the user config file, then a project config found by walking up,
// then environment variables (DEPSTAGE_ prefix), then command flags.
type Loader struct{}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForRun loads the configuration for an engine invocation. args are
// the command arguments; the first one anchors project config discovery.
func (l *Loader) LoadForRun(cmd *cobra.Command, args []string) (*Config, error) {
	l.setupViperDefaults()
	l.loadUserConfig()
	l.loadProjectConfig(args)
	l.bindEnvironment()
	l.bindCommandFlags(cmd)

	return Load()
}

func (l *Loader) setupViperDefaults() {
	viper.SetDefault("mode", DefaultMode)
	viper.SetDefault("add_to_path", DefaultAddToPath)
	viper.SetDefault("path_var", DefaultPathVar)
	viper.SetDefault("index_username", DefaultIndexUsername)
	viper.SetDefault("workers", DefaultWorkers)
	viper.SetDefault("lock_timeout", DefaultLockTimeout)
	viper.SetDefault("listing_ttl", DefaultListingTTL)
}

// loadUserConfig reads ~/.config/depstage/config.* if present.
func (l *Loader) loadUserConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	dir := filepath.Join(home, ".config", "depstage")

	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		path := filepath.Join(dir, "config."+ext)

		if _, err := os.Stat(path); err == nil {
			viper.SetConfigFile(path)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadProjectConfig merges the nearest .depstage.* found by walking up
// from the script being launched (or the working directory).
func (l *Loader) loadProjectConfig(args []string) {
	dir, err := os.Getwd()
	if len(args) > 0 {
		if abs, aerr := filepath.Abs(args[0]); aerr == nil {
			dir, err = filepath.Dir(abs), nil
		}
	}
	if err != nil {
		return
	}

	if path := FindLocalConfig(dir); path != "" {
		viper.SetConfigFile(path)
		_ = viper.MergeInConfig()
	}
}

func (l *Loader) bindEnvironment() {
	viper.SetEnvPrefix("DEPSTAGE")
	viper.AutomaticEnv()
}

func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	for _, name := range []string{
		"mode", "cache_path", "bypass_cache", "forced_libs", "add_to_path",
		"path_var", "indexes", "index_username", "default_index", "profile",
		"manifest", "overrides", "workers", "lock_timeout", "listing_ttl",
		"redis_addr",
	} {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			_ = viper.BindPFlag(name, flag)
		}
	}
}
