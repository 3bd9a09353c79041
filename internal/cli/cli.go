// Package cli implements the depstage command-line interface.
package cli

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depstage/pkg/buildinfo"
	"github.com/matzehuels/depstage/pkg/cache"
	"github.com/matzehuels/depstage/pkg/config"
	"github.com/matzehuels/depstage/pkg/engine"
	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/index"
	"github.com/matzehuels/depstage/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "depstage"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// Exit codes by failure kind, mapped by the launcher from engine error
// codes. Zero and one follow shell convention; the rest let wrapping
// scripts distinguish why a launch failed.
const (
	ExitGeneric     = 1
	ExitParse       = 2
	ExitResolution  = 3
	ExitNetwork     = 4
	ExitIntegrity   = 5
	ExitLockTimeout = 6
)

// ExitCode maps an error to the process exit code for its failure kind.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeParse:
		return ExitParse
	case errors.ErrCodeVersionConflict, errors.ErrCodeAmbiguousVersion:
		return ExitResolution
	case errors.ErrCodeNetwork, errors.ErrCodeIndexUnavailable:
		return ExitNetwork
	case errors.ErrCodePackageIntegrity:
		return ExitIntegrity
	case errors.ErrCodeLockTimeout:
		return ExitLockTimeout
	default:
		return ExitGeneric
	}
}

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Depstage stages third-party libraries before launching a script",
		Long:         `Depstage resolves a script's declared dependencies, fetches and verifies the packages into a shared content-addressed store, and launches the script with the staged libraries on its search path.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.runCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Engine Factory
// =============================================================================

// session bundles everything one engine invocation needs, plus cleanup.
type session struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
	close  func()
}

// newSession loads configuration and assembles the engine: store, listing
// cache, credentials and index client.
func (c *CLI) newSession(cmd *cobra.Command, args []string) (*session, error) {
	cfg, err := config.NewLoader().LoadForRun(cmd, args)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.CachePath, c.Logger)
	if err != nil {
		return nil, err
	}

	listings := c.newListingCache(cmd.Context(), cfg, st)
	client := index.NewClient(cfg.IndexList(), index.Options{
		Listings:    listings,
		ListingTTL:  cfg.ListingTTL,
		Credentials: &index.FileCredentials{},
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Logger:      c.Logger,
	})

	return &session{
		cfg:    cfg,
		store:  st,
		engine: engine.New(cfg, st, client, c.Logger),
		close: func() {
			_ = listings.Close()
			_ = st.Close()
		},
	}, nil
}

// newListingCache picks the listing-cache backend: redis when configured,
// otherwise files under the store root. Failure degrades to no caching.
func (c *CLI) newListingCache(ctx context.Context, cfg *config.Config, st *store.Store) cache.Cache {
	if cfg.RedisAddr != "" {
		if rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr); err == nil {
			return rc
		}
		c.Logger.Warn("redis listing cache unavailable, falling back to files", "addr", cfg.RedisAddr)
	}

	fc, err := cache.NewFileCache(st.ListingsDir())
	if err != nil {
		c.Logger.Warn("listing cache disabled", "err", err)
		return cache.NewNullCache()
	}
	return fc
}
