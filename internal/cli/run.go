package cli

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depstage/pkg/config"
	"github.com/matzehuels/depstage/pkg/errors"
)

// runCommand creates the run command: prepare the environment, then launch
// the script with the staged libraries on its search path.
func (c *CLI) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] <script> [args...]",
		Short: "Launch a script with its dependencies staged",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The kill switch skips the engine entirely; the script runs
			// against whatever environment already exists.
			if os.Getenv("DEPSTAGE_DISABLE") != "" {
				c.Logger.Warn("depstage disabled, launching without staging")
				return c.launch(cmd, args, nil)
			}

			sess, err := c.newSession(cmd, args)
			if err != nil {
				return err
			}
			defer sess.close()

			manifests, err := locateManifests(sess.cfg, args[0])
			if err != nil {
				return err
			}

			spin := newSpinnerWithContext(cmd.Context(), "staging dependencies")
			spin.Start()
			out, err := sess.engine.Run(cmd.Context(), manifests...)
			spin.Stop()
			if err != nil {
				return err
			}

			if out.Degraded {
				printWarning("using a previously staged environment (lock wait timed out)")
			}
			c.Logger.Debug("environment ready",
				"fingerprint", out.Entry.Result.Fingerprint, "cached", out.CacheHit)

			if out.Profile != nil {
				for _, line := range out.Profile.Lines() {
					printDetail("%s", line)
				}
			}

			return c.launch(cmd, args, out.Composition.Environ())
		},
	}

	addEngineFlags(cmd)
	return cmd
}

// launch executes the script with inherited stdio. A nil env launches with
// the current process environment.
func (c *CLI) launch(cmd *cobra.Command, args []string, env []string) error {
	script := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
	script.Stdin = os.Stdin
	script.Stdout = os.Stdout
	script.Stderr = os.Stderr
	if env != nil {
		script.Env = env
	}

	if err := script.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Propagate the script's own exit code untouched.
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	return nil
}

// locateManifests returns the manifest files for this invocation: the
// explicit configuration override when present, otherwise the nearest
// manifest walking up from the script.
func locateManifests(cfg *config.Config, script string) ([]string, error) {
	if len(cfg.Manifests) > 0 {
		return cfg.Manifests, nil
	}

	dir, err := filepath.Abs(filepath.Dir(script))
	if err != nil {
		dir, _ = os.Getwd()
	}
	if m := config.FindManifest(dir); m != "" {
		return []string{m}, nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "no manifest found from %s upward (looked for %s)",
		dir, "depstage.lock, requirements.lock, requirements.txt")
}

// addEngineFlags registers the engine configuration flags shared by run
// and resolve. Names match viper keys so the loader can bind them.
func addEngineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("mode", "", "resolution mode: strict, newest or legacy")
	flags.String("cache_path", "", "environment store root")
	flags.Bool("bypass_cache", false, "skip store lookup and recompute")
	flags.String("forced_libs", "", "semicolon-separated library paths staged first")
	flags.Bool("add_to_path", true, "append composed paths to the search-path variable")
	flags.String("path_var", "", "search-path variable name")
	flags.String("indexes", "", "semicolon-separated index URLs, in query order")
	flags.String("index_username", "", "basic-auth username for authenticated indexes")
	flags.String("default_index", "", "index queried before all others")
	flags.Bool("profile", false, "print per-stage timings")
	flags.String("manifest", "", "semicolon-separated manifest paths, overriding discovery")
	flags.String("overrides", "", "version overrides file")
	flags.Int("workers", 0, "fetch worker pool size")
	flags.Duration("lock_timeout", 0, "how long to wait for the environment lock")
	flags.Duration("listing_ttl", 0, "version listing cache expiry")
	flags.String("redis_addr", "", "redis address for the listing cache")
}
