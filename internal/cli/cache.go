package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depstage/pkg/config"
	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/store"
)

// cacheCommand creates the environment store management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the environment store",
	}

	cmd.AddCommand(c.cacheListCommand())
	cmd.AddCommand(c.cacheInfoCommand())
	cmd.AddCommand(c.cacheStatsCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cachePruneCommand())
	cmd.AddCommand(c.cacheClearCommand())

	return cmd
}

// openStore opens the configured store for a cache subcommand.
func (c *CLI) openStore(cmd *cobra.Command) (*store.Store, *config.Config, error) {
	cfg, err := config.NewLoader().LoadForRun(cmd, nil)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.CachePath, c.Logger)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

// cacheListCommand creates the "cache list" subcommand.
func (c *CLI) cacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staged environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			entries := st.Entries()
			if len(entries) == 0 {
				printInfo("Store is empty")
				return nil
			}

			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Result.CreatedAt.After(entries[j].Result.CreatedAt)
			})
			for _, e := range entries {
				fp := e.Result.Fingerprint
				if len(fp) > 12 {
					fp = fp[:12]
				}
				fmt.Println(StyleHighlight.Render(fp) +
					StyleDim.Render(fmt.Sprintf("  %s mode · %d packages · %s",
						e.Result.Mode, len(e.Result.Packages),
						e.Result.CreatedAt.Local().Format("2006-01-02 15:04"))))
			}
			return nil
		},
	}
}

// cacheInfoCommand creates the "cache info" subcommand.
func (c *CLI) cacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <fingerprint>",
		Short: "Show one staged environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			entry, ok := findEntry(st, args[0])
			if !ok {
				return errors.New(errors.ErrCodeNotFound, "no environment matches %q", args[0])
			}

			printKeyValue("Fingerprint", entry.Result.Fingerprint)
			printKeyValue("Mode", string(entry.Result.Mode))
			printKeyValue("Created", entry.Result.CreatedAt.Local().Format(time.RFC1123))
			printKeyValue("Directory", entry.Dir)
			printNewline()
			for _, pkg := range entry.Result.Packages {
				printPackage(pkg.Name, pkg.Version)
			}
			return nil
		},
	}
}

// cacheStatsCommand creates the "cache stats" subcommand.
func (c *CLI) cacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			j := st.Journal()
			if j == nil {
				printWarning("store journal unavailable, no statistics")
				return nil
			}

			records := j.Records()
			var size int64
			var hits int64
			for _, r := range records {
				size += r.SizeBytes
				hits += r.Hits
			}

			printKeyValue("Environments", fmt.Sprintf("%d", len(records)))
			printKeyValue("Total size", formatBytes(size))
			printKeyValue("Cache hits", fmt.Sprintf("%d", hits))
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the store root path",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			st.Close()
			fmt.Println(cfg.CachePath)
			return nil
		},
	}
}

// cachePruneCommand creates the "cache prune" subcommand.
func (c *CLI) cachePruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove environments not used recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			j := st.Journal()
			if j == nil {
				return errors.New(errors.ErrCodeInternal, "store journal unavailable, cannot determine entry ages")
			}

			cutoff := time.Now().Add(-olderThan)
			count := 0
			for _, record := range j.Records() {
				if record.LastUsedAt.After(cutoff) {
					continue
				}
				if err := st.Remove(record.Fingerprint); err != nil {
					printWarning("cannot remove %s: %v", record.Fingerprint, err)
					continue
				}
				count++
			}

			printSuccess("Pruned %d environments", count)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "remove environments unused for this long")
	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all staged environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			count := 0
			for _, entry := range st.Entries() {
				if err := st.Remove(entry.Result.Fingerprint); err != nil {
					printWarning("cannot remove %s: %v", entry.Result.Fingerprint, err)
					continue
				}
				count++
			}

			printSuccess("Cleared %d environments", count)
			printDetail("Directory: %s", cfg.CachePath)
			return nil
		},
	}
}

// findEntry resolves a possibly abbreviated fingerprint to an entry.
func findEntry(st *store.Store, prefix string) (*store.Entry, bool) {
	if entry, ok := st.Lookup(prefix); ok {
		return entry, true
	}
	for _, entry := range st.Entries() {
		if len(prefix) >= 6 && len(entry.Result.Fingerprint) >= len(prefix) &&
			entry.Result.Fingerprint[:len(prefix)] == prefix {
			return entry, true
		}
	}
	return nil, false
}

// formatBytes renders a byte count human-readably.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
