package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// resolveCommand creates the resolve command: prepare (or look up) the
// environment and print it without launching anything.
func (c *CLI) resolveCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve [flags] [manifest...]",
		Short: "Resolve and stage a manifest without launching a script",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.newSession(cmd, args)
			if err != nil {
				return err
			}
			defer sess.close()

			manifests := args
			if len(manifests) == 0 {
				manifests, err = locateManifests(sess.cfg, ".")
				if err != nil {
					return err
				}
			}

			prog := newProgress(c.Logger)
			out, err := sess.engine.Run(cmd.Context(), manifests...)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Resolved %d packages", len(out.Entry.Result.Packages)))

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out.Entry.Result)
			}

			printEnvironment(out.Entry.Result.Fingerprint, out.CacheHit, out.Entry.Result.Mode)
			for _, pkg := range out.Entry.Result.Packages {
				printPackage(pkg.Name, pkg.Version)
			}
			printNewline()
			for _, path := range out.Composition.Paths {
				printFile(path)
			}
			if out.Profile != nil {
				printNewline()
				for _, line := range out.Profile.Lines() {
					printDetail("%s", line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution record as JSON")
	addEngineFlags(cmd)
	return cmd
}

// printEnvironment prints the header line for a resolved environment.
func printEnvironment(fingerprint string, cached bool, mode any) {
	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	printSuccess("environment %s (%v mode, %s)", StyleHighlight.Render(short), mode, cachedLabel(cached))
}

// printPackage prints one resolved package line.
func printPackage(name, version string) {
	fmt.Println("  " + StyleValue.Render(name) + StyleDim.Render("==") + StyleNumber.Render(version))
}

func cachedLabel(cached bool) string {
	if cached {
		return styleCached.Render(iconCached)
	}
	return styleComputed.Render(iconFresh)
}
