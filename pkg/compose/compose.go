// Package compose turns a committed store entry into the environment a
// launched script sees: an ordered search path over the staged artifact
// directories plus the variable assignments that export it.
package compose

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/depstage/pkg/store"
)

// DefaultPathVar is the environment variable the search path is exported
// under when no override is configured.
const DefaultPathVar = "DEPSTAGE_PATH"

// Options controls composition.
type Options struct {
	// ForcedLibs are directories prepended before every resolved package,
	// in declaration order.
	ForcedLibs []string

	// AddToSearchPath appends the process's existing search path value
	// after the composed entries. Defaults decided by the caller; the
	// engine turns it on unless configured off.
	AddToSearchPath bool

	// PathVar names the exported variable. Empty means DefaultPathVar.
	PathVar string
}

// Composition is a ready-to-export environment.
type Composition struct {
	Paths    []string          // Ordered library search path
	BinPaths []string          // Executable directories found under artifacts
	Env      map[string]string // Variable assignments to apply
}

// Compose builds the environment for a committed entry. Forced libraries
// come first, then each resolved package's artifact directory in
// resolution order; duplicates keep their first position.
func Compose(entry *store.Entry, opts Options) *Composition {
	comp := &Composition{Env: make(map[string]string)}
	seen := make(map[string]bool)

	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		comp.Paths = append(comp.Paths, path)
	}

	for _, lib := range opts.ForcedLibs {
		add(lib)
	}
	for _, pkg := range entry.Result.Packages {
		dir := pkg.Path
		if dir == "" {
			dir = entry.ArtifactDir(pkg.Name)
		}
		add(dir)

		// Packages may ship executables alongside their libraries.
		if bin := filepath.Join(dir, "bin"); isDir(bin) {
			comp.BinPaths = append(comp.BinPaths, bin)
		}
	}

	pathVar := opts.PathVar
	if pathVar == "" {
		pathVar = DefaultPathVar
	}

	value := strings.Join(comp.Paths, string(os.PathListSeparator))
	if opts.AddToSearchPath {
		if existing := os.Getenv(pathVar); existing != "" {
			value = value + string(os.PathListSeparator) + existing
		}
	}
	comp.Env[pathVar] = value

	if len(comp.BinPaths) > 0 {
		bins := strings.Join(comp.BinPaths, string(os.PathListSeparator))
		if existing := os.Getenv("PATH"); existing != "" {
			bins = bins + string(os.PathListSeparator) + existing
		}
		comp.Env["PATH"] = bins
	}
	return comp
}

// Apply exports the composition into this process's environment.
func (c *Composition) Apply() error {
	for key, value := range c.Env {
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Environ returns os.Environ() with the composition's assignments applied,
// suitable for handing to exec.Cmd without mutating this process.
func (c *Composition) Environ() []string {
	env := os.Environ()
	for key, value := range c.Env {
		prefix := key + "="
		replaced := false
		for i, kv := range env {
			if strings.HasPrefix(kv, prefix) {
				env[i] = prefix + value
				replaced = true
				break
			}
		}
		if !replaced {
			env = append(env, prefix+value)
		}
	}
	return env
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
