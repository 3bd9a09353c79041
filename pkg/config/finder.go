package config

import (
	"os"
	"path/filepath"
)

// manifestNames are the file names manifest discovery recognizes, in
// preference order. A lockfile next to a pinned list wins.
var manifestNames = []string{"depstage.lock", "requirements.lock", "requirements.txt"}

// FindLocalConfig finds a project config file by walking up from dir.
func FindLocalConfig(dir string) string {
	for {
		for _, ext := range []string{"yml", "yaml", "json", "toml"} {
			path := filepath.Join(dir, ".depstage."+ext)

			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// FindManifest locates the nearest manifest by walking up from dir.
// Returns an empty string when no directory on the way to the root holds
// one.
func FindManifest(dir string) string {
	for {
		for _, name := range manifestNames {
			path := filepath.Join(dir, name)

			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
