package manifest

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depstage/pkg/version"
)

// Locked parses lock manifests: TOML files with one [[package]] block per
// package carrying an exact version and a content checksum.
//
//	[[package]]
//	name = "requests"
//	version = "2.31.0"
//	checksum = "9d5c6e2b..."
//	source = "https://index.internal.example.com"
//
// Lock manifests always yield fully pinned requirements, so resolution
// never needs to consult an index for them.
type Locked struct{}

// Type returns the format identifier.
func (l *Locked) Type() string { return "locked" }

// Supports reports whether the filename looks like a lock manifest.
func (l *Locked) Supports(name string) bool {
	return strings.HasSuffix(name, ".lock")
}

type lockFile struct {
	Packages []lockPackage `toml:"package"`
}

type lockPackage struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Checksum string `toml:"checksum"`
	Source   string `toml:"source"`
}

// Parse reads the lock file at path and appends its requirements to m.
// Every entry must carry a name and an exact version; checksums must be
// sha256 hex when present.
func (l *Locked) Parse(path string, m *Manifest, startOrder int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return parseError(path, 0, "", "cannot open manifest")
	}

	var lock lockFile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return parseError(path, 0, "", "malformed TOML: "+err.Error())
	}

	order := startOrder
	for i, pkg := range lock.Packages {
		if pkg.Name == "" {
			return parseError(path, i+1, "", "package entry missing name")
		}
		if pkg.Version == "" {
			return parseError(path, i+1, pkg.Name, "package entry missing version")
		}

		v, err := version.Parse(pkg.Version)
		if err != nil {
			return parseError(path, i+1, pkg.Name, "invalid version "+pkg.Version)
		}
		if pkg.Checksum != "" && !validChecksum(pkg.Checksum) {
			return parseError(path, i+1, pkg.Name, "invalid sha256 checksum")
		}

		m.Requirements = append(m.Requirements, Requirement{
			Name:       Normalize(pkg.Name),
			Constraint: version.Constraint{Op: version.OpEqual, Version: v},
			Checksum:   strings.ToLower(pkg.Checksum),
			Index:      pkg.Source,
			Order:      order,
		})
		order++
	}
	return nil
}

// validChecksum reports whether s is a 64-character sha256 hex digest.
func validChecksum(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
