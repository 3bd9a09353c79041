// Package manifest parses requirement manifests into ordered requirement
// lists.
//
// Two formats are supported: pinned-list files (one requirement per line,
// optional comparison operators) and locked files (TOML, exact versions with
// checksums). Declaration order is preserved because legacy-mode resolution
// depends on it.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/version"
)

// Requirement is a single declaration from a manifest. Immutable once parsed.
type Requirement struct {
	Name       string             // Normalized package name
	Constraint version.Constraint // Zero value means unconstrained
	Checksum   string             // sha256 hex, locked manifests only
	Index      string             // Declared source index URL, optional
	Order      int                // Declaration index across all input files
}

// Unconstrained reports whether the requirement carries no version constraint.
func (r Requirement) Unconstrained() bool { return r.Constraint.Any() }

// String formats the requirement as it would appear in a pinned-list manifest.
func (r Requirement) String() string {
	if r.Unconstrained() {
		return r.Name
	}
	return r.Name + r.Constraint.String()
}

// Manifest is the ordered requirement list of one resolution run, plus a
// hash of the raw file content used for fingerprinting.
type Manifest struct {
	Requirements []Requirement
	RawSHA256    string // Hash over the raw bytes of all input files, in order
}

// Parser reads one manifest format.
type Parser interface {
	// Parse reads the manifest at path and appends requirements to m,
	// numbering them from startOrder.
	Parse(path string, m *Manifest, startOrder int) error
	// Supports reports whether this parser handles the given filename.
	Supports(filename string) bool
	// Type returns the format identifier ("pinned", "locked").
	Type() string
}

// Detect picks the parser for a manifest path by filename. The pinned-list
// parser acts as the fallback for unknown names.
func Detect(path string) Parser {
	name := filepath.Base(path)
	for _, p := range []Parser{&Locked{}, &Pinned{}} {
		if p.Supports(name) {
			return p
		}
	}
	return &Pinned{}
}

// ParseFiles parses one or more manifest files into a single Manifest.
// Requirements concatenate in file order and the raw hash covers all file
// contents in order, so any edit to any file changes the fingerprint.
func ParseFiles(paths ...string) (*Manifest, error) {
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrCodeParse, "no manifest files given")
	}

	m := &Manifest{}
	hash := sha256.New()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParse, err, "cannot read manifest %s", path)
		}
		hash.Write(data)

		if err := Detect(path).Parse(path, m, len(m.Requirements)); err != nil {
			return nil, err
		}
	}

	m.RawSHA256 = hex.EncodeToString(hash.Sum(nil))
	return m, nil
}

// Normalize canonicalizes a package name: lowercase with underscores
// folded to hyphens, matching how indexes store distribution names.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

func parseError(path string, line int, text, reason string) error {
	return &errors.ParseError{File: path, Line: line, Text: text, Reason: reason}
}
