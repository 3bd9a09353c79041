package resolve

import (
	"encoding/json"
	"time"
)

// ResolvedPackage is one package pinned to a concrete version.
// Exactly one ResolvedPackage exists per distinct package name in a Result.
type ResolvedPackage struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Index    string `json:"index,omitempty"`    // Originating index base URL
	Checksum string `json:"checksum,omitempty"` // sha256 hex; filled by fetch when unlocked
	Path     string `json:"-"`                  // Local artifact dir; filled at compose time
}

// Result is the outcome of one resolution run. Packages keep manifest
// declaration order so legacy-mode output is reproducible.
type Result struct {
	Fingerprint string            `json:"fingerprint"`
	Mode        Mode              `json:"mode"`
	Packages    []ResolvedPackage `json:"packages"`
	CreatedAt   time.Time         `json:"created_at"`
}

// canonicalResult is the deterministic subset of Result: everything except
// CreatedAt and local paths.
type canonicalResult struct {
	Fingerprint string            `json:"fingerprint"`
	Mode        Mode              `json:"mode"`
	Packages    []ResolvedPackage `json:"packages"`
}

// Canonical returns a deterministic byte encoding of the result. Two
// resolutions of the same manifest, mode and available-version universe
// produce byte-identical output; timestamps are excluded.
func (r *Result) Canonical() []byte {
	data, _ := json.Marshal(canonicalResult{
		Fingerprint: r.Fingerprint,
		Mode:        r.Mode,
		Packages:    r.Packages,
	})
	return data
}

// Package returns the resolved package with the given name, or nil.
func (r *Result) Package(name string) *ResolvedPackage {
	for i := range r.Packages {
		if r.Packages[i].Name == name {
			return &r.Packages[i]
		}
	}
	return nil
}
