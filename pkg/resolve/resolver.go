// Package resolve computes a concrete (package, version) set from a
// manifest under one of three policies.
//
// The three modes settle conflicting constraints differently:
//
//   - strict: all declared constraints for a package must agree; an
//     unconstrained requirement must be unambiguous.
//   - newest: the highest available version satisfying every declared
//     constraint wins.
//   - legacy: the first declaration for a package fixes its version and
//     later declarations are silently superseded, reproducing load-order
//     resolution. Legacy mode never raises conflict errors.
//
// Given the same manifest, mode and available-version universe, resolution
// is deterministic: Result.Canonical() is byte-identical across runs.
package resolve

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/manifest"
	"github.com/matzehuels/depstage/pkg/version"
)

// Mode selects the conflict-resolution policy.
type Mode string

// The supported resolution modes.
const (
	ModeStrict Mode = "strict"
	ModeNewest Mode = "newest"
	ModeLegacy Mode = "legacy"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeNewest, ModeLegacy:
		return Mode(s), nil
	case "":
		return ModeStrict, nil
	}
	return "", errors.New(errors.ErrCodeInvalidConfig, "unknown resolution mode %q (want strict, newest or legacy)", s)
}

// Universe lists the versions of a package available for resolution,
// typically backed by the index client. The returned index is the base URL
// of the index that published the listing.
type Universe interface {
	Versions(ctx context.Context, name string) (versions []string, index string, err error)
}

// UniverseFunc adapts a function to the Universe interface.
type UniverseFunc func(ctx context.Context, name string) ([]string, string, error)

// Versions calls f.
func (f UniverseFunc) Versions(ctx context.Context, name string) ([]string, string, error) {
	return f(ctx, name)
}

// Resolver computes resolution results.
type Resolver struct {
	universe Universe
	logger   *log.Logger

	// Known holds pre-approved candidate versions per package, typically
	// versions already present in the store from earlier runs. They are
	// consulted before the universe so warm resolutions stay offline.
	Known map[string][]string

	// DefaultIndex is recorded as the originating index for quick-pinned
	// packages that never touch the universe.
	DefaultIndex string
}

// New creates a Resolver over the given universe.
func New(universe Universe, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{universe: universe, logger: logger}
}

// group is the set of declarations seen for one package name.
type group struct {
	name     string
	set      version.Set
	reqs     []manifest.Requirement
	firstPos int // Position of the first declaration, for output ordering
}

// Resolve computes the resolution of m under mode. The fingerprint is not
// filled in; the caller stamps it after computing the store key.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.Manifest, mode Mode) (*Result, error) {
	groups := groupRequirements(m)

	result := &Result{
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		Packages:  make([]ResolvedPackage, 0, len(groups)),
	}

	for _, g := range groups {
		var (
			pkg ResolvedPackage
			err error
		)
		switch mode {
		case ModeLegacy:
			pkg, err = r.resolveLegacy(ctx, g)
		case ModeNewest:
			pkg, err = r.resolveNewest(ctx, g)
		default:
			pkg, err = r.resolveStrict(ctx, g)
		}
		if err != nil {
			return nil, err
		}
		result.Packages = append(result.Packages, pkg)
	}
	return result, nil
}

// groupRequirements collects declarations per package name, preserving the
// order in which each name first appears.
func groupRequirements(m *manifest.Manifest) []group {
	byName := make(map[string]*group)
	var ordered []*group

	for _, req := range m.Requirements {
		g, ok := byName[req.Name]
		if !ok {
			g = &group{name: req.Name, firstPos: req.Order}
			byName[req.Name] = g
			ordered = append(ordered, g)
		}
		g.reqs = append(g.reqs, req)
		g.set = append(g.set, req.Constraint)
	}

	out := make([]group, len(ordered))
	for i, g := range ordered {
		out[i] = *g
	}
	return out
}

// resolveStrict requires all declared constraints for the package to agree
// on a version. An unconstrained requirement only passes when exactly one
// version exists anywhere.
func (r *Resolver) resolveStrict(ctx context.Context, g group) (ResolvedPackage, error) {
	if !g.set.Satisfiable() {
		return ResolvedPackage{}, &errors.VersionConflictError{Package: g.name, Constraints: g.set.Strings()}
	}

	// Quick pin: a set that pins exactly one version resolves without any
	// availability query, so lock manifests stay fully offline.
	if pin, ok := g.set.Pin(); ok {
		return r.pinned(g, pin), nil
	}

	unconstrained := true
	for _, c := range g.set {
		if !c.Any() {
			unconstrained = false
			break
		}
	}

	versions, index, err := r.availableVersions(ctx, g.name)
	if err != nil {
		return ResolvedPackage{}, err
	}

	if unconstrained {
		if len(versions) != 1 {
			return ResolvedPackage{}, &errors.AmbiguousVersionError{Package: g.name}
		}
		return ResolvedPackage{Name: g.name, Version: versions[0], Index: index}, nil
	}

	best, ok := g.set.MaxMatching(versions)
	if !ok {
		return ResolvedPackage{}, &errors.VersionConflictError{Package: g.name, Constraints: g.set.Strings()}
	}
	return ResolvedPackage{Name: g.name, Version: best.Raw, Index: index, Checksum: lockedChecksum(g, best)}, nil
}

// resolveNewest selects the highest available version satisfying every
// declared constraint for the package.
func (r *Resolver) resolveNewest(ctx context.Context, g group) (ResolvedPackage, error) {
	if pin, ok := g.set.Pin(); ok {
		return r.pinned(g, pin), nil
	}

	versions, index, err := r.availableVersions(ctx, g.name)
	if err != nil {
		return ResolvedPackage{}, err
	}

	best, ok := g.set.MaxMatching(versions)
	if !ok {
		return ResolvedPackage{}, &errors.VersionConflictError{Package: g.name, Constraints: g.set.Strings()}
	}
	return ResolvedPackage{Name: g.name, Version: best.Raw, Index: index, Checksum: lockedChecksum(g, best)}, nil
}

// resolveLegacy fixes the version from the first declaration alone; later
// declarations for the same package are superseded without error. This
// reproduces load-order resolution exactly and must not be folded into the
// strict/newest paths.
func (r *Resolver) resolveLegacy(ctx context.Context, g group) (ResolvedPackage, error) {
	first := g.reqs[0]
	for _, superseded := range g.reqs[1:] {
		r.logger.Debug("superseded by earlier declaration", "package", g.name, "kept", first.String(), "dropped", superseded.String())
	}

	single := version.Set{first.Constraint}
	firstOnly := group{name: g.name, set: single, reqs: g.reqs[:1], firstPos: g.firstPos}

	if pin, ok := single.Pin(); ok {
		return r.pinned(firstOnly, pin), nil
	}

	versions, index, err := r.availableVersions(ctx, g.name)
	if err != nil {
		return ResolvedPackage{}, err
	}

	best, ok := single.MaxMatching(versions)
	if !ok {
		// Legacy mode never raises conflict errors; a package with no
		// candidate at all is absence, not a conflict.
		return ResolvedPackage{}, errors.New(errors.ErrCodeNotFound, "no available version of %s satisfies %s", g.name, first.String())
	}
	return ResolvedPackage{Name: g.name, Version: best.Raw, Index: index, Checksum: lockedChecksum(firstOnly, best)}, nil
}

// pinned builds the resolved package for a quick-pinned version, carrying
// the declared checksum and source index when the manifest recorded them.
func (r *Resolver) pinned(g group, pin version.Version) ResolvedPackage {
	pkg := ResolvedPackage{Name: g.name, Version: pin.Raw, Index: r.DefaultIndex, Checksum: lockedChecksum(g, pin)}
	for _, req := range g.reqs {
		if req.Index != "" {
			pkg.Index = req.Index
			break
		}
	}
	return pkg
}

// availableVersions merges the universe listing with pre-approved known
// versions from earlier store entries. The union keeps "newest" honest
// (it needs the full remote listing) while still letting store-only
// versions satisfy constraints when an index has pruned them.
func (r *Resolver) availableVersions(ctx context.Context, name string) ([]string, string, error) {
	versions, index, err := r.universe.Versions(ctx, name)
	if err != nil {
		return nil, "", err
	}

	seen := make(map[string]bool, len(versions))
	for _, v := range versions {
		seen[v] = true
	}
	for _, v := range r.Known[name] {
		if !seen[v] {
			versions = append(versions, v)
			seen[v] = true
		}
	}
	return versions, index, nil
}

// lockedChecksum returns the checksum a lock manifest declared for the
// resolved version, when one matches.
func lockedChecksum(g group, v version.Version) string {
	for _, req := range g.reqs {
		if req.Checksum != "" && req.Constraint.Op == version.OpEqual && req.Constraint.Version.Equal(v) {
			return req.Checksum
		}
	}
	return ""
}
