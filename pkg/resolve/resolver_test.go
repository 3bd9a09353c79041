package resolve

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/manifest"
)

// fakeUniverse serves a fixed version table and counts queries.
type fakeUniverse struct {
	versions map[string][]string
	index    string
	calls    atomic.Int64
}

func (f *fakeUniverse) Versions(_ context.Context, name string) ([]string, string, error) {
	f.calls.Add(1)
	return f.versions[name], f.index, nil
}

func parseManifest(t *testing.T, content string) *manifest.Manifest {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	m, err := manifest.ParseFiles(path)
	require.NoError(t, err)
	return m
}

func TestStrictCompatibleConstraints(t *testing.T) {
	// Scenario A: pkgA==1.2.0 with pkgA>=1.0.0 resolves to 1.2.0.
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.0.0", "1.2.0", "1.3.0"}}, index: "https://idx"}
	m := parseManifest(t, "pkgA==1.2.0\npkgA>=1.0.0\n")

	res, err := New(u, nil).Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)
	require.Len(t, res.Packages, 1)
	assert.Equal(t, "1.2.0", res.Packages[0].Version)
}

func TestStrictConflict(t *testing.T) {
	// Scenario B: two different pins conflict under strict.
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.2.0", "1.3.0"}}}
	m := parseManifest(t, "pkgA==1.2.0\npkgA==1.3.0\n")

	_, err := New(u, nil).Resolve(context.Background(), m, ModeStrict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeVersionConflict))

	var vce *errors.VersionConflictError
	require.ErrorAs(t, err, &vce)
	assert.Equal(t, "pkga", vce.Package)
}

func TestLegacyFirstWins(t *testing.T) {
	// Scenario C: same manifest as B resolves to the first declaration.
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.2.0", "1.3.0"}}}
	m := parseManifest(t, "pkgA==1.2.0\npkgA==1.3.0\n")

	res, err := New(u, nil).Resolve(context.Background(), m, ModeLegacy)
	require.NoError(t, err)
	require.Len(t, res.Packages, 1)
	assert.Equal(t, "1.2.0", res.Packages[0].Version)
}

func TestLegacyFirstWinsRange(t *testing.T) {
	// The first declaration alone decides, even when a later one is a pin.
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.0.0", "1.4.0", "2.0.0"}}}
	m := parseManifest(t, "pkgA>=1.0.0\npkgA==1.0.0\n")

	res, err := New(u, nil).Resolve(context.Background(), m, ModeLegacy)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Packages[0].Version)
}

func TestLegacyNoCandidateIsNotFound(t *testing.T) {
	// Legacy never raises conflict errors: a package with no available
	// version at all surfaces as not-found.
	u := &fakeUniverse{versions: map[string][]string{}}
	m := parseManifest(t, "pkgA>=1.0.0\n")

	_, err := New(u, nil).Resolve(context.Background(), m, ModeLegacy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.False(t, errors.Is(err, errors.ErrCodeVersionConflict))
}

func TestNewestMaximality(t *testing.T) {
	// Scenario D: highest satisfying version wins.
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.0.0", "1.4.0", "2.0.0"}}}
	m := parseManifest(t, "pkgA>=1.0.0\n")

	res, err := New(u, nil).Resolve(context.Background(), m, ModeNewest)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Packages[0].Version)
}

func TestNewestConflict(t *testing.T) {
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.0.0", "2.0.0"}}}
	m := parseManifest(t, "pkgA>1.0.0\npkgA<2.0.0\n")

	_, err := New(u, nil).Resolve(context.Background(), m, ModeNewest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeVersionConflict))
}

func TestStrictUnconstrainedAmbiguous(t *testing.T) {
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.0.0", "2.0.0"}}}
	m := parseManifest(t, "pkgA\n")

	_, err := New(u, nil).Resolve(context.Background(), m, ModeStrict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAmbiguousVersion))
}

func TestStrictUnconstrainedSingleVersion(t *testing.T) {
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.0.0"}}}
	m := parseManifest(t, "pkgA\n")

	res, err := New(u, nil).Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Packages[0].Version)
}

func TestQuickPinSkipsUniverse(t *testing.T) {
	// A fully pinned manifest must resolve without any availability query.
	u := &fakeUniverse{versions: map[string][]string{}}
	m := parseManifest(t, "pkgA==1.2.0\npkgB==2.0.0\n")

	r := New(u, nil)
	r.DefaultIndex = "https://idx"
	res, err := r.Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)
	require.Len(t, res.Packages, 2)
	assert.Equal(t, int64(0), u.calls.Load())
	assert.Equal(t, "https://idx", res.Packages[0].Index)
}

func TestKnownVersionsSupplementUniverse(t *testing.T) {
	// A version only present in the store still satisfies constraints.
	u := &fakeUniverse{versions: map[string][]string{"pkga": {"1.0.0"}}}
	m := parseManifest(t, "pkgA>=2.0.0\n")

	r := New(u, nil)
	r.Known = map[string][]string{"pkga": {"2.1.0"}}
	res, err := r.Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", res.Packages[0].Version)
}

func TestDeterminism(t *testing.T) {
	u := &fakeUniverse{versions: map[string][]string{
		"pkga": {"1.0.0", "1.2.0", "2.0.0"},
		"pkgb": {"0.1.0", "0.2.0"},
	}, index: "https://idx"}
	m := parseManifest(t, "pkgA>=1.0.0,<2.0.0\npkgB>=0.1.0\n")

	r := New(u, nil)
	first, err := r.Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)

	assert.Equal(t, first.Canonical(), second.Canonical())
}

func TestResultOrderFollowsDeclaration(t *testing.T) {
	u := &fakeUniverse{versions: map[string][]string{
		"zed":   {"1.0.0"},
		"alpha": {"1.0.0"},
	}}
	m := parseManifest(t, "zed==1.0.0\nalpha==1.0.0\n")

	res, err := New(u, nil).Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)
	require.Len(t, res.Packages, 2)
	assert.Equal(t, "zed", res.Packages[0].Name)
	assert.Equal(t, "alpha", res.Packages[1].Name)
}

func TestLockedChecksumCarried(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depstage.lock")
	require.NoError(t, os.WriteFile(path, []byte(`
[[package]]
name = "pkga"
version = "1.2.0"
checksum = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
source = "https://mirror"
`), 0o644))
	m, err := manifest.ParseFiles(path)
	require.NoError(t, err)

	u := &fakeUniverse{}
	res, err := New(u, nil).Resolve(context.Background(), m, ModeStrict)
	require.NoError(t, err)
	require.Len(t, res.Packages, 1)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", res.Packages[0].Checksum)
	assert.Equal(t, "https://mirror", res.Packages[0].Index)
	assert.Equal(t, int64(0), u.calls.Load())
}

func TestApplyOverrides(t *testing.T) {
	res := &Result{Packages: []ResolvedPackage{
		{Name: "urllib3", Version: "2.1.0", Checksum: "x"},
		{Name: "botocore", Version: "1.29.0", Checksum: "y"},
	}}

	rules := []Override{{
		Package: "urllib3", Op: ">=", Version: "2.0.0",
		Requires: OverrideWhen{Name: "botocore", Op: "<", Version: "1.30.0", Pin: "1.31.0"},
	}}

	ApplyOverrides(res, rules, nil)
	assert.Equal(t, "1.31.0", res.Package("botocore").Version)
	assert.Empty(t, res.Package("botocore").Checksum)
	assert.Equal(t, "2.1.0", res.Package("urllib3").Version)
}

func TestApplyOverridesNoMatch(t *testing.T) {
	res := &Result{Packages: []ResolvedPackage{
		{Name: "urllib3", Version: "1.26.0"},
		{Name: "botocore", Version: "1.29.0"},
	}}

	rules := []Override{{
		Package: "urllib3", Op: ">=", Version: "2.0.0",
		Requires: OverrideWhen{Name: "botocore", Op: "<", Version: "1.30.0", Pin: "1.31.0"},
	}}

	ApplyOverrides(res, rules, nil)
	assert.Equal(t, "1.29.0", res.Package("botocore").Version)
}

func TestLoadOverridesMissingFile(t *testing.T) {
	rules, err := LoadOverrides(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestParseMode(t *testing.T) {
	for _, ok := range []string{"strict", "newest", "legacy", ""} {
		_, err := ParseMode(ok)
		assert.NoError(t, err, ok)
	}
	_, err := ParseMode("smart")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}
