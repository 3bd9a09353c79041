package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/version"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPinnedParse(t *testing.T) {
	path := writeFile(t, "requirements.txt", `
# runtime deps
requests==2.31.0
urllib3>=1.26,<2.0
tabulate

-r extra.txt
https://example.com/some/wheel.whl
Flask_Login~=0.6.0
`)

	m, err := ParseFiles(path)
	require.NoError(t, err)
	require.Len(t, m.Requirements, 5)

	assert.Equal(t, "requests", m.Requirements[0].Name)
	assert.Equal(t, version.OpEqual, m.Requirements[0].Constraint.Op)

	// A comma list yields one requirement per constraint, same name.
	assert.Equal(t, "urllib3", m.Requirements[1].Name)
	assert.Equal(t, version.OpGreaterEq, m.Requirements[1].Constraint.Op)
	assert.Equal(t, "urllib3", m.Requirements[2].Name)
	assert.Equal(t, version.OpLess, m.Requirements[2].Constraint.Op)

	assert.Equal(t, "tabulate", m.Requirements[3].Name)
	assert.True(t, m.Requirements[3].Unconstrained())

	// Names normalize: lowercase, underscores to hyphens.
	assert.Equal(t, "flask-login", m.Requirements[4].Name)
	assert.Equal(t, version.OpCompatible, m.Requirements[4].Constraint.Op)

	// Declaration order is contiguous.
	for i, r := range m.Requirements {
		assert.Equal(t, i, r.Order)
	}
	assert.NotEmpty(t, m.RawSHA256)
}

func TestPinnedWildcard(t *testing.T) {
	path := writeFile(t, "requirements.txt", "requests==2.31.*\n")

	m, err := ParseFiles(path)
	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	assert.Equal(t, version.OpCompatible, m.Requirements[0].Constraint.Op)
	assert.Equal(t, "2.31.0", m.Requirements[0].Constraint.Version.Raw)
}

func TestPinnedConflictingPinsOneLine(t *testing.T) {
	path := writeFile(t, "requirements.txt", "requests==2.31.0,==2.30.0\n")

	_, err := ParseFiles(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))

	var perr *errors.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
}

func TestPinnedInvalidConstraint(t *testing.T) {
	path := writeFile(t, "requirements.txt", "requests ===== nonsense\n")
	_, err := ParseFiles(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestPinnedUnreadableFile(t *testing.T) {
	_, err := ParseFiles(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestLockedParse(t *testing.T) {
	path := writeFile(t, "depstage.lock", `
[[package]]
name = "requests"
version = "2.31.0"
checksum = "`+validSum+`"
source = "https://index.internal.example.com"

[[package]]
name = "Urllib3"
version = "1.26.18"
`)

	m, err := ParseFiles(path)
	require.NoError(t, err)
	require.Len(t, m.Requirements, 2)

	r := m.Requirements[0]
	assert.Equal(t, "requests", r.Name)
	assert.Equal(t, version.OpEqual, r.Constraint.Op)
	assert.Equal(t, validSum, r.Checksum)
	assert.Equal(t, "https://index.internal.example.com", r.Index)

	// Lock manifests always yield fully pinned requirements.
	for _, r := range m.Requirements {
		assert.Equal(t, version.OpEqual, r.Constraint.Op)
	}
	assert.Equal(t, "urllib3", m.Requirements[1].Name)
}

const validSum = "9d5c6e2b8a1f4c3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f8a7b6c5d4e3f2a1b0c9d"

func TestLockedMissingVersion(t *testing.T) {
	path := writeFile(t, "depstage.lock", "[[package]]\nname = \"requests\"\n")
	_, err := ParseFiles(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestLockedBadChecksum(t *testing.T) {
	path := writeFile(t, "depstage.lock", `
[[package]]
name = "requests"
version = "2.31.0"
checksum = "nothex"
`)
	_, err := ParseFiles(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestLockedMalformedTOML(t *testing.T) {
	path := writeFile(t, "depstage.lock", "[[package\nname=\n")
	_, err := ParseFiles(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestDetect(t *testing.T) {
	assert.Equal(t, "locked", Detect("/x/depstage.lock").Type())
	assert.Equal(t, "locked", Detect("poetry.lock").Type())
	assert.Equal(t, "pinned", Detect("requirements.txt").Type())
	assert.Equal(t, "pinned", Detect("somethingelse").Type())
}

func TestParseFilesMultiple(t *testing.T) {
	a := writeFile(t, "requirements.txt", "requests==2.31.0\n")
	b := writeFile(t, "extra.txt", "tabulate\n")

	m, err := ParseFiles(a, b)
	require.NoError(t, err)
	require.Len(t, m.Requirements, 2)
	assert.Equal(t, 0, m.Requirements[0].Order)
	assert.Equal(t, 1, m.Requirements[1].Order)

	// The raw hash covers all files in order: reversing changes it.
	rev, err := ParseFiles(b, a)
	require.NoError(t, err)
	assert.NotEqual(t, m.RawSHA256, rev.RawSHA256)
}

func TestRawHashDeterminism(t *testing.T) {
	path := writeFile(t, "requirements.txt", "requests==2.31.0\n")

	m1, err := ParseFiles(path)
	require.NoError(t, err)
	m2, err := ParseFiles(path)
	require.NoError(t, err)
	assert.Equal(t, m1.RawSHA256, m2.RawSHA256)
}
