package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/resolve"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	viper.SetDefault("mode", DefaultMode)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, resolve.ModeStrict, cfg.Mode)
	assert.Equal(t, DefaultPathVar, cfg.PathVar)
	assert.Equal(t, DefaultIndexUsername, cfg.IndexUsername)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, 60*time.Second, cfg.LockTimeout)
	assert.Equal(t, 30*time.Minute, cfg.ListingTTL)
	assert.True(t, filepath.IsAbs(cfg.CachePath))
}

func TestLoadSplitsIndexList(t *testing.T) {
	resetViper(t)
	viper.Set("indexes", "https://a.example;https://b.example/; ;")
	viper.Set("default_index", "https://main.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example", "https://b.example/"}, cfg.Indexes)

	indexes := cfg.IndexList()
	require.Len(t, indexes, 3)
	assert.Equal(t, "https://main.example", indexes[0].URL)
	assert.Equal(t, 0, indexes[0].Rank)
	assert.Equal(t, "https://a.example", indexes[1].URL)
	assert.Equal(t, "https://b.example", indexes[2].URL) // trailing slash trimmed
	assert.Equal(t, 2, indexes[2].Rank)
	for _, ix := range indexes {
		assert.Equal(t, DefaultIndexUsername, ix.Username)
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	resetViper(t)
	viper.Set("mode", "aggressive")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func TestLoadRejectsBadIndexURL(t *testing.T) {
	resetViper(t)
	viper.Set("indexes", "ftp://nope.example")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func TestLoadForcedLibsAbsolute(t *testing.T) {
	resetViper(t)
	viper.Set("forced_libs", "relative/libs;/opt/abs")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.ForcedLibs, 2)
	assert.True(t, filepath.IsAbs(cfg.ForcedLibs[0]))
	assert.Equal(t, "/opt/abs", cfg.ForcedLibs[1])
}

func TestFindLocalConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	path := filepath.Join(root, ".depstage.yml")
	require.NoError(t, os.WriteFile(path, []byte("mode: newest\n"), 0o644))

	assert.Equal(t, path, FindLocalConfig(nested))
	assert.Equal(t, "", FindLocalConfig(t.TempDir()))
}

func TestFindManifestPrefersLockfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "depstage.lock"), []byte(""), 0o644))

	assert.Equal(t, filepath.Join(dir, "depstage.lock"), FindManifest(dir))
}

func TestFindManifestWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "scripts")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	manifest := filepath.Join(root, "requirements.txt")
	require.NoError(t, os.WriteFile(manifest, []byte("requests\n"), 0o644))

	assert.Equal(t, manifest, FindManifest(nested))
}
