// Package store implements the content-addressed environment store.
//
// Layout under the store root:
//
//	<root>/<fingerprint>/metadata.json       resolution record
//	<root>/<fingerprint>/artifacts/<pkg>/    unpacked package artifacts
//	<root>/.staging/<uuid>/                  in-flight entry builds
//	<root>/.locks/<fingerprint>.lock         cross-process locks
//	<root>/.journal.db                       bookkeeping (bbolt)
//	<root>/.listings/                        index listing cache home
//
// Entries are immutable once committed: an entry is assembled in a private
// staging directory and moved into place with a single rename, so a reader
// either sees a complete entry or none at all. Refreshing an entry means
// committing a brand-new one, never editing in place.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/resolve"
)

const (
	metadataFile = "metadata.json"
	artifactsDir = "artifacts"
	stagingDir   = ".staging"
	locksDir     = ".locks"

	// staleStagingAge is how old an abandoned staging directory must be
	// before lazy cleanup removes it on open.
	staleStagingAge = 24 * time.Hour
)

// Entry is one committed environment: the resolution record plus the
// on-disk location of its artifacts.
type Entry struct {
	Result resolve.Result
	Dir    string // Entry directory under the store root
}

// ArtifactDir returns the artifact directory of one resolved package.
func (e *Entry) ArtifactDir(pkg string) string {
	return filepath.Join(e.Dir, artifactsDir, pkg)
}

// Store is the on-disk environment store. All methods are safe for use by
// concurrent processes; cross-process writes coordinate through
// fingerprint-scoped lock files and atomic renames.
type Store struct {
	root    string
	journal *Journal // nil when the journal could not open; never fatal
	logger  *log.Logger
}

// Open opens (creating if needed) the store at root. Abandoned staging
// directories from crashed runs are cleaned up lazily here.
func Open(root string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	for _, dir := range []string{root, filepath.Join(root, stagingDir), filepath.Join(root, locksDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "cannot create store directory %s", dir)
		}
	}

	s := &Store{root: root, logger: logger}
	s.journal = openJournal(filepath.Join(root, journalFile), logger)
	s.cleanStaging()
	return s, nil
}

// Close releases the journal.
func (s *Store) Close() error {
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// Journal returns the bookkeeping journal, or nil when unavailable.
func (s *Store) Journal() *Journal { return s.journal }

// ListingsDir returns the directory reserved for the index listing cache.
func (s *Store) ListingsDir() string { return filepath.Join(s.root, ".listings") }

// entryDir is the direct path computation from a fingerprint; lookups
// never scan the store.
func (s *Store) entryDir(fingerprint string) string {
	return filepath.Join(s.root, fingerprint)
}

// Lookup returns the committed entry for fingerprint, if one exists.
// Metadata that fails to parse is treated as absent rather than fatal: a
// torn entry must never poison every future run.
func (s *Store) Lookup(fingerprint string) (*Entry, bool) {
	dir := s.entryDir(fingerprint)

	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, false
	}

	var result resolve.Result
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Warn("ignoring unreadable store entry", "fingerprint", fingerprint, "err", err)
		return nil, false
	}

	entry := &Entry{Result: result, Dir: dir}
	for i := range entry.Result.Packages {
		entry.Result.Packages[i].Path = entry.ArtifactDir(entry.Result.Packages[i].Name)
	}
	return entry, true
}

// Stage creates a fresh private staging directory for building an entry.
// The caller owns it exclusively until Commit or abandonment.
func (s *Store) Stage() (string, error) {
	dir := filepath.Join(s.root, stagingDir, uuid.NewString())
	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "cannot create staging directory")
	}
	return dir, nil
}

// Commit finalizes a staged entry: the metadata record is written and
// fsynced inside the staging directory, then the whole directory is
// renamed into place. If an entry already exists for the fingerprint
// (bypass recompute), it is moved aside first and deleted after the new
// entry is visible, so readers always see either the old or the new entry.
func (s *Store) Commit(result *resolve.Result, staging string) (*Entry, error) {
	start := time.Now()
	if err := s.writeMetadata(result, staging); err != nil {
		return nil, err
	}

	dest := s.entryDir(result.Fingerprint)

	if _, err := os.Stat(dest); err == nil {
		trash := filepath.Join(s.root, stagingDir, ".trash-"+uuid.NewString())
		if err := os.Rename(dest, trash); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "cannot displace previous entry %s", result.Fingerprint)
		}
		defer os.RemoveAll(trash)
	}

	if err := os.Rename(staging, dest); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "cannot commit entry %s", result.Fingerprint)
	}

	if s.journal != nil {
		s.journal.RecordCommit(result, entrySize(dest))
	}
	s.logger.Debug("committed store entry", "fingerprint", result.Fingerprint, "took", time.Since(start).Round(time.Millisecond))

	entry, ok := s.Lookup(result.Fingerprint)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "entry %s vanished after commit", result.Fingerprint)
	}
	return entry, nil
}

// writeMetadata writes and fsyncs the metadata record into the staging
// directory before the rename, so a committed entry can never exist
// without its record.
func (s *Store) writeMetadata(result *resolve.Result, staging string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot encode resolution record")
	}

	f, err := os.Create(filepath.Join(staging, metadataFile))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot write resolution record")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot write resolution record")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot sync resolution record")
	}
	return nil
}

// Abandon discards a staging directory after a failed build. Prior store
// state stays untouched.
func (s *Store) Abandon(staging string) {
	if staging == "" {
		return
	}
	if err := os.RemoveAll(staging); err != nil {
		s.logger.Warn("cannot remove staging directory", "dir", staging, "err", err)
	}
}

// KnownVersions scans committed entries and returns every version of every
// package the store already holds, feeding the resolver's pre-approved
// candidate list.
func (s *Store) KnownVersions() map[string][]string {
	known := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	for _, e := range s.Entries() {
		for _, pkg := range e.Result.Packages {
			if seen[pkg.Name] == nil {
				seen[pkg.Name] = make(map[string]bool)
			}
			if !seen[pkg.Name][pkg.Version] {
				seen[pkg.Name][pkg.Version] = true
				known[pkg.Name] = append(known[pkg.Name], pkg.Version)
			}
		}
	}
	return known
}

// Entries returns all committed entries. Unreadable entries are skipped.
func (s *Store) Entries() []*Entry {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}

	var out []*Entry
	for _, de := range dirEntries {
		if !de.IsDir() || de.Name()[0] == '.' {
			continue
		}
		if entry, ok := s.Lookup(de.Name()); ok {
			out = append(out, entry)
		}
	}
	return out
}

// Remove deletes the entry for fingerprint, if present.
func (s *Store) Remove(fingerprint string) error {
	if err := os.RemoveAll(s.entryDir(fingerprint)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot remove entry %s", fingerprint)
	}
	if s.journal != nil {
		s.journal.Forget(fingerprint)
	}
	return nil
}

// cleanStaging removes abandoned staging directories left by interrupted
// runs. Only directories older than staleStagingAge go; a concurrent
// in-flight build is never touched.
func (s *Store) cleanStaging() {
	dir := filepath.Join(s.root, stagingDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-staleStagingAge)
	for _, de := range entries {
		info, err := de.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, de.Name())
		s.logger.Debug("removing abandoned staging directory", "dir", path)
		_ = os.RemoveAll(path)
	}
}

// entrySize sums the file sizes under an entry directory, for journal
// bookkeeping only.
func entrySize(dir string) int64 {
	var size int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
