// Package indexserver serves a local environment store over the index
// protocol, letting one machine's store act as a package index for others
// (and doubling as a real index in end-to-end tests).
//
// Routes:
//
//	GET /{pkg}/@v/list            newline-separated version list
//	GET /{pkg}/@v/{version}.info  JSON metadata
//	GET /{pkg}/@v/{version}.pkg   tar.gz of the package artifact directory
package indexserver

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/depstage/pkg/index"
	"github.com/matzehuels/depstage/pkg/store"
)

// Server serves the contents of a store over HTTP.
type Server struct {
	store  *store.Store
	logger *log.Logger

	mu       sync.Mutex
	packaged map[string][]byte // "name@version" -> tar.gz, built on demand
}

// New creates a Server over an opened store.
func New(st *store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{store: st, logger: logger, packaged: make(map[string][]byte)}
}

// Router builds the chi router for the index protocol.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/{pkg}/@v/list", s.handleList)
	r.Get("/{pkg}/@v/{file}", s.handleFile)
	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "pkg")

	versions := s.versionsOf(pkg)
	if len(versions) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, v := range versions {
		fmt.Fprintln(w, v)
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "pkg")
	file := chi.URLParam(r, "file")

	switch {
	case strings.HasSuffix(file, ".info"):
		s.handleInfo(w, r, pkg, strings.TrimSuffix(file, ".info"))
	case strings.HasSuffix(file, ".pkg"):
		s.handleDownload(w, r, pkg, strings.TrimSuffix(file, ".pkg"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request, pkg, ver string) {
	data, err := s.tarball(pkg, ver)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	sum := sha256.Sum256(data)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(index.Info{
		Version:  ver,
		Checksum: hex.EncodeToString(sum[:]),
		Size:     int64(len(data)),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, pkg, ver string) {
	data, err := s.tarball(pkg, ver)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	_, _ = w.Write(data)
}

// versionsOf scans committed entries for every version of pkg the store
// holds, sorted for stable listings.
func (s *Server) versionsOf(pkg string) []string {
	known := s.store.KnownVersions()
	versions := append([]string(nil), known[pkg]...)
	sort.Strings(versions)
	return versions
}

// tarball packages the artifact directory of one (pkg, version) as tar.gz.
// Built once and memoized: the bytes served by the download endpoint must
// be the same bytes the info endpoint checksummed.
func (s *Server) tarball(pkg, ver string) ([]byte, error) {
	key := pkg + "@" + ver
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.packaged[key]; ok {
		return data, nil
	}

	dir, err := s.artifactDir(pkg, ver)
	if err != nil {
		return nil, err
	}

	data, err := packDir(dir)
	if err != nil {
		s.logger.Error("cannot package artifact", "package", pkg, "version", ver, "err", err)
		return nil, err
	}
	s.packaged[key] = data
	return data, nil
}

// artifactDir finds a committed entry holding the requested version.
func (s *Server) artifactDir(pkg, ver string) (string, error) {
	for _, entry := range s.store.Entries() {
		for _, p := range entry.Result.Packages {
			if p.Name == pkg && p.Version == ver {
				return entry.ArtifactDir(pkg), nil
			}
		}
	}
	return "", os.ErrNotExist
}

// packDir writes dir as a deterministic tar.gz: relative paths, sorted
// walk order, zeroed timestamps.
func packDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		hdr := &tar.Header{
			Name: filepath.ToSlash(rel),
			Mode: int64(info.Mode().Perm()),
			Size: info.Size(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
