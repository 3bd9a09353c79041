// Package fetch downloads and verifies resolved package artifacts.
//
// Downloads of distinct packages run in parallel on a bounded worker pool;
// a single package downloads sequentially. Every artifact is checksummed
// while streaming and verified against the locked checksum (when the
// manifest pinned one) or the index-published checksum before it is
// unpacked into the invocation's staging directory. A mismatch discards
// the partial artifact and fails the run; nothing unverified ever reaches
// the store.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/index"
	"github.com/matzehuels/depstage/pkg/resolve"
)

// DefaultWorkers bounds the download pool when no override is configured.
const DefaultWorkers = 4

// Fetcher downloads artifacts through an index client.
type Fetcher struct {
	client  *index.Client
	workers int
	logger  *log.Logger
}

// New creates a Fetcher. workers <= 0 selects DefaultWorkers.
func New(client *index.Client, workers int, logger *log.Logger) *Fetcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{client: client, workers: workers, logger: logger}
}

// FetchAll downloads every package in result into staging/artifacts/<name>/
// and fills in missing checksums on the result's packages. The first
// failure cancels the remaining downloads; the caller abandons the staging
// directory on error.
func (f *Fetcher) FetchAll(ctx context.Context, result *resolve.Result, staging string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i := range result.Packages {
		g.Go(func() error {
			return f.fetchOne(ctx, &result.Packages[i], staging)
		})
	}
	return g.Wait()
}

// fetchOne downloads, verifies and unpacks a single package.
func (f *Fetcher) fetchOne(ctx context.Context, pkg *resolve.ResolvedPackage, staging string) error {
	if err := errors.ValidateDistributionName(pkg.Name); err != nil {
		return err
	}

	ix := f.indexFor(pkg)
	want := pkg.Checksum
	if want == "" {
		info, err := f.client.Info(ctx, ix, pkg.Name, pkg.Version)
		if err != nil {
			return err
		}
		want = strings.ToLower(info.Checksum)
	}

	archive, sum, err := f.download(ctx, ix, pkg)
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	if want != "" && sum != want {
		// Partial artifact is discarded; the store never sees it.
		f.logger.Error("checksum mismatch", "package", pkg.Name, "version", pkg.Version)
		return &errors.PackageIntegrityError{Package: pkg.Name, Version: pkg.Version, Want: want, Got: sum}
	}

	dest := filepath.Join(staging, "artifacts", pkg.Name)
	if err := unpack(archive, dest); err != nil {
		return err
	}

	pkg.Checksum = sum
	f.logger.Debug("fetched package", "package", pkg.Name, "version", pkg.Version, "index", ix.URL)
	return nil
}

// download streams the artifact to a temp file next to the staging area,
// hashing as it goes. The whole attempt is retried under the client's
// transient-error contract before surfacing NetworkError.
func (f *Fetcher) download(ctx context.Context, ix index.Index, pkg *resolve.ResolvedPackage) (path, sum string, err error) {
	err = index.Retry(ctx, 3, 500*time.Millisecond, func() error {
		body, derr := f.client.Download(ctx, ix, pkg.Name, pkg.Version)
		if derr != nil {
			return derr
		}
		defer body.Close()

		tmp, terr := os.CreateTemp("", "depstage-fetch-*")
		if terr != nil {
			return terr
		}

		hash := sha256.New()
		_, cerr := io.Copy(io.MultiWriter(tmp, hash), body)
		tmp.Close()
		if cerr != nil {
			os.Remove(tmp.Name())
			// A broken transfer is as transient as a refused connection.
			return &index.RetryableError{Err: cerr}
		}

		path = tmp.Name()
		sum = hex.EncodeToString(hash.Sum(nil))
		return nil
	})
	if err != nil {
		if errors.GetCode(err) != "" {
			return "", "", err
		}
		return "", "", errors.Wrap(errors.ErrCodeNetwork, err, "downloading %s %s", pkg.Name, pkg.Version)
	}
	return path, sum, nil
}

// indexFor maps a package's recorded originating index back onto the
// client configuration, falling back to the first configured index.
func (f *Fetcher) indexFor(pkg *resolve.ResolvedPackage) index.Index {
	for _, ix := range f.client.Indexes() {
		if ix.URL == pkg.Index {
			return ix
		}
	}
	if pkg.Index != "" {
		return index.Index{URL: pkg.Index}
	}
	if all := f.client.Indexes(); len(all) > 0 {
		return all[0]
	}
	return index.Index{}
}
