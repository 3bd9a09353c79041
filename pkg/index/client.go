// Package index implements the client side of the package index protocol.
//
// An index serves three endpoints per package:
//
//	GET {base}/{pkg}/@v/list          newline-separated version list
//	GET {base}/{pkg}/@v/{ver}.info    JSON metadata (version, checksum, size)
//	GET {base}/{pkg}/@v/{ver}.pkg     artifact bytes (tar.gz of the package dir)
//
// The client queries configured indexes in rank order. A package that is
// absent from an index (404) falls through to the next one; an index that
// stays unreachable after the retry budget surfaces IndexUnavailableError.
// Version listings are memoized through pkg/cache with a bounded TTL so
// repeated resolutions stay off the network.
package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depstage/pkg/cache"
	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/observability"
)

// DefaultListingTTL bounds how long a cached version listing is trusted.
const DefaultListingTTL = 30 * time.Minute

// Index is one configured package index.
type Index struct {
	URL      string // Base URL, no trailing slash
	Username string // Basic-auth username, used when a token is found
	Rank     int    // Query order; lower rank is asked first
}

// Host returns the index hostname, used for credential lookup and cache
// scoping.
func (ix Index) Host() string { return hostOf(ix.URL) }

// Info is the metadata an index publishes for one package version.
type Info struct {
	Version  string `json:"version"`
	Checksum string `json:"checksum"` // sha256 hex of the artifact bytes
	Size     int64  `json:"size"`
}

// Options configures a Client.
type Options struct {
	Listings    cache.Cache      // Version-listing cache; nil disables caching
	ListingTTL  time.Duration    // Listing expiry; zero means DefaultListingTTL
	Credentials CredentialSource // nil means NoCredentials
	HTTPClient  *http.Client     // nil means a 30s-timeout default
	Logger      *log.Logger      // nil means log.Default()
}

// Client queries one or more package indexes.
// All methods are safe for concurrent use.
type Client struct {
	http     *http.Client
	indexes  []Index
	creds    CredentialSource
	listings cache.Cache
	scopes   map[string]cache.Cache // Per-host views over listings
	ttl      time.Duration
	logger   *log.Logger
}

// NewClient creates a client over the given indexes, sorted by rank.
func NewClient(indexes []Index, opts Options) *Client {
	sorted := make([]Index, len(indexes))
	copy(sorted, indexes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	listings := opts.Listings
	if listings == nil {
		listings = cache.NewNullCache()
	}
	ttl := opts.ListingTTL
	if ttl == 0 {
		ttl = DefaultListingTTL
	}
	creds := opts.Credentials
	if creds == nil {
		creds = NoCredentials{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	// One scope per index host, so a single index's listings can be
	// inspected or dropped together.
	scopes := make(map[string]cache.Cache, len(sorted))
	for _, ix := range sorted {
		if _, ok := scopes[ix.Host()]; !ok {
			scopes[ix.Host()] = cache.NewScoped(listings, listingScope(ix.Host()))
		}
	}

	return &Client{
		http:     httpClient,
		indexes:  sorted,
		creds:    creds,
		listings: listings,
		scopes:   scopes,
		ttl:      ttl,
		logger:   logger,
	}
}

// listingScope is the key prefix for one index host's listings.
func listingScope(host string) string { return "listings:" + host + ":" }

// listingCache returns the listing cache scoped to ix's host.
func (c *Client) listingCache(ix Index) cache.Cache {
	if scope, ok := c.scopes[ix.Host()]; ok {
		return scope
	}
	return cache.NewScoped(c.listings, listingScope(ix.Host()))
}

// Indexes returns the configured indexes in query order.
func (c *Client) Indexes() []Index { return c.indexes }

// Versions returns the available versions of pkg from the first index that
// publishes it, together with that index. Absence everywhere yields an
// empty list and a zero Index, not an error. With refresh set, the listing
// cache is bypassed.
func (c *Client) Versions(ctx context.Context, pkg string, refresh bool) ([]string, Index, error) {
	pkg = normalize(pkg)

	for _, ix := range c.indexes {
		versions, err := c.listVersions(ctx, ix, pkg, refresh)
		if err != nil {
			return nil, Index{}, err
		}
		if len(versions) > 0 {
			return versions, ix, nil
		}
	}
	return nil, Index{}, nil
}

// listVersions fetches the version list of pkg from one index, consulting
// the listing cache first.
func (c *Client) listVersions(ctx context.Context, ix Index, pkg string, refresh bool) ([]string, error) {
	listings := c.listingCache(ix)

	if !refresh {
		if data, hit, _ := listings.Get(ctx, pkg); hit {
			observability.Cache().OnCacheHit(ctx, "listings")
			return splitLines(data), nil
		}
		observability.Cache().OnCacheMiss(ctx, "listings")
	}

	var body []byte
	err := retryWithBackoff(ctx, func() error {
		data, err := c.get(ctx, ix, fmt.Sprintf("%s/%s/@v/list", ix.URL, escapePath(pkg)))
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			// Absent from this index: fall through, cache the absence.
			_ = listings.Set(ctx, pkg, nil, c.ttl)
			return nil, nil
		}
		return nil, &errors.IndexUnavailableError{Index: ix.URL, Cause: err}
	}

	_ = listings.Set(ctx, pkg, body, c.ttl)
	observability.Cache().OnCacheSet(ctx, "listings", len(body))
	return splitLines(body), nil
}

// Info fetches the published metadata for one package version from ix.
func (c *Client) Info(ctx context.Context, ix Index, pkg, ver string) (Info, error) {
	pkg = normalize(pkg)

	var info Info
	err := retryWithBackoff(ctx, func() error {
		data, err := c.get(ctx, ix, fmt.Sprintf("%s/%s/@v/%s.info", ix.URL, escapePath(pkg), ver))
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &info)
	})
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return Info{}, err
		}
		return Info{}, errors.Wrap(errors.ErrCodeNetwork, err, "fetching metadata for %s %s from %s", pkg, ver, ix.URL)
	}
	return info, nil
}

// Download opens a stream of the artifact bytes for one package version.
// The caller owns the returned reader. Transient failures come back as
// RetryableError so the fetcher can apply its retry budget around the
// whole download.
func (c *Client) Download(ctx context.Context, ix Index, pkg, ver string) (io.ReadCloser, error) {
	pkg = normalize(pkg)
	url := fmt.Sprintf("%s/%s/@v/%s.pkg", ix.URL, escapePath(pkg), ver)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, ix)

	observability.HTTP().OnRequest(ctx, http.MethodGet, ix.Host(), req.URL.Path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, ix.Host(), req.URL.Path, err)
		return nil, &RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "downloading %s %s", pkg, ver)}
	}
	observability.HTTP().OnResponse(ctx, http.MethodGet, ix.Host(), req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// get performs an authenticated GET and returns the response body.
func (c *Client) get(ctx context.Context, ix Index, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, ix)

	observability.HTTP().OnRequest(ctx, http.MethodGet, ix.Host(), req.URL.Path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, ix.Host(), req.URL.Path, err)
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, http.MethodGet, ix.Host(), req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// authorize attaches basic-auth credentials when a token exists for the
// index host.
func (c *Client) authorize(req *http.Request, ix Index) {
	if token, ok := c.creds.Token(ix.Host()); ok {
		username := ix.Username
		if username == "" {
			username = "pat"
		}
		req.SetBasicAuth(username, token)
	}
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound, code == http.StatusGone:
		return errors.New(errors.ErrCodeNotFound, "not found")
	case code >= 500:
		return &RetryableError{Err: errors.New(errors.ErrCodeNetwork, "server error: status %d", code)}
	default:
		return errors.New(errors.ErrCodeNetwork, "unexpected status %d", code)
	}
}

// splitLines parses a newline-separated version listing.
func splitLines(data []byte) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// normalize canonicalizes a package name the way indexes store them:
// lowercase with underscores folded to hyphens.
func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// escapePath escapes uppercase letters for URL paths ("!m" for "M"),
// mirroring the module-proxy convention. Normalized names are already
// lowercase; this guards explicitly declared source URLs.
func escapePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('!')
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
