// Package engine orchestrates a full run: parse the manifest, fingerprint
// the environment, answer from the store when possible, and otherwise
// resolve, fetch, verify and commit a new entry under the fingerprint lock.
package engine

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/depstage/pkg/compose"
	"github.com/matzehuels/depstage/pkg/config"
	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/fetch"
	"github.com/matzehuels/depstage/pkg/index"
	"github.com/matzehuels/depstage/pkg/manifest"
	"github.com/matzehuels/depstage/pkg/observability"
	"github.com/matzehuels/depstage/pkg/resolve"
	"github.com/matzehuels/depstage/pkg/store"
)

// Engine runs environment preparations. One Engine may serve concurrent
// callers; runs for the same fingerprint collapse into a single in-process
// computation, and the store's advisory lock serializes misses across
// processes.
type Engine struct {
	cfg    *config.Config
	store  *store.Store
	client *index.Client
	logger *log.Logger

	group singleflight.Group
}

// Outcome is the product of one run: the committed entry plus the composed
// environment for the launched process.
type Outcome struct {
	Entry       *store.Entry
	Composition *compose.Composition
	CacheHit    bool     // Entry answered from the store, no network
	Degraded    bool     // Stale entry served after a lock timeout
	Profile     *Profile // Per-stage timings, when profiling is enabled
}

// New creates an Engine over an opened store and index client.
func New(cfg *config.Config, st *store.Store, client *index.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{cfg: cfg, store: st, client: client, logger: logger}
}

// Run prepares the environment for the given manifest files and returns
// the composed result. Concurrent calls with the same effective
// fingerprint share one computation.
func (e *Engine) Run(ctx context.Context, manifestPaths ...string) (*Outcome, error) {
	prof := newProfile(e.cfg.Profile)

	m, err := manifest.ParseFiles(manifestPaths...)
	if err != nil {
		return nil, err
	}
	prof.mark("parse")

	indexes := e.client.Indexes()
	fp := store.Fingerprint(m.RawSHA256, string(e.cfg.Mode), e.cfg.ForcedLibs, indexes)
	e.logger.Debug("environment fingerprint", "fingerprint", fp, "mode", e.cfg.Mode)

	v, err, _ := e.group.Do(fp, func() (any, error) {
		return e.runFingerprint(ctx, m, fp, prof)
	})
	if err != nil {
		return nil, err
	}

	// Collapsed callers share the computed outcome; copy before stamping
	// this caller's profile onto it.
	outcome := *v.(*Outcome)
	prof.mark("total")
	outcome.Profile = prof.snapshot()
	return &outcome, nil
}

// runFingerprint is the per-fingerprint critical section.
func (e *Engine) runFingerprint(ctx context.Context, m *manifest.Manifest, fp string, prof *profiler) (*Outcome, error) {
	if !e.cfg.BypassCache {
		if entry, ok := e.store.Lookup(fp); ok {
			observability.Engine().OnStoreHit(ctx, fp)
			if j := e.store.Journal(); j != nil {
				j.Touch(fp)
			}
			prof.mark("lookup")
			e.logger.Debug("store hit", "fingerprint", fp)
			return e.finish(entry, true, false, prof), nil
		}
	}

	lock, err := e.store.AcquireLock(ctx, fp, e.cfg.LockTimeout)
	if err != nil {
		// Another invocation holds the build. If a complete entry already
		// exists we serve it stale rather than failing the launch.
		if errors.Is(err, errors.ErrCodeLockTimeout) && !e.cfg.BypassCache {
			if entry, ok := e.store.Lookup(fp); ok {
				e.logger.Warn("lock wait timed out, using existing entry", "fingerprint", fp)
				return e.finish(entry, true, true, prof), nil
			}
		}
		return nil, err
	}
	defer lock.Release()
	prof.mark("lock")

	// The previous holder may have committed while this invocation waited.
	if !e.cfg.BypassCache {
		if entry, ok := e.store.Lookup(fp); ok {
			observability.Engine().OnStoreHit(ctx, fp)
			if j := e.store.Journal(); j != nil {
				j.Touch(fp)
			}
			e.logger.Debug("store hit after lock wait", "fingerprint", fp)
			return e.finish(entry, true, false, prof), nil
		}
	}

	entry, err := e.build(ctx, m, fp, prof)
	if err != nil {
		return nil, err
	}
	return e.finish(entry, false, false, prof), nil
}

// build resolves, fetches and commits a fresh entry. Called with the
// fingerprint lock held.
func (e *Engine) build(ctx context.Context, m *manifest.Manifest, fp string, prof *profiler) (*store.Entry, error) {
	observability.Engine().OnResolveStart(ctx, fp, string(e.cfg.Mode))
	resolveStart := time.Now()

	resolver := resolve.New(e.universe(), e.logger)
	resolver.Known = e.store.KnownVersions()
	if indexes := e.client.Indexes(); len(indexes) > 0 {
		resolver.DefaultIndex = indexes[0].URL
	}

	result, err := resolver.Resolve(ctx, m, e.cfg.Mode)
	observability.Engine().OnResolveComplete(ctx, fp, packageCount(result), time.Since(resolveStart), err)
	if err != nil {
		return nil, err
	}
	result.Fingerprint = fp
	prof.mark("resolve")

	if e.cfg.OverridesFile != "" {
		rules, err := resolve.LoadOverrides(e.cfg.OverridesFile)
		if err != nil {
			return nil, err
		}
		resolve.ApplyOverrides(result, rules, e.logger)
	}

	staging, err := e.store.Stage()
	if err != nil {
		return nil, err
	}

	observability.Engine().OnFetchStart(ctx, fp, len(result.Packages))
	fetchStart := time.Now()
	fetcher := fetch.New(e.client, e.cfg.Workers, e.logger)
	err = fetcher.FetchAll(ctx, result, staging)
	observability.Engine().OnFetchComplete(ctx, fp, time.Since(fetchStart), err)
	if err != nil {
		e.store.Abandon(staging)
		return nil, err
	}
	prof.mark("fetch")

	commitStart := time.Now()
	entry, err := e.store.Commit(result, staging)
	observability.Engine().OnStoreCommit(ctx, fp, time.Since(commitStart), err)
	if err != nil {
		e.store.Abandon(staging)
		return nil, err
	}
	prof.mark("commit")

	e.logger.Info("prepared environment", "fingerprint", fp, "packages", len(result.Packages), "mode", e.cfg.Mode)
	return entry, nil
}

// finish composes the environment for a committed entry.
func (e *Engine) finish(entry *store.Entry, hit, degraded bool, prof *profiler) *Outcome {
	comp := compose.Compose(entry, compose.Options{
		ForcedLibs:      e.cfg.ForcedLibs,
		AddToSearchPath: e.cfg.AddToPath,
		PathVar:         e.cfg.PathVar,
	})
	prof.mark("compose")
	return &Outcome{Entry: entry, Composition: comp, CacheHit: hit, Degraded: degraded}
}

// universe adapts the index client to the resolver's availability query.
func (e *Engine) universe() resolve.Universe {
	return resolve.UniverseFunc(func(ctx context.Context, name string) ([]string, string, error) {
		versions, ix, err := e.client.Versions(ctx, name, e.cfg.BypassCache)
		return versions, ix.URL, err
	})
}

func packageCount(result *resolve.Result) int {
	if result == nil {
		return 0
	}
	return len(result.Packages)
}
