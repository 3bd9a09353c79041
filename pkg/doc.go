// Package pkg provides the core libraries for depstage environment staging.
//
// # Overview
//
// Depstage launches a script only after guaranteeing its third-party
// libraries are present. It reads a manifest of required packages, resolves
// exact versions against one or more package indexes, downloads and verifies
// the artifacts into a content-addressed store, and composes the environment
// the script runs in. The pkg directory is organized into these areas:
//
//  1. [manifest] / [resolve] - Input parsing and version resolution
//  2. [index] / [fetch] - Index protocol client and parallel artifact download
//  3. [store] / [cache] - Content-addressed store and listing cache
//  4. [engine] / [compose] - Orchestration and environment composition
//  5. [config] / [errors] / [observability] - Shared infrastructure
//
// # Architecture
//
// The typical data flow through depstage:
//
//	Manifest file (pinned list or locked TOML)
//	         ↓
//	    [manifest] package (parse + normalize requirements)
//	         ↓
//	    [resolve] package (pick exact versions per mode)
//	         ↓
//	    [fetch] package (download + verify artifacts)
//	         ↓
//	    [store] package (commit under fingerprint)
//	         ↓
//	    [compose] package (library paths + environment variables)
//
// # Quick Start
//
// Stage an environment for a manifest and read back its paths:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/depstage/pkg/config"
//	    "github.com/matzehuels/depstage/pkg/engine"
//	    "github.com/matzehuels/depstage/pkg/index"
//	    "github.com/matzehuels/depstage/pkg/store"
//	)
//
//	cfg, _ := config.Load()
//	st, _ := store.Open(cfg.CachePath, nil)
//	client := index.NewClient(cfg.IndexList(), index.Options{})
//	eng := engine.New(cfg, st, client, nil)
//
//	out, _ := eng.Run(context.Background(), "requirements.txt")
//	for _, p := range out.Composition.Paths {
//	    fmt.Println(p)
//	}
//
// # Main Packages
//
// [manifest] - Manifest parsing. Detects pinned-list and locked TOML formats,
// normalizes requirements, and records the raw content hash used for
// fingerprinting.
//
// [resolve] - Version resolution under three modes: strict (conflicts are
// fatal), newest (highest wins), and legacy (first declaration wins). Also
// applies operator-supplied override rules.
//
// [version] - Version parsing, ordering, and constraint intervals.
//
// [index] - HTTP client for goproxy-style package indexes: version listings,
// per-version metadata, and artifact download, with retry, credential files,
// and a pluggable listing cache.
//
// [fetch] - Bounded-parallel artifact download with streaming checksum
// verification and safe archive extraction into a staging directory.
//
// [store] - Content-addressed store keyed by environment fingerprint.
// Atomic stage-then-rename commits, cross-process advisory locking with
// stale-lock recovery, and a usage journal.
//
// [cache] - Listing cache backends: file, Redis, and null.
//
// [compose] - Turns a committed store entry into library paths and
// environment variables for the launched process.
//
// [engine] - Orchestrates the full run: parse, fingerprint, store lookup,
// lock, resolve, fetch, commit, compose. Collapses concurrent identical
// runs and degrades to a stale entry when a lock cannot be acquired.
//
// [config] - Configuration loading (defaults, config files, environment,
// flags) and validation.
//
// [indexserver] - A minimal index server that serves a local store over the
// same protocol the client speaks, for mirroring and testing.
//
// [errors] - Typed errors with stable codes, and input validation helpers.
//
// [observability] - Optional hooks for engine, cache, and HTTP events.
//
// [buildinfo] - Build-time version metadata.
//
// [manifest]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/manifest
// [resolve]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/resolve
// [version]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/version
// [index]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/index
// [fetch]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/fetch
// [store]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/store
// [cache]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/cache
// [compose]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/compose
// [engine]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/engine
// [config]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/config
// [indexserver]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/indexserver
// [errors]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/depstage/pkg/buildinfo
package pkg
