package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/depstage/pkg/errors"
)

const (
	// lockPollInterval is how often a waiter re-attempts acquisition.
	lockPollInterval = 100 * time.Millisecond

	// lockStaleAge is the age past which a lock whose holder cannot be
	// liveness-checked (different host) is considered abandoned.
	lockStaleAge = 10 * time.Minute
)

// lockRecord is the JSON content of a lock file, identifying the holder
// for liveness checks and diagnostics.
type lockRecord struct {
	PID      int       `json:"pid"`
	Host     string    `json:"host"`
	Token    string    `json:"token"`
	Acquired time.Time `json:"acquired"`
}

// Lock is a held fingerprint-scoped advisory lock. It serializes cache
// misses across processes so only one invocation resolves and fetches a
// given environment.
type Lock struct {
	path  string
	token string
}

// AcquireLock acquires the advisory lock for fingerprint, waiting up to
// timeout. Lock files are created with O_EXCL; a file that already exists
// but whose holder is provably dead (same host, reaped PID) or older than
// the staleness window is broken and re-contested. On timeout the caller
// receives LockTimeoutError carrying the observed holder.
func (s *Store) AcquireLock(ctx context.Context, fingerprint string, timeout time.Duration) (*Lock, error) {
	path := filepath.Join(s.root, locksDir, fingerprint+".lock")
	deadline := time.Now().Add(timeout)

	record := lockRecord{
		PID:      os.Getpid(),
		Token:    uuid.NewString(),
		Acquired: time.Now().UTC(),
	}
	record.Host, _ = os.Hostname()
	payload, _ := json.Marshal(record)

	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.Write(payload)
			f.Close()
			if werr != nil {
				_ = os.Remove(path)
				return nil, errors.Wrap(errors.ErrCodeInternal, werr, "cannot write lock file")
			}
			return &Lock{path: path, token: record.Token}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "cannot create lock file")
		}

		if holder, stale := s.inspectLock(path); stale {
			s.logger.Warn("breaking stale lock", "fingerprint", fingerprint, "holder", holder)
			_ = os.Remove(path)
			continue
		} else if time.Now().After(deadline) {
			return nil, &errors.LockTimeoutError{Fingerprint: fingerprint, Holder: holder}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Release removes the lock file if this process still holds it. Releasing
// twice, or after the lock was broken by another process, is harmless.
func (l *Lock) Release() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var record lockRecord
	if json.Unmarshal(data, &record) == nil && record.Token == l.token {
		_ = os.Remove(l.path)
	}
}

// inspectLock reads an existing lock file and decides whether it is stale.
// A lock is stale when its holder is a reaped process on this host, when
// its record is unreadable, or when it has outlived the staleness window
// (covering crashed holders on other hosts).
func (s *Store) inspectLock(path string) (holder string, stale bool) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false // Racing holder released it; not stale, just gone.
	}
	if err != nil {
		return "", false
	}

	var record lockRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// Half-written by a holder that died mid-write; recoverable only
		// by breaking it once it has sat long enough.
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > lockStaleAge {
			return "", true
		}
		return "", false
	}

	holder = fmt.Sprintf("pid %d on %s", record.PID, record.Host)

	hostname, _ := os.Hostname()
	if record.Host == hostname && !processAlive(record.PID) {
		return holder, true
	}
	if time.Since(record.Acquired) > lockStaleAge {
		return holder, true
	}
	return holder, false
}

// processAlive reports whether pid exists on this host. Signal 0 probes
// without delivering; EPERM still means the process exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
