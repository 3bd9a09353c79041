package store

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"go.etcd.io/bbolt"

	"github.com/matzehuels/depstage/pkg/resolve"
)

const (
	journalFile   = ".journal.db"
	journalBucket = "entries"
)

// Journal is best-effort bookkeeping over store entries, powering the
// cache list/stats commands. The entry directories remain the source of
// truth: a lost or corrupt journal costs statistics, never correctness,
// which is why every journal failure is logged and swallowed.
type Journal struct {
	db     *bbolt.DB
	logger *log.Logger
}

// JournalRecord is the bookkeeping state of one store entry.
type JournalRecord struct {
	Fingerprint  string    `json:"fingerprint"`
	Mode         string    `json:"mode"`
	PackageCount int       `json:"package_count"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
	Hits         int64     `json:"hits"`
}

// openJournal opens the journal database. The short timeout keeps a
// concurrently held journal from stalling store opens; failure returns
// nil and the store runs without bookkeeping.
func openJournal(path string, logger *log.Logger) *Journal {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		logger.Warn("store journal unavailable", "err", err)
		return nil
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(journalBucket))
		return err
	})
	if err != nil {
		logger.Warn("store journal unavailable", "err", err)
		db.Close()
		return nil
	}
	return &Journal{db: db, logger: logger}
}

// Close closes the journal database.
func (j *Journal) Close() error { return j.db.Close() }

// RecordCommit records a freshly committed entry.
func (j *Journal) RecordCommit(result *resolve.Result, size int64) {
	now := time.Now().UTC()
	j.put(JournalRecord{
		Fingerprint:  result.Fingerprint,
		Mode:         string(result.Mode),
		PackageCount: len(result.Packages),
		SizeBytes:    size,
		CreatedAt:    now,
		LastUsedAt:   now,
	})
}

// Touch records a cache hit against an entry.
func (j *Journal) Touch(fingerprint string) {
	err := j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(journalBucket))
		var record JournalRecord
		if data := b.Get([]byte(fingerprint)); data != nil {
			if err := json.Unmarshal(data, &record); err != nil {
				record = JournalRecord{Fingerprint: fingerprint}
			}
		} else {
			record = JournalRecord{Fingerprint: fingerprint}
		}
		record.Hits++
		record.LastUsedAt = time.Now().UTC()

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(fingerprint), data)
	})
	if err != nil {
		j.logger.Warn("journal update failed", "fingerprint", fingerprint, "err", err)
	}
}

// Forget drops the record for a removed entry.
func (j *Journal) Forget(fingerprint string) {
	err := j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(journalBucket)).Delete([]byte(fingerprint))
	})
	if err != nil {
		j.logger.Warn("journal delete failed", "fingerprint", fingerprint, "err", err)
	}
}

// Records returns all journal records.
func (j *Journal) Records() []JournalRecord {
	var out []JournalRecord
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(journalBucket)).ForEach(func(_, v []byte) error {
			var record JournalRecord
			if err := json.Unmarshal(v, &record); err == nil {
				out = append(out, record)
			}
			return nil
		})
	})
	if err != nil {
		j.logger.Warn("journal scan failed", "err", err)
	}
	return out
}

// put writes a record, logging rather than returning failures.
func (j *Journal) put(record JournalRecord) {
	err := j.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(journalBucket)).Put([]byte(record.Fingerprint), data)
	})
	if err != nil {
		j.logger.Warn("journal write failed", "fingerprint", record.Fingerprint, "err", err)
	}
}
