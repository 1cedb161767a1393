// Package journal tracks in-flight ingest sessions in a time-ordered
// Pebble key range so a crash-recovery or fsck pass can tell "an ingest
// was in progress here" apart from "these chunks are simply
// unreferenced because of a completed delete" without scanning
// application logs.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

const prefix = "j:"

// Entry describes one in-flight (or, transiently, just-finished) ingest
// session.
type Entry struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Profile   string `json:"profile"`
	StartedAt int64  `json:"started_at"`
}

// Journal is a pebble-backed log of in-flight ingest sessions, keyed by
// start time so entries are naturally returned oldest-first.
type Journal struct {
	db *pebble.DB
}

// New binds a Journal to db, the repository's index store.
func New(db *pebble.DB) *Journal {
	return &Journal{db: db}
}

func key(startedAt int64, sessionID string) []byte {
	buf := make([]byte, len(prefix)+8+len(sessionID))
	n := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[n:], uint64(startedAt))
	copy(buf[n+8:], sessionID)
	return buf
}

// Begin records that an ingest of path under profile has started.
func (j *Journal) Begin(sessionID, path, profile string) error {
	if j.db == nil {
		return fmt.Errorf("journal: no index bound")
	}
	entry := Entry{SessionID: sessionID, Path: path, Profile: profile, StartedAt: time.Now().UnixNano()}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}
	return j.db.Set(key(entry.StartedAt, sessionID), payload, pebble.Sync)
}

// Commit removes the in-flight record for sessionID once its manifest is
// durable in the manifest store. A crash between Begin and Commit leaves
// the record in place, so InFlight still reports the session, and no
// manifest becomes visible. The record does not list the chunks that
// ingest wrote, and their refcounts are not rolled back, so garbage
// collection (which removes only refcount-zero chunks) does not reclaim
// them.
func (j *Journal) Commit(sessionID string) error {
	records, err := j.records()
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.entry.SessionID != sessionID {
			continue
		}
		return j.db.Delete(r.key, pebble.Sync)
	}
	return nil
}

// record pairs a journal entry with the raw key it was stored under, so
// Commit can delete it without re-deriving the time-ordered key.
type record struct {
	key   []byte
	entry Entry
}

// InFlight lists every ingest session that has a Begin record without a
// matching Commit, oldest first.
func (j *Journal) InFlight() ([]Entry, error) {
	records, err := j.records()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = r.entry
	}
	return entries, nil
}

func (j *Journal) records() ([]record, error) {
	upper := append([]byte(prefix), 0xff)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []record
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		out = append(out, record{key: append([]byte(nil), iter.Key()...), entry: e})
	}
	return out, iter.Error()
}
