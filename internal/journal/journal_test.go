package journal

import (
	"testing"

	"github.com/cockroachdb/pebble"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := pebble.Open(t.TempDir(), &pebble.Options{})
	if err != nil {
		t.Fatalf("pebble.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestJournal_BeginThenInFlight(t *testing.T) {
	j := newTestJournal(t)

	if err := j.Begin("session-1", "media/clip.mov", "video_compressed"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	entries, err := j.InFlight()
	if err != nil {
		t.Fatalf("InFlight: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 in-flight entry, got %d", len(entries))
	}
	if entries[0].SessionID != "session-1" || entries[0].Path != "media/clip.mov" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestJournal_CommitRemovesEntry(t *testing.T) {
	j := newTestJournal(t)

	if err := j.Begin("session-1", "a.bin", "generic"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := j.Begin("session-2", "b.bin", "generic"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := j.Commit("session-1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, err := j.InFlight()
	if err != nil {
		t.Fatalf("InFlight: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "session-2" {
		t.Fatalf("expected only session-2 to remain in flight, got %+v", entries)
	}
}

func TestJournal_CommitUnknownSessionIsNoop(t *testing.T) {
	j := newTestJournal(t)
	if err := j.Commit("never-started"); err != nil {
		t.Fatalf("Commit on unknown session should be a no-op, got: %v", err)
	}
}

func TestJournal_OrderedOldestFirst(t *testing.T) {
	j := newTestJournal(t)
	for _, id := range []string{"s1", "s2", "s3"} {
		if err := j.Begin(id, id+".bin", "generic"); err != nil {
			t.Fatalf("Begin(%s): %v", id, err)
		}
	}

	entries, err := j.InFlight()
	if err != nil {
		t.Fatalf("InFlight: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].StartedAt < entries[i-1].StartedAt {
			t.Errorf("entries not ordered oldest-first: %+v", entries)
		}
	}
}
