package ingest

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/pebble"

	"github.com/byronwade/dits/internal/journal"
	"github.com/byronwade/dits/pkg/chunk"
	"github.com/byronwade/dits/pkg/hashapi"
	"github.com/byronwade/dits/pkg/objects"
	"github.com/byronwade/dits/pkg/store"
)

func newTestIngestor(t *testing.T, opts Options) *Ingestor {
	t.Helper()
	dir := t.TempDir()

	db, err := pebble.Open(dir+"/index", &pebble.Options{})
	if err != nil {
		t.Fatalf("pebble.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	chunks, err := store.New(dir+"/chunks", db, store.Options{Algo: hashapi.AlgoBLAKE3})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	objs, err := objects.New(dir+"/objects", hashapi.AlgoBLAKE3)
	if err != nil {
		t.Fatalf("objects.New: %v", err)
	}

	opts.Algo = hashapi.AlgoBLAKE3
	return New(chunks, objs, opts)
}

func TestIngest_RoundTripAssetHash(t *testing.T) {
	ing := newTestIngestor(t, Options{})
	data := bytes.Repeat([]byte("all work and no play makes jack a dull boy\n"), 50_000)

	res, err := ing.Ingest(context.Background(), "session-1", bytes.NewReader(data), chunk.ProfileGeneric)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := hashapi.HashParallel(hashapi.AlgoBLAKE3, data)
	if res.Manifest.AssetHash != want {
		t.Errorf("asset hash mismatch: got %s, want %s", res.Manifest.AssetHash, want)
	}
	if res.Manifest.TotalSize != uint64(len(data)) {
		t.Errorf("total size mismatch: got %d, want %d", res.Manifest.TotalSize, len(data))
	}
	if len(res.Manifest.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	var sum uint64
	for _, c := range res.Manifest.Chunks {
		sum += uint64(c.Length)
	}
	if sum != res.Manifest.TotalSize {
		t.Errorf("chunk lengths sum to %d, want %d", sum, res.Manifest.TotalSize)
	}
}

func TestIngest_Deterministic(t *testing.T) {
	ing := newTestIngestor(t, Options{})
	data := bytes.Repeat([]byte("deterministic content\n"), 10_000)

	res1, err := ing.Ingest(context.Background(), "s1", bytes.NewReader(data), chunk.ProfileGeneric)
	if err != nil {
		t.Fatalf("Ingest 1: %v", err)
	}
	res2, err := ing.Ingest(context.Background(), "s2", bytes.NewReader(data), chunk.ProfileGeneric)
	if err != nil {
		t.Fatalf("Ingest 2: %v", err)
	}

	if res1.ManifestHash != res2.ManifestHash {
		t.Errorf("re-ingesting identical bytes produced different manifests: %s vs %s", res1.ManifestHash, res2.ManifestHash)
	}
	if len(res1.Manifest.Chunks) != len(res2.Manifest.Chunks) {
		t.Errorf("chunk count differs across identical ingests")
	}
}

func TestIngest_EmptyInput(t *testing.T) {
	ing := newTestIngestor(t, Options{})
	res, err := ing.Ingest(context.Background(), "empty", bytes.NewReader(nil), chunk.ProfileGeneric)
	if err != nil {
		t.Fatalf("Ingest of empty input: %v", err)
	}
	if len(res.Manifest.Chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(res.Manifest.Chunks))
	}
	if res.Manifest.TotalSize != 0 {
		t.Errorf("expected zero total size, got %d", res.Manifest.TotalSize)
	}
}

func TestIngest_CancellationYieldsNoManifest(t *testing.T) {
	ing := newTestIngestor(t, Options{QueueDepth: 1})
	data := bytes.Repeat([]byte("cancel me please\n"), 200_000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ing.Ingest(ctx, "cancelled-session", bytes.NewReader(data), chunk.ProfileGeneric)
	if err == nil {
		t.Fatal("expected an error for a pre-cancelled context")
	}
}

func TestIngest_JournalEntryClearedOnSuccess(t *testing.T) {
	dir := t.TempDir()
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		t.Fatalf("pebble.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	j := journal.New(db)
	ing := newTestIngestor(t, Options{Journal: j})

	data := []byte("journaled ingest")
	if _, err := ing.Ingest(context.Background(), "journaled-session", bytes.NewReader(data), chunk.ProfileGeneric); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	inFlight, err := j.InFlight()
	if err != nil {
		t.Fatalf("InFlight: %v", err)
	}
	for _, e := range inFlight {
		if e.SessionID == "journaled-session" {
			t.Error("expected the journal entry to be cleared after a successful ingest")
		}
	}
}
