package objects

import (
	"testing"
	"time"

	"github.com/byronwade/dits/pkg/chunk"
	"github.com/byronwade/dits/pkg/hashapi"
)

func TestManifest_EncodeDecodeRoundTrip(t *testing.T) {
	m := Manifest{
		TotalSize: 12345,
		AssetHash: hashapi.HashParallel(hashapi.AlgoBLAKE3, []byte("asset bytes")),
		Profile:   chunk.ProfileVideoProRes,
		Flags:     ManifestFlagOversizeChunk,
		Chunks: []ChunkEntry{
			{Hash: hashapi.HashParallel(hashapi.AlgoBLAKE3, []byte("chunk one")), Length: 1000},
			{Hash: hashapi.HashParallel(hashapi.AlgoBLAKE3, []byte("chunk two")), Length: 2000},
		},
	}

	encoded, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeManifest(encoded)
	if err != nil {
		t.Fatal(err)
	}

	if decoded.TotalSize != m.TotalSize || decoded.AssetHash != m.AssetHash ||
		decoded.Profile != m.Profile || decoded.Flags != m.Flags || len(decoded.Chunks) != len(m.Chunks) {
		t.Fatalf("decoded manifest mismatch: %+v vs %+v", decoded, m)
	}
	for i := range m.Chunks {
		if decoded.Chunks[i] != m.Chunks[i] {
			t.Errorf("chunk %d mismatch: %+v vs %+v", i, decoded.Chunks[i], m.Chunks[i])
		}
	}
}

func TestManifest_EncodeDeterministic(t *testing.T) {
	m := Manifest{
		TotalSize: 1,
		Profile:   chunk.ProfileGeneric,
		Chunks:    []ChunkEntry{{Hash: hashapi.Hash{1, 2, 3}, Length: 1}},
	}
	a, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("Encode() is not deterministic")
	}
}

func TestTree_EncodeDecodeRoundTrip_SortsByPath(t *testing.T) {
	tr := Tree{
		Entries: []TreeEntry{
			{Mode: 0o644, Size: 10, Hash: hashapi.Hash{1}, Path: "zebra.bin"},
			{Mode: 0o644, Size: 20, Hash: hashapi.Hash{2}, Path: "apple.bin"},
			{Mode: 0o644, Flags: TreeEntryFlagTextEngine, Size: 5, Hash: hashapi.Hash{3}, Path: "readme.txt"},
		},
	}

	encoded, err := tr.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeTree(encoded)
	if err != nil {
		t.Fatal(err)
	}

	if len(decoded.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(decoded.Entries))
	}
	if decoded.Entries[0].Path != "apple.bin" || decoded.Entries[1].Path != "readme.txt" || decoded.Entries[2].Path != "zebra.bin" {
		t.Errorf("entries not sorted by path: %v", decoded.Entries)
	}
	if decoded.Entries[1].Flags != TreeEntryFlagTextEngine {
		t.Error("text engine flag lost across encode/decode")
	}
}

func TestCommit_EncodeDecodeRoundTrip(t *testing.T) {
	c := Commit{
		TreeHash:  hashapi.Hash{9, 9, 9},
		Parents:   []hashapi.Hash{{1}, {2}},
		AuthorAt:  time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		Author:    "a@example.com",
		Committer: "b@example.com",
		Message:   "initial commit\n",
	}

	encoded, err := c.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeCommit(encoded)
	if err != nil {
		t.Fatal(err)
	}

	if decoded.TreeHash != c.TreeHash || len(decoded.Parents) != 2 ||
		decoded.Author != c.Author || decoded.Committer != c.Committer || decoded.Message != c.Message {
		t.Fatalf("decoded commit mismatch: %+v vs %+v", decoded, c)
	}
	if !decoded.AuthorAt.Equal(c.AuthorAt) {
		t.Errorf("AuthorAt = %v, want %v", decoded.AuthorAt, c.AuthorAt)
	}
}

func TestStore_PutGetManifest(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, hashapi.AlgoBLAKE3)
	if err != nil {
		t.Fatal(err)
	}

	m := Manifest{
		TotalSize: 42,
		Profile:   chunk.ProfileAudio,
		Chunks:    []ChunkEntry{{Hash: hashapi.Hash{7}, Length: 42}},
	}
	encoded, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}

	h, err := s.Put(KindManifest, encoded)
	if err != nil {
		t.Fatal(err)
	}

	has, err := s.Has(KindManifest, h)
	if err != nil || !has {
		t.Fatalf("Has() = %v, %v", has, err)
	}

	got, err := s.Get(KindManifest, h)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(encoded) {
		t.Error("round trip through compressed storage changed the bytes")
	}

	if err := s.Verify(KindManifest, h); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}

	hashes, err := s.Iter(KindManifest)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes[0] != h {
		t.Errorf("Iter() = %v, want [%s]", hashes, h)
	}
}

func TestStore_GetMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, hashapi.AlgoBLAKE3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(KindTree, hashapi.Hash{1, 2, 3}); err == nil {
		t.Fatal("expected error for missing object")
	}
}
