package repo

import (
	"bytes"
	"context"
	"testing"

	"github.com/byronwade/dits/pkg/hashapi"
	"github.com/byronwade/dits/pkg/ingest"
	"github.com/byronwade/dits/pkg/objects"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpen_CreatesDefaultLayout(t *testing.T) {
	r := openTestRepo(t)

	head, err := r.Head()
	if err == nil {
		t.Fatalf("Head() on a fresh repo should fail (no commits), got %s", head)
	}
	if r.Config.HashAlgo != "blake3" {
		t.Errorf("default HashAlgo = %q, want blake3", r.Config.HashAlgo)
	}
}

func TestUpdateRef_CompareAndSwap(t *testing.T) {
	r := openTestRepo(t)

	h1 := hashapi.HashParallel(hashapi.AlgoBLAKE3, []byte("commit one"))
	h2 := hashapi.HashParallel(hashapi.AlgoBLAKE3, []byte("commit two"))

	if err := r.UpdateRef("refs/heads/main", hashapi.Hash{}, h1); err != nil {
		t.Fatalf("UpdateRef (create): %v", err)
	}
	got, err := r.ResolveRef("refs/heads/main")
	if err != nil || got != h1 {
		t.Fatalf("ResolveRef after create = %s, %v; want %s", got, err, h1)
	}

	if err := r.UpdateRef("refs/heads/main", hashapi.Hash{}, h2); err == nil {
		t.Fatal("UpdateRef with wrong expected old value should fail")
	}

	if err := r.UpdateRef("refs/heads/main", h1, h2); err != nil {
		t.Fatalf("UpdateRef (advance): %v", err)
	}
	got, err = r.ResolveRef("refs/heads/main")
	if err != nil || got != h2 {
		t.Fatalf("ResolveRef after advance = %s, %v; want %s", got, err, h2)
	}
}

func TestUpdateRef_RejectsCreateOverExisting(t *testing.T) {
	r := openTestRepo(t)
	h1 := hashapi.HashParallel(hashapi.AlgoBLAKE3, []byte("x"))
	if err := r.UpdateRef("refs/heads/main", hashapi.Hash{}, h1); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateRef("refs/heads/main", hashapi.Hash{}, h1); err == nil {
		t.Fatal("expected conflict creating a ref that already exists")
	}
}

func TestHead_FollowsSymbolicRef(t *testing.T) {
	r := openTestRepo(t)
	h1 := hashapi.HashParallel(hashapi.AlgoBLAKE3, []byte("main tip"))
	if err := r.UpdateRef("refs/heads/main", hashapi.Hash{}, h1); err != nil {
		t.Fatal(err)
	}
	// Open() already points HEAD at refs/heads/main by default.
	got, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if got != h1 {
		t.Errorf("Head() = %s, want %s", got, h1)
	}
}

func TestCreateCommit_ThenRepoStatsAndFsck(t *testing.T) {
	r := openTestRepo(t)

	ing := ingest.New(r.Chunks, r.Objects, ingest.Options{Algo: r.Config.Algo()})
	content := []byte("hello, content-addressed world")
	result, err := ing.Ingest(context.Background(), "s1", bytes.NewReader(content), "generic")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	tree := objects.Tree{Entries: []objects.TreeEntry{
		{Mode: 0o644, Size: uint64(len(content)), Hash: result.ManifestHash, Path: "hello.bin"},
	}}
	treeEncoded, err := tree.Encode()
	if err != nil {
		t.Fatal(err)
	}
	treeHash, err := r.Objects.Put(objects.KindTree, treeEncoded)
	if err != nil {
		t.Fatal(err)
	}

	commitHash, err := r.CreateCommit(treeHash, nil, "tester", "initial commit")
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if err := r.UpdateRef("refs/heads/main", hashapi.Hash{}, commitHash); err != nil {
		t.Fatal(err)
	}

	stats, err := r.RepoStats()
	if err != nil {
		t.Fatalf("RepoStats: %v", err)
	}
	if stats.LogicalBytes != uint64(len(content)) {
		t.Errorf("LogicalBytes = %d, want %d", stats.LogicalBytes, len(content))
	}
	if stats.UniqueChunkCount == 0 {
		t.Error("expected at least one unique chunk")
	}

	report, err := r.Fsck()
	if err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if !report.OK {
		t.Errorf("Fsck reported errors on a clean repo: %v", report.Errors)
	}
}
