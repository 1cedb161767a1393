// Package repo manages a repository's on-disk ".dits" layout: HEAD and
// refs as plain text files updated by compare-and-swap, the flat
// key=value config file, and the repository-level operations
// (create_commit, resolve_ref, update_ref, repo_stats, fsck) that sit
// above the chunk and object stores.
package repo

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/byronwade/dits/internal/metrics"
	"github.com/byronwade/dits/pkg/cipher"
	"github.com/byronwade/dits/pkg/config"
	"github.com/byronwade/dits/pkg/hashapi"
	"github.com/byronwade/dits/pkg/merkle"
	"github.com/byronwade/dits/pkg/objects"
	"github.com/byronwade/dits/pkg/store"
)

var (
	// ErrRefNotFound is returned by ResolveRef when the named ref file
	// does not exist.
	ErrRefNotFound = errors.New("repo: ref not found")
	// ErrRefConflict is returned by UpdateRef when the ref's current
	// value does not match the caller's expected old value.
	ErrRefConflict = errors.New("repo: ref compare-and-swap conflict")
)

// Repo binds a repository's on-disk layout (spec §6) to the storage
// components that implement it.
type Repo struct {
	dir     string
	Config  config.Config
	Chunks  *store.Store
	Objects *objects.Store
	index   *pebble.DB
}

// Open opens the repository rooted at dir, creating the directory
// layout and a default config on first use. dir is the ".dits"
// directory itself.
func Open(dir string) (*Repo, error) {
	for _, sub := range []string{"refs/heads", "refs/tags", "objects"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("repo: create %s: %w", sub, err)
		}
	}

	cfg, err := loadOrInitConfig(filepath.Join(dir, "config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("repo: invalid config: %w", err)
	}

	db, err := pebble.Open(filepath.Join(dir, "index"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("repo: open index: %w", err)
	}

	var sealer *cipher.Sealer
	if cfg.CipherEnabled {
		saltBytes, err := hex.DecodeString(cfg.CipherSaltHex)
		if err != nil || len(saltBytes) != 32 {
			db.Close()
			return nil, fmt.Errorf("repo: cipher enabled but salt is not 32 raw bytes of hex")
		}
		var salt [32]byte
		copy(salt[:], saltBytes)
		sealer = cipher.NewSealer(salt)
	}

	objDir := filepath.Join(dir, "objects")
	chunks, err := store.New(objDir, db, store.Options{
		Algo:      cfg.Algo(),
		Compress:  cfg.CompressChunks,
		Sealer:    sealer,
		VerifyTTL: cfg.VerifyTTL,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	objs, err := objects.New(objDir, cfg.Algo())
	if err != nil {
		db.Close()
		return nil, err
	}

	headPath := filepath.Join(dir, "HEAD")
	if !fileExists(headPath) {
		if err := writeFileAtomic(headPath, []byte("ref: refs/heads/main\n")); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Repo{dir: dir, Config: cfg, Chunks: chunks, Objects: objs, index: db}, nil
}

func loadOrInitConfig(path string) (config.Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		if werr := writeFileAtomic(path, cfg.Marshal()); werr != nil {
			return config.Config{}, werr
		}
		return cfg, nil
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("repo: read config: %w", err)
	}
	return config.Parse(data)
}

// Close releases the repository's index handle.
func (r *Repo) Close() error {
	return r.index.Close()
}

// ResolveRef reads the ref file at name (a path relative to the
// repository root, e.g. "refs/heads/main" or "HEAD") and follows one
// level of "ref: <target>" indirection such as HEAD's default content.
func (r *Repo) ResolveRef(name string) (hashapi.Hash, error) {
	content, err := os.ReadFile(filepath.Join(r.dir, name))
	if os.IsNotExist(err) {
		return hashapi.Hash{}, fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	if err != nil {
		return hashapi.Hash{}, fmt.Errorf("repo: read ref %s: %w", name, err)
	}

	text := strings.TrimSpace(string(content))
	if target, ok := strings.CutPrefix(text, "ref: "); ok {
		return r.ResolveRef(strings.TrimSpace(target))
	}
	return hashapi.ParseHash(text)
}

// UpdateRef compare-and-swaps the ref at name from old to new via a
// tempfile-and-rename, refusing the write if the ref's current value
// does not match old. A zero old value means "the ref must not already
// exist."
func (r *Repo) UpdateRef(name string, old, new hashapi.Hash) error {
	current, err := r.ResolveRef(name)
	switch {
	case errors.Is(err, ErrRefNotFound):
		if !old.IsZero() {
			return fmt.Errorf("%w: %s does not exist, expected %s", ErrRefConflict, name, old)
		}
	case err != nil:
		return err
	default:
		if current != old {
			return fmt.Errorf("%w: %s is %s, expected %s", ErrRefConflict, name, current, old)
		}
	}

	path := filepath.Join(r.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("repo: mkdir for ref %s: %w", name, err)
	}
	return writeFileAtomic(path, []byte(new.String()+"\n"))
}

// SetHeadToBranch points HEAD at refs/heads/branch.
func (r *Repo) SetHeadToBranch(branch string) error {
	return writeFileAtomic(filepath.Join(r.dir, "HEAD"), []byte("ref: refs/heads/"+branch+"\n"))
}

// Head resolves HEAD to a commit hash.
func (r *Repo) Head() (hashapi.Hash, error) {
	return r.ResolveRef("HEAD")
}

// CreateCommit builds and durably stores a commit object over tree and
// parents, returning its content hash.
func (r *Repo) CreateCommit(tree hashapi.Hash, parents []hashapi.Hash, author, message string) (hashapi.Hash, error) {
	c := objects.Commit{
		TreeHash:  tree,
		Parents:   parents,
		AuthorAt:  time.Now(),
		Author:    author,
		Committer: author,
		Message:   message,
	}
	encoded, err := c.Encode()
	if err != nil {
		return hashapi.Hash{}, fmt.Errorf("repo: encode commit: %w", err)
	}
	h, err := r.Objects.Put(objects.KindCommit, encoded)
	if err != nil {
		return hashapi.Hash{}, fmt.Errorf("repo: store commit: %w", err)
	}
	return h, nil
}

func (r *Repo) listRefs() ([]hashapi.Hash, error) {
	var hashes []hashapi.Hash
	for _, sub := range []string{"refs/heads", "refs/tags"} {
		entries, err := os.ReadDir(filepath.Join(r.dir, sub))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("repo: list %s: %w", sub, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			h, err := r.ResolveRef(filepath.Join(sub, e.Name()))
			if err != nil {
				continue
			}
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

// reachableManifests walks every ref to its commit, the commit's tree
// (and ancestry), and every tree entry's manifest, returning the set of
// manifests reachable from some reference. Tree entries flagged
// text_engine name an external engine's blob id, not a chunked
// manifest, and are skipped.
func (r *Repo) reachableManifests() (map[hashapi.Hash]objects.Manifest, error) {
	manifests := map[hashapi.Hash]objects.Manifest{}
	visitedCommits := map[hashapi.Hash]bool{}
	visitedManifests := map[hashapi.Hash]bool{}

	refs, err := r.listRefs()
	if err != nil {
		return nil, err
	}

	var walkCommit func(h hashapi.Hash) error
	walkCommit = func(h hashapi.Hash) error {
		if h.IsZero() || visitedCommits[h] {
			return nil
		}
		visitedCommits[h] = true

		encoded, err := r.Objects.Get(objects.KindCommit, h)
		if err != nil {
			return fmt.Errorf("repo: read commit %s: %w", h, err)
		}
		c, err := objects.DecodeCommit(encoded)
		if err != nil {
			return fmt.Errorf("repo: decode commit %s: %w", h, err)
		}

		treeEncoded, err := r.Objects.Get(objects.KindTree, c.TreeHash)
		if err != nil {
			return fmt.Errorf("repo: read tree %s: %w", c.TreeHash, err)
		}
		tree, err := objects.DecodeTree(treeEncoded)
		if err != nil {
			return fmt.Errorf("repo: decode tree %s: %w", c.TreeHash, err)
		}
		for _, entry := range tree.Entries {
			if entry.Flags&objects.TreeEntryFlagTextEngine != 0 {
				continue
			}
			if visitedManifests[entry.Hash] {
				continue
			}
			visitedManifests[entry.Hash] = true

			mEncoded, err := r.Objects.Get(objects.KindManifest, entry.Hash)
			if err != nil {
				return fmt.Errorf("repo: read manifest %s (path %q): %w", entry.Hash, entry.Path, err)
			}
			m, err := objects.DecodeManifest(mEncoded)
			if err != nil {
				return fmt.Errorf("repo: decode manifest %s: %w", entry.Hash, err)
			}
			manifests[entry.Hash] = m
		}

		for _, p := range c.Parents {
			if err := walkCommit(p); err != nil {
				return err
			}
		}
		return nil
	}

	for _, h := range refs {
		if err := walkCommit(h); err != nil {
			return nil, err
		}
	}
	return manifests, nil
}

// Stats is the repo_stats() surface from spec §6.
type Stats struct {
	LogicalBytes     uint64
	PhysicalBytes    int64
	ChunkCount       uint64
	UniqueChunkCount int
	DedupRatio       float64
}

// RepoStats computes aggregate statistics over every manifest reachable
// from a ref, and the chunk store's physical footprint.
func (r *Repo) RepoStats() (Stats, error) {
	manifests, err := r.reachableManifests()
	if err != nil {
		return Stats{}, err
	}

	var logicalBytes, chunkCount uint64
	for _, m := range manifests {
		logicalBytes += m.TotalSize
		chunkCount += uint64(len(m.Chunks))
	}

	uniqueChunks, physicalBytes, err := r.Chunks.Stats()
	if err != nil {
		return Stats{}, fmt.Errorf("repo: chunk stats: %w", err)
	}

	stats := Stats{
		LogicalBytes:     logicalBytes,
		PhysicalBytes:    physicalBytes,
		ChunkCount:       chunkCount,
		UniqueChunkCount: uniqueChunks,
	}
	if physicalBytes > 0 {
		stats.DedupRatio = float64(logicalBytes) / float64(physicalBytes)
	}
	metrics.SetRepoStats(int64(logicalBytes), physicalBytes, uniqueChunks)
	metrics.SetDedupRatio(int64(logicalBytes), physicalBytes)
	return stats, nil
}

// FsckReport is the fsck() surface from spec §6: ok, or a list of named
// invariant violations.
type FsckReport struct {
	OK     bool
	Errors []string
}

// Fsck checks the repository's on-disk invariants: every indexed chunk
// is present and hashes to its filename (I1/I2), every reachable
// manifest's chunks are at least as referenced as the manifest requires
// (I3, checked as a lower bound since a chunk may also be named by
// manifests not yet reachable from any ref), and every manifest/tree/
// commit object self-hashes correctly.
func (r *Repo) Fsck() (FsckReport, error) {
	var errs []string

	chunkRefs := map[hashapi.Hash]uint64{}
	iter, err := r.Chunks.IterAll()
	if err != nil {
		return FsckReport{}, fmt.Errorf("repo: iterate chunk index: %w", err)
	}
	for {
		h, refcount, ok := iter.Next()
		if !ok {
			break
		}
		chunkRefs[h] = refcount
		if verr := r.Chunks.Verify(h); verr != nil {
			errs = append(errs, fmt.Sprintf("chunk %s: %v", h, verr))
		}
	}
	iter.Close()

	manifests, err := r.reachableManifests()
	if err != nil {
		errs = append(errs, fmt.Sprintf("walk reachable manifests: %v", err))
	} else {
		required := map[hashapi.Hash]uint64{}
		for mh, m := range manifests {
			for _, c := range m.Chunks {
				required[c.Hash]++
			}
			if _, merr := merkle.Build(chunkHashes(m)); merr != nil {
				errs = append(errs, fmt.Sprintf("manifest %s: chunk list failed merkle construction: %v", mh, merr))
			}
		}
		for h, want := range required {
			if chunkRefs[h] < want {
				errs = append(errs, fmt.Sprintf("chunk %s: refcount %d but %d reachable manifest references exist", h, chunkRefs[h], want))
			}
		}
	}

	for _, kind := range []objects.Kind{objects.KindManifest, objects.KindTree, objects.KindCommit} {
		hashes, err := r.Objects.Iter(kind)
		if err != nil {
			errs = append(errs, fmt.Sprintf("iterate %s: %v", kind, err))
			continue
		}
		for _, h := range hashes {
			if verr := r.Objects.Verify(kind, h); verr != nil {
				errs = append(errs, fmt.Sprintf("%s %s: %v", kind, h, verr))
			}
		}
	}

	return FsckReport{OK: len(errs) == 0, Errors: errs}, nil
}

func chunkHashes(m objects.Manifest) []hashapi.Hash {
	out := make([]hashapi.Hash, len(m.Chunks))
	for i, c := range m.Chunks {
		out[i] = c.Hash
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("repo: write tmp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("repo: rename %s: %w", tmp, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
