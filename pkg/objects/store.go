package objects

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/byronwade/dits/pkg/hashapi"
)

// Kind names one of the three content-addressed object pools.
type Kind string

const (
	KindManifest Kind = "manifests"
	KindTree     Kind = "trees"
	KindCommit   Kind = "commits"
)

// Store is the content-addressed store for manifests, trees, and
// commits, laid out as objects/<kind>/<hh>/<hex>. Object reads do not
// re-verify on every call (spec: "need not be re-verified on every
// read; verify on repository fsck only"); Store.Get trusts the
// filename-to-content mapping and leaves re-hashing to fsck.
type Store struct {
	dir  string
	algo hashapi.Algo
}

// New opens (creating if absent) the object store rooted at dir, which
// should be the repository's objects/ directory.
func New(dir string, algo hashapi.Algo) (*Store, error) {
	if algo == "" {
		algo = hashapi.AlgoBLAKE3
	}
	for _, k := range []Kind{KindManifest, KindTree, KindCommit} {
		if err := os.MkdirAll(filepath.Join(dir, string(k)), 0o755); err != nil {
			return nil, fmt.Errorf("objects: create %s dir: %w", k, err)
		}
	}
	return &Store{dir: dir, algo: algo}, nil
}

func (s *Store) path(kind Kind, h hashapi.Hash) string {
	hex := h.String()
	return filepath.Join(s.dir, string(kind), hex[0:2], hex)
}

// Hash computes the content address for an encoded object blob.
func (s *Store) Hash(encoded []byte) hashapi.Hash {
	return hashapi.HashParallel(s.algo, encoded)
}

// Has reports whether an object of the given kind and hash exists.
func (s *Store) Has(kind Kind, h hashapi.Hash) (bool, error) {
	_, err := os.Stat(s.path(kind, h))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put stores encoded under its own content hash, compressed with xz. A
// no-op if the object already exists.
func (s *Store) Put(kind Kind, encoded []byte) (hashapi.Hash, error) {
	h := s.Hash(encoded)
	path := s.path(kind, h)

	if _, err := os.Stat(path); err == nil {
		return h, nil
	} else if !os.IsNotExist(err) {
		return h, fmt.Errorf("objects: stat %s: %w", path, err)
	}

	var compressed bytes.Buffer
	w, err := xz.NewWriter(&compressed)
	if err != nil {
		return h, fmt.Errorf("objects: new xz writer: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return h, fmt.Errorf("objects: xz compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return h, fmt.Errorf("objects: xz finalize: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return h, fmt.Errorf("objects: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed.Bytes(), 0o644); err != nil {
		return h, fmt.Errorf("objects: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return h, fmt.Errorf("objects: rename: %w", err)
	}
	return h, nil
}

// Get reads and xz-decompresses the encoded object for hash.
func (s *Store) Get(kind Kind, h hashapi.Hash) ([]byte, error) {
	path := s.path(kind, h)
	compressed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("objects: %s/%s: %w", kind, h, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("objects: read %s: %w", path, err)
	}

	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("objects: new xz reader: %w", err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("objects: xz decompress: %w", err)
	}
	return out.Bytes(), nil
}

// Verify re-hashes the stored encoding for h and reports whether it
// matches, for use by fsck.
func (s *Store) Verify(kind Kind, h hashapi.Hash) error {
	encoded, err := s.Get(kind, h)
	if err != nil {
		return err
	}
	if s.Hash(encoded) != h {
		return fmt.Errorf("objects: %s/%s: content does not hash to its own filename", kind, h)
	}
	return nil
}

// Iter lists every hash stored under kind, for fsck and repo_stats.
func (s *Store) Iter(kind Kind) ([]hashapi.Hash, error) {
	root := filepath.Join(s.dir, string(kind))
	var hashes []hashapi.Hash
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, fanout := range entries {
		if !fanout.IsDir() {
			continue
		}
		inner, err := os.ReadDir(filepath.Join(root, fanout.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range inner {
			h, err := hashapi.ParseHash(f.Name())
			if err != nil {
				continue
			}
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

var errNotFound = fmt.Errorf("not found")
