package textengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// recordKind distinguishes a full snapshot from a patch against a prior
// revision.
type recordKind byte

const (
	kindFull  recordKind = 0
	kindPatch recordKind = 1
)

// BsdiffEngine is the reference Engine implementation: each revision is
// stored as either a full snapshot (the first Put) or a bsdiff patch
// against the immediately preceding revision, forming a chain. This
// mirrors how a working-tree text engine would actually store
// successive edits to the same file cheaply.
type BsdiffEngine struct {
	dir string
	mu  sync.Mutex
	// head is the blobID of the most recently stored revision, used as
	// the diff base for the next Put. Empty until the first Put.
	head string
}

// NewBsdiffEngine opens (creating if absent) a chain store rooted at
// dir.
func NewBsdiffEngine(dir string) (*BsdiffEngine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("textengine: create %s: %w", dir, err)
	}
	return &BsdiffEngine{dir: dir}, nil
}

func (e *BsdiffEngine) path(blobID string) string {
	return filepath.Join(e.dir, blobID)
}

func blobIDFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data, diffing it against the previous revision in this
// engine instance's chain when one exists. If data has already been
// stored under its content hash, Put writes nothing and returns the
// existing blobID, which becomes the diff base for the next Put.
func (e *BsdiffEngine) Put(data []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := blobIDFor(data)
	path := e.path(id)

	if _, err := os.Stat(path); err == nil {
		e.head = id
		return id, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("textengine: stat %s: %w", path, err)
	}

	var record []byte
	if e.head == "" {
		record = encodeFull(data)
	} else {
		base, err := e.get(e.head)
		if err != nil {
			return "", fmt.Errorf("textengine: read chain base %s: %w", e.head, err)
		}
		patch, err := bsdiff.Bytes(base, data)
		if err != nil {
			return "", fmt.Errorf("textengine: bsdiff: %w", err)
		}
		record = encodePatch(e.head, patch)
	}

	if err := writeAtomic(path, record); err != nil {
		return "", err
	}
	e.head = id
	return id, nil
}

// Get reconstructs the bytes stored under blobID, walking back through
// the patch chain to the nearest full snapshot if necessary.
func (e *BsdiffEngine) Get(blobID string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.get(blobID)
}

func (e *BsdiffEngine) get(blobID string) ([]byte, error) {
	raw, err := os.ReadFile(e.path(blobID))
	if err != nil {
		return nil, fmt.Errorf("textengine: read %s: %w", blobID, err)
	}

	kind, body, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	if kind == kindFull {
		return body, nil
	}

	baseID, patch, err := splitPatchBody(body)
	if err != nil {
		return nil, err
	}
	base, err := e.get(baseID)
	if err != nil {
		return nil, fmt.Errorf("textengine: reconstruct base %s: %w", baseID, err)
	}
	out, err := bspatch.Bytes(base, patch)
	if err != nil {
		return nil, fmt.Errorf("textengine: bspatch %s: %w", blobID, err)
	}
	return out, nil
}

func encodeFull(data []byte) []byte {
	return append([]byte{byte(kindFull)}, data...)
}

func encodePatch(baseID string, patch []byte) []byte {
	out := make([]byte, 0, 1+len(baseID)+len(patch))
	out = append(out, byte(kindPatch))
	out = append(out, []byte(baseID)...)
	out = append(out, patch...)
	return out
}

func decodeRecord(raw []byte) (recordKind, []byte, error) {
	if len(raw) < 1 {
		return 0, nil, fmt.Errorf("textengine: empty record")
	}
	return recordKind(raw[0]), raw[1:], nil
}

// blobID strings are hex(sha256), always 64 bytes.
const blobIDLen = 64

func splitPatchBody(body []byte) (baseID string, patch []byte, err error) {
	if len(body) < blobIDLen {
		return "", nil, fmt.Errorf("textengine: truncated patch record")
	}
	return string(body[:blobIDLen]), body[blobIDLen:], nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("textengine: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("textengine: rename: %w", err)
	}
	return nil
}
