// Package store implements the persistent, content-addressed chunk
// store: chunk bytes live in a two-level fanout directory tree, and a
// Pebble index is the single authoritative source for refcount and
// verified_at metadata.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"

	"github.com/byronwade/dits/pkg/cipher"
	"github.com/byronwade/dits/pkg/hashapi"
)

// PutOutcome reports whether Put wrote new bytes or found them already
// present.
type PutOutcome int

const (
	Inserted PutOutcome = iota
	AlreadyPresent
)

var (
	ErrNotFound           = errors.New("store: chunk not found")
	ErrCorruptionDetected = errors.New("store: corruption detected")
	ErrStillReferenced    = errors.New("store: chunk still referenced")
	ErrDecrefUnderflow    = errors.New("store: decref below zero")
)

const indexPrefix = "r:"

// Options configures a Store. Sealer is nil when at-rest encryption is
// disabled (the default). VerifyTTL of zero means "always re-hash on
// Get", the spec's default-off TTL cache policy.
type Options struct {
	Algo      hashapi.Algo
	Compress  bool
	Sealer    *cipher.Sealer
	VerifyTTL time.Duration
}

// Store is the on-disk chunk store rooted at dir, indexed by db.
type Store struct {
	dir  string
	db   *pebble.DB
	opts Options

	locks [256]sync.Mutex

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error
	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// New opens a Store rooted at dir, using db as its index. dir/chunks is
// created if missing.
func New(dir string, db *pebble.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: pebble index is nil")
	}
	if opts.Algo == "" {
		opts.Algo = hashapi.AlgoBLAKE3
	}
	if err := os.MkdirAll(filepath.Join(dir, "chunks"), 0o755); err != nil {
		return nil, fmt.Errorf("store: create chunks dir: %w", err)
	}
	return &Store{dir: dir, db: db, opts: opts}, nil
}

func (s *Store) lockFor(h hashapi.Hash) *sync.Mutex {
	return &s.locks[h[0]]
}

func chunkPath(dir string, h hashapi.Hash) string {
	hex := h.String()
	return filepath.Join(dir, "chunks", hex[0:2], hex[2:4], hex)
}

func indexKey(h hashapi.Hash) []byte {
	key := make([]byte, 0, len(indexPrefix)+len(h))
	key = append(key, indexPrefix...)
	key = append(key, h[:]...)
	return key
}

// record is the 16-byte fixed index value: refcount (8 bytes) and
// verified_at as a Unix timestamp (8 bytes), both little-endian.
type record struct {
	Refcount   uint64
	VerifiedAt int64
}

func encodeRecord(r record) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], r.Refcount)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.VerifiedAt))
	return buf
}

func decodeRecord(b []byte) (record, error) {
	if len(b) != 16 {
		return record{}, fmt.Errorf("store: corrupt index record (%d bytes)", len(b))
	}
	return record{
		Refcount:   binary.LittleEndian.Uint64(b[0:8]),
		VerifiedAt: int64(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

func (s *Store) getRecord(h hashapi.Hash) (record, bool, error) {
	val, closer, err := s.db.Get(indexKey(h))
	if errors.Is(err, pebble.ErrNotFound) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, err
	}
	defer closer.Close()
	rec, err := decodeRecord(val)
	return rec, true, err
}

func (s *Store) setRecord(h hashapi.Hash, rec record) error {
	return s.db.Set(indexKey(h), encodeRecord(rec), pebble.Sync)
}

// Has reports whether the index carries a record for hash.
func (s *Store) Has(h hashapi.Hash) (bool, error) {
	_, ok, err := s.getRecord(h)
	return ok, err
}

// Put writes bytes under hash if not already present, and unconditionally
// increments the refcount. Safe for concurrent callers inserting the
// same hash: a losing writer observes AlreadyPresent.
func (s *Store) Put(h hashapi.Hash, data []byte) (PutOutcome, error) {
	lock := s.lockFor(h)
	lock.Lock()
	defer lock.Unlock()

	path := chunkPath(s.dir, h)
	outcome := AlreadyPresent

	if _, err := os.Stat(path); os.IsNotExist(err) {
		onDisk, err := s.encodeForStorage(h, data)
		if err != nil {
			return 0, err
		}
		if err := s.atomicWrite(path, onDisk); err != nil {
			return 0, err
		}
		outcome = Inserted
	} else if err != nil {
		return 0, fmt.Errorf("store: stat %s: %w", path, err)
	}

	rec, _, err := s.getRecord(h)
	if err != nil {
		return 0, err
	}
	rec.Refcount++
	if outcome == Inserted {
		rec.VerifiedAt = nowUnix()
	}
	if err := s.setRecord(h, rec); err != nil {
		return 0, err
	}

	return outcome, nil
}

func (s *Store) atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: create tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: fsync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: close tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

// Get reads and verifies the chunk for hash, always re-hashing unless a
// VerifyTTL is configured and the chunk was verified inside that window.
func (s *Store) Get(h hashapi.Hash) ([]byte, error) {
	path := chunkPath(s.dir, h)
	onDisk, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	data, err := s.decodeFromStorage(h, onDisk)
	if err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", h, err)
	}

	if s.shouldSkipVerify(h) {
		return data, nil
	}

	if hashapi.HashParallel(s.opts.Algo, data) != h {
		return nil, fmt.Errorf("%w: %s", ErrCorruptionDetected, h)
	}

	if rec, ok, err := s.getRecord(h); err == nil && ok {
		rec.VerifiedAt = nowUnix()
		_ = s.setRecord(h, rec)
	}

	return data, nil
}

func (s *Store) shouldSkipVerify(h hashapi.Hash) bool {
	if s.opts.VerifyTTL <= 0 {
		return false
	}
	rec, ok, err := s.getRecord(h)
	if err != nil || !ok || rec.VerifiedAt == 0 {
		return false
	}
	return time.Since(time.Unix(rec.VerifiedAt, 0)) < s.opts.VerifyTTL
}

// Verify forces a full re-hash of the on-disk chunk for hash, regardless
// of any cached verification, and updates verified_at on success.
func (s *Store) Verify(h hashapi.Hash) error {
	path := chunkPath(s.dir, h)
	onDisk, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", path, err)
	}

	data, err := s.decodeFromStorage(h, onDisk)
	if err != nil {
		return fmt.Errorf("store: decode %s: %w", h, err)
	}

	if hashapi.HashParallel(s.opts.Algo, data) != h {
		return fmt.Errorf("%w: %s", ErrCorruptionDetected, h)
	}

	rec, _, err := s.getRecord(h)
	if err != nil {
		return err
	}
	rec.VerifiedAt = nowUnix()
	return s.setRecord(h, rec)
}

// Incref adds n to hash's refcount.
func (s *Store) Incref(h hashapi.Hash, n uint64) error {
	lock := s.lockFor(h)
	lock.Lock()
	defer lock.Unlock()

	rec, ok, err := s.getRecord(h)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	rec.Refcount += n
	return s.setRecord(h, rec)
}

// Decref subtracts n from hash's refcount. Underflow is a programmer
// error and is refused rather than silently clamped.
func (s *Store) Decref(h hashapi.Hash, n uint64) error {
	lock := s.lockFor(h)
	lock.Lock()
	defer lock.Unlock()

	rec, ok, err := s.getRecord(h)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if rec.Refcount < n {
		return fmt.Errorf("%w: %s has refcount %d, decref %d", ErrDecrefUnderflow, h, rec.Refcount, n)
	}
	rec.Refcount -= n
	return s.setRecord(h, rec)
}

// Delete removes a chunk's bytes and index record. Fails with
// ErrStillReferenced if the refcount is nonzero.
func (s *Store) Delete(h hashapi.Hash) error {
	lock := s.lockFor(h)
	lock.Lock()
	defer lock.Unlock()

	rec, ok, err := s.getRecord(h)
	if err != nil {
		return err
	}
	if ok && rec.Refcount > 0 {
		return ErrStillReferenced
	}

	path := chunkPath(s.dir, h)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove %s: %w", path, err)
	}
	if err := s.db.Delete(indexKey(h), pebble.Sync); err != nil {
		return fmt.Errorf("store: delete index record: %w", err)
	}
	return nil
}

// UnreferencedIter lazily walks hashes whose refcount is zero.
type UnreferencedIter struct {
	iter *pebble.Iterator
}

// IterUnreferenced returns a lazy iterator over zero-refcount hashes. The
// caller must Close it.
func (s *Store) IterUnreferenced() (*UnreferencedIter, error) {
	upper := append([]byte(indexPrefix), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(indexPrefix),
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	iter.First()
	return &UnreferencedIter{iter: iter}, nil
}

// Next advances to the next zero-refcount hash, returning false when
// exhausted.
func (u *UnreferencedIter) Next() (hashapi.Hash, bool) {
	for u.iter.Valid() {
		key := u.iter.Key()
		val := u.iter.Value()
		u.iter.Next()

		rec, err := decodeRecord(val)
		if err != nil || rec.Refcount != 0 {
			continue
		}

		var h hashapi.Hash
		copy(h[:], key[len(indexPrefix):])
		return h, true
	}
	return hashapi.Hash{}, false
}

// Close releases the iterator's resources.
func (u *UnreferencedIter) Close() error {
	return u.iter.Close()
}

// AllIter lazily walks every indexed hash, regardless of refcount, for
// repo_stats() and fsck().
type AllIter struct {
	iter *pebble.Iterator
}

// IterAll returns a lazy iterator over every chunk the index knows
// about. The caller must Close it.
func (s *Store) IterAll() (*AllIter, error) {
	upper := append([]byte(indexPrefix), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(indexPrefix),
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	iter.First()
	return &AllIter{iter: iter}, nil
}

// Next advances to the next indexed hash and its refcount, returning
// false when exhausted.
func (a *AllIter) Next() (hashapi.Hash, uint64, bool) {
	for a.iter.Valid() {
		key := a.iter.Key()
		val := a.iter.Value()
		a.iter.Next()

		rec, err := decodeRecord(val)
		if err != nil {
			continue
		}

		var h hashapi.Hash
		copy(h[:], key[len(indexPrefix):])
		return h, rec.Refcount, true
	}
	return hashapi.Hash{}, 0, false
}

// Close releases the iterator's resources.
func (a *AllIter) Close() error {
	return a.iter.Close()
}

// Stats reports the number of distinct chunks the store holds and their
// total on-disk footprint, for the repository statistics surface.
func (s *Store) Stats() (uniqueChunks int, physicalBytes int64, err error) {
	iter, err := s.IterAll()
	if err != nil {
		return 0, 0, err
	}
	defer iter.Close()

	for {
		h, _, ok := iter.Next()
		if !ok {
			break
		}
		uniqueChunks++
		if fi, statErr := os.Stat(chunkPath(s.dir, h)); statErr == nil {
			physicalBytes += fi.Size()
		}
	}
	return uniqueChunks, physicalBytes, nil
}

// encodeForStorage applies compression then convergent encryption, in
// that order: compressing ciphertext achieves nothing, so compression
// must come first.
func (s *Store) encodeForStorage(h hashapi.Hash, data []byte) ([]byte, error) {
	out := data
	if s.opts.Compress {
		enc, err := s.zstdEncoder()
		if err != nil {
			return nil, err
		}
		out = enc.EncodeAll(out, nil)
	}
	if s.opts.Sealer != nil {
		sealed, err := s.opts.Sealer.Seal(h, out)
		if err != nil {
			return nil, fmt.Errorf("store: seal: %w", err)
		}
		out = sealed
	}
	return out, nil
}

func (s *Store) decodeFromStorage(h hashapi.Hash, onDisk []byte) ([]byte, error) {
	out := onDisk
	if s.opts.Sealer != nil {
		opened, err := s.opts.Sealer.Open(h, out)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		out = opened
	}
	if s.opts.Compress {
		dec, err := s.zstdDecoder()
		if err != nil {
			return nil, err
		}
		decoded, err := dec.DecodeAll(out, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		out = decoded
	}
	return out, nil
}

func (s *Store) zstdEncoder() (*zstd.Encoder, error) {
	s.encOnce.Do(func() {
		s.enc, s.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return s.enc, s.encErr
}

func (s *Store) zstdDecoder() (*zstd.Decoder, error) {
	s.decOnce.Do(func() {
		s.dec, s.decErr = zstd.NewReader(nil)
	})
	return s.dec, s.decErr
}

var nowUnix = func() int64 { return time.Now().Unix() }
