// Package ingest drives the chunker and, for video profiles, the
// container parser, over an input stream, writing chunks to the chunk
// store and assembling the result into a durable manifest.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/byronwade/dits/internal/journal"
	"github.com/byronwade/dits/internal/metrics"
	"github.com/byronwade/dits/pkg/chunk"
	"github.com/byronwade/dits/pkg/container"
	"github.com/byronwade/dits/pkg/hashapi"
	"github.com/byronwade/dits/pkg/objects"
	"github.com/byronwade/dits/pkg/store"
)

// ErrCancelled is returned when ctx is cancelled mid-ingest. No manifest
// is written; the refcount each already-put chunk received is taken back,
// so chunks no other manifest uses drop to refcount zero and are
// reclaimed by garbage collection like any other unreferenced chunk.
var ErrCancelled = errors.New("ingest: cancelled")

const probeFloor = 1 * chunk.MiB
const probeCeiling = 64 * chunk.MiB

// Result is what Ingest returns: the manifest itself plus the hash it
// was stored under in the manifest object store.
type Result struct {
	Manifest     objects.Manifest
	ManifestHash hashapi.Hash
}

// Options configures an Ingestor.
type Options struct {
	Algo hashapi.Algo
	// QueueDepth bounds the channel between chunk production and the
	// chunk-store writer goroutine, per the backpressure requirement.
	QueueDepth int
	// Journal, if non-nil, records ingest sessions in flight so a crash
	// mid-ingest can be told apart from a completed, later-deleted one.
	Journal *journal.Journal
}

// Ingestor implements the ingest(reader, profile) -> Manifest contract.
type Ingestor struct {
	chunks *store.Store
	objs   *objects.Store
	opts   Options
}

// New builds an Ingestor writing chunks to chunks and manifests to objs.
func New(chunks *store.Store, objs *objects.Store, opts Options) *Ingestor {
	if opts.Algo == "" {
		opts.Algo = hashapi.AlgoBLAKE3
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 32
	}
	return &Ingestor{chunks: chunks, objs: objs, opts: opts}
}

func isVideoProfile(p chunk.Profile) bool {
	return p == chunk.ProfileVideoCompressed || p == chunk.ProfileVideoProRes
}

// Ingest consumes r to completion under profile and returns the durable
// manifest. sessionID identifies this ingest in the crash-recovery
// journal; callers that don't care may pass any unique string.
func (ing *Ingestor) Ingest(ctx context.Context, sessionID string, r io.Reader, profile chunk.Profile) (Result, error) {
	start := time.Now()
	params, err := chunk.ParamsFor(profile)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: %w", err)
	}

	if ing.opts.Journal != nil {
		if err := ing.opts.Journal.Begin(sessionID, "", string(profile)); err != nil {
			return Result{}, fmt.Errorf("ingest: journal begin: %w", err)
		}
	}

	result, err := ing.ingest(ctx, r, profile, params)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "failed"
	}
	metrics.ObserveIngest(start, string(profile), outcome)

	if err != nil {
		return Result{}, err
	}

	if ing.opts.Journal != nil {
		if cErr := ing.opts.Journal.Commit(sessionID); cErr != nil {
			return Result{}, fmt.Errorf("ingest: journal commit: %w", cErr)
		}
	}
	return result, nil
}

func (ing *Ingestor) ingest(ctx context.Context, r io.Reader, profile chunk.Profile, params chunk.Params) (Result, error) {
	var hint container.Hint
	var stream io.Reader = r

	if isVideoProfile(profile) {
		h, rest, err := probeContainer(r)
		if err != nil {
			return Result{}, fmt.Errorf("ingest: container probe: %w", err)
		}
		hint = h
		stream = rest
	}

	chunker := chunk.NewChunker(stream, params, hint.KeyframeOffsets, hint.ProtectedRanges, ing.opts.Algo)
	assetHasher := hashapi.New(ing.opts.Algo)

	produceCtx, cancelProduce := context.WithCancel(ctx)
	defer cancelProduce()

	jobs := make(chan chunkJob, ing.opts.QueueDepth)
	produceErr := make(chan error, 1)

	go produceChunks(produceCtx, chunker, jobs, produceErr)

	var entries []objects.ChunkEntry
	var totalSize uint64
	var flags uint32

	// Until the manifest is stored, a failed or cancelled ingest takes back
	// the refcount each of its Puts added.
	stored := false
	defer func() {
		if stored {
			return
		}
		for _, e := range entries {
			_ = ing.chunks.Decref(e.Hash, 1)
		}
	}()

	for job := range jobs {
		outcome, err := ing.chunks.Put(job.chunk.Hash, job.data)
		if err != nil {
			cancelProduce()
			drain(jobs)
			return Result{}, fmt.Errorf("ingest: store chunk %s: %w", job.chunk.Hash, err)
		}
		if outcome == store.Inserted {
			metrics.ObservePut("inserted")
		} else {
			metrics.ObservePut("already_present")
		}

		if _, err := assetHasher.Write(job.data); err != nil {
			_ = ing.chunks.Decref(job.chunk.Hash, 1)
			cancelProduce()
			drain(jobs)
			return Result{}, fmt.Errorf("ingest: asset hash: %w", err)
		}

		entries = append(entries, objects.ChunkEntry{Hash: job.chunk.Hash, Length: job.chunk.Length})
		totalSize += uint64(job.chunk.Length)
		if job.chunk.Oversize {
			flags |= objects.ManifestFlagOversizeChunk
		}
	}

	if err := <-produceErr; err != nil {
		return Result{}, err
	}

	manifest := objects.Manifest{
		TotalSize: totalSize,
		AssetHash: assetHasher.Finalize(),
		Profile:   profile,
		Flags:     flags,
		Chunks:    entries,
	}

	encoded, err := manifest.Encode()
	if err != nil {
		return Result{}, fmt.Errorf("ingest: encode manifest: %w", err)
	}
	manifestHash, err := ing.objs.Put(objects.KindManifest, encoded)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: store manifest: %w", err)
	}

	stored = true
	return Result{Manifest: manifest, ManifestHash: manifestHash}, nil
}

// chunkJob carries one emitted chunk from the producer goroutine to the
// chunk-store writer.
type chunkJob struct {
	chunk chunk.Chunk
	data  []byte
}

// produceChunks reads chunks from c and sends them on jobs, providing
// the backpressure point: a send blocks once jobs holds QueueDepth
// entries, which in turn blocks chunker.Next() from reading further
// input. It closes jobs when done and reports any error (including
// cancellation) on errc, which always receives exactly one value.
func produceChunks(ctx context.Context, c *chunk.Chunker, jobs chan<- chunkJob, errc chan<- error) {
	defer close(jobs)
	for {
		if err := ctx.Err(); err != nil {
			errc <- ErrCancelled
			return
		}

		ch, data, err := c.Next()
		if errors.Is(err, io.EOF) {
			errc <- nil
			return
		}
		if err != nil {
			errc <- fmt.Errorf("ingest: chunk: %w", err)
			return
		}

		select {
		case jobs <- chunkJob{chunk: ch, data: data}:
		case <-ctx.Done():
			errc <- ErrCancelled
			return
		}
	}
}

// drain discards remaining jobs so produceChunks' blocked send (if any)
// can complete and the goroutine can exit after cancellation.
func drain(jobs <-chan chunkJob) {
	for range jobs {
	}
}

// probeContainer reads a leading window of r (probeFloor bytes at first),
// runs the container parser over it, and returns a Reader that
// reproduces the full original stream (probe bytes followed by the
// remainder of r) so the chunker sees every byte exactly once.
//
// container.Parse never errors, and it drops a box that runs past the end
// of the window. The window is doubled, up to probeCeiling, only while
// Parse returns an empty Hint; it stops growing as soon as any complete
// top-level box (for example ftyp) yields a protected range, or at end
// of input. A moov box that does not end inside that window contributes
// no protected range and no keyframe hints, and the bytes it covers are
// chunked without them.
func probeContainer(r io.Reader) (container.Hint, io.Reader, error) {
	size := probeFloor
	buf := make([]byte, 0, size)
	eof := false

	for {
		if need := size - len(buf); need > 0 {
			more := make([]byte, need)
			n, err := io.ReadFull(r, more)
			buf = append(buf, more[:n]...)
			switch {
			case err == io.EOF || err == io.ErrUnexpectedEOF:
				eof = true
			case err != nil:
				return container.Hint{}, nil, err
			}
		}

		hint := container.Parse(bytes.NewReader(buf), uint64(len(buf)))
		if !hint.Empty() || eof || size >= probeCeiling {
			rest := io.MultiReader(bytes.NewReader(buf), r)
			return hint, rest, nil
		}
		size *= 2
	}
}
