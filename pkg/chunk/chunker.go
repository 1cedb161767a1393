// Package chunk implements content-defined chunking over a byte stream
// using a FastCDC-family gear hash with per-profile size clamps, optional
// keyframe cut-hints, and hard protected-range boundaries supplied by a
// container parser.
package chunk

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/byronwade/dits/pkg/hashapi"
)

// Range is a half-open byte range, [Start, End), that must land entirely
// inside one chunk. Used for non-mdat container boxes such as moov that
// must never be split across a chunk boundary.
type Range struct {
	Start, End uint64
}

// Hint is a soft cut-hint: a position the chunker prefers to cut at, with
// a weight reflecting confidence (larger frame gaps around the offset
// produce higher weight). Hints are advisory and only apply once the
// current chunk has reached MIN.
type Hint struct {
	Offset uint64
	Weight float64
}

// Chunk describes one emitted chunk's placement and flags. The chunk's
// bytes are returned alongside it by Next, not stored on this struct.
type Chunk struct {
	Hash     hashapi.Hash
	Offset   uint64
	Length   uint32
	Forced   bool // cut was not a natural gear-hash boundary
	Oversize bool // length exceeds the profile's MAX, permitted only for protected ranges
}

// Chunker splits a stream into content-defined chunks for one profile.
type Chunker struct {
	r      *bufio.Reader
	params Params
	algo   hashapi.Algo

	protected []Range
	protIdx   int
	keyframes []Hint
	kfIdx     int

	absOffset uint64
	done      bool
}

// NewChunker builds a Chunker reading from r. hints and protected need not
// be pre-sorted; NewChunker sorts its own copies by offset.
func NewChunker(r io.Reader, params Params, hints []Hint, protected []Range, algo hashapi.Algo) *Chunker {
	h := append([]Hint(nil), hints...)
	sort.Slice(h, func(i, j int) bool { return h[i].Offset < h[j].Offset })

	p := append([]Range(nil), protected...)
	sort.Slice(p, func(i, j int) bool { return p[i].Start < p[j].Start })

	return &Chunker{
		r:         bufio.NewReaderSize(r, int(params.Max)),
		params:    params,
		algo:      algo,
		protected: p,
		keyframes: h,
	}
}

// Next returns the next chunk and its bytes, in stream order. It returns
// io.EOF (with a zero Chunk and nil bytes) once the stream is exhausted.
// Empty input yields io.EOF on the first call without emitting a chunk.
func (c *Chunker) Next() (Chunk, []byte, error) {
	if c.done {
		return Chunk{}, nil, io.EOF
	}

	chunkStart := c.absOffset
	buf := make([]byte, 0, c.params.Avg)

	var h uint64
	var forced bool
	inProtected := false
	var protectedEnd uint64

	for {
		if !inProtected && c.protIdx < len(c.protected) && c.protected[c.protIdx].Start == c.absOffset {
			if len(buf) > 0 {
				// a protected range starts exactly here but this chunk
				// already holds bytes: close it first, the range opens its
				// own chunk on the next call.
				forced = true
				break
			}
			inProtected = true
			protectedEnd = c.protected[c.protIdx].End
			c.protIdx++
		}

		b, err := c.r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Chunk{}, nil, fmt.Errorf("chunk: read: %w", err)
		}

		buf = append(buf, b)
		c.absOffset++

		if inProtected {
			if c.absOffset >= protectedEnd {
				forced = true
				break
			}
			continue
		}

		if consumed := c.consumeDueKeyframe(len(buf)); consumed {
			forced = true
			break
		}

		h = (h << 1) + gearTable[b]
		n := uint64(len(buf))

		switch {
		case n < c.params.Min:
			// no boundary check below MIN
		case n < c.params.Avg:
			if h&c.params.MaskS == 0 {
				goto flush
			}
		case n < c.params.Max:
			if h&c.params.MaskL == 0 {
				goto flush
			}
		default:
			forced = true
			goto flush
		}
	}

flush:
	if len(buf) == 0 {
		c.done = true
		return Chunk{}, nil, io.EOF
	}

	hash := hashapi.HashParallel(c.algo, buf)
	chunk := Chunk{
		Hash:     hash,
		Offset:   chunkStart,
		Length:   uint32(len(buf)),
		Forced:   forced,
		Oversize: uint64(len(buf)) > c.params.Max,
	}
	return chunk, buf, nil
}

// consumeDueKeyframe pops and applies the next keyframe hint if its offset
// has been reached and the current chunk already satisfies MIN. A hint
// reached while the chunk is still below MIN is deferred: it is dropped
// here and the chunk instead waits for the next hint-eligible position,
// per the container-edge policy.
func (c *Chunker) consumeDueKeyframe(bufLen int) bool {
	applied := false
	for c.kfIdx < len(c.keyframes) && c.keyframes[c.kfIdx].Offset <= c.absOffset {
		c.kfIdx++
		if uint64(bufLen) >= c.params.Min && uint64(bufLen) <= c.params.Max {
			applied = true
			break
		}
	}
	return applied
}
