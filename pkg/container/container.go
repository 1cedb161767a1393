// Package container parses ISO Base Media File Format (MP4/MOV) streams
// to produce chunker cut-hints: keyframe offsets and protected ranges
// that must never be split across a chunk boundary.
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/byronwade/dits/pkg/chunk"
)

// Hint carries everything the chunker needs from a parsed container:
// soft keyframe cut-hints and hard protected byte ranges.
type Hint struct {
	KeyframeOffsets []chunk.Hint
	ProtectedRanges []chunk.Range
}

// Empty reports whether the hint carries no information, the fallback
// value when parsing fails or the input isn't a recognized container.
func (h Hint) Empty() bool {
	return len(h.KeyframeOffsets) == 0 && len(h.ProtectedRanges) == 0
}

type box struct {
	typ    string
	offset uint64
	size   uint64 // total box size including header
	header uint64 // header length (8, or 16 for a 64-bit size)
}

func (b box) bodyOffset() uint64 { return b.offset + b.header }
func (b box) bodyEnd() uint64    { return b.offset + b.size }

// Parse walks the top-level boxes of r (size bytes long) and derives a
// Hint. It never returns an error for malformed or unrecognized input;
// per the container-parser contract, failure degrades to an empty Hint
// so callers fall back to generic chunking.
func Parse(r io.ReaderAt, size uint64) Hint {
	boxes, err := walkBoxes(r, 0, size)
	if err != nil || len(boxes) == 0 {
		return Hint{}
	}

	var hint Hint
	for _, b := range boxes {
		switch b.typ {
		case "mdat":
			// not protected: this is exactly the payload range the
			// chunker is free to cut anywhere inside.
		case "moof":
			// fragmented MP4: each moof is a protected range, its
			// associated sample offsets (in the following mdat) are
			// emitted as keyframe hints by parseMoof.
			hint.ProtectedRanges = append(hint.ProtectedRanges, chunk.Range{Start: b.offset, End: b.bodyEnd()})
			hint.KeyframeOffsets = append(hint.KeyframeOffsets, parseMoof(r, b)...)
		default:
			// every non-mdat top-level box (ftyp, moov, free, mfra, ...)
			// is protected: it must land entirely inside one chunk.
			hint.ProtectedRanges = append(hint.ProtectedRanges, chunk.Range{Start: b.offset, End: b.bodyEnd()})
		}

		if b.typ == "moov" {
			hint.KeyframeOffsets = append(hint.KeyframeOffsets, parseMoov(r, b)...)
		}
	}

	sort.Slice(hint.ProtectedRanges, func(i, j int) bool { return hint.ProtectedRanges[i].Start < hint.ProtectedRanges[j].Start })
	sort.Slice(hint.KeyframeOffsets, func(i, j int) bool { return hint.KeyframeOffsets[i].Offset < hint.KeyframeOffsets[j].Offset })
	return hint
}

// walkBoxes reads box headers in [start, end) without descending into
// children. A truncated trailing box is dropped silently: only the boxes
// before it are returned and the rest of the range is left unparsed,
// matching the "truncated boxes chunk generically past the last valid
// box" failure policy.
func walkBoxes(r io.ReaderAt, start, end uint64) ([]box, error) {
	var boxes []box
	offset := start
	hdr := make([]byte, 8)

	for offset+8 <= end {
		if _, err := r.ReadAt(hdr, int64(offset)); err != nil {
			break
		}
		size32 := binary.BigEndian.Uint32(hdr[0:4])
		typ := string(hdr[4:8])

		var size uint64
		headerLen := uint64(8)

		switch size32 {
		case 0:
			size = end - offset
		case 1:
			ext := make([]byte, 8)
			if offset+16 > end {
				return boxes, nil
			}
			if _, err := r.ReadAt(ext, int64(offset+8)); err != nil {
				return boxes, nil
			}
			size = binary.BigEndian.Uint64(ext)
			headerLen = 16
		default:
			size = uint64(size32)
		}

		if size < headerLen || offset+size > end {
			// malformed or truncated: stop here, caller treats the rest
			// of the stream as unparsed (falls back to generic chunking).
			return boxes, nil
		}

		boxes = append(boxes, box{typ: typ, offset: offset, size: size, header: headerLen})
		offset += size
	}
	return boxes, nil
}

// parseMoov descends into trak/mdia/minf/stbl to recover sync-sample
// (keyframe) positions and the chunk-offset table that locates them in
// bytes, then emits one keyframe hint per sync sample.
func parseMoov(r io.ReaderAt, moov box) []chunk.Hint {
	traks, err := walkBoxes(r, moov.bodyOffset(), moov.bodyEnd())
	if err != nil {
		return nil
	}

	var hints []chunk.Hint
	for _, t := range traks {
		if t.typ != "trak" {
			continue
		}
		hints = append(hints, parseTrak(r, t)...)
	}
	return hints
}

func parseTrak(r io.ReaderAt, trak box) []chunk.Hint {
	mdia, ok := findChild(r, trak, "mdia")
	if !ok {
		return nil
	}
	minf, ok := findChild(r, mdia, "minf")
	if !ok {
		return nil
	}
	stbl, ok := findChild(r, minf, "stbl")
	if !ok {
		return nil
	}

	children, err := walkBoxes(r, stbl.bodyOffset(), stbl.bodyEnd())
	if err != nil {
		return nil
	}

	var stss, stco, co64, stsc box
	haveStss, haveStco, haveCo64, haveStsc := false, false, false, false
	for _, c := range children {
		switch c.typ {
		case "stss":
			stss, haveStss = c, true
		case "stco":
			stco, haveStco = c, true
		case "co64":
			co64, haveCo64 = c, true
		case "stsc":
			stsc, haveStsc = c, true
		}
	}
	if !haveStss || !haveStsc || (!haveStco && !haveCo64) {
		return nil
	}

	syncSamples, err := readU32Table(r, stss, 8)
	if err != nil {
		return nil
	}

	var chunkOffsets []uint64
	if haveCo64 {
		chunkOffsets, err = readOffsetTable64(r, co64)
	} else {
		chunkOffsets, err = readOffsetTable32(r, stco)
	}
	if err != nil {
		return nil
	}

	stscEntries, err := readStsc(r, stsc)
	if err != nil {
		return nil
	}

	sampleChunk := sampleToChunkIndex(stscEntries, uint32(len(chunkOffsets)))

	var hints []chunk.Hint
	for i, sample := range syncSamples {
		idx := int(sample) - 1
		if idx < 0 || idx >= len(sampleChunk) {
			continue
		}
		chunkIdx := int(sampleChunk[idx]) - 1
		if chunkIdx < 0 || chunkIdx >= len(chunkOffsets) {
			continue
		}

		weight := 1.0
		if i > 0 {
			weight = float64(sample-syncSamples[i-1]) + 1
		}

		hints = append(hints, chunk.Hint{Offset: chunkOffsets[chunkIdx], Weight: weight})
	}
	return hints
}

// parseMoof locates the trun sample-offset table inside a fragment, if
// present, and emits those offsets as hints relative to the moof's
// associated mdat. Full trun parsing (sample flags distinguishing
// keyframes) is a refinement left for a future pass; today every sample
// offset in a fragment is emitted as an equal-weight hint.
func parseMoof(r io.ReaderAt, moof box) []chunk.Hint {
	children, err := walkBoxes(r, moof.bodyOffset(), moof.bodyEnd())
	if err != nil {
		return nil
	}
	for _, c := range children {
		if c.typ != "traf" {
			continue
		}
		return parseTraf(r, c)
	}
	return nil
}

func parseTraf(r io.ReaderAt, traf box) []chunk.Hint {
	children, err := walkBoxes(r, traf.bodyOffset(), traf.bodyEnd())
	if err != nil {
		return nil
	}

	var baseOffset uint64
	for _, c := range children {
		if c.typ == "tfhd" {
			baseOffset = parseTfhdBaseOffset(r, c)
		}
	}

	var hints []chunk.Hint
	for _, c := range children {
		if c.typ != "trun" {
			continue
		}
		offsets := parseTrunOffsets(r, c, baseOffset)
		for _, off := range offsets {
			hints = append(hints, chunk.Hint{Offset: off, Weight: 1.0})
		}
	}
	return hints
}

func parseTfhdBaseOffset(r io.ReaderAt, tfhd box) uint64 {
	body, err := readBody(r, tfhd)
	if err != nil || len(body) < 8 {
		return 0
	}
	flags := uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	const baseDataOffsetPresent = 0x000001
	if flags&baseDataOffsetPresent == 0 || len(body) < 16 {
		return 0
	}
	return binary.BigEndian.Uint64(body[8:16])
}

func parseTrunOffsets(r io.ReaderAt, trun box, baseOffset uint64) []uint64 {
	body, err := readBody(r, trun)
	if err != nil || len(body) < 8 {
		return nil
	}
	flags := uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	sampleCount := binary.BigEndian.Uint32(body[4:8])

	pos := 8
	const dataOffsetPresent = 0x000001
	cursor := baseOffset
	if flags&dataOffsetPresent != 0 {
		if pos+4 > len(body) {
			return nil
		}
		dataOffset := int32(binary.BigEndian.Uint32(body[pos : pos+4]))
		cursor = uint64(int64(baseOffset) + int64(dataOffset))
		pos += 4
	}
	if flags&0x000004 != 0 { // first-sample-flags-present
		pos += 4
	}

	fieldSize := 0
	if flags&0x000100 != 0 { // sample-duration-present
		fieldSize += 4
	}
	sizePresent := flags&0x000200 != 0
	if sizePresent {
		fieldSize += 4
	}
	if flags&0x000400 != 0 { // sample-flags-present
		fieldSize += 4
	}
	if flags&0x000800 != 0 { // sample-composition-time-offsets-present
		fieldSize += 4
	}

	var offsets []uint64
	for i := uint32(0); i < sampleCount; i++ {
		offsets = append(offsets, cursor)
		if pos+fieldSize > len(body) {
			break
		}
		if sizePresent {
			durSkip := 0
			if flags&0x000100 != 0 {
				durSkip = 4
			}
			sizeOff := pos + durSkip
			if sizeOff+4 <= len(body) {
				cursor += uint64(binary.BigEndian.Uint32(body[sizeOff : sizeOff+4]))
			}
		}
		pos += fieldSize
	}
	return offsets
}

func findChild(r io.ReaderAt, parent box, typ string) (box, bool) {
	children, err := walkBoxes(r, parent.bodyOffset(), parent.bodyEnd())
	if err != nil {
		return box{}, false
	}
	for _, c := range children {
		if c.typ == typ {
			return c, true
		}
	}
	return box{}, false
}

func readBody(r io.ReaderAt, b box) ([]byte, error) {
	if b.bodyEnd() < b.bodyOffset() {
		return nil, fmt.Errorf("container: box %q has negative body length", b.typ)
	}
	n := b.bodyEnd() - b.bodyOffset()
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, int64(b.bodyOffset())); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// readU32Table reads a full-box table of the form version(1) flags(3)
// entry_count(4) entries(4*count), used by stss.
func readU32Table(r io.ReaderAt, b box, skip int) ([]uint32, error) {
	body, err := readBody(r, b)
	if err != nil || len(body) < skip {
		return nil, fmt.Errorf("container: short %q box", b.typ)
	}
	count := binary.BigEndian.Uint32(body[skip-4 : skip])
	entries := make([]uint32, 0, count)
	off := skip
	for i := uint32(0); i < count && off+4 <= len(body); i++ {
		entries = append(entries, binary.BigEndian.Uint32(body[off:off+4]))
		off += 4
	}
	return entries, nil
}

func readOffsetTable32(r io.ReaderAt, stco box) ([]uint64, error) {
	vals, err := readU32Table(r, stco, 8)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = uint64(v)
	}
	return out, nil
}

func readOffsetTable64(r io.ReaderAt, co64 box) ([]uint64, error) {
	body, err := readBody(r, co64)
	if err != nil || len(body) < 8 {
		return nil, fmt.Errorf("container: short co64 box")
	}
	count := binary.BigEndian.Uint32(body[4:8])
	entries := make([]uint64, 0, count)
	off := 8
	for i := uint32(0); i < count && off+8 <= len(body); i++ {
		entries = append(entries, binary.BigEndian.Uint64(body[off:off+8]))
		off += 8
	}
	return entries, nil
}

type stscEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

func readStsc(r io.ReaderAt, stsc box) ([]stscEntry, error) {
	body, err := readBody(r, stsc)
	if err != nil || len(body) < 8 {
		return nil, fmt.Errorf("container: short stsc box")
	}
	count := binary.BigEndian.Uint32(body[4:8])
	entries := make([]stscEntry, 0, count)
	off := 8
	for i := uint32(0); i < count && off+12 <= len(body); i++ {
		entries = append(entries, stscEntry{
			firstChunk:      binary.BigEndian.Uint32(body[off : off+4]),
			samplesPerChunk: binary.BigEndian.Uint32(body[off+4 : off+8]),
		})
		off += 12
	}
	return entries, nil
}

// sampleToChunkIndex expands the stsc run-length table into a per-sample
// chunk index (1-based), one entry per sample in track order.
func sampleToChunkIndex(entries []stscEntry, totalChunks uint32) []uint32 {
	if len(entries) == 0 || totalChunks == 0 {
		return nil
	}

	var out []uint32
	for i, e := range entries {
		last := totalChunks
		if i+1 < len(entries) {
			last = entries[i+1].firstChunk - 1
		}
		for c := e.firstChunk; c <= last; c++ {
			for s := uint32(0); s < e.samplesPerChunk; s++ {
				out = append(out, c)
			}
		}
	}
	return out
}
