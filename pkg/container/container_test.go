package container

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildBox writes a standard 32-bit-size box with the given 4-byte type
// and body.
func buildBox(typ string, body []byte) []byte {
	out := make([]byte, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(out)))
	copy(out[4:8], typ)
	copy(out[8:], body)
	return out
}

func fullBoxHeader(entryCount uint32) []byte {
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[4:8], entryCount)
	return hdr
}

func buildStco(offsets []uint32) []byte {
	body := fullBoxHeader(uint32(len(offsets)))
	for _, o := range offsets {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, o)
		body = append(body, b...)
	}
	return buildBox("stco", body)
}

func buildStss(samples []uint32) []byte {
	body := fullBoxHeader(uint32(len(samples)))
	for _, s := range samples {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, s)
		body = append(body, b...)
	}
	return buildBox("stss", body)
}

func buildStsc(entries [][2]uint32) []byte {
	body := fullBoxHeader(uint32(len(entries)))
	for _, e := range entries {
		b := make([]byte, 12)
		binary.BigEndian.PutUint32(b[0:4], e[0])
		binary.BigEndian.PutUint32(b[4:8], e[1])
		binary.BigEndian.PutUint32(b[8:12], 1)
		body = append(body, b...)
	}
	return buildBox("stsc", body)
}

// buildMinimalMP4 constructs a synthetic, structurally valid MP4 with one
// track, two "chunks" (in the stco sense) each holding two samples, and a
// sync sample at the start of each stco chunk.
func buildMinimalMP4(mdatBody []byte) []byte {
	stsc := buildStsc([][2]uint32{{1, 2}})
	stss := buildStss([]uint32{1, 3})

	ftypSize := 16
	mdatOffset := ftypSize + 0 // filled in after we know moov size, see below

	// chunk offsets point into mdat: two chunks of 8 bytes each.
	_ = mdatOffset
	stbl := buildBox("stbl", concat(
		buildBox("stsd", []byte{0, 0, 0, 0}),
		stsc,
		stss,
		buildStco([]uint32{0, 0}), // placeholder, patched below
	))
	minf := buildBox("minf", stbl)
	mdia := buildBox("mdia", minf)
	trak := buildBox("trak", mdia)
	moov := buildBox("moov", trak)

	ftyp := buildBox("ftyp", []byte("isom0000isomiso2mp41"))

	mdatHeaderLen := 8
	mdatOffsetAbs := uint32(len(ftyp) + len(moov) + mdatHeaderLen)

	stbl = buildBox("stbl", concat(
		buildBox("stsd", []byte{0, 0, 0, 0}),
		stsc,
		stss,
		buildStco([]uint32{mdatOffsetAbs, mdatOffsetAbs + 8}),
	))
	minf = buildBox("minf", stbl)
	mdia = buildBox("mdia", minf)
	trak = buildBox("trak", mdia)
	moov = buildBox("moov", trak)

	mdat := buildBox("mdat", mdatBody)

	return concat(ftyp, moov, mdat)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestParse_MinimalMP4(t *testing.T) {
	data := buildMinimalMP4(bytes.Repeat([]byte{0xAB}, 16))
	r := bytes.NewReader(data)

	hint := Parse(r, uint64(len(data)))
	if hint.Empty() {
		t.Fatal("expected a non-empty hint for a valid MP4")
	}

	foundFtyp, foundMoov := false, false
	for _, rng := range hint.ProtectedRanges {
		if rng.Start == 0 {
			foundFtyp = true
		}
		if rng.Start > 0 && rng.End < uint64(len(data)) {
			foundMoov = true
		}
	}
	if !foundFtyp {
		t.Error("expected ftyp to be a protected range")
	}
	if !foundMoov {
		t.Error("expected moov to be a protected range")
	}

	if len(hint.KeyframeOffsets) != 2 {
		t.Fatalf("expected 2 keyframe hints (one per stco chunk), got %d", len(hint.KeyframeOffsets))
	}
}

func TestParse_TruncatedInput(t *testing.T) {
	data := buildMinimalMP4(bytes.Repeat([]byte{0xCD}, 16))
	truncated := data[:len(data)-20]

	hint := Parse(bytes.NewReader(truncated), uint64(len(truncated)))
	// truncation should not panic or error; it may yield a partial or
	// empty hint depending on where the cut falls.
	_ = hint
}

func TestParse_NotAContainer(t *testing.T) {
	data := bytes.Repeat([]byte{0x00, 0x01, 0x02, 0x03}, 100)
	hint := Parse(bytes.NewReader(data), uint64(len(data)))
	if !hint.Empty() {
		t.Error("expected empty hint for non-container input")
	}
}

func TestParse_EmptyInput(t *testing.T) {
	hint := Parse(bytes.NewReader(nil), 0)
	if !hint.Empty() {
		t.Error("expected empty hint for empty input")
	}
}
