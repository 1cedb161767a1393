package chunk

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/byronwade/dits/pkg/hashapi"
)

func reassemble(t *testing.T, c *Chunker) ([]Chunk, []byte) {
	t.Helper()
	var chunks []Chunk
	var all []byte
	for {
		meta, data, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, meta)
		all = append(all, data...)
	}
	return chunks, all
}

func TestChunker_EmptyInput(t *testing.T) {
	params, err := ParamsFor(ProfileGeneric)
	if err != nil {
		t.Fatal(err)
	}
	c := NewChunker(bytes.NewReader(nil), params, nil, nil, hashapi.AlgoBLAKE3)

	_, _, err = c.Next()
	if err != io.EOF {
		t.Fatalf("Next() on empty input = %v, want io.EOF", err)
	}
}

func TestChunker_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		size    int
	}{
		{"generic small", ProfileGeneric, 10},
		{"generic 10MiB zero", ProfileGeneric, 10 * MiB},
		{"audio 2MiB random", ProfileAudio, 2 * MiB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := ParamsFor(tt.profile)
			if err != nil {
				t.Fatal(err)
			}

			data := make([]byte, tt.size)
			if tt.name == "audio 2MiB random" {
				rand.New(rand.NewSource(1)).Read(data)
			}

			c := NewChunker(bytes.NewReader(data), params, nil, nil, hashapi.AlgoBLAKE3)
			chunks, reassembled := reassemble(t, c)

			if !bytes.Equal(reassembled, data) {
				t.Fatalf("reassembled data does not match input: got %d bytes, want %d", len(reassembled), len(data))
			}

			for i, ch := range chunks {
				isLast := i == len(chunks)-1
				if !isLast && !ch.Oversize {
					if uint64(ch.Length) < params.Min || uint64(ch.Length) > params.Max {
						t.Errorf("chunk %d length %d outside [%d, %d]", i, ch.Length, params.Min, params.Max)
					}
				}
			}
		})
	}
}

func TestChunker_Determinism(t *testing.T) {
	params, err := ParamsFor(ProfileGeneric)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 5*MiB)
	rand.New(rand.NewSource(42)).Read(data)

	hashesOf := func() []hashapi.Hash {
		c := NewChunker(bytes.NewReader(data), params, nil, nil, hashapi.AlgoBLAKE3)
		var hashes []hashapi.Hash
		for {
			meta, _, err := c.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			hashes = append(hashes, meta.Hash)
		}
		return hashes
	}

	a := hashesOf()
	b := hashesOf()

	if len(a) != len(b) {
		t.Fatalf("chunk counts differ across runs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d hash differs across runs: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestChunker_ShiftResistance(t *testing.T) {
	params, err := ParamsFor(ProfileGeneric)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 8*MiB)
	rand.New(rand.NewSource(7)).Read(data)

	shifted := make([]byte, 0, len(data)+1024)
	shifted = append(shifted, data[:2*MiB]...)
	insert := make([]byte, 1024)
	rand.New(rand.NewSource(99)).Read(insert)
	shifted = append(shifted, insert...)
	shifted = append(shifted, data[2*MiB:]...)

	chunkHashes := func(b []byte) map[hashapi.Hash]bool {
		c := NewChunker(bytes.NewReader(b), params, nil, nil, hashapi.AlgoBLAKE3)
		set := map[hashapi.Hash]bool{}
		for {
			meta, _, err := c.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			set[meta.Hash] = true
		}
		return set
	}

	orig := chunkHashes(data)
	mod := chunkHashes(shifted)

	shared := 0
	for h := range orig {
		if mod[h] {
			shared++
		}
	}

	if shared < len(orig)-2 {
		t.Errorf("shift of 1KiB changed too many chunks: shared=%d, total=%d", shared, len(orig))
	}
}

func TestChunker_ProtectedRangeForcesOversizeChunk(t *testing.T) {
	params, err := ParamsFor(ProfileGeneric)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, int(params.Max)*2)
	rand.New(rand.NewSource(3)).Read(data)

	protected := []Range{{Start: 0, End: uint64(len(data))}}

	c := NewChunker(bytes.NewReader(data), params, nil, protected, hashapi.AlgoBLAKE3)
	chunks, reassembled := reassemble(t, c)

	if !bytes.Equal(reassembled, data) {
		t.Fatal("reassembled data does not match input")
	}
	if len(chunks) != 1 {
		t.Fatalf("expected a single oversize chunk covering the protected range, got %d chunks", len(chunks))
	}
	if !chunks[0].Oversize {
		t.Error("expected Oversize=true for a protected range larger than MAX")
	}
	if !chunks[0].Forced {
		t.Error("expected Forced=true for a protected-range cut")
	}
}

func TestChunker_KeyframeHintSnapsBoundary(t *testing.T) {
	params, err := ParamsFor(ProfileGeneric)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, int(params.Avg)*2)
	rand.New(rand.NewSource(5)).Read(data)

	hintOffset := params.Min + 17
	hints := []Hint{{Offset: hintOffset, Weight: 1.0}}

	c := NewChunker(bytes.NewReader(data), params, hints, nil, hashapi.AlgoBLAKE3)
	meta, _, err := c.Next()
	if err != nil {
		t.Fatal(err)
	}

	if uint64(meta.Length) != hintOffset {
		t.Errorf("first chunk length = %d, want %d (hint offset)", meta.Length, hintOffset)
	}
	if !meta.Forced {
		t.Error("expected Forced=true for a hint-driven cut")
	}
}

func TestParamsFor_UnknownProfile(t *testing.T) {
	if _, err := ParamsFor(Profile("does-not-exist")); err == nil {
		t.Error("expected error for unknown profile")
	}
}
