package hashapi

import (
	"bytes"
	"testing"
)

func TestHashParallel_MatchesStreaming(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 1000)

	for _, algo := range []Algo{AlgoBLAKE3, AlgoSHA256} {
		h := New(algo)
		if _, err := h.Write(data); err != nil {
			t.Fatal(err)
		}
		streamed := h.Finalize()

		parallel := HashParallel(algo, data)
		if streamed != parallel {
			t.Errorf("%s: streaming hash %s != parallel hash %s", algo, streamed, parallel)
		}
	}
}

func TestHashParallel_Deterministic(t *testing.T) {
	data := []byte("deterministic content")
	a := HashParallel(AlgoBLAKE3, data)
	b := HashParallel(AlgoBLAKE3, data)
	if a != b {
		t.Error("HashParallel is not deterministic for identical input")
	}
}

func TestHashParallel_EmptyInputIsDefined(t *testing.T) {
	h := HashParallel(AlgoBLAKE3, nil)
	if h.IsZero() {
		t.Error("empty input hash must not be the zero sentinel")
	}
	again := HashParallel(AlgoBLAKE3, []byte{})
	if h != again {
		t.Error("empty input hash is not stable across calls")
	}
}

func TestHasher_IncrementalWritesMatchOneShot(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz")
	h := New(AlgoBLAKE3)
	for i := 0; i < len(data); i += 3 {
		end := i + 3
		if end > len(data) {
			end = len(data)
		}
		if _, err := h.Write(data[i:end]); err != nil {
			t.Fatal(err)
		}
	}
	incremental := h.Finalize()
	oneShot := HashParallel(AlgoBLAKE3, data)
	if incremental != oneShot {
		t.Error("incremental writes produced a different hash than a one-shot write")
	}
}

func TestHash_StringAndParseRoundTrip(t *testing.T) {
	h := HashParallel(AlgoBLAKE3, []byte("round trip me"))
	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != h {
		t.Errorf("ParseHash(h.String()) = %s, want %s", parsed, h)
	}
}

func TestParseHash_RejectsWrongLength(t *testing.T) {
	if _, err := ParseHash("abcd"); err == nil {
		t.Fatal("expected error for short hex string")
	}
}

func TestParseHash_RejectsNonHex(t *testing.T) {
	if _, err := ParseHash("not-hex-not-hex-not-hex-not-hex-not-hex-not-hexxx"); err == nil {
		t.Fatal("expected error for non-hex string")
	}
}

func TestHash_Less_IsByteLex(t *testing.T) {
	a := Hash{0x00, 0x01}
	b := Hash{0x00, 0x02}
	if !a.Less(b) {
		t.Error("a should be less than b")
	}
	if b.Less(a) {
		t.Error("b should not be less than a")
	}
	if a.Less(a) {
		t.Error("a should not be less than itself")
	}
}

func TestNew_UnrecognizedAlgoFallsBackToBLAKE3(t *testing.T) {
	h := New(Algo("not-a-real-algo"))
	h.Write([]byte("x"))
	got := h.Finalize()
	want := HashParallel(AlgoBLAKE3, []byte("x"))
	if got != want {
		t.Error("unrecognized algo did not fall back to BLAKE3")
	}
}

func TestSHA256Backend_DiffersFromBLAKE3(t *testing.T) {
	data := []byte("backend selection matters")
	if HashParallel(AlgoBLAKE3, data) == HashParallel(AlgoSHA256, data) {
		t.Error("blake3 and sha256 backends collided on the same input")
	}
}
