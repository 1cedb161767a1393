package chunk

import (
	"fmt"
	"math/bits"
)

// Profile names the four chunking presets. Part of the manifest's encoded
// profile_id field, so renaming a profile here is a format change.
type Profile string

const (
	ProfileGeneric         Profile = "generic"
	ProfileVideoCompressed Profile = "video_compressed"
	ProfileVideoProRes     Profile = "video_prores"
	ProfileAudio           Profile = "audio"
)

const (
	KiB = 1 << 10
	MiB = 1 << 20
)

// Params holds the size clamps and derived gear masks for one profile.
type Params struct {
	Min, Avg, Max uint64
	MaskS, MaskL  uint64
}

var profileTable = map[Profile]Params{
	ProfileGeneric:         newParams(256*KiB, 1*MiB, 4*MiB),
	ProfileVideoCompressed: newParams(256*KiB, 1*MiB, 4*MiB),
	ProfileVideoProRes:     newParams(512*KiB, 2*MiB, 8*MiB),
	ProfileAudio:           newParams(64*KiB, 256*KiB, 1*MiB),
}

// newParams derives MASK_S/MASK_L per §4.2.3: MASK_S carries log2(AVG)+1
// low bits set, MASK_L carries log2(AVG)-1. AVG is a power of two for every
// profile above, so bits.Len64(avg)-1 is exactly log2(avg).
func newParams(min, avg, max uint64) Params {
	log2avg := bits.Len64(avg) - 1
	return Params{
		Min:   min,
		Avg:   avg,
		Max:   max,
		MaskS: lowBitsMask(log2avg + 1),
		MaskL: lowBitsMask(log2avg - 1),
	}
}

func lowBitsMask(n int) uint64 {
	if n <= 0 {
		return 0
	}
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

// ParamsFor returns the size clamps and gear masks for a named profile.
func ParamsFor(p Profile) (Params, error) {
	params, ok := profileTable[p]
	if !ok {
		return Params{}, fmt.Errorf("chunk: unknown profile %q", p)
	}
	return params, nil
}
