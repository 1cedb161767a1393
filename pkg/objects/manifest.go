// Package objects implements the canonical binary encodings and
// content-addressed storage for manifests, trees, and commits.
package objects

import (
	"encoding/binary"
	"fmt"

	"github.com/byronwade/dits/pkg/chunk"
	"github.com/byronwade/dits/pkg/hashapi"
)

var manifestMagic = [4]byte{'D', 'I', 'T', 'M'}

const manifestVersion = 1

// ManifestFlagOversizeChunk is set when the manifest contains a chunk
// that exceeds the profile's MAX because it covers a protected
// container range (e.g. an oversize moov).
const ManifestFlagOversizeChunk uint32 = 1 << 0

// ChunkEntry is one (hash, length) record inside a manifest, in stream
// order.
type ChunkEntry struct {
	Hash   hashapi.Hash
	Length uint32
}

// Manifest is the content-addressed description of one file's chunked
// representation. AssetHash is a property of the represented file's
// plaintext bytes, computed independently of this encoding.
type Manifest struct {
	TotalSize uint64
	AssetHash hashapi.Hash
	Profile   chunk.Profile
	Flags     uint32
	Chunks    []ChunkEntry
}

var profileIDs = map[chunk.Profile]uint8{
	chunk.ProfileGeneric:         0,
	chunk.ProfileVideoCompressed: 1,
	chunk.ProfileVideoProRes:     2,
	chunk.ProfileAudio:           3,
}

var profileByID = func() map[uint8]chunk.Profile {
	m := make(map[uint8]chunk.Profile, len(profileIDs))
	for p, id := range profileIDs {
		m[id] = p
	}
	return m
}()

// Encode produces the canonical byte representation of m: a fixed
// header (magic, version, total_size, asset_hash, chunk_count,
// profile_id, flags) followed by chunk_count (hash, length) records,
// all integers little-endian.
func (m Manifest) Encode() ([]byte, error) {
	profileID, ok := profileIDs[m.Profile]
	if !ok {
		return nil, fmt.Errorf("objects: unknown profile %q", m.Profile)
	}
	if len(m.Chunks) > 1<<32-1 {
		return nil, fmt.Errorf("objects: too many chunks (%d)", len(m.Chunks))
	}

	const headerLen = 4 + 4 + 8 + 32 + 4 + 1 + 4
	buf := make([]byte, headerLen+len(m.Chunks)*(32+4))

	copy(buf[0:4], manifestMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], manifestVersion)
	binary.LittleEndian.PutUint64(buf[8:16], m.TotalSize)
	copy(buf[16:48], m.AssetHash[:])
	binary.LittleEndian.PutUint32(buf[48:52], uint32(len(m.Chunks)))
	buf[52] = profileID
	binary.LittleEndian.PutUint32(buf[53:57], m.Flags)

	off := headerLen
	for _, c := range m.Chunks {
		copy(buf[off:off+32], c.Hash[:])
		binary.LittleEndian.PutUint32(buf[off+32:off+36], c.Length)
		off += 36
	}
	return buf, nil
}

// DecodeManifest parses the canonical encoding produced by Encode.
func DecodeManifest(buf []byte) (Manifest, error) {
	const headerLen = 4 + 4 + 8 + 32 + 4 + 1 + 4
	if len(buf) < headerLen {
		return Manifest{}, fmt.Errorf("objects: manifest too short (%d bytes)", len(buf))
	}
	if string(buf[0:4]) != string(manifestMagic[:]) {
		return Manifest{}, fmt.Errorf("objects: bad manifest magic")
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != manifestVersion {
		return Manifest{}, fmt.Errorf("objects: unsupported manifest version %d", version)
	}

	var m Manifest
	m.TotalSize = binary.LittleEndian.Uint64(buf[8:16])
	copy(m.AssetHash[:], buf[16:48])
	count := binary.LittleEndian.Uint32(buf[48:52])
	profileID := buf[52]
	m.Flags = binary.LittleEndian.Uint32(buf[53:57])

	profile, ok := profileByID[profileID]
	if !ok {
		return Manifest{}, fmt.Errorf("objects: unknown profile id %d", profileID)
	}
	m.Profile = profile

	want := headerLen + int(count)*36
	if len(buf) != want {
		return Manifest{}, fmt.Errorf("objects: manifest length %d, want %d for %d chunks", len(buf), want, count)
	}

	m.Chunks = make([]ChunkEntry, count)
	off := headerLen
	for i := range m.Chunks {
		var h hashapi.Hash
		copy(h[:], buf[off:off+32])
		m.Chunks[i] = ChunkEntry{
			Hash:   h,
			Length: binary.LittleEndian.Uint32(buf[off+32 : off+36]),
		}
		off += 36
	}
	return m, nil
}
