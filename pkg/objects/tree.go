package objects

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/byronwade/dits/pkg/hashapi"
)

var treeMagic = [4]byte{'D', 'I', 'T', 'T'}

const treeVersion = 1

// TreeEntryFlagTextEngine marks an entry whose Hash field is not a
// chunked manifest's asset_hash but an opaque identifier returned by the
// external text engine.
const TreeEntryFlagTextEngine uint8 = 1 << 0

// TreeEntry is one path's record inside a Tree, sorted by Path
// byte-lexicographically.
type TreeEntry struct {
	Mode  uint16
	Flags uint8
	Size  uint64
	Hash  hashapi.Hash
	Path  string
}

// Tree is a content-addressed directory snapshot: a sorted list of path
// entries, each naming either a chunked asset or a text-engine blob.
type Tree struct {
	Entries []TreeEntry
}

// Encode produces the canonical byte representation: sorted entries of
// (mode:u16, flags:u8, size:u64, hash:32B, path_len:u16, path:bytes).
func (t Tree) Encode() ([]byte, error) {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	const headerLen = 4 + 4 + 4
	size := headerLen
	for _, e := range entries {
		if len(e.Path) > 1<<16-1 {
			return nil, fmt.Errorf("objects: tree entry path too long (%d bytes): %q", len(e.Path), e.Path)
		}
		size += 2 + 1 + 8 + 32 + 2 + len(e.Path)
	}

	buf := make([]byte, size)
	copy(buf[0:4], treeMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], treeVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(entries)))

	off := headerLen
	for _, e := range entries {
		binary.LittleEndian.PutUint16(buf[off:off+2], e.Mode)
		buf[off+2] = e.Flags
		binary.LittleEndian.PutUint64(buf[off+3:off+11], e.Size)
		copy(buf[off+11:off+43], e.Hash[:])
		binary.LittleEndian.PutUint16(buf[off+43:off+45], uint16(len(e.Path)))
		copy(buf[off+45:off+45+len(e.Path)], e.Path)
		off += 45 + len(e.Path)
	}
	return buf, nil
}

// DecodeTree parses the canonical encoding produced by Encode.
func DecodeTree(buf []byte) (Tree, error) {
	const headerLen = 4 + 4 + 4
	if len(buf) < headerLen {
		return Tree{}, fmt.Errorf("objects: tree too short (%d bytes)", len(buf))
	}
	if string(buf[0:4]) != string(treeMagic[:]) {
		return Tree{}, fmt.Errorf("objects: bad tree magic")
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != treeVersion {
		return Tree{}, fmt.Errorf("objects: unsupported tree version %d", version)
	}
	count := binary.LittleEndian.Uint32(buf[8:12])

	var t Tree
	off := headerLen
	for i := uint32(0); i < count; i++ {
		if off+45 > len(buf) {
			return Tree{}, fmt.Errorf("objects: truncated tree entry %d", i)
		}
		mode := binary.LittleEndian.Uint16(buf[off : off+2])
		flags := buf[off+2]
		entSize := binary.LittleEndian.Uint64(buf[off+3 : off+11])
		var h hashapi.Hash
		copy(h[:], buf[off+11:off+43])
		pathLen := int(binary.LittleEndian.Uint16(buf[off+43 : off+45]))
		off += 45
		if off+pathLen > len(buf) {
			return Tree{}, fmt.Errorf("objects: truncated tree entry %d path", i)
		}
		path := string(buf[off : off+pathLen])
		off += pathLen

		t.Entries = append(t.Entries, TreeEntry{
			Mode:  mode,
			Flags: flags,
			Size:  entSize,
			Hash:  h,
			Path:  path,
		})
	}
	if off != len(buf) {
		return Tree{}, fmt.Errorf("objects: tree has %d trailing bytes", len(buf)-off)
	}
	return t, nil
}
