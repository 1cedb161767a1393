package objects

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/byronwade/dits/pkg/hashapi"
)

var commitMagic = [4]byte{'D', 'I', 'T', 'C'}

const commitVersion = 1

// Commit is a content-addressed snapshot pointer: a tree plus ancestry
// and provenance.
type Commit struct {
	TreeHash  hashapi.Hash
	Parents   []hashapi.Hash
	AuthorAt  time.Time
	Author    string
	Committer string
	Message   string
}

// Encode produces the canonical byte representation: header
// (tree_hash, parent_count, parents), one UTC timestamp taken from
// AuthorAt (64-bit seconds + 32-bit nanoseconds), length-prefixed UTF-8
// author/committer/message.
func (c Commit) Encode() ([]byte, error) {
	if len(c.Parents) > 1<<32-1 {
		return nil, fmt.Errorf("objects: too many parents (%d)", len(c.Parents))
	}
	if len(c.Author) > 1<<16-1 || len(c.Committer) > 1<<16-1 {
		return nil, fmt.Errorf("objects: author/committer name too long")
	}
	if len(c.Message) > 1<<32-1 {
		return nil, fmt.Errorf("objects: commit message too long")
	}

	utc := c.AuthorAt.UTC()
	size := 4 + 4 + 32 + 4 + len(c.Parents)*32 + 8 + 4 +
		2 + len(c.Author) + 2 + len(c.Committer) + 4 + len(c.Message)

	buf := make([]byte, size)
	copy(buf[0:4], commitMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], commitVersion)
	copy(buf[8:40], c.TreeHash[:])
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(c.Parents)))

	off := 44
	for _, p := range c.Parents {
		copy(buf[off:off+32], p[:])
		off += 32
	}

	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(utc.Unix()))
	binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(utc.Nanosecond()))
	off += 12

	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(c.Author)))
	off += 2
	copy(buf[off:off+len(c.Author)], c.Author)
	off += len(c.Author)

	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(c.Committer)))
	off += 2
	copy(buf[off:off+len(c.Committer)], c.Committer)
	off += len(c.Committer)

	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(c.Message)))
	off += 4
	copy(buf[off:off+len(c.Message)], c.Message)
	off += len(c.Message)

	return buf, nil
}

// DecodeCommit parses the canonical encoding produced by Encode.
func DecodeCommit(buf []byte) (Commit, error) {
	if len(buf) < 44 {
		return Commit{}, fmt.Errorf("objects: commit too short (%d bytes)", len(buf))
	}
	if string(buf[0:4]) != string(commitMagic[:]) {
		return Commit{}, fmt.Errorf("objects: bad commit magic")
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != commitVersion {
		return Commit{}, fmt.Errorf("objects: unsupported commit version %d", version)
	}

	var c Commit
	copy(c.TreeHash[:], buf[8:40])
	parentCount := binary.LittleEndian.Uint32(buf[40:44])

	off := 44
	for i := uint32(0); i < parentCount; i++ {
		if off+32 > len(buf) {
			return Commit{}, fmt.Errorf("objects: truncated parent list")
		}
		var p hashapi.Hash
		copy(p[:], buf[off:off+32])
		c.Parents = append(c.Parents, p)
		off += 32
	}

	if off+12 > len(buf) {
		return Commit{}, fmt.Errorf("objects: truncated timestamp")
	}
	sec := int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	nsec := int64(binary.LittleEndian.Uint32(buf[off+8 : off+12]))
	c.AuthorAt = time.Unix(sec, nsec).UTC()
	off += 12

	author, n, err := readLenPrefixed16(buf, off)
	if err != nil {
		return Commit{}, err
	}
	c.Author = author
	off = n

	committer, n, err := readLenPrefixed16(buf, off)
	if err != nil {
		return Commit{}, err
	}
	c.Committer = committer
	off = n

	if off+4 > len(buf) {
		return Commit{}, fmt.Errorf("objects: truncated message length")
	}
	msgLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if off+msgLen != len(buf) {
		return Commit{}, fmt.Errorf("objects: commit message length mismatch")
	}
	c.Message = string(buf[off : off+msgLen])

	return c, nil
}

func readLenPrefixed16(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", 0, fmt.Errorf("objects: truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+n > len(buf) {
		return "", 0, fmt.Errorf("objects: truncated length-prefixed field")
	}
	return string(buf[off : off+n]), off + n, nil
}
