// Package merkle builds a Merkle tree over a manifest's ordered chunk
// hashes so a verifier can check a subset of chunks — notably an
// oversize protected chunk covering a container's moov box — without
// re-hashing or re-fetching every chunk a manifest references.
package merkle

import (
	"bytes"
	"fmt"

	"github.com/cbergoon/merkletree"

	"github.com/byronwade/dits/pkg/hashapi"
)

// leaf adapts a chunk hash to merkletree.Content. Its "hash" for tree
// construction purposes is the chunk hash itself: chunk hashes are
// already content-addressed, so re-hashing them before building the
// tree would add nothing.
type leaf struct {
	h hashapi.Hash
}

func (l leaf) CalculateHash() ([]byte, error) {
	return l.h[:], nil
}

func (l leaf) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leaf)
	if !ok {
		return false, fmt.Errorf("merkle: type mismatch")
	}
	return l.h == o.h, nil
}

// Tree wraps a Merkle tree built over one manifest's chunk-hash list.
// Its root is never part of the manifest's canonical encoding, so it does
// not affect asset_hash; this package does not persist the root anywhere.
type Tree struct {
	inner  *merkletree.MerkleTree
	hashes []hashapi.Hash
}

// Build constructs a Tree over hashes in the given order (normally a
// manifest's chunk list order). hashes must be non-empty.
func Build(hashes []hashapi.Hash) (*Tree, error) {
	if len(hashes) == 0 {
		return nil, fmt.Errorf("merkle: cannot build a tree from zero chunk hashes")
	}

	contents := make([]merkletree.Content, len(hashes))
	for i, h := range hashes {
		contents[i] = leaf{h: h}
	}

	inner, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("merkle: build tree: %w", err)
	}
	return &Tree{inner: inner, hashes: append([]hashapi.Hash(nil), hashes...)}, nil
}

// Root returns the tree's Merkle root.
func (t *Tree) Root() []byte {
	if t == nil {
		return nil
	}
	return t.inner.MerkleRoot()
}

// Verify re-checks every leaf and internal node hash against the root.
func (t *Tree) Verify() (bool, error) {
	if t == nil {
		return false, fmt.Errorf("merkle: nil tree")
	}
	return t.inner.VerifyTree()
}

// Proof is an inclusion proof for one chunk hash: the sibling hashes
// needed to recompute the root, in order from leaf to root.
type Proof struct {
	Hash    hashapi.Hash
	Path    [][]byte
	Indices []int64
}

// ProofFor generates an inclusion proof for h. The caller can verify it
// against a root obtained independently (for example Root() of a tree
// built earlier over the same chunk list) via VerifyProof, without
// holding the rest of the chunk set. A hash that is not a leaf of the
// tree is an error.
func (t *Tree) ProofFor(h hashapi.Hash) (Proof, error) {
	if t == nil {
		return Proof{}, fmt.Errorf("merkle: nil tree")
	}
	path, indices, err := t.inner.GetMerklePath(leaf{h: h})
	if err != nil {
		return Proof{}, fmt.Errorf("merkle: generate proof for %s: %w", h, err)
	}
	if path == nil {
		return Proof{}, fmt.Errorf("merkle: %s is not a leaf of this tree", h)
	}
	return Proof{Hash: h, Path: path, Indices: indices}, nil
}

// VerifyProof recomputes a root from p against root, without requiring
// the full chunk set or a constructed Tree. Sibling ordering follows the
// convention used by github.com/cbergoon/merkletree's GetMerklePath:
// Indices[i] == 1 means the current node was the left child at that
// level, so Path[i] (its sibling) is concatenated on the right;
// otherwise the sibling is concatenated on the left.
func VerifyProof(root []byte, p Proof) (bool, error) {
	current := append([]byte(nil), p.Hash[:]...)
	for i, sibling := range p.Path {
		var combined []byte
		if i < len(p.Indices) && p.Indices[i] == 1 {
			combined = append(append([]byte(nil), current...), sibling...)
		} else {
			combined = append(append([]byte(nil), sibling...), current...)
		}
		current = hashSum(combined)
	}
	return bytes.Equal(current, root), nil
}

func hashSum(b []byte) []byte {
	h := hashapi.HashParallel(hashapi.AlgoSHA256, b)
	return h[:]
}
