package icao

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zkpassport/crypto/certs"
)

// Leaf returns the tree leaf of a CSCA: the Keccak256 of its DER encoded
// SubjectPublicKeyInfo.
func Leaf(spki []byte) common.Hash {
	return ethcrypto.Keccak256Hash(spki)
}

// hashPair hashes two nodes in ascending byte order, the convention of the
// OpenZeppelin MerkleProof verifier.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return ethcrypto.Keccak256Hash(a[:], b[:])
}

// MerkleTree is an immutable Keccak256 tree over a set of CSCA keys. Leaves
// are deduplicated and sorted, and an odd node at the end of a level is
// promoted unchanged to the next one.
type MerkleTree struct {
	levels [][]common.Hash
	index  map[common.Hash]int
}

// BuildMerkleTree builds the tree of the given CSCA certificates.
func BuildMerkleTree(cscas []*certs.Certificate) *MerkleTree {
	leaves := make([]common.Hash, 0, len(cscas))
	for _, c := range cscas {
		leaves = append(leaves, Leaf(c.SPKI()))
	}
	return NewMerkleTree(leaves)
}

// NewMerkleTree builds a tree from precomputed leaves.
func NewMerkleTree(leaves []common.Hash) *MerkleTree {
	t := &MerkleTree{index: make(map[common.Hash]int, len(leaves))}
	level := make([]common.Hash, 0, len(leaves))
	for _, l := range leaves {
		if _, dup := t.index[l]; dup {
			continue
		}
		t.index[l] = 0
		level = append(level, l)
	}
	sort.Slice(level, func(i, j int) bool {
		return bytes.Compare(level[i][:], level[j][:]) < 0
	})
	for i, l := range level {
		t.index[l] = i
	}
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the tree root, the zero hash for an empty tree.
func (t *MerkleTree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return common.Hash{}
	}
	return top[0]
}

// Size returns the number of distinct leaves.
func (t *MerkleTree) Size() int {
	return len(t.levels[0])
}

// Leaves returns the sorted leaves.
func (t *MerkleTree) Leaves() []common.Hash {
	return append([]common.Hash(nil), t.levels[0]...)
}

// Contains reports whether leaf is part of the tree.
func (t *MerkleTree) Contains(leaf common.Hash) bool {
	_, ok := t.index[leaf]
	return ok
}

// Proof returns the sibling path from leaf to the root. It is empty both
// for a leaf that is not in the tree and for the only leaf of a single leaf
// tree; use Contains to tell them apart.
func (t *MerkleTree) Proof(leaf common.Hash) []common.Hash {
	idx, ok := t.index[leaf]
	if !ok {
		return nil
	}
	var proof []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof
}

// ProofForCertificate returns the proof of the CSCA given as PEM or DER.
func (t *MerkleTree) ProofForCertificate(data []byte) ([]common.Hash, error) {
	c, err := certs.Parse(data)
	if err != nil {
		return nil, err
	}
	return t.Proof(Leaf(c.SPKI())), nil
}

// VerifyProof recomputes the root from leaf and proof.
func VerifyProof(root, leaf common.Hash, proof []common.Hash) bool {
	computed := leaf
	for _, p := range proof {
		computed = hashPair(computed, p)
	}
	return computed == root
}
