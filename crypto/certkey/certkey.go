// Package certkey computes the Poseidon certificate key of an RSA modulus
// and the root of the single entry sparse Merkle tree that registers it.
// The same values are computed by the registration circuit (pkHash and
// slaveMerkleRoot) and stored by the on-chain Poseidon SMT.
package certkey

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/crypto/hash/poseidon"
	"github.com/vocdoni/zkpassport/log"
)

// TreeMaxLevels is the depth of the certificates SMT. Keys are field
// elements so 256 levels hold any of them.
const TreeMaxLevels = 256

// keyLen is the byte length of the SMT keys and values.
const keyLen = circuits.SerializedFieldSize

// Limbs returns the CertificateKeyLimbs 64-bit limbs of the modulus that
// enter the key, least significant first. Only the low 960 bits of a longer
// modulus are taken, as the circuit does.
func Limbs(modulus *big.Int) ([]*big.Int, error) {
	if modulus == nil || modulus.Sign() <= 0 {
		return nil, fmt.Errorf("certkey: invalid modulus")
	}
	low := circuits.LowBits(modulus, circuits.CertificateKeyLimbsBits)
	return circuits.SplitBigIntToChunks(low, circuits.RSALimbBits, circuits.CertificateKeyLimbs)
}

// Pack groups the limbs in threes into 192-bit values:
// packed[i] = l[3i]·2^128 + l[3i+1]·2^64 + l[3i+2].
func Pack(limbs []*big.Int) ([]*big.Int, error) {
	if len(limbs) != circuits.CertificateKeyLimbs {
		return nil, fmt.Errorf("certkey: expected %d limbs, got %d", circuits.CertificateKeyLimbs, len(limbs))
	}
	packed := make([]*big.Int, circuits.CertificateKeyPacked)
	for i := range packed {
		v := new(big.Int).Lsh(limbs[3*i], 2*circuits.RSALimbBits)
		v.Add(v, new(big.Int).Lsh(limbs[3*i+1], circuits.RSALimbBits))
		v.Add(v, limbs[3*i+2])
		packed[i] = v
	}
	return packed, nil
}

// CertificateKey returns Poseidon5 of the packed modulus limbs.
func CertificateKey(modulus *big.Int) (*big.Int, error) {
	limbs, err := Limbs(modulus)
	if err != nil {
		return nil, err
	}
	packed, err := Pack(limbs)
	if err != nil {
		return nil, err
	}
	return poseidon.Hash(packed...)
}

// CertificatesRoot returns the root of an SMT holding only the leaf
// (key, key), which is the leaf hash Poseidon3(key, key, 1).
func CertificatesRoot(key *big.Int) (*big.Int, error) {
	if key == nil {
		return nil, fmt.Errorf("certkey: nil key")
	}
	return poseidon.Hash(key, key, big.NewInt(1))
}

// CertificatesRootFromTree computes the same root as CertificatesRoot by
// inserting (key, key) into an empty in-memory arbo Poseidon tree.
func CertificatesRootFromTree(key *big.Int) (*big.Int, error) {
	if key == nil {
		return nil, fmt.Errorf("certkey: nil key")
	}
	tree, err := arbo.NewTree(arbo.Config{
		Database:     memdb.New(),
		MaxLevels:    TreeMaxLevels,
		HashFunction: arbo.HashFunctionPoseidon,
	})
	if err != nil {
		return nil, fmt.Errorf("certkey: could not create tree: %w", err)
	}
	k := arbo.BigIntToBytes(keyLen, key)
	if err := tree.Add(k, k); err != nil {
		return nil, fmt.Errorf("certkey: could not add leaf: %w", err)
	}
	root, err := tree.Root()
	if err != nil {
		return nil, err
	}
	r := arbo.BytesToBigInt(root)
	log.Debugw("certificates root from tree", "key", key.String(), "root", r.String())
	return r, nil
}

// Compute returns the certificate key of the modulus and its single entry
// certificates root.
func Compute(modulus *big.Int) (key, root *big.Int, err error) {
	if key, err = CertificateKey(modulus); err != nil {
		return nil, nil, err
	}
	if root, err = CertificatesRoot(key); err != nil {
		return nil, nil, err
	}
	return key, root, nil
}
