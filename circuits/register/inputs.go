// Package register builds the inputs of the passport registration circuits.
// The light circuit only binds the DG1 to an identity key, the full circuit
// also proves the SOD hashes and signature and the document signer key
// membership in the certificates SMT.
package register

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/crypto/certkey"
	"github.com/vocdoni/zkpassport/crypto/certs"
	"github.com/vocdoni/zkpassport/log"
	"github.com/vocdoni/zkpassport/passport/sod"
	"github.com/vocdoni/zkpassport/util"
)

// ErrUnsupportedKey is returned when the document signer key is not an RSA
// key the full circuit can take.
var ErrUnsupportedKey = errors.New("register: unsupported document signer key")

// Options overrides the defaults of the builders.
type Options struct {
	// SkIdentity is the identity secret. When nil TestIdentityKey of the
	// encapsulated content is used, which is only meant for tests.
	SkIdentity *big.Int
	// SlaveMerkleRoot overrides the single certificate root computed from
	// the document signer modulus.
	SlaveMerkleRoot *big.Int
	// InclusionBranches is the SMT path of the certificate key, zero padded
	// to SlaveMerkleLevels.
	InclusionBranches []*big.Int
}

// LightInputs are the inputs of the light registration circuit.
type LightInputs struct {
	DG1        []int  `json:"dg1"`
	SkIdentity string `json:"skIdentity"`
}

// FullInputs are the inputs of the full registration circuit.
type FullInputs struct {
	DG1                          []int    `json:"dg1"`
	SkIdentity                   string   `json:"skIdentity"`
	EncapsulatedContent          []int    `json:"encapsulatedContent"`
	SignedAttributes             []int    `json:"signedAttributes"`
	Pubkey                       []string `json:"pubkey"`
	Signature                    []string `json:"signature"`
	SlaveMerkleRoot              string   `json:"slaveMerkleRoot"`
	SlaveMerkleInclusionBranches []string `json:"slaveMerkleInclusionBranches"`
}

// JSON encodes the inputs the way the witness calculator reads them.
func (in *LightInputs) JSON() ([]byte, error) { return json.Marshal(in) }

// JSON encodes the inputs the way the witness calculator reads them.
func (in *FullInputs) JSON() ([]byte, error) { return json.Marshal(in) }

// TestIdentityKey derives a deterministic identity secret from the
// encapsulated content: the first 62 hex characters of its SHA-256 digest,
// reduced to the BN254 scalar field. It is a fixture helper, a real secret
// must never be derived from passport data.
func TestIdentityKey(encapsulatedContent []byte) *big.Int {
	sum := sha256.Sum256(encapsulatedContent)
	h := hex.EncodeToString(sum[:])[:circuits.IdentityKeyHexChars]
	k, _ := new(big.Int).SetString(h, 16)
	return util.BigToFF(k)
}

func identityKey(s *sod.SOD, opts Options) (*big.Int, error) {
	if opts.SkIdentity != nil {
		return util.BigToFF(opts.SkIdentity), nil
	}
	if s == nil {
		return nil, fmt.Errorf("register: no identity key nor SOD to derive a test one")
	}
	log.Debugw("using test identity key derived from the SOD")
	return TestIdentityKey(s.EncapsulatedContent()), nil
}

// BuildLight returns the light circuit inputs: the raw DG1 as a 1024 bit
// array, without SHA-256 padding, and the identity key. s is only read to
// derive the default identity key and may be nil when opts sets one.
func BuildLight(dg1 []byte, s *sod.SOD, opts Options) (*LightInputs, error) {
	bits, err := circuits.BitsToN(circuits.BytesToBits(dg1), circuits.DG1Bits)
	if err != nil {
		return nil, fmt.Errorf("dg1: %w", err)
	}
	sk, err := identityKey(s, opts)
	if err != nil {
		return nil, err
	}
	return &LightInputs{DG1: bits, SkIdentity: sk.String()}, nil
}

// paddedBits SHA-256 pads msg to exactly blocks blocks and expands it to
// bits.
func paddedBits(name string, msg []byte, blocks int) ([]int, error) {
	padded, err := circuits.PadSHA256Blocks(msg, blocks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return circuits.BytesToBits(padded), nil
}

// BuildFull returns the full circuit inputs for the DG1 and SOD signed by
// ds. When ds is nil the certificate embedded in the SOD is used.
func BuildFull(dg1 []byte, s *sod.SOD, ds *certs.Certificate, opts Options) (*FullInputs, error) {
	if s == nil {
		return nil, fmt.Errorf("register: nil SOD")
	}
	if ds == nil {
		var err error
		if ds, err = s.DocumentSigner(); err != nil {
			return nil, err
		}
	}
	pub, ok := ds.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, ds.PublicKey)
	}

	in := &FullInputs{}
	var err error
	if in.DG1, err = paddedBits("dg1", dg1, circuits.DG1Blocks); err != nil {
		return nil, err
	}
	if in.EncapsulatedContent, err = paddedBits("encapsulated content",
		s.EncapsulatedContent(), circuits.EncapsulatedContentBlocks); err != nil {
		return nil, err
	}
	if in.SignedAttributes, err = paddedBits("signed attributes",
		s.Envelope.SignedAttrsForVerification(), circuits.SignedAttributesBlocks); err != nil {
		return nil, err
	}

	pubkey, err := circuits.SplitBigIntToChunks(pub.N, circuits.RSALimbBits, circuits.RSALimbs)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus: %w", ErrUnsupportedKey, err)
	}
	sig := new(big.Int).SetBytes(s.Envelope.Signer.Signature)
	signature, err := circuits.SplitBigIntToChunks(sig, circuits.RSALimbBits, circuits.RSALimbs)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	in.Pubkey = circuits.BigIntArrayToStringArray(pubkey, circuits.RSALimbs)
	in.Signature = circuits.BigIntArrayToStringArray(signature, circuits.RSALimbs)

	root := opts.SlaveMerkleRoot
	if root == nil {
		if _, root, err = certkey.Compute(pub.N); err != nil {
			return nil, err
		}
	}
	in.SlaveMerkleRoot = root.String()
	if len(opts.InclusionBranches) > circuits.SlaveMerkleLevels {
		return nil, fmt.Errorf("%w: %d inclusion branches, max %d",
			circuits.ErrInputTooLong, len(opts.InclusionBranches), circuits.SlaveMerkleLevels)
	}
	in.SlaveMerkleInclusionBranches = circuits.BigIntArrayToStringArray(opts.InclusionBranches, circuits.SlaveMerkleLevels)

	sk, err := identityKey(s, opts)
	if err != nil {
		return nil, err
	}
	in.SkIdentity = sk.String()
	return in, nil
}
