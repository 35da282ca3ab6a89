package circuits

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
)

// Domain parameters of the passport circuits. They describe the fixed
// layout of the circuit inputs and must match the compiled circuits.
const (
	// SHA256BlockSize is the size in bytes of a SHA-256 message block.
	SHA256BlockSize = 64

	// DG1Blocks, EncapsulatedContentBlocks and SignedAttributesBlocks are the
	// number of SHA-256 blocks each hashed input occupies once padded.
	DG1Blocks                 = 2
	EncapsulatedContentBlocks = 3
	SignedAttributesBlocks    = 2

	DG1Bits                 = DG1Blocks * SHA256BlockSize * 8
	EncapsulatedContentBits = EncapsulatedContentBlocks * SHA256BlockSize * 8
	SignedAttributesBits    = SignedAttributesBlocks * SHA256BlockSize * 8

	// RSALimbBits and RSALimbs describe how RSA-2048 integers (modulus and
	// signature) are fed to the circuit: 32 little-endian 64-bit limbs.
	RSALimbBits = 64
	RSALimbs    = 32

	// CertificateKeyLimbs is the number of low 64-bit modulus limbs packed
	// into the Poseidon certificate key, three limbs per field element.
	CertificateKeyLimbs     = 15
	CertificateKeyPacked    = CertificateKeyLimbs / 3
	CertificateKeyLimbsBits = CertificateKeyLimbs * RSALimbBits

	// SlaveMerkleLevels is the depth of the certificates SMT proven inside
	// the full registration circuit.
	SlaveMerkleLevels = 80

	// LightPublicSignals and FullPublicSignals are the number of public
	// signals of each circuit variant.
	LightPublicSignals = 3
	FullPublicSignals  = 5

	// IdentityKeyHexChars is the number of hex characters of the SHA-256
	// digest kept by the deterministic test identity key.
	IdentityKeyHexChars = 62

	// SerializedFieldSize is the size in bytes of a serialized field element.
	SerializedFieldSize = 32
)

// ScalarField is the BN254 scalar field order, the field every circuit
// signal lives in.
var ScalarField = ecc.BN254.ScalarField()

// FieldModulus returns a copy of ScalarField.
func FieldModulus() *big.Int {
	return new(big.Int).Set(ScalarField)
}
