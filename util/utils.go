package util

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
)

// bn254ScalarField is the scalar field of the BN254 curve, which is the
// native field of the circom circuits and of the Poseidon hashes.
var bn254ScalarField = ecc.BN254.ScalarField()

// BigToFF function returns the finite field representation of the big.Int
// provided. It uses Euclidean Modulus and the BN254 curve scalar field to
// represent the provided number.
func BigToFF(iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(bn254ScalarField); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return new(big.Int).Set(iv)
	}
	return z.Mod(iv, bn254ScalarField)
}
