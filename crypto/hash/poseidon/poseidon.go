package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// maxChunk is the widest Poseidon instance the iden3 implementation has
// parameters for.
const maxChunk = 16

// Hash returns the Poseidon hash of the inputs using the instance of the
// same width (Poseidon5 for five inputs, Poseidon3 for three).
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) > maxChunk {
		return nil, fmt.Errorf("too many inputs for a single poseidon: %d", len(inputs))
	}
	return poseidon.Hash(inputs)
}
