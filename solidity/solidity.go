// Package solidity converts proofs and values into the layouts consumed by
// the on-chain verifier and voting contracts.
package solidity

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/iden3/go-rapidsnark/types"
)

// ProofPoints is a Groth16 proof and its public inputs in the order the
// Solidity verifier expects them.
type ProofPoints struct {
	A      [2]*big.Int    `json:"a"`
	B      [2][2]*big.Int `json:"b"`
	C      [2]*big.Int    `json:"c"`
	Inputs []*big.Int     `json:"inputs"`
}

func parseDecimal(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s value %q", name, s)
	}
	return v, nil
}

// FromZKProof converts a snarkjs proof. The coordinates of each G2 element
// of pi_b are swapped, the verifier precompile takes the imaginary part
// first.
func (p *ProofPoints) FromZKProof(zk *types.ZKProof) error {
	if zk == nil || zk.Proof == nil {
		return fmt.Errorf("empty proof")
	}
	pr := zk.Proof
	if len(pr.A) < 2 || len(pr.B) < 2 || len(pr.B[0]) < 2 || len(pr.B[1]) < 2 || len(pr.C) < 2 {
		return fmt.Errorf("proof points are incomplete")
	}
	var err error
	for i := 0; i < 2; i++ {
		if p.A[i], err = parseDecimal(fmt.Sprintf("pi_a[%d]", i), pr.A[i]); err != nil {
			return err
		}
		if p.C[i], err = parseDecimal(fmt.Sprintf("pi_c[%d]", i), pr.C[i]); err != nil {
			return err
		}
		for j := 0; j < 2; j++ {
			if p.B[i][1-j], err = parseDecimal(fmt.Sprintf("pi_b[%d][%d]", i, j), pr.B[i][j]); err != nil {
				return err
			}
		}
	}
	p.Inputs = make([]*big.Int, len(zk.PubSignals))
	for i, s := range zk.PubSignals {
		if p.Inputs[i], err = parseDecimal(fmt.Sprintf("public signal %d", i), s); err != nil {
			return err
		}
	}
	return nil
}

// String returns the JSON representation of the points.
func (p *ProofPoints) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ABIEncode encodes the points matching Solidity's
// (uint256[2],uint256[2][2],uint256[2],uint256[]) layout.
func (p *ProofPoints) ABIEncode() ([]byte, error) {
	pointType, err := abi.NewType("uint256[2]", "", nil)
	if err != nil {
		return nil, err
	}
	g2Type, err := abi.NewType("uint256[2][2]", "", nil)
	if err != nil {
		return nil, err
	}
	inputsType, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		return nil, err
	}
	arguments := abi.Arguments{
		{Type: pointType},
		{Type: g2Type},
		{Type: pointType},
		{Type: inputsType},
	}
	inputs := p.Inputs
	if inputs == nil {
		inputs = []*big.Int{}
	}
	return arguments.Pack(p.A, p.B, p.C, inputs)
}

// ProofCalldata converts a snarkjs proof and ABI encodes it.
func ProofCalldata(zk *types.ZKProof) ([]byte, error) {
	p := &ProofPoints{}
	if err := p.FromZKProof(zk); err != nil {
		return nil, err
	}
	return p.ABIEncode()
}
