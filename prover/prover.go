// Package prover generates and verifies Groth16 proofs of the passport
// circuits. Proving is delegated to a Backend, in process with rapidsnark
// or by running the snarkjs and rapidsnark command line tools, and proofs
// can be checked independently with gnark.
package prover

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iden3/go-rapidsnark/types"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/solidity"
)

// Verifier checks a proof against a snarkjs verification key.
type Verifier interface {
	Verify(ctx context.Context, vkey []byte, proof *Proof) (bool, error)
}

// Backend generates proofs from the circuit inputs JSON.
type Backend interface {
	Verifier
	Prove(ctx context.Context, artifacts *circuits.CircuitArtifacts, inputs []byte) (*Proof, error)
}

// Variant identifies a registration circuit.
type Variant int

const (
	// Light is the circuit binding the DG1 to the identity key.
	Light Variant = iota
	// Full is the circuit that also proves the SOD and the signer key.
	Full
)

// PublicSignals returns the number of public signals of the circuit.
func (v Variant) PublicSignals() int {
	if v == Full {
		return circuits.FullPublicSignals
	}
	return circuits.LightPublicSignals
}

func (v Variant) String() string {
	if v == Full {
		return "full"
	}
	return "light"
}

// ParseVariant reads "light" or "full".
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "light":
		return Light, nil
	case "full":
		return Full, nil
	}
	return 0, fmt.Errorf("unknown circuit variant %q", s)
}

// Proof is a Groth16 proof in the snarkjs layout with its public signals.
type Proof struct {
	*types.ZKProof
}

// ParseProof decodes the proof.json and public.json files written by
// snarkjs or rapidsnark.
func ParseProof(proofJSON, publicJSON []byte) (*Proof, error) {
	p := &types.ProofData{}
	if err := json.Unmarshal(proofJSON, p); err != nil {
		return nil, fmt.Errorf("error decoding proof: %w", err)
	}
	var signals []string
	if err := json.Unmarshal(publicJSON, &signals); err != nil {
		return nil, fmt.Errorf("error decoding public signals: %w", err)
	}
	return &Proof{ZKProof: &types.ZKProof{Proof: p, PubSignals: signals}}, nil
}

// ProofJSON encodes the proof points like snarkjs does.
func (p *Proof) ProofJSON() ([]byte, error) {
	return json.Marshal(p.Proof)
}

// PublicSignalsJSON encodes the public signals like snarkjs does.
func (p *Proof) PublicSignalsJSON() ([]byte, error) {
	return json.Marshal(p.PubSignals)
}

// Calldata returns the points in the order of the on-chain verifier, with
// the G2 coordinates swapped.
func (p *Proof) Calldata() (*solidity.ProofPoints, error) {
	points := &solidity.ProofPoints{}
	if err := points.FromZKProof(p.ZKProof); err != nil {
		return nil, err
	}
	return points, nil
}

type jobIDKey struct{}

// WithJobID tags the context with the id of a proof job.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobID returns the id set by WithJobID, or an empty string.
func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
