package prover

import (
	"context"
	"fmt"
	"time"

	"github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/verifier"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/log"
)

// RapidsnarkBackend computes the witness with the circom wasm runtime and
// the proof with the rapidsnark library, inside the current process.
type RapidsnarkBackend struct{}

// Prove loads the artifacts and proves the inputs. The native prover can
// not be interrupted: when ctx is done the call returns but the proof keeps
// being computed in the background.
func (RapidsnarkBackend) Prove(ctx context.Context, ca *circuits.CircuitArtifacts, inputs []byte) (*Proof, error) {
	if err := ca.LoadAll(); err != nil {
		return nil, artifactsError(err)
	}
	type result struct {
		proof *types.ZKProof
		err   error
	}
	done := make(chan result, 1)
	go func() {
		p, err := groth16Prove(ca.CircuitDefinition().Content, ca.ProvingKey().Content, inputs)
		done <- result{p, err}
	}()
	select {
	case <-ctx.Done():
		return nil, timeoutError("prove", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &Proof{ZKProof: r.proof}, nil
	}
}

func groth16Prove(wasm, zkey, inputs []byte) (*types.ZKProof, error) {
	start := time.Now()
	parsed, err := witness.ParseInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("error parsing inputs: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(wasm, true)
	if err != nil {
		return nil, fmt.Errorf("error loading the witness calculator: %w", err)
	}
	w, err := calc.CalculateWTNSBin(parsed, true)
	if err != nil {
		return nil, fmt.Errorf("error calculating the witness: %w", err)
	}
	p, err := prover.Groth16Prover(zkey, w)
	if err != nil {
		return nil, fmt.Errorf("error generating the proof: %w", err)
	}
	log.Debugw("rapidsnark proof generated", "took", time.Since(start).String())
	return p, nil
}

// Verify checks the proof with the rapidsnark verifier.
func (RapidsnarkBackend) Verify(_ context.Context, vkey []byte, proof *Proof) (bool, error) {
	if proof == nil || proof.ZKProof == nil {
		return false, fmt.Errorf("nil proof")
	}
	if err := verifier.VerifyGroth16(*proof.ZKProof, vkey); err != nil {
		log.Debugw("rapidsnark verification failed", "error", err.Error())
		return false, nil
	}
	return true, nil
}
