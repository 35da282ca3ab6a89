package prover

import (
	"context"
	"fmt"
	"sync"

	"github.com/consensys/gnark/logger"
	"github.com/vocdoni/circom2gnark/parser"
	"github.com/vocdoni/zkpassport/log"
)

var gnarkLoggerOnce sync.Once

// GnarkVerifier verifies snarkjs proofs with gnark, converting them with
// circom2gnark. It does not share code with the provers so it serves as an
// independent check of their output.
type GnarkVerifier struct{}

// NewGnarkVerifier routes the gnark logs to the process logger.
func NewGnarkVerifier() *GnarkVerifier {
	gnarkLoggerOnce.Do(func() {
		logger.Set(log.Logger().With().Str("module", "gnark").Logger())
	})
	return &GnarkVerifier{}
}

// Verify converts the verification key, the proof and its public signals
// to gnark and runs the Groth16 verification.
func (*GnarkVerifier) Verify(_ context.Context, vkey []byte, proof *Proof) (bool, error) {
	if proof == nil || proof.ZKProof == nil {
		return false, fmt.Errorf("nil proof")
	}
	proofJSON, err := proof.ProofJSON()
	if err != nil {
		return false, err
	}
	signalsJSON, err := proof.PublicSignalsJSON()
	if err != nil {
		return false, err
	}
	circomProof, err := parser.UnmarshalCircomProofJSON(proofJSON)
	if err != nil {
		return false, fmt.Errorf("error decoding proof: %w", err)
	}
	signals, err := parser.UnmarshalCircomPublicSignalsJSON(signalsJSON)
	if err != nil {
		return false, fmt.Errorf("error decoding public signals: %w", err)
	}
	vk, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
	if err != nil {
		return false, fmt.Errorf("error decoding verification key: %w", err)
	}
	gnarkProof, err := parser.ConvertCircomToGnark(circomProof, vk, signals)
	if err != nil {
		return false, fmt.Errorf("error converting proof: %w", err)
	}
	ok, err := parser.VerifyProof(gnarkProof)
	if err != nil {
		log.Debugw("gnark verification failed", "error", err.Error())
		return false, nil
	}
	return ok, nil
}
