package prover

import (
	"errors"
	"fmt"

	"github.com/vocdoni/zkpassport/circuits"
)

var (
	// ErrBinaryNotFound is returned when a prover tool is not installed.
	ErrBinaryNotFound = errors.New("prover: binary not found")
	// ErrTimeout is returned when proving takes longer than allowed.
	ErrTimeout = errors.New("prover: timeout")
	// ErrProcessFailed is returned when a prover tool exits with an error.
	ErrProcessFailed = errors.New("prover: process failed")
	// ErrPublicSignals is returned when a proof does not have the number of
	// public signals of its circuit.
	ErrPublicSignals = errors.New("prover: unexpected number of public signals")
)

// EnvError is a failure of the proving environment rather than of the
// inputs: missing artifacts or tools, a timeout or a crash. Remediation
// tells the operator how to fix it.
type EnvError struct {
	Op          string
	Err         error
	Remediation string
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("prover %s: %v", e.Op, e.Err)
}

func (e *EnvError) Unwrap() error { return e.Err }

func artifactsError(err error) error {
	if !errors.Is(err, circuits.ErrArtifactMissing) {
		return err
	}
	return &EnvError{
		Op:  "artifacts",
		Err: err,
		Remediation: fmt.Sprintf("download the circuit artifacts with 'zkpassport artifacts' into %s, "+
			"or point ZKPASSPORT_ARTIFACTS_DIR to the directory that holds them", circuits.BaseDir),
	}
}

func timeoutError(op string, err error) error {
	return &EnvError{
		Op:          op,
		Err:         fmt.Errorf("%w: %w", ErrTimeout, err),
		Remediation: "increase prover.timeout or run fewer prover workers",
	}
}
