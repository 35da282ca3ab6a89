package prover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/log"
)

// DefaultTimeout bounds a whole prove or verify call.
const DefaultTimeout = 10 * time.Minute

const (
	inputsFile    = "input.json"
	witnessFile   = "witness.wtns"
	proofFile     = "proof.json"
	publicFile    = "public.json"
	vkeyFile      = "verification_key.json"
	maxOutputTail = 512
)

var invalidProofMarker = []byte("Invalid proof")

// ProcessBackend runs snarkjs to compute the witness and either snarkjs or
// the rapidsnark binary to prove. Each call works in its own temporary
// directory, removed when it returns.
type ProcessBackend struct {
	// WitnessBin is the snarkjs executable, "snarkjs" if empty. It is also
	// used to verify.
	WitnessBin string
	// ProverBin is the prover executable. A snarkjs binary is called with
	// "groth16 prove", anything else with the rapidsnark arguments.
	// Defaults to WitnessBin.
	ProverBin string
	// Timeout bounds each call, DefaultTimeout if zero.
	Timeout time.Duration
	// WorkDir is where the temporary directories are created, the system
	// temporary directory if empty.
	WorkDir string
}

func (b *ProcessBackend) witnessBin() string {
	if b.WitnessBin == "" {
		return "snarkjs"
	}
	return b.WitnessBin
}

func (b *ProcessBackend) proverBin() string {
	if b.ProverBin == "" {
		return b.witnessBin()
	}
	return b.ProverBin
}

func (b *ProcessBackend) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultTimeout
	}
	return b.Timeout
}

func isSnarkjs(bin string) bool {
	return strings.HasPrefix(filepath.Base(bin), "snarkjs")
}

// lookPath resolves bin or returns an EnvError explaining how to install it.
func lookPath(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err == nil {
		return path, nil
	}
	remediation := "install snarkjs with 'npm install -g snarkjs' or set prover.witness-bin"
	if !isSnarkjs(bin) {
		remediation = "build rapidsnark from https://github.com/iden3/rapidsnark or set prover.prover-bin"
	}
	return "", &EnvError{
		Op:          "lookup",
		Err:         fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, bin, err),
		Remediation: remediation,
	}
}

// workspace creates the temporary directory of a call. The caller must
// remove it.
func (b *ProcessBackend) workspace(ctx context.Context) (string, error) {
	id := JobID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	dir, err := os.MkdirTemp(b.WorkDir, "zkpassport-"+id+"-")
	if err != nil {
		return "", &EnvError{
			Op:          "workspace",
			Err:         err,
			Remediation: "check that the prover work directory exists and is writable",
		}
	}
	return dir, nil
}

// run executes bin inside dir and returns its combined output. A non zero
// exit is an ErrProcessFailed EnvError carrying the tail of the output.
func (b *ProcessBackend) run(ctx context.Context, dir, op, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	start := time.Now()
	out, err := cmd.CombinedOutput()
	log.Debugw("prover process finished", "job", JobID(ctx), "op", op,
		"bin", bin, "took", time.Since(start).String(), "error", err)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, timeoutError(op, ctxErr)
	}
	tail := strings.TrimSpace(string(out))
	if len(tail) > maxOutputTail {
		tail = tail[len(tail)-maxOutputTail:]
	}
	return out, &EnvError{
		Op:          op,
		Err:         fmt.Errorf("%w: %s: %w: %s", ErrProcessFailed, filepath.Base(bin), err, tail),
		Remediation: "check the process output; a crash usually means the artifacts do not match or memory ran out",
	}
}

// Prove writes the inputs, computes the witness and the proof and reads
// back the proof and its public signals.
func (b *ProcessBackend) Prove(ctx context.Context, ca *circuits.CircuitArtifacts, inputs []byte) (*Proof, error) {
	witnessBin, err := lookPath(b.witnessBin())
	if err != nil {
		return nil, err
	}
	proverBin, err := lookPath(b.proverBin())
	if err != nil {
		return nil, err
	}
	if err := ca.Check(); err != nil {
		return nil, artifactsError(err)
	}
	wasm, err := filepath.Abs(ca.CircuitDefinition().Path())
	if err != nil {
		return nil, err
	}
	zkey, err := filepath.Abs(ca.ProvingKey().Path())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()
	dir, err := b.workspace(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warnw("could not remove prover workspace", "dir", dir, "error", err.Error())
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, inputsFile), inputs, 0o600); err != nil {
		return nil, err
	}
	if _, err := b.run(ctx, dir, "witness", witnessBin,
		"wtns", "calculate", wasm, inputsFile, witnessFile); err != nil {
		return nil, err
	}
	args := []string{zkey, witnessFile, proofFile, publicFile}
	if isSnarkjs(proverBin) {
		args = append([]string{"groth16", "prove"}, args...)
	}
	if _, err := b.run(ctx, dir, "prove", proverBin, args...); err != nil {
		return nil, err
	}

	proofJSON, err := os.ReadFile(filepath.Join(dir, proofFile))
	if err != nil {
		return nil, fmt.Errorf("prover did not write the proof: %w", err)
	}
	publicJSON, err := os.ReadFile(filepath.Join(dir, publicFile))
	if err != nil {
		return nil, fmt.Errorf("prover did not write the public signals: %w", err)
	}
	return ParseProof(proofJSON, publicJSON)
}

// Verify runs "snarkjs groth16 verify". A rejected proof is reported as
// false; any other failure of the process is an EnvError.
func (b *ProcessBackend) Verify(ctx context.Context, vkey []byte, proof *Proof) (bool, error) {
	if proof == nil || proof.ZKProof == nil {
		return false, fmt.Errorf("nil proof")
	}
	bin, err := lookPath(b.witnessBin())
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()
	dir, err := b.workspace(ctx)
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(dir)

	proofJSON, err := proof.ProofJSON()
	if err != nil {
		return false, err
	}
	publicJSON, err := proof.PublicSignalsJSON()
	if err != nil {
		return false, err
	}
	for name, content := range map[string][]byte{
		vkeyFile:   vkey,
		proofFile:  proofJSON,
		publicFile: publicJSON,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o600); err != nil {
			return false, err
		}
	}
	out, err := b.run(ctx, dir, "verify", bin, "groth16", "verify", vkeyFile, publicFile, proofFile)
	switch {
	case err == nil:
		return true, nil
	case proofRejected(err, out):
		return false, nil
	default:
		return false, err
	}
}

// proofRejected reports whether snarkjs exited on its own with status 1
// after printing its invalid proof message.
func proofRejected(err error, out []byte) bool {
	var exitErr *exec.ExitError
	if !errors.Is(err, ErrProcessFailed) || !errors.As(err, &exitErr) {
		return false
	}
	return exitErr.ExitCode() == 1 && bytes.Contains(out, invalidProofMarker)
}
