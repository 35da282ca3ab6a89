package prover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkpassport/circuits"
)

const fakeProofJSON = `{"pi_a":["1","2","1"],"pi_b":[["3","4"],["5","6"],["1","0"]],"pi_c":["7","8","1"],"protocol":"groth16"}`

// fakeSnarkjs mimics the snarkjs commands used by ProcessBackend. It
// writes a fixed proof, prints the public signals given in $SIGNALS and
// rejects proofs whose public signals contain 666.
const fakeSnarkjs = `#!/bin/sh
case "$1 $2" in
"wtns calculate")
	test -f "$3" || exit 2
	test -f "$4" || exit 2
	echo witness > "$5"
	;;
"groth16 prove")
	test -f "$4" || exit 2
	echo '` + fakeProofJSON + `' > "$5"
	echo '["1","2","3"]' > "$6"
	;;
"groth16 verify")
	grep -q 666 "$4" && { echo "Invalid proof"; exit 1; }
	echo "OK!"
	;;
*)
	exit 9
	;;
esac
`

func writeScript(c *qt.C, dir, name, body string) string {
	path := filepath.Join(dir, name)
	c.Assert(os.WriteFile(path, []byte(body), 0o755), qt.IsNil)
	return path
}

func testArtifacts(c *qt.C) *circuits.CircuitArtifacts {
	dir := c.TempDir()
	paths := map[string]string{}
	for _, name := range []string{"register.wasm", "register.zkey", "register_vkey.json"} {
		paths[name] = filepath.Join(dir, name)
		c.Assert(os.WriteFile(paths[name], []byte("{}"), 0o600), qt.IsNil)
	}
	return circuits.NewCircuitArtifacts(
		&circuits.Artifact{Name: "circuit", LocalPath: paths["register.wasm"]},
		&circuits.Artifact{Name: "proving key", LocalPath: paths["register.zkey"]},
		&circuits.Artifact{Name: "verification key", LocalPath: paths["register_vkey.json"]},
	)
}

func skipWithoutShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the fake prover tools are shell scripts")
	}
}

func TestProcessBackendProve(t *testing.T) {
	skipWithoutShell(t)
	c := qt.New(t)
	bin := writeScript(c, c.TempDir(), "snarkjs", fakeSnarkjs)
	work := c.TempDir()
	b := &ProcessBackend{WitnessBin: bin, WorkDir: work, Timeout: 10 * time.Second}

	proof, err := b.Prove(context.Background(), testArtifacts(c), []byte(`{"dg1":[]}`))
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Proof.A, qt.DeepEquals, []string{"1", "2", "1"})
	c.Assert(proof.Proof.Protocol, qt.Equals, "groth16")
	c.Assert(proof.PubSignals, qt.DeepEquals, []string{"1", "2", "3"})

	// the temporary directory is gone
	entries, err := os.ReadDir(work)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 0)

	ok, err := b.Verify(context.Background(), []byte("{}"), proof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	proof.PubSignals[1] = "666"
	ok, err = b.Verify(context.Background(), []byte("{}"), proof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestProcessBackendRapidsnarkArgs(t *testing.T) {
	skipWithoutShell(t)
	c := qt.New(t)
	dir := c.TempDir()
	witnessBin := writeScript(c, dir, "snarkjs", fakeSnarkjs)
	// rapidsnark takes zkey wtns proof public
	proverBin := writeScript(c, dir, "prover", `#!/bin/sh
test -f "$1" || exit 2
test -f "$2" || exit 2
echo '`+fakeProofJSON+`' > "$3"
echo '["9"]' > "$4"
`)
	b := &ProcessBackend{WitnessBin: witnessBin, ProverBin: proverBin, WorkDir: c.TempDir()}
	proof, err := b.Prove(context.Background(), testArtifacts(c), []byte(`{}`))
	c.Assert(err, qt.IsNil)
	c.Assert(proof.PubSignals, qt.DeepEquals, []string{"9"})
}

func TestProcessBackendFailures(t *testing.T) {
	skipWithoutShell(t)
	c := qt.New(t)
	dir := c.TempDir()
	ca := testArtifacts(c)

	c.Run("missing binary", func(c *qt.C) {
		b := &ProcessBackend{WitnessBin: filepath.Join(dir, "snarkjs-not-installed")}
		_, err := b.Prove(context.Background(), ca, nil)
		c.Assert(errors.Is(err, ErrBinaryNotFound), qt.IsTrue)
		var envErr *EnvError
		c.Assert(errors.As(err, &envErr), qt.IsTrue)
		c.Assert(envErr.Remediation, qt.Contains, "npm install -g snarkjs")
	})

	c.Run("crash", func(c *qt.C) {
		bin := writeScript(c, dir, "snarkjs-crash", "#!/bin/sh\necho 'out of memory' >&2\nexit 3\n")
		b := &ProcessBackend{WitnessBin: bin, WorkDir: c.TempDir()}
		_, err := b.Prove(context.Background(), ca, nil)
		c.Assert(errors.Is(err, ErrProcessFailed), qt.IsTrue)
		c.Assert(err, qt.ErrorMatches, "(?s).*out of memory.*")
	})

	c.Run("verify crash", func(c *qt.C) {
		proof, err := ParseProof([]byte(fakeProofJSON), []byte(`["1"]`))
		c.Assert(err, qt.IsNil)
		for name, script := range map[string]string{
			"snarkjs-segfault": "#!/bin/sh\nexit 139\n",
			"snarkjs-badvkey":  "#!/bin/sh\necho 'Unexpected token in JSON' >&2\nexit 1\n",
			"snarkjs-killed":   "#!/bin/sh\necho 'Invalid proof'\nkill -9 $$\n",
		} {
			b := &ProcessBackend{WitnessBin: writeScript(c, dir, name, script), WorkDir: c.TempDir()}
			ok, err := b.Verify(context.Background(), []byte("{}"), proof)
			c.Assert(ok, qt.IsFalse, qt.Commentf(name))
			c.Assert(errors.Is(err, ErrProcessFailed), qt.IsTrue, qt.Commentf(name))
			var envErr *EnvError
			c.Assert(errors.As(err, &envErr), qt.IsTrue, qt.Commentf(name))
			c.Assert(envErr.Op, qt.Equals, "verify")
		}
	})

	c.Run("timeout", func(c *qt.C) {
		bin := writeScript(c, dir, "snarkjs-slow", "#!/bin/sh\nexec sleep 30\n")
		work := c.TempDir()
		b := &ProcessBackend{WitnessBin: bin, WorkDir: work, Timeout: 200 * time.Millisecond}
		start := time.Now()
		_, err := b.Prove(context.Background(), ca, nil)
		c.Assert(errors.Is(err, ErrTimeout), qt.IsTrue)
		c.Assert(time.Since(start) < 10*time.Second, qt.IsTrue)
		entries, err := os.ReadDir(work)
		c.Assert(err, qt.IsNil)
		c.Assert(entries, qt.HasLen, 0)
	})

	c.Run("missing artifacts", func(c *qt.C) {
		bin := writeScript(c, dir, "snarkjs", fakeSnarkjs)
		b := &ProcessBackend{WitnessBin: bin, WorkDir: c.TempDir()}
		missing := circuits.NewCircuitArtifacts(
			&circuits.Artifact{Name: "circuit", LocalPath: filepath.Join(dir, "none.wasm")},
			ca.ProvingKey(), ca.VerifyingKey(),
		)
		_, err := b.Prove(context.Background(), missing, nil)
		c.Assert(errors.Is(err, circuits.ErrArtifactMissing), qt.IsTrue)
		var envErr *EnvError
		c.Assert(errors.As(err, &envErr), qt.IsTrue)
		c.Assert(envErr.Remediation, qt.Contains, "ZKPASSPORT_ARTIFACTS_DIR")
	})
}

func TestProcessBackendJobID(t *testing.T) {
	skipWithoutShell(t)
	c := qt.New(t)
	// the script records the directory it runs in
	record := filepath.Join(c.TempDir(), "cwd")
	bin := writeScript(c, c.TempDir(), "snarkjs", "#!/bin/sh\npwd > "+record+"\nexit 1\n")
	b := &ProcessBackend{WitnessBin: bin, WorkDir: c.TempDir()}
	_, err := b.Prove(WithJobID(context.Background(), "job42"), testArtifacts(c), nil)
	c.Assert(errors.Is(err, ErrProcessFailed), qt.IsTrue)
	cwd, err := os.ReadFile(record)
	c.Assert(err, qt.IsNil)
	c.Assert(filepath.Base(string(cwd)), qt.Matches, "zkpassport-job42-.*\n")
}
