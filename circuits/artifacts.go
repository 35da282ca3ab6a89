package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocdoni/zkpassport/log"
	"github.com/vocdoni/zkpassport/types"
)

// ErrArtifactMissing is returned when a circuit artifact is neither loaded
// nor present on disk.
var ErrArtifactMissing = errors.New("circuits: artifact missing")

// CheckHashes determines if the hashes of the artifacts are checked when
// they are loaded or downloaded. Setting ZKPASSPORT_CHECK_HASHES to false
// or 0 disables it.
var CheckHashes = true

// BaseDir is the artifact cache directory. Defaults to the env var
// ZKPASSPORT_ARTIFACTS_DIR or ~/.cache/zkpassport-artifacts.
var BaseDir string

func init() {
	if checkHashes := os.Getenv("ZKPASSPORT_CHECK_HASHES"); checkHashes != "" {
		if strings.ToLower(checkHashes) == "false" || checkHashes == "0" {
			CheckHashes = false
		}
	}
	if dir := os.Getenv("ZKPASSPORT_ARTIFACTS_DIR"); dir != "" {
		BaseDir = dir
		return
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		log.Warnf("unable to access user home directory, using temporary directory: %v", err)
		BaseDir = filepath.Join(os.TempDir(), "zkpassport-artifacts")
		return
	}
	BaseDir = filepath.Join(home, ".cache", "zkpassport-artifacts")
}

// Artifact is a circuit file (compiled circuit, proving key or verification
// key). It is found on disk either at LocalPath or in the cache under the
// hex encoded SHA-256 of its content, and can be downloaded from RemoteURL.
// An Artifact may be shared by concurrent proofs; Content must not be
// modified once Load has returned.
type Artifact struct {
	Name      string
	RemoteURL string
	Hash      types.HexBytes
	LocalPath string
	Content   []byte

	mu sync.Mutex
}

// Path returns where the artifact is expected on disk.
func (a *Artifact) Path() string {
	if a.LocalPath != "" {
		return a.LocalPath
	}
	if len(a.Hash) == 0 {
		return ""
	}
	return filepath.Join(BaseDir, hex.EncodeToString(a.Hash))
}

// Exists reports whether the artifact is loaded or present on disk.
func (a *Artifact) Exists() bool {
	a.mu.Lock()
	loaded := len(a.Content) > 0
	a.mu.Unlock()
	if loaded {
		return true
	}
	path := a.Path()
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (a *Artifact) missing() error {
	return fmt.Errorf("%w: %s expected at %q", ErrArtifactMissing, a.Name, a.Path())
}

// Load reads the artifact content from disk, checking its hash when one is
// set and CheckHashes is enabled. It does nothing if already loaded.
func (a *Artifact) Load() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Content) != 0 {
		return nil
	}
	path := a.Path()
	if path == "" {
		return fmt.Errorf("%w: %s has neither a path nor a hash", ErrArtifactMissing, a.Name)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a.missing()
		}
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	if CheckHashes && len(a.Hash) > 0 {
		if sum := sha256.Sum256(content); !bytes.Equal(sum[:], a.Hash) {
			return fmt.Errorf("hash mismatch for %s: expected %x, got %x", path, []byte(a.Hash), sum[:])
		}
	}
	a.Content = content
	return nil
}

// Download fetches the artifact from RemoteURL into Path. The hash is
// checked when one is set.
func (a *Artifact) Download(ctx context.Context) error {
	if a.RemoteURL == "" {
		return fmt.Errorf("%s not loaded and remote url not provided", a.Name)
	}
	path := a.Path()
	if path == "" {
		return fmt.Errorf("%s has neither a path nor a hash to store it by", a.Name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating the artifacts directory: %w", err)
	}
	return downloadAndStore(ctx, a.Hash, a.RemoteURL, path)
}

// CircuitArtifacts holds the files of a circom circuit: the witness
// generator (wasm), the proving key (zkey) and the verification key (json).
type CircuitArtifacts struct {
	circuitDefinition *Artifact
	provingKey        *Artifact
	verifyingKey      *Artifact
}

// NewCircuitArtifacts groups the artifacts of a circuit.
func NewCircuitArtifacts(circuit, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		circuitDefinition: circuit,
		provingKey:        provingKey,
		verifyingKey:      verifyingKey,
	}
}

func (ca *CircuitArtifacts) all() []*Artifact {
	return []*Artifact{ca.circuitDefinition, ca.provingKey, ca.verifyingKey}
}

// Check verifies every artifact exists without loading it. The returned
// error lists all the missing files.
func (ca *CircuitArtifacts) Check() error {
	var errs []error
	for _, a := range ca.all() {
		if a == nil {
			continue
		}
		if !a.Exists() {
			errs = append(errs, a.missing())
		}
	}
	return errors.Join(errs...)
}

// LoadAll loads the artifacts into memory.
func (ca *CircuitArtifacts) LoadAll() error {
	for _, a := range ca.all() {
		if a == nil {
			continue
		}
		if err := a.Load(); err != nil {
			return fmt.Errorf("error loading %s: %w", a.Name, err)
		}
	}
	return nil
}

// DownloadAll downloads the artifacts that are not yet on disk.
func (ca *CircuitArtifacts) DownloadAll(ctx context.Context) error {
	for _, a := range ca.all() {
		if a == nil || a.Exists() {
			continue
		}
		if err := a.Download(ctx); err != nil {
			return fmt.Errorf("error downloading %s: %w", a.Name, err)
		}
	}
	return nil
}

// CircuitDefinition returns the artifact of the compiled circuit.
func (ca *CircuitArtifacts) CircuitDefinition() *Artifact { return ca.circuitDefinition }

// ProvingKey returns the artifact of the proving key.
func (ca *CircuitArtifacts) ProvingKey() *Artifact { return ca.provingKey }

// VerifyingKey returns the artifact of the verification key.
func (ca *CircuitArtifacts) VerifyingKey() *Artifact { return ca.verifyingKey }

// progressReader counts the bytes read through it.
type progressReader struct {
	reader io.Reader
	total  int64 // updated atomically
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	atomic.AddInt64(&pr.total, int64(n))
	return n, err
}

// downloadAndStore downloads fileURL to path, resuming a previous partial
// download if there is one, and renames it once the hash matches.
func downloadAndStore(ctx context.Context, expectedHash []byte, fileURL, path string) error {
	if _, err := url.Parse(fileURL); err != nil {
		return fmt.Errorf("error parsing the file URL provided: %w", err)
	}
	partialPath := path + ".partial"

	var startByte int64
	if info, err := os.Stat(partialPath); err == nil {
		startByte = info.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("error creating the file request: %w", err)
	}
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("error downloading file %s: http status: %d", fileURL, res.StatusCode)
	}

	hasher := sha256.New()
	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if startByte > 0 && res.StatusCode == http.StatusPartialContent {
		fileMode = os.O_APPEND | os.O_WRONLY
		// the hash must also cover what was downloaded before
		if existing, err := os.Open(partialPath); err == nil {
			_, _ = io.Copy(hasher, existing)
			existing.Close()
		}
	}
	fd, err := os.OpenFile(partialPath, fileMode, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	defer fd.Close()

	pr := &progressReader{reader: res.Body}
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(fd, hasher), pr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for finished := false; !finished; {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("error copying data to file: %w", err)
			}
			finished = true
		case <-ticker.C:
			log.Debugw("downloading artifact", "url", fileURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(atomic.LoadInt64(&pr.total))/(1024*1024)))
		}
	}

	if CheckHashes && len(expectedHash) > 0 {
		if computed := hasher.Sum(nil); !bytes.Equal(computed, expectedHash) {
			os.Remove(partialPath)
			return fmt.Errorf("hash mismatch: expected %x, got %x", expectedHash, computed)
		}
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	log.Infow("artifact downloaded", "url", fileURL, "path", path)
	return nil
}
