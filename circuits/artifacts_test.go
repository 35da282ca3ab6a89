package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	dummyPath       = "dummy.zkey"
	dummyKeyContent = []byte("dummy content")
)

func testDummyKeyServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, dummyPath, time.Now(), bytes.NewReader(dummyKeyContent))
	}))
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "zkpassport-artifacts-test")
	if err != nil {
		panic(err)
	}
	BaseDir = dir
	code := m.Run()
	if err := os.RemoveAll(dir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func TestLoadAndDownload(t *testing.T) {
	c := qt.New(t)
	server := testDummyKeyServer()
	defer server.Close()
	expectedHash := sha256.Sum256(dummyKeyContent)
	remoteURL, err := url.JoinPath(server.URL, dummyPath)
	c.Assert(err, qt.IsNil)

	dummyKey := &Artifact{Name: "proving key", RemoteURL: remoteURL, Hash: expectedHash[:]}
	c.Assert(dummyKey.Exists(), qt.IsFalse)
	err = dummyKey.Load()
	c.Assert(errors.Is(err, ErrArtifactMissing), qt.IsTrue)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Assert(dummyKey.Download(ctx), qt.IsNil)
	c.Assert(dummyKey.Exists(), qt.IsTrue)
	c.Assert(dummyKey.Load(), qt.IsNil)
	c.Assert(dummyKey.Content, qt.DeepEquals, dummyKeyContent)

	// a different expected hash points to a file that does not exist
	dummyKey.Content = nil
	dummyKey.Hash = []byte("wrong hash")
	c.Assert(dummyKey.Load(), qt.IsNotNil)
}

func TestLoadHashMismatch(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "circuit.wasm")
	c.Assert(os.WriteFile(path, []byte("tampered"), 0o600), qt.IsNil)
	sum := sha256.Sum256(dummyKeyContent)

	a := &Artifact{Name: "circuit", LocalPath: path, Hash: sum[:]}
	c.Assert(a.Exists(), qt.IsTrue)
	c.Assert(a.Load(), qt.ErrorMatches, "hash mismatch.*")

	a.Hash = nil
	c.Assert(a.Load(), qt.IsNil)
	c.Assert(a.Content, qt.DeepEquals, []byte("tampered"))
}

func TestCircuitArtifactsCheck(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	wasm := filepath.Join(dir, "register.wasm")
	c.Assert(os.WriteFile(wasm, []byte("wasm"), 0o600), qt.IsNil)

	ca := NewCircuitArtifacts(
		&Artifact{Name: "circuit", LocalPath: wasm},
		&Artifact{Name: "proving key", LocalPath: filepath.Join(dir, "register.zkey")},
		&Artifact{Name: "verification key", LocalPath: filepath.Join(dir, "register_vkey.json")},
	)
	err := ca.Check()
	c.Assert(errors.Is(err, ErrArtifactMissing), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, `(?s).*register\.zkey.*register_vkey\.json.*`)

	c.Assert(os.WriteFile(filepath.Join(dir, "register.zkey"), []byte("zkey"), 0o600), qt.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "register_vkey.json"), []byte("{}"), 0o600), qt.IsNil)
	c.Assert(ca.Check(), qt.IsNil)
	c.Assert(ca.LoadAll(), qt.IsNil)
	c.Assert(ca.ProvingKey().Content, qt.DeepEquals, []byte("zkey"))
}

func TestDownloadToLocalPath(t *testing.T) {
	c := qt.New(t)
	server := testDummyKeyServer()
	defer server.Close()
	remoteURL, err := url.JoinPath(server.URL, dummyPath)
	c.Assert(err, qt.IsNil)

	path := filepath.Join(t.TempDir(), "nested", "register_light.zkey")
	a := &Artifact{Name: "proving key", RemoteURL: remoteURL, LocalPath: path}
	c.Assert(a.Exists(), qt.IsFalse)
	c.Assert(a.Download(context.Background()), qt.IsNil)
	c.Assert(a.Load(), qt.IsNil)
	c.Assert(a.Content, qt.DeepEquals, dummyKeyContent)

	_, err = os.Stat(path + ".partial")
	c.Assert(os.IsNotExist(err), qt.IsTrue)

	noURL := &Artifact{Name: "circuit", LocalPath: path}
	c.Assert(noURL.Download(context.Background()), qt.ErrorMatches, "circuit not loaded and remote url not provided")
}

func TestArtifactConcurrentLoad(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "register_vkey.json")
	c.Assert(os.WriteFile(path, dummyKeyContent, 0o600), qt.IsNil)
	a := &Artifact{Name: "verification key", LocalPath: path}

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !a.Exists() {
				errs[i] = fmt.Errorf("artifact not found")
				return
			}
			if errs[i] = a.Load(); errs[i] == nil && !bytes.Equal(a.Content, dummyKeyContent) {
				errs[i] = fmt.Errorf("unexpected content %q", a.Content)
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		c.Assert(err, qt.IsNil)
	}
}
