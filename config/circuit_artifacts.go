// Package config describes where the registration circuit artifacts live.
package config

import (
	"net/url"
	"path/filepath"

	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/prover"
)

// File names of the compiled registration circuits inside the artifacts
// directory and under the remote base URL.
const (
	RegisterLightCircuit         = "register_light.wasm"
	RegisterLightProvingKey      = "register_light.zkey"
	RegisterLightVerificationKey = "register_light_vkey.json"

	RegisterFullCircuit         = "register_full.wasm"
	RegisterFullProvingKey      = "register_full.zkey"
	RegisterFullVerificationKey = "register_full_vkey.json"
)

// ArtifactFiles returns the circuit, proving key and verification key file
// names of a variant.
func ArtifactFiles(v prover.Variant) (circuit, provingKey, verificationKey string) {
	if v == prover.Full {
		return RegisterFullCircuit, RegisterFullProvingKey, RegisterFullVerificationKey
	}
	return RegisterLightCircuit, RegisterLightProvingKey, RegisterLightVerificationKey
}

// RegisterArtifacts returns the artifacts of a variant stored in dir,
// circuits.BaseDir when empty. When baseURL is set each artifact can be
// downloaded from baseURL/<file name>.
func RegisterArtifacts(v prover.Variant, dir, baseURL string) *circuits.CircuitArtifacts {
	if dir == "" {
		dir = circuits.BaseDir
	}
	artifact := func(name, file string) *circuits.Artifact {
		a := &circuits.Artifact{
			Name:      v.String() + " " + name,
			LocalPath: filepath.Join(dir, file),
		}
		if baseURL != "" {
			if u, err := url.JoinPath(baseURL, file); err == nil {
				a.RemoteURL = u
			}
		}
		return a
	}
	circuit, pk, vk := ArtifactFiles(v)
	return circuits.NewCircuitArtifacts(
		artifact("circuit", circuit),
		artifact("proving key", pk),
		artifact("verification key", vk),
	)
}

// AllRegisterArtifacts returns the artifacts of both variants.
func AllRegisterArtifacts(dir, baseURL string) map[prover.Variant]*circuits.CircuitArtifacts {
	return map[prover.Variant]*circuits.CircuitArtifacts{
		prover.Light: RegisterArtifacts(prover.Light, dir, baseURL),
		prover.Full:  RegisterArtifacts(prover.Full, dir, baseURL),
	}
}
