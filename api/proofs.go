package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/zkpassport/circuits/register"
	"github.com/vocdoni/zkpassport/crypto/certs"
	"github.com/vocdoni/zkpassport/passport/sod"
	"github.com/vocdoni/zkpassport/prover"
)

// buildInputs returns the inputs JSON of the variant in the URL, writing
// the error response when it fails.
func (a *API) buildInputs(w http.ResponseWriter, r *http.Request) (prover.Variant, []byte, bool) {
	variant, err := prover.ParseVariant(chi.URLParam(r, VariantURLParam))
	if err != nil {
		ErrUnknownVariant.WithErr(err).Write(w)
		return 0, nil, false
	}
	req := &InputsRequest{}
	if !decodeBody(w, r, req) {
		return 0, nil, false
	}
	var (
		s  *sod.SOD
		ds *certs.Certificate
	)
	// the light circuit only reads the SOD to derive a default identity key
	if variant != prover.Light || req.SkIdentity == nil {
		var ok bool
		if s, ds, ok = parsePassport(w, &req.PassportRequest); !ok {
			return 0, nil, false
		}
	}
	opts := register.Options{}
	if req.SkIdentity != nil {
		opts.SkIdentity = req.SkIdentity.MathBigInt()
	}

	inputs, err := registerInputs(variant, req, s, ds, opts)
	if err != nil {
		apiError(err).Write(w)
		return 0, nil, false
	}
	return variant, inputs, true
}

func registerInputs(variant prover.Variant, req *InputsRequest, s *sod.SOD, ds *certs.Certificate,
	opts register.Options,
) ([]byte, error) {
	if variant == prover.Full {
		in, err := register.BuildFull(req.DG1, s, ds, opts)
		if err != nil {
			return nil, err
		}
		return in.JSON()
	}
	in, err := register.BuildLight(req.DG1, s, opts)
	if err != nil {
		return nil, err
	}
	return in.JSON()
}

// circuitInputs returns the inputs of a registration circuit
// POST /circuits/{variant}/inputs
func (a *API) circuitInputs(w http.ResponseWriter, r *http.Request) {
	_, inputs, ok := a.buildInputs(w, r)
	if !ok {
		return
	}
	httpWriteRawJSON(w, inputs)
}

// prove builds the inputs, proves and verifies a registration circuit
// POST /proofs/{variant}
func (a *API) prove(w http.ResponseWriter, r *http.Request) {
	variant, inputs, ok := a.buildInputs(w, r)
	if !ok {
		return
	}
	artifacts := a.artifacts[variant]
	if a.pipeline == nil || artifacts == nil {
		ErrProverNotConfigured.Withf("%s circuit", variant).Write(w)
		return
	}
	res := a.pipeline.Prove(r.Context(), prover.Job{
		Variant:   variant,
		Artifacts: artifacts,
		Inputs:    inputs,
	})
	if res.Err != nil {
		apiError(res.Err).Write(w)
		return
	}
	points, err := res.Proof.Calldata()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	calldata, err := points.ABIEncode()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &ProofResponse{
		ID:            res.ID,
		Variant:       variant.String(),
		Proof:         res.Proof.Proof,
		PublicSignals: res.Proof.PubSignals,
		Valid:         res.Valid,
		Points:        points,
		Calldata:      calldata,
	})
}
