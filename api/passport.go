package api

import (
	"net/http"

	"github.com/vocdoni/zkpassport/crypto/certkey"
	"github.com/vocdoni/zkpassport/crypto/certs"
	"github.com/vocdoni/zkpassport/icao"
	"github.com/vocdoni/zkpassport/log"
	"github.com/vocdoni/zkpassport/passport/dg1"
	"github.com/vocdoni/zkpassport/passport/sod"
	"github.com/vocdoni/zkpassport/types"
)

// parseDG1 decodes the MRZ of a DG1
// POST /passport/dg1
func (a *API) parseDG1(w http.ResponseWriter, r *http.Request) {
	req := &DG1Request{}
	if !decodeBody(w, r, req) {
		return
	}
	mrz, err := dg1.Parse(req.DG1)
	if err != nil {
		ErrMalformedDG1.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &DG1Response{MRZ: mrz, CheckDigitsValid: mrz.CheckDigitsValid()})
}

// parsePassport decodes the SOD and, if sent, the document signer
// certificate of a request, writing the error response when it fails.
func parsePassport(w http.ResponseWriter, req *PassportRequest) (*sod.SOD, *certs.Certificate, bool) {
	s, err := sod.ParseSOD(req.SOD)
	if err != nil {
		ErrMalformedSOD.WithErr(err).Write(w)
		return nil, nil, false
	}
	if len(req.DSCertificate) == 0 {
		return s, nil, true
	}
	ds, err := certs.Parse(req.DSCertificate)
	if err != nil {
		ErrMalformedCertificate.Withf("document signer: %v", err).Write(w)
		return nil, nil, false
	}
	return s, ds, true
}

// verifyPassport runs passive authentication. Failed checks are reported
// with valid set to false, only unparseable data is an error.
// POST /passport/verify
func (a *API) verifyPassport(w http.ResponseWriter, r *http.Request) {
	req := &VerifyRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	s, ds, ok := parsePassport(w, &req.PassportRequest)
	if !ok {
		return
	}
	csca, err := certs.Parse(req.CSCACertificate)
	if err != nil {
		ErrMalformedCertificate.Withf("CSCA: %v", err).Write(w)
		return
	}
	report, err := sod.PassiveAuthentication(s, req.DG1, ds, csca, a.now())
	if err != nil {
		apiError(err).Write(w)
		return
	}
	res := &VerifyResponse{Report: report, Valid: report.Valid()}
	// the MRZ is informative, a DG1 that does not parse fails the hash check
	if mrz, err := dg1.Parse(req.DG1); err == nil {
		res.MRZ = mrz
	}
	if a.cscaTree != nil {
		leaf := icao.Leaf(csca.SPKI())
		member := a.cscaTree.Contains(leaf)
		root := a.cscaTree.Root()
		res.CSCAInMasterList = &member
		res.MasterListRoot = root.Bytes()
		res.CSCAProof = hashesToHex(a.cscaTree.Proof(leaf))
		res.Valid = res.Valid && member
	}
	log.Infow("passport verified", "valid", res.Valid, "dg1Hash", report.DG1HashValid,
		"sodSignature", report.SODSignatureValid, "chain", report.ChainResult.Valid())
	httpWriteJSON(w, res)
}

// certificateKey computes the Poseidon key of an RSA certificate
// POST /certificates/key
func (a *API) certificateKey(w http.ResponseWriter, r *http.Request) {
	req := &CertificateRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	cert, err := certs.Parse(req.Certificate)
	if err != nil {
		ErrMalformedCertificate.WithErr(err).Write(w)
		return
	}
	if cert.Modulus == nil {
		ErrUnsupportedKey.With("only RSA certificates have a certificate key").Write(w)
		return
	}
	key, root, err := certkey.Compute(cert.Modulus)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, &CertificateKeyResponse{
		CertificateKey:   new(types.BigInt).SetBigInt(key),
		CertificatesRoot: new(types.BigInt).SetBigInt(root),
	})
}
