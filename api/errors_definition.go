//nolint:lll
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/circuits/register"
	"github.com/vocdoni/zkpassport/crypto/cms"
	"github.com/vocdoni/zkpassport/crypto/der"
	"github.com/vocdoni/zkpassport/icao"
	"github.com/vocdoni/zkpassport/passport/dg1"
	"github.com/vocdoni/zkpassport/passport/sod"
	"github.com/vocdoni/zkpassport/prover"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault: the data sent
// could not be parsed or does not fit the circuits. They return HTTP Status
// 400 or 404. A verification that fails is not an error, the endpoints
// answer 200 with valid set to false.
//
// Error codes 50001-59999 are the server's fault and they return HTTP Status
// 500 or 503. Prover environment failures (missing artifacts or tools, a
// timeout or a crash) return 503 with a remediation text.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 4010, 4011 and 4013 exist, 4012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound      = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody         = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedDG1          = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed DG1")}
	ErrMalformedSOD          = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed SOD")}
	ErrMalformedCertificate  = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed certificate")}
	ErrMalformedMasterList   = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed master list")}
	ErrUnknownVariant        = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown circuit variant")}
	ErrInputTooLong          = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("input does not fit the circuit")}
	ErrUnsupportedKey        = Error{Code: 40014, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unsupported document signer key")}
	ErrMasterListNotLoaded   = Error{Code: 40015, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("no master list loaded")}
	ErrInvalidVoteSelection  = Error{Code: 40016, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote selection")}
	ErrInvalidDate           = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid date")}
	ErrMalformedDER          = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed DER structure")}
	ErrMissingDocumentSigner = Error{Code: 40019, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("no document signer certificate")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrProverUnavailable          = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("prover environment not available")}
	ErrProverNotConfigured        = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("prover not configured"), Remediation: "start the service with the circuit artifacts of the requested variant"}
)

// apiError maps a structural or environment failure to its API error. Any
// other error is an internal error.
func apiError(err error) Error {
	var envErr *prover.EnvError
	switch {
	case errors.As(err, &envErr):
		e := ErrProverUnavailable.WithErr(err)
		e.Remediation = envErr.Remediation
		return e
	case errors.Is(err, circuits.ErrArtifactMissing):
		return ErrProverUnavailable.WithErr(err)
	case errors.Is(err, circuits.ErrInputTooLong):
		return ErrInputTooLong.WithErr(err)
	case errors.Is(err, register.ErrUnsupportedKey):
		return ErrUnsupportedKey.WithErr(err)
	case errors.Is(err, sod.ErrNoDocumentSigner):
		return ErrMissingDocumentSigner.WithErr(err)
	case errors.Is(err, dg1.ErrInvalidLength), errors.Is(err, dg1.ErrMalformed):
		return ErrMalformedDG1.WithErr(err)
	case errors.Is(err, sod.ErrMalformed):
		return ErrMalformedSOD.WithErr(err)
	case errors.Is(err, icao.ErrSignerNotFound), errors.Is(err, icao.ErrRootNotFound),
		errors.Is(err, icao.ErrMalformedContent):
		return ErrMalformedMasterList.WithErr(err)
	case errors.Is(err, cms.ErrMalformed), errors.Is(err, der.ErrTruncated):
		return ErrMalformedDER.WithErr(err)
	}
	return ErrGenericInternalServerError.WithErr(err)
}
