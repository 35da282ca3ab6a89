// Package sod implements passive authentication of a passport: the Document
// Security Object (EF.SOD) binds the data group hashes to the document
// signer signature, and the document signer is chained to its CSCA.
package sod

import (
	"bytes"
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/zkpassport/crypto/certs"
	"github.com/vocdoni/zkpassport/crypto/cms"
	"github.com/vocdoni/zkpassport/crypto/der"
	"github.com/vocdoni/zkpassport/log"
)

// TagEFSOD is the application tag wrapping the ContentInfo on the chip.
const TagEFSOD = 0x77

// OIDLDSSecurityObject is the content type of the SOD envelope.
var OIDLDSSecurityObject = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 1}

var (
	// ErrMalformed is returned when the security object cannot be decoded.
	ErrMalformed = errors.New("sod: malformed security object")
	// ErrNoDocumentSigner is returned when no document signer certificate
	// is given nor embedded in the envelope.
	ErrNoDocumentSigner = errors.New("sod: no document signer certificate")
)

// DataGroupHash is the hash of one data group recorded in the SOD.
type DataGroupHash struct {
	Number int
	Hash   []byte
}

// LDSSecurityObject is the encapsulated content of the SOD.
type LDSSecurityObject struct {
	Version         int
	HashAlgorithm   pkix.AlgorithmIdentifier
	DataGroupHashes []DataGroupHash
	VersionInfo     asn1.RawValue `asn1:"optional"`
}

// SOD is a parsed Document Security Object.
type SOD struct {
	Envelope *cms.SignedData
	LDS      LDSSecurityObject
}

// ParseSOD decodes a security object, with or without the EF.SOD wrapper.
func ParseSOD(data []byte) (*SOD, error) {
	if len(data) > 0 && data[0] == TagEFSOD {
		inner, err := der.StripHeader(data)
		if err != nil {
			return nil, fmt.Errorf("%w: EF.SOD wrapper: %w", ErrMalformed, err)
		}
		data = inner
	}
	env, err := cms.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !env.ContentType.Equal(OIDLDSSecurityObject) {
		return nil, fmt.Errorf("%w: content type %s", ErrMalformed, env.ContentType)
	}
	s := &SOD{Envelope: env}
	rest, err := asn1.Unmarshal(env.Content, &s.LDS)
	if err != nil {
		return nil, fmt.Errorf("%w: LDSSecurityObject: %w", ErrMalformed, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: LDSSecurityObject: %d trailing bytes", ErrMalformed, len(rest))
	}
	seen := make(map[int]bool, len(s.LDS.DataGroupHashes))
	for _, dg := range s.LDS.DataGroupHashes {
		if seen[dg.Number] {
			return nil, fmt.Errorf("%w: duplicated data group %d", ErrMalformed, dg.Number)
		}
		seen[dg.Number] = true
	}
	return s, nil
}

// HashAlgorithm returns the hash of the data group hashes.
func (s *SOD) HashAlgorithm() (crypto.Hash, bool) {
	return cms.HashForOID(s.LDS.HashAlgorithm.Algorithm)
}

// DataGroupHash returns the recorded hash of data group n.
func (s *SOD) DataGroupHash(n int) ([]byte, bool) {
	for _, dg := range s.LDS.DataGroupHashes {
		if dg.Number == n {
			return dg.Hash, true
		}
	}
	return nil, false
}

// EncapsulatedContent returns the DER of the LDSSecurityObject, the message
// covered by the messageDigest attribute.
func (s *SOD) EncapsulatedContent() []byte {
	return s.Envelope.Content
}

// DocumentSigner returns the first certificate embedded in the envelope.
func (s *SOD) DocumentSigner() (*certs.Certificate, error) {
	if len(s.Envelope.Certificates) == 0 {
		return nil, ErrNoDocumentSigner
	}
	return certs.New(s.Envelope.Certificates[0]), nil
}

// VerifyDG1Hash recomputes the DG1 hash with the LDS hash algorithm and
// compares it with the one recorded in the SOD. An unknown algorithm or a
// missing DG1 entry is a mismatch, and so is a nil SOD.
func VerifyDG1Hash(s *SOD, dg1 []byte) bool {
	if s == nil {
		return false
	}
	h, ok := s.HashAlgorithm()
	if !ok || !h.Available() {
		log.Debugw("unsupported LDS hash algorithm", "oid", s.LDS.HashAlgorithm.Algorithm.String())
		return false
	}
	recorded, ok := s.DataGroupHash(1)
	if !ok {
		return false
	}
	hasher := h.New()
	hasher.Write(dg1)
	return bytes.Equal(hasher.Sum(nil), recorded)
}

// VerifySignature checks the SOD signature under the document signer key
// and that the messageDigest attribute matches the encapsulated content.
// Any failure, structural or cryptographic, is reported as false.
func VerifySignature(s *SOD, ds *certs.Certificate) bool {
	ok, err := verifySignature(s, ds)
	if err != nil {
		log.Debugw("SOD signature not verifiable", "error", err.Error())
		return false
	}
	return ok
}

func verifySignature(s *SOD, ds *certs.Certificate) (bool, error) {
	if s == nil || s.Envelope == nil {
		return false, fmt.Errorf("%w: nil SOD", ErrMalformed)
	}
	if ds == nil {
		return false, ErrNoDocumentSigner
	}
	valid, err := s.Envelope.VerifySignature(ds.PublicKey)
	if err != nil || !valid {
		return false, err
	}
	h, _ := s.Envelope.DigestHash()
	return s.Envelope.ContentDigestMatches(h)
}

// CheckDG1Hash is VerifyDG1Hash over the raw SOD. The error is only set
// when the SOD cannot be decoded.
func CheckDG1Hash(sodDER, dg1 []byte) (bool, error) {
	s, err := ParseSOD(sodDER)
	if err != nil {
		return false, err
	}
	return VerifyDG1Hash(s, dg1), nil
}

// CheckSignature is VerifySignature over the raw SOD and the PEM or DER
// document signer certificate. The error is set when either cannot be
// decoded or the signature uses an unsupported algorithm.
func CheckSignature(sodDER, dsCert []byte) (bool, error) {
	s, err := ParseSOD(sodDER)
	if err != nil {
		return false, err
	}
	ds, err := certs.Parse(dsCert)
	if err != nil {
		return false, err
	}
	return verifySignature(s, ds)
}

// Report is the outcome of passive authentication: the DG1 and SOD
// integrity checks and the document signer to CSCA link checks.
type Report struct {
	DG1HashValid      bool `json:"dg1HashValid"`
	SODSignatureValid bool `json:"sodSignatureValid"`
	certs.ChainResult
}

// Valid reports whether every check passed.
func (r Report) Valid() bool {
	return r.DG1HashValid && r.SODSignatureValid && r.ChainResult.Valid()
}

// PassiveAuthentication runs every check. When ds is nil the certificate
// embedded in the SOD is used.
func PassiveAuthentication(s *SOD, dg1 []byte, ds, csca *certs.Certificate, now time.Time) (Report, error) {
	if s == nil || s.Envelope == nil {
		return Report{}, fmt.Errorf("%w: nil SOD", ErrMalformed)
	}
	if ds == nil {
		var err error
		if ds, err = s.DocumentSigner(); err != nil {
			return Report{}, err
		}
	}
	if csca == nil {
		return Report{}, fmt.Errorf("sod: nil CSCA certificate")
	}
	r := Report{
		DG1HashValid:      VerifyDG1Hash(s, dg1),
		SODSignatureValid: VerifySignature(s, ds),
		ChainResult:       certs.ChainCheck(ds, csca, now),
	}
	log.Debugw("passive authentication",
		"dg1Hash", r.DG1HashValid,
		"sodSignature", r.SODSignatureValid,
		"chain", r.ChainResult.Valid())
	return r, nil
}
