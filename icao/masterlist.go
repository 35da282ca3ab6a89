// Package icao authenticates ICAO CSCA Master Lists and builds the Keccak256
// membership tree of the CSCA keys they carry.
package icao

import (
	"crypto"
	"encoding/asn1"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vocdoni/zkpassport/crypto/certs"
	"github.com/vocdoni/zkpassport/crypto/cms"
	"github.com/vocdoni/zkpassport/crypto/der"
	"github.com/vocdoni/zkpassport/log"
)

var (
	// ErrSignerNotFound is returned when the Master List does not embed the
	// Master List signer certificate.
	ErrSignerNotFound = errors.New("icao: master list signer certificate not found")
	// ErrRootNotFound is returned when the UN CSCA is not embedded.
	ErrRootNotFound = errors.New("icao: UN CSCA certificate not found")
	// ErrMalformedContent is returned when the content is not a CscaMasterList.
	ErrMalformedContent = errors.New("icao: malformed master list content")
)

const (
	signerSubjectMarker = "Master List Signers"
	rootSubjectMarker   = "Certification Authorities"
	rootSubjectOrg      = "United Nations"
)

// MasterList is a parsed ICAO CSCA Master List.
type MasterList struct {
	Envelope *cms.SignedData
	Signer   *certs.Certificate
	Root     *certs.Certificate
	// certList holds the content octets of the SET OF Certificate.
	certList []byte
}

type cscaMasterList struct {
	Version  int
	CertList asn1.RawValue `asn1:"set"`
}

// ParseMasterList decodes the CMS envelope of a Master List and locates its
// signer and UN root certificates.
func ParseMasterList(data []byte) (*MasterList, error) {
	env, err := cms.Parse(data)
	if err != nil {
		return nil, err
	}
	var content cscaMasterList
	if _, err := asn1.Unmarshal(env.Content, &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	ml := &MasterList{Envelope: env, certList: content.CertList.Bytes}
	for _, c := range env.Certificates {
		subject := c.Subject.String()
		switch {
		case strings.Contains(subject, signerSubjectMarker):
			ml.Signer = certs.New(c)
		case strings.Contains(subject, rootSubjectMarker) && strings.Contains(subject, rootSubjectOrg):
			ml.Root = certs.New(c)
		}
	}
	if ml.Signer == nil {
		return nil, ErrSignerNotFound
	}
	if ml.Root == nil {
		return nil, ErrRootNotFound
	}
	return ml, nil
}

// Report holds the outcome of each authenticity check of a Master List.
type Report struct {
	CMSSignatureValid    bool `json:"cmsSignatureValid"`
	MessageDigestValid   bool `json:"messageDigestValid"`
	SignerIssuedByRoot   bool `json:"signerIssuedByRoot"`
	RootSelfSigned       bool `json:"rootSelfSigned"`
	SignerWithinValidity bool `json:"signerWithinValidity"`
	RootWithinValidity   bool `json:"rootWithinValidity"`
	MemberCount          int  `json:"memberCount"`
}

// Valid reports whether every check passed.
func (r Report) Valid() bool {
	return r.CMSSignatureValid && r.MessageDigestValid && r.SignerIssuedByRoot &&
		r.RootSelfSigned && r.SignerWithinValidity && r.RootWithinValidity
}

// digestHash returns the hash declared by the signer info. Master Lists are
// only signed with SHA-2, anything else falls back to SHA-256.
func (ml *MasterList) digestHash() crypto.Hash {
	h, ok := ml.Envelope.DigestHash()
	switch {
	case ok && (h == crypto.SHA256 || h == crypto.SHA384 || h == crypto.SHA512):
		return h
	default:
		log.Debugw("unrecognized master list digest, using sha256",
			"oid", ml.Envelope.Signer.DigestAlgorithm.Algorithm.String())
		return crypto.SHA256
	}
}

// Authenticate verifies the envelope signature with the signer key, the
// signer certificate under the UN root, the root self-signature and both
// validity windows against now.
func (ml *MasterList) Authenticate(now time.Time) (Report, error) {
	count, err := ml.CountMembers()
	if err != nil {
		return Report{}, err
	}
	r := Report{
		SignerIssuedByRoot:   certs.Verify(ml.Signer, ml.Root),
		RootSelfSigned:       certs.SelfSigned(ml.Root),
		SignerWithinValidity: ml.Signer.WithinValidity(now),
		RootWithinValidity:   ml.Root.WithinValidity(now),
		MemberCount:          count,
	}
	h := ml.digestHash()
	if r.CMSSignatureValid, err = ml.Envelope.VerifySignatureWith(ml.Signer.PublicKey, h); err != nil {
		return Report{}, err
	}
	if r.MessageDigestValid, err = ml.Envelope.ContentDigestMatches(h); err != nil {
		return Report{}, err
	}
	log.Debugw("master list authenticated",
		"members", count,
		"signature", r.CMSSignatureValid,
		"signerIssuedByRoot", r.SignerIssuedByRoot,
		"rootSelfSigned", r.RootSelfSigned)
	return r, nil
}

// CountMembers returns the number of top-level elements of the certificate
// list, without parsing them.
func (ml *MasterList) CountMembers() (int, error) {
	n, err := der.CountElements(ml.certList)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return n, nil
}

// Members parses every CSCA certificate of the list.
func (ml *MasterList) Members() ([]*certs.Certificate, error) {
	els, err := der.Elements(ml.certList)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	out := make([]*certs.Certificate, 0, len(els))
	for i, el := range els {
		c, err := certs.Parse(el)
		if err != nil {
			return nil, fmt.Errorf("icao: member %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}
