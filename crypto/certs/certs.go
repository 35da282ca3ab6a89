// Package certs parses passport PKI certificates and checks the links of
// the document signer to CSCA chain.
package certs

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"
)

// ErrNoCertificate is returned when the input holds no certificate.
var ErrNoCertificate = errors.New("certs: no certificate found")

// Certificate is a parsed X.509 certificate with the fields the passport
// trust chain needs already extracted.
type Certificate struct {
	*x509.Certificate
	// Modulus and Exponent are only set for RSA keys.
	Modulus  *big.Int
	Exponent int
	// AKI and SKI are nil when the extension is absent.
	AKI []byte
	SKI []byte
}

// New wraps an already parsed certificate.
func New(c *x509.Certificate) *Certificate {
	cert := &Certificate{Certificate: c}
	if pub, ok := c.PublicKey.(*rsa.PublicKey); ok {
		cert.Modulus = new(big.Int).Set(pub.N)
		cert.Exponent = pub.E
	}
	if len(c.AuthorityKeyId) > 0 {
		cert.AKI = c.AuthorityKeyId
	}
	if len(c.SubjectKeyId) > 0 {
		cert.SKI = c.SubjectKeyId
	}
	return cert
}

// Parse decodes a single certificate given as PEM or DER.
func Parse(data []byte) (*Certificate, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("certs: unexpected PEM block %q", block.Type)
		}
		der = block.Bytes
	} else if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		return nil, ErrNoCertificate
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("certs: %w", err)
	}
	return New(c), nil
}

// ParseAll decodes every CERTIFICATE block of a PEM bundle.
func ParseAll(data []byte) ([]*Certificate, error) {
	var out []*Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certs: certificate %d: %w", len(out), err)
		}
		out = append(out, New(c))
	}
	if len(out) == 0 {
		return nil, ErrNoCertificate
	}
	return out, nil
}

// SPKI returns the DER encoded SubjectPublicKeyInfo.
func (c *Certificate) SPKI() []byte {
	return c.RawSubjectPublicKeyInfo
}

// WithinValidity reports whether now falls inside the validity window.
func (c *Certificate) WithinValidity(now time.Time) bool {
	return !now.Before(c.NotBefore) && !now.After(c.NotAfter)
}

// SubjectDN returns the normalized subject distinguished name.
func (c *Certificate) SubjectDN() string {
	return NormalizeDN(c.Subject.String())
}

// IssuerDN returns the normalized issuer distinguished name.
func (c *Certificate) IssuerDN() string {
	return NormalizeDN(c.Issuer.String())
}

// NormalizeDN renders a distinguished name one attribute per line, trimmed
// and sorted, so that names differing only in RDN order compare equal.
func NormalizeDN(dn string) string {
	parts := splitDN(dn)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

// splitDN splits an RFC 4514 string on unescaped commas and plus signs.
func splitDN(dn string) []string {
	var parts []string
	var cur strings.Builder
	escaped := false
	for _, r := range dn {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == ',' || r == '+':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// Verify reports whether child's signature validates under parent's public
// key. Only the signature is checked: CA flags, key usage and validity are
// left to the caller.
func Verify(child, parent *Certificate) bool {
	if child == nil || parent == nil {
		return false
	}
	return parent.Certificate.CheckSignature(child.SignatureAlgorithm, child.RawTBSCertificate, child.Signature) == nil
}

// SelfSigned reports whether the certificate verifies under its own key.
func SelfSigned(c *Certificate) bool {
	return Verify(c, c)
}

// ChainResult is the outcome of each individual link check between a
// document signer and a CSCA. No single field is a trust decision.
type ChainResult struct {
	SignatureValid bool `json:"signatureValid"`
	IssuerMatch    bool `json:"issuerMatch"`
	// AKISKIMatch is nil when either extension is absent.
	AKISKIMatch        *bool `json:"akiSkiMatch"`
	DSValid            bool  `json:"dsCertValid"`
	CSCAValid          bool  `json:"cscaValid"`
	BothWithinValidity bool  `json:"bothWithinValidity"`
}

// Valid combines the checks: the signature and names must match, the key
// identifiers must not contradict each other and both certificates must be
// within their validity window.
func (r ChainResult) Valid() bool {
	return r.SignatureValid && r.IssuerMatch && (r.AKISKIMatch == nil || *r.AKISKIMatch) && r.BothWithinValidity
}

// ChainCheck runs every link check of ds against csca at the given time.
// A nil certificate fails every check.
func ChainCheck(ds, csca *Certificate, now time.Time) ChainResult {
	if ds == nil || csca == nil {
		return ChainResult{}
	}
	res := ChainResult{
		SignatureValid: Verify(ds, csca),
		IssuerMatch:    ds.IssuerDN() == csca.SubjectDN(),
		DSValid:        ds.WithinValidity(now),
		CSCAValid:      csca.WithinValidity(now),
	}
	res.BothWithinValidity = res.DSValid && res.CSCAValid
	if ds.AKI != nil && csca.SKI != nil {
		match := bytes.Equal(ds.AKI, csca.SKI)
		res.AKISKIMatch = &match
	}
	return res
}
