// Package testutil generates the certificates, DG1 files, Security Objects
// and Master Lists used by the tests. Everything is built at test time from
// fresh keys, so no real passport data is ever needed.
package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Entity is a certificate together with its private key.
type Entity struct {
	Cert *x509.Certificate
	DER  []byte
	Key  crypto.Signer
}

// PEM returns the certificate PEM encoded.
func (e *Entity) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: e.DER})
}

// IssueOptions describes a certificate to issue.
type IssueOptions struct {
	Subject   pkix.Name
	NotBefore time.Time
	NotAfter  time.Time
	IsCA      bool
	// RSABits is the modulus size of the new key, 2048 if zero. Ignored
	// when ECDSA is set.
	RSABits int
	ECDSA   bool
	// PSS makes the issuer sign the certificate with RSASSA-PSS.
	PSS bool
	// Key reuses an existing key instead of generating one.
	Key crypto.Signer
}

var serial int64 = 1000

// Issue creates a certificate signed by parent, or a self-signed one when
// parent is nil.
func Issue(parent *Entity, opts IssueOptions) (*Entity, error) {
	key := opts.Key
	if key == nil {
		var err error
		if opts.ECDSA {
			key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		} else {
			bits := opts.RSABits
			if bits == 0 {
				bits = 2048
			}
			key, err = rsa.GenerateKey(rand.Reader, bits)
		}
		if err != nil {
			return nil, err
		}
	}
	notBefore, notAfter := opts.NotBefore, opts.NotAfter
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-24 * time.Hour)
	}
	if notAfter.IsZero() {
		notAfter = time.Now().Add(10 * 365 * 24 * time.Hour)
	}
	ski, err := subjectKeyID(key.Public())
	if err != nil {
		return nil, err
	}
	serialMu.Lock()
	serial++
	sn := big.NewInt(serial)
	serialMu.Unlock()

	tmpl := &x509.Certificate{
		SerialNumber:          sn,
		Subject:               opts.Subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		SubjectKeyId:          ski,
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
	}
	if opts.IsCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else {
		tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	}

	issuerCert, issuerKey := tmpl, key
	if parent != nil {
		issuerCert, issuerKey = parent.Cert, parent.Key
	}
	if opts.PSS {
		switch issuerKey.Public().(type) {
		case *rsa.PublicKey:
			tmpl.SignatureAlgorithm = x509.SHA256WithRSAPSS
		default:
			return nil, fmt.Errorf("PSS requires an RSA issuer key")
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuerCert, key.Public(), issuerKey)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Entity{Cert: cert, DER: der, Key: key}, nil
}

var serialMu sync.Mutex

func subjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(spki)
	return sum[:], nil
}

// PKI is the full trust hierarchy of an ICAO deployment: the UN root signs
// the Master List signer, the country CSCA signs its document signers.
type PKI struct {
	UNCSCA   *Entity
	MLSigner *Entity
	CSCA     *Entity
	DS       *Entity
	// DSECDSA is a document signer with a P-256 key issued by CSCA.
	DSECDSA *Entity
	// OtherCSCA belongs to an unrelated country and signed nothing here.
	OtherCSCA *Entity
}

// Subjects used by the generated hierarchy.
var (
	UNCSCASubject = pkix.Name{
		Country:      []string{"UN"},
		Organization: []string{"United Nations"},
		CommonName:   "United Nations Certification Authorities",
	}
	MLSignerSubject = pkix.Name{
		Country:      []string{"UN"},
		Organization: []string{"United Nations"},
		CommonName:   "ICAO Master List Signers",
	}
	CSCASubject = pkix.Name{
		Country:      []string{"UT"},
		Organization: []string{"Utopia Passport Office"},
		CommonName:   "CSCA Utopia",
	}
	DSSubject = pkix.Name{
		Country:      []string{"UT"},
		Organization: []string{"Utopia Passport Office"},
		CommonName:   "Document Signer Utopia 01",
	}
	OtherCSCASubject = pkix.Name{
		Country:      []string{"AT"},
		Organization: []string{"Atlantis Identity Agency"},
		CommonName:   "CSCA Atlantis",
	}
)

// NewPKI generates a new hierarchy with 2048-bit RSA keys.
func NewPKI() (*PKI, error) {
	p := &PKI{}
	var err error
	if p.UNCSCA, err = Issue(nil, IssueOptions{Subject: UNCSCASubject, IsCA: true}); err != nil {
		return nil, err
	}
	if p.MLSigner, err = Issue(p.UNCSCA, IssueOptions{Subject: MLSignerSubject}); err != nil {
		return nil, err
	}
	if p.CSCA, err = Issue(nil, IssueOptions{Subject: CSCASubject, IsCA: true}); err != nil {
		return nil, err
	}
	if p.DS, err = Issue(p.CSCA, IssueOptions{Subject: DSSubject}); err != nil {
		return nil, err
	}
	ecSubject := DSSubject
	ecSubject.CommonName = "Document Signer Utopia 02"
	if p.DSECDSA, err = Issue(p.CSCA, IssueOptions{Subject: ecSubject, ECDSA: true}); err != nil {
		return nil, err
	}
	if p.OtherCSCA, err = Issue(nil, IssueOptions{Subject: OtherCSCASubject, IsCA: true}); err != nil {
		return nil, err
	}
	return p, nil
}

var (
	sharedOnce sync.Once
	sharedPKI  *PKI
	sharedErr  error
)

// SharedPKI returns a hierarchy generated once per test binary. Callers
// must not modify it.
func SharedPKI() (*PKI, error) {
	sharedOnce.Do(func() {
		sharedPKI, sharedErr = NewPKI()
	})
	return sharedPKI, sharedErr
}
