// Package cms decodes the CMS SignedData envelopes (RFC 5652) found in
// passport Security Objects and ICAO Master Lists, and verifies their signer
// info signatures.
package cms

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/vocdoni/zkpassport/crypto/der"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	// ErrMalformed is the root of every structural failure of this package.
	ErrMalformed = errors.New("cms: malformed structure")
	// ErrUnsupportedAlgorithm is returned for digest or key algorithms that
	// cannot be used to verify a signer info.
	ErrUnsupportedAlgorithm = errors.New("cms: unsupported algorithm")
)

// ParseError describes which construct of the envelope could not be decoded.
// It matches ErrMalformed with errors.Is.
type ParseError struct {
	Construct string
	Err       error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cms: malformed %s", e.Construct)
	}
	return fmt.Sprintf("cms: malformed %s: %v", e.Construct, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrMalformed }

func malformed(construct string, err error) error {
	return &ParseError{Construct: construct, Err: err}
}

var (
	OIDSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	OIDRSASSAPSS     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}

	OIDSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA224 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}
	OIDSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

var digestHashes = []struct {
	oid  asn1.ObjectIdentifier
	hash crypto.Hash
}{
	{OIDSHA1, crypto.SHA1},
	{OIDSHA224, crypto.SHA224},
	{OIDSHA256, crypto.SHA256},
	{OIDSHA384, crypto.SHA384},
	{OIDSHA512, crypto.SHA512},
}

// HashForOID maps a digest algorithm identifier to its hash function.
func HashForOID(oid asn1.ObjectIdentifier) (crypto.Hash, bool) {
	for _, d := range digestHashes {
		if d.oid.Equal(oid) {
			return d.hash, true
		}
	}
	return 0, false
}

// OIDForHash is the inverse of HashForOID.
func OIDForHash(h crypto.Hash) (asn1.ObjectIdentifier, bool) {
	for _, d := range digestHashes {
		if d.hash == h {
			return d.oid, true
		}
	}
	return nil, false
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

type encapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signerInfo struct {
	Version            int
	SID                asn1.RawValue
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo encapsulatedContentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      []signerInfo  `asn1:"set"`
}

// Attribute is a single signed attribute.
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

type pssParameters struct {
	Hash         pkix.AlgorithmIdentifier `asn1:"explicit,optional,tag:0"`
	MGF          pkix.AlgorithmIdentifier `asn1:"explicit,optional,tag:1"`
	SaltLength   int                      `asn1:"explicit,optional,default:20,tag:2"`
	TrailerField int                      `asn1:"optional,explicit,tag:3,default:1"`
}

// SignerInfo is the decoded first signer of the envelope.
type SignerInfo struct {
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignatureAlgorithm pkix.AlgorithmIdentifier
	// SignedAttrs is the attribute block as transported, starting with the
	// context specific tag 0xA0.
	SignedAttrs []byte
	Signature   []byte
}

// SignedData is the decoded envelope.
type SignedData struct {
	ContentType  asn1.ObjectIdentifier
	Content      []byte
	Certificates []*x509.Certificate
	Signer       SignerInfo
}

// Parse decodes a DER encoded ContentInfo holding a SignedData.
func Parse(data []byte) (*SignedData, error) {
	var ci contentInfo
	rest, err := asn1.Unmarshal(data, &ci)
	if err != nil {
		return nil, malformed("ContentInfo", err)
	}
	if len(rest) > 0 {
		return nil, malformed("ContentInfo", fmt.Errorf("%d trailing bytes", len(rest)))
	}
	if !ci.ContentType.Equal(OIDSignedData) {
		return nil, malformed("ContentInfo", fmt.Errorf("content type %s is not signedData", ci.ContentType))
	}
	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, malformed("SignedData", err)
	}
	if len(sd.SignerInfos) == 0 {
		return nil, malformed("SignerInfos", errors.New("no signer info"))
	}

	out := &SignedData{ContentType: sd.EncapContentInfo.EContentType}
	if len(sd.EncapContentInfo.EContent.Bytes) == 0 {
		return nil, malformed("EncapsulatedContentInfo", errors.New("detached content"))
	}
	out.Content, err = encapsulatedContent(sd.EncapContentInfo.EContent.Bytes)
	if err != nil {
		return nil, malformed("EncapsulatedContentInfo", err)
	}
	if len(sd.Certificates.Bytes) > 0 {
		out.Certificates, err = x509.ParseCertificates(sd.Certificates.Bytes)
		if err != nil {
			return nil, malformed("Certificates", err)
		}
	}

	si := sd.SignerInfos[0]
	if len(si.SignedAttrs.FullBytes) == 0 {
		return nil, malformed("SignerInfo", errors.New("missing signed attributes"))
	}
	if si.SignedAttrs.FullBytes[0] != der.TagContextZero {
		return nil, malformed("SignerInfo", fmt.Errorf("signed attributes tag 0x%02x", si.SignedAttrs.FullBytes[0]))
	}
	out.Signer = SignerInfo{
		DigestAlgorithm:    si.DigestAlgorithm,
		SignatureAlgorithm: si.SignatureAlgorithm,
		SignedAttrs:        si.SignedAttrs.FullBytes,
		Signature:          si.Signature,
	}
	return out, nil
}

// encapsulatedContent unwraps the eContent element: an OCTET STRING yields
// its octets, any other element is stripped of its DER header.
func encapsulatedContent(el []byte) ([]byte, error) {
	if el[0] == der.TagOctetString {
		var octets []byte
		if _, err := asn1.Unmarshal(el, &octets); err != nil {
			return nil, err
		}
		return octets, nil
	}
	return der.StripHeader(el)
}

// SignedAttrsForVerification returns a copy of the signed attributes with
// the outer tag rewritten from [0] IMPLICIT to SET OF, which is the encoding
// the signature is computed over.
func (sd *SignedData) SignedAttrsForVerification() []byte {
	return der.Retag(sd.Signer.SignedAttrs, der.TagSet)
}

// Attributes decodes the signed attributes in transport order.
func (sd *SignedData) Attributes() ([]Attribute, error) {
	content, err := der.StripHeader(sd.Signer.SignedAttrs)
	if err != nil {
		return nil, malformed("SignedAttributes", err)
	}
	var attrs []Attribute
	s := cryptobyte.String(content)
	for !s.Empty() {
		var attr cryptobyte.String
		if !s.ReadASN1Element(&attr, cbasn1.SEQUENCE) {
			return nil, malformed("SignedAttributes", errors.New("attribute is not a SEQUENCE"))
		}
		var a Attribute
		if _, err := asn1.Unmarshal(attr, &a); err != nil {
			return nil, malformed("SignedAttributes", err)
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

// MessageDigest returns the value of the messageDigest signed attribute.
func (sd *SignedData) MessageDigest() ([]byte, error) {
	attrs, err := sd.Attributes()
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if !a.Type.Equal(OIDMessageDigest) {
			continue
		}
		var digest []byte
		if _, err := asn1.Unmarshal(a.Values.Bytes, &digest); err != nil {
			return nil, malformed("messageDigest", err)
		}
		return digest, nil
	}
	return nil, malformed("messageDigest", errors.New("attribute not present"))
}

// DigestHash returns the hash function named by the signer info.
func (sd *SignedData) DigestHash() (crypto.Hash, bool) {
	return HashForOID(sd.Signer.DigestAlgorithm.Algorithm)
}

// ContentDigestMatches reports whether the messageDigest attribute equals
// the digest of the encapsulated content under h.
func (sd *SignedData) ContentDigestMatches(h crypto.Hash) (bool, error) {
	md, err := sd.MessageDigest()
	if err != nil {
		return false, err
	}
	if !h.Available() {
		return false, ErrUnsupportedAlgorithm
	}
	hasher := h.New()
	hasher.Write(sd.Content)
	return bytes.Equal(hasher.Sum(nil), md), nil
}

// VerifySignature checks the signer info signature under pub using the
// digest algorithm declared by the signer info. A cryptographic rejection
// is reported as false with a nil error.
func (sd *SignedData) VerifySignature(pub crypto.PublicKey) (bool, error) {
	h, ok := sd.DigestHash()
	if !ok {
		return false, fmt.Errorf("%w: digest %s", ErrUnsupportedAlgorithm, sd.Signer.DigestAlgorithm.Algorithm)
	}
	return sd.VerifySignatureWith(pub, h)
}

// VerifySignatureWith is VerifySignature with an explicit digest.
func (sd *SignedData) VerifySignatureWith(pub crypto.PublicKey, h crypto.Hash) (bool, error) {
	if !h.Available() {
		return false, ErrUnsupportedAlgorithm
	}
	hasher := h.New()
	hasher.Write(sd.SignedAttrsForVerification())
	digest := hasher.Sum(nil)

	switch key := pub.(type) {
	case *rsa.PublicKey:
		if sd.Signer.SignatureAlgorithm.Algorithm.Equal(OIDRSASSAPSS) {
			pssHash, err := pssHashFunc(sd.Signer.SignatureAlgorithm, h)
			if err != nil {
				return false, err
			}
			if pssHash != h {
				hasher = pssHash.New()
				hasher.Write(sd.SignedAttrsForVerification())
				digest = hasher.Sum(nil)
			}
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: pssHash}
			return rsa.VerifyPSS(key, pssHash, digest, sd.Signer.Signature, opts) == nil, nil
		}
		return rsa.VerifyPKCS1v15(key, h, digest, sd.Signer.Signature) == nil, nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(key, digest, sd.Signer.Signature), nil
	default:
		return false, fmt.Errorf("%w: public key %T", ErrUnsupportedAlgorithm, pub)
	}
}

// pssHashFunc reads the hash from the RSASSA-PSS parameters, falling back
// to the signer info digest when the parameters leave it out.
func pssHashFunc(alg pkix.AlgorithmIdentifier, fallback crypto.Hash) (crypto.Hash, error) {
	if len(alg.Parameters.FullBytes) == 0 || alg.Parameters.Tag == asn1.TagNull {
		return fallback, nil
	}
	var params pssParameters
	if _, err := asn1.Unmarshal(alg.Parameters.FullBytes, &params); err != nil {
		return 0, malformed("RSASSA-PSS parameters", err)
	}
	if len(params.Hash.Algorithm) == 0 {
		// SHA-1 is the RFC 4055 default
		return crypto.SHA1, nil
	}
	h, ok := HashForOID(params.Hash.Algorithm)
	if !ok {
		return 0, fmt.Errorf("%w: PSS digest %s", ErrUnsupportedAlgorithm, params.Hash.Algorithm)
	}
	return h, nil
}
