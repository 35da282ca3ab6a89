package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

var (
	oidSignedData      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidContentType     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidMessageDigest   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidSigningTime     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	oidRSASSAPSS       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidMGF1            = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
	oidSHA1WithRSA     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	oidSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}

	OIDSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}

	// OIDLDSSecurityObject is the eContentType of a passport SOD.
	OIDLDSSecurityObject = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 1}
	// OIDCSCAMasterList is the eContentType of an ICAO Master List.
	OIDCSCAMasterList = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 2}
)

// fixedSigningTime keeps generated envelopes reproducible in size.
var fixedSigningTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue
}

type encapContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue
}

type issuerAndSerial struct {
	Issuer asn1.RawValue
	Serial *big.Int
}

type signerInfo struct {
	Version            int
	SID                issuerAndSerial
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
}

type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo encapContentInfo
	Certificates     asn1.RawValue `asn1:"optional"`
	SignerInfos      []signerInfo  `asn1:"set"`
}

type attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

type pssParams struct {
	Hash       pkix.AlgorithmIdentifier `asn1:"explicit,tag:0"`
	MGF        pkix.AlgorithmIdentifier `asn1:"explicit,tag:1"`
	SaltLength int                      `asn1:"explicit,tag:2"`
}

func explicitZero(inner []byte) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: inner}
}

func digestOID(h crypto.Hash) (asn1.ObjectIdentifier, error) {
	switch h {
	case crypto.SHA1:
		return OIDSHA1, nil
	case crypto.SHA256:
		return OIDSHA256, nil
	case crypto.SHA384:
		return OIDSHA384, nil
	case crypto.SHA512:
		return OIDSHA512, nil
	}
	return nil, fmt.Errorf("unsupported hash %v", h)
}

func algorithm(oid asn1.ObjectIdentifier) pkix.AlgorithmIdentifier {
	return pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue}
}

// SignOptions controls how SignCMS builds the envelope.
type SignOptions struct {
	// Hash is the signer info digest, SHA-256 if zero.
	Hash crypto.Hash
	// PSS signs with RSASSA-PSS instead of PKCS#1 v1.5.
	PSS bool
	// Certificates are embedded in the envelope, DER encoded.
	Certificates [][]byte
	// SigningTime adds a signingTime attribute.
	SigningTime bool
	// MessageDigest overrides the messageDigest attribute value.
	MessageDigest []byte
}

// SignCMS wraps content into a ContentInfo/SignedData signed by signer.
func SignCMS(contentType asn1.ObjectIdentifier, content []byte, signer *Entity, opts SignOptions) ([]byte, error) {
	h := opts.Hash
	if h == 0 {
		h = crypto.SHA256
	}
	hOID, err := digestOID(h)
	if err != nil {
		return nil, err
	}
	md := opts.MessageDigest
	if md == nil {
		hasher := h.New()
		hasher.Write(content)
		md = hasher.Sum(nil)
	}

	attrsDER, err := signedAttributes(contentType, md, opts.SigningTime)
	if err != nil {
		return nil, err
	}
	// the signature covers the attributes encoded as a SET
	setDER := append([]byte{0x31}, attrsDER[1:]...)
	hasher := h.New()
	hasher.Write(setDER)
	digest := hasher.Sum(nil)

	var sigAlg pkix.AlgorithmIdentifier
	var signature []byte
	switch signer.Key.Public().(type) {
	case *rsa.PublicKey:
		if opts.PSS {
			var params []byte
			params, err = asn1.Marshal(pssParams{
				Hash:       algorithm(hOID),
				MGF:        pkix.AlgorithmIdentifier{Algorithm: oidMGF1, Parameters: mustMarshal(algorithm(hOID))},
				SaltLength: h.Size(),
			})
			if err != nil {
				return nil, err
			}
			sigAlg = pkix.AlgorithmIdentifier{Algorithm: oidRSASSAPSS, Parameters: asn1.RawValue{FullBytes: params}}
			signature, err = signer.Key.Sign(rand.Reader, digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h})
		} else {
			sigAlg = algorithm(rsaSignatureOID(h))
			signature, err = signer.Key.Sign(rand.Reader, digest, h)
		}
	case *ecdsa.PublicKey:
		sigAlg = pkix.AlgorithmIdentifier{Algorithm: ecdsaSignatureOID(h)}
		signature, err = signer.Key.Sign(rand.Reader, digest, h)
	default:
		err = fmt.Errorf("unsupported signer key %T", signer.Key.Public())
	}
	if err != nil {
		return nil, err
	}

	eContent, err := asn1.Marshal(content)
	if err != nil {
		return nil, err
	}
	sd := signedData{
		Version:          3,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{algorithm(hOID)},
		EncapContentInfo: encapContentInfo{
			EContentType: contentType,
			EContent:     explicitZero(eContent),
		},
		SignerInfos: []signerInfo{{
			Version:            1,
			SID:                issuerAndSerial{Issuer: asn1.RawValue{FullBytes: signer.Cert.RawIssuer}, Serial: signer.Cert.SerialNumber},
			DigestAlgorithm:    algorithm(hOID),
			SignedAttrs:        asn1.RawValue{FullBytes: attrsDER},
			SignatureAlgorithm: sigAlg,
			Signature:          signature,
		}},
	}
	if len(opts.Certificates) > 0 {
		var certs []byte
		for _, c := range opts.Certificates {
			certs = append(certs, c...)
		}
		sd.Certificates = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: certs}
	}
	sdDER, err := asn1.Marshal(sd)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(contentInfo{ContentType: oidSignedData, Content: explicitZero(sdDER)})
}

// signedAttributes returns the attribute block tagged [0] IMPLICIT as it
// travels inside the SignerInfo.
func signedAttributes(contentType asn1.ObjectIdentifier, md []byte, signingTime bool) ([]byte, error) {
	ctValue, err := asn1.Marshal(contentType)
	if err != nil {
		return nil, err
	}
	mdValue, err := asn1.Marshal(md)
	if err != nil {
		return nil, err
	}
	attrs := []attribute{
		{Type: oidContentType, Values: []asn1.RawValue{{FullBytes: ctValue}}},
	}
	if signingTime {
		tValue, err := asn1.Marshal(fixedSigningTime)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attribute{Type: oidSigningTime, Values: []asn1.RawValue{{FullBytes: tValue}}})
	}
	attrs = append(attrs, attribute{Type: oidMessageDigest, Values: []asn1.RawValue{{FullBytes: mdValue}}})

	var body []byte
	for _, a := range attrs {
		b, err := asn1.Marshal(a)
		if err != nil {
			return nil, err
		}
		body = append(body, b...)
	}
	return asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: body})
}

func rsaSignatureOID(h crypto.Hash) asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA1:
		return oidSHA1WithRSA
	case crypto.SHA384:
		return oidSHA384WithRSA
	case crypto.SHA512:
		return oidSHA512WithRSA
	}
	return oidSHA256WithRSA
}

func ecdsaSignatureOID(h crypto.Hash) asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA384:
		return oidECDSAWithSHA384
	case crypto.SHA512:
		return oidECDSAWithSHA512
	}
	return oidECDSAWithSHA256
}

func mustMarshal(v any) asn1.RawValue {
	b, err := asn1.Marshal(v)
	if err != nil {
		panic(err)
	}
	return asn1.RawValue{FullBytes: b}
}
