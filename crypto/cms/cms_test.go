package cms

import (
	"crypto"
	"crypto/sha256"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkpassport/crypto/der"
	"github.com/vocdoni/zkpassport/internal/testutil"
)

var testContent = []byte("encapsulated content for the signer")

func signedFixture(c *qt.C, opts testutil.SignOptions, signer func(*testutil.PKI) *testutil.Entity) (*testutil.PKI, []byte) {
	pki, err := testutil.SharedPKI()
	c.Assert(err, qt.IsNil)
	data, err := testutil.SignCMS(testutil.OIDLDSSecurityObject, testContent, signer(pki), opts)
	c.Assert(err, qt.IsNil)
	return pki, data
}

func ds(p *testutil.PKI) *testutil.Entity { return p.DS }

func TestParse(t *testing.T) {
	c := qt.New(t)
	pki, data := signedFixture(c, testutil.SignOptions{}, ds)
	sd, err := Parse(data)
	c.Assert(err, qt.IsNil)
	c.Assert(sd.Content, qt.DeepEquals, testContent)
	c.Assert(sd.ContentType.Equal(testutil.OIDLDSSecurityObject), qt.IsTrue)
	c.Assert(sd.Certificates, qt.HasLen, 0)
	c.Assert(sd.Signer.SignedAttrs[0], qt.Equals, byte(der.TagContextZero))
	h, ok := sd.DigestHash()
	c.Assert(ok, qt.IsTrue)
	c.Assert(h, qt.Equals, crypto.SHA256)

	_, data = signedFixture(c, testutil.SignOptions{Certificates: [][]byte{pki.DS.DER, pki.CSCA.DER}}, ds)
	sd, err = Parse(data)
	c.Assert(err, qt.IsNil)
	c.Assert(sd.Certificates, qt.HasLen, 2)
	c.Assert(sd.Certificates[0].Subject.CommonName, qt.Equals, testutil.DSSubject.CommonName)
}

func TestSignedAttrsForVerification(t *testing.T) {
	c := qt.New(t)
	_, data := signedFixture(c, testutil.SignOptions{}, ds)
	sd, err := Parse(data)
	c.Assert(err, qt.IsNil)

	retagged := sd.SignedAttrsForVerification()
	c.Assert(retagged[0], qt.Equals, byte(der.TagSet))
	c.Assert(retagged[1:], qt.DeepEquals, sd.Signer.SignedAttrs[1:])
	// the transported encoding is left untouched
	c.Assert(sd.Signer.SignedAttrs[0], qt.Equals, byte(der.TagContextZero))
}

func TestMessageDigest(t *testing.T) {
	c := qt.New(t)
	_, data := signedFixture(c, testutil.SignOptions{SigningTime: true}, ds)
	sd, err := Parse(data)
	c.Assert(err, qt.IsNil)

	attrs, err := sd.Attributes()
	c.Assert(err, qt.IsNil)
	c.Assert(attrs, qt.HasLen, 3)

	md, err := sd.MessageDigest()
	c.Assert(err, qt.IsNil)
	sum := sha256.Sum256(testContent)
	c.Assert(md, qt.DeepEquals, sum[:])
	ok, err := sd.ContentDigestMatches(crypto.SHA256)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	_, data = signedFixture(c, testutil.SignOptions{MessageDigest: make([]byte, 32)}, ds)
	sd, err = Parse(data)
	c.Assert(err, qt.IsNil)
	ok, err = sd.ContentDigestMatches(crypto.SHA256)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestVerifySignature(t *testing.T) {
	c := qt.New(t)
	pki, err := testutil.SharedPKI()
	c.Assert(err, qt.IsNil)

	tests := []struct {
		name   string
		opts   testutil.SignOptions
		signer *testutil.Entity
	}{
		{"rsa pkcs1 sha256", testutil.SignOptions{}, pki.DS},
		{"rsa pkcs1 sha1", testutil.SignOptions{Hash: crypto.SHA1}, pki.DS},
		{"rsa pkcs1 sha512", testutil.SignOptions{Hash: crypto.SHA512}, pki.DS},
		{"rsa pss sha256", testutil.SignOptions{PSS: true}, pki.DS},
		{"rsa pss sha384", testutil.SignOptions{PSS: true, Hash: crypto.SHA384}, pki.DS},
		{"ecdsa sha256", testutil.SignOptions{}, pki.DSECDSA},
		{"ecdsa sha384", testutil.SignOptions{Hash: crypto.SHA384}, pki.DSECDSA},
	}
	for _, tc := range tests {
		c.Run(tc.name, func(c *qt.C) {
			data, err := testutil.SignCMS(testutil.OIDLDSSecurityObject, testContent, tc.signer, tc.opts)
			c.Assert(err, qt.IsNil)
			sd, err := Parse(data)
			c.Assert(err, qt.IsNil)

			ok, err := sd.VerifySignature(tc.signer.Cert.PublicKey)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.IsTrue)

			// a key of the same type that did not sign
			other := pki.CSCA
			if tc.signer == pki.DSECDSA {
				other, err = testutil.Issue(pki.CSCA, testutil.IssueOptions{Subject: testutil.DSSubject, ECDSA: true})
				c.Assert(err, qt.IsNil)
			}
			ok, err = sd.VerifySignature(other.Cert.PublicKey)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.IsFalse)
		})
	}
}

func TestVerifySignatureTamperedAttributes(t *testing.T) {
	c := qt.New(t)
	pki, data := signedFixture(c, testutil.SignOptions{}, ds)
	sd, err := Parse(data)
	c.Assert(err, qt.IsNil)

	sd.Signer.SignedAttrs = der.Retag(sd.Signer.SignedAttrs, der.TagContextZero)
	sd.Signer.SignedAttrs[len(sd.Signer.SignedAttrs)-1] ^= 0x01
	ok, err := sd.VerifySignature(pki.DS.Cert.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestVerifySignatureUnsupportedKey(t *testing.T) {
	c := qt.New(t)
	_, data := signedFixture(c, testutil.SignOptions{}, ds)
	sd, err := Parse(data)
	c.Assert(err, qt.IsNil)
	_, err = sd.VerifySignature("not a key")
	c.Assert(errors.Is(err, ErrUnsupportedAlgorithm), qt.IsTrue)
}

func TestParseMalformed(t *testing.T) {
	c := qt.New(t)
	_, data := signedFixture(c, testutil.SignOptions{}, ds)

	for name, input := range map[string][]byte{
		"empty":     nil,
		"truncated": data[:len(data)/2],
		"not cms":   {0x30, 0x03, 0x02, 0x01, 0x01},
		"trailing":  append(append([]byte{}, data...), 0x00),
	} {
		_, err := Parse(input)
		c.Assert(err, qt.IsNotNil, qt.Commentf(name))
		c.Assert(errors.Is(err, ErrMalformed), qt.IsTrue, qt.Commentf(name))
		var perr *ParseError
		c.Assert(errors.As(err, &perr), qt.IsTrue, qt.Commentf(name))
	}
}

func TestHashForOID(t *testing.T) {
	c := qt.New(t)
	for _, h := range []crypto.Hash{crypto.SHA1, crypto.SHA224, crypto.SHA256, crypto.SHA384, crypto.SHA512} {
		oid, ok := OIDForHash(h)
		c.Assert(ok, qt.IsTrue)
		got, ok := HashForOID(oid)
		c.Assert(ok, qt.IsTrue)
		c.Assert(got, qt.Equals, h)
	}
	_, ok := HashForOID(OIDContentType)
	c.Assert(ok, qt.IsFalse)
}
