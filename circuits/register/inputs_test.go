package register

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/crypto/certkey"
	"github.com/vocdoni/zkpassport/crypto/certs"
	"github.com/vocdoni/zkpassport/internal/testutil"
	"github.com/vocdoni/zkpassport/passport/sod"
)

func passportFixture(c *qt.C) ([]byte, *sod.SOD, *testutil.PKI) {
	pki, err := testutil.SharedPKI()
	c.Assert(err, qt.IsNil)
	dg1 := testutil.SpecimenDG1()
	data, err := testutil.BuildSOD(pki.DS, testutil.SODOptions{
		DG1:    dg1,
		Groups: map[int][]byte{2: []byte("face image")},
	})
	c.Assert(err, qt.IsNil)
	s, err := sod.ParseSOD(data)
	c.Assert(err, qt.IsNil)
	return dg1, s, pki
}

func stringsToBig(c *qt.C, in []string) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, s := range in {
		v, ok := new(big.Int).SetString(s, 10)
		c.Assert(ok, qt.IsTrue)
		out[i] = v
	}
	return out
}

func TestTestIdentityKey(t *testing.T) {
	c := qt.New(t)
	content := []byte("encapsulated content")
	k := TestIdentityKey(content)
	c.Assert(k.Cmp(TestIdentityKey(content)), qt.Equals, 0)
	c.Assert(k.Cmp(circuits.FieldModulus()) < 0, qt.IsTrue)

	// the key is the digest without its last byte
	sum := sha256.Sum256(content)
	c.Assert(k.Cmp(new(big.Int).SetBytes(sum[:31])), qt.Equals, 0)
}

func TestBuildLight(t *testing.T) {
	c := qt.New(t)
	dg1, s, _ := passportFixture(c)

	in, err := BuildLight(dg1, s, Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(in.DG1, qt.HasLen, circuits.DG1Bits)
	c.Assert(in.DG1[:len(dg1)*8], qt.DeepEquals, circuits.BytesToBits(dg1))
	for _, b := range in.DG1[len(dg1)*8:] {
		c.Assert(b, qt.Equals, 0)
	}
	c.Assert(in.SkIdentity, qt.Equals, TestIdentityKey(s.EncapsulatedContent()).String())

	in, err = BuildLight(dg1, nil, Options{SkIdentity: big.NewInt(42)})
	c.Assert(err, qt.IsNil)
	c.Assert(in.SkIdentity, qt.Equals, "42")

	_, err = BuildLight(dg1, nil, Options{})
	c.Assert(err, qt.IsNotNil)
	_, err = BuildLight(make([]byte, 129), s, Options{})
	c.Assert(errors.Is(err, circuits.ErrInputTooLong), qt.IsTrue)
}

func TestBuildFull(t *testing.T) {
	c := qt.New(t)
	dg1, s, pki := passportFixture(c)
	pub := pki.DS.Key.Public().(*rsa.PublicKey)

	in, err := BuildFull(dg1, s, nil, Options{})
	c.Assert(err, qt.IsNil)

	paddedDG1, err := circuits.PadSHA256Blocks(dg1, circuits.DG1Blocks)
	c.Assert(err, qt.IsNil)
	c.Assert(in.DG1, qt.DeepEquals, circuits.BytesToBits(paddedDG1))
	c.Assert(in.EncapsulatedContent, qt.HasLen, circuits.EncapsulatedContentBits)
	c.Assert(in.SignedAttributes, qt.HasLen, circuits.SignedAttributesBits)
	// the signed attributes are fed with the SET tag
	c.Assert(in.SignedAttributes[:8], qt.DeepEquals, []int{0, 0, 1, 1, 0, 0, 0, 1})

	c.Assert(in.Pubkey, qt.HasLen, circuits.RSALimbs)
	c.Assert(circuits.ReconstructFromChunks(stringsToBig(c, in.Pubkey), circuits.RSALimbBits).Cmp(pub.N), qt.Equals, 0)
	sig := new(big.Int).SetBytes(s.Envelope.Signer.Signature)
	c.Assert(circuits.ReconstructFromChunks(stringsToBig(c, in.Signature), circuits.RSALimbBits).Cmp(sig), qt.Equals, 0)

	_, root, err := certkey.Compute(pub.N)
	c.Assert(err, qt.IsNil)
	c.Assert(in.SlaveMerkleRoot, qt.Equals, root.String())
	c.Assert(in.SlaveMerkleInclusionBranches, qt.HasLen, circuits.SlaveMerkleLevels)
	for _, b := range in.SlaveMerkleInclusionBranches {
		c.Assert(b, qt.Equals, "0")
	}
	c.Assert(in.SkIdentity, qt.Equals, TestIdentityKey(s.EncapsulatedContent()).String())

	// the JSON field names and array lengths the circuit expects
	data, err := in.JSON()
	c.Assert(err, qt.IsNil)
	var fields map[string]json.RawMessage
	c.Assert(json.Unmarshal(data, &fields), qt.IsNil)
	for name, size := range map[string]int{
		"dg1":                          1024,
		"encapsulatedContent":          1536,
		"signedAttributes":             1024,
		"pubkey":                       32,
		"signature":                    32,
		"slaveMerkleInclusionBranches": 80,
	} {
		var arr []any
		c.Assert(json.Unmarshal(fields[name], &arr), qt.IsNil, qt.Commentf("field %s", name))
		c.Assert(arr, qt.HasLen, size, qt.Commentf("field %s", name))
	}
	c.Assert(fields, qt.HasLen, 8)
}

func TestBuildFullOptions(t *testing.T) {
	c := qt.New(t)
	dg1, s, pki := passportFixture(c)

	branches := []*big.Int{big.NewInt(1), big.NewInt(2)}
	in, err := BuildFull(dg1, s, certs.New(pki.DS.Cert), Options{
		SkIdentity:        big.NewInt(7),
		SlaveMerkleRoot:   big.NewInt(99),
		InclusionBranches: branches,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(in.SkIdentity, qt.Equals, "7")
	c.Assert(in.SlaveMerkleRoot, qt.Equals, "99")
	c.Assert(in.SlaveMerkleInclusionBranches[:3], qt.DeepEquals, []string{"1", "2", "0"})

	_, err = BuildFull(dg1, s, nil, Options{InclusionBranches: make([]*big.Int, 81)})
	c.Assert(errors.Is(err, circuits.ErrInputTooLong), qt.IsTrue)
}

func TestBuildFullErrors(t *testing.T) {
	c := qt.New(t)
	dg1, s, pki := passportFixture(c)

	// 120 bytes no longer fit in two blocks once padded
	_, err := BuildFull(make([]byte, 120), s, nil, Options{})
	c.Assert(errors.Is(err, circuits.ErrInputTooLong), qt.IsTrue)

	_, err = BuildFull(dg1, s, certs.New(pki.DSECDSA.Cert), Options{})
	c.Assert(errors.Is(err, ErrUnsupportedKey), qt.IsTrue)

	_, err = BuildFull(dg1, nil, nil, Options{})
	c.Assert(err, qt.IsNotNil)

	// an encapsulated content with many data groups needs a fourth block
	groups := map[int][]byte{}
	for i := 2; i <= 8; i++ {
		groups[i] = []byte{byte(i)}
	}
	data, err := testutil.BuildSOD(pki.DS, testutil.SODOptions{DG1: dg1, Groups: groups})
	c.Assert(err, qt.IsNil)
	large, err := sod.ParseSOD(data)
	c.Assert(err, qt.IsNil)
	c.Assert(len(large.EncapsulatedContent()) > 183, qt.IsTrue)
	_, err = BuildFull(dg1, large, nil, Options{})
	c.Assert(errors.Is(err, circuits.ErrInputTooLong), qt.IsTrue)
}
