package solidity

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/iden3/go-rapidsnark/types"
)

func testZKProof() *types.ZKProof {
	return &types.ZKProof{
		Proof: &types.ProofData{
			A:        []string{"1", "2", "1"},
			B:        [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
			C:        []string{"7", "8", "1"},
			Protocol: "groth16",
		},
		PubSignals: []string{"10", "11", "12", "13", "14"},
	}
}

func TestFromZKProof(t *testing.T) {
	c := qt.New(t)
	p := &ProofPoints{}
	c.Assert(p.FromZKProof(testZKProof()), qt.IsNil)
	c.Assert(p.A[0].Int64(), qt.Equals, int64(1))
	c.Assert(p.A[1].Int64(), qt.Equals, int64(2))
	// x and y of each G2 pair are swapped
	c.Assert(p.B[0][0].Int64(), qt.Equals, int64(4))
	c.Assert(p.B[0][1].Int64(), qt.Equals, int64(3))
	c.Assert(p.B[1][0].Int64(), qt.Equals, int64(6))
	c.Assert(p.B[1][1].Int64(), qt.Equals, int64(5))
	c.Assert(p.C[1].Int64(), qt.Equals, int64(8))
	c.Assert(p.Inputs, qt.HasLen, 5)

	bad := testZKProof()
	bad.Proof.B[1] = []string{"5"}
	c.Assert((&ProofPoints{}).FromZKProof(bad), qt.IsNotNil)
	bad = testZKProof()
	bad.PubSignals[0] = "0xzz"
	c.Assert((&ProofPoints{}).FromZKProof(bad), qt.IsNotNil)
	c.Assert((&ProofPoints{}).FromZKProof(nil), qt.IsNotNil)
}

func TestABIEncode(t *testing.T) {
	c := qt.New(t)
	data, err := ProofCalldata(testZKProof())
	c.Assert(err, qt.IsNil)
	// 8 static words, the offset and length of the inputs and 5 inputs
	c.Assert(data, qt.HasLen, 15*32)
	word := func(i int) *big.Int { return new(big.Int).SetBytes(data[i*32 : (i+1)*32]) }
	c.Assert(word(0).Int64(), qt.Equals, int64(1))
	c.Assert(word(2).Int64(), qt.Equals, int64(4))
	c.Assert(word(3).Int64(), qt.Equals, int64(3))
	c.Assert(word(8).Int64(), qt.Equals, int64(9*32))
	c.Assert(word(9).Int64(), qt.Equals, int64(5))
	c.Assert(word(14).Int64(), qt.Equals, int64(14))
}

func TestEncodeVoteBitmasks(t *testing.T) {
	c := qt.New(t)
	masks, err := EncodeVoteBitmasks([]int{0, 2}, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(masks, qt.HasLen, 1)
	c.Assert(masks[0].Int64(), qt.Equals, int64(5))

	for _, n := range []int{0, 1, 8, 256, 300} {
		masks, err = EncodeVoteBitmasks(nil, n)
		c.Assert(err, qt.IsNil)
		c.Assert(masks[0].Sign(), qt.Equals, 0)
	}

	_, err = EncodeVoteBitmasks([]int{3}, 3)
	c.Assert(err, qt.IsNotNil)
	_, err = EncodeVoteBitmasks([]int{-1}, 3)
	c.Assert(err, qt.IsNotNil)
	_, err = EncodeVoteBitmasks([]int{256}, 300)
	c.Assert(err, qt.ErrorMatches, "group 0: option 256 does not fit in a uint256")
	masks, err = EncodeVoteBitmasks([]int{255}, 300)
	c.Assert(err, qt.IsNil)
	c.Assert(masks[0].BitLen(), qt.Equals, 256)

	masks, err = EncodeVoteGroups([][]int{{1}, {0, 1, 2, 3}}, []int{2, 4})
	c.Assert(err, qt.IsNil)
	c.Assert(masks[0].Int64(), qt.Equals, int64(2))
	c.Assert(masks[1].Int64(), qt.Equals, int64(15))
	_, err = EncodeVoteGroups([][]int{{1}}, nil)
	c.Assert(err, qt.IsNotNil)
}

func TestEncodeDate(t *testing.T) {
	c := qt.New(t)
	d, err := EncodeDateAsASCII(2026, 2, 23)
	c.Assert(err, qt.IsNil)
	c.Assert(d.Text(16), qt.Equals, "323630323233")

	m, err := EncodeMRZDate("260223")
	c.Assert(err, qt.IsNil)
	c.Assert(m.Cmp(d), qt.Equals, 0)

	_, err = EncodeDateAsASCII(2026, 13, 1)
	c.Assert(err, qt.IsNotNil)
	_, err = EncodeMRZDate("26022")
	c.Assert(err, qt.IsNotNil)
	_, err = EncodeMRZDate("2602A3")
	c.Assert(err, qt.IsNotNil)
}
