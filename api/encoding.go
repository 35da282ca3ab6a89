package api

import (
	"math/big"
	"net/http"

	"github.com/vocdoni/zkpassport/solidity"
	"github.com/vocdoni/zkpassport/types"
)

// encodeVote returns the bitmask of a vote
// POST /encode/vote
func (a *API) encodeVote(w http.ResponseWriter, r *http.Request) {
	req := &VoteRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	masks, err := solidity.EncodeVoteBitmasks(req.Selected, req.NumOptions)
	if err != nil {
		ErrInvalidVoteSelection.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteResponse{Bitmasks: types.BigInts(masks)})
}

// encodeDate packs a date as the ASCII bytes of YYMMDD
// POST /encode/date
func (a *API) encodeDate(w http.ResponseWriter, r *http.Request) {
	req := &DateRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	var (
		v   *big.Int
		err error
	)
	if req.MRZ != "" {
		v, err = solidity.EncodeMRZDate(req.MRZ)
	} else {
		v, err = solidity.EncodeDateAsASCII(req.Year, req.Month, req.Day)
	}
	if err != nil {
		ErrInvalidDate.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &DateResponse{Value: new(types.BigInt).SetBigInt(v)})
}
