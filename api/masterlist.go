package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zkpassport/crypto/certs"
	"github.com/vocdoni/zkpassport/icao"
	"github.com/vocdoni/zkpassport/types"
)

func hashesToHex(hashes []common.Hash) []types.HexBytes {
	out := make([]types.HexBytes, len(hashes))
	for i, h := range hashes {
		out[i] = h.Bytes()
	}
	return out
}

func (a *API) masterListResponse(ml *icao.MasterList, tree *icao.MerkleTree) (*MasterListResponse, error) {
	report, err := ml.Authenticate(a.now())
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	return &MasterListResponse{
		Report: report,
		Valid:  report.Valid(),
		Root:   root.Bytes(),
		Signer: ml.Signer.Subject.String(),
	}, nil
}

// masterListInfo returns the report of the Master List loaded at start up
// GET /masterlist
func (a *API) masterListInfo(w http.ResponseWriter, r *http.Request) {
	if a.masterList == nil {
		ErrMasterListNotLoaded.Write(w)
		return
	}
	res, err := a.masterListResponse(a.masterList, a.cscaTree)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, res)
}

// authenticateMasterList authenticates the posted Master List and returns
// the Merkle root of its members
// POST /masterlist
func (a *API) authenticateMasterList(w http.ResponseWriter, r *http.Request) {
	req := &MasterListRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	ml, err := icao.ParseMasterList(req.MasterList)
	if err != nil {
		ErrMalformedMasterList.WithErr(err).Write(w)
		return
	}
	members, err := ml.Members()
	if err != nil {
		ErrMalformedMasterList.WithErr(err).Write(w)
		return
	}
	res, err := a.masterListResponse(ml, icao.BuildMerkleTree(members))
	if err != nil {
		ErrMalformedMasterList.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, res)
}

// masterListProof returns the inclusion proof of a CSCA in the tree of the
// given certificates or, without them, of the loaded Master List
// POST /masterlist/proof
func (a *API) masterListProof(w http.ResponseWriter, r *http.Request) {
	req := &MerkleProofRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	cert, err := certs.Parse(req.Certificate)
	if err != nil {
		ErrMalformedCertificate.WithErr(err).Write(w)
		return
	}
	tree := a.cscaTree
	if len(req.Certificates) > 0 {
		cscas := make([]*certs.Certificate, 0, len(req.Certificates))
		for i, data := range req.Certificates {
			c, err := certs.Parse(data)
			if err != nil {
				ErrMalformedCertificate.Withf("certificate %d: %v", i, err).Write(w)
				return
			}
			cscas = append(cscas, c)
		}
		tree = icao.BuildMerkleTree(cscas)
	}
	if tree == nil {
		ErrMasterListNotLoaded.With("send the certificates of the tree").Write(w)
		return
	}
	leaf := icao.Leaf(cert.SPKI())
	root := tree.Root()
	proof := tree.Proof(leaf)
	member := tree.Contains(leaf)
	httpWriteJSON(w, &MerkleProofResponse{
		Root:   root.Bytes(),
		Leaf:   leaf.Bytes(),
		Proof:  hashesToHex(proof),
		Member: member,
		Valid:  member && icao.VerifyProof(root, leaf, proof),
	})
}
