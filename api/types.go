package api

import (
	rapidsnark "github.com/iden3/go-rapidsnark/types"
	"github.com/vocdoni/zkpassport/icao"
	"github.com/vocdoni/zkpassport/passport/dg1"
	"github.com/vocdoni/zkpassport/passport/sod"
	"github.com/vocdoni/zkpassport/solidity"
	"github.com/vocdoni/zkpassport/types"
)

// DG1Request carries a raw DG1 read from the chip.
type DG1Request struct {
	DG1 types.HexBytes `json:"dg1"`
}

// DG1Response is the parsed MRZ of a DG1.
type DG1Response struct {
	MRZ              *dg1.MRZ `json:"mrz"`
	CheckDigitsValid bool     `json:"checkDigitsValid"`
}

// PassportRequest carries the data read from a passport chip. The document
// signer certificate is optional, the one embedded in the SOD is used when
// missing.
type PassportRequest struct {
	DG1           types.HexBytes `json:"dg1"`
	SOD           types.HexBytes `json:"sod"`
	DSCertificate types.HexBytes `json:"dsCertificate,omitempty"`
}

// VerifyRequest asks for the passive authentication of a passport against
// a CSCA certificate, PEM or DER encoded.
type VerifyRequest struct {
	PassportRequest
	CSCACertificate types.HexBytes `json:"cscaCertificate"`
}

// VerifyResponse is the outcome of every passive authentication check.
// CSCAInMasterList and the Merkle fields are only set when the service has
// a Master List loaded.
type VerifyResponse struct {
	sod.Report
	Valid            bool             `json:"valid"`
	MRZ              *dg1.MRZ         `json:"mrz,omitempty"`
	CSCAInMasterList *bool            `json:"cscaInMasterList,omitempty"`
	MasterListRoot   types.HexBytes   `json:"masterListRoot,omitempty"`
	CSCAProof        []types.HexBytes `json:"cscaProof,omitempty"`
}

// CertificateRequest carries a PEM or DER certificate.
type CertificateRequest struct {
	Certificate types.HexBytes `json:"certificate"`
}

// CertificateKeyResponse holds the Poseidon certificate key of an RSA
// certificate and the root of the SMT holding only that key.
type CertificateKeyResponse struct {
	CertificateKey   *types.BigInt `json:"certificateKey"`
	CertificatesRoot *types.BigInt `json:"certificatesRoot"`
}

// MasterListRequest carries a DER encoded ICAO Master List.
type MasterListRequest struct {
	MasterList types.HexBytes `json:"masterList"`
}

// MasterListResponse is the authentication report of a Master List and the
// Merkle root of its CSCA public keys.
type MasterListResponse struct {
	icao.Report
	Valid  bool           `json:"valid"`
	Root   types.HexBytes `json:"root"`
	Signer string         `json:"signer"`
}

// MerkleProofRequest asks for the inclusion proof of a CSCA. Without
// Certificates the loaded Master List members are used.
type MerkleProofRequest struct {
	Certificate  types.HexBytes   `json:"certificate"`
	Certificates []types.HexBytes `json:"certificates,omitempty"`
}

// MerkleProofResponse is the Keccak256 inclusion proof of a CSCA. Member
// tells an empty proof of a single leaf tree from a non member.
type MerkleProofResponse struct {
	Root   types.HexBytes   `json:"root"`
	Leaf   types.HexBytes   `json:"leaf"`
	Proof  []types.HexBytes `json:"proof"`
	Member bool             `json:"member"`
	Valid  bool             `json:"valid"`
}

// InputsRequest asks for the inputs of a registration circuit. SkIdentity
// defaults to a key derived from the SOD, only meant for tests.
type InputsRequest struct {
	PassportRequest
	SkIdentity *types.BigInt `json:"skIdentity,omitempty"`
}

// ProofResponse is a registration proof, its public signals and the
// calldata of the on-chain verifier.
type ProofResponse struct {
	ID            string                `json:"id"`
	Variant       string                `json:"variant"`
	Proof         *rapidsnark.ProofData `json:"proof"`
	PublicSignals []string              `json:"publicSignals"`
	Valid         bool                  `json:"valid"`
	Points        *solidity.ProofPoints `json:"points"`
	Calldata      types.HexBytes        `json:"calldata"`
}

// VoteRequest is the selection of a single question group.
type VoteRequest struct {
	Selected   []int `json:"selected"`
	NumOptions int   `json:"numOptions"`
}

// VoteResponse holds one bitmask per question group.
type VoteResponse struct {
	Bitmasks []*types.BigInt `json:"bitmasks"`
}

// DateRequest holds either an MRZ date (YYMMDD) or a calendar date.
type DateRequest struct {
	MRZ   string `json:"mrz,omitempty"`
	Year  int    `json:"year,omitempty"`
	Month int    `json:"month,omitempty"`
	Day   int    `json:"day,omitempty"`
}

// DateResponse is the date packed as the ASCII bytes of YYMMDD.
type DateResponse struct {
	Value *types.BigInt `json:"value"`
}
