package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// DG1Endpoint parses the MRZ of a DG1
	DG1Endpoint = "/passport/dg1"
	// VerifyEndpoint runs passive authentication over a DG1 and its SOD
	VerifyEndpoint = "/passport/verify"
	// CertificateKeyEndpoint computes the certificate key and SMT root of a
	// document signer certificate
	CertificateKeyEndpoint = "/certificates/key"
	// MasterListEndpoint returns the loaded Master List (GET) or
	// authenticates the one posted (POST)
	MasterListEndpoint = "/masterlist"
	// MasterListProofEndpoint returns the Merkle inclusion proof of a CSCA
	MasterListProofEndpoint = "/masterlist/proof"
	// InputsEndpoint builds the inputs of a registration circuit
	VariantURLParam = "variant"
	InputsEndpoint  = "/circuits/{" + VariantURLParam + "}/inputs"
	// ProofsEndpoint proves a registration circuit
	ProofsEndpoint = "/proofs/{" + VariantURLParam + "}"
	// VoteEncodingEndpoint and DateEncodingEndpoint encode values the way
	// the contracts expect them
	VoteEncodingEndpoint = "/encode/vote"
	DateEncodingEndpoint = "/encode/date"
)
