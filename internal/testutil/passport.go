package testutil

import (
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"sort"
	"strings"
)

// Specimen MRZ lines of the ICAO 9303 TD3 example passport.
const (
	SpecimenLine1 = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<"
	SpecimenLine2 = "L898902C36UTO7408122F1204159ZE184226B<<<<<10"
)

// DG1 builds a 93 byte TD3 DG1 file from two 44 character MRZ lines.
func DG1(line1, line2 string) ([]byte, error) {
	if len(line1) != 44 || len(line2) != 44 {
		return nil, fmt.Errorf("MRZ lines must be 44 characters, got %d and %d", len(line1), len(line2))
	}
	out := []byte{0x61, 0x5B, 0x5F, 0x1F, 0x58}
	out = append(out, line1...)
	return append(out, line2...), nil
}

// SpecimenDG1 returns the DG1 of the specimen passport.
func SpecimenDG1() []byte {
	dg1, err := DG1(SpecimenLine1, SpecimenLine2)
	if err != nil {
		panic(err)
	}
	return dg1
}

// MRZLine pads s with '<' to a full MRZ line.
func MRZLine(s string) string {
	if len(s) >= 44 {
		return s[:44]
	}
	return s + strings.Repeat("<", 44-len(s))
}

type dataGroupHash struct {
	Number int
	Hash   []byte
}

type ldsSecurityObject struct {
	Version       int
	HashAlgorithm pkix.AlgorithmIdentifier
	Hashes        []dataGroupHash
}

// LDSSecurityObject encodes the hashes of the given data groups, ordered by
// data group number.
func LDSSecurityObject(h crypto.Hash, groups map[int][]byte) ([]byte, error) {
	oid, err := digestOID(h)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0, len(groups))
	for n := range groups {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	lds := ldsSecurityObject{HashAlgorithm: algorithm(oid)}
	for _, n := range numbers {
		hasher := h.New()
		hasher.Write(groups[n])
		lds.Hashes = append(lds.Hashes, dataGroupHash{Number: n, Hash: hasher.Sum(nil)})
	}
	return asn1.Marshal(lds)
}

// SODOptions controls BuildSOD.
type SODOptions struct {
	DG1 []byte
	// Groups holds additional data groups to hash, by number.
	Groups map[int][]byte
	// Hash is used both for the LDS hashes and the signer info digest,
	// SHA-256 if zero.
	Hash crypto.Hash
	PSS  bool
	// OmitCertificate leaves the document signer certificate out of the
	// envelope.
	OmitCertificate bool
	// EFSOD wraps the envelope in the 0x77 application tag used on the chip.
	EFSOD bool
}

// BuildSOD creates a Security Object signed by ds.
func BuildSOD(ds *Entity, opts SODOptions) ([]byte, error) {
	h := opts.Hash
	if h == 0 {
		h = crypto.SHA256
	}
	groups := map[int][]byte{1: opts.DG1}
	for n, g := range opts.Groups {
		groups[n] = g
	}
	lds, err := LDSSecurityObject(h, groups)
	if err != nil {
		return nil, err
	}
	sign := SignOptions{Hash: h, PSS: opts.PSS}
	if !opts.OmitCertificate {
		sign.Certificates = [][]byte{ds.DER}
	}
	sod, err := SignCMS(OIDLDSSecurityObject, lds, ds, sign)
	if err != nil {
		return nil, err
	}
	if opts.EFSOD {
		return WrapEFSOD(sod)
	}
	return sod, nil
}

// WrapEFSOD adds the EF.SOD application tag around a ContentInfo.
func WrapEFSOD(contentInfo []byte) ([]byte, error) {
	return asn1.Marshal(asn1.RawValue{Class: asn1.ClassApplication, Tag: 23, IsCompound: true, Bytes: contentInfo})
}

type masterList struct {
	Version  int
	CertList []asn1.RawValue `asn1:"set"`
}

// BuildMasterList creates an ICAO Master List holding members, signed by
// the Master List signer of pki. The signer and the UN root are embedded in
// the envelope.
func BuildMasterList(pki *PKI, members [][]byte) ([]byte, error) {
	ml := masterList{}
	for _, m := range members {
		ml.CertList = append(ml.CertList, asn1.RawValue{FullBytes: m})
	}
	content, err := asn1.Marshal(ml)
	if err != nil {
		return nil, err
	}
	return SignCMS(OIDCSCAMasterList, content, pki.MLSigner, SignOptions{
		Hash:         crypto.SHA256,
		Certificates: [][]byte{pki.MLSigner.DER, pki.UNCSCA.DER},
	})
}
