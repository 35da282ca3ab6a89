// Package dg1 parses the Data Group 1 of a TD3 passport, which holds the
// two line machine readable zone, and builds tampered copies of it for
// negative tests.
package dg1

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// Size is the length of a TD3 DG1: a five byte header and the MRZ.
	Size = 93
	// LineLength is the length of each of the two TD3 MRZ lines.
	LineLength = 44
	// HeaderLength is the number of bytes before the MRZ.
	HeaderLength = 5

	line1Offset = HeaderLength
	line2Offset = HeaderLength + LineLength
)

// Header is the DG1 application tag, its length, and the MRZ tag 5F1F
// with its length.
var Header = []byte{0x61, 0x5B, 0x5F, 0x1F, 0x58}

var (
	// ErrInvalidLength is returned for a DG1 that is not a TD3 one.
	ErrInvalidLength = errors.New("dg1: invalid length")
	// ErrMalformed is returned when the DG1 header is not the expected one.
	ErrMalformed = errors.New("dg1: malformed header")
	// ErrUnknownField is returned by TamperField for an unknown field name.
	ErrUnknownField = errors.New("dg1: unknown field")
)

// MRZ holds the fields of a TD3 machine readable zone. Text fields have the
// filler '<' removed; dates are kept as YYMMDD.
type MRZ struct {
	DocumentType   string `json:"documentType"`
	IssuingState   string `json:"issuingState"`
	Surname        string `json:"surname"`
	GivenNames     string `json:"givenNames"`
	DocumentNumber string `json:"documentNumber"`
	Nationality    string `json:"nationality"`
	DateOfBirth    string `json:"dateOfBirth"`
	Sex            string `json:"sex"`
	DateOfExpiry   string `json:"dateOfExpiry"`

	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Parse decodes a 93 byte TD3 DG1.
func Parse(dg1 []byte) (*MRZ, error) {
	if len(dg1) != Size {
		return nil, fmt.Errorf("%w: %d bytes, expected %d", ErrInvalidLength, len(dg1), Size)
	}
	if !bytes.Equal(dg1[:HeaderLength], Header) {
		return nil, fmt.Errorf("%w: %x", ErrMalformed, dg1[:HeaderLength])
	}
	l1 := string(dg1[line1Offset:line2Offset])
	l2 := string(dg1[line2Offset:])
	surname, given := splitName(l1[5:LineLength])
	return &MRZ{
		DocumentType:   l1[0:1],
		IssuingState:   trimFiller(l1[2:5]),
		Surname:        surname,
		GivenNames:     given,
		DocumentNumber: trimFiller(l2[0:9]),
		Nationality:    trimFiller(l2[10:13]),
		DateOfBirth:    l2[13:19],
		Sex:            l2[20:21],
		DateOfExpiry:   l2[21:27],
		Line1:          l1,
		Line2:          l2,
	}, nil
}

// splitName splits the name field on the first "<<" into the surname and
// the given names, mapping the '<' separators to spaces.
func splitName(field string) (string, string) {
	surname, given, _ := strings.Cut(field, "<<")
	return fillerToSpace(surname), fillerToSpace(given)
}

func fillerToSpace(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "<", " "))
}

func trimFiller(s string) string {
	return strings.TrimRight(s, "<")
}

// CheckDigit computes the ICAO 9303 check digit of an MRZ field: weights
// 7, 3, 1 over digits, letters valued from 10 and the filler as zero.
func CheckDigit(field string) byte {
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(field); i++ {
		var v int
		switch ch := field[i]; {
		case ch >= '0' && ch <= '9':
			v = int(ch - '0')
		case ch >= 'A' && ch <= 'Z':
			v = int(ch-'A') + 10
		}
		sum += v * weights[i%3]
	}
	return byte('0' + sum%10)
}

// CheckDigitsValid reports whether the document number, birth date, expiry
// date and composite check digits of the second line are correct.
func (m *MRZ) CheckDigitsValid() bool {
	l2 := m.Line2
	if len(l2) != LineLength {
		return false
	}
	composite := l2[0:10] + l2[13:20] + l2[21:43]
	return CheckDigit(l2[0:9]) == l2[9] &&
		CheckDigit(l2[13:19]) == l2[19] &&
		CheckDigit(l2[21:27]) == l2[27] &&
		CheckDigit(composite) == l2[43]
}

// field locates a named MRZ field inside the DG1.
type field struct {
	offset  int
	width   int
	numeric bool
}

var fields = map[string]field{
	"documentType":   {line1Offset, 1, false},
	"issuingState":   {line1Offset + 2, 3, false},
	"name":           {line1Offset + 5, 39, false},
	"documentNumber": {line2Offset, 9, false},
	"nationality":    {line2Offset + 10, 3, false},
	"dateOfBirth":    {line2Offset + 13, 6, true},
	"sex":            {line2Offset + 20, 1, false},
	"dateOfExpiry":   {line2Offset + 21, 6, true},
}

// Fields returns the names accepted by TamperField.
func Fields() []string {
	return []string{
		"documentType", "issuingState", "name", "documentNumber",
		"nationality", "dateOfBirth", "sex", "dateOfExpiry",
	}
}

// TamperByte returns a copy of dg1 with the byte at offset replaced.
func TamperByte(dg1 []byte, offset int, value byte) ([]byte, error) {
	if offset < 0 || offset >= len(dg1) {
		return nil, fmt.Errorf("dg1: offset %d out of range [0, %d)", offset, len(dg1))
	}
	out := bytes.Clone(dg1)
	out[offset] = value
	return out, nil
}

// TamperField returns a copy of dg1 with the named field rewritten. Text
// fields are padded with '<' and numeric fields with '0' to the field width.
func TamperField(dg1 []byte, name, value string) ([]byte, error) {
	if len(dg1) != Size {
		return nil, fmt.Errorf("%w: %d bytes, expected %d", ErrInvalidLength, len(dg1), Size)
	}
	f, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if len(value) > f.width {
		return nil, fmt.Errorf("dg1: value for %s longer than %d characters", name, f.width)
	}
	pad := "<"
	if f.numeric {
		pad = "0"
	}
	out := bytes.Clone(dg1)
	copy(out[f.offset:f.offset+f.width], value+strings.Repeat(pad, f.width-len(value)))
	return out, nil
}
