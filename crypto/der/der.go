// Package der implements the minimal DER (ASN.1) tag/length reader used by
// the CMS, certificate and Master List parsers. It only understands
// definite lengths, which is all DER allows.
package der

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ErrTruncated is returned when a header or its declared content runs past
// the end of the buffer.
var ErrTruncated = errors.New("der: truncated buffer")

const (
	TagSequence       = 0x30
	TagSet            = 0x31
	TagOctetString    = 0x04
	TagContextZero    = 0xA0 // [0] constructed, as used by CMS signedAttrs
	longFormLengthBit = 0x80
)

// Header is the decoded identifier and length octets of a TLV.
type Header struct {
	Tag          byte
	Length       int
	HeaderLength int
}

// TotalLength returns the size of the whole TLV element.
func (h Header) TotalLength() int {
	return h.HeaderLength + h.Length
}

// ReadTag decodes the header of the element starting at offset. Lengths
// below 0x80 are short form; otherwise the low seven bits tell how many
// big-endian length octets follow. Only single-byte tags are supported.
// It does not check that the content fits in the buffer.
func ReadTag(buf []byte, offset int) (Header, error) {
	if offset < 0 || offset+2 > len(buf) {
		return Header{}, ErrTruncated
	}
	h := Header{Tag: buf[offset], HeaderLength: 2}
	first := buf[offset+1]
	if first&longFormLengthBit == 0 {
		h.Length = int(first)
		return h, nil
	}
	n := int(first &^ longFormLengthBit)
	if n == 0 || n > 4 {
		return Header{}, fmt.Errorf("der: unsupported length of %d octets at offset %d", n, offset)
	}
	if offset+2+n > len(buf) {
		return Header{}, ErrTruncated
	}
	length := 0
	for i := 0; i < n; i++ {
		length = length<<8 | int(buf[offset+2+i])
	}
	h.Length = length
	h.HeaderLength = 2 + n
	return h, nil
}

// Element returns the full TLV starting at offset, checking that the
// declared content is present.
func Element(buf []byte, offset int) ([]byte, Header, error) {
	h, err := ReadTag(buf, offset)
	if err != nil {
		return nil, Header{}, err
	}
	end := offset + h.TotalLength()
	if h.Length < 0 || end > len(buf) {
		return nil, Header{}, ErrTruncated
	}
	return buf[offset:end], h, nil
}

// StripHeader returns the content octets of the single TLV element in buf.
func StripHeader(buf []byte) ([]byte, error) {
	el, h, err := Element(buf, 0)
	if err != nil {
		return nil, err
	}
	return el[h.HeaderLength:], nil
}

// Retag returns a copy of the element with its identifier octet replaced.
func Retag(buf []byte, tag byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	if len(out) > 0 {
		out[0] = tag
	}
	return out
}

// Elements splits the content octets of a constructed value into its
// top-level TLV elements.
func Elements(content []byte) ([][]byte, error) {
	var out [][]byte
	s := cryptobyte.String(content)
	for !s.Empty() {
		var el cryptobyte.String
		var tag cbasn1.Tag
		if !s.ReadAnyASN1Element(&el, &tag) {
			return nil, ErrTruncated
		}
		out = append(out, el)
	}
	return out, nil
}

// CountElements returns the number of top-level TLV elements found in
// content.
func CountElements(content []byte) (int, error) {
	els, err := Elements(content)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}
