package der

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestReadTagShortForm(t *testing.T) {
	c := qt.New(t)
	h, err := ReadTag([]byte{0x30, 0x03, 0x02, 0x01, 0x00}, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(h, qt.DeepEquals, Header{Tag: 0x30, Length: 3, HeaderLength: 2})
	c.Assert(h.TotalLength(), qt.Equals, 5)
}

func TestReadTagLongForm(t *testing.T) {
	c := qt.New(t)
	// one length octet
	h, err := ReadTag([]byte{0x04, 0x81, 0xC8}, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(h, qt.DeepEquals, Header{Tag: 0x04, Length: 200, HeaderLength: 3})
	// two length octets, big-endian, at a non zero offset
	h, err = ReadTag([]byte{0xff, 0x30, 0x82, 0x01, 0x0A}, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(h, qt.DeepEquals, Header{Tag: 0x30, Length: 266, HeaderLength: 4})
}

func TestReadTagTruncated(t *testing.T) {
	c := qt.New(t)
	_, err := ReadTag([]byte{0x30}, 0)
	c.Assert(err, qt.ErrorIs, ErrTruncated)
	_, err = ReadTag([]byte{0x30, 0x82, 0x01}, 0)
	c.Assert(err, qt.ErrorIs, ErrTruncated)
	_, err = ReadTag([]byte{0x30, 0x00}, 5)
	c.Assert(err, qt.ErrorIs, ErrTruncated)
	// the header is fine but the content is missing
	_, _, err = Element([]byte{0x30, 0x05, 0x01}, 0)
	c.Assert(err, qt.ErrorIs, ErrTruncated)
}

func TestStripHeaderAndRetag(t *testing.T) {
	c := qt.New(t)
	el := []byte{0xA0, 0x03, 0x02, 0x01, 0x07}
	content, err := StripHeader(el)
	c.Assert(err, qt.IsNil)
	c.Assert(content, qt.DeepEquals, []byte{0x02, 0x01, 0x07})

	set := Retag(el, TagSet)
	c.Assert(set[0], qt.Equals, byte(TagSet))
	c.Assert(el[0], qt.Equals, byte(TagContextZero))
	c.Assert(bytes.Equal(set[1:], el[1:]), qt.IsTrue)
}

func TestCountElements(t *testing.T) {
	c := qt.New(t)
	content := []byte{
		0x02, 0x01, 0x01,
		0x04, 0x02, 0xAA, 0xBB,
		0x30, 0x00,
	}
	n, err := CountElements(content)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 3)

	n, err = CountElements(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)

	_, err = CountElements([]byte{0x02, 0x05, 0x01})
	c.Assert(err, qt.ErrorIs, ErrTruncated)
}
