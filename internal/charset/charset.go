// Package charset detects text encodings and carries the line-feed
// geometry the line parser needs to split files in multi-byte encodings.
package charset

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/xerrors"
)

// ErrUnknownEncoding is returned by Lookup for names the IANA registry
// does not resolve.
var ErrUnknownEncoding = xerrors.New("unknown encoding")

// Params describes how a line feed is laid out in the encoded stream:
// Width is the code-unit size in bytes, Index is the position of the
// 0x0A byte inside the unit (0 for little-endian orders).
type Params struct {
	Width int
	Index int
}

// BeforeLF reports how many bytes of the code unit precede the 0x0A byte.
func (p Params) BeforeLF() int { return p.Index }

// AfterLF reports how many bytes of the code unit follow the 0x0A byte.
func (p Params) AfterLF() int { return p.Width - p.Index - 1 }

// Encoding is a detected or forced text encoding together with its
// line-feed parameters. Values are shared and immutable.
type Encoding struct {
	name   string
	params Params
	impl   encoding.Encoding
}

func (e *Encoding) Name() string { return e.name }

func (e *Encoding) Params() Params { return e.params }

// NewDecoder returns a decoder translating file bytes to UTF-8.
func (e *Encoding) NewDecoder() *encoding.Decoder { return e.impl.NewDecoder() }

func (e *Encoding) String() string { return e.name }

var (
	UTF8    = &Encoding{name: "UTF-8", params: Params{Width: 1}, impl: unicode.UTF8}
	UTF16LE = &Encoding{name: "UTF-16LE", params: Params{Width: 2, Index: 0}, impl: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)}
	UTF16BE = &Encoding{name: "UTF-16BE", params: Params{Width: 2, Index: 1}, impl: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)}
	UTF32LE = &Encoding{name: "UTF-32LE", params: Params{Width: 4, Index: 0}, impl: utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)}
	UTF32BE = &Encoding{name: "UTF-32BE", params: Params{Width: 4, Index: 3}, impl: utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)}
	Latin1  = &Encoding{name: "ISO-8859-1", params: Params{Width: 1}, impl: charmap.ISO8859_1}
)

var known = []*Encoding{UTF8, UTF16LE, UTF16BE, UTF32LE, UTF32BE, Latin1}

// Default is the locale fallback used when detection has nothing to work
// with (empty and unreadable files).
func Default() *Encoding { return UTF8 }

// Lookup resolves a user-supplied encoding name. Canonical unicode names
// hit the built-in registry; anything else goes through the IANA index,
// with the line-feed geometry derived from the encoder itself.
func Lookup(name string) (*Encoding, error) {
	for _, e := range known {
		if strings.EqualFold(e.name, name) {
			return e, nil
		}
	}

	impl, err := ianaindex.IANA.Encoding(name)
	if err != nil || impl == nil {
		return nil, xerrors.Errorf("%q: %w", name, ErrUnknownEncoding)
	}
	canonical, err := ianaindex.IANA.Name(impl)
	if err != nil || canonical == "" {
		canonical = name
	}
	for _, e := range known {
		if strings.EqualFold(e.name, canonical) {
			return e, nil
		}
	}
	return &Encoding{name: canonical, params: probeParams(impl), impl: impl}, nil
}

// probeParams derives the line-feed geometry of an arbitrary encoding by
// encoding a probe "\n" and locating the 0x0A byte in the produced unit.
func probeParams(impl encoding.Encoding) Params {
	probe, err := impl.NewEncoder().Bytes([]byte("\n"))
	if err != nil || len(probe) == 0 {
		return Params{Width: 1}
	}
	probe = trimBOM(probe)
	i := bytes.IndexByte(probe, '\n')
	if len(probe) == 0 || i < 0 {
		return Params{Width: 1}
	}
	return Params{Width: len(probe), Index: i}
}

// byte-order marks, longest first so UTF-32LE is not mistaken for UTF-16LE
var boms = [][]byte{
	{0xFF, 0xFE, 0x00, 0x00},
	{0x00, 0x00, 0xFE, 0xFF},
	{0xEF, 0xBB, 0xBF},
	{0xFF, 0xFE},
	{0xFE, 0xFF},
}

func trimBOM(b []byte) []byte {
	for _, bom := range boms {
		if bytes.HasPrefix(b, bom) && len(b) > len(bom) {
			return b[len(bom):]
		}
	}
	return b
}
