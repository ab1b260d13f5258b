package charset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// interleave ASCII text into wide code units for detector inputs
func wide(s string, width, index int) []byte {
	out := make([]byte, 0, len(s)*width)
	for i := 0; i < len(s); i++ {
		unit := make([]byte, width)
		unit[index] = s[i]
		out = append(out, unit...)
	}
	return out
}

func TestDetectBOM(t *testing.T) {
	tests := []struct {
		name     string
		block    []byte
		expected *Encoding
	}{
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, "hello"...), UTF8},
		{"utf16le bom", append([]byte{0xFF, 0xFE}, wide("hi", 2, 0)...), UTF16LE},
		{"utf16be bom", append([]byte{0xFE, 0xFF}, wide("hi", 2, 1)...), UTF16BE},
		{"utf32le bom", append([]byte{0xFF, 0xFE, 0x00, 0x00}, wide("hi", 4, 0)...), UTF32LE},
		{"utf32be bom", append([]byte{0x00, 0x00, 0xFE, 0xFF}, wide("hi", 4, 3)...), UTF32BE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Detect(tt.block))
		})
	}
}

func TestDetectWithoutBOM(t *testing.T) {
	tests := []struct {
		name     string
		block    []byte
		expected *Encoding
	}{
		{"empty", nil, UTF8},
		{"plain ascii", []byte("line one\nline two\n"), UTF8},
		{"valid utf8", []byte("привет\nмир\n"), UTF8},
		{"latin1", []byte{'c', 'a', 'f', 0xE9, '\n'}, Latin1},
		{"utf16le text", wide("log line one\nlog line two\n", 2, 0), UTF16LE},
		{"utf16be text", wide("log line one\nlog line two\n", 2, 1), UTF16BE},
		{"utf32le text", wide("log line one\n", 4, 0), UTF32LE},
		{"utf32be text", wide("log line one\n", 4, 3), UTF32BE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Detect(tt.block))
		})
	}
}

func TestParams(t *testing.T) {
	require.Equal(t, Params{Width: 1, Index: 0}, UTF8.Params())
	require.Equal(t, Params{Width: 2, Index: 0}, UTF16LE.Params())
	require.Equal(t, Params{Width: 2, Index: 1}, UTF16BE.Params())
	require.Equal(t, Params{Width: 4, Index: 0}, UTF32LE.Params())
	require.Equal(t, Params{Width: 4, Index: 3}, UTF32BE.Params())

	require.Equal(t, 1, UTF16BE.Params().BeforeLF())
	require.Equal(t, 0, UTF16BE.Params().AfterLF())
	require.Equal(t, 0, UTF32LE.Params().BeforeLF())
	require.Equal(t, 3, UTF32LE.Params().AfterLF())
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"UTF-8", "utf-16le", "UTF-16BE", "utf-32le", "UTF-32BE", "ISO-8859-1"} {
		e, err := Lookup(name)
		require.NoError(t, err, name)
		require.True(t, strings.EqualFold(name, e.Name()))
	}

	// resolved through the IANA registry with probed line-feed geometry
	e, err := Lookup("windows-1251")
	require.NoError(t, err)
	require.Equal(t, Params{Width: 1, Index: 0}, e.Params())

	_, err = Lookup("no-such-encoding")
	require.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestDecoder(t *testing.T) {
	raw := wide("abc", 2, 0)
	decoded, err := UTF16LE.NewDecoder().Bytes(raw)
	require.NoError(t, err)
	require.Equal(t, "abc", string(decoded))
}
