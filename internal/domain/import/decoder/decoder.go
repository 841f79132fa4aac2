// Package decoder recovers the text encoding of uploaded bank exports.
// Israeli banks still ship Windows-1255 and ISO-8859-8 files next to UTF-8 ones.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding names a supported text encoding.
type Encoding string

const (
	UTF8        Encoding = "utf-8"
	Windows1255 Encoding = "windows-1255"
	ISO88598    Encoding = "iso-8859-8"
)

// SampleSize is how much of the input is checked for each candidate.
const SampleSize = 64 * 1024

var ErrEncodingUndetected = errors.New("could not detect file encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Result is decoded text plus the encoding that produced it.
type Result struct {
	Text     string
	Encoding Encoding
}

type candidate struct {
	name    Encoding
	charmap encoding.Encoding
}

// candidates in the order they are tried. UTF-8 has no charmap.
var candidates = []candidate{
	{name: UTF8},
	{name: Windows1255, charmap: charmap.Windows1255},
	{name: ISO88598, charmap: charmap.ISO8859_8},
}

// Decode returns the text of data in the first candidate encoding that decodes
// the sampled prefix cleanly.
func Decode(data []byte) (*Result, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: input is empty", ErrEncodingUndetected)
	}

	sample := data
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}

	for _, c := range candidates {
		if c.charmap == nil {
			head := trimPartialRune(sample)
			if utf8.Valid(head) && !bytes.ContainsRune(head, utf8.RuneError) {
				return &Result{Text: strings.ToValidUTF8(string(data), "\uFFFD"), Encoding: c.name}, nil
			}
			continue
		}

		decoded, err := c.charmap.NewDecoder().Bytes(sample)
		if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		if len(sample) < len(data) {
			if decoded, err = c.charmap.NewDecoder().Bytes(data); err != nil {
				continue
			}
		}
		return &Result{Text: string(decoded), Encoding: c.name}, nil
	}

	return nil, ErrEncodingUndetected
}

// trimPartialRune drops a multi-byte sequence cut off at the end of a sample.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			break
		}
	}
	return b
}
