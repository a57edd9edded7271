package script

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEncodings is the order strict decodes are attempted in.
var DefaultEncodings = []string{"utf-8", "latin1", "iso-8859-1"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Reader loads script files, trying a list of encodings before falling back to a
// lossy UTF-8 decode.
type Reader struct {
	encodings []string
}

func NewReader(encodings ...string) *Reader {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}
	return &Reader{encodings: append([]string(nil), encodings...)}
}

// Read loads and decodes the file at path.
func (r *Reader) Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := r.Decode(data)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Decode splits data into lines. Line endings are normalized to "\n".
func (r *Reader) Decode(data []byte) (*File, error) {
	f := &File{Raw: data}
	body := data
	if bytes.HasPrefix(body, utf8BOM) {
		f.BOM = true
		body = body[len(utf8BOM):]
	}

	text, name, ok := r.decodeStrict(body)
	if !ok {
		decoded, err := unicode.UTF8.NewDecoder().Bytes(body)
		if err != nil {
			return nil, fmt.Errorf("lossy decode: %w", err)
		}
		text, name = string(decoded), "utf-8"
		f.Lossy = true
	}
	f.Encoding = name

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if text == "" {
		return f, nil
	}

	f.TrailingNewline = strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")
	for _, line := range strings.Split(text, "\n") {
		f.Lines = append(f.Lines, Line{Text: line})
	}
	return f, nil
}

func (r *Reader) decodeStrict(body []byte) (string, string, bool) {
	for _, name := range r.encodings {
		enc, err := lookupEncoding(name)
		if err != nil {
			continue
		}
		if text, ok := strictDecode(enc, body); ok {
			return text, name, true
		}
	}
	return "", "", false
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return unicode.UTF8, nil
	case "latin-1":
		// Python's alias; IANA only knows "latin1"
		name = "latin1"
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// strictDecode fails instead of substituting invalid input.
func strictDecode(enc encoding.Encoding, body []byte) (string, bool) {
	if enc == unicode.UTF8 {
		if !utf8.Valid(body) {
			return "", false
		}
		return string(body), true
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	// single-byte decoders map undefined bytes to U+FFFD
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", false
	}
	return string(decoded), true
}
