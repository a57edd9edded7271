package script

import "strings"

// Classification is the derived category of a raw script line.
type Classification int

const (
	TranslateCandidate Classification = iota
	SkipKeyword
	SkipStructural
)

func (c Classification) String() string {
	switch c {
	case SkipKeyword:
		return "skip-keyword"
	case SkipStructural:
		return "skip-structural"
	default:
		return "translate-candidate"
	}
}

// Skip reports whether the line is inert to translation.
func (c Classification) Skip() bool {
	return c == SkipKeyword || c == SkipStructural
}

// Line is one physical line of a script file, without its line terminator.
type Line struct {
	Text string
}

// Indent returns the leading whitespace of the line.
func (l Line) Indent() string {
	return l.Text[:len(l.Text)-len(strings.TrimLeft(l.Text, " \t"))]
}

// Trimmed returns the line without surrounding whitespace.
func (l Line) Trimmed() string {
	return strings.TrimSpace(l.Text)
}

// File is a decoded script file.
type File struct {
	Path  string
	Lines []Line

	// Encoding is the name of the encoding the content was decoded with.
	Encoding string
	// Lossy is set when no strict decode succeeded and invalid bytes were replaced.
	Lossy bool
	// BOM is set when the source started with a UTF-8 byte order mark.
	BOM bool
	// TrailingNewline is set when the last line was terminated.
	TrailingNewline bool
	// Raw holds the undecoded source bytes.
	Raw []byte
}

// Texts returns the raw text of every line.
func (f *File) Texts() []string {
	ret := make([]string, len(f.Lines))
	for i, line := range f.Lines {
		ret[i] = line.Text
	}
	return ret
}
