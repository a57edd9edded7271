package segment

import (
	"regexp"
	"strings"
)

// Kind tells whether a segment goes to the backend.
type Kind int

const (
	// Plain is dialogue text handed to the translation backend.
	Plain Kind = iota
	// Literal is a variable, directive or tag span copied verbatim.
	Literal
)

func (k Kind) String() string {
	if k == Literal {
		return "literal"
	}
	return "plain"
}

type Segment struct {
	Kind Kind
	Text string
}

// Patterns are the placeholder spans that must survive translation untouched.
// Variable and Tag spans are additionally kept apart from neighbouring words.
type Patterns struct {
	Variable  *regexp.Regexp
	Directive *regexp.Regexp
	Tag       *regexp.Regexp
}

var (
	variablePattern  = regexp.MustCompile(`\[[^\]]*\]`)
	directivePattern = regexp.MustCompile(`\{[^}]*\}`)
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
)

// DefaultPatterns match Ren'Py interpolation ([name]), text tags ({b}) and
// angle-bracket markup (<i>).
func DefaultPatterns() Patterns {
	return Patterns{
		Variable:  variablePattern,
		Directive: directivePattern,
		Tag:       tagPattern,
	}
}

func (p Patterns) placeholder() *regexp.Regexp {
	return union(p.Variable, p.Directive, p.Tag)
}

func (p Patterns) spaced() *regexp.Regexp {
	return union(p.Variable, p.Tag)
}

func union(patterns ...*regexp.Regexp) *regexp.Regexp {
	parts := make([]string, 0, len(patterns))
	for _, re := range patterns {
		if re != nil {
			parts = append(parts, "(?:"+re.String()+")")
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(strings.Join(parts, "|"))
}

// Split cuts text into Plain and Literal segments. Empty segments are never
// produced and Join(Split(s)) == s.
func Split(text string) []Segment {
	return split(DefaultPatterns().placeholder(), text)
}

func split(placeholder *regexp.Regexp, text string) []Segment {
	if text == "" {
		return nil
	}
	if placeholder == nil {
		return []Segment{{Kind: Plain, Text: text}}
	}

	var segments []Segment
	last := 0
	for _, loc := range placeholder.FindAllStringIndex(text, -1) {
		if loc[0] == loc[1] {
			continue
		}
		if loc[0] > last {
			segments = append(segments, Segment{Kind: Plain, Text: text[last:loc[0]]})
		}
		segments = append(segments, Segment{Kind: Literal, Text: text[loc[0]:loc[1]]})
		last = loc[1]
	}
	if last < len(text) {
		segments = append(segments, Segment{Kind: Plain, Text: text[last:]})
	}
	return segments
}

func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Space puts a single space on each side of every variable and tag span that
// touches a non-space character. Nothing is added at the ends of the string.
func Space(text string) string {
	return space(DefaultPatterns().spaced(), text)
}

func space(spaced *regexp.Regexp, text string) string {
	if spaced == nil {
		return text
	}
	matches := spaced.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 2*len(matches))
	last := 0
	for _, loc := range matches {
		start, end := loc[0], loc[1]
		if start == end {
			continue
		}
		b.WriteString(text[last:start])
		if start > 0 && !endsWithSpace(b.String()) {
			b.WriteByte(' ')
		}
		b.WriteString(text[start:end])
		if end < len(text) && !isSpace(text[end]) {
			b.WriteByte(' ')
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func endsWithSpace(s string) bool {
	return s != "" && isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
