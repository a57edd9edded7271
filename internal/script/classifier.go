package script

import (
	"strings"
	"unicode"
)

// DefaultKeywords are the structural statements of the Ren'Py dialect that never carry
// translatable dialogue.
var DefaultKeywords = []string{
	// definitions
	"define", "default", "init", "python", "image", "transform", "style", "screen",
	"layeredimage", "$",
	// labels and control flow
	"label", "jump", "call", "return", "pass", "if", "elif", "else", "while", "for",
	// scene and audio directives
	"scene", "show", "hide", "with", "play", "stop", "queue", "voice", "pause", "nvl",
	// window and menu directives
	"window", "menu",
	// comments and translate blocks
	"#", "translate",
}

// StructuralRunes mark embedded variables or inline tags; a line containing any of them
// is left untouched.
var StructuralRunes = "[]{}"

// Classifier categorizes raw script lines.
type Classifier struct {
	keywords   []string
	structural string
}

type ClassifierOption func(*Classifier)

// WithKeywords replaces the keyword set.
func WithKeywords(keywords []string) ClassifierOption {
	return func(c *Classifier) {
		c.keywords = append([]string(nil), keywords...)
	}
}

// WithStructuralRunes replaces the bracket characters checked by the structural rule.
func WithStructuralRunes(runes string) ClassifierOption {
	return func(c *Classifier) {
		c.structural = runes
	}
}

func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		keywords:   append([]string(nil), DefaultKeywords...),
		structural: StructuralRunes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify checks the keyword rule first, then the bracket rule.
func (c *Classifier) Classify(raw string) Classification {
	trimmed := strings.TrimSpace(raw)
	if c.HasKeyword(trimmed) {
		return SkipKeyword
	}
	if c.structural != "" && strings.ContainsAny(trimmed, c.structural) {
		return SkipStructural
	}
	return TranslateCandidate
}

// HasKeyword reports whether the trimmed line starts with a recognized keyword.
func (c *Classifier) HasKeyword(trimmed string) bool {
	for _, kw := range c.keywords {
		if kw == "" || !strings.HasPrefix(trimmed, kw) {
			continue
		}
		if !isWordKeyword(kw) {
			return true
		}
		// "show" must not match "showtime"
		rest := trimmed[len(kw):]
		if rest == "" {
			return true
		}
		r := []rune(rest)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return true
		}
	}
	return false
}

func isWordKeyword(kw string) bool {
	for _, r := range kw {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
