package segment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/MimeLyc/vn-script-translator/internal/translator"
)

// Outcome is the result of one backend call. On failure Text holds the
// original span followed by an inline error marker.
type Outcome struct {
	Source string
	Text   string
	Err    error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Result is a translated dialogue string with the outcome of every plain span
// that was sent to the backend.
type Result struct {
	Text     string
	Outcomes []Outcome
}

func (r Result) Translated() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Failed() {
			n++
		}
	}
	return n
}

func (r Result) Failures() int {
	return len(r.Outcomes) - r.Translated()
}

// Extractor translates the plain text of a dialogue string and leaves its
// placeholders alone.
type Extractor struct {
	backend     translator.Backend
	placeholder *regexp.Regexp
	spaced      *regexp.Regexp
}

type Option func(*Extractor)

// WithPatterns replaces the placeholder patterns, e.g. for another script dialect.
func WithPatterns(p Patterns) Option {
	return func(e *Extractor) {
		e.placeholder = p.placeholder()
		e.spaced = p.spaced()
	}
}

func NewExtractor(backend translator.Backend, opts ...Option) *Extractor {
	p := DefaultPatterns()
	e := &Extractor{
		backend:     backend,
		placeholder: p.placeholder(),
		spaced:      p.spaced(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Split(text string) []Segment {
	return split(e.placeholder, text)
}

// Translate sends every non-blank Plain segment to the backend, joins the
// segments back in order and spaces out variables and tags. A failing segment
// never fails the whole string. When nothing was sent to the backend the text
// is returned as is.
func (e *Extractor) Translate(ctx context.Context, text string, cfg translator.TranslationConfig) Result {
	segments := e.Split(text)

	var outcomes []Outcome
	for i, seg := range segments {
		if seg.Kind == Literal || strings.TrimSpace(seg.Text) == "" {
			continue
		}
		outcome := e.translateSpan(ctx, seg.Text, cfg)
		outcomes = append(outcomes, outcome)
		segments[i].Text = outcome.Text
	}

	if len(outcomes) == 0 {
		return Result{Text: text}
	}
	return Result{
		Text:     space(e.spaced, Join(segments)),
		Outcomes: outcomes,
	}
}

func (e *Extractor) translateSpan(ctx context.Context, span string, cfg translator.TranslationConfig) Outcome {
	core := strings.TrimSpace(span)
	lead := span[:strings.Index(span, core)]
	trail := span[len(lead)+len(core):]

	out, err := e.backend.Translate(ctx, core, cfg)
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("empty translation")
	}
	if err != nil {
		return Outcome{
			Source: span,
			Text:   span + Annotation(err),
			Err:    err,
		}
	}
	return Outcome{
		Source: span,
		Text:   lead + sanitize(strings.TrimSpace(out)) + trail,
	}
}

var annotationReplacer = strings.NewReplacer(
	`"`, `'`,
	"\n", " ",
	"\r", " ",
	"[", "(",
	"]", ")",
	"{", "(",
	"}", ")",
)

// Annotation is the inline marker appended to a span whose translation failed.
// It is a {#...} comment tag, which the engine never displays or interpolates.
func Annotation(err error) string {
	return " {#translation error: " + annotationReplacer.Replace(err.Error()) + "}"
}

// sanitize keeps backend output inside a single double-quoted script string.
func sanitize(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	if !strings.Contains(s, `"`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
