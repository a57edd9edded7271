package langguard

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

// Detector returns the ISO 639-1 code of the language text is written in.
type Detector interface {
	Detect(text string) (string, error)
}

// DetectionError means the text was too short or ambiguous to classify.
type DetectionError struct {
	Text   string
	Reason string
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("language detection failed for %q: %s", e.Text, e.Reason)
}

// WhatlangDetector detects languages with whatlanggo.
type WhatlangDetector struct {
	minConfidence float64
}

type Option func(*WhatlangDetector)

// WithMinConfidence rejects detections below the given confidence (0..1).
func WithMinConfidence(c float64) Option {
	return func(d *WhatlangDetector) {
		d.minConfidence = c
	}
}

func NewWhatlangDetector(opts ...Option) *WhatlangDetector {
	d := &WhatlangDetector{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *WhatlangDetector) Detect(text string) (string, error) {
	if !hasLetter(text) {
		return "", &DetectionError{Text: text, Reason: "no letters"}
	}

	info := whatlanggo.Detect(text)
	if info.Lang == -1 {
		return "", &DetectionError{Text: text, Reason: "unknown language"}
	}
	if d.minConfidence > 0 && info.Confidence < d.minConfidence {
		return "", &DetectionError{
			Text:   text,
			Reason: fmt.Sprintf("confidence %.2f below %.2f", info.Confidence, d.minConfidence),
		}
	}

	code := info.Lang.Iso6391()
	if code == "" {
		return "", &DetectionError{Text: text, Reason: "no ISO 639-1 code for " + info.Lang.String()}
	}
	return code, nil
}

func hasLetter(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Guard skips retranslating text already in the target language.
type Guard struct {
	detector Detector
}

func NewGuard(detector Detector) *Guard {
	return &Guard{detector: detector}
}

// IsTarget reports whether text is detected as the target language. Detection
// failures count as "needs translation".
func (g *Guard) IsTarget(text string, target string) bool {
	ok, err := g.Check(text, target)
	if err != nil {
		log.Debug("Language guard: %v", err)
	}
	return ok
}

// Check is IsTarget that also returns the detection failure, if any.
func (g *Guard) Check(text string, target string) (bool, error) {
	if g == nil || g.detector == nil {
		return false, nil
	}
	detected, err := g.detector.Detect(text)
	if err != nil {
		return false, err
	}
	return BaseCode(detected) == BaseCode(target), nil
}

// BaseCode reduces a language code or tag ("es-ES", "spa", "Spanish") to its base
// subtag. Unparseable input is returned lower-cased.
func BaseCode(code string) string {
	code = strings.TrimSpace(code)
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}
