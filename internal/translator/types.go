package translator

import (
	"context"
	"fmt"
)

// Backend turns one plain-text segment into its translation. Implementations are
// not required to be safe for concurrent use.
type Backend interface {
	Translate(ctx context.Context, text string, cfg TranslationConfig) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, text string, cfg TranslationConfig) (string, error)

func (f BackendFunc) Translate(ctx context.Context, text string, cfg TranslationConfig) (string, error) {
	return f(ctx, text, cfg)
}

// TranslationConfig holds the generation parameters of a translation call.
type TranslationConfig struct {
	MaxOutputLength   int     `json:"max_output_length"`
	BeamCount         int     `json:"beam_count"`
	Temperature       float64 `json:"temperature"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	LengthPenalty     float64 `json:"length_penalty"`
	NoRepeatNgramSize int     `json:"no_repeat_ngram_size"`
}

const (
	MinOutputLength = 64
	MaxOutputLength = 1024
)

// DefaultTranslationConfig returns the generation parameters used when none are configured.
func DefaultTranslationConfig() TranslationConfig {
	return TranslationConfig{
		MaxOutputLength:   512,
		BeamCount:         4,
		Temperature:       1.0,
		RepetitionPenalty: 1.2,
		LengthPenalty:     1.0,
		NoRepeatNgramSize: 0,
	}
}

func (c TranslationConfig) Validate() error {
	if c.MaxOutputLength < MinOutputLength || c.MaxOutputLength > MaxOutputLength {
		return fmt.Errorf("max_output_length must be between %d and %d, got %d", MinOutputLength, MaxOutputLength, c.MaxOutputLength)
	}
	if c.BeamCount < 1 {
		return fmt.Errorf("beam_count must be at least 1, got %d", c.BeamCount)
	}
	if c.Temperature <= 0 {
		return fmt.Errorf("temperature must be greater than 0, got %v", c.Temperature)
	}
	if c.RepetitionPenalty < 1 {
		return fmt.Errorf("repetition_penalty must be at least 1, got %v", c.RepetitionPenalty)
	}
	if c.LengthPenalty <= 0 {
		return fmt.Errorf("length_penalty must be greater than 0, got %v", c.LengthPenalty)
	}
	if c.NoRepeatNgramSize < 0 {
		return fmt.Errorf("no_repeat_ngram_size must not be negative, got %d", c.NoRepeatNgramSize)
	}
	return nil
}

// Fingerprint identifies the parameter set, used in cache keys.
func (c TranslationConfig) Fingerprint() string {
	return fmt.Sprintf("%d/%d/%g/%g/%g/%d",
		c.MaxOutputLength,
		c.BeamCount,
		c.Temperature,
		c.RepetitionPenalty,
		c.LengthPenalty,
		c.NoRepeatNgramSize)
}

// BackendError is a failed translation of one segment.
type BackendError struct {
	Backend string
	Message string
	Cause   error
}

func (e *BackendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s backend: %s", e.Backend, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}
