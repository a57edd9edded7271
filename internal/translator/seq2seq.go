package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Seq2SeqConfig holds the configuration of a hosted sequence-to-sequence model
//
// APIURL: base URL of the model server, requests go to APIURL + "/translate"
// Model: model identifier forwarded to the server (e.g. Helsinki-NLP/opus-mt-en-es)
// SourceLanguage / TargetLanguage: language codes forwarded with every request
// Timeout: per-request timeout, zero disables it
type Seq2SeqConfig struct {
	APIURL         string
	Model          string
	SourceLanguage string
	TargetLanguage string
	Timeout        time.Duration
}

func (c *Seq2SeqConfig) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("seq2seq API URL is required")
	}
	if strings.TrimSpace(c.TargetLanguage) == "" {
		return fmt.Errorf("target language is required")
	}
	return nil
}

// Seq2SeqBackend calls a model server exposing
//
//	POST /translate {"text": ..., "max_length": ..., "num_beams": ..., ...}
//
// and answering {"translation": "..."} or {"error": "..."}.
type Seq2SeqBackend struct {
	config     Seq2SeqConfig
	httpClient *http.Client
	baseURL    string
}

// NewSeq2SeqBackend creates a backend for the given server
//
// Example:
//
//	backend, err := translator.NewSeq2SeqBackend(translator.Seq2SeqConfig{
//		APIURL:         "http://127.0.0.1:8000",
//		Model:          "Helsinki-NLP/opus-mt-en-es",
//		SourceLanguage: "en",
//		TargetLanguage: "es",
//	})
func NewSeq2SeqBackend(config Seq2SeqConfig) (*Seq2SeqBackend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Seq2SeqBackend{
		config:     config,
		baseURL:    strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

type seq2seqRequest struct {
	Text              string  `json:"text"`
	Model             string  `json:"model,omitempty"`
	SourceLanguage    string  `json:"source_lang,omitempty"`
	TargetLanguage    string  `json:"target_lang"`
	MaxLength         int     `json:"max_length"`
	NumBeams          int     `json:"num_beams"`
	Temperature       float64 `json:"temperature"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	LengthPenalty     float64 `json:"length_penalty"`
	NoRepeatNgramSize int     `json:"no_repeat_ngram_size"`
	EarlyStopping     bool    `json:"early_stopping"`
}

type seq2seqResponse struct {
	Translation string `json:"translation"`
	Error       string `json:"error,omitempty"`
}

func (b *Seq2SeqBackend) Translate(ctx context.Context, text string, cfg TranslationConfig) (string, error) {
	payload := seq2seqRequest{
		Text:              text,
		Model:             b.config.Model,
		SourceLanguage:    b.config.SourceLanguage,
		TargetLanguage:    b.config.TargetLanguage,
		MaxLength:         cfg.MaxOutputLength,
		NumBeams:          cfg.BeamCount,
		Temperature:       cfg.Temperature,
		RepetitionPenalty: cfg.RepetitionPenalty,
		LengthPenalty:     cfg.LengthPenalty,
		NoRepeatNgramSize: cfg.NoRepeatNgramSize,
		EarlyStopping:     true,
	}

	resp, err := b.makeRequest(ctx, payload)
	if err != nil {
		return "", &BackendError{Backend: "seq2seq", Message: "translate request failed", Cause: err}
	}
	return resp.Translation, nil
}

func (b *Seq2SeqBackend) makeRequest(ctx context.Context, payload seq2seqRequest) (*seq2seqResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/translate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var out seq2seqResponse
	if err := json.Unmarshal(responseBody, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("model server error: %s", out.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return &out, nil
}
