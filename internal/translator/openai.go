package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures a chat-completions backend. Any OpenAI compatible
// endpoint works (OpenRouter, local servers).
type OpenAIConfig struct {
	APIKey         string
	APIURL         string // optional, defaults to the OpenAI API
	Model          string
	SourceLanguage string
	TargetLanguage string
}

func (c *OpenAIConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("API key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if strings.TrimSpace(c.TargetLanguage) == "" {
		return fmt.Errorf("target language is required")
	}
	return nil
}

// OpenAIBackend translates one segment per chat completion. Beam count, length
// penalty and n-gram blocking have no chat-completions equivalent and are ignored.
type OpenAIBackend struct {
	client *openai.Client
	config OpenAIConfig
}

func NewOpenAIBackend(config OpenAIConfig) (*OpenAIBackend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.APIURL != "" {
		clientConfig.BaseURL = config.APIURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

func (b *OpenAIBackend) Translate(ctx context.Context, text string, cfg TranslationConfig) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, b.buildRequest(text, cfg))
	if err != nil {
		return "", &BackendError{Backend: "openai", Message: "chat completion failed", Cause: err}
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Backend: "openai", Message: "no choices in response"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (b *OpenAIBackend) buildRequest(text string, cfg TranslationConfig) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: b.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: b.buildSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:        cfg.MaxOutputLength,
		Temperature:      float32(clamp(cfg.Temperature, 0, 2)),
		FrequencyPenalty: float32(clamp(cfg.RepetitionPenalty-1, 0, 2)),
	}
}

func (b *OpenAIBackend) buildSystemPrompt() string {
	source := b.config.SourceLanguage
	if source == "" {
		source = "the source language"
	}

	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("You translate visual novel dialogue from %s to %s.\n", source, b.config.TargetLanguage))
	prompt.WriteString("Return ONLY the translated text, without quotes, notes or explanations.\n")
	prompt.WriteString("Keep the tone of the speaker and the original punctuation style.\n")
	prompt.WriteString("Never add line breaks or double quote characters.\n")
	return prompt.String()
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
