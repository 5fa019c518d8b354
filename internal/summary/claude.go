package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultModel is used when ClaudeConfig.Model is empty.
	DefaultModel = "claude-sonnet-4-5"

	defaultMaxTokens = 512

	systemPrompt = "You are a friendly AI assistant for a pet sitting app."
)

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("summary: API key not configured")

	// ErrEmptySummary is returned when the model produced no text.
	ErrEmptySummary = errors.New("summary: model returned no text")
)

// ClaudeConfig configures the Claude generator.
type ClaudeConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64

	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Claude generates summaries with the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ Generator = (*Claude)(nil)

// NewClaude returns a Claude generator. It fails with ErrNoAPIKey when
// config has no key.
func NewClaude(config ClaudeConfig) (*Claude, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL), option.WithMaxRetries(0))
	}
	return &Claude{
		client:    anthropic.NewClient(opts...),
		model:     config.Model,
		maxTokens: config.MaxTokens,
	}, nil
}

// Summarize implements Generator.
func (c *Claude) Summarize(ctx context.Context, d Digest) (string, error) {
	prompt, err := Prompt(d)
	if err != nil {
		return "", err
	}
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary for %s: %w", d.Date, err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", ErrEmptySummary
	}
	return text, nil
}
