package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	AnthropicName             = "anthropic"
	anthropicDefaultModel     = "claude-3-5-haiku-latest"
	anthropicDefaultMaxTokens = 8192
)

// AnthropicConfig holds configuration for the Anthropic corrector.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int           // default 8192
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// AnthropicCorrector implements Corrector over the Anthropic Messages API.
type AnthropicCorrector struct {
	model     string
	maxTokens int
	client    anthropic.Client
}

// NewAnthropicCorrector creates a new Anthropic corrector.
func NewAnthropicCorrector(cfg AnthropicConfig) *AnthropicCorrector {
	if cfg.Model == "" {
		cfg.Model = anthropicDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = anthropicDefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicCorrector{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    anthropic.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *AnthropicCorrector) Name() string { return AnthropicName }

// Model returns the configured model.
func (c *AnthropicCorrector) Model() string { return c.model }

// Correct sends instructions as the cached system prompt and text as the
// single user turn.
func (c *AnthropicCorrector) Correct(ctx context.Context, text, instructions string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: instructionsOrDefault(instructions), CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", mapAnthropicError(err)
	}
	if message.StopReason == anthropic.StopReasonMaxTokens {
		return "", fmt.Errorf("%w: %s stopped at the token limit", ErrTruncated, AnthropicName)
	}
	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w from %s", ErrEmptyResponse, AnthropicName)
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return statusError(AnthropicName, apiErr.StatusCode, http.StatusText(apiErr.StatusCode), header)
	}
	return err
}

var _ Corrector = (*AnthropicCorrector)(nil)
