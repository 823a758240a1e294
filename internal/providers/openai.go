package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the OpenAI corrector.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "gpt-4o-mini" (default)
	MaxTokens  int           // 0 = provider default
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAICorrector implements Corrector using the official OpenAI SDK.
type OpenAICorrector struct {
	model     string
	maxTokens int
	client    openai.Client
}

// NewOpenAICorrector creates a new OpenAI corrector. Retries are left to
// WithRetry, so the SDK's own retries are disabled.
func NewOpenAICorrector(cfg OpenAIConfig) *OpenAICorrector {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
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

	return &OpenAICorrector{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAICorrector) Name() string { return OpenAIName }

// Model returns the configured model.
func (c *OpenAICorrector) Model() string { return c.model }

// Correct sends text as the user message and instructions as the system message.
func (c *OpenAICorrector) Correct(ctx context.Context, text, instructions string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructionsOrDefault(instructions)),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w from %s", ErrEmptyResponse, OpenAIName)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", fmt.Errorf("%w: %s stopped at the token limit", ErrTruncated, OpenAIName)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("%w from %s", ErrEmptyResponse, OpenAIName)
	}
	return choice.Message.Content, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return statusError(OpenAIName, apiErr.StatusCode, apiErr.Message, header)
	}
	return err
}

var _ Corrector = (*OpenAICorrector)(nil)
