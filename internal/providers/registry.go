package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNotConfigured is returned when no correction provider is set up.
var ErrNotConfigured = errors.New("providers: no correction provider configured")

// Config selects and configures the correction provider.
type Config struct {
	Provider          string        // "openai", "anthropic", "mock" or "" (disabled)
	Model             string        // provider default when empty
	APIKey            string        // resolved API key
	BaseURL           string        // optional
	Timeout           time.Duration // per request
	MaxRetries        uint          // attempts including the first, default 3
	RetryDelay        time.Duration // base backoff delay
	RequestsPerMinute int           // 0 = no limiter
	MaxTokens         int
}

// New builds the configured Corrector, wrapped with retry and rate limiting.
func New(cfg Config, logger *slog.Logger) (Corrector, error) {
	var c Corrector
	switch cfg.Provider {
	case "":
		return nil, ErrNotConfigured
	case OpenAIName:
		c = NewOpenAICorrector(OpenAIConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, MaxTokens: cfg.MaxTokens,
			Timeout: cfg.Timeout, BaseURL: cfg.BaseURL,
		})
	case AnthropicName:
		c = NewAnthropicCorrector(AnthropicConfig{
			APIKey: cfg.APIKey, Model: cfg.Model, MaxTokens: cfg.MaxTokens,
			Timeout: cfg.Timeout, BaseURL: cfg.BaseURL,
		})
	case MockName:
		c = NewMockCorrector()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if cfg.Provider != MockName && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s has no API key", ErrNotConfigured, cfg.Provider)
	}

	rc := RetryConfig{Attempts: cfg.MaxRetries, Delay: cfg.RetryDelay, Logger: logger}
	if cfg.RequestsPerMinute > 0 {
		rc.Limiter = NewRateLimiter(cfg.RequestsPerMinute)
	}
	return WithRetry(c, rc), nil
}

// Registry holds the current Corrector. Reload swaps it when the config
// changes; callers that already hold a Corrector keep using it.
type Registry struct {
	mu        sync.RWMutex
	corrector Corrector
	cfg       Config
	err       error
	logger    *slog.Logger
}

// NewRegistry creates a registry from cfg. A provider that fails to build
// is reported by Corrector, not here, so the server can start without AI.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	r.Reload(cfg)
	return r
}

// Reload rebuilds the Corrector if cfg differs from the current config.
func (r *Registry) Reload(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.corrector != nil && cfg == r.cfg {
		return
	}
	r.cfg = cfg
	r.corrector, r.err = New(cfg, r.logger)
	switch {
	case r.err == nil:
		r.logger.Info("correction provider ready", "provider", cfg.Provider, "model", cfg.Model)
	case errors.Is(r.err, ErrNotConfigured):
		r.logger.Info("AI correction disabled", "reason", r.err)
	default:
		r.logger.Warn("correction provider unavailable", "provider", cfg.Provider, "error", r.err)
	}
}

// Corrector returns the current Corrector or why there is none.
func (r *Registry) Corrector() (Corrector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.corrector, r.err
}
