package config

import (
	"fmt"
	"time"

	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/providers"
)

// Config holds folio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Defra   DefraConfig   `mapstructure:"defra" yaml:"defra"`
	Blob    BlobConfig    `mapstructure:"blob" yaml:"blob"`
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`
	AI      AIConfig      `mapstructure:"ai" yaml:"ai"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// URL of a running DefraDB. When empty the managed container is used.
	URL string `mapstructure:"url" yaml:"url"`
	// ContainerName is the Docker container name (default: folio-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
	// DataPath overrides {home}/defradb for container data.
	DataPath string `mapstructure:"data_path" yaml:"data_path"`
}

// BlobConfig configures body storage.
type BlobConfig struct {
	// Path of the SQLite file; {home}/blobs.db when empty.
	Path string `mapstructure:"path" yaml:"path"`
	// InlineThreshold is the largest body the layout check accepts inline.
	InlineThreshold int `mapstructure:"inline_threshold" yaml:"inline_threshold"`
}

// CleanupConfig holds the defaults for new cleanup jobs.
type CleanupConfig struct {
	Locale              string  `mapstructure:"locale" yaml:"locale"`
	PreserveArchaic     bool    `mapstructure:"preserve_archaic" yaml:"preserve_archaic"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	MinChapterChars     int     `mapstructure:"min_chapter_chars" yaml:"min_chapter_chars"`
	// RulesFile is an optional YAML heading rule file.
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`
}

// AIConfig configures the correction provider.
type AIConfig struct {
	Provider          string `mapstructure:"provider" yaml:"provider"` // "openai", "anthropic", "mock", or "" to disable
	Model             string `mapstructure:"model" yaml:"model"`
	OpenAIKey         string `mapstructure:"openai_api_key" yaml:"openai_api_key"`       // supports ${ENV_VAR} syntax
	AnthropicKey      string `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"` // supports ${ENV_VAR} syntax
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries        uint   `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxTokens         int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	Concurrency       int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Workers  int    `mapstructure:"workers" yaml:"workers"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	c := cleanup.DefaultConfig()
	return &Config{
		Defra: DefraConfig{
			ContainerName: "folio-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
		Blob: BlobConfig{
			InlineThreshold: 4096,
		},
		Cleanup: CleanupConfig{
			Locale:              c.Locale,
			PreserveArchaic:     c.PreserveArchaic,
			ConfidenceThreshold: c.ConfidenceThreshold,
			MinChapterChars:     c.MinChapterChars,
		},
		AI: AIConfig{
			Provider:          "",
			OpenAIKey:         "${OPENAI_API_KEY}",
			AnthropicKey:      "${ANTHROPIC_API_KEY}",
			TimeoutSeconds:    120,
			MaxRetries:        3,
			RequestsPerMinute: 60,
			Concurrency:       4,
		},
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     "8080",
			Workers:  2,
			LogLevel: "info",
		},
	}
}

// CleanupDefaults builds the cleanup config for new jobs, loading the rule
// file when one is set.
func (c *Config) CleanupDefaults() (cleanup.Config, error) {
	out := cleanup.DefaultConfig()
	out.Locale = c.Cleanup.Locale
	out.PreserveArchaic = c.Cleanup.PreserveArchaic
	if c.Cleanup.ConfidenceThreshold > 0 {
		out.ConfidenceThreshold = c.Cleanup.ConfidenceThreshold
	}
	if c.Cleanup.MinChapterChars > 0 {
		out.MinChapterChars = c.Cleanup.MinChapterChars
	}
	if c.Cleanup.RulesFile != "" {
		rules, err := cleanup.LoadRulesFile(ResolveEnvVars(c.Cleanup.RulesFile))
		if err != nil {
			return out, fmt.Errorf("cleanup rules: %w", err)
		}
		out = out.WithRules(rules)
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

// ProviderConfig converts the AI section for providers.Registry.
// It resolves ${ENV_VAR} references in the API key of the selected provider.
func (c *Config) ProviderConfig() providers.Config {
	cfg := providers.Config{
		Provider:          c.AI.Provider,
		Model:             c.AI.Model,
		BaseURL:           c.AI.BaseURL,
		Timeout:           time.Duration(c.AI.TimeoutSeconds) * time.Second,
		MaxRetries:        c.AI.MaxRetries,
		RequestsPerMinute: c.AI.RequestsPerMinute,
		MaxTokens:         c.AI.MaxTokens,
	}
	switch c.AI.Provider {
	case providers.OpenAIName:
		cfg.APIKey = ResolveEnvVars(c.AI.OpenAIKey)
	case providers.AnthropicName:
		cfg.APIKey = ResolveEnvVars(c.AI.AnthropicKey)
	}
	return cfg
}

// Addr returns host:port for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}
