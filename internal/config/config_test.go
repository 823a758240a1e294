package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/providers"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.AI.OpenAIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
	if cfg.AI.Provider != "" {
		t.Error("AI correction should be off by default")
	}
	c, err := cfg.CleanupDefaults()
	if err != nil {
		t.Fatalf("CleanupDefaults() error = %v", err)
	}
	if c.Locale != cleanup.LocaleEN || c.ConfidenceThreshold != cleanup.DefaultConfidenceThreshold {
		t.Errorf("cleanup defaults = %+v", c)
	}
	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ProviderConfig(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "ak-123")

	tests := []struct {
		provider string
		wantKey  string
	}{
		{providers.AnthropicName, "ak-123"},
		{providers.OpenAIName, "direct-key"},
		{providers.MockName, ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AI.Provider = tt.provider
			cfg.AI.OpenAIKey = "direct-key"
			cfg.AI.AnthropicKey = "${TEST_ANTHROPIC_KEY}"

			pc := cfg.ProviderConfig()
			if pc.Provider != tt.provider || pc.APIKey != tt.wantKey {
				t.Errorf("ProviderConfig() = %+v, want key %q", pc, tt.wantKey)
			}
			if pc.Timeout != 120*time.Second || pc.MaxRetries != 3 {
				t.Errorf("timeout/retries = %v/%d", pc.Timeout, pc.MaxRetries)
			}
		})
	}
}

func TestCleanupDefaults_RulesFile(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(rules, []byte(`
threshold: 0.8
patterns:
  - name: letter
    match: '(?i)^letter\s+[ivxlc]+\.?$'
    confidence: 0.9
    section_type: chapter
`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Cleanup.RulesFile = rules
	c, err := cfg.CleanupDefaults()
	if err != nil {
		t.Fatalf("CleanupDefaults() error = %v", err)
	}
	if c.Patterns[0].Name != "letter" || c.ConfidenceThreshold != 0.8 {
		t.Errorf("rules not applied: threshold %v, first pattern %q", c.ConfidenceThreshold, c.Patterns[0].Name)
	}

	cfg.Cleanup.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.CleanupDefaults(); err == nil {
		t.Error("expected error for a missing rules file")
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
cleanup:
  locale: fr
  preserve_archaic: true
server:
  port: "9090"
`)
		mgr, err := NewManager(configFile, "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Cleanup.Locale != "fr" || !cfg.Cleanup.PreserveArchaic {
			t.Errorf("cleanup = %+v", cfg.Cleanup)
		}
		if cfg.Server.Port != "9090" || cfg.Server.Host != "127.0.0.1" {
			t.Errorf("server = %+v, want file port with default host", cfg.Server)
		}
		if cfg.Cleanup.MinChapterChars != cleanup.DefaultMinChapterChars {
			t.Errorf("unset key lost its default: %d", cfg.Cleanup.MinChapterChars)
		}
		if mgr.File() != configFile {
			t.Errorf("File() = %q", mgr.File())
		}
	})

	t.Run("missing file uses defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if mgr.Get().Defra.ContainerName != "folio-defra" || mgr.File() != "" {
			t.Errorf("config = %+v from %q", mgr.Get().Defra, mgr.File())
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("FOLIO_AI_PROVIDER", "mock")
		t.Setenv("FOLIO_CLEANUP_LOCALE", "fr")
		mgr, err := NewManager(writeConfig(t, "cleanup:\n  locale: en\n"), "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.AI.Provider != "mock" || cfg.Cleanup.Locale != "fr" {
			t.Errorf("env not applied: provider %q locale %q", cfg.AI.Provider, cfg.Cleanup.Locale)
		}
	})

	t.Run("rejects invalid cleanup config", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "cleanup:\n  locale: de\n"), ""); err == nil {
			t.Error("expected error for unsupported locale")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"8081\"\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"8081\"\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Server.Port
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "cleanup:\n  locale: en\n")

	mgr, err := NewManager(configFile, "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if mgr.Get().Cleanup.Locale != "en" {
		t.Fatalf("initial locale = %q", mgr.Get().Cleanup.Locale)
	}

	// Track callback invocations
	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Cleanup.Locale)
	})

	// Start watching
	mgr.WatchConfig(nil)

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("cleanup:\n  locale: fr\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Cleanup.Locale; got != "fr" {
		t.Errorf("config not updated: locale %q", got)
	}
	if v := lastValue.Load(); v != "fr" {
		t.Errorf("callback received wrong value: %v", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	mgr, err := NewManager(path, "")
	if err != nil {
		t.Fatalf("written defaults do not load: %v", err)
	}
	got := mgr.Get()
	want := DefaultConfig()
	if got.Cleanup != want.Cleanup || got.Server != want.Server || got.Defra != want.Defra || got.AI != want.AI {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}
