package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode"

	"github.com/jackzampolin/folio/internal/defra"
	docstore "github.com/jackzampolin/folio/internal/store"
)

// CollectionSetting holds runtime overrides.
const CollectionSetting = "Setting"

var (
	// ErrInvalidKey is returned when a setting key contains invalid characters.
	ErrInvalidKey = errors.New("invalid config key")

	// ErrUnknownKey is returned for a key that cannot be overridden at runtime.
	ErrUnknownKey = errors.New("unknown config key")

	// ErrInvalidValue is returned when a value has the wrong type for its key.
	ErrInvalidValue = errors.New("invalid config value")
)

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	// Don't allow keys starting or ending with dots
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// Entry is one setting as reported to clients.
type Entry struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description"`
	Overridden  bool   `json:"overridden"`
	DocID       string `json:"-"`
}

// setting is a key that may be overridden at runtime.
type setting struct {
	key         string
	description string
	get         func(*Config) any
	set         func(*Config, any) error
}

var settings = []setting{
	{
		key:         "cleanup.locale",
		description: "Punctuation locale for new cleanup jobs (en or fr)",
		get:         func(c *Config) any { return c.Cleanup.Locale },
		set:         func(c *Config, v any) error { return setString(&c.Cleanup.Locale, v) },
	},
	{
		key:         "cleanup.preserve_archaic",
		description: "Keep archaic apostrophe forms verbatim and flag them",
		get:         func(c *Config) any { return c.Cleanup.PreserveArchaic },
		set:         func(c *Config, v any) error { return setBool(&c.Cleanup.PreserveArchaic, v) },
	},
	{
		key:         "cleanup.confidence_threshold",
		description: "Minimum heading confidence for a committed chapter boundary",
		get:         func(c *Config) any { return c.Cleanup.ConfidenceThreshold },
		set:         func(c *Config, v any) error { return setFloat(&c.Cleanup.ConfidenceThreshold, v) },
	},
	{
		key:         "cleanup.min_chapter_chars",
		description: "Chapters with fewer body characters are flagged as disputed",
		get:         func(c *Config) any { return c.Cleanup.MinChapterChars },
		set:         func(c *Config, v any) error { return setInt(&c.Cleanup.MinChapterChars, v) },
	},
	{
		key:         "ai.provider",
		description: "Correction provider for AI revision (openai, anthropic, mock, or empty)",
		get:         func(c *Config) any { return c.AI.Provider },
		set:         func(c *Config, v any) error { return setString(&c.AI.Provider, v) },
	},
	{
		key:         "ai.model",
		description: "Model name for the correction provider",
		get:         func(c *Config) any { return c.AI.Model },
		set:         func(c *Config, v any) error { return setString(&c.AI.Model, v) },
	},
}

func lookup(key string) (*setting, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	for i := range settings {
		if settings[i].key == key {
			return &settings[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Keys returns the keys that can be overridden.
func Keys() []string {
	keys := make([]string, len(settings))
	for i, s := range settings {
		keys[i] = s.key
	}
	return keys
}

// GetDefault returns the value of key in cfg, ignoring overrides.
func GetDefault(cfg *Config, key string) (*Entry, error) {
	s, err := lookup(key)
	if err != nil {
		return nil, err
	}
	return &Entry{Key: key, Value: s.get(cfg), Description: s.description}, nil
}

// Apply returns a copy of cfg with overrides applied and validated.
func Apply(cfg *Config, overrides map[string]Entry) (*Config, error) {
	out := *cfg
	for key, e := range overrides {
		s, err := lookup(key)
		if err != nil {
			return nil, err
		}
		if err := s.set(&out, e.Value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	if _, err := out.CleanupDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return &out, nil
}

// Entries lists every setting with its effective value, sorted by key.
func Entries(cfg *Config, overrides map[string]Entry) ([]Entry, error) {
	eff, err := Apply(cfg, overrides)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(settings))
	for _, s := range settings {
		_, overridden := overrides[s.key]
		entries = append(entries, Entry{
			Key:         s.key,
			Value:       s.get(eff),
			Description: s.description,
			Overridden:  overridden,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Store persists runtime overrides.
type Store interface {
	// Get returns the override for key, or nil when there is none.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set creates or updates an override.
	Set(ctx context.Context, key string, value any) error

	// GetAll returns all overrides keyed by setting key.
	GetAll(ctx context.Context) (map[string]Entry, error)

	// Delete removes an override.
	Delete(ctx context.Context, key string) error
}

// DefraStore implements Store on the record store.
type DefraStore struct {
	store docstore.Store
}

// NewStore creates a record-store backed settings store.
func NewStore(s docstore.Store) *DefraStore {
	return &DefraStore{store: s}
}

var settingFields = []string{"name", "value", "updated_at"}

// Get returns a single override by key.
func (s *DefraStore) Get(ctx context.Context, key string) (*Entry, error) {
	if _, err := lookup(key); err != nil {
		return nil, err
	}
	doc, err := docstore.FindOne(ctx, s.store, defra.NewQuery(CollectionSetting).Filter("name", key).Fields(settingFields...))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	e := entryFromDoc(doc)
	return &e, nil
}

// Set validates value against the key's type and stores it.
func (s *DefraStore) Set(ctx context.Context, key string, value any) error {
	st, err := lookup(key)
	if err != nil {
		return err
	}
	if err := st.set(DefaultConfig(), value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	existing, err := s.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	input := map[string]any{
		"name":       key,
		"value":      string(valueJSON),
		"updated_at": docstore.FormatTime(time.Now()),
	}
	if existing != nil {
		if _, err := s.store.Update(ctx, CollectionSetting, existing.DocID, input); err != nil {
			return fmt.Errorf("update failed: %w", err)
		}
		return nil
	}
	if _, err := s.store.Create(ctx, CollectionSetting, input); err != nil {
		return fmt.Errorf("create failed: %w", err)
	}
	return nil
}

// GetAll returns every stored override. Rows for keys that are no longer
// known are skipped.
func (s *DefraStore) GetAll(ctx context.Context) (map[string]Entry, error) {
	docs, err := defra.NewQuery(CollectionSetting).Fields(settingFields...).Execute(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	result := make(map[string]Entry, len(docs))
	for _, doc := range docs {
		e := entryFromDoc(doc)
		if _, err := lookup(e.Key); err != nil {
			slog.Debug("skipping unknown setting", "key", e.Key)
			continue
		}
		result[e.Key] = e
	}
	return result, nil
}

// Delete removes an override by key.
func (s *DefraStore) Delete(ctx context.Context, key string) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to find entry: %w", err)
	}
	if existing == nil {
		return nil // Already doesn't exist
	}
	if err := s.store.Delete(ctx, CollectionSetting, existing.DocID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// ResetToDefault removes the override for key so the file value applies.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	if _, err := lookup(key); err != nil {
		return err
	}
	return store.Delete(ctx, key)
}

func entryFromDoc(doc map[string]any) Entry {
	e := Entry{
		Key:        docstore.String(doc, "name"),
		DocID:      docstore.String(doc, "_docID"),
		Overridden: true,
	}
	// Value is stored as a JSON string.
	raw := docstore.String(doc, "value")
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Debug("setting value is not valid JSON, using as raw string", "key", e.Key, "error", err)
		e.Value = raw
	} else {
		e.Value = parsed
	}
	if s, err := lookup(e.Key); err == nil {
		e.Description = s.description
	}
	return e
}

func setString(dst *string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: want string, got %T", ErrInvalidValue, v)
	}
	*dst = s
	return nil
}

func setBool(dst *bool, v any) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("%w: want boolean, got %T", ErrInvalidValue, v)
	}
	*dst = b
	return nil
}

func setFloat(dst *float64, v any) error {
	switch n := v.(type) {
	case float64:
		*dst = n
	case int:
		*dst = float64(n)
	default:
		return fmt.Errorf("%w: want number, got %T", ErrInvalidValue, v)
	}
	return nil
}

func setInt(dst *int, v any) error {
	switch n := v.(type) {
	case int:
		*dst = n
	case float64:
		if n != float64(int(n)) {
			return fmt.Errorf("%w: want integer, got %v", ErrInvalidValue, n)
		}
		*dst = int(n)
	default:
		return fmt.Errorf("%w: want integer, got %T", ErrInvalidValue, v)
	}
	return nil
}
