package config

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/folio/internal/store"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"cleanup.locale", false},
		{"ai.model-name_2", false},
		{"", true},
		{".leading", true},
		{"trailing.", true},
		{"has space", true},
		{"semi;colon", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("error does not wrap ErrInvalidKey: %v", err)
			}
		})
	}
}

func TestDefraStore(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	ms.UniqueIndex(CollectionSetting, "name")
	s := NewStore(ms)

	if e, err := s.Get(ctx, "cleanup.locale"); err != nil || e != nil {
		t.Fatalf("Get() on empty store = %v, %v", e, err)
	}

	if err := s.Set(ctx, "cleanup.locale", "fr"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "cleanup.locale", "en"); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}
	if err := s.Set(ctx, "cleanup.min_chapter_chars", 40); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if n := ms.Count(CollectionSetting); n != 2 {
		t.Errorf("documents = %d, want one per key", n)
	}

	e, err := s.Get(ctx, "cleanup.locale")
	if err != nil || e == nil {
		t.Fatalf("Get() = %v, %v", e, err)
	}
	if e.Value != "en" || !e.Overridden || e.Description == "" {
		t.Errorf("entry = %+v", e)
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// JSON numbers come back as float64.
	if len(all) != 2 || all["cleanup.min_chapter_chars"].Value != float64(40) {
		t.Errorf("GetAll() = %+v", all)
	}

	if err := ResetToDefault(ctx, s, "cleanup.locale"); err != nil {
		t.Fatal(err)
	}
	if e, _ := s.Get(ctx, "cleanup.locale"); e != nil {
		t.Errorf("override survived reset: %+v", e)
	}
	if err := s.Delete(ctx, "cleanup.locale"); err != nil {
		t.Errorf("deleting a missing override error = %v", err)
	}
}

func TestDefraStore_SetErrors(t *testing.T) {
	s := NewStore(store.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value any
		want  error
	}{
		{"unknown key", "server.port", "1", ErrUnknownKey},
		{"bad key", "bad key", "1", ErrInvalidKey},
		{"wrong type", "cleanup.preserve_archaic", "yes", ErrInvalidValue},
		{"fractional int", "cleanup.min_chapter_chars", 1.5, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Set(ctx, tt.key, tt.value); !errors.Is(err, tt.want) {
				t.Errorf("Set() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	base := DefaultConfig()
	overrides := map[string]Entry{
		"cleanup.locale":               {Value: "fr"},
		"cleanup.preserve_archaic":     {Value: true},
		"cleanup.confidence_threshold": {Value: 0.8},
		"ai.provider":                  {Value: "mock"},
	}

	got, err := Apply(base, overrides)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got.Cleanup.Locale != "fr" || !got.Cleanup.PreserveArchaic || got.Cleanup.ConfidenceThreshold != 0.8 || got.AI.Provider != "mock" {
		t.Errorf("Apply() = %+v", got)
	}
	if base.Cleanup.Locale != "en" {
		t.Error("Apply() modified its input")
	}

	if _, err := Apply(base, map[string]Entry{"cleanup.locale": {Value: "de"}}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("invalid locale error = %v, want ErrInvalidValue", err)
	}

	entries, err := Entries(base, overrides)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(Keys()) {
		t.Fatalf("entries = %d, want %d", len(entries), len(Keys()))
	}
	for i, e := range entries {
		if i > 0 && entries[i-1].Key >= e.Key {
			t.Errorf("entries not sorted at %s", e.Key)
		}
		_, want := overrides[e.Key]
		if e.Overridden != want {
			t.Errorf("%s overridden = %v", e.Key, e.Overridden)
		}
	}

	def, err := GetDefault(base, "cleanup.min_chapter_chars")
	if err != nil || def.Value != 80 {
		t.Errorf("GetDefault() = %+v, %v", def, err)
	}
}
