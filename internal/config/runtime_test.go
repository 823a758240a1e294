package config

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/folio/internal/store"
)

func TestRuntime(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	ms.UniqueIndex(CollectionSetting, "name")
	settings := NewStore(ms)
	if err := settings.Set(ctx, "cleanup.min_chapter_chars", 40); err != nil {
		t.Fatal(err)
	}

	base := DefaultConfig()
	rt, err := NewRuntime(ctx, func() *Config { return base }, settings, nil)
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}
	if rt.CleanupDefaults().MinChapterChars != 40 {
		t.Errorf("stored override not applied: %d", rt.CleanupDefaults().MinChapterChars)
	}

	var seen []string
	rt.OnChange(func(c *Config) { seen = append(seen, c.Cleanup.Locale) })

	e, err := rt.Set(ctx, "cleanup.locale", "fr")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if e.Value != "fr" || !e.Overridden {
		t.Errorf("entry = %+v", e)
	}
	if rt.Get().Cleanup.Locale != "fr" || rt.CleanupDefaults().Locale != "fr" {
		t.Error("effective config not refreshed")
	}

	if _, err := rt.Set(ctx, "cleanup.locale", "de"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("invalid locale error = %v, want ErrInvalidValue", err)
	}
	if rt.Get().Cleanup.Locale != "fr" {
		t.Error("rejected value changed the effective config")
	}

	e, err = rt.Reset(ctx, "cleanup.locale")
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if e.Value != "en" || e.Overridden {
		t.Errorf("after reset entry = %+v", e)
	}
	if len(seen) != 2 || seen[0] != "fr" || seen[1] != "en" {
		t.Errorf("callbacks saw %v", seen)
	}

	// A file change is picked up on refresh while overrides stay.
	base = DefaultConfig()
	base.AI.Provider = "mock"
	if err := rt.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if rt.Get().AI.Provider != "mock" || rt.Get().Cleanup.MinChapterChars != 40 {
		t.Errorf("refreshed config = %+v", rt.Get().Cleanup)
	}

	if _, err := rt.Entry("server.port"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Entry(server.port) error = %v", err)
	}
}

func TestRuntime_NoStore(t *testing.T) {
	rt, err := NewRuntime(context.Background(), DefaultConfig, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rt.Entries()) != len(Keys()) {
		t.Errorf("entries = %d", len(rt.Entries()))
	}
	if _, err := rt.Set(context.Background(), "cleanup.locale", "fr"); err == nil {
		t.Error("Set() without a store should fail")
	}
}
