package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jackzampolin/folio/internal/cleanup"
)

// effective is one validated view of the config.
type effective struct {
	cfg       *Config
	overrides map[string]Entry
	cleanup   cleanup.Config
}

// Runtime layers stored overrides on top of the file config. It is
// refreshed when the file changes or an override is written, and notifies
// its callbacks with the merged result.
type Runtime struct {
	base   func() *Config
	store  Store
	logger *slog.Logger

	current atomic.Pointer[effective]

	mu        sync.Mutex
	callbacks []func(*Config)
}

// NewRuntime loads the overrides in store and applies them to base().
// A nil store means no overrides.
func NewRuntime(ctx context.Context, base func() *Config, store Store, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{base: base, store: store, logger: logger}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) load(ctx context.Context) error {
	overrides := map[string]Entry{}
	if r.store != nil {
		var err error
		overrides, err = r.store.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
	}
	return r.apply(overrides)
}

func (r *Runtime) apply(overrides map[string]Entry) error {
	cfg, err := Apply(r.base(), overrides)
	if err != nil {
		return err
	}
	c, err := cfg.CleanupDefaults()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	r.current.Store(&effective{cfg: cfg, overrides: overrides, cleanup: c})
	return nil
}

// Get returns the effective config.
func (r *Runtime) Get() *Config { return r.current.Load().cfg }

// CleanupDefaults returns the cleanup config new jobs start with.
func (r *Runtime) CleanupDefaults() cleanup.Config { return r.current.Load().cleanup }

// OnChange registers a callback run after each successful refresh.
func (r *Runtime) OnChange(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Refresh re-reads overrides and the base config. On error the previous
// view stays in effect.
func (r *Runtime) Refresh(ctx context.Context) error {
	if err := r.load(ctx); err != nil {
		r.logger.Warn("config refresh failed, keeping previous settings", "error", err)
		return err
	}
	r.notify()
	return nil
}

func (r *Runtime) notify() {
	cfg := r.Get()
	r.mu.Lock()
	callbacks := append([]func(*Config){}, r.callbacks...)
	r.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}

// Entries lists every setting with its effective value.
func (r *Runtime) Entries() []Entry {
	cur := r.current.Load()
	entries, err := Entries(r.base(), cur.overrides)
	if err != nil {
		// The base changed under a stale override; report the last good view.
		entries, _ = Entries(cur.cfg, nil)
	}
	return entries
}

// Entry returns one setting with its effective value.
func (r *Runtime) Entry(key string) (*Entry, error) {
	if _, err := lookup(key); err != nil {
		return nil, err
	}
	for _, e := range r.Entries() {
		if e.Key == key {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Set validates value against the whole effective config, stores it and
// refreshes.
func (r *Runtime) Set(ctx context.Context, key string, value any) (*Entry, error) {
	if r.store == nil {
		return nil, fmt.Errorf("settings store not configured")
	}
	s, err := lookup(key)
	if err != nil {
		return nil, err
	}
	if err := s.set(DefaultConfig(), value); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	cur := r.current.Load()
	next := make(map[string]Entry, len(cur.overrides)+1)
	for k, v := range cur.overrides {
		next[k] = v
	}
	next[key] = Entry{Key: key, Value: value}
	if _, err := Apply(r.base(), next); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, value); err != nil {
		return nil, err
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	r.logger.Info("setting updated", "key", key)
	return r.Entry(key)
}

// Reset removes the override for key and refreshes.
func (r *Runtime) Reset(ctx context.Context, key string) (*Entry, error) {
	if r.store == nil {
		return nil, fmt.Errorf("settings store not configured")
	}
	if err := ResetToDefault(ctx, r.store, key); err != nil {
		return nil, err
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	r.logger.Info("setting reset", "key", key)
	return r.Entry(key)
}
