package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/jobs/ai_revise"
	"github.com/jackzampolin/folio/internal/jobs/cleanup_book"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/review"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// ServicesConfig holds what NewServices wires together.
type ServicesConfig struct {
	Store  store.Store
	Blobs  blob.Store
	Health svcctx.HealthChecker

	// Base returns the file config. Defaults to config.DefaultConfig.
	Base func() *config.Config

	// Corrector overrides the configured provider. Tests use it.
	Corrector providers.Corrector

	Home   *home.Dir
	Logger *slog.Logger
}

// fixedCorrector satisfies ai_revise.CorrectorSource with one Corrector.
type fixedCorrector struct{ c providers.Corrector }

func (f fixedCorrector) Corrector() (providers.Corrector, error) { return f.c, nil }

// NewServices builds the service graph on top of a record store and a blob
// store. Stored settings are loaded once here; later changes flow through
// the returned Runtime.
func NewServices(ctx context.Context, cfg ServicesConfig) (*svcctx.Services, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.Base
	if base == nil {
		base = config.DefaultConfig
	}

	runtime, err := config.NewRuntime(ctx, base, config.NewStore(cfg.Store), logger)
	if err != nil {
		return nil, err
	}
	eff := runtime.Get()

	registry := providers.NewRegistry(eff.ProviderConfig(), logger)
	runtime.OnChange(func(c *config.Config) {
		registry.Reload(c.ProviderConfig())
	})
	var source ai_revise.CorrectorSource = registry
	if cfg.Corrector != nil {
		source = fixedCorrector{c: cfg.Corrector}
	}

	revs := revision.NewService(revision.Config{Store: cfg.Store, Blobs: cfg.Blobs, Logger: logger})
	manager := jobs.NewManager(cfg.Store, logger)
	active := jobs.NewActiveJobs(cfg.Store, logger)

	return &svcctx.Services{
		Store:     cfg.Store,
		Health:    cfg.Health,
		Revisions: revs,
		Review:    review.NewService(review.Config{Revisions: revs, Guard: active, Logger: logger}),
		Jobs:      manager,
		Active:    active,
		Cleanup: cleanup_book.New(cleanup_book.Config{
			Revisions: revs,
			Jobs:      manager,
			Active:    active,
			Logger:    logger,
			Defaults:  runtime.CleanupDefaults,
		}),
		Reviser: ai_revise.New(ai_revise.Config{
			Revisions:   revs,
			Jobs:        manager,
			Active:      active,
			Providers:   source,
			Logger:      logger,
			Concurrency: eff.AI.Concurrency,
		}),
		Pool: jobs.NewPool(jobs.PoolConfig{
			Name:        "folio",
			Logger:      logger,
			WorkerCount: eff.Server.Workers,
		}),
		Registry: registry,
		Runtime:  runtime,
		Logger:   logger,
		Home:     cfg.Home,
	}, nil
}

// Recover re-queues jobs a previous process left running. A cleanup job
// continues from its last checkpoint under its own id; an AI revision job
// starts over, since it writes nothing until it finishes.
func Recover(ctx context.Context, s *svcctx.Services) (int, error) {
	records, err := s.Jobs.List(ctx, jobs.ListFilter{Limit: 1000})
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	n := 0
	for _, rec := range records {
		if rec.Stage.IsTerminal() {
			continue
		}
		var job jobs.Job
		switch rec.Kind {
		case cleanup_book.JobType:
			if _, err := s.Cleanup.Resume(ctx, rec.ID); err != nil {
				s.Logger.Warn("cannot recover job", "job_id", rec.ID, "error", err)
				continue
			}
			job = s.Cleanup.Job(rec.ID)
		case ai_revise.JobType:
			job = s.Reviser.Job(rec.ID)
		default:
			continue
		}
		if err := s.Pool.Submit(job); err != nil {
			if errors.Is(err, jobs.ErrQueueFull) {
				return n, err
			}
			s.Logger.Warn("cannot queue recovered job", "job_id", rec.ID, "error", err)
			continue
		}
		s.Logger.Info("recovered job", "job_id", rec.ID, "kind", rec.Kind, "stage", rec.Stage)
		n++
	}
	return n, nil
}
