// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/jobs/ai_revise"
	"github.com/jackzampolin/folio/internal/jobs/cleanup_book"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/review"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/store"
)

// HealthChecker reports whether the record store is reachable.
// *defra.Client satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store     store.Store
	Health    HealthChecker
	Revisions *revision.Service
	Review    *review.Service
	Jobs      *jobs.Manager
	Active    *jobs.ActiveJobs
	Cleanup   *cleanup_book.Orchestrator
	Reviser   *ai_revise.Reviser
	Pool      *jobs.Pool
	Registry  *providers.Registry
	Runtime   *config.Runtime
	Logger    *slog.Logger
	Home      *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// HealthFrom extracts the store health checker from context.
func HealthFrom(ctx context.Context) HealthChecker {
	if s := ServicesFrom(ctx); s != nil {
		return s.Health
	}
	return nil
}

// RevisionsFrom extracts the revision service from context.
func RevisionsFrom(ctx context.Context) *revision.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Revisions
	}
	return nil
}

// ReviewFrom extracts the review service from context.
func ReviewFrom(ctx context.Context) *review.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Review
	}
	return nil
}

// JobManagerFrom extracts the job manager from context.
func JobManagerFrom(ctx context.Context) *jobs.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Jobs
	}
	return nil
}

// CleanupFrom extracts the cleanup orchestrator from context.
func CleanupFrom(ctx context.Context) *cleanup_book.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Cleanup
	}
	return nil
}

// ReviserFrom extracts the AI reviser from context.
func ReviserFrom(ctx context.Context) *ai_revise.Reviser {
	if s := ServicesFrom(ctx); s != nil {
		return s.Reviser
	}
	return nil
}

// PoolFrom extracts the worker pool from context.
func PoolFrom(ctx context.Context) *jobs.Pool {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pool
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// RuntimeFrom extracts the effective config from context.
func RuntimeFrom(ctx context.Context) *config.Runtime {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runtime
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
