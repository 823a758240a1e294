package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/schema"
	"github.com/jackzampolin/folio/internal/server/endpoints"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// Server is the main folio HTTP server.
// Unless an external DefraDB URL is configured it manages the DefraDB
// container lifecycle, starting it on server start and stopping it on
// server shutdown.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	blobs        *blob.SQLiteStore
	configMgr    *config.Manager
	home         *home.Dir
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services   *svcctx.Services
	stopPool   context.CancelFunc
	poolDone   chan struct{}
	servicesMu sync.RWMutex

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host and Port override the config file's server section when set.
	Host string
	Port string

	// Home is the folio home directory. Defaults to ~/.folio.
	Home *home.Dir

	// ConfigManager provides configuration with hot-reload support.
	// Defaults are used when nil.
	ConfigManager *config.Manager

	// DefraConfig overrides container settings from the config file.
	DefraConfig defra.DockerConfig

	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}
	fileCfg := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		fileCfg = cfg.ConfigManager.Get()
	}
	host, port := fileCfg.Server.Host, fileCfg.Server.Port
	if cfg.Host != "" {
		host = cfg.Host
	}
	if cfg.Port != "" {
		port = cfg.Port
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	if fileCfg.Defra.URL == "" {
		dc := cfg.DefraConfig
		if dc.ContainerName == "" {
			dc.ContainerName = fileCfg.Defra.ContainerName
		}
		if dc.Image == "" {
			dc.Image = fileCfg.Defra.Image
		}
		if dc.HostPort == "" {
			dc.HostPort = fileCfg.Defra.Port
		}
		if dc.DataPath == "" {
			dc.DataPath = cfg.Home.DefraPath(fileCfg.Defra.DataPath)
		}
		mgr, err := defra.NewDockerManager(dc)
		if err != nil {
			return nil, fmt.Errorf("failed to create defra manager: %w", err)
		}
		s.defraManager = mgr
	} else {
		s.defraClient = defra.NewClient(fileCfg.Defra.URL)
	}

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DefraManager: s.defraManager}) {
		s.endpointRegistry.Register(ep)
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(host, port),
		Handler:      NewHandler(s.endpointRegistry, s.Services, cfg.Logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts DefraDB, the job pool and the HTTP server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.startBackend(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

func (s *Server) startBackend(ctx context.Context) error {
	if s.defraManager != nil {
		s.logger.Info("starting DefraDB")
		if err := s.defraManager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start DefraDB: %w", err)
		}
		s.defraClient = defra.NewClient(s.defraManager.URL())
	}

	if err := s.defraClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", s.defraClient.URL())

	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, s.defraClient, s.logger); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	base := config.DefaultConfig
	if s.configMgr != nil {
		base = s.configMgr.Get
	}
	blobPath := s.home.BlobPath(base().Blob.Path)
	blobs, err := blob.OpenSQLite(blobPath)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	s.blobs = blobs
	s.logger.Info("blob store open", "path", blobPath)

	services, err := NewServices(ctx, ServicesConfig{
		Store:  s.defraClient,
		Blobs:  blobs,
		Health: s.defraClient,
		Base:   base,
		Home:   s.home,
		Logger: s.logger,
	})
	if err != nil {
		return err
	}
	if s.configMgr != nil {
		s.configMgr.OnChange(func(*config.Config) {
			if err := services.Runtime.Refresh(context.Background()); err == nil {
				s.logger.Info("configuration reloaded")
			}
		})
	}

	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopPool = cancel
	s.poolDone = make(chan struct{})
	go func() {
		defer close(s.poolDone)
		services.Pool.Start(poolCtx)
	}()

	s.servicesMu.Lock()
	s.services = services
	s.servicesMu.Unlock()

	if n, err := Recover(ctx, services); err != nil {
		s.logger.Warn("job recovery incomplete", "recovered", n, "error", err)
	} else if n > 0 {
		s.logger.Info("recovered interrupted jobs", "count", n)
	}
	return nil
}

// shutdown performs graceful shutdown of the HTTP server, the job pool and
// DefraDB.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.stopPool != nil {
		s.stopPool()
		select {
		case <-s.poolDone:
		case <-shutdownCtx.Done():
			s.logger.Warn("job pool did not stop in time")
		}
	}

	if s.blobs != nil {
		if err := s.blobs.Close(); err != nil {
			s.logger.Error("blob store close error", "error", err)
		}
	}

	if s.defraManager != nil {
		s.logger.Info("stopping DefraDB")
		if err := s.defraManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("DefraDB stop error", "error", err)
		}
		if err := s.defraManager.Close(); err != nil {
			s.logger.Error("DefraDB manager close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Services returns the service graph, or nil before the backend is up.
func (s *Server) Services() *svcctx.Services {
	s.servicesMu.RLock()
	defer s.servicesMu.RUnlock()
	return s.services
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// NewHandler routes every endpoint in registry. Each request's context
// carries the services current returns; endpoints that require
// initialization answer 503 while current returns nil.
func NewHandler(registry *api.Registry, current func() *svcctx.Services, logger *slog.Logger) http.Handler {
	requireInit := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if current() == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"server not fully initialized"}`))
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, requireInit)

	withServices := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := current(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
	return withRequestLog(logger, withServices)
}
