/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server assembles the process: database, services, supervisor, and
// the HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/prevue/internal/api"
	"github.com/friendsincode/prevue/internal/auth"
	"github.com/friendsincode/prevue/internal/cache"
	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/config"
	"github.com/friendsincode/prevue/internal/crypto"
	"github.com/friendsincode/prevue/internal/db"
	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/iptv"
	"github.com/friendsincode/prevue/internal/library"
	"github.com/friendsincode/prevue/internal/materializer"
	"github.com/friendsincode/prevue/internal/presets"
	"github.com/friendsincode/prevue/internal/scheduler"
	"github.com/friendsincode/prevue/internal/sessions"
	"github.com/friendsincode/prevue/internal/store"
	"github.com/friendsincode/prevue/internal/stream"
	"github.com/friendsincode/prevue/internal/supervisor"
	"github.com/friendsincode/prevue/internal/telemetry"
	"github.com/friendsincode/prevue/internal/tuner"
	"github.com/friendsincode/prevue/internal/upstream"
	"github.com/friendsincode/prevue/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	store      *store.Store
	cache      *cache.Cache
	index      *library.Index
	bus        *events.Bus
	api        *api.API
	supervisor *supervisor.Supervisor
	tracer     *telemetry.TracerProvider
	checker    *version.Checker

	bgCancel context.CancelFunc
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(timeoutExceptStreams(60 * time.Second))
	router.Use(managementRateLimit())

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}
	if err := srv.initDependencies(); err != nil {
		return nil, err
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv.router,
		// Header deadline protects against slowloris; read/write deadlines
		// stay off because HLS responses can legitimately run long.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		s.logger.Warn().Err(err).Msg("database metrics callbacks not registered")
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })
	s.store = store.New(database, s.logger)

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	s.cache = cache.New(cacheCfg, s.logger)
	s.DeferClose(func() error { return s.cache.Close() })

	tracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "prevue",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.tracer = tracer
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracer.Shutdown(ctx)
	})

	var encryptor *crypto.Encryptor
	if s.cfg.DataEncryptionKey != "" {
		encryptor, err = crypto.NewEncryptor(s.cfg.DataEncryptionKey)
	} else {
		encryptor, err = crypto.NewEncryptorFromMachine()
	}
	if err != nil {
		return fmt.Errorf("init encryptor: %w", err)
	}

	catalog, err := presets.Load()
	if err != nil {
		return fmt.Errorf("load preset catalog: %w", err)
	}

	s.index = library.NewIndex()
	aligner := clock.NewAligner(s.cfg.ScheduleDayStartHour, s.cfg.ScheduleBlockHours)
	registry := sessions.NewRegistry(s.logger)
	sched := scheduler.New(s.store, s.index, aligner, s.bus, s.logger)
	mat := materializer.New(s.store, s.index, catalog, nil, s.bus, s.logger)

	s.supervisor = supervisor.New(s.cfg, s.store, s.index, encryptor, sched, mat, registry, s.bus, s.logger)
	mat.SetContainerSource(supervisorContainers{s.supervisor})

	proxy := stream.NewProxy(s.supervisor.Client, registry, s.logger)

	s.api = api.New(api.Deps{
		Store:        s.store,
		Index:        s.index,
		Gate:         auth.NewGate(s.cfg.APIKey),
		Encryptor:    encryptor,
		Runtime:      s.supervisor,
		Materializer: mat,
		Scheduler:    sched,
		Tuner:        tuner.New(s.store, aligner),
		Proxy:        proxy,
		Sessions:     registry,
		IPTV:         iptv.New(s.store, aligner, s.cache, s.logger),
		Cache:        s.cache,
		Bus:          s.bus,
		Aligner:      aligner,
		AllowPrivate: s.cfg.AllowPrivateURLs,
		BaseURL:      s.cfg.BaseURL,
		Logger:       s.logger,
	})

	s.checker = version.NewChecker(s.logger)
	return nil
}

// supervisorContainers adapts the supervisor's current client to the
// materializer's container source. The client changes when servers are
// activated, so resolution happens per call.
type supervisorContainers struct {
	sup *supervisor.Supervisor
}

func (c supervisorContainers) GetCollections(ctx context.Context) ([]upstream.Container, error) {
	client := c.sup.Client()
	if client == nil {
		return nil, stream.ErrNoUpstream
	}
	return client.GetCollections(ctx)
}

func (c supervisorContainers) GetPlaylists(ctx context.Context) ([]upstream.Container, error) {
	client := c.sup.Client()
	if client == nil {
		return nil, stream.ErrNoUpstream
	}
	return client.GetPlaylists(ctx)
}

func (c supervisorContainers) GetContainerItemIDs(ctx context.Context, containerID string) ([]string, error) {
	client := c.sup.Client()
	if client == nil {
		return nil, stream.ErrNoUpstream
	}
	return client.GetContainerItemIDs(ctx, containerID)
}

func (s *Server) configureRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

// Start launches the supervisor and background workers.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.supervisor.Start(ctx)
	s.checker.Start(ctx)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close stops background work and releases owned resources in reverse order.
func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgCancel = nil
	}
	s.checker.Stop()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
