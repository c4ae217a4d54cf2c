package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"arena-rooms/server/internal/config"
	"arena-rooms/server/internal/journal"
	journalsqlite "arena-rooms/server/internal/journal/sqlite"
	"arena-rooms/server/internal/matchmaking"
	servernet "arena-rooms/server/internal/net"
	"arena-rooms/server/internal/net/intake"
	"arena-rooms/server/internal/net/ws"
	"arena-rooms/server/internal/observability"
	"arena-rooms/server/internal/sched"
	"arena-rooms/server/internal/telemetry"
	"arena-rooms/server/logging"
	loggingsinks "arena-rooms/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Logger telemetry.Logger

	// RoomSize overrides the configured room size when positive.
	RoomSize int
}

// Server is the assembled process: loop, coordinator and HTTP surface.
type Server struct {
	cfg         config.Config
	logger      telemetry.Logger
	router      *logging.Router
	tracing     *observability.Tracing
	loop        *sched.Loop
	journal     *journal.Journal
	coordinator *matchmaking.Coordinator
	sockets     *ws.Handler
	http        *http.Server
}

// Run loads configuration from the environment and serves until ctx ends.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.RoomSize > 0 {
		cfg.Session.RoomSize = opts.RoomSize
	}
	srv, err := New(ctx, cfg, opts.Logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// New builds every component without starting any goroutine other than the
// logging router's workers.
func New(ctx context.Context, cfg config.Config, logger telemetry.Logger) (*Server, error) {
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	fallbackLogger := log.Default()
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	logConfig := cfg.Router()
	sinks := map[string]logging.Sink{
		"console": loggingsinks.NewConsole(os.Stdout),
	}
	if logConfig.HasSink("json") {
		if logConfig.JSON.FilePath == "" {
			return nil, errors.New("json log sink enabled without ARENA_LOG_JSON_PATH")
		}
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		sinks["json"] = loggingsinks.NewJSON(file, logConfig.JSON.FlushInterval)
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	metrics := telemetry.WrapMetrics(router.Metrics())

	tracing, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		_ = router.Close(context.Background())
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	matches := journal.New(cfg.Journal.Capacity, cfg.Journal.MaxAge)
	matches.AttachTelemetry(journalTelemetry{metrics: metrics})
	if cfg.Journal.SQLitePath != "" {
		store, err := journalsqlite.Open(cfg.Journal.SQLitePath)
		if err != nil {
			_ = tracing.Shutdown(context.Background())
			_ = router.Close(context.Background())
			return nil, fmt.Errorf("open match store: %w", err)
		}
		matches.AttachStore(store)
	}

	loop := sched.NewLoop(cfg.SchedLoop(), logging.SystemClock{}, sched.LoopHooks{
		OnQueueReject: func() { metrics.Add(telemetry.MetricQueueRejects, 1) },
	}, logger)

	coordinator := matchmaking.New(cfg.Matchmaking(), matchmaking.Deps{
		Scheduler: loop,
		Logger:    logger,
		Metrics:   metrics,
		Publisher: router,
		Journal:   matches,
	})

	dispatcher, err := intake.NewDispatcher(intake.Config{
		Loop:        loop,
		Coordinator: coordinator,
		Tracer:      tracing.Tracer("arena-rooms/intake"),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	sockets := ws.NewHandler(dispatcher, ws.HandlerConfig{
		Logger:         fallbackLogger,
		MaxConnections: cfg.MaxConnections,
	})

	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Logger:    fallbackLogger,
		WebSocket: sockets.Handle,
		Snapshot: func(ctx context.Context) (matchmaking.Snapshot, error) {
			var snapshot matchmaking.Snapshot
			err := loop.Call(ctx, func() { snapshot = coordinator.Snapshot() })
			return snapshot, err
		},
		Sessions: sockets.Registry().Len,
		Stats:    router.Stats,
		Matches:  matches,
		TickRate: cfg.Loop.TickRate,
	})

	return &Server{
		cfg:         cfg,
		logger:      logger,
		router:      router,
		tracing:     tracing,
		loop:        loop,
		journal:     matches,
		coordinator: coordinator,
		sockets:     sockets,
		http:        &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

// Handler exposes the HTTP surface.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve runs the loop and the HTTP server until ctx ends or either fails,
// then releases everything New acquired.
func (s *Server) Serve(ctx context.Context) error {
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop.Run(gctx)
	})
	g.Go(func() error {
		s.logger.Printf("server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.sockets.Registry().CloseAll("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.tracing.Shutdown(ctx); err != nil {
		s.logger.Printf("failed to flush traces: %v", err)
	}
	if err := s.journal.Close(); err != nil {
		s.logger.Printf("failed to close match journal: %v", err)
	}
	if err := s.router.Close(ctx); err != nil {
		s.logger.Printf("failed to close logging router: %v", err)
	}
}

type journalTelemetry struct {
	metrics telemetry.Metrics
}

func (t journalTelemetry) RecordJournalDrop(metric string) {
	t.metrics.Add(metric, 1)
}
