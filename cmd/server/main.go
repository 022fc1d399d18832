package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/database"
	"github.com/stemsi/exstem-papers/internal/events"
	"github.com/stemsi/exstem-papers/internal/handler"
	"github.com/stemsi/exstem-papers/internal/logger"
	"github.com/stemsi/exstem-papers/internal/middleware"
	"github.com/stemsi/exstem-papers/internal/observability"
	"github.com/stemsi/exstem-papers/internal/questionbank"
	"github.com/stemsi/exstem-papers/internal/repository"
	"github.com/stemsi/exstem-papers/internal/router"
	"github.com/stemsi/exstem-papers/internal/service"
	"github.com/stemsi/exstem-papers/internal/validator"
	"github.com/stemsi/exstem-papers/internal/worker"
)

// connections holds the optional external clients; unused ones stay nil.
type connections struct {
	pool   *pgxpool.Pool
	sqlite *sql.DB
	rdb    *redis.Client
	nc     *nats.Conn
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageBackend).
		Str("events", cfg.EventsDriver).
		Msg("Starting ExStem Papers")

	observability.RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Load Question Library ─────────────────────────────────────────
	library, err := questionbank.Load(ctx, cfg.LibraryDir, log)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.LibraryDir).Msg("Failed to load question library")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	if err := validator.Setup(func(id string) bool {
		_, ok := library.Difficulty(id)
		return ok
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up validator")
	}

	// ─── Connect External Services ─────────────────────────────────────
	conns, err := connect(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect external services")
	}
	defer conns.close()

	// ─── Initialize Repository ─────────────────────────────────────────
	repo, err := openRepository(ctx, cfg, conns, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open repository")
	}

	// ─── Events ────────────────────────────────────────────────────────
	var (
		publisher  events.Publisher = events.NoopPublisher{}
		subscriber events.Subscriber
	)
	switch cfg.EventsDriver {
	case config.EventsRedis:
		publisher = events.NewRedisPublisher(conns.rdb)
		subscriber = events.NewRedisSubscriber(conns.rdb, log)
	case config.EventsNATS:
		publisher = events.NewNATSPublisher(conns.nc)
		subscriber = events.NewNATSSubscriber(conns.nc, log)
	}
	emitter := events.NewEmitter(publisher, cfg.AuditHashKey, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	settings := config.NewSettings(cfg.Paper, cfg.SettingsFile)
	paperService := service.NewPaperService(repo, library, emitter, settings, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Paper:      handler.NewPaperHandler(paperService, log),
		AdminPaper: handler.NewAdminPaperHandler(paperService, log),
		Library:    handler.NewLibraryHandler(library, log),
		Settings:   handler.NewSettingsHandler(settings, log),
		WS:         handler.NewWSHandler(paperService, log, cfg.AllowedOrigins),
		Monitor:    handler.NewMonitorHandler(paperService, subscriber, log),
		System:     handler.NewSystemHandler(conns.rdb, conns.healthChecks(), log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	flushWorker := worker.NewFlushWorker(repo, cfg.FlushInterval, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		flushWorker.Start(workerCtx)
	}()

	if eventWorker, err := newEventWorker(cfg, conns, repo, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to start event worker")
	} else if eventWorker != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			eventWorker.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	var createLimiter middleware.Limiter
	if cfg.CreatePaperPerMinute > 0 {
		if conns.rdb != nil {
			createLimiter = middleware.NewRedisLimiter(conns.rdb, cfg.CreatePaperPerMinute, time.Minute)
		} else {
			createLimiter = middleware.NewLocalLimiter(cfg.CreatePaperPerMinute, time.Minute)
		}
	}
	r := router.SetupRouter(authService, handlers, createLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for them to drain.
	workerCancel()
	workers.Wait()

	// 3. Final flush of buffered papers.
	if err := repo.PersistAll(context.Background()); err != nil {
		log.Error().Err(err).Msg("Final persist failed")
	}
	if err := repo.Close(); err != nil {
		log.Error().Err(err).Msg("Repository close failed")
	}

	log.Info().Msg("Shutdown complete")
}

func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*connections, error) {
	conns := &connections{}
	var err error

	if cfg.StorageBackend == config.BackendPostgres {
		if err := database.MigrateUp(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
		if conns.pool, err = database.NewPostgresPool(ctx, cfg, log); err != nil {
			return nil, err
		}
	}
	if cfg.StorageBackend == config.BackendSQLite {
		if conns.sqlite, err = database.OpenSQLite(ctx, cfg.SQLiteDSN, log); err != nil {
			conns.close()
			return nil, err
		}
	}
	if conns.rdb, err = database.NewRedisClient(ctx, cfg, log); err != nil {
		conns.close()
		return nil, err
	}
	if cfg.EventsDriver == config.EventsNATS {
		if conns.nc, err = database.NewNATSConn(cfg, log); err != nil {
			conns.close()
			return nil, err
		}
	}
	return conns, nil
}

func (c *connections) close() {
	if c.nc != nil {
		c.nc.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	if c.sqlite != nil {
		_ = c.sqlite.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}

func (c *connections) healthChecks() map[string]handler.Pinger {
	checks := make(map[string]handler.Pinger)
	if c.pool != nil {
		checks["postgres"] = handler.PingFunc(c.pool.Ping)
	}
	if c.sqlite != nil {
		checks["sqlite"] = handler.PingFunc(c.sqlite.PingContext)
	}
	if c.rdb != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return c.rdb.Ping(ctx).Err()
		})
	}
	if c.nc != nil {
		checks["nats"] = handler.PingFunc(func(context.Context) error {
			if !c.nc.IsConnected() {
				return errors.New("nats not connected")
			}
			return nil
		})
	}
	return checks
}

func openRepository(ctx context.Context, cfg *config.Config, conns *connections, log zerolog.Logger) (repository.Repository, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		return repository.NewPostgresRepository(conns.pool), nil
	case config.BackendSQLite:
		return repository.NewSQLiteRepository(ctx, conns.sqlite)
	case config.BackendRedis:
		return repository.NewRedisRepository(conns.rdb), nil
	default:
		return repository.NewJSONRepository(cfg.DataDir, log)
	}
}

// newEventWorker returns nil when no event transport is configured.
func newEventWorker(cfg *config.Config, conns *connections, repo repository.Repository, log zerolog.Logger) (*worker.EventWorker, error) {
	var sink events.Sink = events.NewRepositorySink(repo)
	if conns.pool != nil {
		sink = events.NewPostgresSink(conns.pool)
	}

	switch cfg.EventsDriver {
	case config.EventsRedis:
		return worker.NewRedisEventWorker(conns.rdb, sink, log), nil
	case config.EventsNATS:
		return worker.NewNATSEventWorker(conns.nc, sink, log)
	default:
		return nil, nil
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
