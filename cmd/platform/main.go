package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/grievancegenie/platform/internal/audit"
	complaintapi "github.com/grievancegenie/platform/internal/complaint/api"
	"github.com/grievancegenie/platform/internal/complaint/domain"
	complaintinfra "github.com/grievancegenie/platform/internal/complaint/infrastructure"
	"github.com/grievancegenie/platform/internal/complaint/service"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/notification"
	"github.com/grievancegenie/platform/internal/rewards"
	"github.com/grievancegenie/platform/internal/shared/auth"
	"github.com/grievancegenie/platform/internal/shared/config"
	"github.com/grievancegenie/platform/internal/shared/database"
	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/logging"
	"github.com/grievancegenie/platform/internal/shared/metrics"
	secmiddleware "github.com/grievancegenie/platform/internal/shared/middleware"
	"github.com/grievancegenie/platform/internal/verification"
	"github.com/grievancegenie/platform/internal/workforce"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Log    *slog.Logger
	DB     *database.DB
	Bus    events.EventBus
	Redis  *redis.Client

	Service *service.Service
	Sweeper *service.Sweeper
	Workers *workforce.Registry
	Rewards *rewards.Ledger
	Audit   *audit.Trail
	Stream  *complaintapi.Stream
	Notify  *notification.Service
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	if err := run(cfg, log); err != nil {
		log.Error("platform stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if app.Notify != nil {
		if err := app.Notify.Start(gctx); err != nil {
			return err
		}
		defer app.Notify.Stop()
	}
	g.Go(func() error {
		log.Info("http server listening",
			slog.String("addr", srv.Addr),
			slog.String("env", cfg.Server.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.Sweeper.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}

	var (
		repo       domain.Repository
		voteStore  verification.Store
		pointStore rewards.Store
		auditStore audit.Store
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.DB = db
		if err := database.Migrate(ctx, db.Pool, log); err != nil {
			app.Close()
			return nil, err
		}
		repo = complaintinfra.NewPostgresRepository(db.Pool)
		voteStore = verification.NewPostgresStore(db.Pool)
		pointStore = rewards.NewPostgresStore(db.Pool)
		auditStore = audit.NewPostgresStore(db.Pool)
		log.Info("postgres storage enabled", slog.String("host", cfg.Database.Host))
	} else {
		repo = complaintinfra.NewMemoryRepository()
		voteStore = verification.NewMemoryStore()
		pointStore = rewards.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		log.Warn("database disabled, state is kept in memory")
	}

	bus, transport, err := events.NewEventBus(ctx, cfg.KurrentDB, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Bus = bus
	log.Info("event bus ready", slog.String("transport", transport))

	var index evidence.DuplicateIndex = evidence.NewMemoryIndex()
	if cfg.Redis.Enabled {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisIndex := evidence.NewRedisIndex(app.Redis, cfg.Redis.Key)
		if err := redisIndex.Ping(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		index = redisIndex
		log.Info("redis duplicate index enabled", slog.String("addr", cfg.Redis.Addr))
	}

	validator := evidence.NewValidator(log,
		evidence.PolicyFromConfig(cfg.Evidence, cfg.Scorer),
		evidence.NewHTTPScorer(cfg.Scorer),
		evidence.NewExifExtractor(),
		evidence.NewPerceptionHasher(),
		index,
	)

	app.Workers = workforce.NewRegistry(log)
	app.Rewards = rewards.NewLedger(log, pointStore)
	app.Service = service.New(log, service.Deps{
		Repo:      repo,
		Validator: validator,
		Votes:     verification.NewLedger(log, voteStore),
		Consensus: verification.PolicyFromConfig(cfg.Verification),
		Rewards:   app.Rewards,
		Workers:   app.Workers,
		Bus:       bus,
	}, service.ConfigFrom(cfg.Lifecycle, cfg.Evidence))
	app.Sweeper = service.NewSweeper(app.Service, cfg.Lifecycle.SweepInterval)

	app.Audit = audit.NewTrail(log, auditStore)
	if err := app.Audit.Initialize(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("audit: %w", err)
	}
	if err := app.Audit.Subscribe(ctx, bus); err != nil {
		app.Close()
		return nil, err
	}

	app.Stream = complaintapi.NewStream(log, cfg.Server.AllowedOrigins)
	if err := app.Stream.Subscribe(ctx, bus); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Notification.Enabled {
		app.Notify = notification.NewService(log, notification.ConfigFrom(cfg.Notification),
			map[notification.Channel]notification.Provider{
				notification.ChannelInApp: notification.NewLogProvider(log),
			})
		if err := app.Notify.Subscribe(ctx, bus); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

// Router builds the HTTP surface. The websocket stream is mounted before
// the response-wrapping middleware so the connection can be hijacked.
func (a *App) Router() http.Handler {
	cfg := a.Config
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Mount("/ws", a.Stream.StreamRoutes())

	r.Group(func(r chi.Router) {
		cors := secmiddleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.AllowedOrigins

		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(secmiddleware.SecurityHeaders)
		r.Use(secmiddleware.RequestLogger(a.Log))
		r.Use(metrics.Middleware)
		r.Use(secmiddleware.CORS(cors))

		r.Get("/health", a.healthHandler)
		r.Get("/ready", a.readyHandler)
		r.Handle("/metrics", metrics.Handler())
		r.Get("/", infoHandler)

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(auth.Middleware(cfg.Auth))
			} else {
				r.Use(auth.DevMiddleware)
			}
			r.Use(secmiddleware.BodyLimit(complaintapi.RequestLimit(cfg.Evidence.MaxUploadBytes)))

			votes := secmiddleware.NewKeyRateLimiter(cfg.RateLimit.VotesPerSecond, cfg.RateLimit.VoteBurst)
			handler := complaintapi.NewHandler(a.Service, a.Workers, a.Rewards, a.Audit,
				cfg.Evidence.MaxUploadBytes, complaintapi.WithVoteLimiter(votes.Middleware))
			r.Mount("/", handler.Routes())
		})
	})

	return r
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "GrievanceGenie Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"server": "ready",
	}

	if a.DB != nil {
		if err := a.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}
	} else {
		checks["database"] = "not configured"
	}

	if err := a.Bus.Health(); err != nil {
		checks["event_bus"] = "not ready: " + err.Error()
	} else {
		checks["event_bus"] = "ready"
	}

	if a.Redis != nil {
		if err := a.Redis.Ping(r.Context()).Err(); err != nil {
			checks["redis"] = "not ready: " + err.Error()
		} else {
			checks["redis"] = "ready"
		}
	} else {
		checks["redis"] = "not configured"
	}

	allReady := true
	for _, status := range checks {
		if status != "ready" && status != "not configured" {
			allReady = false
			break
		}
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"ready":  allReady,
		"checks": checks,
	})
}
