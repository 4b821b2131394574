package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"montero/internal/auth"
	"montero/internal/domain/artifacts"
	"montero/internal/domain/audit"
	"montero/internal/domain/notifications"
	"montero/internal/domain/params"
	"montero/internal/domain/rpa"
	"montero/internal/domain/vault"
	"montero/internal/platform/config"
	"montero/internal/platform/crypto"
	"montero/internal/platform/db"
	"montero/internal/platform/jobs"
	"montero/internal/platform/logger"
	"montero/internal/platform/metrics"
	"montero/internal/rpa/bots"
	"montero/internal/rpa/browser"
	"montero/internal/rpa/worker"
	"montero/internal/transport/http/api"
	audithandler "montero/internal/transport/http/handlers/audit"
	notificationshandler "montero/internal/transport/http/handlers/notifications"
	pilahandler "montero/internal/transport/http/handlers/pila"
	rpahandler "montero/internal/transport/http/handlers/rpa"
	vaulthandler "montero/internal/transport/http/handlers/vault"
	"montero/internal/transport/http/middleware"
	"montero/internal/transport/http/shared"
)

const shutdownTimeout = 15 * time.Second

// App holds every long-lived handle the process needs. It is built once at
// startup and passed down explicitly.
type App struct {
	Config        config.Config
	DB            db.DB
	Metrics       *metrics.Collector
	Params        *params.Registry
	Vault         *vault.Service
	Artifacts     *artifacts.FileStore
	Jobs          *rpa.Store
	RPA           *rpa.Service
	Notifications *notifications.Service
	Audit         *audit.Service
	Scheduler     *jobs.Service
	Driver        browser.Driver
	Pool          *worker.Pool
	Router        http.Handler
}

// Open connects to the configured store, applies migrations and builds the App.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	app, err := Build(ctx, cfg, conn, NewDriver(cfg))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return app, nil
}

// NewDriver picks the browser driver named by rpa.driver.
func NewDriver(cfg config.Config) browser.Driver {
	if cfg.RPA.Driver == config.BrowserSimulated {
		return browser.NewSimulated()
	}
	return browser.NewRodDriver(cfg.RPA.BrowserBin, cfg.RPA.Headless, 0)
}

// Build wires the services on an open, migrated connection. The vault key is
// checked here so a bad key stops startup instead of failing jobs later.
func Build(ctx context.Context, cfg config.Config, conn db.DB, driver browser.Driver) (*App, error) {
	log := logger.Named("server")

	if cfg.RunSeed {
		n, err := params.NewStore(conn).Seed(ctx, params.Builtin()...)
		if err != nil {
			return nil, fmt.Errorf("seed fiscal parameters: %w", err)
		}
		if n > 0 {
			log.Info().Int("bundles", n).Msg("fiscal parameters seeded")
		}
	}
	registry, err := params.Load(ctx, conn, cfg.FiscalYear)
	if err != nil {
		return nil, fmt.Errorf("load fiscal parameters: %w", err)
	}
	if _, err := registry.Default(); err != nil {
		return nil, fmt.Errorf("fiscal year %d: %w", cfg.FiscalYear, err)
	}

	vaultSvc, err := vault.New(vault.NewStore(conn), cfg.Vault.MasterKey, cfg.Vault.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	var cipher *crypto.Service
	if cfg.Artifacts.Encrypt {
		cipher = vaultSvc.Cipher()
	}
	arts, err := artifacts.NewFileStore(cfg.Artifacts.Dir, cipher)
	if err != nil {
		return nil, fmt.Errorf("artifacts: %w", err)
	}

	var m *metrics.Collector
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	store := rpa.NewStore(conn, rpa.Backoff{Base: cfg.Backoff.Base, Cap: cfg.Backoff.Cap})
	notices := notifications.New(notifications.NewStore(conn))

	app := &App{
		Config:        cfg,
		DB:            conn,
		Metrics:       m,
		Params:        registry,
		Vault:         vaultSvc,
		Artifacts:     arts,
		Jobs:          store,
		RPA:           rpa.NewService(store, arts, cfg.RPA.MaxAttempts, m),
		Notifications: notices,
		Audit:         audit.New(conn),
		Scheduler: jobs.New(conn, store, jobs.Config{
			Interval:   cfg.Maintenance.Interval,
			StaleAfter: cfg.LeaseExpiry(),
		}, m),
		Driver: driver,
	}
	app.Pool = worker.New(worker.Config{
		WorkerID:     cfg.RPA.WorkerID,
		PoolSize:     cfg.RPA.PoolSize,
		PollInterval: cfg.RPA.PollInterval,
		MaxRuntime:   cfg.RPA.MaxRuntime,
		Platforms:    cfg.RPA.Platforms,
	}, worker.Deps{
		Store:     store,
		Vault:     vaultSvc,
		Driver:    driver,
		Runner:    bots.NewRunner(bots.NewProfiles(cfg.Portals), arts),
		Artifacts: arts,
		Notifier:  notices,
		Metrics:   m,
	})
	app.Router = app.routes()
	return app, nil
}

func (a *App) routes() http.Handler {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "X-Artifact-SHA256", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes, middleware.RouteLimit{
		Path:     "/api/v1/rpa/attachments",
		MaxBytes: rpahandler.MaxAttachmentBodyBytes,
	}))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if a.Metrics != nil {
		router.Handle("/metrics", a.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		pilahandler.NewHandler(a.Params, a.Metrics).RegisterRoutes(r)
		rpahandler.NewHandler(a.RPA, a.Artifacts, a.Audit).RegisterRoutes(r)
		vaulthandler.NewHandler(a.Vault, a.Audit).RegisterRoutes(r)
		notificationshandler.NewHandler(a.Notifications).RegisterRoutes(r)
		audithandler.NewHandler(a.Audit).RegisterRoutes(r)

		r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/maintenance/runs", a.handleMaintenanceRuns)
	})

	return router
}

func (a *App) handleMaintenanceRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePage(r, 50, 500)
	runs, err := a.Scheduler.Recent(r.Context(), page.Limit)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "maintenance_list_failed", "failed to list maintenance runs", middleware.GetRequestID(r.Context()))
		return
	}
	if runs == nil {
		runs = []jobs.Run{}
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

// Serve runs the HTTP server and the maintenance scheduler, plus the worker
// pool when rpa.embedded_workers is set, until ctx is cancelled. In-flight
// jobs are finalized before it returns.
func (a *App) Serve(ctx context.Context) error {
	log := logger.Named("server")
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", a.Config.Addr).Str("store", string(a.DB.Dialect())).Msg("montero server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.Scheduler.Start(gctx)
	if a.Config.RPA.EmbeddedWorkers {
		g.Go(func() error { return a.Pool.Run(gctx) })
	}

	err := g.Wait()
	log.Info().Msg("montero server stopped")
	return err
}

// Close releases the browser driver and the database.
func (a *App) Close() {
	if a.Driver != nil {
		if err := a.Driver.Close(); err != nil {
			logger.Named("server").Warn().Err(err).Msg("browser driver close failed")
		}
	}
	a.DB.Close()
}
