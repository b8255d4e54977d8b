// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dodocare/dodocare/internal/appointments"
	"github.com/dodocare/dodocare/internal/config"
	"github.com/dodocare/dodocare/internal/directory"
	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/dodocare/dodocare/internal/docstore/memory"
	docstorepostgres "github.com/dodocare/dodocare/internal/docstore/postgres"
	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/identity"
	identitypostgres "github.com/dodocare/dodocare/internal/identity/postgres"
	"github.com/dodocare/dodocare/internal/mailer"
	"github.com/dodocare/dodocare/internal/navigation"
	"github.com/dodocare/dodocare/internal/pkg/callpolicy"
	"github.com/dodocare/dodocare/internal/pkg/ctxlog"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/dodocare/dodocare/internal/pkg/metrics"
	"github.com/dodocare/dodocare/internal/pkg/postgres"
	"github.com/dodocare/dodocare/internal/profile"
	"github.com/dodocare/dodocare/internal/session"
	"github.com/dodocare/dodocare/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	sessions      *session.Registry
	identity      *identity.Service
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := postgres.Connect(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go metrics.CollectDBPool(metricsCtx, db, 15*time.Second)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
	err := g.Wait()

	// Sessions are closed after the servers so no request sees a released handle.
	a.sessions.Close()
	a.db.Close()

	return err
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Sessions returns the session registry. Used in tests.
func (a *App) Sessions() *session.Registry {
	return a.sessions
}

// Identity returns the identity provider. Used in tests to revoke sign-ins.
func (a *App) Identity() *identity.Service {
	return a.identity
}

func (a *App) newDocstore() (docstore.Store, error) {
	switch a.config.Docstore.Driver {
	case config.DocstorePostgres:
		return docstorepostgres.NewRepository(a.db), nil
	case config.DocstoreMemory:
		a.logger.Warn("document store is in memory: profiles, appointments and directory data are lost on restart")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown docstore driver %q", a.config.Docstore.Driver)
	}
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>DodoCare API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	policy := callpolicy.Policy{
		Login:  a.config.Timeouts.Login,
		Lookup: a.config.Timeouts.Lookup,
		Read:   a.config.Timeouts.Read,
		Write:  a.config.Timeouts.Write,
	}

	store, err := a.newDocstore()
	if err != nil {
		return nil, err
	}

	resetMailer, err := mailer.New(mailer.Config{
		Enabled:       a.config.Mail.Enabled,
		SMTPHost:      a.config.Mail.SMTPHost,
		SMTPPort:      a.config.Mail.SMTPPort,
		SMTPUser:      a.config.Mail.SMTPUser,
		SMTPPassword:  a.config.Mail.SMTPPassword,
		FromAddress:   a.config.Mail.FromAddress,
		ResetURL:      a.config.Mail.ResetURL,
		ResetTTL:      a.config.Identity.ResetTokenTTL,
		RatePerMinute: a.config.Mail.RatePerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("create mailer: %w", err)
	}
	if !a.config.Mail.Enabled {
		slog.Warn("mailer is disabled: password reset links will not be sent")
	}

	profileService := profile.NewService(store, policy)
	appointmentsService := appointments.NewService(store, policy)
	directoryService := directory.NewService(store, policy)

	identityRepo := identitypostgres.NewRepository(a.db)
	identityService := identity.NewService(identityRepo, resetMailer, profileService, identity.Config{
		BcryptCost:    a.config.Identity.BcryptCost,
		ResetTokenTTL: a.config.Identity.ResetTokenTTL,
	})
	a.identity = identityService

	tokens := session.NewTokens(a.config.Session.TokenSecret, a.config.Session.TokenTTL)
	a.sessions = session.NewRegistry(
		session.RegistryConfig{
			IdleTimeout:  a.config.Session.IdleTimeout,
			ReapInterval: a.config.Session.ReapInterval,
		},
		session.ManagerConfig{
			Admin: session.AdminCredentials{
				Identifier: a.config.Admin.Identifier,
				Secret:     a.config.Admin.Secret,
			},
			Policy: policy,
			Logger: a.logger,
		},
		func() session.AuthHandle { return identityService.NewHandle() },
		profileService,
		tokens,
	)
	a.sessions.Start(ctx)

	identityHandler := identity.NewHandler(identityService)
	sessionHandler := session.NewHandler(a.sessions)
	navigationHandler := navigation.NewHandler()
	appointmentsHandler := appointments.NewHandler(appointmentsService)
	profileHandler := profile.NewHandler(profileService)
	directoryHandler := directory.NewHandler(directoryService)

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)
		sessionHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.SessionMiddleware(a.sessions))

			sessionHandler.RegisterRoutes(r)
			navigationHandler.RegisterRoutes(r)
			directoryHandler.RegisterRoutes(r)
			appointmentsHandler.RegisterRoutes(r)
			profileHandler.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				directoryHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
