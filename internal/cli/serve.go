package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	fiberzap "github.com/gofiber/contrib/v3/zap"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/seuros/mfdash/internal/apiclient"
	"github.com/seuros/mfdash/internal/config"
	"github.com/seuros/mfdash/internal/database"
	"github.com/seuros/mfdash/internal/handlers"
	"github.com/seuros/mfdash/internal/logging"
	"github.com/seuros/mfdash/internal/middleware"
	"github.com/seuros/mfdash/internal/prefs"
	"github.com/seuros/mfdash/internal/realtime"
	"github.com/seuros/mfdash/internal/session"
)

const (
	shutdownTimeout = 10 * time.Second
	reapInterval    = 5 * time.Minute
	// filter option lists can run to tens of thousands of labels
	bodyLimit = 8 * 1024 * 1024
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long: `Start the dashboard API server.

Environment variables:
  MFDASH_API_BASE_URL      Analytics API base URL (report tables are disabled without it)
  MFDASH_API_TOKEN         Bearer token used until one is stored under auth.id_token
  MFDASH_ACCESS_KEY        Require this key on /api requests (optional)
  MFDASH_PREFS_BACKEND     memory, file, redis, postgres or sqlite (default: memory)
  DATABASE_URL             PostgreSQL connection string
  REDIS_URL                Redis URL for the redis backend
  PORT                     Server port (default: 3000)
  TRUSTED_ORIGINS          Comma-separated hosts allowed to send writes

Example:
  MFDASH_API_BASE_URL=https://api.example.com mfdash serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// runtimeDeps are the long-lived collaborators a server owns.
type runtimeDeps struct {
	cfg       *config.Config
	store     prefs.Store
	hub       *realtime.Hub
	analytics *apiclient.Analytics
	retention *database.RetentionScheduler
}

func (r *runtimeDeps) close() {
	if r.retention != nil {
		r.retention.Stop()
	}
	if r.hub != nil {
		r.hub.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			logging.L().Warn("error closing preference store", "error", err)
		}
	}
	if err := database.Close(); err != nil {
		logging.L().Warn("error closing database", "error", err)
	}
}

// usesDatabase reports whether postgres is needed for storage or events.
func usesDatabase(cfg *config.Config) bool {
	return cfg.PrefsBackend == prefs.BackendPostgres || cfg.DatabaseURL != ""
}

// openRuntime connects storage and the upstream client described by cfg.
func openRuntime(ctx context.Context, cfg *config.Config) (*runtimeDeps, error) {
	rt := &runtimeDeps{cfg: cfg, hub: realtime.NewHub()}

	if usesDatabase(cfg) {
		logging.L().Info("running database migrations")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			logging.L().Warn("migration warning", "error", err)
		} else {
			logging.L().Info("migrations completed")
		}
		if err := database.ConnectURL(cfg.DatabaseURL); err != nil {
			rt.close()
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
	}

	store, err := prefs.Open(ctx, prefs.Options{
		Backend:    cfg.PrefsBackend,
		DataDir:    cfg.DataDir,
		RedisURL:   cfg.RedisURL,
		SQLitePath: cfg.SQLitePath,
		DB:         database.DB,
	})
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("open preference store: %w", err)
	}

	// With postgres, changes fan out through LISTEN/NOTIFY so every instance
	// sees them; otherwise they only reach this process's subscribers.
	if database.DB != nil {
		rt.store = prefs.WithNotifier(store, realtime.PostgresNotifier(database.DB))
		if err := realtime.StartListener(ctx, cfg.DatabaseURL, rt.hub); err != nil {
			logging.L().Warn("realtime listener unavailable", "error", err)
		}
		rt.retention = database.NewRetentionScheduler(cfg.PrefsRetentionDays)
		rt.retention.Start()
	} else {
		rt.store = prefs.WithNotifier(store, realtime.LocalNotifier(rt.hub))
	}

	if cfg.APIBaseURL != "" {
		client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTokenSource(prefs.TokenSource{
			Store:    rt.store,
			Fallback: cfg.APIToken,
		}))
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("analytics client: %w", err)
		}
		rt.analytics = apiclient.NewAnalytics(client)
	} else {
		logging.L().Warn("no analytics API configured; report tables are disabled")
	}

	return rt, nil
}

// newApp builds the HTTP application around api.
func newApp(cfg *config.Config, api *handlers.API) *fiber.App {
	app := fiber.New(createFiberConfig("mfdash " + Version))

	app.Use(recover.New())
	app.Use(fiberzap.New(fiberzap.Config{
		Logger: logging.Access(),
		Fields: []string{"ip", "latency", "status", "method", "url"},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins(),
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))
	app.Use(middleware.Version(Version))
	app.Use("/api", middleware.TrustedOrigins(cfg.TrustedOrigins), middleware.APIKey(cfg.AccessKey))

	api.Register(app)
	return app
}

// serveDashboard runs the server until SIGINT or SIGTERM.
func serveDashboard(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	api := handlers.New(handlers.Deps{
		Analytics:      rt.analytics,
		Prefs:          rt.store,
		Hub:            rt.hub,
		Version:        Version,
		PageSize:       cfg.PageSize,
		MinColumnWidth: cfg.MinColumnWidth,
		SearchDebounce: cfg.SearchDebounce,
	})
	defer api.Close()
	api.StartReapers(ctx, reapInterval, session.DefaultIdleTimeout)

	app := newApp(cfg, api)

	go func() {
		<-ctx.Done()
		logging.L().Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logging.L().Error("graceful shutdown failed", "error", err)
		}
	}()

	logging.L().Info("mfdash starting",
		"port", cfg.Port,
		"prefs_backend", cfg.PrefsBackend,
		"api", cfg.APIBaseURL != "",
	)
	err = app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
