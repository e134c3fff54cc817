package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ecds/dashboard/internal/config"
	"github.com/ecds/dashboard/internal/domain/assessment"
	"github.com/ecds/dashboard/internal/domain/dashboard"
	"github.com/ecds/dashboard/internal/domain/datacollection"
	"github.com/ecds/dashboard/internal/domain/imaging"
	"github.com/ecds/dashboard/internal/domain/mlmodel"
	"github.com/ecds/dashboard/internal/domain/monitoring"
	"github.com/ecds/dashboard/internal/domain/patient"
	"github.com/ecds/dashboard/internal/domain/synthetic"
	"github.com/ecds/dashboard/internal/domain/workflow"
	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/blobstore"
	"github.com/ecds/dashboard/internal/platform/db"
	"github.com/ecds/dashboard/internal/platform/events"
	"github.com/ecds/dashboard/internal/platform/middleware"
	"github.com/ecds/dashboard/internal/platform/render"
	"github.com/ecds/dashboard/internal/platform/session"
	"github.com/ecds/dashboard/internal/platform/telemetry"
	"github.com/ecds/dashboard/migrations"
	"github.com/ecds/dashboard/ui"
)

// cdnOrigins serve echarts and datastar to the pages.
var cdnOrigins = []string{"https://go-echarts.github.io", "https://cdn.jsdelivr.net"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cds-dashboard",
		Short:         "Esophageal cancer clinical decision support dashboard",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the CDS backend answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client := newAPIClient(cfg, zerolog.Nop(), nil)
			latency, err := client.Ping(cmd.Context())
			if err != nil {
				return fmt.Errorf("backend %s: %w", client.BaseURL(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s is up (%s)\n", client.BaseURL(), latency.Round(time.Millisecond))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session store schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withMigrator(cmd.Context(), schema, func(m *db.Migrator) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", m.Schema())
				count, err := m.Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withMigrator(cmd.Context(), schema, func(m *db.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatuses(cmd, m.Schema(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(ctx context.Context, schema string, fn func(*db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}
	if schema == "" {
		schema = cfg.DBSchema
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	m, err := db.NewMigrator(pool, migrations.FS, schema)
	if err != nil {
		return err
	}
	return fn(m)
}

func printStatuses(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newAPIClient(cfg *config.Config, logger zerolog.Logger, tp *telemetry.TelemetryProvider) *apiclient.Client {
	opts := []apiclient.Option{
		apiclient.WithTimeout(cfg.APITimeout),
		apiclient.WithLongTimeout(cfg.APIGenerateTimeout),
		apiclient.WithToken(cfg.APIToken),
		apiclient.WithLogger(logger),
	}
	if tp != nil {
		opts = append(opts, apiclient.WithObserver(tp))
	}
	return apiclient.New(cfg.APIBaseURL, opts...)
}

func newTelemetry(cfg *config.Config) *telemetry.TelemetryProvider {
	return telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "cds-dashboard",
		MetricsEnabled: telemetry.BoolPtr(cfg.MetricsEnabled),
	})
}

// deps are the process-wide collaborators of the server.
type deps struct {
	metrics  *telemetry.TelemetryProvider
	client   *apiclient.Client
	sessions *session.Manager
	exports  blobstore.BlobStore
	events   events.Publisher
	pool     *pgxpool.Pool
	limiter  *middleware.RateLimiter
}

// openDeps connects the backends cfg selects. The returned func releases
// them.
func openDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *deps, _ func(), err error) {
	tp := newTelemetry(cfg)
	d := &deps{metrics: tp, client: newAPIClient(cfg, logger, tp)}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			closeAll()
		}
	}()

	var store session.Store
	switch cfg.SessionStore {
	case "postgres":
		d.pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, d.pool.Close)
		go tp.WatchPool(ctx, d.pool, 15*time.Second)
		pg := session.NewPGStore(d.pool)
		go pg.Run(logger.WithContext(ctx), 10*time.Minute)
		store = pg
		logger.Info().Str("schema", cfg.DBSchema).Msg("sessions stored in postgres")
	case "redis":
		var client *redis.Client
		client, err = session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		store = session.NewRedisStore(client)
		logger.Info().Msg("sessions stored in redis")
	default:
		mem := session.NewMemoryStore()
		go mem.Run(ctx, 5*time.Minute)
		store = mem
	}

	d.sessions, err = session.NewManager(store, []byte(cfg.SessionSecret), cfg.SessionTTL,
		session.WithSecureCookie(cfg.IsProduction()),
		session.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SessionSecret == "" {
		logger.Warn().Msg("SESSION_SECRET not set; sessions will not survive a restart")
	}

	switch cfg.ExportStore {
	case "s3":
		var client blobstore.S3API
		client, err = blobstore.NewS3Client(ctx)
		if err != nil {
			return nil, nil, err
		}
		d.exports = blobstore.NewS3BlobStore(client, cfg.ExportBucket, "exports/")
		logger.Info().Str("bucket", cfg.ExportBucket).Msg("exports stored in s3")
	default:
		d.exports = blobstore.NewInMemoryBlobStore()
	}

	switch cfg.EventsSink {
	case "kafka":
		w := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		d.events = events.NewKafkaPublisher(w, 5*time.Second)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("events published to kafka")
	default:
		d.events = events.NewLogPublisher(logger)
	}
	d.events = events.Counted(d.events, tp.ObserveEvent)
	closers = append(closers, func() {
		if err := d.events.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing event publisher")
		}
	})

	d.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	go d.limiter.Run(ctx, time.Minute)

	return d, closeAll, nil
}

// newServer builds the echo server with every page registered.
func newServer(cfg *config.Config, logger zerolog.Logger, d *deps) (*echo.Echo, error) {
	renderer, err := render.New(ui.FS)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = render.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(d.metrics.MetricsMiddleware())
	e.Use(middleware.Recovery(logger, render.ErrorPage))
	e.Use(middleware.SecurityHeaders(cdnOrigins...))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(d.limiter.Middleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.StaticFS("/static", echo.MustSubFS(ui.FS, "static"))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/backend", backendHealth(d.client))
	e.GET("/metrics", d.metrics.PrometheusHandler())
	if d.pool != nil {
		e.GET("/health/db", db.HealthHandler(d.pool))
	}

	pages := e.Group("",
		session.Middleware(d.sessions, session.SkipStatic),
		middleware.CSRF(middleware.CSRFConfig{SecureCookie: cfg.IsProduction()}),
	)

	assessmentSvc := assessment.NewService(d.client, d.events)

	dashboard.NewHandler(dashboard.NewService(d.client)).RegisterRoutes(pages)
	patient.NewHandler(patient.NewService(d.client)).RegisterRoutes(pages)
	assessment.NewHandler(assessmentSvc).RegisterRoutes(pages)
	workflow.NewHandler(assessmentSvc, cfg.AutoRefreshDebounce).RegisterRoutes(pages)
	synthetic.NewHandler(synthetic.NewService(d.client, d.exports, d.events)).RegisterRoutes(pages)
	datacollection.NewHandler(datacollection.NewService(d.client, d.events)).RegisterRoutes(pages)
	imaging.NewHandler(imaging.NewService(d.client, d.exports, d.events)).RegisterRoutes(pages)
	monitoring.NewHandler(d.client).RegisterRoutes(pages)
	mlmodel.NewHandler(d.client).RegisterRoutes(pages)
	blobstore.NewBlobHandler(d.exports, session.Owner).RegisterRoutes(pages)

	return e, nil
}

// backendHealth reports whether the CDS backend answers its health check.
func backendHealth(client *apiclient.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		latency, err := client.Ping(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unreachable",
				"backend": client.BaseURL(),
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":     "ok",
			"backend":    client.BaseURL(),
			"latency_ms": fmt.Sprint(latency.Milliseconds()),
		})
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	d, closeDeps, err := openDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open backends")
		return err
	}
	defer closeDeps()

	e, err := newServer(cfg, logger, d)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build server")
		return err
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", d.client.BaseURL()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
