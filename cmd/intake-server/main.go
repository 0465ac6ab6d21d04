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
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tmsclinic/intake/internal/config"
	"github.com/tmsclinic/intake/internal/intake/queue"
	"github.com/tmsclinic/intake/internal/intake/session"
	"github.com/tmsclinic/intake/internal/intake/submission"
	"github.com/tmsclinic/intake/internal/platform/auth"
	"github.com/tmsclinic/intake/internal/platform/connectivity"
	"github.com/tmsclinic/intake/internal/platform/db"
	"github.com/tmsclinic/intake/internal/platform/kvstore"
	"github.com/tmsclinic/intake/internal/platform/middleware"
	"github.com/tmsclinic/intake/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "TMS clinic patient intake API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(queueCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the retry queue",
	}

	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay every queued submission once",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			deps, err := buildDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.close()

			stats, err := deps.queue.Drain(ctx, deps.svc.Redeliver)
			if err != nil {
				return fmt.Errorf("drain failed: %w", err)
			}
			fmt.Printf("delivered=%d failed=%d remaining=%d\n", stats.Delivered, stats.Failed, stats.Remaining)
			return nil
		},
	}
	cmd.AddCommand(drainCmd)

	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// deps is the wired object graph shared by serve and queue drain.
type deps struct {
	pool    *pgxpool.Pool
	redis   *kvstore.Redis
	queue   *queue.Queue
	svc     *submission.Service
	handler *submission.Handler
	checker connectivity.Checker
}

func (d *deps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*deps, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")

	// Session state and the retry queue live in the KV store. Redis when
	// configured, in-process memory otherwise (single-instance dev).
	var kv kvstore.Store
	var redisStore *kvstore.Redis
	if cfg.RedisURL != "" {
		redisStore, err = kvstore.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		kv = redisStore
		logger.Info().Msg("connected to redis")
	} else {
		kv = kvstore.NewMemory()
		logger.Warn().Msg("REDIS_URL not set; sessions and queue are in-memory only")
	}

	checker := connectivity.NewProbe(cfg.ProbeURL)

	sessionRepo := session.NewRepoPG(pool)
	patientRepo := session.NewPatientRepoPG(pool)
	submissionRepo := submission.NewRepoPG(pool)
	sessions := session.NewManager(
		kvstore.Namespaced(kv, "session"),
		sessionRepo, patientRepo, submissionRepo, logger,
	)

	q := queue.New(kvstore.Namespaced(kv, "queue"), logger, func(p queue.Pending) {
		logger.Error().
			Str("id", p.ID).
			Str("submission_id", p.SubmissionID).
			Str("form", string(p.FormType)).
			Int("retries", p.RetryCount).
			Msg("submission stuck in retry queue, needs attention")
	})

	sender := notification.NewResendSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
	mailer := notification.NewMailer(sender, cfg.EmailTo, logger)

	svc := submission.NewService(submissionRepo, sessions, q, mailer, checker, logger)
	handler := submission.NewHandler(svc, q)

	return &deps{
		pool:    pool,
		redis:   redisStore,
		queue:   q,
		svc:     svc,
		handler: handler,
		checker: checker,
	}, nil
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire dependencies")
	}
	defer d.close()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// The kiosk-facing intake endpoint is open; the staff read endpoints
	// require a signed token outside development.
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	staff := e.Group("/api/v1")
	if cfg.IsDev() {
		staff.Use(auth.DevAuthMiddleware())
	} else {
		staff.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	d.handler.RegisterRoutes(apiV1, staff)

	// Health checks
	e.GET("/healthz", func(c echo.Context) error {
		status := http.StatusOK
		if err := d.pool.Ping(c.Request().Context()); err != nil {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]interface{}{
			"status":  http.StatusText(status),
			"online":  d.checker.Online(c.Request().Context()),
			"version": "0.1.0",
		})
	})
	e.GET("/healthz/db", db.HealthHandler(d.pool))

	// Background retry worker
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	if cfg.QueueDrainInterval > 0 {
		worker := queue.NewWorker(d.queue, d.checker, d.svc.Redeliver, cfg.QueueDrainInterval, logger)
		go worker.Run(workerCtx)
	}

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("intake server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	// Graceful shutdown: stop accepting requests, let in-flight
	// dispatches settle, then close everything.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	workerCancel()
	d.svc.Wait()
	logger.Info().Msg("stopped")
	return nil
}
