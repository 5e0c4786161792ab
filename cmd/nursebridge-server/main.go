package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nursebridge/nursebridge/internal/config"
	"github.com/nursebridge/nursebridge/internal/domain/account"
	"github.com/nursebridge/nursebridge/internal/domain/admin"
	"github.com/nursebridge/nursebridge/internal/domain/analytics"
	"github.com/nursebridge/nursebridge/internal/domain/audit"
	"github.com/nursebridge/nursebridge/internal/domain/credential"
	"github.com/nursebridge/nursebridge/internal/domain/messaging"
	"github.com/nursebridge/nursebridge/internal/domain/notification"
	"github.com/nursebridge/nursebridge/internal/domain/nurse"
	"github.com/nursebridge/nursebridge/internal/domain/payment"
	"github.com/nursebridge/nursebridge/internal/domain/visit"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/blobstore"
	"github.com/nursebridge/nursebridge/internal/platform/db"
	"github.com/nursebridge/nursebridge/internal/platform/mailer"
	"github.com/nursebridge/nursebridge/internal/platform/middleware"
	"github.com/nursebridge/nursebridge/internal/platform/sandbox"
	"github.com/nursebridge/nursebridge/internal/platform/usage"
	"github.com/nursebridge/nursebridge/internal/platform/websocket"
)

const version = "0.1.0"

// publicPrefixes reach their handlers without a bearer token.
var publicPrefixes = []string{"/health", "/api/v1/auth/sign-up", "/api/v1/auth/sign-in"}

func main() {
	rootCmd := &cobra.Command{
		Use:   "nursebridge-server",
		Short: "NurseBridge marketplace API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(sweepCredentialsCmd())
	rootCmd.AddCommand(snapshotAnalyticsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// bootstrap loads config, builds the logger and connects to the database.
func bootstrap(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	logger := newLogger(os.Getenv("ENV"))
	cfg, err := config.Load()
	if err != nil {
		return nil, logger, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, nil, err
	}
	logger = newLogger(cfg.Env)
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, logger, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, logger, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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
			ctx := context.Background()
			cfg, _, pool, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, _, pool, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	var sc sandbox.SeedConfig
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo nurses, pharmacies and posted visits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(func(ctx context.Context, a *app) error {
				res, err := a.seeder.Seed(ctx, sc)
				if err != nil {
					return err
				}
				fmt.Printf("Created %d nurse(s), %d pharmacy account(s) and %d visit(s); skipped %d.\n",
					res.Nurses, res.Pharmacies, res.Visits, res.Skipped)
				fmt.Printf("Every account signs in with password %q.\n", res.Password)
				return nil
			})
		},
	}
	d := sandbox.DefaultSeedConfig()
	cmd.Flags().IntVar(&sc.Nurses, "nurses", d.Nurses, "Number of nurses")
	cmd.Flags().IntVar(&sc.Pharmacies, "pharmacies", d.Pharmacies, "Number of pharmacy accounts")
	cmd.Flags().IntVar(&sc.VisitsPerPharmacy, "visits", d.VisitsPerPharmacy, "Posted visits per pharmacy")
	cmd.Flags().StringVar(&sc.Password, "password", d.Password, "Password for every seeded account")
	cmd.Flags().Int64Var(&sc.Seed, "seed", 0, "Random seed (0 picks one from the clock)")
	return cmd
}

func sweepCredentialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-credentials",
		Short: "Mark credentials past their expiration date as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(func(ctx context.Context, a *app) error {
				res, err := a.credentials.SweepExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Expired %d credential(s).\n", res.Expired)
				return nil
			})
		},
	}
}

func snapshotAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot-analytics",
		Short: "Compute and store today's platform analytics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(func(ctx context.Context, a *app) error {
				snap, err := a.analytics.Snapshot(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Stored snapshot for %s: %d nurses, %d visits, fill rate %.1f%%.\n",
					snap.SnapshotDate.Format("2006-01-02"), snap.TotalNurses, snap.TotalVisits, snap.FillRate()*100)
				return nil
			})
		},
	}
}

// runJob builds the application for a one-off CLI command.
func runJob(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	cfg, logger, pool, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := newApp(cfg, logger, pool)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func runServer() error {
	ctx := context.Background()
	cfg, logger, pool, err := bootstrap(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := newApp(cfg, logger, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}
	defer a.close()

	if cfg.SeedOnStart && cfg.IsDev() {
		if _, err := a.seeder.Seed(ctx, sandbox.DefaultSeedConfig()); err != nil {
			logger.Error().Err(err).Msg("seeding demo data failed")
		}
	}

	e := newServer(cfg, logger, pool, a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// app holds the wired services shared by the server and the CLI jobs.
type app struct {
	blobs         *blobstore.Store
	hub           *websocket.Hub
	accounts      *account.Service
	nurses        *nurse.Service
	admins        *admin.Service
	notifications *notification.Service
	visits        *visit.Service
	credentials   *credential.Service
	messages      *messaging.Service
	payments      *payment.Service
	audit         *audit.Service
	analytics     *analytics.Service
	seeder        *sandbox.Seeder

	closers []func() error
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func newApp(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (*app, error) {
	a := &app{}

	blobs, closeBlobs, err := openBlobStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.blobs = blobs
	a.closers = append(a.closers, closeBlobs)

	tokens := auth.NewTokenIssuer(cfg.AuthIssuer, []byte(cfg.AuthSigningKey), cfg.AuthTokenTTL)
	a.accounts = account.NewService(account.NewAccountRepoPG(pool), tokens, logger)

	conversations := messaging.NewConversationRepoPG(pool)
	a.hub = websocket.NewHub(logger, messaging.TopicAuthorizer(conversations))

	mail := mailer.New(mailSender(cfg, logger), mailer.NewTemplateEngine(), logger)
	a.notifications = notification.NewService(notification.NewNotificationRepoPG(pool), a.hub, mail, a.accounts, logger)

	nurseRepo := nurse.NewNurseRepoPG(pool)
	a.nurses = nurse.NewService(nurseRepo, logger)
	a.admins = admin.NewService(admin.NewAdminRepoPG(pool), logger)

	a.visits = visit.NewService(visit.Deps{
		Visits:       visit.NewVisitRepoPG(pool),
		Applications: visit.NewApplicationRepoPG(pool),
		Tx:           db.NewPoolTransactor(pool),
		Blobs:        blobs,
		Notifier:     a.notifications,
		Nurses:       a.nurses,
		Logger:       logger,
	})
	a.credentials = credential.NewService(credential.NewCredentialRepoPG(pool), blobs, a.notifications, logger)
	a.messages = messaging.NewService(conversations, messaging.NewMessageRepoPG(pool), a.hub, a.notifications, a.accounts, logger)
	a.payments = payment.NewService(payment.NewPaymentRepoPG(pool), a.visits, a.notifications, logger)
	a.audit = audit.NewService(audit.NewAuditRepoPG(pool), logger)
	a.analytics = analytics.NewService(analytics.NewSnapshotRepoPG(pool), analytics.NewCountSourcePG(pool), logger)
	a.seeder = sandbox.NewSeeder(a.accounts, nurseRepo, a.visits, logger)

	return a, nil
}

// openBlobStore opens the bolt-backed object store under StorageDir with
// encryption and versioning taken from config.
func openBlobStore(cfg *config.Config, logger zerolog.Logger) (*blobstore.Store, func() error, error) {
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, nil, err
	}
	var cipher *blobstore.Cipher
	if key != nil {
		if cipher, err = blobstore.NewCipher(key); err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn().Msg("STORAGE_ENCRYPTION_KEY not set; documents are stored unencrypted")
	}

	backend, err := blobstore.OpenBolt(filepath.Join(cfg.StorageDir, "objects.db"))
	if err != nil {
		return nil, nil, err
	}
	store := blobstore.New(backend, blobstore.Options{
		Cipher:     cipher,
		Versioning: cfg.StorageVersioning,
		Logger:     logger,
	})
	return store, backend.Close, nil
}

// mailSender delivers through SMTP when a relay is configured and logs
// otherwise.
func mailSender(cfg *config.Config, logger zerolog.Logger) mailer.EmailSender {
	if !cfg.MailEnabled() {
		return mailer.LogSender{Logger: logger.With().Str("component", "mailer").Logger()}
	}
	return mailer.SMTPSender{
		Addr:     cfg.SMTPAddr,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
}

func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit("25M"))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.PublicPathSkipper(publicPrefixes...),
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.Use(middleware.Audit(logger, a.audit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	tracker := usage.NewTracker(0)
	apiV1.Use(usage.Middleware(tracker))

	account.NewHandler(a.accounts).RegisterRoutes(apiV1)
	nurse.NewHandler(a.nurses).RegisterRoutes(apiV1)
	admin.NewHandler(a.admins).RegisterRoutes(apiV1)
	visit.NewHandler(a.visits).RegisterRoutes(apiV1)
	credential.NewHandler(a.credentials).RegisterRoutes(apiV1)
	messaging.NewHandler(a.messages).RegisterRoutes(apiV1)
	notification.NewHandler(a.notifications).RegisterRoutes(apiV1)
	payment.NewHandler(a.payments).RegisterRoutes(apiV1)
	audit.NewHandler(a.audit).RegisterRoutes(apiV1)
	analytics.NewHandler(a.analytics).RegisterRoutes(apiV1)
	blobstore.NewHandler(a.blobs).RegisterRoutes(apiV1)
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(apiV1)
	usage.NewHandler(tracker).RegisterRoutes(apiV1)
	if cfg.IsDev() {
		sandbox.NewHandler(a.seeder).RegisterRoutes(apiV1)
	}

	return e
}
