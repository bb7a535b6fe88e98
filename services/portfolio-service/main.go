package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Rohianon/ptracker/pkg/config"
	"github.com/Rohianon/ptracker/pkg/database"
	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/pkg/lock"
	"github.com/Rohianon/ptracker/pkg/logger"
	"github.com/Rohianon/ptracker/pkg/metrics"
	"github.com/Rohianon/ptracker/pkg/middleware"
	"github.com/Rohianon/ptracker/pkg/quotes"
	"github.com/Rohianon/ptracker/pkg/response"
	"github.com/Rohianon/ptracker/pkg/swagger"
	"github.com/Rohianon/ptracker/pkg/telemetry"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/handler"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/scheduler"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/service"
)

const serviceName = "portfolio-service"

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		logger.Init(serviceName, "info", true)
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)
	logger.Info().Msg("Starting Portfolio Service")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, &telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		CollectorURL: cfg.Telemetry.CollectorURL,
		Environment:  cfg.Telemetry.Environment,
		Enabled:      cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
		tp = &telemetry.Provider{}
	}

	// Store
	var store repository.Store
	var pool *pgxpool.Pool
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn().Msg("Using in-memory store, data is lost on restart")
		store = repository.NewMemory()
	default:
		pool, err = database.NewPool(ctx, &database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("Connected to database")

		if cfg.Database.Migrate {
			applied, err := database.Migrate(ctx, pool, repository.Migrations())
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to apply migrations")
			}
			logger.Info().Strs("applied", applied).Msg("Schema up to date")
		}
		store = repository.NewPostgres(pool)
	}

	// Asset creation lock and reconcile leader lock
	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr()).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, "ptracker:", logger.Component("lock"))
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Using Redis locks")
	}

	// Kafka publisher
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers)
		defer kp.Close()
		publisher = kp
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka publisher initialized")
	} else {
		logger.Warn().Msg("Kafka disabled, ledger events will be dropped")
	}

	// Quote source
	var upstream quotes.Source
	switch cfg.Quotes.Provider {
	case "demo":
		logger.Warn().Msg("Using demo quote source")
		upstream = quotes.NewDemoSource()
	case "yahoo":
		upstream = quotes.NewYahooClient(quotes.Config{
			BaseURL:    cfg.Quotes.BaseURL,
			Timeout:    cfg.Quotes.Timeout,
			MaxRetries: cfg.Quotes.MaxRetries,
			RetryWait:  cfg.Quotes.RetryWait,
		}, logger.Component("quotes"))
	default:
		logger.Fatal().Str("provider", cfg.Quotes.Provider).Msg("Unknown quote provider")
	}
	source, err := quotes.NewCachedSource(upstream, cfg.Quotes.Provider, cfg.Quotes.ProfileCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create quote cache")
	}

	svc := service.New(store, source, publisher, locker, service.Config{
		Concurrency:  cfg.Quotes.Concurrency,
		QuoteTimeout: cfg.Quotes.Timeout,
	})

	// Setup Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Portfolio Tracker",
		ErrorHandler: response.ErrorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		Immutable:    true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(telemetry.Middleware(serviceName))
	app.Use(middleware.Logger())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", cfg.Auth.TrustedHeader},
	}))
	app.Use(metrics.Middleware(metrics.Config{
		ServiceName: serviceName,
		SkipPaths:   []string{"/health", "/metrics"},
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": serviceName,
		})
	})
	app.Get("/metrics", metrics.Handler())
	app.Use(swagger.Handler(swagger.Config{
		Spec:  handler.OpenAPI,
		Title: "Portfolio Tracker API",
	}))

	// API routes
	api := app.Group("/api/v1",
		middleware.RateLimiter(middleware.RateLimitConfig{
			Max:      300,
			Duration: time.Minute,
		}),
		middleware.Identity(middleware.IdentityConfig{
			JWTSecret:     cfg.Auth.JWTSecret,
			TrustedHeader: cfg.Auth.TrustedHeader,
		}),
	)
	handler.New(svc, handler.Config{AdminUsers: cfg.Auth.AdminUsers}).Register(api)

	// Background jobs
	sched := scheduler.New()
	if cfg.Reconcile.Enabled {
		job := scheduler.NewReconcileJob(svc, locker, cfg.Reconcile.DryRun)
		if err := sched.AddJob(cfg.Reconcile.Schedule, job); err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.Reconcile.Schedule).Msg("Invalid reconcile schedule")
		}
		if cfg.Reconcile.RunOnStart {
			go func() {
				if err := sched.RunNow(job); err != nil {
					logger.Error().Err(err).Msg("Startup reconcile failed")
				}
			}()
		}
	}
	sched.Start()

	stopStats := make(chan struct{})
	if pool != nil {
		go reportPoolStats(pool, stopStats)
	}

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := app.Listen(addr); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down Portfolio Service")
	close(stopStats)
	sched.Stop()
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush traces")
	}
}

func reportPoolStats(pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stat := pool.Stat()
			metrics.RecordDBPoolStats(serviceName, int(stat.AcquiredConns()), int(stat.MaxConns()))
		case <-stop:
			return
		}
	}
}
