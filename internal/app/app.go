package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/03aar/review-sub000/internal/config"
	"github.com/03aar/review-sub000/internal/event"
	handler "github.com/03aar/review-sub000/internal/handler/http"
	"github.com/03aar/review-sub000/internal/platform"
	platformmock "github.com/03aar/review-sub000/internal/platform/mock"
	"github.com/03aar/review-sub000/internal/repository"
	"github.com/03aar/review-sub000/internal/repository/postgres"
	"github.com/03aar/review-sub000/internal/repository/redis"
	"github.com/03aar/review-sub000/internal/scheduler"
	"github.com/03aar/review-sub000/internal/service"
	"github.com/03aar/review-sub000/migrations"
	"github.com/03aar/review-sub000/pkg/database"
	"github.com/03aar/review-sub000/pkg/health"
	"github.com/03aar/review-sub000/pkg/httpclient"
	pkgkafka "github.com/03aar/review-sub000/pkg/kafka"
	"github.com/03aar/review-sub000/pkg/middleware"
	"github.com/03aar/review-sub000/pkg/tracing"
)

// serviceName labels pool metrics, spans and the idempotency key prefix.
const serviceName = "reputation"

// App wires together all dependencies and runs the reputation engine.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	scheduler      *scheduler.Scheduler
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	// Redis backs the crisis cache and event deduplication. Both degrade
	// gracefully, so an unreachable Redis is not fatal.
	var (
		crisisCache repository.CrisisCache
		idemStore   pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	)
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("redis unavailable, running without crisis cache and with in-memory deduplication",
			slog.String("error", err.Error()),
		)
		redisClient = nil
	} else {
		crisisCache = redis.NewCrisisCache(redisClient, cfg.CrisisCacheTTL)
		idemStore = pkgkafka.NewRedisIdempotencyStore(redisClient, serviceName+":events", cfg.IdempotencyTTL)
		logger.Info("connected to Redis", slog.String("host", cfg.RedisHost), slog.Int("port", cfg.RedisPort))
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	reviewRepo := postgres.NewReviewRepository(pool)
	caseRepo := postgres.NewRecoveryCaseRepository(pool)
	experimentRepo := postgres.NewExperimentRepository(pool)
	goalRepo := postgres.NewGoalRepository(pool)
	crisisRepo := postgres.NewCrisisRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	drafter, poster := newCollaborators(cfg, logger)

	crisisService := service.NewCrisisService(
		reviewRepo, crisisRepo, crisisCache, eventProducer,
		cfg.Bombing(), cfg.NegativeRatingThreshold, cfg.AnalyticsParallelism, logger,
	)
	reviewService := service.NewReviewService(
		reviewRepo, caseRepo, crisisService, eventProducer,
		cfg.Authenticity(), cfg.RecoveryPolicy(), cfg.Scoring(), logger,
	)
	recoveryService := service.NewRecoveryService(caseRepo, reviewRepo, drafter, poster, eventProducer, logger)
	analyticsService := service.NewAnalyticsService(reviewRepo, caseRepo, crisisService, cfg.Authenticity(), cfg.Scoring(), logger)
	experimentService := service.NewExperimentService(experimentRepo, eventProducer, cfg.ExperimentPolicy(), logger)
	goalService := service.NewGoalService(goalRepo, reviewRepo, logger)

	// Kafka event consumers.
	consumerHandler := event.NewConsumerHandler(reviewService, recoveryService, logger)
	consumers := event.NewConsumers(event.ConsumersConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaConsumerGroup,
		Store:   idemStore,
		DLQ:     dlq,
	}, consumerHandler, logger)

	// Scheduled jobs.
	sched := scheduler.New(cfg.JobTimeout, logger)
	if err := sched.Register("crisis-reevaluate", cfg.CrisisReevaluateSchedule, crisisService.ReevaluateActive); err != nil {
		pool.Close()
		return nil, err
	}
	if err := sched.Register("goal-rollover", cfg.GoalRolloverSchedule, goalService.Rollover); err != nil {
		pool.Close()
		return nil, err
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(handler.Services{
		Reviews:     reviewService,
		Recovery:    recoveryService,
		Crisis:      crisisService,
		Analytics:   analyticsService,
		Experiments: experimentService,
		Goals:       goalService,
	}, healthHandler, handler.RouterConfig{
		CORS:              corsCfg,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		dlq:            dlq,
		consumers:      consumers,
		scheduler:      sched,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newCollaborators returns the response drafter and platform poster. Remote
// collaborators go through a shared circuit breaker; an empty URL selects
// the logging mock.
func newCollaborators(cfg *config.Config, logger *slog.Logger) (platform.Drafter, platform.Poster) {
	var drafter platform.Drafter = platformmock.NewDrafter(logger)
	var poster platform.Poster = platformmock.NewPoster(logger)
	if cfg.DrafterURL == "" && cfg.PosterURL == "" {
		logger.Info("platform collaborators not configured, using mocks")
		return drafter, poster
	}

	baseClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.PlatformTimeout,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
	})
	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "reputation-platform",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     cfg.CBInterval,
		Timeout:      cfg.CBTimeout,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(platform.CircuitOpenFallback)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Duration("timeout", cbCfg.Timeout),
	)

	if cfg.DrafterURL != "" {
		drafter = platform.NewHTTPDrafter(cbClient, cfg.DrafterURL, logger)
	}
	if cfg.PosterURL != "" {
		poster = platform.NewHTTPPoster(cbClient, cfg.PosterURL, logger)
	}
	return drafter, poster
}

// Run starts the HTTP server, Kafka consumers and scheduled jobs, then blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Start Kafka consumers.
	for _, consumer := range a.consumers {
		c := consumer
		go func() {
			if err := c.Start(ctx); err != nil {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}()
	}

	a.scheduler.Start()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Scheduler (wait for running jobs)
// 3. Kafka consumers
// 4. Tracer (flush pending spans)
// 5. Kafka producers, Redis and the PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	schedCtx, schedCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer schedCancel()
	if err := a.scheduler.Stop(schedCtx); err != nil {
		a.logger.Error("scheduler shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, consumer := range a.consumers {
		if err := consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
