package config

import (
	"fmt"
	"time"

	"github.com/03aar/review-sub000/internal/authenticity"
	"github.com/03aar/review-sub000/internal/experiment"
	"github.com/03aar/review-sub000/internal/recovery"
	"github.com/03aar/review-sub000/internal/scoring"
	pkgconfig "github.com/03aar/review-sub000/pkg/config"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// Config holds all configuration for the reputation engine.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"REPUTATION_HTTP_PORT" envDefault:"8012"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"reputation"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"reputation_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"reputation_db"`
	PostgresSSL  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	SlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost      string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass      string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	CrisisCacheTTL time.Duration `env:"CRISIS_CACHE_TTL" envDefault:"10m"`

	// Kafka
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"reputation-engine"`
	IdempotencyTTL     time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Black-box collaborators. Empty URLs select the logging mock.
	DrafterURL      string        `env:"RESPONSE_DRAFTER_URL" envDefault:""`
	PosterURL       string        `env:"PLATFORM_POSTER_URL" envDefault:""`
	PlatformTimeout time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"10s"`

	// Circuit breaker around the platform collaborators
	CBMaxRequests  uint32        `env:"CB_MAX_REQUESTS" envDefault:"3"`
	CBInterval     time.Duration `env:"CB_INTERVAL" envDefault:"60s"`
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.6"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Scheduled jobs (robfig/cron, standard 5-field syntax or descriptors)
	CrisisReevaluateSchedule string        `env:"CRISIS_REEVALUATE_SCHEDULE" envDefault:"@every 5m"`
	GoalRolloverSchedule     string        `env:"GOAL_ROLLOVER_SCHEDULE" envDefault:"5 0 1 * *"`
	JobTimeout               time.Duration `env:"SCHEDULED_JOB_TIMEOUT" envDefault:"2m"`
	AnalyticsParallelism     int           `env:"ANALYTICS_PARALLELISM" envDefault:"8"`

	// Reputation score
	RecentWindowDays     int `env:"REPUTATION_RECENT_WINDOW_DAYS" envDefault:"30"`
	TopicMinReviews      int `env:"TOPIC_MIN_REVIEWS" envDefault:"5"`
	TopicSampleSize      int `env:"TOPIC_SAMPLE_SIZE" envDefault:"200"`
	ResponseRateTarget   int `env:"COMPLIANCE_RESPONSE_RATE_TARGET" envDefault:"80"`
	SuspiciousShareLimit int `env:"COMPLIANCE_SUSPICIOUS_SHARE_LIMIT" envDefault:"10"`
	StaleCaseHours       int `env:"COMPLIANCE_STALE_CASE_HOURS" envDefault:"48"`

	// Authenticity heuristics
	HighLikelihoodBand     int      `env:"AUTH_HIGH_BAND" envDefault:"80"`
	MediumLikelihoodBand   int      `env:"AUTH_MEDIUM_BAND" envDefault:"60"`
	NewAccountWeight       int      `env:"AUTH_WEIGHT_NEW_ACCOUNT" envDefault:"30"`
	GenericTextWeight      int      `env:"AUTH_WEIGHT_GENERIC_TEXT" envDefault:"25"`
	BurstMemberWeight      int      `env:"AUTH_WEIGHT_BURST_MEMBER" envDefault:"30"`
	CategoryMismatchWeight int      `env:"AUTH_WEIGHT_CATEGORY_MISMATCH" envDefault:"20"`
	NewAccountMaxAgeDays   int      `env:"AUTH_NEW_ACCOUNT_MAX_AGE_DAYS" envDefault:"14"`
	GenericTextMinWords    int      `env:"AUTH_GENERIC_TEXT_MIN_WORDS" envDefault:"5"`
	GenericPhrases         []string `env:"AUTH_GENERIC_PHRASES" envDefault:"great service,highly recommend,best ever,worst ever,terrible service,do not go,would not recommend,five stars,one star" envSeparator:","`

	// Review bombing
	NegativeRatingThreshold int     `env:"NEGATIVE_RATING_THRESHOLD" envDefault:"2"`
	BombingMultiplier       float64 `env:"BOMBING_MULTIPLIER" envDefault:"4"`
	BombingMinBurst         int     `env:"BOMBING_MIN_BURST" envDefault:"1"`
	BombingBaselineDays     int     `env:"BOMBING_BASELINE_DAYS" envDefault:"30"`

	// Experiments
	SignificanceThreshold float64 `env:"EXPERIMENT_SIGNIFICANCE_THRESHOLD" envDefault:"95"`
	AutoPromote           bool    `env:"EXPERIMENT_AUTO_PROMOTE" envDefault:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load reputation config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. Malformed engine thresholds are
// reported as configuration errors so the process refuses to start.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}
	if c.AnalyticsParallelism < 1 {
		return apperrors.ConfigurationError("ANALYTICS_PARALLELISM must be at least 1")
	}
	if c.RecentWindowDays < 1 {
		return apperrors.ConfigurationError("REPUTATION_RECENT_WINDOW_DAYS must be at least 1")
	}
	if c.TopicMinReviews < 1 || c.TopicSampleSize < c.TopicMinReviews {
		return apperrors.ConfigurationError("TOPIC_SAMPLE_SIZE must be at least TOPIC_MIN_REVIEWS, which must be positive")
	}
	if c.ResponseRateTarget < 0 || c.ResponseRateTarget > 100 {
		return apperrors.ConfigurationError("COMPLIANCE_RESPONSE_RATE_TARGET must be a percentage")
	}
	if c.SuspiciousShareLimit < 0 || c.SuspiciousShareLimit > 100 {
		return apperrors.ConfigurationError("COMPLIANCE_SUSPICIOUS_SHARE_LIMIT must be a percentage")
	}
	if c.StaleCaseHours < 1 {
		return apperrors.ConfigurationError("COMPLIANCE_STALE_CASE_HOURS must be at least 1")
	}
	if c.NegativeRatingThreshold < 1 || c.NegativeRatingThreshold > 5 {
		return apperrors.ConfigurationError(fmt.Sprintf("NEGATIVE_RATING_THRESHOLD must be between 1 and 5, got %d", c.NegativeRatingThreshold))
	}
	if err := c.Authenticity().Validate(); err != nil {
		return err
	}
	if err := c.Bombing().Validate(); err != nil {
		return err
	}
	return c.ExperimentPolicy().Validate()
}

// Authenticity returns the per-review heuristic parameters.
func (c *Config) Authenticity() authenticity.Config {
	return authenticity.Config{
		Weights: authenticity.Weights{
			NewAccount:       c.NewAccountWeight,
			GenericText:      c.GenericTextWeight,
			BurstMember:      c.BurstMemberWeight,
			CategoryMismatch: c.CategoryMismatchWeight,
		},
		HighBand:             c.HighLikelihoodBand,
		MediumBand:           c.MediumLikelihoodBand,
		NewAccountMaxAgeDays: c.NewAccountMaxAgeDays,
		GenericTextMinWords:  c.GenericTextMinWords,
		GenericPhrases:       c.GenericPhrases,
	}
}

// Bombing returns the review-bombing detection parameters.
func (c *Config) Bombing() authenticity.BombingConfig {
	return authenticity.BombingConfig{
		Multiplier:    c.BombingMultiplier,
		MinBurstCount: c.BombingMinBurst,
		Window:        24 * time.Hour,
		BaselineDays:  c.BombingBaselineDays,
	}
}

// ExperimentPolicy returns the significance and promotion policy.
func (c *Config) ExperimentPolicy() experiment.Policy {
	return experiment.Policy{
		SignificanceThreshold: c.SignificanceThreshold,
		AutoPromote:           c.AutoPromote,
	}
}

// RecoveryPolicy returns the rule for admitting reviews to recovery.
func (c *Config) RecoveryPolicy() recovery.Policy {
	return recovery.Policy{NegativeRatingThreshold: c.NegativeRatingThreshold}
}

// Scoring returns the reputation and compliance parameters.
func (c *Config) Scoring() scoring.Config {
	return scoring.Config{
		RecentWindow:         time.Duration(c.RecentWindowDays) * 24 * time.Hour,
		TopicMinReviews:      c.TopicMinReviews,
		TopicSampleSize:      c.TopicSampleSize,
		ResponseRateTarget:   c.ResponseRateTarget,
		SuspiciousShareLimit: c.SuspiciousShareLimit,
		StaleCaseAfter:       time.Duration(c.StaleCaseHours) * time.Hour,
	}
}
