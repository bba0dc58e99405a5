package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/03aar/review-sub000/internal/service"
	"github.com/03aar/review-sub000/pkg/health"
	"github.com/03aar/review-sub000/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "reputation"

// Services groups the application services exposed over HTTP.
type Services struct {
	Reviews     *service.ReviewService
	Recovery    *service.RecoveryService
	Crisis      *service.CrisisService
	Analytics   *service.AnalyticsService
	Experiments *service.ExperimentService
	Goals       *service.GoalService
}

// RouterConfig carries the transport settings of the router.
type RouterConfig struct {
	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string
	RequestTimeout    time.Duration
}

// NewRouter creates a chi router with all reputation engine routes registered.
func NewRouter(
	svcs Services,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(timeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	if len(cfg.PprofAllowedCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	reviewHandler := NewReviewHandler(svcs.Reviews, svcs.Recovery, logger)
	recoveryHandler := NewRecoveryHandler(svcs.Recovery, logger)
	businessHandler := NewBusinessHandler(svcs.Analytics, svcs.Crisis, svcs.Goals, logger)
	experimentHandler := NewExperimentHandler(svcs.Experiments, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/reviews", func(r chi.Router) {
			r.Use(middleware.RequestLogger(logger))
			r.Post("/", reviewHandler.IngestReview)
			r.Get("/{id}", reviewHandler.GetReview)
			r.Post("/{id}/respond", reviewHandler.Respond)
		})

		r.Route("/businesses/{businessID}", func(r chi.Router) {
			// Mounted here so the business ID is already routed.
			r.Use(middleware.RequestLogger(logger))
			r.Get("/analytics", businessHandler.GetAnalytics)
			r.Get("/reputation", businessHandler.GetReputation)
			r.Get("/crisis", businessHandler.GetCrisis)
			r.Post("/crisis/dismiss", businessHandler.DismissCrisis)
			r.Get("/experiments", experimentHandler.ListExperiments)
			r.Put("/goals/{period}", businessHandler.SetGoal)
			r.Get("/goals/{period}/forecast", businessHandler.GetForecast)
		})

		r.Route("/recovery-cases", func(r chi.Router) {
			r.Use(middleware.RequestLogger(logger))
			r.Get("/", recoveryHandler.ListCases)
			r.Get("/{id}", recoveryHandler.GetCase)
			r.Post("/{id}/transitions", recoveryHandler.Transition)
		})

		r.Route("/experiments", func(r chi.Router) {
			r.Use(middleware.RequestLogger(logger))
			r.Post("/", experimentHandler.CreateExperiment)
			r.Get("/{id}", experimentHandler.GetExperiment)
			r.Get("/{id}/evaluation", experimentHandler.GetEvaluation)
			r.Post("/{id}/sends", experimentHandler.RecordSend)
			r.Post("/{id}/conversions", experimentHandler.RecordConversion)
			r.Post("/{id}/stop", experimentHandler.Stop)
		})
	})

	return r
}
