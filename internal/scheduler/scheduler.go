// Package scheduler runs the periodic maintenance jobs of the reputation
// engine on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

var jobRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reputation_scheduled_job_runs_total",
		Help: "Total number of scheduled job runs by outcome",
	},
	[]string{"job", "outcome"},
)

// JobFunc performs one run of a job and reports how many items it touched.
type JobFunc func(ctx context.Context) (int, error)

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. Each run gets at most timeout to finish.
func New(timeout time.Duration, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register schedules fn under name using a standard five-field cron spec or
// a descriptor such as "@every 5m".
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule job %s with spec %q: %w", name, spec, err)
	}
	s.logger.Info("scheduled job registered",
		slog.String("job", name),
		slog.String("spec", spec),
	)
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels in-flight ones and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled jobs: %w", ctx.Err())
	}
}

func (s *Scheduler) run(name string, fn JobFunc) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := fn(ctx)
	if err != nil {
		jobRuns.WithLabelValues(name, "error").Inc()
		s.logger.ErrorContext(ctx, "scheduled job failed",
			slog.String("job", name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return
	}
	jobRuns.WithLabelValues(name, "success").Inc()
	s.logger.InfoContext(ctx, "scheduled job finished",
		slog.String("job", name),
		slog.Int("items", n),
		slog.Duration("duration", time.Since(start)),
	)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
