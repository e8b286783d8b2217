package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulwilltell/carbonplane/internal/observability"
)

// Scheduler evaluates its cron expressions once a minute against
// wall-clock time and runs the job whose expression matches. A job still
// running when its next tick matches is skipped rather than queued.
type Scheduler struct {
	monthlyExpr Expression
	overdueExpr Expression
	summaryExpr Expression
	monthlyJob  *MonthlyAggregationJob
	overdueJob  *OverdueDetectionJob
	summaryJob  *SummaryCreationJob
	loc         *time.Location
	logger      *slog.Logger
	metrics     *observability.Metrics

	monthlyRunning atomic.Bool
	overdueRunning atomic.Bool
	summaryRunning atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler from already-constructed jobs, so the monthly,
// overdue, and summary-creation jobs can be unit-tested independently of
// the ticking loop. summaryExpr/summaryJob are optional (zero
// Expression/nil job disables that tick).
func New(monthlyExpr, overdueExpr, summaryExpr Expression, monthlyJob *MonthlyAggregationJob, overdueJob *OverdueDetectionJob, summaryJob *SummaryCreationJob, loc *time.Location, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		monthlyExpr: monthlyExpr, overdueExpr: overdueExpr, summaryExpr: summaryExpr,
		monthlyJob: monthlyJob, overdueJob: overdueJob, summaryJob: summaryJob,
		loc: loc, logger: logger, metrics: metrics,
	}
}

// Start begins the minute-resolution evaluation loop. It returns
// immediately; call Stop to shut it down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the evaluation loop and waits for any in-flight job to
// finish (bounded by ctx's deadline).
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			s.evaluate(ctx, tick)
		}
	}
}

// evaluate is exported at package level via Scheduler for tests that want
// to drive a specific instant without waiting on the real clock.
func (s *Scheduler) evaluate(ctx context.Context, now time.Time) {
	now = now.In(s.loc)

	if s.monthlyExpr.Matches(now) {
		s.runMonthly(ctx, now)
	}
	if s.overdueExpr.Matches(now) {
		s.runOverdue(ctx, now)
	}
	if s.summaryJob != nil && s.summaryExpr.Matches(now) {
		s.runSummary(ctx, now)
	}
}

// Evaluate runs whichever jobs match now, skipping any already in flight.
// Exposed so callers (and tests) can drive the scheduler off a specific
// instant instead of only the real-time ticker.
func (s *Scheduler) Evaluate(ctx context.Context, now time.Time) {
	s.evaluate(ctx, now)
}

func (s *Scheduler) runMonthly(ctx context.Context, now time.Time) {
	if !s.monthlyRunning.CompareAndSwap(false, true) {
		s.logger.Warn("monthly aggregation tick skipped: previous run still in progress")
		if s.metrics != nil {
			s.metrics.SkippedNonReentrant("monthly_aggregation")
		}
		return
	}
	go func() {
		defer s.monthlyRunning.Store(false)
		var stop func(string)
		if s.metrics != nil {
			stop = s.metrics.ObserveSchedulerJob("monthly_aggregation")
		}
		err := s.monthlyJob.Run(ctx, now)
		if stop != nil {
			stop(outcomeOf(err))
		}
		if err != nil {
			s.logger.Error("monthly aggregation job failed", "error", err)
		}
	}()
}

func (s *Scheduler) runOverdue(ctx context.Context, now time.Time) {
	if !s.overdueRunning.CompareAndSwap(false, true) {
		s.logger.Warn("overdue detection tick skipped: previous run still in progress")
		if s.metrics != nil {
			s.metrics.SkippedNonReentrant("overdue_detection")
		}
		return
	}
	go func() {
		defer s.overdueRunning.Store(false)
		var stop func(string)
		if s.metrics != nil {
			stop = s.metrics.ObserveSchedulerJob("overdue_detection")
		}
		err := s.overdueJob.Run(ctx, now)
		if stop != nil {
			stop(outcomeOf(err))
		}
		if err != nil {
			s.logger.Error("overdue detection job failed", "error", err)
		}
	}()
}

func (s *Scheduler) runSummary(ctx context.Context, now time.Time) {
	if !s.summaryRunning.CompareAndSwap(false, true) {
		s.logger.Warn("summary creation tick skipped: previous run still in progress")
		if s.metrics != nil {
			s.metrics.SkippedNonReentrant("summary_creation")
		}
		return
	}
	go func() {
		defer s.summaryRunning.Store(false)
		var stop func(string)
		if s.metrics != nil {
			stop = s.metrics.ObserveSchedulerJob("summary_creation")
		}
		err := s.summaryJob.Run(ctx, now)
		if stop != nil {
			stop(outcomeOf(err))
		}
		if err != nil {
			s.logger.Error("summary creation job failed", "error", err)
		}
	}()
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
