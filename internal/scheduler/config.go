package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/paulwilltell/carbonplane/internal/config"
	"github.com/paulwilltell/carbonplane/internal/events"
	"github.com/paulwilltell/carbonplane/internal/observability"
)

// FromConfig parses cfg's three cron expressions and IANA timezone and
// builds a ready-to-start Scheduler around the given store collaborators.
// creator may be nil, disabling the scheduled summary-creation tick (the
// invalidation-driven path still recomputes summaries on every write).
// configs may be nil, falling back to in-process collection bookkeeping.
// metrics may be nil to disable recording.
func FromConfig(cfg config.SchedulerConfig, meas MeasurementStore, fc FlowchartStore, configs CollectionConfigStore, creator SummaryCreator, bus events.Bus, logger *slog.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load timezone %q: %w", cfg.Timezone, err)
	}
	monthlyExpr, err := Parse(cfg.MonthlyAggregationCron)
	if err != nil {
		return nil, fmt.Errorf("scheduler: monthly aggregation cron: %w", err)
	}
	overdueExpr, err := Parse(cfg.OverdueCheckCron)
	if err != nil {
		return nil, fmt.Errorf("scheduler: overdue check cron: %w", err)
	}
	summaryExpr, err := Parse(cfg.SummaryCreationCron)
	if err != nil {
		return nil, fmt.Errorf("scheduler: summary creation cron: %w", err)
	}

	monthlyJob := NewMonthlyAggregationJob(meas, fc, bus, loc, logger)
	overdueJob := NewOverdueDetectionJob(meas, fc, configs, bus, loc, logger)
	var summaryJob *SummaryCreationJob
	if creator != nil {
		summaryJob = NewSummaryCreationJob(fc, creator, loc, logger)
	}
	return New(monthlyExpr, overdueExpr, summaryExpr, monthlyJob, overdueJob, summaryJob, loc, logger, metrics), nil
}
