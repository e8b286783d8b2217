package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulwilltell/carbonplane/internal/summary"
)

// SummaryCreator is the narrow view of the summary materialiser the
// scheduled summary-creation job needs: recompute every period window
// containing now for a client, even absent a fresh measurement entry, so
// a client with no activity in a new period still gets an (empty) current
// summary document rather than a stale one from the last period it had
// data in.
type SummaryCreator interface {
	Recalculate(ctx context.Context, clientID string, at time.Time) ([]summary.EmissionSummary, []string, error)
}

// SummaryCreationJob runs the summary-creation cron: it proactively
// materialises the current period's summaries for every active client,
// independent of the invalidation the ingestion/reduction pipelines
// already trigger on every write.
type SummaryCreationJob struct {
	flowcharts FlowchartStore
	creator    SummaryCreator
	loc        *time.Location
	logger     *slog.Logger
}

func NewSummaryCreationJob(fc FlowchartStore, creator SummaryCreator, loc *time.Location, logger *slog.Logger) *SummaryCreationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryCreationJob{flowcharts: fc, creator: creator, loc: loc, logger: logger}
}

func (j *SummaryCreationJob) Run(ctx context.Context, now time.Time) error {
	now = now.In(j.loc)
	active, err := j.flowcharts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list active flowcharts: %w", err)
	}
	for _, fc := range active {
		if _, _, err := j.creator.Recalculate(ctx, fc.ClientID, now); err != nil {
			j.logger.Error("scheduled summary creation failed", "client_id", fc.ClientID, "error", err)
		}
	}
	return nil
}
