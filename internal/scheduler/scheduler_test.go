package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/paulwilltell/carbonplane/internal/summary"
)

type fakeSummaryCreator struct {
	calls []string
}

func (f *fakeSummaryCreator) Recalculate(ctx context.Context, clientID string, at time.Time) ([]summary.EmissionSummary, []string, error) {
	f.calls = append(f.calls, clientID)
	return nil, nil, nil
}

func TestSummaryCreationJobRunsForEveryActiveClient(t *testing.T) {
	fc := seedFlowchartWithManualScope(t, 0)
	creator := &fakeSummaryCreator{}
	job := NewSummaryCreationJob(fc, creator, time.UTC, nil)

	if err := job.Run(context.Background(), time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(creator.calls) != 1 || creator.calls[0] != testClient {
		t.Fatalf("expected exactly one call for %q, got %v", testClient, creator.calls)
	}
}

func TestEvaluateSkipsStillRunningMonthlyJob(t *testing.T) {
	fc := seedFlowchartWithManualScope(t, 0)
	measRepo := emptyMeasurementStore()

	monthlyJob := NewMonthlyAggregationJob(measRepo, fc, nil, time.UTC, nil)
	overdueJob := NewOverdueDetectionJob(measRepo, fc, nil, nil, time.UTC, nil)

	expr := MustParse("* * * * *")
	sched := New(expr, expr, expr, monthlyJob, overdueJob, nil, time.UTC, nil, nil)

	sched.monthlyRunning.Store(true) // simulate a still-in-flight run
	sched.Evaluate(context.Background(), time.Now())
	// No assertion beyond "doesn't panic or deadlock": runMonthly must see
	// the flag set and skip launching a second goroutine.
	if !sched.monthlyRunning.Load() {
		t.Fatalf("expected monthlyRunning to remain true (simulated in-flight run untouched)")
	}
}

func emptyMeasurementStore() MeasurementStore {
	return measurementStoreStub{}
}

type measurementStoreStub struct{ MeasurementStore }
