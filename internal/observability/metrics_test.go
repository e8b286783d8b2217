package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/paulwilltell/carbonplane/internal/core"
)

func TestNewMetricsRegistersAndIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IngestionCount.WithLabelValues("manual").Inc()
	m.RecordsIngested.Add(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "carbonplane_ingestion_records_total" {
			found = f
		}
	}
	if found == nil {
		t.Fatal("expected carbonplane_ingestion_records_total to be registered")
	}
	if got := found.Metric[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected counter value 3, got %v", got)
	}
}

func TestObserveIngestionRecordsErrorKindOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	stop := m.ObserveIngestion("manual")
	stop(core.NewError(core.KindValidation, "bad input", errors.New("boom")))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "carbonplane_ingestion_errors_total" {
			found = f
		}
	}
	if found == nil {
		t.Fatal("expected carbonplane_ingestion_errors_total to be registered")
	}
	if got := found.Metric[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
	for _, label := range found.Metric[0].GetLabel() {
		if label.GetName() == "kind" && label.GetValue() != string(core.KindValidation) {
			t.Fatalf("expected kind label %q, got %q", core.KindValidation, label.GetValue())
		}
	}
}

func TestObserveSchedulerJobRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	stop := m.ObserveSchedulerJob("monthly_aggregation")
	stop("ok")
	m.SkippedNonReentrant("monthly_aggregation")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	if !names["carbonplane_scheduler_job_total"] || !names["carbonplane_scheduler_skipped_non_reentrant_total"] {
		t.Fatalf("expected scheduler metrics registered, got %v", names)
	}
}
