package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/paulwilltell/carbonplane/internal/events"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/measurement"
)

const testClient = "client-1"
const testNode = "node-1"
const testScope = "DIESEL_GENSET"

func seedFlowchartWithManualScope(t *testing.T, cadence time.Duration) *flowchart.Service {
	t.Helper()
	svc := flowchart.NewService(flowchart.ServiceConfig{Repository: flowchart.NewMemoryRepository()})
	_, _, err := svc.UpsertFlowchart(context.Background(), testClient, []flowchart.NodeUpsert{
		{
			ID: testNode, Label: "Site A",
			Scopes: []flowchart.IncomingScope{
				{ScopeDescriptor: flowchart.ScopeDescriptor{
					ScopeIdentifier: testScope, InputType: flowchart.InputManual, CollectionFrequency: cadence,
				}},
			},
		},
	})
	if err != nil {
		t.Fatalf("seed flowchart: %v", err)
	}
	return svc
}

func marchEntries() []measurement.Entry {
	var entries []measurement.Entry
	for day := 1; day <= 3; day++ {
		ts := time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC)
		entries = append(entries, measurement.Entry{
			ID: ts.String(), ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope,
			Timestamp: ts, ProcessingStatus: measurement.StatusProcessed,
			DataValues:          map[string]float64{"fuelConsumption": 10},
			CalculatedEmissions: measurement.CalculatedEmissions{Incoming: measurement.GasVector{CO2e: 4}},
		})
	}
	return entries
}

func TestMonthlyAggregationCollapsesElapsedMonth(t *testing.T) {
	fc := seedFlowchartWithManualScope(t, 0)
	measRepo := measurement.NewInMemoryRepository()
	ctx := context.Background()

	key := measurement.Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope}
	if err := measRepo.ReplaceStream(ctx, key, marchEntries()); err != nil {
		t.Fatalf("seed stream: %v", err)
	}

	job := NewMonthlyAggregationJob(measRepo, fc, nil, time.UTC, nil)
	runAt := time.Date(2024, 4, 1, 0, 30, 0, 0, time.UTC)
	if err := job.Run(ctx, runAt); err != nil {
		t.Fatalf("run: %v", err)
	}

	stream, err := measRepo.Stream(ctx, key)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var nonSummary, summaries int
	var summaryEntry measurement.Entry
	for _, e := range stream {
		if e.IsSummary {
			summaries++
			summaryEntry = e
		} else {
			nonSummary++
		}
	}
	if nonSummary != 0 {
		t.Fatalf("expected 0 non-summary March entries remaining, got %d", nonSummary)
	}
	if summaries != 1 {
		t.Fatalf("expected exactly 1 summary entry, got %d", summaries)
	}
	if summaryEntry.SummaryYear != 2024 || summaryEntry.SummaryMonth != 3 {
		t.Fatalf("summaryPeriod = {%d, %d}, want {2024, 3}", summaryEntry.SummaryYear, summaryEntry.SummaryMonth)
	}
	if summaryEntry.CalculatedEmissions.Incoming.CO2e != 12 {
		t.Fatalf("summary total CO2e = %v, want 12 (3 x 4)", summaryEntry.CalculatedEmissions.Incoming.CO2e)
	}
	if summaryEntry.DataValues["fuelConsumption"] != 30 {
		t.Fatalf("summary dataValues[fuelConsumption] = %v, want 30", summaryEntry.DataValues["fuelConsumption"])
	}
}

func TestMonthlyAggregationNeverRecreatesExistingSummary(t *testing.T) {
	fc := seedFlowchartWithManualScope(t, 0)
	measRepo := measurement.NewInMemoryRepository()
	ctx := context.Background()

	key := measurement.Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope}
	existingSummary := measurement.Entry{
		ID: "existing", ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope,
		IsSummary: true, SummaryYear: 2024, SummaryMonth: 3,
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DataValues: map[string]float64{"fuelConsumption": 999}, // sentinel: must survive untouched
	}
	if err := measRepo.ReplaceStream(ctx, key, []measurement.Entry{existingSummary}); err != nil {
		t.Fatalf("seed stream: %v", err)
	}

	job := NewMonthlyAggregationJob(measRepo, fc, nil, time.UTC, nil)
	if err := job.Run(ctx, time.Date(2024, 5, 1, 0, 30, 0, 0, time.UTC)); err != nil {
		t.Fatalf("run: %v", err)
	}

	stream, err := measRepo.Stream(ctx, key)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(stream) != 1 {
		t.Fatalf("expected the single existing summary to remain alone, got %d entries", len(stream))
	}
	if stream[0].DataValues["fuelConsumption"] != 999 {
		t.Fatalf("existing summary was recreated/overwritten")
	}
}

func TestOverdueDetectionFlagsStaleScope(t *testing.T) {
	fc := seedFlowchartWithManualScope(t, 24*time.Hour)
	measRepo := measurement.NewInMemoryRepository()
	ctx := context.Background()

	key := measurement.Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope}
	lastEntry := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := measRepo.ReplaceStream(ctx, key, []measurement.Entry{
		{ID: "e1", ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope, Timestamp: lastEntry},
	}); err != nil {
		t.Fatalf("seed stream: %v", err)
	}

	configs := NewInMemoryCollectionConfigStore()
	bus := events.NewRecordingBus(nil)
	job := NewOverdueDetectionJob(measRepo, fc, configs, bus, time.UTC, nil)
	now := lastEntry.Add(48 * time.Hour)
	if err := job.Run(ctx, now); err != nil {
		t.Fatalf("run: %v", err)
	}
	cfg, found, err := configs.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected collection config persisted: found=%v err=%v", found, err)
	}
	if cfg.LastAlertedAt.IsZero() {
		t.Fatalf("expected scope to be flagged overdue")
	}
	if want := lastEntry.Add(24 * time.Hour); !cfg.NextDue.Equal(want) {
		t.Fatalf("NextDue = %v, want %v", cfg.NextDue, want)
	}
	if got := len(bus.EventsOfType(events.EventCollectionOverdue)); got != 1 {
		t.Fatalf("published %d overdue events, want 1", got)
	}

	// A second run in the same overdue window must not alert again.
	if err := job.Run(ctx, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := len(bus.EventsOfType(events.EventCollectionOverdue)); got != 1 {
		t.Fatalf("second run re-alerted: %d events, want 1", got)
	}
}

func TestOverdueDetectionSkipsScopesWithNoCadence(t *testing.T) {
	fc := seedFlowchartWithManualScope(t, 0)
	measRepo := measurement.NewInMemoryRepository()
	ctx := context.Background()

	configs := NewInMemoryCollectionConfigStore()
	job := NewOverdueDetectionJob(measRepo, fc, configs, nil, time.UTC, nil)
	if err := job.Run(ctx, time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	key := measurement.Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope}
	if _, found, _ := configs.Get(ctx, key); found {
		t.Fatalf("expected no collection config written when cadence is unconfigured")
	}
}
