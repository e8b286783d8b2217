package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paulwilltell/carbonplane/internal/events"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/measurement"
)

// MonthlyAggregationJob collapses each stream's raw entries for every
// fully-elapsed calendar month into one summary entry and evicts the raw
// rows. Missed months (the job didn't run
// for a while) are caught up one month at a time starting from the oldest
// non-summarised entry.
type MonthlyAggregationJob struct {
	measurement MeasurementStore
	flowcharts  FlowchartStore
	bus         events.Bus
	loc         *time.Location
	logger      *slog.Logger
}

func NewMonthlyAggregationJob(meas MeasurementStore, fc FlowchartStore, bus events.Bus, loc *time.Location, logger *slog.Logger) *MonthlyAggregationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonthlyAggregationJob{measurement: meas, flowcharts: fc, bus: bus, loc: loc, logger: logger}
}

// clientConcurrency bounds the parallel per-client aggregation fan-out so
// a large tenant roster cannot saturate the storage collaborator.
const clientConcurrency = 4

// Run processes every active client's manual-input streams. Clients are
// archived in parallel; the streams of one client stay sequential, since
// each stream's archival holds its own critical section anyway.
func (j *MonthlyAggregationJob) Run(ctx context.Context, now time.Time) error {
	now = now.In(j.loc)
	active, err := j.flowcharts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list active flowcharts: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(clientConcurrency)
	for _, fc := range active {
		g.Go(func() error {
			return j.archiveClient(ctx, fc, now)
		})
	}
	return g.Wait()
}

// archiveClient walks one client's manual streams. A failing stream is
// logged and skipped so one bad stream never blocks the rest of the
// client's archival; only context cancellation aborts the walk.
func (j *MonthlyAggregationJob) archiveClient(ctx context.Context, fc flowchart.Flowchart, now time.Time) error {
	manualScopes := make(map[string]bool)
	for _, node := range fc.Nodes {
		for _, s := range node.Scopes {
			if s.InputType == flowchart.InputManual {
				manualScopes[s.ScopeIdentifier] = true
			}
		}
	}

	for _, key := range j.measurement.AllStreamsForClient(fc.ClientID) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !manualScopes[key.ScopeIdentifier] {
			continue
		}
		if err := j.archiveStream(ctx, key, now); err != nil {
			j.logger.Error("monthly aggregation failed for stream", "client_id", key.ClientID,
				"node_id", key.NodeID, "scope_identifier", key.ScopeIdentifier, "error", err)
		}
	}
	return nil
}

func (j *MonthlyAggregationJob) archiveStream(ctx context.Context, key measurement.Key, now time.Time) error {
	stream, err := j.measurement.Stream(ctx, key)
	if err != nil {
		return fmt.Errorf("load stream: %w", err)
	}

	oldestYear, oldestMonth, ok := oldestNonSummaryMonth(stream)
	if !ok {
		return nil
	}

	summarised := make(map[[2]int]bool)
	for _, e := range stream {
		if e.IsSummary {
			summarised[[2]int{e.SummaryYear, e.SummaryMonth}] = true
		}
	}

	currentYear, currentMonth := now.Year(), int(now.Month())
	year, month := oldestYear, oldestMonth
	changed := false

	for (year < currentYear) || (year == currentYear && month < currentMonth) {
		if !summarised[[2]int{year, month}] {
			stream, changed = collapseMonth(stream, key, year, month, j.loc), true
		}
		month++
		if month > 12 {
			month = 1
			year++
		}
	}

	if !changed {
		return nil
	}

	sort.Slice(stream, func(i, k int) bool { return stream[i].Timestamp.Before(stream[k].Timestamp) })
	measurement.RecomputeAggregates(stream)

	if err := j.measurement.ReplaceStream(ctx, key, stream); err != nil {
		return fmt.Errorf("replace stream: %w", err)
	}

	if j.bus != nil {
		_ = j.bus.Publish(ctx, events.NewEvent(events.EventMonthlySummaryCreated, map[string]any{
			"clientId": key.ClientID, "nodeId": key.NodeID, "scopeIdentifier": key.ScopeIdentifier,
		}).WithSource("scheduler"))
	}
	return nil
}

// oldestNonSummaryMonth returns the calendar month of the oldest
// non-summary entry in stream, or ok=false if there is nothing to archive.
func oldestNonSummaryMonth(stream []measurement.Entry) (year, month int, ok bool) {
	for _, e := range stream {
		if e.IsSummary {
			continue
		}
		return e.Timestamp.Year(), int(e.Timestamp.Month()), true
	}
	return 0, 0, false
}

// collapseMonth replaces every non-summary entry in stream that falls
// within (year, month) with a single summary entry carrying their summed
// dataValues and emissions.
func collapseMonth(stream []measurement.Entry, key measurement.Key, year, month int, loc *time.Location) []measurement.Entry {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	summary := measurement.Entry{
		ID:               uuid.NewString(),
		ClientID:         key.ClientID,
		NodeID:           key.NodeID,
		ScopeIdentifier:  key.ScopeIdentifier,
		IsSummary:        true,
		SummaryYear:      year,
		SummaryMonth:     month,
		Timestamp:        from,
		DataValues:       make(map[string]float64),
		ProcessingStatus: measurement.StatusProcessed,
		CreatedAt:        time.Now().UTC(),
	}

	kept := stream[:0:0]
	for _, e := range stream {
		if e.IsSummary || e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			kept = append(kept, e)
			continue
		}
		for field, v := range e.DataValues {
			summary.DataValues[field] += v
		}
		if e.ProcessingStatus == measurement.StatusProcessed {
			g := e.CalculatedEmissions.Incoming
			summary.CalculatedEmissions.Incoming.CO2 += g.CO2
			summary.CalculatedEmissions.Incoming.CH4 += g.CH4
			summary.CalculatedEmissions.Incoming.N2O += g.N2O
			summary.CalculatedEmissions.Incoming.CO2e += g.CO2e
			summary.ScopeType = e.ScopeType
			summary.EmissionFactorSource = e.EmissionFactorSource
		}
	}
	return append(kept, summary)
}
