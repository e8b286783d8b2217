package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulwilltell/carbonplane/internal/events"
	"github.com/paulwilltell/carbonplane/internal/measurement"
)

// OverdueDetectionJob flags a scope whose collection has gone silent past
// its configured cadence and emits at most one alert per overdue window:
// once a stream is alerted on, it is not alerted again until a new entry
// arrives and the stream goes overdue again. Alert state lives in the
// CollectionConfigStore so the guarantee survives restarts.
type OverdueDetectionJob struct {
	measurement MeasurementStore
	flowcharts  FlowchartStore
	configs     CollectionConfigStore
	bus         events.Bus
	loc         *time.Location
	logger      *slog.Logger
}

func NewOverdueDetectionJob(meas MeasurementStore, fc FlowchartStore, configs CollectionConfigStore, bus events.Bus, loc *time.Location, logger *slog.Logger) *OverdueDetectionJob {
	if logger == nil {
		logger = slog.Default()
	}
	if configs == nil {
		configs = NewInMemoryCollectionConfigStore()
	}
	return &OverdueDetectionJob{
		measurement: meas, flowcharts: fc, configs: configs, bus: bus, loc: loc, logger: logger,
	}
}

// Run scans every active client's scopes with a configured cadence.
func (j *OverdueDetectionJob) Run(ctx context.Context, now time.Time) error {
	now = now.In(j.loc)
	active, err := j.flowcharts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list active flowcharts: %w", err)
	}

	for _, fc := range active {
		for nodeID, node := range fc.Nodes {
			for _, s := range node.Scopes {
				if s.CollectionFrequency <= 0 {
					continue
				}
				key := measurement.Key{ClientID: fc.ClientID, NodeID: nodeID, ScopeIdentifier: s.ScopeIdentifier}
				j.checkScope(ctx, key, s.CollectionFrequency, now)
			}
		}
	}
	return nil
}

func (j *OverdueDetectionJob) checkScope(ctx context.Context, key measurement.Key, cadence time.Duration, now time.Time) {
	stream, err := j.measurement.Stream(ctx, key)
	if err != nil {
		j.logger.Error("overdue check: load stream failed", "error", err)
		return
	}

	var lastEntry time.Time
	for _, e := range stream {
		if e.Timestamp.After(lastEntry) {
			lastEntry = e.Timestamp
		}
	}

	cfg, found, err := j.configs.Get(ctx, key)
	if err != nil {
		j.logger.Error("overdue check: load collection config failed", "error", err)
		return
	}
	if !found {
		cfg = CollectionConfig{Key: key}
	}
	cfg.Cadence = cadence
	cfg.LastCollection = lastEntry
	var alertAfter time.Time
	if !lastEntry.IsZero() {
		cfg.NextDue = lastEntry.Add(cadence)
		alertAfter = cfg.NextDue
		if cfg.AlertThreshold > 0 {
			alertAfter = alertAfter.Add(time.Duration(cfg.AlertThreshold * float64(cadence)))
		}
	}

	overdue := !lastEntry.IsZero() && now.After(alertAfter)
	alreadyAlerted := !cfg.LastAlertedAt.IsZero() && !cfg.LastAlertedAt.Before(lastEntry)

	if overdue && !alreadyAlerted {
		cfg.LastAlertedAt = now
		j.logger.Warn("scope collection overdue", "client_id", key.ClientID, "node_id", key.NodeID,
			"scope_identifier", key.ScopeIdentifier, "last_entry", lastEntry, "next_due", cfg.NextDue)
		if j.bus != nil {
			_ = j.bus.Publish(ctx, events.NewEvent(events.EventCollectionOverdue, map[string]any{
				"clientId": key.ClientID, "nodeId": key.NodeID, "scopeIdentifier": key.ScopeIdentifier,
				"lastEntryTimestamp": lastEntry, "nextDue": cfg.NextDue,
			}).WithSource("scheduler"))
		}
	}

	if err := j.configs.Upsert(ctx, cfg); err != nil {
		j.logger.Error("overdue check: save collection config failed", "error", err)
	}
}
