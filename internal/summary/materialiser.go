package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/measurement"
	"github.com/paulwilltell/carbonplane/internal/observability"
	"github.com/paulwilltell/carbonplane/internal/reduction"
	"golang.org/x/sync/singleflight"
)

// allPeriodTypes are recomputed together on every invalidation.
var allPeriodTypes = []core.PeriodType{
	core.PeriodDaily, core.PeriodWeekly, core.PeriodMonthly, core.PeriodYearly, core.PeriodAllTime,
}

// Config wires the materialiser's collaborators.
type Config struct {
	Repository  Repository
	Measurement MeasurementLookup
	Reduction   ReductionLookup
	Flowchart   FlowchartLookup
	Timezone    *time.Location
	Logger      *slog.Logger
	Metrics     *observability.Metrics // nil disables recording
	Cache       nodeIndexCache         // nil builds the default in-process cache
}

// Materialiser is the summary engine's single public operation surface:
// Recalculate folds a client's raw measurement and reduction
// entries for every period window touched by a new timestamp into
// precomputed EmissionSummary documents. It implements
// measurement.Invalidator and reduction.Invalidator so both ingestion
// pipelines can call it without depending on this package concretely.
type Materialiser struct {
	repo   Repository
	meas   MeasurementLookup
	reduct ReductionLookup
	cache   nodeIndexCache
	loc     *time.Location
	logger  *slog.Logger
	metrics *observability.Metrics

	// recalcGroup serialises concurrent Recalculate calls for the same
	// client. Every period type is recomputed together per call, so
	// collapsing in-flight calls at the client level is sufficient and
	// avoids per-period bookkeeping.
	recalcGroup singleflight.Group
}

func NewMaterialiser(cfg Config) *Materialiser {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Timezone
	if loc == nil {
		loc = time.UTC
	}
	idxCache := cfg.Cache
	if idxCache == nil {
		idxCache = newCache(cfg.Flowchart)
	}
	return &Materialiser{
		repo:    cfg.Repository,
		meas:    cfg.Measurement,
		reduct:  cfg.Reduction,
		cache:   idxCache,
		loc:     loc,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Invalidate satisfies measurement.Invalidator.
func (m *Materialiser) Invalidate(ctx context.Context, clientID string, nodeID, scopeIdentifier string, at int64) error {
	_, _, err := m.Recalculate(ctx, clientID, time.Unix(0, at))
	return err
}

// InvalidateReduction satisfies reduction.Invalidator.
func (m *Materialiser) InvalidateReduction(ctx context.Context, clientID string, at int64) error {
	_, _, err := m.Recalculate(ctx, clientID, time.Unix(0, at))
	return err
}

// Recalculate rebuilds every period summary (daily/weekly/monthly/yearly/
// all-time) that contains at, skipping any document a caller has marked
// preventAutoRecalculation. It returns the summaries it wrote plus a
// warning per period it skipped.
func (m *Materialiser) Recalculate(ctx context.Context, clientID string, at time.Time) ([]EmissionSummary, []string, error) {
	if err := core.CheckClientAccess(ctx, clientID); err != nil {
		return nil, nil, err
	}
	type result struct {
		written  []EmissionSummary
		warnings []string
	}
	v, err, _ := m.recalcGroup.Do(clientID, func() (any, error) {
		written, warnings, err := m.recalculateAll(ctx, clientID, at)
		return result{written: written, warnings: warnings}, err
	})
	if err != nil {
		return nil, nil, err
	}
	r := v.(result)
	return r.written, r.warnings, nil
}

func (m *Materialiser) recalculateAll(ctx context.Context, clientID string, at time.Time) ([]EmissionSummary, []string, error) {
	at = at.In(m.loc)
	var written []EmissionSummary
	var warnings []string

	for _, pt := range allPeriodTypes {
		period := PeriodFor(pt, at, m.loc)

		existing, found, err := m.repo.Get(ctx, clientID, pt, period)
		if err != nil {
			return nil, nil, fmt.Errorf("summary: load existing %s summary: %w", pt, err)
		}
		if found && existing.Metadata.PreventAutoRecalculation {
			warnings = append(warnings, fmt.Sprintf("%s period %+v is protected from automatic recalculation, skipped", pt, period))
			continue
		}

		var stop func()
		if m.metrics != nil {
			stop = m.metrics.ObserveMaterialiser(string(pt))
		}
		s, err := m.recalculateOne(ctx, clientID, pt, period)
		if stop != nil {
			stop()
		}
		if err != nil {
			return nil, nil, err
		}
		if found {
			s.Metadata.MigratedData = existing.Metadata.MigratedData
		}

		if err := m.repo.Upsert(ctx, s); err != nil {
			return nil, nil, fmt.Errorf("summary: persist %s summary: %w", pt, err)
		}
		written = append(written, s)
	}
	return written, warnings, nil
}

func (m *Materialiser) recalculateOne(ctx context.Context, clientID string, periodType core.PeriodType, period core.Period) (EmissionSummary, error) {
	from, to := Bounds(period, m.loc)

	idx, err := m.cache.get(ctx, clientID)
	if err != nil {
		return EmissionSummary{}, err
	}

	entries, err := m.meas.EntriesInRange(ctx, clientID, from, to)
	if err != nil {
		return EmissionSummary{}, fmt.Errorf("summary: scan measurement entries: %w", err)
	}

	s := newEmissionSummary(clientID, periodType, period, from, to)
	fold(&s, idx, entries)

	if m.reduct != nil {
		reductionEntries, err := m.reduct.EntriesInRange(ctx, clientID, from, to)
		if err != nil {
			return EmissionSummary{}, fmt.Errorf("summary: scan reduction entries: %w", err)
		}
		if len(reductionEntries) > 0 {
			rs := reduction.Summarise(reductionEntries)
			s.Reduction = &rs
		}
	}

	prevPeriod := previousPeriod(period, m.loc)
	if prev, found, err := m.repo.Get(ctx, clientID, periodType, prevPeriod); err == nil && found {
		s.Trends["total"] = computeTrend(s.Total.CO2e, prev.Total.CO2e)
		s.Trends["co2e"] = s.Trends["total"]
	}

	s.Metadata.LastCalculated = time.Now().UTC()
	return s, nil
}

// fold applies every known-processed entry to the summary's axes,
// classifying each by the node index. An entry whose scope isn't present
// in the flowchart still contributes to Total and an "Unknown" category
// bucket so its emissions are never silently dropped, but is excluded from
// the process-filtered mirror and counted as a loss signal.
func fold(s *EmissionSummary, idx NodeIndex, entries []measurement.Entry) {
	const unknownCategory = "Unknown"

	for _, e := range entries {
		if e.ProcessingStatus != measurement.StatusProcessed {
			continue
		}
		g := e.CalculatedEmissions.Incoming
		uncertainty := e.CalculatedEmissions.UncertaintyPct

		s.Total.add(g, uncertainty)
		addAxis(s.ByScope, e.ScopeIdentifier, g, uncertainty)
		addAxis(s.ByInputType, string(e.InputType), g, uncertainty)
		addAxis(s.ByEmissionFactor, e.EmissionFactorSource, g, uncertainty)

		meta, known := idx.Scopes[e.ScopeIdentifier]
		category := unknownCategory
		activity := unknownCategory
		if known {
			if meta.CategoryName != "" {
				category = meta.CategoryName
			}
			if meta.Activity != "" {
				activity = meta.Activity
			}
		} else {
			s.Metadata.UnknownScopeEntryCount++
		}

		ca := s.ByCategory[category]
		ca.add(g, uncertainty)
		if ca.Activities == nil {
			ca.Activities = make(map[string]Axis)
		}
		act := ca.Activities[activity]
		act.add(g, uncertainty)
		ca.Activities[activity] = act
		s.ByCategory[category] = ca

		addAxis(s.ByActivity, activity, g, uncertainty)

		if !known {
			continue
		}

		totalPct := 0.0
		for _, claim := range meta.Claims {
			totalPct += claim.Pct
		}

		for _, claim := range meta.Claims {
			share := claim.Pct / 100
			addAxis(s.ByNode, claim.NodeID, scale(g, share), uncertainty)

			na := s.ProcessEmissionSummary.ByNode[claim.NodeID]
			na.add(scale(g, share), uncertainty)
			na.IsShared = claim.IsShared
			s.ProcessEmissionSummary.ByNode[claim.NodeID] = na

			nm := idx.Nodes[claim.NodeID]
			if nm.Department != "" {
				addAxis(s.ByDepartment, nm.Department, scale(g, share), uncertainty)
			}
			if nm.Location != "" {
				addAxis(s.ByLocation, nm.Location, scale(g, share), uncertainty)
			}
		}
		if len(meta.Claims) > 1 {
			s.ProcessEmissionSummary.SharedScopeCount++
		}

		s.ProcessEmissionSummary.Total.add(g, uncertainty)
		if totalPct < 100 {
			s.ProcessEmissionSummary.Unallocated.add(scale(g, (100-totalPct)/100), uncertainty)
		}
	}
}

func addAxis(m map[string]Axis, key string, g measurement.GasVector, uncertainty float64) {
	if key == "" {
		return
	}
	a := m[key]
	a.add(g, uncertainty)
	m[key] = a
}

func scale(g measurement.GasVector, pct float64) measurement.GasVector {
	return measurement.GasVector{CO2: g.CO2 * pct, CH4: g.CH4 * pct, N2O: g.N2O * pct, CO2e: g.CO2e * pct}
}
