// Package summary is the summary materialisation engine: it
// maintains one precomputed multi-dimensional rollup document per
// (clientId, periodType, period bounds) so analytical queries return in
// constant time regardless of raw measurement volume, and recomputes only
// the summaries a new entry's timestamp falls into.
package summary

import (
	"time"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/measurement"
	"github.com/paulwilltell/carbonplane/internal/reduction"
)

// Axis is one cell of a rollup: a per-gas total, its combined uncertainty,
// and how many measurement entries contributed to it.
type Axis struct {
	CO2            float64
	CH4            float64
	N2O            float64
	CO2e           float64
	Uncertainty    float64 // running average of contributing entries' combined uncertainty
	DataPointCount int
}

func (a *Axis) add(g measurement.GasVector, uncertaintyPct float64) {
	n := float64(a.DataPointCount)
	a.CO2 += g.CO2
	a.CH4 += g.CH4
	a.N2O += g.N2O
	a.CO2e += g.CO2e
	a.Uncertainty = (a.Uncertainty*n + uncertaintyPct) / (n + 1)
	a.DataPointCount++
}

// CategoryAxis nests the per-activity breakdown inside a category.
type CategoryAxis struct {
	Axis
	Activities map[string]Axis
}

// Direction is the sign of a trend delta.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionSame Direction = "same"
)

// Trend compares a just-computed axis total against the equal-length
// preceding period.
type Trend struct {
	Value      float64
	Percentage float64
	Direction  Direction
}

// sameTolerance is the same-value tolerance for trend direction.
const sameTolerance = 1e-6

func computeTrend(current, previous float64) Trend {
	delta := current - previous
	var pct float64
	if previous != 0 {
		pct = delta / previous * 100
	} else if current != 0 {
		pct = 100
	}
	dir := DirectionSame
	switch {
	case delta > sameTolerance:
		dir = DirectionUp
	case delta < -sameTolerance:
		dir = DirectionDown
	}
	return Trend{Value: delta, Percentage: pct, Direction: dir}
}

// NodeAllocation is one node's allocated share in the process-view mirror.
type NodeAllocation struct {
	Axis
	IsShared bool
}

// ProcessSummary is the process-filtered mirror of EmissionSummary: the same axes, restricted to scopes present
// in the active flowchart and split by allocation percentage.
type ProcessSummary struct {
	Total             Axis
	ByNode            map[string]NodeAllocation
	Unallocated       Axis
	SharedScopeCount  int
	AllocationWarning []string
}

// Metadata carries the summary's protection bits and bookkeeping.
type Metadata struct {
	MigratedData             bool
	PreventAutoRecalculation bool
	LastCalculated           time.Time
	UnknownScopeEntryCount   int // entries whose scope wasn't found in the flowchart
}

// EmissionSummary is one rollup document per (clientId, periodType, period).
type EmissionSummary struct {
	ClientID   string
	PeriodType core.PeriodType
	Period     core.Period
	FromNanos  int64
	ToNanos    int64

	Total           Axis
	ByScope         map[string]Axis
	ByCategory      map[string]CategoryAxis
	ByActivity      map[string]Axis
	ByNode          map[string]Axis
	ByDepartment    map[string]Axis
	ByLocation      map[string]Axis
	ByInputType     map[string]Axis
	ByEmissionFactor map[string]Axis

	Trends map[string]Trend // keyed by axis name: "total", "co2e", ...

	ProcessEmissionSummary ProcessSummary
	Reduction              *reduction.Summary // populated by internal/reduction's summariser; nil until a reduction entry exists for this client/period

	Metadata Metadata
}

func newEmissionSummary(clientID string, periodType core.PeriodType, period core.Period, from, to int64) EmissionSummary {
	return EmissionSummary{
		ClientID:         clientID,
		PeriodType:       periodType,
		Period:           period,
		FromNanos:        from,
		ToNanos:          to,
		ByScope:          make(map[string]Axis),
		ByCategory:       make(map[string]CategoryAxis),
		ByActivity:       make(map[string]Axis),
		ByNode:           make(map[string]Axis),
		ByDepartment:     make(map[string]Axis),
		ByLocation:       make(map[string]Axis),
		ByInputType:      make(map[string]Axis),
		ByEmissionFactor: make(map[string]Axis),
		Trends:           make(map[string]Trend),
		ProcessEmissionSummary: ProcessSummary{
			ByNode: make(map[string]NodeAllocation),
		},
	}
}
