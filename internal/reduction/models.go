// Package reduction is the offset/reduction ledger: an append-only
// per (clientId, projectId, methodology) stream of net-reduction entries,
// parallel to the measurement stream, plus the summariser that rolls it up
// into the reductionSummary embedded in each emission summary.
//
// The ledger mirrors the measurement stream's running-aggregate discipline
// (cumulative/high/low under a per-key critical section), reduced from a
// per-gas vector to the single netReduction scalar each project tracks.
package reduction

import "time"

// Methodology selects how NetReduction is derived for an entry.
type Methodology string

const (
	// M1: netReduction = inputValue x emissionReductionRate, computed here.
	M1 Methodology = "M1"
	// M2: caller supplies netReduction from an external methodology-2 formula.
	M2 Methodology = "M2"
	// M3: caller supplies netReduction plus an itemized breakdown.
	M3 Methodology = "M3"
)

// LineItem is one row of an M3 baseline/project/leakage breakdown.
type LineItem struct {
	Label string
	Value float64
}

// Breakdown is M3's itemised accounting.
type Breakdown struct {
	Baseline           []LineItem
	Project            []LineItem
	Leakage            []LineItem
	BETotal            float64
	PETotal            float64
	LETotal            float64
	BufferPercent      float64
	NetWithUncertainty float64
}

// Mechanism distinguishes an avoidance/reduction project from a removal
// project for the summariser's mechanism split.
type Mechanism string

const (
	MechanismReduction Mechanism = "reduction"
	MechanismRemoval   Mechanism = "removal"
)

// Entry is one immutable ledger record. Category,
// ScopeIdentifier, Location, and Activity are descriptive metadata carried
// on the entry so the summariser can build the per-category/scope/
// location/activity breakdowns without a separate project
// registry; projectId is the join key, so the
// caller (the project-management collaborator, external to this core)
// supplies this metadata at record time.
type Entry struct {
	ID                     string
	ClientID               string
	ProjectID              string
	Methodology            Methodology
	Mechanism              Mechanism
	Category               string
	ScopeIdentifier        string
	Location               string
	Activity               string
	InputValue             float64
	EmissionReductionRate  float64
	NetReduction           float64
	CumulativeNetReduction float64
	HighNetReduction       float64
	LowNetReduction        float64
	Breakdown              *Breakdown
	Timestamp              time.Time
	Source                 string
}

// Key identifies one reduction stream.
type Key struct {
	ClientID    string
	ProjectID   string
	Methodology Methodology
}
