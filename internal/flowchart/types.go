// Package flowchart manages the per-client process flowchart: a tree of
// process nodes, each carrying the scope descriptors whose measurement
// entries are attributed to it. It is the organisational model the
// calculation, allocation, and summary engines consult for scope metadata
// and allocation percentages. Every mutation bumps a monotone version so
// downstream caches can detect staleness cheaply.
package flowchart

import (
	"time"

	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
)

// CalculationModel is the tiering used to select the calculation formula
// family for a scope.
type CalculationModel string

const (
	Tier1 CalculationModel = "tier 1"
	Tier2 CalculationModel = "tier 2"
	Tier3 CalculationModel = "tier 3"
)

// InputType identifies how a scope's measurement entries arrive.
type InputType string

const (
	InputManual InputType = "manual"
	InputAPI    InputType = "API"
	InputIOT    InputType = "IOT"
)

// ScopeDescriptor is the atomic unit of the flowchart: it names one
// measurable activity and how it should be calculated, factored, and
// allocated. scopeUid is stable across renames; scopeIdentifier is the
// human-facing name entries are keyed by and may change over time.
type ScopeDescriptor struct {
	ScopeUID        string
	ScopeIdentifier string

	ScopeType    emissionfactor.ScopeType
	CategoryName string
	Activity     string

	CalculationModel CalculationModel
	InputType        InputType
	APIEndpoint      string
	IOTDeviceID      string

	FactorSource emissionfactor.Standard
	Fuel         string
	Region       string
	Unit         string

	// CustomFactor carries inline per-gas values when FactorSource is
	// Custom; at least one of its fields must be non-zero.
	CustomFactor emissionfactor.GasFactors

	// UAD and UEF are the activity-data and emission-factor uncertainty
	// percentages combined as sqrt(UAD^2 + UEF^2) to arrive at the
	// entry's combined CO2e uncertainty.
	UAD float64
	UEF float64

	// AllocationPct is how much of this scope's raw emission is
	// attributed to the node it is attached to. Defaults to 100 when left
	// at zero, whether or not other nodes claim the same scopeIdentifier.
	AllocationPct float64

	// CollectionFrequency is the expected cadence between entries; a
	// stream with no entry inside the cadence window is flagged overdue.
	// Zero means no cadence is configured and the scope is never flagged.
	CollectionFrequency time.Duration

	UpdatedAt time.Time
}

// FactorKey implements emissionfactor.ScopeRef.
func (s ScopeDescriptor) FactorKey() emissionfactor.Key {
	return emissionfactor.Key{
		Standard: s.FactorSource,
		Scope:    s.ScopeType,
		Category: s.CategoryName,
		Activity: s.Activity,
		Fuel:     s.Fuel,
		Region:   s.Region,
		Unit:     s.Unit,
	}
}

// CustomGases implements emissionfactor.ScopeRef.
func (s ScopeDescriptor) CustomGases() (emissionfactor.GasFactors, bool) {
	return s.CustomFactor, s.FactorSource == emissionfactor.StandardCustom
}

// effectiveAllocationPct returns AllocationPct, defaulting to 100 when unset.
func (s ScopeDescriptor) effectiveAllocationPct() float64 {
	if s.AllocationPct == 0 {
		return 100
	}
	return s.AllocationPct
}

// Node is one process in the flowchart: an organisational unit (department,
// location, cost center, whatever the client models) that owns zero or more
// scopes and optionally a parent.
type Node struct {
	ID         string
	Label      string
	Department string
	Location   string
	HeadID     string // process owner, assigned via AssignHead
	ParentID   string
	Scopes     []ScopeDescriptor
}

func (n Node) scopeByUID(uid string) (int, bool) {
	for i, s := range n.Scopes {
		if s.ScopeUID == uid {
			return i, true
		}
	}
	return -1, false
}

func (n Node) scopeByIdentifier(identifier string) (int, bool) {
	for i, s := range n.Scopes {
		if s.ScopeIdentifier == identifier {
			return i, true
		}
	}
	return -1, false
}

// Flowchart is the versioned per-client node tree.
type Flowchart struct {
	ClientID  string
	Version   int
	Active    bool
	Nodes     map[string]Node
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt time.Time
}

// NewFlowchart returns an empty, active flowchart at version 0.
func NewFlowchart(clientID string) Flowchart {
	now := time.Now().UTC()
	return Flowchart{
		ClientID:  clientID,
		Active:    true,
		Nodes:     make(map[string]Node),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Warning is a non-fatal condition surfaced from a flowchart mutation,
// over-allocation is stored, not rejected, per the allocation invariant.
type Warning struct {
	ScopeIdentifier string
	Message         string
}

// AllocationTotals sums AllocationPct across every node that references a
// given scopeIdentifier (a single physical scope can feed several process
// nodes, each claiming a share of its emissions).
func (f Flowchart) AllocationTotals() map[string]float64 {
	totals := make(map[string]float64)
	for _, n := range f.Nodes {
		for _, s := range n.Scopes {
			totals[s.ScopeIdentifier] += s.effectiveAllocationPct()
		}
	}
	return totals
}

// ValidateAllocation returns a warning for every scopeIdentifier whose
// total allocation exceeds 100% by more than floating-point tolerance. It
// never returns an error: over-allocation is warned and stored, not
// rejected (flowchart data entry is progressive and transiently
// inconsistent while an operator is still wiring up a new process).
func (f Flowchart) ValidateAllocation() []Warning {
	const tolerance = 1e-6
	var warnings []Warning
	for identifier, total := range f.AllocationTotals() {
		if total > 100+tolerance {
			warnings = append(warnings, Warning{
				ScopeIdentifier: identifier,
				Message:         "allocation exceeds 100% across the flowchart",
			})
		}
	}
	return warnings
}

// UnallocatedPct returns the unallocated share (100 - total) for a
// scopeIdentifier, floored at zero. Positive values are unallocated
// emissions the allocation engine must carry as a residual.
func (f Flowchart) UnallocatedPct(scopeIdentifier string) float64 {
	total := f.AllocationTotals()[scopeIdentifier]
	if total >= 100 {
		return 0
	}
	return 100 - total
}
