// Package allocation distributes a scope's calculated emission across the
// process nodes that claim a share of it. A scope's raw emission
// vector is split node-by-node according to the flowchart's per-node
// allocationPct, with any shortfall below 100% carried forward as an
// explicit unallocated residual rather than silently dropped. Allocation
// never mutates raw emissions; it only partitions them for the
// process-view summary.
package allocation

import (
	"fmt"
	"time"

	"github.com/paulwilltell/carbonplane/internal/calc"
)

// Claim is one node's percentage share of a scope's raw emission.
type Claim struct {
	NodeID string
	Pct    float64
}

// Share is a claim after the raw emission has been distributed to it.
type Share struct {
	NodeID    string
	Pct       float64
	Emissions calc.Result
}

// Allocation is the result of splitting one scope's raw emission across its
// claims.
type Allocation struct {
	ScopeIdentifier string
	Raw             calc.Result
	Shares          []Share

	// Unallocated is the portion of Raw not claimed by any node: Raw x
	// (100 - sum(claim pct)) / 100.
	Unallocated    calc.Result
	UnallocatedPct float64
	IsShared       bool // true when more than one node claims this scope
	AllocatedAt    time.Time
}

// Warning flags an allocation whose claims exceed 100% of the scope, or
// leave 0.01% or more of it unallocated (the flowchart already
// warns-and-stores the over-allocation condition; the allocation engine
// surfaces it again at calculation time since a claim set can drift out of
// sync between when it was set and when it is applied).
type Warning struct {
	ScopeIdentifier string
	Message         string
}

func scale(r calc.Result, factor float64) calc.Result {
	return calc.Result{
		CO2:            r.CO2 * factor,
		CH4:            r.CH4 * factor,
		N2O:            r.N2O * factor,
		CO2e:           r.CO2e * factor,
		UncertaintyPct: r.UncertaintyPct,
	}
}

// Allocate splits raw across claims. A claim with Pct 0 is treated as the
// flowchart's implicit default of 100 only when it is the sole claim;
// multiple claims must each carry an explicit percentage.
func Allocate(scopeIdentifier string, raw calc.Result, claims []Claim) (Allocation, []Warning) {
	alloc := Allocation{
		ScopeIdentifier: scopeIdentifier,
		Raw:             raw,
		IsShared:        len(claims) > 1,
		AllocatedAt:     time.Now().UTC(),
	}

	effective := make([]Claim, len(claims))
	copy(effective, claims)
	if len(effective) == 1 && effective[0].Pct == 0 {
		effective[0].Pct = 100
	}

	var total float64
	for _, c := range effective {
		total += c.Pct
	}

	for _, c := range effective {
		alloc.Shares = append(alloc.Shares, Share{
			NodeID:    c.NodeID,
			Pct:       c.Pct,
			Emissions: scale(raw, c.Pct/100),
		})
	}

	const tolerance = 0.01 // 0.01% per the module's unallocated-emissions threshold
	shortfall := 100 - total
	if shortfall < 0 {
		shortfall = 0
	}
	alloc.UnallocatedPct = shortfall
	alloc.Unallocated = scale(raw, shortfall/100)

	var warnings []Warning
	if total-100 > tolerance {
		warnings = append(warnings, Warning{
			ScopeIdentifier: scopeIdentifier,
			Message:         fmt.Sprintf("claims total %.4f%%, exceeding 100%%", total),
		})
	}
	if shortfall >= tolerance {
		warnings = append(warnings, Warning{
			ScopeIdentifier: scopeIdentifier,
			Message:         fmt.Sprintf("%.4f%% of this scope's emission is unallocated", shortfall),
		})
	}

	return alloc, warnings
}
