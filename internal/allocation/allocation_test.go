package allocation

import (
	"context"
	"math"
	"testing"

	"github.com/paulwilltell/carbonplane/internal/calc"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

func TestAllocateSplitsAcrossSingleClaim(t *testing.T) {
	raw := calc.Result{CO2e: 100}
	alloc, warnings := Allocate("SCOPE_A", raw, []Claim{{NodeID: "node-a", Pct: 100}})

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if len(alloc.Shares) != 1 || alloc.Shares[0].Emissions.CO2e != 100 {
		t.Fatalf("expected full allocation to single claim, got %+v", alloc.Shares)
	}
	if alloc.IsShared {
		t.Fatal("expected IsShared false for a single claim")
	}
}

func TestAllocateTracksUnallocatedShortfall(t *testing.T) {
	raw := calc.Result{CO2e: 100}
	alloc, warnings := Allocate("SCOPE_A", raw, []Claim{{NodeID: "node-a", Pct: 40}})

	if alloc.UnallocatedPct != 60 {
		t.Fatalf("expected 60%% unallocated, got %v", alloc.UnallocatedPct)
	}
	if alloc.Unallocated.CO2e != 60 {
		t.Fatalf("expected unallocated CO2e 60, got %v", alloc.Unallocated.CO2e)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one unallocated warning, got %v", warnings)
	}
}

func TestAllocateWarnsOnOverAllocation(t *testing.T) {
	raw := calc.Result{CO2e: 100}
	_, warnings := Allocate("SCOPE_A", raw, []Claim{
		{NodeID: "node-a", Pct: 70},
		{NodeID: "node-b", Pct: 60},
	})
	if len(warnings) != 1 {
		t.Fatalf("expected one over-allocation warning, got %v", warnings)
	}
}

func TestAllocateSharedAcrossMultipleNodes(t *testing.T) {
	raw := calc.Result{CO2e: 100}
	alloc, warnings := Allocate("SCOPE_A", raw, []Claim{
		{NodeID: "node-a", Pct: 60},
		{NodeID: "node-b", Pct: 40},
	})
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for exact 100%% split, got %v", warnings)
	}
	if !alloc.IsShared {
		t.Fatal("expected IsShared true for two claims")
	}
	var sum float64
	for _, s := range alloc.Shares {
		sum += s.Emissions.CO2e
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Fatalf("expected shares to sum back to raw, got %v", sum)
	}
}

func TestAllocateForFlowchartReadsNodeClaims(t *testing.T) {
	svc := NewService(ServiceConfig{})

	fc := flowchart.NewFlowchart("client-1")
	fc.Nodes["node-a"] = flowchart.Node{
		ID: "node-a",
		Scopes: []flowchart.ScopeDescriptor{
			{ScopeUID: "uid-1", ScopeIdentifier: "SCOPE_A", AllocationPct: 100},
		},
	}

	alloc, warnings, err := svc.AllocateForFlowchart(context.Background(), fc, "SCOPE_A", calc.Result{CO2e: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if len(alloc.Shares) != 1 || alloc.Shares[0].NodeID != "node-a" {
		t.Fatalf("expected single share for node-a, got %+v", alloc.Shares)
	}
}
