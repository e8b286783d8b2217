package flowchart

import (
	"context"
	"errors"
	"testing"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/events"
)

func newTestService() *Service {
	return NewService(ServiceConfig{Repository: NewMemoryRepository()})
}

func TestUpsertFlowchartCreatesNodeAndBumpsVersion(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	fc, warnings, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{
			ID:    "node-a",
			Label: "Plant A",
			Scopes: []IncomingScope{
				{ScopeDescriptor: ScopeDescriptor{
					ScopeUID:        "uid-1",
					ScopeIdentifier: "SCOPE_A",
					ScopeType:       emissionfactor.Scope2,
					CategoryName:    "electricity",
					Activity:        "purchased_electricity",
				}},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if fc.Version != 1 {
		t.Fatalf("expected version 1, got %d", fc.Version)
	}
	node := fc.Nodes["node-a"]
	if len(node.Scopes) != 1 || node.Scopes[0].AllocationPct != 100 {
		t.Fatalf("expected default 100%% allocation, got %+v", node.Scopes)
	}
}

func TestUpsertFlowchartRejectsDuplicateScopeIdentifier(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{
			ID: "node-a",
			Scopes: []IncomingScope{
				{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-1", ScopeIdentifier: "SCOPE_A"}},
				{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-2", ScopeIdentifier: "SCOPE_A"}},
			},
		},
	})
	if !errors.Is(err, core.ErrDuplicateScope) {
		t.Fatalf("expected ErrDuplicateScope, got %v", err)
	}
}

func TestScopeMergeToleratesRenameByScopeUID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-1", ScopeIdentifier: "SCOPE_A", UAD: 5}},
		}},
	})
	if err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}

	fc, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-1", ScopeIdentifier: "SCOPE_A_NEW"}},
		}},
	})
	if err != nil {
		t.Fatalf("rename upsert failed: %v", err)
	}

	node := fc.Nodes["node-a"]
	if len(node.Scopes) != 1 {
		t.Fatalf("expected exactly one scope after rename, got %d", len(node.Scopes))
	}
	if node.Scopes[0].ScopeIdentifier != "SCOPE_A_NEW" {
		t.Fatalf("expected renamed identifier, got %q", node.Scopes[0].ScopeIdentifier)
	}
	if node.Scopes[0].UAD != 5 {
		t.Fatalf("expected untouched field UAD=5 to survive overlay, got %v", node.Scopes[0].UAD)
	}
}

func TestScopeMergeHeuristicFallback(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{
				ScopeIdentifier: "SCOPE_A",
				ScopeType:       emissionfactor.Scope1,
				CategoryName:    "fleet",
				Activity:        "diesel",
				UEF:             3,
			}},
		}},
	})
	if err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}

	// No scopeUid and no matching identifier, but same (scopeType,
	// categoryName, activity) triple: should resolve via heuristic match.
	fc, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{
				ScopeIdentifier: "SCOPE_A_RENAMED",
				ScopeType:       emissionfactor.Scope1,
				CategoryName:    "fleet",
				Activity:        "diesel",
			}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	node := fc.Nodes["node-a"]
	if len(node.Scopes) != 1 {
		t.Fatalf("expected heuristic match to merge into one scope, got %d", len(node.Scopes))
	}
	if node.Scopes[0].UEF != 3 {
		t.Fatalf("expected merged scope to keep existing UEF via overlay, got %v", node.Scopes[0].UEF)
	}
}

func TestValidateAllocationWarnsOnOverAllocation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	fc, warnings, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-1", ScopeIdentifier: "SHARED", AllocationPct: 70}},
		}},
		{ID: "node-b", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-2", ScopeIdentifier: "SHARED", AllocationPct: 60}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 || warnings[0].ScopeIdentifier != "SHARED" {
		t.Fatalf("expected one over-allocation warning for SHARED, got %v", warnings)
	}
	if got := fc.UnallocatedPct("SHARED"); got != 0 {
		t.Fatalf("expected zero unallocated when over 100%%, got %v", got)
	}
}

func TestUnallocatedPctTracksShortfall(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	fc, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-1", ScopeIdentifier: "SHARED", AllocationPct: 40}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fc.UnallocatedPct("SHARED"); got != 60 {
		t.Fatalf("expected 60%% unallocated, got %v", got)
	}
}

func TestDeleteNodeReparentsChildren(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "root"},
		{ID: "mid", ParentID: "root"},
		{ID: "leaf", ParentID: "mid"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fc, err := svc.DeleteNode(ctx, "client-1", "mid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fc.Nodes["mid"]; ok {
		t.Fatal("expected mid to be removed")
	}
	if fc.Nodes["leaf"].ParentID != "root" {
		t.Fatalf("expected leaf reparented to root, got %q", fc.Nodes["leaf"].ParentID)
	}
}

func TestSoftDeleteBlocksFurtherUpserts(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{{ID: "node-a"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SoftDelete(ctx, "client-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{{ID: "node-b"}})
	if err == nil {
		t.Fatal("expected upsert against a soft-deleted flowchart to fail")
	}

	if _, err := svc.Restore(ctx, "client-1"); err != nil {
		t.Fatalf("unexpected error restoring: %v", err)
	}
	if _, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{{ID: "node-b"}}); err != nil {
		t.Fatalf("expected upsert to succeed after restore: %v", err)
	}
}

func TestSetAllocationUpdatesScopeAndReportsWarnings(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-1", ScopeIdentifier: "SCOPE_A"}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fc, warnings, err := svc.SetAllocation(ctx, "client-1", "node-a", "uid-1", 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected over-allocation warning, got %v", warnings)
	}
	if fc.Nodes["node-a"].Scopes[0].AllocationPct != 150 {
		t.Fatalf("expected allocation pct updated to 150, got %v", fc.Nodes["node-a"].Scopes[0].AllocationPct)
	}
}

func TestAssignHeadSetsOwner(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{{ID: "node-a"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc, err := svc.AssignHead(ctx, "client-1", "node-a", "user-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.Nodes["node-a"].HeadID != "user-123" {
		t.Fatalf("expected head assigned, got %q", fc.Nodes["node-a"].HeadID)
	}
}

func TestRestoreRejectsActiveFlowchart(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{{ID: "node-a"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.Restore(ctx, "client-1")
	if err == nil {
		t.Fatal("expected restore of an active flowchart to fail")
	}
	if !errors.Is(err, core.ErrActiveFlowchart) {
		t.Fatalf("expected ErrActiveFlowchart, got %v", err)
	}
	if core.KindOf(err) != core.KindConflict {
		t.Fatalf("expected conflict kind, got %v", core.KindOf(err))
	}
}

func TestSetAllocationPublishesAllocationUpdated(t *testing.T) {
	bus := events.NewRecordingBus(nil)
	svc := NewService(ServiceConfig{Repository: NewMemoryRepository(), Bus: bus})
	ctx := context.Background()

	_, _, err := svc.UpsertFlowchart(ctx, "client-1", []NodeUpsert{
		{ID: "node-a", Scopes: []IncomingScope{
			{ScopeDescriptor: ScopeDescriptor{ScopeUID: "uid-1", ScopeIdentifier: "SCOPE_A"}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The upsert introduced a new scope (allocation defaulted to 100).
	if got := len(bus.EventsOfType(events.EventAllocationUpdated)); got != 1 {
		t.Fatalf("expected 1 allocation-updated event after upsert, got %d", got)
	}

	if _, _, err := svc.SetAllocation(ctx, "client-1", "node-a", "uid-1", 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(bus.EventsOfType(events.EventAllocationUpdated)); got != 2 {
		t.Fatalf("expected 2 allocation-updated events after edit, got %d", got)
	}

	// Re-applying the same percentage is not an allocation change.
	if _, _, err := svc.SetAllocation(ctx, "client-1", "node-a", "uid-1", 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(bus.EventsOfType(events.EventAllocationUpdated)); got != 2 {
		t.Fatalf("unchanged allocation must not publish, got %d events", got)
	}
}
