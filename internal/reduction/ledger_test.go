package reduction

import (
	"context"
	"strings"
	"testing"
	"time"
)

const testClient = "client-1"
const testProject = "project-solar-1"

func TestRecordM1DerivesNetReduction(t *testing.T) {
	repo := NewInMemoryRepository()
	ledger := NewLedger(Config{Repository: repo})

	e, err := ledger.Record(context.Background(), testClient, Record{
		ProjectID: testProject, Methodology: M1,
		InputValue: 100, EmissionReductionRate: 0.5,
		Timestamp: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if e.NetReduction != 50 {
		t.Fatalf("netReduction = %v, want 50", e.NetReduction)
	}
	if e.CumulativeNetReduction != 50 {
		t.Fatalf("cumulativeNetReduction = %v, want 50", e.CumulativeNetReduction)
	}
}

func TestRecordM2RequiresNetReduction(t *testing.T) {
	repo := NewInMemoryRepository()
	ledger := NewLedger(Config{Repository: repo})

	_, err := ledger.Record(context.Background(), testClient, Record{
		ProjectID: testProject, Methodology: M2,
	})
	if err == nil || !strings.Contains(err.Error(), "caller-supplied") {
		t.Fatalf("expected M2 validation error, got %v", err)
	}
}

func TestRecordM3RequiresBreakdown(t *testing.T) {
	repo := NewInMemoryRepository()
	ledger := NewLedger(Config{Repository: repo})

	_, err := ledger.Record(context.Background(), testClient, Record{
		ProjectID: testProject, Methodology: M3, NetReduction: 10,
	})
	if err == nil || !strings.Contains(err.Error(), "itemised breakdown") {
		t.Fatalf("expected M3 validation error, got %v", err)
	}
}

func TestRecordOutOfOrderRecomputesCumulative(t *testing.T) {
	repo := NewInMemoryRepository()
	ledger := NewLedger(Config{Repository: repo})
	ctx := context.Background()

	t2 := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	if _, err := ledger.Record(ctx, testClient, Record{
		ProjectID: testProject, Methodology: M1, InputValue: 100, EmissionReductionRate: 1, Timestamp: t2,
	}); err != nil {
		t.Fatalf("record t2: %v", err)
	}
	if _, err := ledger.Record(ctx, testClient, Record{
		ProjectID: testProject, Methodology: M1, InputValue: 40, EmissionReductionRate: 1, Timestamp: t1,
	}); err != nil {
		t.Fatalf("record t1: %v", err)
	}

	stream, err := repo.Stream(ctx, Key{ClientID: testClient, ProjectID: testProject, Methodology: M1})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(stream) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(stream))
	}
	if !stream[0].Timestamp.Equal(t1) {
		t.Fatalf("expected t1 first after recompute")
	}
	if stream[0].CumulativeNetReduction != 40 {
		t.Fatalf("t1 cumulative = %v, want 40", stream[0].CumulativeNetReduction)
	}
	if stream[1].CumulativeNetReduction != 140 {
		t.Fatalf("t2 cumulative = %v, want 140", stream[1].CumulativeNetReduction)
	}
}

func TestSummariseAggregatesByMechanismAndCategory(t *testing.T) {
	entries := []Entry{
		{ProjectID: "p1", Methodology: M1, Mechanism: MechanismReduction, Category: "renewable_energy", NetReduction: 10},
		{ProjectID: "p1", Methodology: M1, Mechanism: MechanismReduction, Category: "renewable_energy", NetReduction: 5},
		{ProjectID: "p2", Methodology: M3, Mechanism: MechanismRemoval, Category: "afforestation", NetReduction: 20},
	}
	s := Summarise(entries)
	if s.TotalNetReduction != 35 {
		t.Fatalf("total = %v, want 35", s.TotalNetReduction)
	}
	if s.ByMethodology[M1] != 15 {
		t.Fatalf("byMethodology[M1] = %v, want 15", s.ByMethodology[M1])
	}
	if s.ByMethodology[M3] != 20 {
		t.Fatalf("byMethodology[M3] = %v, want 20", s.ByMethodology[M3])
	}
	if s.ByMechanism[MechanismReduction] != 15 {
		t.Fatalf("byMechanism[reduction] = %v, want 15", s.ByMechanism[MechanismReduction])
	}
	if s.ByMechanism[MechanismRemoval] != 20 {
		t.Fatalf("byMechanism[removal] = %v, want 20", s.ByMechanism[MechanismRemoval])
	}
	if s.ByCategory["renewable_energy"] != 15 {
		t.Fatalf("byCategory[renewable_energy] = %v, want 15", s.ByCategory["renewable_energy"])
	}
	if s.EntryCount != 3 {
		t.Fatalf("entryCount = %d, want 3", s.EntryCount)
	}
}
