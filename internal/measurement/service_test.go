package measurement

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/paulwilltell/carbonplane/internal/calc"
	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/events"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

const testClient = "client-1"
const testNode = "node-1"
const testScope = "DIESEL_GENSET"

func newTestService(t *testing.T) (*Service, *InMemoryRepository, *flowchart.Service) {
	t.Helper()
	reg := emissionfactor.NewMemoryRegistry(nil)
	emissionfactor.SeedDefaults(reg)
	_ = reg.Register(emissionfactor.Factor{
		Key: emissionfactor.Key{
			Standard: emissionfactor.StandardEPA, Scope: emissionfactor.Scope1,
			Category: "stationary_combustion", Activity: "fuel_burned", Fuel: "diesel", Unit: "L",
		},
		ID:    "epa-diesel",
		Gases: emissionfactor.GasFactors{CO2e: 2.68},
	})

	fcSvc := flowchart.NewService(flowchart.ServiceConfig{Repository: flowchart.NewMemoryRepository()})
	_, _, err := fcSvc.UpsertFlowchart(context.Background(), testClient, []flowchart.NodeUpsert{
		{
			ID: testNode, Label: "Site A",
			Scopes: []flowchart.IncomingScope{
				{
					ScopeDescriptor: flowchart.ScopeDescriptor{
						ScopeIdentifier: testScope, ScopeType: emissionfactor.Scope1,
						CategoryName: "stationary_combustion", Activity: "fuel_burned",
						CalculationModel: flowchart.Tier1, InputType: flowchart.InputManual,
						FactorSource: emissionfactor.StandardEPA, Fuel: "diesel", Unit: "L",
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("upsert flowchart: %v", err)
	}

	repo := NewInMemoryRepository()
	svc := NewService(Config{
		Repository: repo,
		Flowchart:  measurementFlowchartAdapter(fcSvc),
		Calculator: calc.NewEngine(reg),
	})
	return svc, repo, fcSvc
}

func measurementFlowchartAdapter(s *flowchart.Service) FlowchartAdapter {
	return FlowchartAdapter{Service: s}
}

func TestIngestStationaryCombustionRunningTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e1, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: "2024-01-15", Time: "10:00:00",
		DataValues: map[string]float64{"fuelConsumption": 100},
	})
	if err != nil {
		t.Fatalf("entry 1: %v", err)
	}
	if got := e1.CalculatedEmissions.Incoming.CO2e; got != 268 {
		t.Fatalf("entry 1 incoming CO2e = %v, want 268 (100 x 2.68)", got)
	}
	if got := e1.CalculatedEmissions.Cumulative.CO2e; got != 268 {
		t.Fatalf("entry 1 cumulative CO2e = %v, want 268", got)
	}

	e2, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: "2024-01-20", Time: "10:00:00",
		DataValues: map[string]float64{"fuelConsumption": 50},
	})
	if err != nil {
		t.Fatalf("entry 2: %v", err)
	}
	if got := e2.CalculatedEmissions.Incoming.CO2e; got != 134 {
		t.Fatalf("entry 2 incoming CO2e = %v, want 134", got)
	}
	if got := e2.CalculatedEmissions.Cumulative.CO2e; got != 402 {
		t.Fatalf("entry 2 cumulative CO2e = %v, want 402", got)
	}
}

func TestIngestOutOfOrderRecomputesCumulative(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	t2 := time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)
	t1 := time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)

	_, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: t2.Format("2006-01-02"), Time: "09:00:00",
		DataValues: map[string]float64{"fuelConsumption": 50},
	})
	if err != nil {
		t.Fatalf("ingest T2: %v", err)
	}

	_, err = svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: t1.Format("2006-01-02"), Time: "09:00:00",
		DataValues: map[string]float64{"fuelConsumption": 30},
	})
	if err != nil {
		t.Fatalf("ingest T1: %v", err)
	}

	stream, err := repo.Stream(ctx, Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(stream) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(stream))
	}
	if !stream[0].Timestamp.Equal(t1) {
		t.Fatalf("expected T1 first after recompute, got %v", stream[0].Timestamp)
	}
	if stream[0].CumulativeValues["fuelConsumption"] != 30 {
		t.Fatalf("T1 cumulative fuelConsumption = %v, want 30", stream[0].CumulativeValues["fuelConsumption"])
	}
	if stream[1].CumulativeValues["fuelConsumption"] != 80 {
		t.Fatalf("T2 cumulative fuelConsumption = %v, want 80", stream[1].CumulativeValues["fuelConsumption"])
	}
	if stream[1].LastEnteredData["fuelConsumption"] != 50 {
		t.Fatalf("T2 lastEnteredData fuelConsumption = %v, want 50", stream[1].LastEnteredData["fuelConsumption"])
	}
	wantCumCO2e := (30 + 50) * 2.68
	if got := stream[1].CalculatedEmissions.Cumulative.CO2e; got != wantCumCO2e {
		t.Fatalf("T2 cumulative CO2e = %v, want %v", got, wantCumCO2e)
	}
}

func TestIngestRejectsVariantInputTypeMismatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Ingest(context.Background(), testClient, testNode, testScope, Input{
		Variant: VariantAPIPoll, Date: "2024-01-01", Time: "00:00:00",
		DataValues: map[string]float64{"fuelConsumption": 10},
	})
	if err == nil || !strings.Contains(err.Error(), "does not match scope inputType") {
		t.Fatalf("expected inputType mismatch error, got %v", err)
	}
}

func TestIngestBatchRejectsDuplicateTimestampGroup(t *testing.T) {
	svc, _, _ := newTestService(t)
	report := svc.IngestBatch(context.Background(), testClient, testNode, testScope, []Input{
		{Variant: VariantManual, Date: "2024-03-01", Time: "08:00:00", DataValues: map[string]float64{"fuelConsumption": 10}},
		{Variant: VariantManual, Date: "2024-03-01", Time: "08:00:00", DataValues: map[string]float64{"fuelConsumption": 20}},
		{Variant: VariantManual, Date: "2024-03-02", Time: "08:00:00", DataValues: map[string]float64{"fuelConsumption": 15}},
	})
	if len(report.Accepted) != 2 {
		t.Fatalf("expected 2 accepted entries, got %d", len(report.Accepted))
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 duplicate-timestamp error, got %d", len(report.Errors))
	}
}

func TestParseCSVDefaultsBlankCellsToZero(t *testing.T) {
	csv := "date,time,fuelConsumption,unknown_col\n2024-05-01,08:00:00,,99\n"
	inputs, errs, err := ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected row errors: %v", errs)
	}
	if len(inputs) != 1 {
		t.Fatalf("expected 1 input, got %d", len(inputs))
	}
	if inputs[0].DataValues["fuelConsumption"] != 0 {
		t.Fatalf("blank cell should default to 0, got %v", inputs[0].DataValues["fuelConsumption"])
	}
}

func TestCSVRoundTrip(t *testing.T) {
	entries := []Entry{
		{
			Timestamp:  time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
			DataValues: map[string]float64{"fuelConsumption": 100.5},
		},
		{
			Timestamp:  time.Date(2024, 5, 2, 9, 30, 15, 0, time.UTC),
			DataValues: map[string]float64{"fuelConsumption": 50, "numberOfUnits": 3},
		},
	}

	var buf bytes.Buffer
	if err := EmitCSV(&buf, entries); err != nil {
		t.Fatalf("emit: %v", err)
	}
	inputs, errs, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected row errors: %v", errs)
	}
	if len(inputs) != len(entries) {
		t.Fatalf("parsed %d rows, want %d", len(inputs), len(entries))
	}
	for i, in := range inputs {
		if got, want := in.Date, entries[i].Timestamp.Format("2006-01-02"); got != want {
			t.Fatalf("row %d date = %q, want %q", i, got, want)
		}
		if got, want := in.Time, entries[i].Timestamp.Format("15:04:05"); got != want {
			t.Fatalf("row %d time = %q, want %q", i, got, want)
		}
		for f, want := range entries[i].DataValues {
			if got := in.DataValues[f]; got != want {
				t.Fatalf("row %d %s = %v, want %v", i, f, got, want)
			}
		}
	}
}

func TestEditEntryRecomputesStreamAndPublishes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	bus := events.NewRecordingBus(nil)
	svc.bus = bus
	ctx := context.Background()

	e1, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: "2024-01-15", Time: "10:00:00",
		DataValues: map[string]float64{"fuelConsumption": 100},
	})
	if err != nil {
		t.Fatalf("entry 1: %v", err)
	}
	if _, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: "2024-01-20", Time: "10:00:00",
		DataValues: map[string]float64{"fuelConsumption": 50},
	}); err != nil {
		t.Fatalf("entry 2: %v", err)
	}

	edited, err := svc.EditEntry(ctx, testClient, testNode, testScope, e1.ID,
		map[string]float64{"fuelConsumption": 80})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := edited.CalculatedEmissions.Incoming.CO2e; got != 214.4 {
		t.Fatalf("edited incoming CO2e = %v, want 214.4 (80 x 2.68)", got)
	}

	stream, err := repo.Stream(ctx, Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got := stream[1].CalculatedEmissions.Cumulative.CO2e; got != 348.4 {
		t.Fatalf("downstream cumulative = %v, want 348.4 (214.4 + 134)", got)
	}
	if got := stream[1].CumulativeValues["fuelConsumption"]; got != 130 {
		t.Fatalf("downstream cumulative fuelConsumption = %v, want 130", got)
	}
	if got := len(bus.EventsOfType(events.EventManualDataEdited)); got != 1 {
		t.Fatalf("published %d manual-data-edited events, want 1", got)
	}
}

func TestDeleteEntryRecomputesStreamAndPublishes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	bus := events.NewRecordingBus(nil)
	svc.bus = bus
	ctx := context.Background()

	e1, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: "2024-01-15", Time: "10:00:00",
		DataValues: map[string]float64{"fuelConsumption": 100},
	})
	if err != nil {
		t.Fatalf("entry 1: %v", err)
	}
	if _, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: "2024-01-20", Time: "10:00:00",
		DataValues: map[string]float64{"fuelConsumption": 50},
	}); err != nil {
		t.Fatalf("entry 2: %v", err)
	}

	removed, err := svc.DeleteEntry(ctx, testClient, testNode, testScope, e1.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed.ID != e1.ID {
		t.Fatalf("removed entry %q, want %q", removed.ID, e1.ID)
	}

	stream, err := repo.Stream(ctx, Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(stream) != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", len(stream))
	}
	if got := stream[0].CalculatedEmissions.Cumulative.CO2e; got != 134 {
		t.Fatalf("remaining cumulative = %v, want 134", got)
	}
	if got := len(bus.EventsOfType(events.EventManualDataDeleted)); got != 1 {
		t.Fatalf("published %d manual-data-deleted events, want 1", got)
	}
}

func TestEditEntryRejectsSealedEntry(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	e1, err := svc.Ingest(ctx, testClient, testNode, testScope, Input{
		Variant: VariantManual, Date: "2024-01-15", Time: "10:00:00",
		DataValues: map[string]float64{"fuelConsumption": 100},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	key := Key{ClientID: testClient, NodeID: testNode, ScopeIdentifier: testScope}
	stream, _ := repo.Stream(ctx, key)
	stream[0].IsEditable = false
	if err := repo.ReplaceStream(ctx, key, stream); err != nil {
		t.Fatalf("seal entry: %v", err)
	}

	if _, err := svc.EditEntry(ctx, testClient, testNode, testScope, e1.ID,
		map[string]float64{"fuelConsumption": 1}); !errors.Is(err, core.ErrEntrySealed) {
		t.Fatalf("expected ErrEntrySealed, got %v", err)
	}
	if _, err := svc.DeleteEntry(ctx, testClient, testNode, testScope, e1.ID); !errors.Is(err, core.ErrEntrySealed) {
		t.Fatalf("expected ErrEntrySealed on delete, got %v", err)
	}
}
