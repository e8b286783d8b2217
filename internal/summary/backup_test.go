package summary

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/paulwilltell/carbonplane/internal/core"
)

func backupFixture(clientID string, month int, co2e float64) EmissionSummary {
	s := newEmissionSummary(clientID, core.PeriodMonthly,
		core.Period{Type: core.PeriodMonthly, Year: 2024, Month: month}, 0, 0)
	s.Total = Axis{CO2e: co2e, DataPointCount: 3}
	s.ByScope["Scope 1"] = Axis{CO2e: co2e, DataPointCount: 3}
	s.Trends["total"] = Trend{Value: co2e, Percentage: 100, Direction: DirectionUp}
	s.Metadata.LastCalculated = time.Date(2024, time.Month(month), 28, 4, 30, 0, 0, time.UTC)
	return s
}

func TestBackupRoundTripRestoresIdenticalSummaries(t *testing.T) {
	for _, compress := range []bool{false, true} {
		repo := NewInMemoryRepository()
		ctx := context.Background()

		protected := backupFixture("client-1", 1, 12.5)
		protected.Metadata.PreventAutoRecalculation = true
		docs := []EmissionSummary{protected, backupFixture("client-1", 2, 7.25)}
		for _, s := range docs {
			if err := repo.Upsert(ctx, s); err != nil {
				t.Fatalf("seed summary: %v", err)
			}
		}

		listed, err := repo.ListByClient(ctx, "client-1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		b := NewBackup(listed, BackupFull, time.Time{}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
		if b.Count != 2 || b.Metadata.TotalClients != 1 {
			t.Fatalf("unexpected envelope: count=%d clients=%d", b.Count, b.Metadata.TotalClients)
		}
		if got, want := b.Metadata.TotalCO2e, 19.75; got != want {
			t.Fatalf("TotalCO2e = %v, want %v", got, want)
		}

		var buf bytes.Buffer
		if err := WriteBackup(&buf, b, compress); err != nil {
			t.Fatalf("write (compress=%v): %v", compress, err)
		}

		if err := repo.DeleteByClient(ctx, "client-1"); err != nil {
			t.Fatalf("delete: %v", err)
		}

		decoded, err := ReadBackup(&buf)
		if err != nil {
			t.Fatalf("read (compress=%v): %v", compress, err)
		}
		n, err := Restore(ctx, repo, decoded)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		if n != 2 {
			t.Fatalf("restored %d documents, want 2", n)
		}

		for _, want := range docs {
			got, ok, err := repo.Get(ctx, want.ClientID, want.PeriodType, want.Period)
			if err != nil || !ok {
				t.Fatalf("get restored %v: ok=%v err=%v", want.Period, ok, err)
			}
			if !got.Metadata.LastCalculated.Equal(want.Metadata.LastCalculated) {
				t.Fatalf("LastCalculated drifted: got %v want %v", got.Metadata.LastCalculated, want.Metadata.LastCalculated)
			}
			got.Metadata.LastCalculated = want.Metadata.LastCalculated
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("restored summary differs (compress=%v):\n got %+v\nwant %+v", compress, got, want)
			}
		}

		restored, _, err := repo.Get(ctx, "client-1", core.PeriodMonthly, protected.Period)
		if err != nil {
			t.Fatalf("get protected: %v", err)
		}
		if !restored.Metadata.PreventAutoRecalculation {
			t.Fatal("restore dropped PreventAutoRecalculation")
		}
	}
}

func TestIncrementalBackupFiltersByLastCalculated(t *testing.T) {
	old := backupFixture("client-1", 1, 5)
	fresh := backupFixture("client-1", 2, 9)

	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	b := NewBackup([]EmissionSummary{old, fresh}, BackupIncremental, since, since.AddDate(0, 1, 0))

	if b.Count != 1 {
		t.Fatalf("incremental count = %d, want 1", b.Count)
	}
	if b.Data[0].Period.Month != 2 {
		t.Fatalf("kept month %d, want 2", b.Data[0].Period.Month)
	}
	if b.Metadata.TotalCO2e != 9 {
		t.Fatalf("TotalCO2e = %v, want 9", b.Metadata.TotalCO2e)
	}
}

func TestReadBackupRejectsCountMismatch(t *testing.T) {
	b := NewBackup([]EmissionSummary{backupFixture("client-1", 1, 1)}, BackupFull,
		time.Time{}, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	b.Count = 5

	var buf bytes.Buffer
	if err := WriteBackup(&buf, b, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadBackup(&buf); err == nil {
		t.Fatal("expected count-mismatch error")
	}
}
