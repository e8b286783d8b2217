package summary

import (
	"context"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/measurement"
	"github.com/paulwilltell/carbonplane/internal/reduction"
)

// Repository persists summary documents, one per (clientId, periodType,
// period). Backed by core.Storage's upsert-by-key contract, keyed on
// core.StorageKey.Period.
type Repository interface {
	Get(ctx context.Context, clientID string, periodType core.PeriodType, period core.Period) (EmissionSummary, bool, error)
	Upsert(ctx context.Context, s EmissionSummary) error
}

// MeasurementLookup is the narrow view of the ingestion pipeline's stored
// entries the materialiser needs: every entry across a client's streams
// whose timestamp falls in a period window. Defined here (consumer side)
// so summary does not depend on measurement.Repository's full surface.
type MeasurementLookup interface {
	EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]measurement.Entry, error)
}

// ReductionLookup is the equivalent narrow view over the reduction ledger.
type ReductionLookup interface {
	EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]reduction.Entry, error)
}

// FlowchartLookup is the narrow view of the flowchart registry the
// materialiser needs to classify entries by node/category/activity and to
// build the process-filtered mirror. This
// is flowchart.Service.GetFlowchart's exact signature, so the concrete
// service satisfies it with no adapter.
type FlowchartLookup interface {
	GetFlowchart(ctx context.Context, clientID string) (flowchart.Flowchart, error)
}
