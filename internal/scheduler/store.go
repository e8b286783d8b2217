package scheduler

import (
	"context"

	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/measurement"
)

// MeasurementStore is the view of the ingestion pipeline's storage the
// scheduler needs beyond measurement.Repository: enumerating every stream
// for a client, so the monthly and overdue jobs can walk them without the
// caller naming each (node, scope) pair up front.
type MeasurementStore interface {
	measurement.Repository
	AllStreamsForClient(clientID string) []measurement.Key
}

// FlowchartStore is the narrow view of the flowchart registry the
// scheduler needs: every active client's flowchart, for the "every active
// client x every manual scope" enumeration.
type FlowchartStore interface {
	ListActive(ctx context.Context) ([]flowchart.Flowchart, error)
}
