// Package measurement is the ingestion pipeline and the measurement
// entry data model it produces: the immutable per-(client,node,scope)
// record of a single activity reading, carrying the running aggregates
// (cumulative/high/low/last) that let the summary materialiser fold
// a stream without rescanning it from the beginning.
package measurement

import (
	"time"

	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// ProcessingStatus tracks an entry through the calculation engine.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusProcessed ProcessingStatus = "processed"
	StatusFailed    ProcessingStatus = "failed"
)

// Variant identifies how an entry arrived, matching the scope's configured
// InputType on all but CSV (CSV uploads carry manual-entered readings in
// bulk and are validated against a manual scope just like a single manual
// entry).
type Variant string

const (
	VariantManual  Variant = "manual"
	VariantCSV     Variant = "csv"
	VariantAPIPoll Variant = "api"
	VariantIOT     Variant = "iot"
)

// matchesInputType reports whether this arrival variant is legal for a
// scope configured with the given InputType.
func (v Variant) matchesInputType(t flowchart.InputType) bool {
	switch v {
	case VariantManual, VariantCSV:
		return t == flowchart.InputManual
	case VariantAPIPoll:
		return t == flowchart.InputAPI
	case VariantIOT:
		return t == flowchart.InputIOT
	default:
		return false
	}
}

// GasVector is a per-gas emission amount, shared by Incoming and Cumulative.
type GasVector struct {
	CO2  float64
	CH4  float64
	N2O  float64
	CO2e float64
}

func (g GasVector) add(o GasVector) GasVector {
	return GasVector{CO2: g.CO2 + o.CO2, CH4: g.CH4 + o.CH4, N2O: g.N2O + o.N2O, CO2e: g.CO2e + o.CO2e}
}

// CalculatedEmissions is written by the calculation engine once an
// entry transitions out of StatusPending.
type CalculatedEmissions struct {
	Incoming       GasVector
	Cumulative     GasVector
	UncertaintyPct float64
	CalculatedAt   time.Time
}

// Entry is the immutable measurement record, plus the mutable
// per-stream running aggregates a new entry updates in the same write.
type Entry struct {
	ID              string
	ClientID        string
	NodeID          string
	ScopeIdentifier string
	ScopeType       string // mirrors the owning scope's ScopeType at ingest time
	InputType       flowchart.InputType
	Variant         Variant

	Date      string // as supplied, DD/MM/YYYY or YYYY-MM-DD
	Time      string // as supplied, HH:mm:ss
	Timestamp time.Time

	DataValues map[string]float64

	EmissionFactorSource string
	SourceDetails        string
	IsEditable           bool

	ProcessingStatus ProcessingStatus
	FailureReason    string

	CalculatedEmissions CalculatedEmissions

	// Running aggregates over the (client,node,scope) stream as of this
	// entry, in timestamp order.
	CumulativeValues map[string]float64
	HighData         map[string]float64
	LowData          map[string]float64
	LastEnteredData  map[string]float64

	// IsSummary / SummaryYear / SummaryMonth mark the special monthly-summary row
	// written by the scheduler's archival job.
	IsSummary     bool
	SummaryYear   int
	SummaryMonth  int

	CreatedAt time.Time
}

// Key identifies the owning stream of an entry.
type Key struct {
	ClientID        string
	NodeID          string
	ScopeIdentifier string
}

// String renders the key as a single token suitable for a map key or a
// distributed lock name.
func (k Key) String() string {
	return k.ClientID + "/" + k.NodeID + "/" + k.ScopeIdentifier
}

// RowError reports a single bad row in a CSV batch or multi-entry manual
// batch, keeping ingestion a partial-success operation.
type RowError struct {
	Row     int
	Field   string
	Message string
}

// BatchReport is the 207-equivalent result of a batch ingest: entries that
// made it in, plus a per-row error list for the ones that didn't.
type BatchReport struct {
	Accepted []Entry
	Errors   []RowError
}
