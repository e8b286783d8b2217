package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/measurement"
)

// MeasurementRepository is the pgx-backed measurement.Repository adapter:
// one row per entry in the entries table, keyed by the per-stream
// (clientId, nodeId, scopeIdentifier) triple the ingestion pipeline
// serialises writes on. Dynamic maps (dataValues and the running
// aggregates) are stored as JSONB columns.
type MeasurementRepository struct {
	db *DB
}

// NewMeasurementRepository wraps an open connection pool.
func NewMeasurementRepository(db *DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

var _ measurement.Repository = (*MeasurementRepository)(nil)

type measurementRow struct {
	ID                  string
	ClientID            string
	NodeID              string
	ScopeIdentifier     string
	ScopeType           string
	InputType           string
	Variant             string
	Date                string
	Time                string
	Timestamp           time.Time
	DataValues          json.RawMessage
	EmissionFactor      json.RawMessage
	SourceDetails       json.RawMessage
	IsEditable          bool
	ProcessingStatus    string
	IsSummary           bool
	SummaryMonth        sql.NullInt64
	SummaryYear         sql.NullInt64
	CalculatedEmissions json.RawMessage
	CumulativeValues    json.RawMessage
	HighData            json.RawMessage
	LowData             json.RawMessage
	LastEnteredData     json.RawMessage
	FailureReason       string
	CreatedAt           time.Time
}

func rowFromEntry(e measurement.Entry) (measurementRow, error) {
	dataValues, err := json.Marshal(e.DataValues)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal dataValues: %w", err)
	}
	factor, err := json.Marshal(e.EmissionFactorSource)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal emissionFactor: %w", err)
	}
	sourceDetails, err := json.Marshal(e.SourceDetails)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal sourceDetails: %w", err)
	}
	calc, err := json.Marshal(e.CalculatedEmissions)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal calculatedEmissions: %w", err)
	}
	cumulative, err := json.Marshal(e.CumulativeValues)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal cumulativeValues: %w", err)
	}
	high, err := json.Marshal(e.HighData)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal highData: %w", err)
	}
	low, err := json.Marshal(e.LowData)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal lowData: %w", err)
	}
	last, err := json.Marshal(e.LastEnteredData)
	if err != nil {
		return measurementRow{}, fmt.Errorf("marshal lastEnteredData: %w", err)
	}

	row := measurementRow{
		ID:                  e.ID,
		ClientID:            e.ClientID,
		NodeID:              e.NodeID,
		ScopeIdentifier:     e.ScopeIdentifier,
		ScopeType:           e.ScopeType,
		InputType:           string(e.InputType),
		Variant:             string(e.Variant),
		Date:                e.Date,
		Time:                e.Time,
		Timestamp:           e.Timestamp,
		DataValues:          dataValues,
		EmissionFactor:      factor,
		SourceDetails:       sourceDetails,
		IsEditable:          e.IsEditable,
		ProcessingStatus:    string(e.ProcessingStatus),
		IsSummary:           e.IsSummary,
		CalculatedEmissions: calc,
		CumulativeValues:    cumulative,
		HighData:            high,
		LowData:             low,
		LastEnteredData:     last,
		FailureReason:       e.FailureReason,
		CreatedAt:           e.CreatedAt,
	}
	if e.IsSummary {
		row.SummaryMonth = sql.NullInt64{Int64: int64(e.SummaryMonth), Valid: true}
		row.SummaryYear = sql.NullInt64{Int64: int64(e.SummaryYear), Valid: true}
	}
	return row, nil
}

func entryFromRow(r measurementRow) (measurement.Entry, error) {
	e := measurement.Entry{
		ID:               r.ID,
		ClientID:         r.ClientID,
		NodeID:           r.NodeID,
		ScopeIdentifier:  r.ScopeIdentifier,
		ScopeType:        r.ScopeType,
		InputType:        flowchart.InputType(r.InputType),
		Variant:          measurement.Variant(r.Variant),
		Date:             r.Date,
		Time:             r.Time,
		Timestamp:        r.Timestamp,
		IsEditable:       r.IsEditable,
		ProcessingStatus: measurement.ProcessingStatus(r.ProcessingStatus),
		IsSummary:        r.IsSummary,
		FailureReason:    r.FailureReason,
		CreatedAt:        r.CreatedAt,
	}
	if r.SummaryMonth.Valid {
		e.SummaryMonth = int(r.SummaryMonth.Int64)
	}
	if r.SummaryYear.Valid {
		e.SummaryYear = int(r.SummaryYear.Int64)
	}
	if err := unmarshalInto(r.DataValues, &e.DataValues); err != nil {
		return e, err
	}
	var source string
	if err := unmarshalInto(r.SourceDetails, &source); err != nil {
		return e, err
	}
	e.SourceDetails = source
	var factor string
	if err := unmarshalInto(r.EmissionFactor, &factor); err != nil {
		return e, err
	}
	e.EmissionFactorSource = factor
	if err := unmarshalInto(r.CalculatedEmissions, &e.CalculatedEmissions); err != nil {
		return e, err
	}
	if err := unmarshalInto(r.CumulativeValues, &e.CumulativeValues); err != nil {
		return e, err
	}
	if err := unmarshalInto(r.HighData, &e.HighData); err != nil {
		return e, err
	}
	if err := unmarshalInto(r.LowData, &e.LowData); err != nil {
		return e, err
	}
	if err := unmarshalInto(r.LastEnteredData, &e.LastEnteredData); err != nil {
		return e, err
	}
	return e, nil
}

func unmarshalInto(raw json.RawMessage, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

const measurementColumns = `id, client_id, node_id, scope_identifier, scope_type, input_type, variant,
	entry_timestamp, data_values, emission_factor, source_details, is_editable,
	processing_status, is_summary, summary_month, summary_year, calculated_emissions,
	cumulative_values, high_data, low_data, last_entered_data, failure_reason, created_at`

func scanMeasurementRow(scan func(...any) error) (measurement.Entry, error) {
	var r measurementRow
	err := scan(&r.ID, &r.ClientID, &r.NodeID, &r.ScopeIdentifier, &r.ScopeType, &r.InputType, &r.Variant,
		&r.Timestamp, &r.DataValues, &r.EmissionFactor, &r.SourceDetails, &r.IsEditable,
		&r.ProcessingStatus, &r.IsSummary, &r.SummaryMonth, &r.SummaryYear, &r.CalculatedEmissions,
		&r.CumulativeValues, &r.HighData, &r.LowData, &r.LastEnteredData, &r.FailureReason, &r.CreatedAt)
	if err != nil {
		return measurement.Entry{}, err
	}
	return entryFromRow(r)
}

// Stream returns every entry for key in ascending timestamp order.
func (m *MeasurementRepository) Stream(ctx context.Context, key measurement.Key) ([]measurement.Entry, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+measurementColumns+` FROM entries
		WHERE client_id = $1 AND node_id = $2 AND scope_identifier = $3
		ORDER BY entry_timestamp ASC`, key.ClientID, key.NodeID, key.ScopeIdentifier)
	if err != nil {
		return nil, fmt.Errorf("db: stream query: %w", err)
	}
	defer rows.Close()

	var out []measurement.Entry
	for rows.Next() {
		e, err := scanMeasurementRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceStream atomically rewrites key's entire entry set, used by the
// out-of-order recomputation path and by CSV batch
// ingestion's deterministic reordering.
func (m *MeasurementRepository) ReplaceStream(ctx context.Context, key measurement.Key, entries []measurement.Entry) error {
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE client_id = $1 AND node_id = $2 AND scope_identifier = $3`,
			key.ClientID, key.NodeID, key.ScopeIdentifier); err != nil {
			return fmt.Errorf("delete stream: %w", err)
		}
		for _, e := range entries {
			if err := insertEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEntry(ctx context.Context, tx *sql.Tx, e measurement.Entry) error {
	row, err := rowFromEntry(e)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO entries (`+measurementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		row.ID, row.ClientID, row.NodeID, row.ScopeIdentifier, row.ScopeType, row.InputType, row.Variant,
		row.Timestamp, row.DataValues, row.EmissionFactor, row.SourceDetails, row.IsEditable,
		row.ProcessingStatus, row.IsSummary, row.SummaryMonth, row.SummaryYear, row.CalculatedEmissions,
		row.CumulativeValues, row.HighData, row.LowData, row.LastEnteredData, row.FailureReason, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

// DeleteRange removes every non-summary entry for key in [from, to): the
// monthly archival job's raw-row eviction. Summary
// rows are never matched here regardless of timestamp.
func (m *MeasurementRepository) DeleteRange(ctx context.Context, key measurement.Key, from, to int64) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM entries
		WHERE client_id = $1 AND node_id = $2 AND scope_identifier = $3
		  AND is_summary = FALSE
		  AND entry_timestamp >= $4 AND entry_timestamp < $5`,
		key.ClientID, key.NodeID, key.ScopeIdentifier,
		time.Unix(0, from).UTC(), time.Unix(0, to).UTC())
	if err != nil {
		return fmt.Errorf("db: delete range: %w", err)
	}
	return nil
}

// AllStreamsForClient lists every (node,scope) stream key known for a
// client.
func (m *MeasurementRepository) AllStreamsForClient(clientID string) []measurement.Key {
	rows, err := m.db.QueryContext(context.Background(), `SELECT DISTINCT node_id, scope_identifier
		FROM entries WHERE client_id = $1 ORDER BY node_id, scope_identifier`, clientID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []measurement.Key
	for rows.Next() {
		var k measurement.Key
		k.ClientID = clientID
		if err := rows.Scan(&k.NodeID, &k.ScopeIdentifier); err != nil {
			return out
		}
		out = append(out, k)
	}
	return out
}

// EntriesInRange returns every entry for clientID whose timestamp falls in
// [from, to), across all of that client's streams, in ascending timestamp
// order, the scan the summary materialiser folds.
func (m *MeasurementRepository) EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]measurement.Entry, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+measurementColumns+` FROM entries
		WHERE client_id = $1 AND entry_timestamp >= $2 AND entry_timestamp < $3
		ORDER BY entry_timestamp ASC`,
		clientID, time.Unix(0, from).UTC(), time.Unix(0, to).UTC())
	if err != nil {
		return nil, fmt.Errorf("db: entries in range: %w", err)
	}
	defer rows.Close()

	var out []measurement.Entry
	for rows.Next() {
		e, err := scanMeasurementRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
