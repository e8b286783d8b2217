package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/paulwilltell/carbonplane/internal/reduction"
)

// ReductionRepository is the pgx-backed reduction.Repository adapter: one
// row per ledger entry in reduction_entries, keyed by the per-stream
// (clientId, projectId, methodology) triple the ledger serialises writes
// on.
type ReductionRepository struct {
	db *DB
}

// NewReductionRepository wraps an open connection pool.
func NewReductionRepository(db *DB) *ReductionRepository {
	return &ReductionRepository{db: db}
}

var _ reduction.Repository = (*ReductionRepository)(nil)

const reductionColumns = `id, client_id, project_id, methodology, mechanism, category, scope_identifier,
	location, activity, input_value, emission_reduction_rate, net_reduction, cumulative_net_reduction,
	high_net_reduction, low_net_reduction, breakdown, entry_timestamp, source, created_at`

func scanReductionRow(scan func(...any) error) (reduction.Entry, error) {
	var (
		e             reduction.Entry
		mechanism     string
		methodology   string
		breakdownJSON []byte
		source        sql.NullString
		createdAt     time.Time
	)
	err := scan(&e.ID, &e.ClientID, &e.ProjectID, &methodology, &mechanism, &e.Category, &e.ScopeIdentifier,
		&e.Location, &e.Activity, &e.InputValue, &e.EmissionReductionRate, &e.NetReduction, &e.CumulativeNetReduction,
		&e.HighNetReduction, &e.LowNetReduction, &breakdownJSON, &e.Timestamp, &source, &createdAt)
	if err != nil {
		return reduction.Entry{}, err
	}
	e.Methodology = reduction.Methodology(methodology)
	e.Mechanism = reduction.Mechanism(mechanism)
	e.Source = source.String
	if len(breakdownJSON) > 0 && string(breakdownJSON) != "null" {
		var b reduction.Breakdown
		if err := json.Unmarshal(breakdownJSON, &b); err != nil {
			return reduction.Entry{}, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		e.Breakdown = &b
	}
	return e, nil
}

func insertReductionEntry(ctx context.Context, tx *sql.Tx, e reduction.Entry) error {
	var breakdownJSON []byte
	if e.Breakdown != nil {
		var err error
		breakdownJSON, err = json.Marshal(e.Breakdown)
		if err != nil {
			return fmt.Errorf("marshal breakdown: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO reduction_entries (`+reductionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		e.ID, e.ClientID, e.ProjectID, string(e.Methodology), string(e.Mechanism), e.Category, e.ScopeIdentifier,
		e.Location, e.Activity, e.InputValue, e.EmissionReductionRate, e.NetReduction, e.CumulativeNetReduction,
		e.HighNetReduction, e.LowNetReduction, breakdownJSON, e.Timestamp, e.Source, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert reduction entry %s: %w", e.ID, err)
	}
	return nil
}

// Stream returns every entry for key in ascending timestamp order.
func (r *ReductionRepository) Stream(ctx context.Context, key reduction.Key) ([]reduction.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+reductionColumns+` FROM reduction_entries
		WHERE client_id = $1 AND project_id = $2 AND methodology = $3
		ORDER BY entry_timestamp ASC`, key.ClientID, key.ProjectID, string(key.Methodology))
	if err != nil {
		return nil, fmt.Errorf("db: reduction stream query: %w", err)
	}
	defer rows.Close()

	var out []reduction.Entry
	for rows.Next() {
		e, err := scanReductionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db: scan reduction entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceStream atomically rewrites key's entire entry set.
func (r *ReductionRepository) ReplaceStream(ctx context.Context, key reduction.Key, entries []reduction.Entry) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reduction_entries
			WHERE client_id = $1 AND project_id = $2 AND methodology = $3`,
			key.ClientID, key.ProjectID, string(key.Methodology)); err != nil {
			return fmt.Errorf("delete reduction stream: %w", err)
		}
		for _, e := range entries {
			if err := insertReductionEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllStreamsForClient lists every (projectId, methodology) stream known
// for a client.
func (r *ReductionRepository) AllStreamsForClient(clientID string) []reduction.Key {
	rows, err := r.db.QueryContext(context.Background(), `SELECT DISTINCT project_id, methodology
		FROM reduction_entries WHERE client_id = $1`, clientID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []reduction.Key
	for rows.Next() {
		var projectID, methodology string
		if err := rows.Scan(&projectID, &methodology); err != nil {
			return out
		}
		out = append(out, reduction.Key{ClientID: clientID, ProjectID: projectID, Methodology: reduction.Methodology(methodology)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].Methodology < out[j].Methodology
	})
	return out
}

// EntriesInRange returns every entry for clientID whose timestamp falls in
// [from, to), across all of that client's streams, for the summariser to
// fold into a period's reductionSummary.
func (r *ReductionRepository) EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]reduction.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+reductionColumns+` FROM reduction_entries
		WHERE client_id = $1 AND entry_timestamp >= $2 AND entry_timestamp < $3
		ORDER BY entry_timestamp ASC`,
		clientID, time.Unix(0, from).UTC(), time.Unix(0, to).UTC())
	if err != nil {
		return nil, fmt.Errorf("db: reduction entries in range: %w", err)
	}
	defer rows.Close()

	var out []reduction.Entry
	for rows.Next() {
		e, err := scanReductionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db: scan reduction entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
