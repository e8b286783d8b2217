package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulwilltell/carbonplane/internal/flowchart"
)

// FlowchartRepository is the pgx-backed flowchart.Repository adapter. The
// node tree is stored as a single JSONB document per client, matching the
// in-memory repository's one-document-per-client shape; topology lives in
// each node's ParentID pointer, so there is no separate edge set to
// persist.
type FlowchartRepository struct {
	db *DB
}

// NewFlowchartRepository wraps an open connection pool.
func NewFlowchartRepository(db *DB) *FlowchartRepository {
	return &FlowchartRepository{db: db}
}

var _ flowchart.Repository = (*FlowchartRepository)(nil)

// Get loads the client's flowchart document. Absent rows return a zero
// Flowchart with no error, matching MemoryRepository's "not yet created"
// convention so Service.withClient can seed a fresh one.
func (r *FlowchartRepository) Get(ctx context.Context, clientID string) (flowchart.Flowchart, error) {
	var (
		version            int64
		active              bool
		nodesJSON           []byte
		createdAt, updatedAt time.Time
		deletedAt           sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT version, active, nodes, created_at, updated_at, deleted_at
		FROM flowcharts WHERE id = $1`, clientID).
		Scan(&version, &active, &nodesJSON, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if IsNotFound(err) {
			return flowchart.Flowchart{}, nil
		}
		return flowchart.Flowchart{}, fmt.Errorf("db: get flowchart %q: %w", clientID, err)
	}

	var nodes map[string]flowchart.Node
	if err := json.Unmarshal(nodesJSON, &nodes); err != nil {
		return flowchart.Flowchart{}, fmt.Errorf("db: unmarshal flowchart %q nodes: %w", clientID, err)
	}

	fc := flowchart.Flowchart{
		ClientID:  clientID,
		Version:   int(version),
		Active:    active,
		Nodes:     nodes,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if deletedAt.Valid {
		fc.DeletedAt = deletedAt.Time
	}
	return fc, nil
}

// Save upserts the client's flowchart document, keyed by client id.
func (r *FlowchartRepository) Save(ctx context.Context, fc flowchart.Flowchart) error {
	nodesJSON, err := json.Marshal(fc.Nodes)
	if err != nil {
		return fmt.Errorf("marshal flowchart nodes: %w", err)
	}

	var deletedAt any
	if !fc.DeletedAt.IsZero() {
		deletedAt = fc.DeletedAt
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO flowcharts
			(id, client_id, version, active, deleted_at, nodes, edges, created_at, updated_at)
		VALUES ($1, $1, $2, $3, $4, $5, '[]', $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			active = EXCLUDED.active,
			deleted_at = EXCLUDED.deleted_at,
			nodes = EXCLUDED.nodes,
			updated_at = EXCLUDED.updated_at`,
		fc.ClientID, fc.Version, fc.Active, deletedAt, nodesJSON, fc.CreatedAt, fc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db: save flowchart %q: %w", fc.ClientID, err)
	}
	return nil
}

// All returns every stored flowchart, for the scheduler's "every active
// client" enumeration.
func (r *FlowchartRepository) All(ctx context.Context) ([]flowchart.Flowchart, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT client_id, version, active, nodes, created_at, updated_at, deleted_at
		FROM flowcharts ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("db: list flowcharts: %w", err)
	}
	defer rows.Close()

	var out []flowchart.Flowchart
	for rows.Next() {
		var (
			clientID            string
			version              int64
			active               bool
			nodesJSON            []byte
			createdAt, updatedAt time.Time
			deletedAt            sql.NullTime
		)
		if err := rows.Scan(&clientID, &version, &active, &nodesJSON, &createdAt, &updatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("db: scan flowchart: %w", err)
		}
		var nodes map[string]flowchart.Node
		if err := json.Unmarshal(nodesJSON, &nodes); err != nil {
			return nil, fmt.Errorf("db: unmarshal flowchart %q nodes: %w", clientID, err)
		}
		fc := flowchart.Flowchart{
			ClientID:  clientID,
			Version:   int(version),
			Active:    active,
			Nodes:     nodes,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		}
		if deletedAt.Valid {
			fc.DeletedAt = deletedAt.Time
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}
