package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paulwilltell/carbonplane/internal/measurement"
	"github.com/paulwilltell/carbonplane/internal/scheduler"
)

// CollectionConfigRepository is the pgx-backed
// scheduler.CollectionConfigStore adapter: one row per stream in
// collection_config, so overdue-alert bookkeeping survives restarts.
type CollectionConfigRepository struct {
	db *DB
}

// NewCollectionConfigRepository wraps an open connection pool.
func NewCollectionConfigRepository(db *DB) *CollectionConfigRepository {
	return &CollectionConfigRepository{db: db}
}

var _ scheduler.CollectionConfigStore = (*CollectionConfigRepository)(nil)

func (r *CollectionConfigRepository) Get(ctx context.Context, key measurement.Key) (scheduler.CollectionConfig, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT cadence_seconds, last_collection_at, next_due_at, alert_threshold, last_alerted_at
		FROM collection_config
		WHERE client_id = $1 AND node_id = $2 AND scope_identifier = $3`,
		key.ClientID, key.NodeID, key.ScopeIdentifier)

	var (
		cadenceSeconds int64
		lastCollection sql.NullTime
		nextDue        sql.NullTime
		threshold      float64
		lastAlerted    sql.NullTime
	)
	if err := row.Scan(&cadenceSeconds, &lastCollection, &nextDue, &threshold, &lastAlerted); err != nil {
		if IsNotFound(err) {
			return scheduler.CollectionConfig{}, false, nil
		}
		return scheduler.CollectionConfig{}, false, fmt.Errorf("db: get collection config: %w", err)
	}

	cfg := scheduler.CollectionConfig{
		Key:            key,
		Cadence:        time.Duration(cadenceSeconds) * time.Second,
		AlertThreshold: threshold,
	}
	if lastCollection.Valid {
		cfg.LastCollection = lastCollection.Time
	}
	if nextDue.Valid {
		cfg.NextDue = nextDue.Time
	}
	if lastAlerted.Valid {
		cfg.LastAlertedAt = lastAlerted.Time
	}
	return cfg, true, nil
}

func (r *CollectionConfigRepository) Upsert(ctx context.Context, cfg scheduler.CollectionConfig) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO collection_config
			(client_id, node_id, scope_identifier, cadence_seconds, last_collection_at, next_due_at, alert_threshold, last_alerted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (client_id, node_id, scope_identifier)
		DO UPDATE SET
			cadence_seconds = EXCLUDED.cadence_seconds,
			last_collection_at = EXCLUDED.last_collection_at,
			next_due_at = EXCLUDED.next_due_at,
			alert_threshold = EXCLUDED.alert_threshold,
			last_alerted_at = EXCLUDED.last_alerted_at`,
		cfg.Key.ClientID, cfg.Key.NodeID, cfg.Key.ScopeIdentifier,
		int64(cfg.Cadence/time.Second),
		nullTime(cfg.LastCollection), nullTime(cfg.NextDue),
		cfg.AlertThreshold, nullTime(cfg.LastAlertedAt))
	if err != nil {
		return fmt.Errorf("db: upsert collection config: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
