package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulwilltell/carbonplane/internal/core"
	"github.com/paulwilltell/carbonplane/internal/reduction"
	"github.com/paulwilltell/carbonplane/internal/summary"
)

// SummaryRepository is the pgx-backed summary.Repository adapter: one row
// per (clientId, periodType, period) document in emission_summaries,
// matching schema.sql's per-axis JSONB column layout rather than a single
// opaque blob, so `byScope`/`byCategory`/etc. stay independently
// queryable with a JSON operator (`by_scope @> '...'`).
type SummaryRepository struct {
	db *DB
}

// NewSummaryRepository wraps an open connection pool.
func NewSummaryRepository(db *DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

var (
	_ summary.Repository = (*SummaryRepository)(nil)
	_ summary.Lister     = (*SummaryRepository)(nil)
)

func periodRowID(clientID string, periodType core.PeriodType, p core.Period) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d:%d", clientID, periodType, p.Year, p.Month, p.Week, p.Day)
}

// Get loads the summary document for (clientID, periodType, period); the
// bool return is false when no document exists yet.
func (r *SummaryRepository) Get(ctx context.Context, clientID string, periodType core.PeriodType, period core.Period) (summary.EmissionSummary, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT version, totals, by_scope, by_category, by_activity, by_node,
			by_department, by_location, by_input_type, by_emission_factor, trends,
			process_emission_summary, reduction_summary, metadata, prevent_auto_recalculation,
			migrated_data, last_calculated
		FROM emission_summaries
		WHERE client_id = $1 AND period_type = $2 AND period_year = $3
		  AND period_month = $4 AND period_week = $5 AND period_day = $6`,
		clientID, string(periodType), period.Year, period.Month, period.Week, period.Day)

	s, err := scanSummaryRow(row.Scan)
	if err != nil {
		if IsNotFound(err) {
			return summary.EmissionSummary{}, false, nil
		}
		return summary.EmissionSummary{}, false, fmt.Errorf("db: get summary: %w", err)
	}
	s.ClientID = clientID
	s.PeriodType = periodType
	s.Period = period
	return s, true, nil
}

func scanSummaryRow(scan func(...any) error) (summary.EmissionSummary, error) {
	var (
		s                                                               summary.EmissionSummary
		version                                                         int64
		totals, byScope, byCategory, byActivity, byNode                 []byte
		byDepartment, byLocation, byInputType, byEmissionFactor, trends []byte
		processSummary, reductionSummary, metadata                      []byte
		preventAuto, migrated                                           bool
		lastCalculated                                                  time.Time
	)
	err := scan(&version, &totals, &byScope, &byCategory, &byActivity, &byNode,
		&byDepartment, &byLocation, &byInputType, &byEmissionFactor, &trends,
		&processSummary, &reductionSummary, &metadata, &preventAuto, &migrated, &lastCalculated)
	if err != nil {
		return summary.EmissionSummary{}, err
	}

	if err := unmarshalInto(totals, &s.Total); err != nil {
		return s, err
	}
	if err := unmarshalInto(byScope, &s.ByScope); err != nil {
		return s, err
	}
	if err := unmarshalInto(byCategory, &s.ByCategory); err != nil {
		return s, err
	}
	if err := unmarshalInto(byActivity, &s.ByActivity); err != nil {
		return s, err
	}
	if err := unmarshalInto(byNode, &s.ByNode); err != nil {
		return s, err
	}
	if err := unmarshalInto(byDepartment, &s.ByDepartment); err != nil {
		return s, err
	}
	if err := unmarshalInto(byLocation, &s.ByLocation); err != nil {
		return s, err
	}
	if err := unmarshalInto(byInputType, &s.ByInputType); err != nil {
		return s, err
	}
	if err := unmarshalInto(byEmissionFactor, &s.ByEmissionFactor); err != nil {
		return s, err
	}
	if err := unmarshalInto(trends, &s.Trends); err != nil {
		return s, err
	}
	if err := unmarshalInto(processSummary, &s.ProcessEmissionSummary); err != nil {
		return s, err
	}
	if len(reductionSummary) > 0 && string(reductionSummary) != "null" && string(reductionSummary) != "{}" {
		var red reduction.Summary
		if err := json.Unmarshal(reductionSummary, &red); err != nil {
			return s, fmt.Errorf("unmarshal reductionSummary: %w", err)
		}
		s.Reduction = &red
	}
	if err := unmarshalInto(metadata, &s.Metadata); err != nil {
		return s, err
	}
	s.Metadata.PreventAutoRecalculation = preventAuto
	s.Metadata.MigratedData = migrated
	s.Metadata.LastCalculated = lastCalculated
	return s, nil
}

// ListByClient loads every summary document stored for a client, in
// period-key order. Backs the full/incremental backup path.
func (r *SummaryRepository) ListByClient(ctx context.Context, clientID string) ([]summary.EmissionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT period_type, period_year, period_month, period_week, period_day,
			version, totals, by_scope, by_category, by_activity, by_node,
			by_department, by_location, by_input_type, by_emission_factor, trends,
			process_emission_summary, reduction_summary, metadata, prevent_auto_recalculation,
			migrated_data, last_calculated
		FROM emission_summaries
		WHERE client_id = $1
		ORDER BY period_type, period_year, period_month, period_week, period_day`, clientID)
	if err != nil {
		return nil, fmt.Errorf("db: list summaries for %q: %w", clientID, err)
	}
	defer rows.Close()

	var out []summary.EmissionSummary
	for rows.Next() {
		var (
			periodType             string
			year, month, week, day int
		)
		s, err := scanSummaryRow(func(dest ...any) error {
			head := []any{&periodType, &year, &month, &week, &day}
			return rows.Scan(append(head, dest...)...)
		})
		if err != nil {
			return nil, fmt.Errorf("db: scan summary row: %w", err)
		}
		s.ClientID = clientID
		s.PeriodType = core.PeriodType(periodType)
		s.Period = core.Period{Type: s.PeriodType, Year: year, Month: month, Week: week, Day: day}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate summaries: %w", err)
	}
	return out, nil
}

// Upsert writes the summary document. Callers on the automatic
// recalculation path are responsible for checking
// PreventAutoRecalculation/MigratedData before calling Upsert; this
// adapter always writes what it is given, the same contract
// InMemoryRepository exposes.
func (r *SummaryRepository) Upsert(ctx context.Context, s summary.EmissionSummary) error {
	id := periodRowID(s.ClientID, s.PeriodType, s.Period)

	totals, err := json.Marshal(s.Total)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}
	byScope, err := json.Marshal(s.ByScope)
	if err != nil {
		return fmt.Errorf("marshal byScope: %w", err)
	}
	byCategory, err := json.Marshal(s.ByCategory)
	if err != nil {
		return fmt.Errorf("marshal byCategory: %w", err)
	}
	byActivity, err := json.Marshal(s.ByActivity)
	if err != nil {
		return fmt.Errorf("marshal byActivity: %w", err)
	}
	byNode, err := json.Marshal(s.ByNode)
	if err != nil {
		return fmt.Errorf("marshal byNode: %w", err)
	}
	byDepartment, err := json.Marshal(s.ByDepartment)
	if err != nil {
		return fmt.Errorf("marshal byDepartment: %w", err)
	}
	byLocation, err := json.Marshal(s.ByLocation)
	if err != nil {
		return fmt.Errorf("marshal byLocation: %w", err)
	}
	byInputType, err := json.Marshal(s.ByInputType)
	if err != nil {
		return fmt.Errorf("marshal byInputType: %w", err)
	}
	byEmissionFactor, err := json.Marshal(s.ByEmissionFactor)
	if err != nil {
		return fmt.Errorf("marshal byEmissionFactor: %w", err)
	}
	trends, err := json.Marshal(s.Trends)
	if err != nil {
		return fmt.Errorf("marshal trends: %w", err)
	}
	processSummary, err := json.Marshal(s.ProcessEmissionSummary)
	if err != nil {
		return fmt.Errorf("marshal processEmissionSummary: %w", err)
	}
	var reductionSummary []byte
	if s.Reduction != nil {
		reductionSummary, err = json.Marshal(s.Reduction)
		if err != nil {
			return fmt.Errorf("marshal reductionSummary: %w", err)
		}
	} else {
		reductionSummary = []byte("{}")
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO emission_summaries
			(id, client_id, period_type, period_year, period_month, period_week, period_day,
			 version, totals, by_scope, by_category, by_activity, by_node, by_department,
			 by_location, by_input_type, by_emission_factor, trends, process_emission_summary,
			 reduction_summary, metadata, prevent_auto_recalculation, migrated_data, last_calculated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		ON CONFLICT (client_id, period_type, period_year, period_month, period_week, period_day)
		DO UPDATE SET
			version = emission_summaries.version + 1,
			totals = EXCLUDED.totals,
			by_scope = EXCLUDED.by_scope,
			by_category = EXCLUDED.by_category,
			by_activity = EXCLUDED.by_activity,
			by_node = EXCLUDED.by_node,
			by_department = EXCLUDED.by_department,
			by_location = EXCLUDED.by_location,
			by_input_type = EXCLUDED.by_input_type,
			by_emission_factor = EXCLUDED.by_emission_factor,
			trends = EXCLUDED.trends,
			process_emission_summary = EXCLUDED.process_emission_summary,
			reduction_summary = EXCLUDED.reduction_summary,
			metadata = EXCLUDED.metadata,
			prevent_auto_recalculation = EXCLUDED.prevent_auto_recalculation,
			migrated_data = EXCLUDED.migrated_data,
			last_calculated = EXCLUDED.last_calculated`,
		id, s.ClientID, string(s.PeriodType), s.Period.Year,
		s.Period.Month, s.Period.Week, s.Period.Day,
		1, totals, byScope, byCategory, byActivity, byNode, byDepartment,
		byLocation, byInputType, byEmissionFactor, trends, processSummary,
		reductionSummary, metadata, s.Metadata.PreventAutoRecalculation, s.Metadata.MigratedData, s.Metadata.LastCalculated)
	if err != nil {
		return fmt.Errorf("db: upsert summary %q: %w", id, err)
	}
	return nil
}
