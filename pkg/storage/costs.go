package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

const upsertCostSQL = `INSERT INTO cost_records (
	id, team_id, project_id, provider, external_project_id, line_item, model,
	token_count, cost, currency, date, bucket_start, api_version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(team_id, provider, date, line_item, external_project_id) DO UPDATE SET
	project_id = excluded.project_id,
	model = excluded.model,
	token_count = excluded.token_count,
	cost = excluded.cost,
	currency = excluded.currency,
	bucket_start = excluded.bucket_start,
	api_version = excluded.api_version,
	updated_at = excluded.updated_at`

func (s *SQLite) UpsertCostRecords(ctx context.Context, records []model.CostRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cost upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertCostSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare cost upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range records {
		r := &records[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now

		if _, err := stmt.ExecContext(ctx,
			r.ID, r.TeamID, r.ProjectID, r.Provider, r.ExternalProjectID, r.LineItem, r.Model,
			r.TokenCount, r.Cost.String(), r.Currency, r.Date, r.BucketStart, r.APIVersion,
			r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return 0, fmt.Errorf("upsert cost record %s/%s: %w", r.Date, r.LineItem, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cost upsert: %w", err)
	}
	return len(records), nil
}

func (s *SQLite) QueryCostRecords(ctx context.Context, filter model.CostFilter) ([]model.CostRecord, error) {
	query := `SELECT id, team_id, project_id, provider, external_project_id, line_item, model,
		token_count, cost, currency, date, bucket_start, api_version, created_at, updated_at
		FROM cost_records`
	where, args := buildCostWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY date, line_item, external_project_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost records: %w", err)
	}
	defer rows.Close()

	var records []model.CostRecord
	for rows.Next() {
		var (
			r          model.CostRecord
			projectID  sql.NullString
			modelName  sql.NullString
			tokenCount sql.NullInt64
			cost       string
		)
		if err := rows.Scan(&r.ID, &r.TeamID, &projectID, &r.Provider, &r.ExternalProjectID,
			&r.LineItem, &modelName, &tokenCount, &cost, &r.Currency, &r.Date,
			&r.BucketStart, &r.APIVersion, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cost row: %w", err)
		}
		r.ProjectID = nullableString(projectID)
		r.Model = nullableString(modelName)
		if tokenCount.Valid {
			v := tokenCount.Int64
			r.TokenCount = &v
		}
		if r.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parse cost %q: %w", cost, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SumProjectCost adds costs in decimal so amounts like 25.50 are never rounded
// through a float.
func (s *SQLite) SumProjectCost(ctx context.Context, projectID, fromDate, toDate string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cost FROM cost_records WHERE project_id = ? AND date >= ? AND date <= ?`,
		projectID, fromDate, toDate,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum project cost: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var cost string
		if err := rows.Scan(&cost); err != nil {
			return decimal.Zero, fmt.Errorf("scan cost: %w", err)
		}
		d, err := decimal.NewFromString(cost)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse cost %q: %w", cost, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// buildCostWhere constructs a SQL WHERE clause from a CostFilter.
func buildCostWhere(filter model.CostFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.TeamID != "" {
		conditions = append(conditions, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.FromDate != "" {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != "" {
		conditions = append(conditions, "date <= ?")
		args = append(args, filter.ToDate)
	}

	return strings.Join(conditions, " AND "), args
}
