package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

func (s *SQLite) SetAlertRule(ctx context.Context, rule *model.AlertRule) error {
	if !rule.ThresholdType.Valid() {
		return fmt.Errorf("invalid threshold type %q", rule.ThresholdType)
	}
	if !rule.ThresholdValue.IsPositive() {
		return fmt.Errorf("threshold value must be greater than zero")
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	// RETURNING reports the surviving id when the rule already existed.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO alert_rules (id, project_id, threshold_type, threshold_value, enabled, channels, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, threshold_type) DO UPDATE SET
		   threshold_value = excluded.threshold_value,
		   enabled = excluded.enabled,
		   channels = excluded.channels,
		   updated_at = excluded.updated_at
		 RETURNING id`,
		rule.ID, rule.ProjectID, string(rule.ThresholdType), rule.ThresholdValue.String(),
		rule.Enabled, joinChannels(rule.Channels), rule.CreatedAt, rule.UpdatedAt,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("set alert rule: %w", err)
	}
	return nil
}

func (s *SQLite) ListAlertRules(ctx context.Context) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.project_id, p.name, p.team_id, r.threshold_type, r.threshold_value,
		        r.enabled, r.channels, r.last_alert_sent_at, r.created_at, r.updated_at
		 FROM alert_rules r JOIN projects p ON p.id = r.project_id
		 ORDER BY p.name, r.threshold_type`)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		var (
			r         model.AlertRule
			threshold string
			channels  string
			lastSent  sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.ProjectName, &r.TeamID, &r.ThresholdType,
			&threshold, &r.Enabled, &channels, &lastSent, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan alert rule row: %w", err)
		}
		if r.ThresholdValue, err = decimal.NewFromString(threshold); err != nil {
			return nil, fmt.Errorf("parse threshold %q: %w", threshold, err)
		}
		r.Channels = splitChannels(channels)
		if lastSent.Valid {
			t := lastSent.Time.UTC()
			r.LastAlertSentAt = &t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *SQLite) MarkAlertSent(ctx context.Context, ruleID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET last_alert_sent_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), ruleID,
	)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return expectAffected(result, "alert rule", ruleID)
}

func (s *SQLite) GetCronExecution(ctx context.Context, jobName, dateKey string) (*model.CronExecution, error) {
	exec := model.CronExecution{JobName: jobName, DateKey: dateKey}
	err := s.db.QueryRowContext(ctx,
		`SELECT executed_at FROM cron_executions WHERE job_name = ? AND date_key = ?`,
		jobName, dateKey,
	).Scan(&exec.ExecutedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cron execution %s/%s: %w", jobName, dateKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get cron execution: %w", err)
	}
	exec.ExecutedAt = exec.ExecutedAt.UTC()
	return &exec, nil
}

func (s *SQLite) InsertCronExecution(ctx context.Context, exec *model.CronExecution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cron_executions (job_name, date_key, executed_at) VALUES (?, ?, ?)
		 ON CONFLICT(job_name, date_key) DO NOTHING`,
		exec.JobName, exec.DateKey, exec.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert cron execution: %w", err)
	}
	return nil
}

func joinChannels(channels []model.Channel) string {
	parts := make([]string, len(channels))
	for i, c := range channels {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitChannels(s string) []model.Channel {
	if s == "" {
		return nil
	}
	var channels []model.Channel
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			channels = append(channels, model.Channel(part))
		}
	}
	return channels
}
