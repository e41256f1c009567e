package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: teams and projects
	`CREATE TABLE IF NOT EXISTS teams (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL UNIQUE,
		provider            TEXT NOT NULL DEFAULT 'openai',
		organization_id     TEXT NOT NULL DEFAULT '',
		encrypted_admin_key TEXT NOT NULL DEFAULT '',
		report_email        TEXT NOT NULL DEFAULT '',
		created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS projects (
		id                  TEXT PRIMARY KEY,
		team_id             TEXT NOT NULL REFERENCES teams(id),
		name                TEXT NOT NULL,
		external_project_id TEXT,
		created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(team_id, name)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_external ON projects(team_id, external_project_id);`,

	// Migration 2: cost records
	`CREATE TABLE IF NOT EXISTS cost_records (
		id                  TEXT PRIMARY KEY,
		team_id             TEXT NOT NULL,
		project_id          TEXT,
		provider            TEXT NOT NULL,
		external_project_id TEXT NOT NULL DEFAULT '',
		line_item           TEXT NOT NULL,
		model               TEXT,
		token_count         INTEGER,
		cost                TEXT NOT NULL,
		currency            TEXT NOT NULL DEFAULT 'usd',
		date                TEXT NOT NULL,
		bucket_start        DATETIME NOT NULL,
		api_version         TEXT NOT NULL,
		created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(team_id, provider, date, line_item, external_project_id)
	);

	CREATE INDEX IF NOT EXISTS idx_cost_project_date ON cost_records(project_id, date);
	CREATE INDEX IF NOT EXISTS idx_cost_team_date ON cost_records(team_id, date);`,

	// Migration 3: alert rules and cron log
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id                 TEXT PRIMARY KEY,
		project_id         TEXT NOT NULL REFERENCES projects(id),
		threshold_type     TEXT NOT NULL CHECK(threshold_type IN ('daily', 'weekly')),
		threshold_value    TEXT NOT NULL,
		enabled            INTEGER NOT NULL DEFAULT 1,
		channels           TEXT NOT NULL DEFAULT '',
		last_alert_sent_at DATETIME,
		created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(project_id, threshold_type)
	);

	CREATE TABLE IF NOT EXISTS cron_executions (
		job_name    TEXT NOT NULL,
		date_key    TEXT NOT NULL,
		executed_at DATETIME NOT NULL,
		PRIMARY KEY (job_name, date_key)
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	// Ensure migration tracking table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
