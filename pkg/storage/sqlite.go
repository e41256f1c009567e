package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateTeam(ctx context.Context, team *model.Team) error {
	if team.ID == "" {
		team.ID = uuid.New().String()
	}
	if team.Provider == "" {
		team.Provider = "openai"
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (id, name, provider, organization_id, encrypted_admin_key, report_email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		team.ID, team.Name, team.Provider, team.OrganizationID,
		team.EncryptedAdminKey, team.ReportEmail, team.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

const teamColumns = `id, name, provider, organization_id, encrypted_admin_key, report_email, created_at`

func scanTeam(row interface{ Scan(...any) error }) (*model.Team, error) {
	var t model.Team
	if err := row.Scan(&t.ID, &t.Name, &t.Provider, &t.OrganizationID,
		&t.EncryptedAdminKey, &t.ReportEmail, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLite) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

func (s *SQLite) ListTeams(ctx context.Context) ([]model.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []model.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team row: %w", err)
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

func (s *SQLite) UpdateTeamCredential(ctx context.Context, teamID, organizationID, encryptedKey string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE teams SET organization_id = ?, encrypted_admin_key = ? WHERE id = ?`,
		organizationID, encryptedKey, teamID,
	)
	if err != nil {
		return fmt.Errorf("update team credential: %w", err)
	}
	return expectAffected(result, "team", teamID)
}

func (s *SQLite) CreateProject(ctx context.Context, project *model.Project) error {
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, team_id, name, external_project_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		project.ID, project.TeamID, project.Name, project.ExternalProjectID, project.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

const projectColumns = `id, team_id, name, external_project_id, created_at`

func scanProject(row interface{ Scan(...any) error }) (*model.Project, error) {
	var (
		p   model.Project
		ext sql.NullString
	)
	if err := row.Scan(&p.ID, &p.TeamID, &p.Name, &ext, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ExternalProjectID = nullableString(ext)
	return &p, nil
}

func (s *SQLite) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLite) ListProjects(ctx context.Context, teamID string) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE team_id = ? ORDER BY name`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *SQLite) ProjectMapping(ctx context.Context, teamID string) (model.ProjectMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_project_id, id FROM projects
		 WHERE team_id = ? AND external_project_id IS NOT NULL AND external_project_id != ''`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query project mapping: %w", err)
	}
	defer rows.Close()

	mapping := make(model.ProjectMapping)
	for rows.Next() {
		var ext, id string
		if err := rows.Scan(&ext, &id); err != nil {
			return nil, fmt.Errorf("scan mapping row: %w", err)
		}
		mapping[ext] = id
	}
	return mapping, rows.Err()
}

func expectAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
