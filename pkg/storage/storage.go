package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence layer for teams, cost records, alert rules
// and cron executions.
type Storage interface {
	// CreateTeam persists a new team.
	CreateTeam(ctx context.Context, team *model.Team) error

	// GetTeam retrieves a team by id.
	GetTeam(ctx context.Context, id string) (*model.Team, error)

	// ListTeams returns all teams ordered by name.
	ListTeams(ctx context.Context) ([]model.Team, error)

	// UpdateTeamCredential replaces a team's organization id and encrypted admin key.
	UpdateTeamCredential(ctx context.Context, teamID, organizationID, encryptedKey string) error

	// CreateProject persists a new project.
	CreateProject(ctx context.Context, project *model.Project) error

	// GetProject retrieves a project by id.
	GetProject(ctx context.Context, id string) (*model.Project, error)

	// ListProjects returns a team's projects ordered by name.
	ListProjects(ctx context.Context, teamID string) ([]model.Project, error)

	// ProjectMapping returns external→internal project ids for a team.
	ProjectMapping(ctx context.Context, teamID string) (model.ProjectMapping, error)

	// UpsertCostRecords writes records in one transaction, overwriting rows
	// that share the uniqueness key. It returns the number of rows written.
	UpsertCostRecords(ctx context.Context, records []model.CostRecord) (int, error)

	// QueryCostRecords retrieves cost records matching the filter.
	QueryCostRecords(ctx context.Context, filter model.CostFilter) ([]model.CostRecord, error)

	// SumProjectCost totals a project's cost over an inclusive date range.
	SumProjectCost(ctx context.Context, projectID, fromDate, toDate string) (decimal.Decimal, error)

	// SetAlertRule creates or updates the rule for a project and threshold type.
	SetAlertRule(ctx context.Context, rule *model.AlertRule) error

	// ListAlertRules returns every alert rule, enabled or not.
	ListAlertRules(ctx context.Context) ([]model.AlertRule, error)

	// MarkAlertSent records when a rule last notified.
	MarkAlertSent(ctx context.Context, ruleID string, at time.Time) error

	// GetCronExecution returns the execution record for a job and date key.
	GetCronExecution(ctx context.Context, jobName, dateKey string) (*model.CronExecution, error)

	// InsertCronExecution records a successful run. An existing record is kept.
	InsertCronExecution(ctx context.Context, exec *model.CronExecution) error

	// Close releases resources.
	Close() error
}
