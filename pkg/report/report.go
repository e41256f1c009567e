// Package report builds and emails weekly spend efficiency reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

// ErrReportsFailed is returned by SendAll when at least one team's report failed.
var ErrReportsFailed = errors.New("weekly report failed for one or more teams")

// Store is the storage the generator reads from.
type Store interface {
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
	ListProjects(ctx context.Context, teamID string) ([]model.Project, error)
	QueryCostRecords(ctx context.Context, filter model.CostFilter) ([]model.CostRecord, error)
}

// Mailer delivers rendered reports.
type Mailer interface {
	SendReport(ctx context.Context, to []string, subject, htmlBody string) error
}

// ProjectSpend is one project's share of the week.
type ProjectSpend struct {
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Cost      decimal.Decimal `json:"cost"`
	Previous  decimal.Decimal `json:"previous"`
	SharePct  decimal.Decimal `json:"share_pct"`
}

// LineItemSpend aggregates one billing line item.
type LineItemSpend struct {
	LineItem string          `json:"line_item"`
	Model    string          `json:"model,omitempty"`
	Cost     decimal.Decimal `json:"cost"`
}

// Report is a team's weekly spend summary.
type Report struct {
	TeamID        string          `json:"team_id"`
	TeamName      string          `json:"team_name"`
	WeekStart     string          `json:"week_start"`
	WeekEnd       string          `json:"week_end"`
	Total         decimal.Decimal `json:"total"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	ChangePct     decimal.Decimal `json:"change_pct"`
	Unattributed  decimal.Decimal `json:"unattributed"`
	Projects      []ProjectSpend  `json:"projects"`
	LineItems     []LineItemSpend `json:"line_items"`
	Insights      []string        `json:"insights"`
}

// Generator builds reports from stored cost records.
type Generator struct {
	store  Store
	mailer Mailer
	logger *slog.Logger
	// MaxLineItems caps the line item table.
	MaxLineItems int
}

// NewGenerator creates a report generator. mailer may be nil when only Build is used.
func NewGenerator(store Store, mailer Mailer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{store: store, mailer: mailer, logger: logger, MaxLineItems: 10}
}

// Build summarizes the seven days starting at weekStart and compares them
// with the seven days before.
func (g *Generator) Build(ctx context.Context, teamID string, weekStart time.Time) (*Report, error) {
	team, err := g.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}
	projects, err := g.store.ListProjects(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	start := model.WeekStart(weekStart)
	end := start.AddDate(0, 0, 6)
	prevStart := start.AddDate(0, 0, -7)
	prevEnd := start.AddDate(0, 0, -1)

	current, err := g.store.QueryCostRecords(ctx, model.CostFilter{
		TeamID:   teamID,
		FromDate: start.Format(model.DateLayout),
		ToDate:   end.Format(model.DateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("query current week: %w", err)
	}
	previous, err := g.store.QueryCostRecords(ctx, model.CostFilter{
		TeamID:   teamID,
		FromDate: prevStart.Format(model.DateLayout),
		ToDate:   prevEnd.Format(model.DateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("query previous week: %w", err)
	}

	r := &Report{
		TeamID:        team.ID,
		TeamName:      team.Name,
		WeekStart:     start.Format(model.DateLayout),
		WeekEnd:       end.Format(model.DateLayout),
		Total:         decimal.Zero,
		PreviousTotal: decimal.Zero,
		Unattributed:  decimal.Zero,
	}

	byProject := make(map[string]*ProjectSpend, len(projects))
	for _, p := range projects {
		byProject[p.ID] = &ProjectSpend{ProjectID: p.ID, Name: p.Name, Cost: decimal.Zero, Previous: decimal.Zero}
	}
	byLine := make(map[string]*LineItemSpend)

	for _, rec := range current {
		r.Total = r.Total.Add(rec.Cost)
		if ps := projectFor(byProject, rec); ps != nil {
			ps.Cost = ps.Cost.Add(rec.Cost)
		} else {
			r.Unattributed = r.Unattributed.Add(rec.Cost)
		}

		li, ok := byLine[rec.LineItem]
		if !ok {
			li = &LineItemSpend{LineItem: rec.LineItem, Cost: decimal.Zero}
			byLine[rec.LineItem] = li
		}
		li.Cost = li.Cost.Add(rec.Cost)
		if rec.Model != nil {
			li.Model = *rec.Model
		}
	}
	for _, rec := range previous {
		r.PreviousTotal = r.PreviousTotal.Add(rec.Cost)
		if ps := projectFor(byProject, rec); ps != nil {
			ps.Previous = ps.Previous.Add(rec.Cost)
		}
	}

	hundred := decimal.NewFromInt(100)
	for _, ps := range byProject {
		if ps.Cost.IsZero() && ps.Previous.IsZero() {
			continue
		}
		if r.Total.IsPositive() {
			ps.SharePct = ps.Cost.Div(r.Total).Mul(hundred).Round(1)
		}
		r.Projects = append(r.Projects, *ps)
	}
	sort.Slice(r.Projects, func(i, j int) bool {
		if !r.Projects[i].Cost.Equal(r.Projects[j].Cost) {
			return r.Projects[i].Cost.GreaterThan(r.Projects[j].Cost)
		}
		return r.Projects[i].Name < r.Projects[j].Name
	})

	for _, li := range byLine {
		r.LineItems = append(r.LineItems, *li)
	}
	sort.Slice(r.LineItems, func(i, j int) bool {
		if !r.LineItems[i].Cost.Equal(r.LineItems[j].Cost) {
			return r.LineItems[i].Cost.GreaterThan(r.LineItems[j].Cost)
		}
		return r.LineItems[i].LineItem < r.LineItems[j].LineItem
	})
	if g.MaxLineItems > 0 && len(r.LineItems) > g.MaxLineItems {
		r.LineItems = r.LineItems[:g.MaxLineItems]
	}

	if r.PreviousTotal.IsPositive() {
		r.ChangePct = r.Total.Sub(r.PreviousTotal).Div(r.PreviousTotal).Mul(hundred).Round(1)
	}
	r.Insights = insights(r)
	return r, nil
}

func projectFor(byProject map[string]*ProjectSpend, rec model.CostRecord) *ProjectSpend {
	if rec.ProjectID == nil {
		return nil
	}
	return byProject[*rec.ProjectID]
}

var significantChange = decimal.NewFromInt(20)

func insights(r *Report) []string {
	var out []string
	switch {
	case r.PreviousTotal.IsZero() && r.Total.IsPositive():
		out = append(out, "First week with recorded spend.")
	case r.ChangePct.GreaterThanOrEqual(significantChange):
		out = append(out, fmt.Sprintf("Spend rose %s%% week over week.", r.ChangePct))
	case r.ChangePct.LessThanOrEqual(significantChange.Neg()):
		out = append(out, fmt.Sprintf("Spend fell %s%% week over week.", r.ChangePct.Abs()))
	}
	if r.Unattributed.IsPositive() {
		out = append(out, fmt.Sprintf("$%s was not attributed to any project. Bind the missing upstream project IDs.",
			r.Unattributed.StringFixed(2)))
	}
	if len(r.LineItems) > 0 && r.Total.IsPositive() {
		top := r.LineItems[0]
		share := top.Cost.Div(r.Total).Mul(decimal.NewFromInt(100)).Round(0)
		if share.GreaterThanOrEqual(decimal.NewFromInt(50)) {
			out = append(out, fmt.Sprintf("%q accounts for %s%% of spend.", top.LineItem, share))
		}
	}
	return out
}
