package report

import (
	"context"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
)

// Delivery records one team's report outcome.
type Delivery struct {
	TeamID string `json:"team_id"`
	To     string `json:"to"`
	Total  string `json:"total,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SendSummary aggregates a SendAll run.
type SendSummary struct {
	WeekStart  string     `json:"week_start"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Deliveries []Delivery `json:"deliveries"`
}

// SendAll emails the report for weekStart to every team with a report address.
func (g *Generator) SendAll(ctx context.Context, weekStart time.Time) (*SendSummary, error) {
	if g.mailer == nil {
		return nil, fmt.Errorf("weekly report: no mailer configured")
	}

	teams, err := g.store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	summary := &SendSummary{WeekStart: model.WeekStart(weekStart).Format(model.DateLayout)}
	for _, team := range teams {
		if team.ReportEmail == "" {
			summary.Skipped++
			continue
		}

		d := Delivery{TeamID: team.ID, To: team.ReportEmail}
		total, err := g.sendTeam(ctx, team.ID, team.ReportEmail, weekStart)
		if err != nil {
			g.logger.Error("weekly report failed", "team_id", team.ID, "error", err)
			d.Error = err.Error()
			summary.Failed++
		} else {
			d.Total = total
			summary.Sent++
		}
		summary.Deliveries = append(summary.Deliveries, d)
	}

	g.logger.Info("weekly reports sent", "sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped)
	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d teams: %w", summary.Failed, summary.Failed+summary.Sent, ErrReportsFailed)
	}
	return summary, nil
}

func (g *Generator) sendTeam(ctx context.Context, teamID, to string, weekStart time.Time) (string, error) {
	r, err := g.Build(ctx, teamID, weekStart)
	if err != nil {
		return "", err
	}
	body, err := RenderHTML(r)
	if err != nil {
		return "", err
	}
	if err := g.mailer.SendReport(ctx, []string{to}, Subject(r), body); err != nil {
		return "", err
	}
	return r.Total.StringFixed(2), nil
}
