package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
)

// TeamOutcome reports one team's part of a CollectAll run.
type TeamOutcome struct {
	TeamID string                  `json:"team_id"`
	Result *model.CollectionResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// Summary aggregates a CollectAll run.
type Summary struct {
	Date      string        `json:"date"`
	Teams     []TeamOutcome `json:"teams"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

// CollectTeam resolves the team's credential and project mapping, then
// collects costs for date.
func (c *Collector) CollectTeam(ctx context.Context, teamID string, date time.Time) (*model.CollectionResult, error) {
	team, err := c.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}

	credential, err := c.creds.AdminCredential(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	mapping, err := c.store.ProjectMapping(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("load project mapping: %w", err)
	}

	return c.CollectDailyCosts(ctx, Scope{
		TeamID:     team.ID,
		Provider:   team.Provider,
		Credential: credential,
		Mapping:    mapping,
	}, date)
}

// CollectAll collects date for every team with a stored credential. Teams run
// one after another; a failing team does not stop the others.
func (c *Collector) CollectAll(ctx context.Context, date time.Time) (*Summary, error) {
	teams, err := c.store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	start, _ := model.DayWindow(date, c.cfg.Location)
	summary := &Summary{Date: start.Format(model.DateLayout)}

	for _, team := range teams {
		if team.EncryptedAdminKey == "" {
			summary.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome := TeamOutcome{TeamID: team.ID}
		result, err := c.CollectTeam(ctx, team.ID, date)
		if err != nil {
			c.logger.Error("team collection failed", "team_id", team.ID, "error", err)
			outcome.Error = err.Error()
			summary.Failed++
		} else {
			outcome.Result = result
			summary.Succeeded++
		}
		summary.Teams = append(summary.Teams, outcome)
	}

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d teams: %w", summary.Failed, summary.Failed+summary.Succeeded, ErrTeamsFailed)
	}
	return summary, nil
}
