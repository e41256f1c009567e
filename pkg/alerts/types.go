package alerts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Alert describes a project whose spend exceeded its threshold.
type Alert struct {
	RuleID        string          `json:"rule_id"`
	TeamID        string          `json:"team_id"`
	ProjectID     string          `json:"project_id"`
	ProjectName   string          `json:"project_name"`
	ThresholdType string          `json:"threshold_type"`
	CurrentCost   decimal.Decimal `json:"current_cost"`
	Threshold     decimal.Decimal `json:"threshold"`
	PercentOver   decimal.Decimal `json:"percent_over"`
	TriggeredAt   time.Time       `json:"triggered_at"`
}

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier, which is also its channel name.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}

// PercentOver returns how far current exceeds threshold, in percent of
// threshold, rounded to one decimal place.
func PercentOver(current, threshold decimal.Decimal) decimal.Decimal {
	if !threshold.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(threshold).Div(threshold).Mul(decimal.NewFromInt(100)).Round(1)
}

// Summary renders a one-line description of the alert.
func (a Alert) Summary() string {
	return a.ProjectName + " " + a.ThresholdType + " spend $" + a.CurrentCost.StringFixed(2) +
		" exceeded threshold $" + a.Threshold.StringFixed(2) + " (" + a.PercentOver.String() + "% over)"
}
