// Package alerting compares project spend against alert rules and notifies
// on breaches, at most once per cooldown.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/metrics"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/shopspring/decimal"
)

// DefaultThrottle is the cooldown between notifications for one rule.
const DefaultThrottle = time.Hour

// ErrNotDelivered is returned for a breach no channel accepted.
var ErrNotDelivered = errors.New("alert not delivered on any channel")

// RuleStore is the storage the evaluator reads rules and spend from.
type RuleStore interface {
	ListAlertRules(ctx context.Context) ([]model.AlertRule, error)
	SumProjectCost(ctx context.Context, projectID, fromDate, toDate string) (decimal.Decimal, error)
	MarkAlertSent(ctx context.Context, ruleID string, at time.Time) error
}

// Config tunes the evaluator. Zero values use the defaults.
type Config struct {
	Throttle time.Duration
	// Location defines calendar days and weeks for threshold windows.
	Location *time.Location
	Now      func() time.Time
}

// Evaluator runs one threshold evaluation cycle per call.
type Evaluator struct {
	store    RuleStore
	sender   Sender
	throttle time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(store RuleStore, sender Sender, cfg Config, logger *slog.Logger) *Evaluator {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		store:    store,
		sender:   sender,
		throttle: cfg.Throttle,
		loc:      cfg.Location,
		now:      cfg.Now,
		logger:   logger,
	}
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeSent
	outcomeThrottled
)

// Evaluate checks every enabled rule. A failure on one rule is logged and
// counted; it never stops the others.
func (e *Evaluator) Evaluate(ctx context.Context) (*model.EvaluationResult, error) {
	rules, err := e.store.ListAlertRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}

	now := e.now()
	result := &model.EvaluationResult{}
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		out, err := e.evaluateRule(ctx, rule, now)
		if err != nil {
			result.Failed++
			e.logger.Error("alert rule evaluation failed",
				"rule_id", rule.ID,
				"project_id", rule.ProjectID,
				"error", err,
			)
		}
		switch out {
		case outcomeSent:
			result.Breaches++
		case outcomeThrottled:
			result.Throttled++
		}
	}

	e.logger.Info("threshold evaluation complete",
		"checked", result.Checked,
		"breaches", result.Breaches,
		"throttled", result.Throttled,
		"failed", result.Failed,
	)
	return result, nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule model.AlertRule, now time.Time) (outcome, error) {
	from, to := model.ThresholdWindow(rule.ThresholdType, now.In(e.loc))
	current, err := e.store.SumProjectCost(ctx, rule.ProjectID, from, to)
	if err != nil {
		return outcomeOK, fmt.Errorf("sum project cost: %w", err)
	}

	if !current.GreaterThan(rule.ThresholdValue) {
		return outcomeOK, nil
	}

	if rule.LastAlertSentAt != nil && now.Sub(*rule.LastAlertSentAt) < e.throttle {
		metrics.AlertsThrottled.WithLabelValues(string(rule.ThresholdType)).Inc()
		e.logger.Debug("breach throttled",
			"rule_id", rule.ID,
			"last_alert_sent_at", rule.LastAlertSentAt,
		)
		return outcomeThrottled, nil
	}

	alert := alerts.Alert{
		RuleID:        rule.ID,
		TeamID:        rule.TeamID,
		ProjectID:     rule.ProjectID,
		ProjectName:   rule.ProjectName,
		ThresholdType: string(rule.ThresholdType),
		CurrentCost:   current,
		Threshold:     rule.ThresholdValue,
		PercentOver:   alerts.PercentOver(current, rule.ThresholdValue),
		TriggeredAt:   now,
	}

	delivered := false
	for _, r := range e.sender.Dispatch(ctx, rule.Channels, alert) {
		if r.Err != nil {
			e.logger.Warn("alert channel failed", "rule_id", rule.ID, "channel", r.Channel, "error", r.Err)
			continue
		}
		delivered = true
	}
	if !delivered {
		return outcomeOK, ErrNotDelivered
	}

	metrics.AlertsSent.WithLabelValues(string(rule.ThresholdType)).Inc()
	e.logger.Info("threshold alert sent",
		"rule_id", rule.ID,
		"project", rule.ProjectName,
		"current_cost", current.StringFixed(2),
		"threshold", rule.ThresholdValue.StringFixed(2),
	)

	if err := e.store.MarkAlertSent(ctx, rule.ID, now); err != nil {
		return outcomeSent, fmt.Errorf("mark alert sent: %w", err)
	}
	return outcomeSent, nil
}
