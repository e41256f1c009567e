package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the day-granularity key used for cost records and cron runs.
const DateLayout = "2006-01-02"

// UnknownLineItem replaces a null line item reported upstream.
const UnknownLineItem = "Unknown"

// APIVersionCostsV1 tags records collected from the organization costs endpoint.
const APIVersionCostsV1 = "openai_costs_v1"

// CostRecord is one normalized line of provider spend for a single day.
type CostRecord struct {
	ID                string          `json:"id" db:"id"`
	TeamID            string          `json:"team_id" db:"team_id"`
	ProjectID         *string         `json:"project_id,omitempty" db:"project_id"`
	Provider          string          `json:"provider" db:"provider"`
	ExternalProjectID string          `json:"external_project_id,omitempty" db:"external_project_id"`
	LineItem          string          `json:"line_item" db:"line_item"`
	Model             *string         `json:"model,omitempty" db:"model"`
	TokenCount        *int64          `json:"token_count,omitempty" db:"token_count"`
	Cost              decimal.Decimal `json:"cost" db:"cost"`
	Currency          string          `json:"currency" db:"currency"`
	Date              string          `json:"date" db:"date"`
	BucketStart       time.Time       `json:"bucket_start" db:"bucket_start"`
	APIVersion        string          `json:"api_version" db:"api_version"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ThresholdType defines the spend window an alert rule watches.
type ThresholdType string

const (
	ThresholdDaily  ThresholdType = "daily"
	ThresholdWeekly ThresholdType = "weekly"
)

// Valid reports whether t is a supported threshold type.
func (t ThresholdType) Valid() bool {
	return t == ThresholdDaily || t == ThresholdWeekly
}

// Channel names a notification destination.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSlack   Channel = "slack"
	ChannelWebhook Channel = "webhook"
)

// Valid reports whether c names a supported channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSlack || c == ChannelWebhook
}

// AlertRule is a spend threshold on a single project.
type AlertRule struct {
	ID              string          `json:"id" db:"id"`
	ProjectID       string          `json:"project_id" db:"project_id"`
	ProjectName     string          `json:"project_name" db:"-"`
	TeamID          string          `json:"team_id" db:"-"`
	ThresholdType   ThresholdType   `json:"threshold_type" db:"threshold_type"`
	ThresholdValue  decimal.Decimal `json:"threshold_value" db:"threshold_value"`
	Enabled         bool            `json:"enabled" db:"enabled"`
	Channels        []Channel       `json:"channels,omitempty" db:"channels"`
	LastAlertSentAt *time.Time      `json:"last_alert_sent_at,omitempty" db:"last_alert_sent_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// CronExecution records a successful run of a scheduled job for a logical date.
type CronExecution struct {
	JobName    string    `json:"job_name" db:"job_name"`
	DateKey    string    `json:"date_key" db:"date_key"`
	ExecutedAt time.Time `json:"executed_at" db:"executed_at"`
}

// Team is a tenant scope bound to one provider organization.
type Team struct {
	ID                string    `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	Provider          string    `json:"provider" db:"provider"`
	OrganizationID    string    `json:"organization_id,omitempty" db:"organization_id"`
	EncryptedAdminKey string    `json:"-" db:"encrypted_admin_key"`
	ReportEmail       string    `json:"report_email,omitempty" db:"report_email"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Project is an internal project, optionally bound to an upstream project id.
type Project struct {
	ID                string    `json:"id" db:"id"`
	TeamID            string    `json:"team_id" db:"team_id"`
	Name              string    `json:"name" db:"name"`
	ExternalProjectID *string   `json:"external_project_id,omitempty" db:"external_project_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// ProjectMapping maps upstream project ids to internal project ids.
type ProjectMapping map[string]string

// CostFilter controls which cost records are returned or aggregated.
type CostFilter struct {
	TeamID    string `json:"team_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	FromDate  string `json:"from_date,omitempty"`
	ToDate    string `json:"to_date,omitempty"`
}

// CollectionResult summarizes one collector run for a scope and date.
type CollectionResult struct {
	TeamID   string       `json:"team_id"`
	Date     string       `json:"date"`
	Records  []CostRecord `json:"-"`
	Count    int          `json:"records"`
	Pages    int          `json:"pages"`
	Upserted int          `json:"upserted"`
	Partial  bool         `json:"partial"`
}

// EvaluationResult summarizes one threshold evaluation cycle.
type EvaluationResult struct {
	Checked   int `json:"checked"`
	Breaches  int `json:"breaches"`
	Throttled int `json:"throttled"`
	Failed    int `json:"failed"`
}
