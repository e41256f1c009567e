package costapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// PageRequest selects one page of daily cost buckets.
type PageRequest struct {
	Start      time.Time
	End        time.Time
	ProjectIDs []string
	Cursor     string
	Limit      int
}

// CostResult is one grouped cost line inside a daily bucket.
type CostResult struct {
	Amount            decimal.Decimal
	Currency          string
	LineItem          string
	ExternalProjectID *string
	BucketStart       time.Time
}

// CostPage is a flattened page of cost results.
type CostPage struct {
	Results    []CostResult
	HasMore    bool
	NextCursor string
}

// ValidationResult reports whether an upstream project id is usable.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Wire formats of the organization costs and organizations endpoints.

type costsResponse struct {
	Object   string       `json:"object"`
	Data     []costBucket `json:"data"`
	HasMore  bool         `json:"has_more"`
	NextPage *string      `json:"next_page"`
}

type costBucket struct {
	Object    string       `json:"object"`
	StartTime int64        `json:"start_time"`
	EndTime   int64        `json:"end_time"`
	Results   []costResult `json:"results"`
}

type costResult struct {
	Object    string     `json:"object"`
	Amount    costAmount `json:"amount"`
	LineItem  *string    `json:"line_item"`
	ProjectID *string    `json:"project_id"`
}

type costAmount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

type organizationsResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}
