// Package collector pages through a provider's daily cost report and upserts
// the normalized records into storage.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/costapi"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/metrics"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/retry"
)

const (
	DefaultMaxPages  = 100
	DefaultBatchSize = 1000
	DefaultPageDelay = 1000 * time.Millisecond
)

// ErrTeamsFailed is returned by CollectAll when at least one team failed.
var ErrTeamsFailed = errors.New("cost collection failed for one or more teams")

// Fetcher retrieves a single page of cost results.
type Fetcher interface {
	FetchCostPage(ctx context.Context, credential string, req costapi.PageRequest) (*costapi.CostPage, error)
}

// Store is the storage the collector reads scopes from and writes records to.
type Store interface {
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
	ProjectMapping(ctx context.Context, teamID string) (model.ProjectMapping, error)
	UpsertCostRecords(ctx context.Context, records []model.CostRecord) (int, error)
}

// Credentials resolves a team's decrypted admin credential.
type Credentials interface {
	AdminCredential(ctx context.Context, teamID string) (string, error)
}

// ModelResolver names the model a billing line item refers to.
type ModelResolver interface {
	ResolveModel(provider, lineItem string) (string, bool)
}

// Config tunes pagination and batching. Zero values use the defaults.
type Config struct {
	MaxPages  int
	BatchSize int
	PageDelay time.Duration
	PageLimit int
	Location  *time.Location
	Retry     retry.Options
	// Sleep waits between pages; tests replace it.
	Sleep retry.SleepFunc
}

// Scope identifies one credential boundary to collect for.
type Scope struct {
	TeamID     string
	Provider   string
	Credential string
	Mapping    model.ProjectMapping
	// ProjectIDs optionally restricts the upstream query to these projects.
	ProjectIDs []string
	Location   *time.Location
}

// Collector orchestrates paginated cost retrieval for a scope and date.
type Collector struct {
	fetcher  Fetcher
	store    Store
	creds    Credentials
	resolver ModelResolver
	cfg      Config
	logger   *slog.Logger
}

// New creates a collector. resolver may be nil.
func New(fetcher Fetcher, store Store, creds Credentials, resolver ModelResolver, cfg Config, logger *slog.Logger) *Collector {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = DefaultPageDelay
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	return &Collector{
		fetcher:  fetcher,
		store:    store,
		creds:    creds,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// CollectDailyCosts fetches every page for the day containing date and upserts
// the records in batches. Hitting MaxPages while the upstream still reports
// more data stops pagination and marks the result partial. A fetch that
// exhausts its retries aborts the run; batches already written are kept.
func (c *Collector) CollectDailyCosts(ctx context.Context, scope Scope, date time.Time) (*model.CollectionResult, error) {
	loc := scope.Location
	if loc == nil {
		loc = c.cfg.Location
	}
	if scope.Provider == "" {
		scope.Provider = "openai"
	}

	start, end := model.DayWindow(date, loc)
	result := &model.CollectionResult{
		TeamID: scope.TeamID,
		Date:   start.Format(model.DateLayout),
	}
	log := c.logger.With("team_id", scope.TeamID, "date", result.Date)

	opts := c.cfg.Retry
	opts.Label = "collector.fetch_cost_page"
	opts.FinalErrorMessage = "cost page fetch failed after retries"

	batch := make([]model.CostRecord, 0, c.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.store.UpsertCostRecords(ctx, batch)
		if err != nil {
			return fmt.Errorf("upsert cost batch: %w", err)
		}
		result.Upserted += n
		metrics.CostRecordsUpserted.WithLabelValues(scope.TeamID).Add(float64(n))
		batch = make([]model.CostRecord, 0, c.cfg.BatchSize)
		return nil
	}

	cursor := ""
	for {
		if result.Pages > 0 {
			if err := c.cfg.Sleep(ctx, c.cfg.PageDelay); err != nil {
				return result, err
			}
		}

		req := costapi.PageRequest{
			Start:      start,
			End:        end,
			ProjectIDs: scope.ProjectIDs,
			Cursor:     cursor,
			Limit:      c.cfg.PageLimit,
		}
		page, err := retry.Do(ctx, opts, func(ctx context.Context) (*costapi.CostPage, error) {
			return c.fetcher.FetchCostPage(ctx, scope.Credential, req)
		})
		if err != nil {
			log.Error("cost collection aborted", "pages", result.Pages, "upserted", result.Upserted, "error", err)
			return result, fmt.Errorf("collect costs for team %s on %s: %w", scope.TeamID, result.Date, err)
		}
		result.Pages++
		metrics.CollectorPages.WithLabelValues(scope.TeamID).Inc()

		for _, r := range page.Results {
			rec := c.toRecord(scope, r)
			result.Records = append(result.Records, rec)
			batch = append(batch, rec)
			if len(batch) >= c.cfg.BatchSize {
				if err := flush(); err != nil {
					return result, err
				}
			}
		}

		if !page.HasMore {
			break
		}
		if page.NextCursor == "" {
			log.Warn("upstream reported more data without a cursor; stopping", "pages", result.Pages)
			result.Partial = true
			break
		}
		if result.Pages >= c.cfg.MaxPages {
			log.Warn("pagination ceiling reached; collection is partial", "max_pages", c.cfg.MaxPages)
			result.Partial = true
			break
		}
		cursor = page.NextCursor
	}

	if err := flush(); err != nil {
		return result, err
	}
	if result.Partial {
		metrics.PartialCollections.WithLabelValues(scope.TeamID).Inc()
	}
	result.Count = len(result.Records)

	log.Info("cost collection complete",
		"pages", result.Pages,
		"records", result.Count,
		"upserted", result.Upserted,
		"partial", result.Partial,
	)
	return result, nil
}

func (c *Collector) toRecord(scope Scope, r costapi.CostResult) model.CostRecord {
	rec := model.CostRecord{
		TeamID:      scope.TeamID,
		Provider:    scope.Provider,
		LineItem:    r.LineItem,
		Cost:        r.Amount,
		Currency:    r.Currency,
		Date:        r.BucketStart.UTC().Format(model.DateLayout),
		BucketStart: r.BucketStart,
		APIVersion:  model.APIVersionCostsV1,
	}
	if rec.Currency == "" {
		rec.Currency = "usd"
	}
	if r.ExternalProjectID != nil {
		rec.ExternalProjectID = *r.ExternalProjectID
		if internal, ok := scope.Mapping[rec.ExternalProjectID]; ok {
			id := internal
			rec.ProjectID = &id
		}
	}
	if c.resolver != nil {
		if name, ok := c.resolver.ResolveModel(scope.Provider, r.LineItem); ok {
			rec.Model = &name
		}
	}
	return rec
}
