package collector_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/collector"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/costapi"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/pricing"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/retry"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDate    = time.Date(2025, 11, 3, 15, 30, 0, 0, time.UTC)
	bucketStart = time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	discard     = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fetchFunc func(ctx context.Context, credential string, req costapi.PageRequest) (*costapi.CostPage, error)

func (f fetchFunc) FetchCostPage(ctx context.Context, credential string, req costapi.PageRequest) (*costapi.CostPage, error) {
	return f(ctx, credential, req)
}

// memStore keeps cost records keyed like the SQL uniqueness constraint.
type memStore struct {
	mu        sync.Mutex
	teams     []model.Team
	mapping   model.ProjectMapping
	records   map[string]model.CostRecord
	batches   []int
	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]model.CostRecord)}
}

func (m *memStore) GetTeam(_ context.Context, id string) (*model.Team, error) {
	for _, t := range m.teams {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) ListTeams(context.Context) ([]model.Team, error) { return m.teams, nil }

func (m *memStore) ProjectMapping(context.Context, string) (model.ProjectMapping, error) {
	return m.mapping, nil
}

func (m *memStore) UpsertCostRecords(_ context.Context, records []model.CostRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	m.batches = append(m.batches, len(records))
	for _, r := range records {
		key := fmt.Sprintf("%s|%s|%s|%s|%s", r.TeamID, r.Provider, r.Date, r.LineItem, r.ExternalProjectID)
		m.records[key] = r
	}
	return len(records), nil
}

type staticCreds map[string]string

func (s staticCreds) AdminCredential(_ context.Context, teamID string) (string, error) {
	key, ok := s[teamID]
	if !ok {
		return "", errors.New("admin credential not configured")
	}
	return key, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newCollector(f collector.Fetcher, store collector.Store, cfg collector.Config) (*collector.Collector, *sleepRecorder, *sleepRecorder) {
	pageSleeps := &sleepRecorder{}
	retrySleeps := &sleepRecorder{}
	cfg.Sleep = pageSleeps.Sleep
	cfg.Retry.Sleep = retrySleeps.Sleep
	cfg.Retry.Logger = discard
	return collector.New(f, store, staticCreds{"team-1": "sk-admin"}, nil, cfg, discard), pageSleeps, retrySleeps
}

func strPtr(s string) *string { return &s }

func result(amount, lineItem string, project *string) costapi.CostResult {
	return costapi.CostResult{
		Amount:            decimal.RequireFromString(amount),
		Currency:          "usd",
		LineItem:          lineItem,
		ExternalProjectID: project,
		BucketStart:       bucketStart,
	}
}

func TestCollectDailyCosts_PaginatesInCursorOrder(t *testing.T) {
	pages := map[string]*costapi.CostPage{
		"":   {Results: []costapi.CostResult{result("1.00", "gpt-4o, input", strPtr("proj_a"))}, HasMore: true, NextCursor: "p2"},
		"p2": {Results: []costapi.CostResult{result("2.00", "gpt-4o, output", strPtr("proj_a"))}, HasMore: true, NextCursor: "p3"},
		"p3": {Results: []costapi.CostResult{result("3.00", "o3, input", strPtr("proj_unmapped"))}},
	}

	var cursors []string
	var gotReq costapi.PageRequest
	fetch := fetchFunc(func(_ context.Context, credential string, req costapi.PageRequest) (*costapi.CostPage, error) {
		assert.Equal(t, "sk-admin", credential)
		cursors = append(cursors, req.Cursor)
		gotReq = req
		return pages[req.Cursor], nil
	})

	store := newMemStore()
	c, pageSleeps, _ := newCollector(fetch, store, collector.Config{})

	res, err := c.CollectDailyCosts(context.Background(), collector.Scope{
		TeamID:     "team-1",
		Credential: "sk-admin",
		Mapping:    model.ProjectMapping{"proj_a": "internal-a"},
	}, testDate)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "p2", "p3"}, cursors)
	assert.Equal(t, bucketStart, gotReq.Start)
	assert.Equal(t, bucketStart.Add(24*time.Hour-time.Second), gotReq.End)
	assert.Equal(t, []time.Duration{collector.DefaultPageDelay, collector.DefaultPageDelay}, pageSleeps.delays,
		"delay applies only between pages")

	assert.Equal(t, "2025-11-03", res.Date)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 3, res.Upserted)
	assert.False(t, res.Partial)

	require.Len(t, res.Records, 3)
	assert.Equal(t, "internal-a", *res.Records[0].ProjectID)
	assert.Equal(t, "internal-a", *res.Records[1].ProjectID)
	assert.Nil(t, res.Records[2].ProjectID, "unmapped records are kept with a null project")
	assert.Equal(t, "proj_unmapped", res.Records[2].ExternalProjectID)
	assert.Equal(t, model.APIVersionCostsV1, res.Records[2].APIVersion)
	assert.Len(t, store.records, 3)
}

func TestCollectDailyCosts_StopsAtPageCeiling(t *testing.T) {
	calls := 0
	fetch := fetchFunc(func(_ context.Context, _ string, req costapi.PageRequest) (*costapi.CostPage, error) {
		calls++
		return &costapi.CostPage{
			Results:    []costapi.CostResult{result("0.01", fmt.Sprintf("item-%d", calls), nil)},
			HasMore:    true,
			NextCursor: fmt.Sprintf("page_%d", calls+1),
		}, nil
	})

	store := newMemStore()
	c, pageSleeps, _ := newCollector(fetch, store, collector.Config{})

	res, err := c.CollectDailyCosts(context.Background(), collector.Scope{TeamID: "team-1"}, testDate)
	require.NoError(t, err)

	assert.Equal(t, collector.DefaultMaxPages, calls)
	assert.Equal(t, collector.DefaultMaxPages, res.Pages)
	assert.True(t, res.Partial)
	assert.Equal(t, 100, res.Upserted, "records from fetched pages are still written")
	assert.Len(t, pageSleeps.delays, collector.DefaultMaxPages-1)
}

func TestCollectDailyCosts_MoreWithoutCursorIsPartial(t *testing.T) {
	calls := 0
	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		calls++
		return &costapi.CostPage{HasMore: true}, nil
	})

	c, _, _ := newCollector(fetch, newMemStore(), collector.Config{})
	res, err := c.CollectDailyCosts(context.Background(), collector.Scope{TeamID: "team-1"}, testDate)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, res.Partial)
}

func TestCollectDailyCosts_Batches(t *testing.T) {
	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		var results []costapi.CostResult
		for i := 0; i < 5; i++ {
			results = append(results, result("1", fmt.Sprintf("item-%d", i), nil))
		}
		return &costapi.CostPage{Results: results}, nil
	})

	store := newMemStore()
	c, _, _ := newCollector(fetch, store, collector.Config{BatchSize: 2})

	res, err := c.CollectDailyCosts(context.Background(), collector.Scope{TeamID: "team-1"}, testDate)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, store.batches)
	assert.Equal(t, 5, res.Upserted)
}

func TestCollectDailyCosts_RetriesTransientFailure(t *testing.T) {
	calls := 0
	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		calls++
		if calls == 1 {
			return nil, costapi.ErrTimeout
		}
		return &costapi.CostPage{Results: []costapi.CostResult{result("4.20", "gpt-4o, input", nil)}}, nil
	})

	c, _, retrySleeps := newCollector(fetch, newMemStore(), collector.Config{})
	res, err := c.CollectDailyCosts(context.Background(), collector.Scope{TeamID: "team-1"}, testDate)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []time.Duration{retry.DefaultBaseDelay}, retrySleeps.delays)
}

func TestCollectDailyCosts_RetryExhaustionKeepsCommittedBatches(t *testing.T) {
	upstream := &costapi.UpstreamError{Op: "fetch costs", StatusCode: 503}
	calls := 0
	fetch := fetchFunc(func(_ context.Context, _ string, req costapi.PageRequest) (*costapi.CostPage, error) {
		calls++
		if req.Cursor == "" {
			return &costapi.CostPage{
				Results: []costapi.CostResult{
					result("1", "a", nil),
					result("2", "b", nil),
					result("3", "c", nil),
				},
				HasMore:    true,
				NextCursor: "p2",
			}, nil
		}
		return nil, upstream
	})

	store := newMemStore()
	c, _, _ := newCollector(fetch, store, collector.Config{BatchSize: 2})

	res, err := c.CollectDailyCosts(context.Background(), collector.Scope{TeamID: "team-1"}, testDate)
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, 503, costapi.StatusCode(err))
	assert.Equal(t, 1+retry.DefaultMaxRetries, calls)

	assert.Equal(t, []int{2}, store.batches, "first full batch stays committed")
	assert.Len(t, store.records, 2)
	assert.Equal(t, 2, res.Upserted)
}

func TestCollectDailyCosts_UpsertFailure(t *testing.T) {
	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		return &costapi.CostPage{Results: []costapi.CostResult{result("1", "a", nil)}}, nil
	})
	store := newMemStore()
	store.upsertErr = errors.New("disk full")

	c, _, _ := newCollector(fetch, store, collector.Config{})
	_, err := c.CollectDailyCosts(context.Background(), collector.Scope{TeamID: "team-1"}, testDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestCollectDailyCosts_ResolvesModels(t *testing.T) {
	cfg, err := pricing.LoadBytes([]byte("provider: openai\nmodels:\n  - model: gpt-4o\n"))
	require.NoError(t, err)
	catalog := pricing.NewCatalog()
	require.NoError(t, catalog.Register(cfg))

	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		return &costapi.CostPage{Results: []costapi.CostResult{
			result("1", "gpt-4o-2024-08-06, input", nil),
			result("1", model.UnknownLineItem, nil),
		}}, nil
	})

	c := collector.New(fetch, newMemStore(), nil, catalog, collector.Config{
		Sleep: (&sleepRecorder{}).Sleep,
	}, discard)
	res, err := c.CollectDailyCosts(context.Background(), collector.Scope{TeamID: "team-1", Provider: "openai"}, testDate)
	require.NoError(t, err)
	require.NotNil(t, res.Records[0].Model)
	assert.Equal(t, "gpt-4o", *res.Records[0].Model)
	assert.Nil(t, res.Records[1].Model)
}

func TestCollectDailyCosts_ContextCancelledBetweenPages(t *testing.T) {
	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		return &costapi.CostPage{HasMore: true, NextCursor: "next"}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := collector.New(fetch, newMemStore(), nil, nil, collector.Config{}, discard)
	res, err := c.CollectDailyCosts(ctx, collector.Scope{TeamID: "team-1"}, testDate)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Pages)
}

func TestCollectDailyCosts_StoresDecimalAmounts(t *testing.T) {
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	team := &model.Team{Name: "platform", EncryptedAdminKey: "ENC:x"}
	require.NoError(t, db.CreateTeam(ctx, team))
	project := &model.Project{TeamID: team.ID, Name: "chatbot", ExternalProjectID: strPtr("proj_abc")}
	require.NoError(t, db.CreateProject(ctx, project))

	amount := "10.00"
	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		return &costapi.CostPage{Results: []costapi.CostResult{
			result(amount, "gpt-4o, input", strPtr("proj_abc")),
			result("0.50", "gpt-4o, input", strPtr("proj_gone")),
		}}, nil
	})
	c := collector.New(fetch, db, staticCreds{team.ID: "sk-admin"}, nil, collector.Config{
		Sleep: (&sleepRecorder{}).Sleep,
	}, discard)

	_, err = c.CollectTeam(ctx, team.ID, testDate)
	require.NoError(t, err)

	amount = "25.50"
	_, err = c.CollectTeam(ctx, team.ID, testDate)
	require.NoError(t, err)

	records, err := db.QueryCostRecords(ctx, model.CostFilter{TeamID: team.ID})
	require.NoError(t, err)
	assert.Len(t, records, 2, "recollection overwrites rows for the same date")

	total, err := db.SumProjectCost(ctx, project.ID, "2025-11-03", "2025-11-03")
	require.NoError(t, err)
	assert.Equal(t, "25.50", total.StringFixed(2))
}

func TestCollectTeam_QueriesWholeOrganization(t *testing.T) {
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	team := &model.Team{Name: "platform", EncryptedAdminKey: "ENC:x"}
	require.NoError(t, db.CreateTeam(ctx, team))
	require.NoError(t, db.CreateProject(ctx, &model.Project{TeamID: team.ID, Name: "chatbot", ExternalProjectID: strPtr("proj_abc")}))

	var seen [][]string
	fetch := fetchFunc(func(_ context.Context, _ string, req costapi.PageRequest) (*costapi.CostPage, error) {
		seen = append(seen, req.ProjectIDs)
		return &costapi.CostPage{Results: []costapi.CostResult{
			result("1.00", "gpt-4o, input", strPtr("proj_abc")),
			result("2.00", "gpt-4o, input", strPtr("proj_not_registered")),
			result("3.00", "gpt-4o, input", nil),
		}}, nil
	})
	c := collector.New(fetch, db, staticCreds{team.ID: "sk-admin"}, nil, collector.Config{
		Sleep: (&sleepRecorder{}).Sleep,
	}, discard)

	res, err := c.CollectTeam(ctx, team.ID, testDate)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Empty(t, seen[0], "mapped projects must not narrow the upstream query")
	assert.Equal(t, 3, res.Upserted)

	records, err := db.QueryCostRecords(ctx, model.CostFilter{TeamID: team.ID})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestCollectAll_IsolatesTeamFailures(t *testing.T) {
	store := newMemStore()
	store.teams = []model.Team{
		{ID: "team-1", Name: "a", Provider: "openai", EncryptedAdminKey: "ENC:1"},
		{ID: "team-2", Name: "b", Provider: "openai", EncryptedAdminKey: "ENC:2"},
		{ID: "team-3", Name: "c", Provider: "openai"},
	}
	fetch := fetchFunc(func(context.Context, string, costapi.PageRequest) (*costapi.CostPage, error) {
		return &costapi.CostPage{Results: []costapi.CostResult{result("1", "a", nil)}}, nil
	})

	// team-2 has a stored key but no resolvable credential.
	c, _, _ := newCollector(fetch, store, collector.Config{})

	summary, err := c.CollectAll(context.Background(), testDate)
	assert.ErrorIs(t, err, collector.ErrTeamsFailed)
	require.NotNil(t, summary)
	assert.Equal(t, "2025-11-03", summary.Date)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Teams, 2)
	assert.Equal(t, "team-1", summary.Teams[0].TeamID)
	assert.NotNil(t, summary.Teams[0].Result)
	assert.Contains(t, summary.Teams[1].Error, "resolve credential")
}
