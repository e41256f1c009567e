package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/internal/server"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/collector"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/costapi"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/cronguard"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/report"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/secrets"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "cron-secret"

// Wednesday.
var fixedNow = time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC)

type fakeCollector struct {
	dates []time.Time
	err   error
}

func (f *fakeCollector) CollectAll(_ context.Context, date time.Time) (*collector.Summary, error) {
	f.dates = append(f.dates, date)
	summary := &collector.Summary{Date: date.Format(model.DateLayout), Succeeded: 1}
	if f.err != nil {
		summary.Succeeded, summary.Failed = 0, 1
		return summary, f.err
	}
	return summary, nil
}

type fakeEvaluator struct {
	calls int
}

func (f *fakeEvaluator) Evaluate(context.Context) (*model.EvaluationResult, error) {
	f.calls++
	return &model.EvaluationResult{Checked: 3, Breaches: 1, Throttled: 1}, nil
}

type fakeReporter struct {
	weeks []time.Time
}

func (f *fakeReporter) SendAll(_ context.Context, weekStart time.Time) (*report.SendSummary, error) {
	f.weeks = append(f.weeks, weekStart)
	return &report.SendSummary{WeekStart: weekStart.Format(model.DateLayout), Sent: 2}, nil
}

type fakeValidator struct {
	credential string
}

func (f *fakeValidator) ValidateProjectID(_ context.Context, credential, id string) costapi.ValidationResult {
	f.credential = credential
	if id == "proj_ok" {
		return costapi.ValidationResult{Valid: true}
	}
	return costapi.ValidationResult{Error: costapi.MsgProjectNotFound}
}

type fakeCredentials map[string]string

func (f fakeCredentials) AdminCredential(_ context.Context, teamID string) (string, error) {
	key, ok := f[teamID]
	if !ok {
		return "", storage.ErrNotFound
	}
	if key == "" {
		return "", secrets.ErrCredentialMissing
	}
	return key, nil
}

type harness struct {
	srv       *server.Server
	store     *storage.SQLite
	collector *fakeCollector
	evaluator *fakeEvaluator
	reporter  *fakeReporter
	validator *fakeValidator
}

func setupServer(t *testing.T, opts server.Options) *harness {
	t.Helper()

	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	clock := func() time.Time { return fixedNow }
	if opts.Now == nil {
		opts.Now = clock
	}

	h := &harness{
		store:     store,
		collector: &fakeCollector{},
		evaluator: &fakeEvaluator{},
		reporter:  &fakeReporter{},
		validator: &fakeValidator{},
	}
	h.srv = server.NewServer(server.Deps{
		Collector:   h.collector,
		Evaluator:   h.evaluator,
		Reporter:    h.reporter,
		Guard:       cronguard.New(store, clock, logger),
		Validator:   h.validator,
		Credentials: fakeCredentials{"team-1": "sk-admin-1", "team-nokey": ""},
		Store:       store,
	}, opts, logger)
	return h
}

func (h *harness) do(method, target, token string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestServer_Health(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	w := h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestServer_Metrics(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	w := h.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCron_MissingSecretFailsClosed(t *testing.T) {
	h := setupServer(t, server.Options{})

	w := h.do(http.MethodGet, "/api/cron/check-thresholds", "anything", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "server misconfigured", body["error"])
	assert.Zero(t, h.evaluator.calls)
}

func TestCron_Unauthorized(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	for _, token := range []string{"", "wrong", secret + "x"} {
		w := h.do(http.MethodPost, "/api/cron/collect-costs", token, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "token %q", token)
		assert.Equal(t, false, decode(t, w)["success"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cron/collect-costs", nil)
	req.Header.Set("Authorization", secret)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "token without Bearer scheme")

	assert.Empty(t, h.collector.dates)
}

func TestCron_CollectCosts_OncePerDate(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	w := h.do(http.MethodGet, "/api/cron/collect-costs", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "skipped")
	result := body["result"].(map[string]any)
	assert.Equal(t, "2025-11-04", result["date"], "defaults to yesterday")

	w = h.do(http.MethodPost, "/api/cron/collect-costs", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["skipped"])
	assert.NotEmpty(t, body["executedAt"])

	assert.Len(t, h.collector.dates, 1)
}

func TestCron_CollectCosts_ExplicitDate(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	w := h.do(http.MethodGet, "/api/cron/collect-costs?date=2025-10-01", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.collector.dates, 1)
	assert.Equal(t, "2025-10-01", h.collector.dates[0].Format(model.DateLayout))

	exec, err := h.store.GetCronExecution(context.Background(), cronguard.JobDailyCollection, "2025-10-01")
	require.NoError(t, err)
	assert.True(t, exec.ExecutedAt.Equal(fixedNow))

	w = h.do(http.MethodGet, "/api/cron/collect-costs?date=10/01/2025", secret, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCron_CollectCosts_FailureIsRetryable(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})
	h.collector.err = errors.New("1 of 1 teams failed")

	w := h.do(http.MethodGet, "/api/cron/collect-costs", secret, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "teams failed")
	assert.NotNil(t, body["result"])

	h.collector.err = nil
	w = h.do(http.MethodGet, "/api/cron/collect-costs", secret, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "skipped")
	assert.Len(t, h.collector.dates, 2)
}

func TestCron_RefreshCosts_CollectsTodayEveryRun(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	for range 2 {
		w := h.do(http.MethodPost, "/api/cron/refresh-costs", secret, "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.NotContains(t, body, "skipped")
		assert.Equal(t, "2025-11-05", body["result"].(map[string]any)["date"])
	}
	require.Len(t, h.collector.dates, 2)

	_, err := h.store.GetCronExecution(context.Background(), cronguard.JobDailyCollection, "2025-11-05")
	assert.ErrorIs(t, err, storage.ErrNotFound, "refresh must not claim the daily collection key")

	w := h.do(http.MethodGet, "/api/cron/collect-costs?date=2025-11-05", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "skipped")
	assert.Len(t, h.collector.dates, 3)
}

func TestCron_RefreshCosts_Failure(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})
	h.collector.err = errors.New("1 of 1 teams failed")

	w := h.do(http.MethodGet, "/api/cron/refresh-costs", secret, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["error"], "teams failed")

	w = h.do(http.MethodGet, "/api/cron/refresh-costs", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCron_CheckThresholds_Unguarded(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	for range 2 {
		w := h.do(http.MethodPost, "/api/cron/check-thresholds", secret, "")
		require.Equal(t, http.StatusOK, w.Code)
		result := decode(t, w)["result"].(map[string]any)
		assert.Equal(t, float64(3), result["checked"])
		assert.Equal(t, float64(1), result["breaches"])
	}
	assert.Equal(t, 2, h.evaluator.calls)
}

func TestCron_WeeklyReport(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})

	w := h.do(http.MethodGet, "/api/cron/weekly-report", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.reporter.weeks, 1)
	assert.Equal(t, "2025-10-27", h.reporter.weeks[0].Format(model.DateLayout), "previous full week")

	_, err := h.store.GetCronExecution(context.Background(), cronguard.JobWeeklyReport, "2025-11-03")
	require.NoError(t, err)

	w = h.do(http.MethodGet, "/api/cron/weekly-report", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["skipped"])
	assert.Len(t, h.reporter.weeks, 1)
}

func TestValidateProject(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret, ValidateBurst: 10})

	w := h.do(http.MethodPost, "/api/v1/projects/validate", secret, `{"team_id":"team-1","project_id":"proj_ok"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["valid"])
	assert.Equal(t, "sk-admin-1", h.validator.credential)

	w = h.do(http.MethodPost, "/api/v1/projects/validate", secret, `{"team_id":"team-1","project_id":"proj_missing"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, costapi.MsgProjectNotFound, body["error"])

	w = h.do(http.MethodPost, "/api/v1/projects/validate", secret, `{"team_id":"team-nokey","project_id":"proj_ok"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/projects/validate", secret, `{"team_id":"ghost","project_id":"proj_ok"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/v1/projects/validate", secret, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateProject_RateLimited(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret, ValidateRPS: 0.001, ValidateBurst: 1})

	body := `{"team_id":"team-1","project_id":"proj_ok"}`
	w := h.do(http.MethodPost, "/api/v1/projects/validate", secret, body)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/v1/projects/validate", secret, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestProjectSpend(t *testing.T) {
	h := setupServer(t, server.Options{CronSecret: secret})
	ctx := context.Background()

	team := &model.Team{Name: "Platform"}
	require.NoError(t, h.store.CreateTeam(ctx, team))
	project := &model.Project{TeamID: team.ID, Name: "chatbot"}
	require.NoError(t, h.store.CreateProject(ctx, project))

	record := func(date, cost string) model.CostRecord {
		day, err := model.ParseDate(date, time.UTC)
		require.NoError(t, err)
		return model.CostRecord{
			TeamID:      team.ID,
			ProjectID:   &project.ID,
			Provider:    "openai",
			LineItem:    "gpt-4o, input",
			Cost:        decimal.RequireFromString(cost),
			Currency:    "usd",
			Date:        date,
			BucketStart: day,
			APIVersion:  model.APIVersionCostsV1,
		}
	}
	_, err := h.store.UpsertCostRecords(ctx, []model.CostRecord{
		record("2025-11-05", "25.50"),
		record("2025-11-03", "4.50"),
		record("2025-10-31", "100"),
	})
	require.NoError(t, err)

	w := h.do(http.MethodGet, "/api/v1/projects/"+project.ID+"/spend", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "daily", body["period"])
	assert.Equal(t, "25.50", body["cost"])

	w = h.do(http.MethodGet, "/api/v1/projects/"+project.ID+"/spend?period=weekly", secret, "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "2025-11-03", body["from"])
	assert.Equal(t, "2025-11-05", body["to"])
	assert.Equal(t, "30.00", body["cost"])

	w = h.do(http.MethodGet, "/api/v1/projects/"+project.ID+"/spend?period=monthly", secret, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/v1/projects/nope/spend", secret, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
