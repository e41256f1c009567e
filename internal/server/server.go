package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/collector"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/costapi"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/cronguard"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/report"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Collector runs the daily collection for every team.
type Collector interface {
	CollectAll(ctx context.Context, date time.Time) (*collector.Summary, error)
}

// Evaluator runs one threshold evaluation cycle.
type Evaluator interface {
	Evaluate(ctx context.Context) (*model.EvaluationResult, error)
}

// Reporter sends the weekly report to every team.
type Reporter interface {
	SendAll(ctx context.Context, weekStart time.Time) (*report.SendSummary, error)
}

// Guard runs a job at most once successfully per date key.
type Guard interface {
	RunOnce(ctx context.Context, jobName, dateKey string, work func(ctx context.Context) error) (*cronguard.Outcome, error)
}

// ProjectValidator checks upstream project ids.
type ProjectValidator interface {
	ValidateProjectID(ctx context.Context, credential, externalProjectID string) costapi.ValidationResult
}

// Credentials resolves a team's decrypted admin key.
type Credentials interface {
	AdminCredential(ctx context.Context, teamID string) (string, error)
}

// SpendStore reads project spend.
type SpendStore interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	SumProjectCost(ctx context.Context, projectID, fromDate, toDate string) (decimal.Decimal, error)
}

// Deps are the components the server triggers.
type Deps struct {
	Collector   Collector
	Evaluator   Evaluator
	Reporter    Reporter
	Guard       Guard
	Validator   ProjectValidator
	Credentials Credentials
	Store       SpendStore
}

// Options configures request handling.
type Options struct {
	CronSecret    string
	Location      *time.Location
	ValidateRPS   float64
	ValidateBurst int
	Now           func() time.Time
}

// Server exposes the scheduled job triggers, the project API and metrics.
type Server struct {
	deps    Deps
	opts    Options
	limiter *rate.Limiter
	mux     *http.ServeMux
	logger  *slog.Logger
}

// NewServer creates an API server.
func NewServer(deps Deps, opts Options, logger *slog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ValidateRPS <= 0 {
		opts.ValidateRPS = 2
	}
	if opts.ValidateBurst <= 0 {
		opts.ValidateBurst = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:    deps,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.ValidateRPS), opts.ValidateBurst),
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		s.mux.Handle(method+" /api/cron/collect-costs", s.requireBearer(s.handleCollectCosts))
		s.mux.Handle(method+" /api/cron/refresh-costs", s.requireBearer(s.handleRefreshCosts))
		s.mux.Handle(method+" /api/cron/check-thresholds", s.requireBearer(s.handleCheckThresholds))
		s.mux.Handle(method+" /api/cron/weekly-report", s.requireBearer(s.handleWeeklyReport))
	}

	s.mux.Handle("POST /api/v1/projects/validate", s.requireBearer(s.handleValidateProject))
	s.mux.Handle("GET /api/v1/projects/{id}/spend", s.requireBearer(s.handleProjectSpend))
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
