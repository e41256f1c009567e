package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/collector"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/cronguard"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/report"
)

type cronResponse struct {
	Success    bool       `json:"success"`
	Skipped    bool       `json:"skipped,omitempty"`
	ExecutedAt *time.Time `json:"executedAt,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// requireBearer rejects requests whose bearer token does not match the cron
// secret. An unset secret fails closed.
func (s *Server) requireBearer(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.CronSecret == "" {
			s.logger.Error("cron secret not configured", "path", r.URL.Path)
			writeJSON(w, http.StatusInternalServerError, cronResponse{Error: "server misconfigured"})
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.CronSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, cronResponse{Error: "unauthorized"})
			return
		}
		next(w, r)
	})
}

func (s *Server) handleCollectCosts(w http.ResponseWriter, r *http.Request) {
	date := s.now().AddDate(0, 0, -1)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := model.ParseDate(raw, s.opts.Location)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, cronResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	var summary *collector.Summary
	outcome, err := s.deps.Guard.RunOnce(r.Context(), cronguard.JobDailyCollection, cronguard.DailyKey(date),
		func(ctx context.Context) error {
			var err error
			summary, err = s.deps.Collector.CollectAll(ctx, date)
			return err
		})
	s.writeCronResult(w, outcome, summary, err)
}

// handleRefreshCosts re-collects the current day outside the once-per-date
// guard so daily thresholds see intraday spend. Upserts make repeats safe.
func (s *Server) handleRefreshCosts(w http.ResponseWriter, r *http.Request) {
	today := s.now()
	summary, err := s.deps.Collector.CollectAll(r.Context(), today)
	if err != nil {
		s.logger.Error("intraday cost refresh failed", "date", today.Format(model.DateLayout), "error", err)
	}
	s.writeCronResult(w, &cronguard.Outcome{}, summary, err)
}

func (s *Server) handleCheckThresholds(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Evaluator.Evaluate(r.Context())
	if err != nil {
		s.logger.Error("threshold evaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, cronResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cronResponse{Success: true, Result: result})
}

// handleWeeklyReport sends the report for the last full week, keyed by the
// current week so it goes out once per week.
func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	lastWeek := model.WeekStart(now).AddDate(0, 0, -7)

	var summary *report.SendSummary
	outcome, err := s.deps.Guard.RunOnce(r.Context(), cronguard.JobWeeklyReport, cronguard.WeeklyKey(now),
		func(ctx context.Context) error {
			var err error
			summary, err = s.deps.Reporter.SendAll(ctx, lastWeek)
			return err
		})
	s.writeCronResult(w, outcome, summary, err)
}

func (s *Server) writeCronResult(w http.ResponseWriter, outcome *cronguard.Outcome, result any, err error) {
	if err != nil {
		resp := cronResponse{Error: err.Error()}
		if !isNilResult(result) {
			resp.Result = result
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	if outcome.Skipped {
		executedAt := outcome.ExecutedAt
		writeJSON(w, http.StatusOK, cronResponse{Success: true, Skipped: true, ExecutedAt: &executedAt})
		return
	}
	writeJSON(w, http.StatusOK, cronResponse{Success: true, Result: result})
}

// isNilResult reports whether a typed result pointer is nil.
func isNilResult(v any) bool {
	switch r := v.(type) {
	case nil:
		return true
	case *collector.Summary:
		return r == nil
	case *report.SendSummary:
		return r == nil
	}
	return false
}
