// Package cronguard runs scheduled jobs at most once successfully per logical
// date key.
//
// The guard does not lock. Two invocations racing for the same key can both
// run the job before either records it; the second record insert is ignored.
package cronguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/metrics"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/storage"
)

// Job names used by the scheduled endpoints.
const (
	JobDailyCollection = "daily-collection"
	JobWeeklyReport    = "weekly-report"
)

// Store persists execution records.
type Store interface {
	GetCronExecution(ctx context.Context, jobName, dateKey string) (*model.CronExecution, error)
	InsertCronExecution(ctx context.Context, exec *model.CronExecution) error
}

// Outcome reports whether the job ran or was skipped.
type Outcome struct {
	JobName    string    `json:"job_name"`
	DateKey    string    `json:"date_key"`
	Skipped    bool      `json:"skipped"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Guard gates job execution on the execution log.
type Guard struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// New creates a guard. now may be nil.
func New(store Store, now func() time.Time, logger *slog.Logger) *Guard {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, now: now, logger: logger}
}

// RunOnce runs work unless (jobName, dateKey) already has a record. The
// record is written only when work succeeds, so a failed run can be retried
// within the same period.
func (g *Guard) RunOnce(ctx context.Context, jobName, dateKey string, work func(ctx context.Context) error) (*Outcome, error) {
	log := g.logger.With("job", jobName, "date_key", dateKey)

	existing, err := g.store.GetCronExecution(ctx, jobName, dateKey)
	switch {
	case err == nil:
		log.Info("job already executed; skipping", "executed_at", existing.ExecutedAt)
		metrics.CronRuns.WithLabelValues(jobName, "skipped").Inc()
		return &Outcome{JobName: jobName, DateKey: dateKey, Skipped: true, ExecutedAt: existing.ExecutedAt}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("check cron execution: %w", err)
	}

	if err := work(ctx); err != nil {
		log.Error("job failed", "error", err)
		metrics.CronRuns.WithLabelValues(jobName, "failed").Inc()
		return nil, err
	}

	exec := &model.CronExecution{JobName: jobName, DateKey: dateKey, ExecutedAt: g.now().UTC()}
	if err := g.store.InsertCronExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("record cron execution: %w", err)
	}

	log.Info("job executed")
	metrics.CronRuns.WithLabelValues(jobName, "succeeded").Inc()
	return &Outcome{JobName: jobName, DateKey: dateKey, ExecutedAt: exec.ExecutedAt}, nil
}

// DailyKey returns the YYYY-MM-DD key of t.
func DailyKey(t time.Time) string {
	return t.Format(model.DateLayout)
}

// WeeklyKey returns the key of the Monday starting t's week.
func WeeklyKey(t time.Time) string {
	return model.WeekStart(t).Format(model.DateLayout)
}
