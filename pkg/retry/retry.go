// Package retry wraps outbound calls with pure exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1000 * time.Millisecond
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a retried operation.
type Options struct {
	// MaxRetries is the total number of attempts. Values below 1 use DefaultMaxRetries.
	MaxRetries int
	// BaseDelay is the wait after the first failure; it doubles on each retry.
	BaseDelay time.Duration
	// Label identifies the operation in logs and metrics.
	Label string
	// FinalErrorMessage is logged once when every attempt has failed.
	FinalErrorMessage string
	Logger            *slog.Logger
	Sleep             SleepFunc
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 1 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	if o.FinalErrorMessage == "" {
		o.FinalErrorMessage = "operation failed after retries"
	}
	return o
}

// Delay returns the wait that follows failed attempt n (0-based).
func Delay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

// Do invokes op until it succeeds or MaxRetries attempts have failed.
// Every error is retried the same way. The last error is returned as is.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == opts.MaxRetries-1 {
			break
		}

		delay := Delay(opts.BaseDelay, attempt)
		opts.Logger.Warn("retrying after failure",
			"context", opts.Label,
			"attempt", attempt+1,
			"max_retries", opts.MaxRetries,
			"delay", delay,
			"error", err,
		)
		metrics.RetryAttempts.WithLabelValues(opts.Label).Inc()

		if sleepErr := opts.Sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}

	opts.Logger.Error(opts.FinalErrorMessage,
		"context", opts.Label,
		"attempts", opts.MaxRetries,
		"error", lastErr,
	)
	return zero, lastErr
}

// Run is Do for operations without a result.
func Run(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	_, err := Do(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Sleep waits for d using a timer and honors ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
