package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/retry"
)

// ErrChannelNotConfigured is reported for a rule channel with no notifier.
var ErrChannelNotConfigured = errors.New("notification channel not configured")

// ChannelResult is the delivery outcome for one channel.
type ChannelResult struct {
	Channel model.Channel
	Err     error
}

// Sender delivers an alert to a set of channels.
type Sender interface {
	Dispatch(ctx context.Context, channels []model.Channel, alert alerts.Alert) []ChannelResult
}

// Dispatcher routes alerts to notifiers by channel name.
type Dispatcher struct {
	notifiers map[model.Channel]alerts.Notifier
	retry     retry.Options
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over notifiers, keyed by Name().
func NewDispatcher(opts retry.Options, logger *slog.Logger, notifiers ...alerts.Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	d := &Dispatcher{
		notifiers: make(map[model.Channel]alerts.Notifier, len(notifiers)),
		retry:     opts,
		logger:    logger,
	}
	for _, n := range notifiers {
		d.notifiers[model.Channel(n.Name())] = n
	}
	return d
}

// Channels lists the configured channels in sorted order.
func (d *Dispatcher) Channels() []model.Channel {
	channels := make([]model.Channel, 0, len(d.notifiers))
	for c := range d.notifiers {
		channels = append(channels, c)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// Dispatch sends alert to each channel, retrying each send independently.
// An empty channel list means every configured channel.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []model.Channel, alert alerts.Alert) []ChannelResult {
	if len(channels) == 0 {
		channels = d.Channels()
	}

	results := make([]ChannelResult, 0, len(channels))
	for _, ch := range channels {
		n, ok := d.notifiers[ch]
		if !ok {
			results = append(results, ChannelResult{Channel: ch, Err: ErrChannelNotConfigured})
			continue
		}

		opts := d.retry
		opts.Label = "alerts." + string(ch)
		opts.FinalErrorMessage = "alert delivery failed after retries"
		err := retry.Run(ctx, opts, func(ctx context.Context) error {
			return n.Send(ctx, alert)
		})
		results = append(results, ChannelResult{Channel: ch, Err: err})
	}
	return results
}
