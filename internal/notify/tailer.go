package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crowdfill/internal/config"
	"crowdfill/internal/domain"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatch        = 100
)

// EventSource is the part of the store a Tailer reads.
type EventSource interface {
	LatestEventID(ctx context.Context) (int64, error)
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
}

// Tailer feeds one sink from the event log. It starts at the newest event and
// keeps its own cursor, so a failing sink only delays itself.
type Tailer struct {
	Source   EventSource
	Sink     Notifier
	Interval time.Duration
	Batch    int

	filter  eventFilter
	cursor  int64
	started bool
	log     *zap.Logger
}

func NewTailer(src EventSource, sink Notifier, events []string, interval time.Duration) *Tailer {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Tailer{
		Source:   src,
		Sink:     sink,
		Interval: interval,
		Batch:    defaultBatch,
		filter:   newEventFilter(events),
		log:      zap.L().Named("notify").With(zap.String("sink", sink.Name())),
	}
}

// Run polls until ctx is done.
func (t *Tailer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		if _, err := t.Poll(ctx); err != nil {
			t.log.Warn("event delivery paused", zap.Int64("cursor", t.cursor), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll delivers one batch and returns how many events reached the sink. On a
// sink error the cursor stays on the failed event.
func (t *Tailer) Poll(ctx context.Context) (int, error) {
	if !t.started {
		cur, err := t.Source.LatestEventID(ctx)
		if err != nil {
			return 0, err
		}
		t.cursor = cur
		t.started = true
	}
	batch := t.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	events, err := t.Source.EventsAfter(ctx, batch, t.cursor)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, evt := range events {
		if !t.filter.match(evt.Type) {
			t.cursor = evt.ID
			continue
		}
		if err := t.Sink.Notify(ctx, evt); err != nil {
			return delivered, err
		}
		t.cursor = evt.ID
		delivered++
	}
	return delivered, nil
}

// Setup holds the tailers built from config and the cleanup for their sinks.
type Setup struct {
	Tailers []*Tailer
	closers []func() error
}

// Build creates one tailer per configured sink. Webhooks with their own event
// list use it instead of the global one.
func Build(ctx context.Context, src EventSource, cfg config.NotifyConfig) (*Setup, error) {
	interval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	s := &Setup{}
	if cfg.Log {
		s.Tailers = append(s.Tailers, NewTailer(src, LogNotifier{}, cfg.Events, interval))
	}
	for _, hook := range cfg.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		events := cfg.Events
		if len(hook.Events) > 0 {
			events = hook.Events
		}
		s.Tailers = append(s.Tailers, NewTailer(src, NewWebhook(hook), events, interval))
	}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic != "" {
		n, closeFn, err := NewPubSub(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closeFn)
		s.Tailers = append(s.Tailers, NewTailer(src, n, cfg.Events, interval))
	}
	return s, nil
}

// Run runs every tailer until ctx is done.
func (s *Setup) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.Tailers {
		g.Go(func() error { return t.Run(ctx) })
	}
	return g.Wait()
}

func (s *Setup) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
