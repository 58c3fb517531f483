// Package telemetry batches analytics events and ships crash reports.
// Everything here is best-effort: tracking never blocks a recording
// and no failure in this package is ever surfaced to the user.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/stories/internal/version"
)

const (
	defaultBatchSize     = 10
	defaultFlushInterval = 30 * time.Second
	crashSendTimeout     = 5 * time.Second
)

// Event is one analytics record. Immutable once queued.
type Event struct {
	UserID     string         `json:"userId"`
	EventName  string         `json:"eventName"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
	AppVersion string         `json:"appVersion"`
	Platform   string         `json:"platform"`
	Country    string         `json:"country,omitempty"`
}

// Sender transmits events to the telemetry backend.
type Sender interface {
	SendBatch(ctx context.Context, events []Event) error
	SendCrash(ctx context.Context, event Event) error
}

// Pipeline queues events and flushes them when the batch fills or the
// flush interval elapses, whichever comes first. A failed batch is
// prepended back ahead of newer events so ordering survives retries.
type Pipeline struct {
	logger  *slog.Logger
	sender  Sender
	enabled bool

	userID   string
	platform string
	country  string

	batchSize     int
	flushInterval time.Duration

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
}

func NewPipeline(logger *slog.Logger, sender Sender, userID string, enabled bool) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		logger:        logger,
		sender:        sender,
		enabled:       enabled,
		userID:        userID,
		platform:      "linux",
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Track queues one event. It never blocks and never reports errors;
// when the user has opted out it is a no-op.
func (p *Pipeline) Track(eventName string, properties map[string]any) {
	if !p.enabled {
		return
	}

	event := p.newEvent(eventName, properties)

	p.mu.Lock()
	p.queue = append(p.queue, event)
	full := len(p.queue) >= p.batchSize
	p.mu.Unlock()

	if full {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Crash ships one crash report immediately, bypassing the queue and
// the opt-out flag. Stability data is needed even when usage
// analytics is declined. Failures are dropped, never retried.
func (p *Pipeline) Crash(reason string, properties map[string]any) {
	go p.sendCrash(p.crashEvent(reason, properties))
}

// CrashNow is Crash for the panic path: it blocks until the report is
// sent or the send timeout expires, since the process is about to die.
func (p *Pipeline) CrashNow(reason string, properties map[string]any) {
	p.sendCrash(p.crashEvent(reason, properties))
}

func (p *Pipeline) crashEvent(reason string, properties map[string]any) Event {
	event := p.newEvent("crash", properties)
	if event.Properties == nil {
		event.Properties = map[string]any{}
	}
	event.Properties["reason"] = reason
	return event
}

func (p *Pipeline) sendCrash(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), crashSendTimeout)
	defer cancel()
	if err := p.sender.SendCrash(ctx, event); err != nil {
		p.logger.Warn("crash report dropped", "error", err)
	}
}

// Run flushes on the interval and whenever the batch fills, until ctx
// cancellation. A final flush drains whatever is queued on shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			p.flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			p.flush(ctx)
		case <-p.wake:
			p.flush(ctx)
			// The interval counts from the last flush, not from ticker
			// epochs; without this a timed flush could fire immediately
			// after a full-batch flush.
			ticker.Reset(p.flushInterval)
		}
	}
}

// flush swaps the queue for an empty one before sending, so tracking
// continues unblocked during the network call. On failure the batch
// goes back to the front of the queue.
func (p *Pipeline) flush(ctx context.Context) {
	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := p.sender.SendBatch(ctx, batch); err != nil {
		p.mu.Lock()
		p.queue = append(batch, p.queue...)
		p.mu.Unlock()
		p.logger.Warn("telemetry batch requeued", "events", len(batch), "error", err)
		return
	}
	p.logger.Info("telemetry batch sent", "events", len(batch))
}

func (p *Pipeline) newEvent(eventName string, properties map[string]any) Event {
	return Event{
		UserID:     p.userID,
		EventName:  eventName,
		Timestamp:  time.Now().UTC(),
		Properties: properties,
		AppVersion: version.Version,
		Platform:   p.platform,
		Country:    p.country,
	}
}
