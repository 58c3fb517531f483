package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultInterval is the poll period that bounds convergence: a
	// surface that missed every push is current again within one tick.
	DefaultInterval = 2000 * time.Millisecond

	// pollTimeout keeps one slow poll from overlapping the next tick.
	pollTimeout = 1500 * time.Millisecond
)

// Reconciler polls the daemon's state endpoint and feeds observations
// into a SurfaceView. Poll failures are absorbed silently; the view
// keeps its last known state rather than flickering to an error.
type Reconciler struct {
	logger   *slog.Logger
	view     *SurfaceView
	client   *http.Client
	url      string
	interval time.Duration
}

func NewReconciler(logger *slog.Logger, view *SurfaceView, baseURL string) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		logger:   logger,
		view:     view,
		client:   &http.Client{Timeout: pollTimeout},
		url:      baseURL + "/recording/state",
		interval: DefaultInterval,
	}
}

// Run polls until ctx cancellation.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.poll(ctx); err != nil {
				r.logger.Debug("poll skipped", "error", err)
			}
		}
	}
}

func (r *Reconciler) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("build poll request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll status %d", resp.StatusCode)
	}

	var body struct {
		State     string `json:"state"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return fmt.Errorf("decode poll response: %w", err)
	}

	r.view.ApplyPolled(body.State, body.SessionID)
	return nil
}
