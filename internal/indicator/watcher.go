package indicator

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/stories/internal/ipc"
	"github.com/rbright/stories/internal/reconcile"
)

// Watcher is the notification surface: it subscribes to daemon pushes
// and polls the state endpoint, feeding both into one SurfaceView so
// the desktop notification converges even when pushes are lost.
type Watcher struct {
	logger     *slog.Logger
	notifier   *Notifier
	socketPath string
	baseURL    string
	surfaceID  string
}

func NewWatcher(logger *slog.Logger, notifier *Notifier, socketPath, baseURL, surfaceID string) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		logger:     logger,
		notifier:   notifier,
		socketPath: socketPath,
		baseURL:    baseURL,
		surfaceID:  surfaceID,
	}
}

// Run watches until ctx cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	view := reconcile.NewSurfaceView(func(v reconcile.View) {
		w.logger.Info("state observed",
			"state", v.LastKnownState,
			"session_id", v.SessionID,
			"via", string(v.SyncSource),
		)
		w.notifier.ShowState(ctx, v.LastKnownState, "")
	})

	msgs, stopSub, err := ipc.Subscribe(ctx, w.socketPath, w.surfaceID)
	if err != nil {
		// Polling alone still converges within one tick.
		w.logger.Warn("push subscription unavailable, relying on polling", "error", err)
		msgs = nil
	} else {
		defer stopSub()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reconcile.NewReconciler(w.logger, view, w.baseURL).Run(ctx)
	})
	g.Go(func() error {
		if msgs == nil {
			<-ctx.Done()
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgs:
				if !ok {
					// Push stream ended; polling carries on.
					<-ctx.Done()
					return nil
				}
				view.ApplyPush(msg)
			}
		}
	})
	return g.Wait()
}
