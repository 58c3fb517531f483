// Package indicator renders session state to the desktop: one
// replaceable notification plus short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/stories/internal/config"
)

// Notifier shows the current session state as a desktop notification.
// Everything here is best-effort; a failed notification never disturbs
// the session.
type Notifier struct {
	cfg      config.NotifyConfig
	logger   *slog.Logger
	messages messages

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
}

func NewNotifier(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: notifyMessagesFromEnv(),
	}
}

// ShowState renders one observed state. detail, when non-empty,
// replaces the stock message for error states.
func (n *Notifier) ShowState(ctx context.Context, state string, detail string) {
	switch state {
	case "recording":
		n.playCue(cueStart)
		n.show(ctx, n.messages.recording, 300000)
	case "processing":
		n.playCue(cueStop)
		n.show(ctx, n.messages.processing, 300000)
	case "ready":
		n.playCue(cueComplete)
		n.show(ctx, n.messages.ready, 2500)
	case "error":
		text := strings.TrimSpace(detail)
		if text == "" {
			text = n.messages.errorText
		}
		n.show(ctx, text, 4000)
	case "cancelled":
		n.playCue(cueCancel)
		n.hide(ctx)
	default:
		n.hide(ctx)
	}
}

// show posts a replaceable notification, keeping one slot per surface.
func (n *Notifier) show(ctx context.Context, text string, timeoutMS int) {
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	replaceID := n.notificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.AppName)
	if appName == "" {
		appName = "stories"
	}

	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()

	id, err := desktopNotify(runCtx, appName, replaceID, text, timeoutMS)
	if err != nil {
		n.logger.Debug("notification dispatch failed", "error", err)
		return
	}

	n.mu.Lock()
	n.notificationID = id
	n.mu.Unlock()
}

func (n *Notifier) hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := desktopDismiss(runCtx, id); err != nil {
		n.logger.Debug("notification dismiss failed", "error", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.Sound {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := emitCue(kind); err != nil {
			n.logger.Debug("audio cue failed", "error", err)
		}
	}()
}
