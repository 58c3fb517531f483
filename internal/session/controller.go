package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/stories/internal/fsm"
	"github.com/rbright/stories/internal/ipc"
)

// Capture is the recorded audio handed to transcription.
type Capture struct {
	WAV      []byte
	Duration time.Duration
}

// Recorder abstracts the audio capture device.
type Recorder interface {
	Start(context.Context) error
	Stop(context.Context) (Capture, error)
	Cancel(context.Context) error
}

// noopRecorder preserves controller flow when no capture device is wired.
type noopRecorder struct{}

func (noopRecorder) Start(context.Context) error            { return nil }
func (noopRecorder) Stop(context.Context) (Capture, error)  { return Capture{}, nil }
func (noopRecorder) Cancel(context.Context) error           { return nil }

// Transcriber runs one transcription request to completion.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, duration time.Duration) (string, error)
}

// Tracker records analytics events and crash reports. Implementations
// must never block.
type Tracker interface {
	Track(eventName string, properties map[string]any)
	Crash(reason string, properties map[string]any)
}

type noopTracker struct{}

func (noopTracker) Track(string, map[string]any) {}
func (noopTracker) Crash(string, map[string]any) {}

// Controller orchestrates session side effects around the Store: audio
// capture, the asynchronous transcription call, and telemetry. The
// Store remains the only authority on state.
type Controller struct {
	logger     *slog.Logger
	store      *Store
	recorder   Recorder
	transcribe Transcriber
	tracker    Tracker

	mu          sync.Mutex
	lastCapture Capture
	lastText    string
	lastErrMsg  string
}

// NewController constructs a controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	store *Store,
	recorder Recorder,
	transcriber Transcriber,
	tracker Tracker,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if tracker == nil {
		tracker = noopTracker{}
	}
	return &Controller{
		logger:     logger,
		store:      store,
		recorder:   recorder,
		transcribe: transcriber,
		tracker:    tracker,
	}
}

// Start begins a new recording session.
func (c *Controller) Start(ctx context.Context, source Source) (Snapshot, error) {
	snap, err := c.store.Start(source)
	if err != nil {
		return snap, err
	}

	if err := c.recorder.Start(ctx); err != nil {
		// Capture never began, so roll the session back directly.
		if _, cerr := c.store.Cancel(); cerr != nil {
			c.logger.Error("rollback after capture failure", "error", cerr)
		}
		return c.store.Snapshot(), fmt.Errorf("start capture: %w", err)
	}

	c.tracker.Track("recording_started", map[string]any{"source": string(source)})
	c.logger.Info("recording started", "session_id", snap.SessionID, "source", string(source))
	return snap, nil
}

// Stop ends capture and launches transcription in the background.
func (c *Controller) Stop(ctx context.Context) (Snapshot, error) {
	snap, err := c.store.Stop()
	if err != nil {
		return snap, err
	}

	capture, err := c.recorder.Stop(ctx)
	if err != nil {
		// Nothing from this session was captured. Drop the previous
		// session's retained audio so a retry cannot transcribe it.
		c.mu.Lock()
		c.lastCapture = Capture{}
		c.mu.Unlock()

		c.setLastError("Recording could not be saved. Please try again.")
		c.store.TranscriptionFailed(snap.SessionID)
		c.tracker.Track("transcription_failed", map[string]any{"reason": "capture"})
		return c.store.Snapshot(), fmt.Errorf("stop capture: %w", err)
	}

	c.mu.Lock()
	c.lastCapture = capture
	c.mu.Unlock()

	go c.runTranscription(snap.SessionID, capture)
	return snap, nil
}

// Cancel abandons the active recording. It is synchronous and local;
// any in-flight transcription for an older session is left to go stale.
func (c *Controller) Cancel(ctx context.Context) (Snapshot, error) {
	snap, err := c.store.Cancel()
	if err != nil {
		return snap, err
	}

	if err := c.recorder.Cancel(ctx); err != nil {
		c.logger.Warn("discard capture", "error", err)
	}
	c.tracker.Track("recording_cancelled", nil)
	c.logger.Info("recording cancelled", "session_id", snap.SessionID)
	return snap, nil
}

// Retry re-submits the retained capture after a failure.
func (c *Controller) Retry(ctx context.Context) (Snapshot, error) {
	snap, err := c.store.Retry()
	if err != nil {
		return snap, err
	}

	c.mu.Lock()
	capture := c.lastCapture
	c.mu.Unlock()

	if len(capture.WAV) == 0 {
		c.setLastError("No audio was captured for this recording. Please record again.")
		c.store.TranscriptionFailed(snap.SessionID)
		return c.store.Snapshot(), errors.New("no captured audio to retry")
	}

	c.tracker.Track("transcription_retried", map[string]any{"retry_count": snap.RetryCount})
	go c.runTranscription(snap.SessionID, capture)
	return snap, nil
}

// Dismiss acknowledges a failure.
func (c *Controller) Dismiss(ctx context.Context) (Snapshot, error) {
	return c.store.Dismiss()
}

// Transcript returns the text produced by the last successful session.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastText
}

// LastError returns the user-facing message for the last failure.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErrMsg
}

// runTranscription executes one transcription attempt. The outcome is
// tagged with the initiating session id; the store discards it if that
// session has been superseded.
func (c *Controller) runTranscription(sessionID string, capture Capture) {
	defer func() {
		if cause := recover(); cause != nil {
			c.setLastError("Transcription failed unexpectedly. Please try again.")
			c.store.TranscriptionFailed(sessionID)
			c.tracker.Crash(fmt.Sprint(cause), map[string]any{"op": "transcription"})
			c.logger.Error("transcription panicked", "session_id", sessionID, "cause", fmt.Sprint(cause))
		}
	}()

	start := time.Now()
	text, err := c.transcribe.Transcribe(context.Background(), capture.WAV, capture.Duration)
	if err != nil {
		c.setLastError(err.Error())
		if c.store.TranscriptionFailed(sessionID) {
			c.tracker.Track("transcription_failed", map[string]any{
				"duration_seconds": capture.Duration.Seconds(),
			})
		}
		c.logger.Error("transcription failed", "session_id", sessionID, "error", err)
		return
	}

	c.mu.Lock()
	c.lastText = text
	c.lastErrMsg = ""
	c.mu.Unlock()

	if c.store.TranscriptionSucceeded(sessionID) {
		c.tracker.Track("transcription_completed", map[string]any{
			"duration_seconds": capture.Duration.Seconds(),
			"latency_ms":       time.Since(start).Milliseconds(),
		})
	}
	c.logger.Info("transcription completed", "session_id", sessionID, "latency", time.Since(start))
}

func (c *Controller) setLastError(msg string) {
	c.mu.Lock()
	c.lastErrMsg = msg
	c.mu.Unlock()
}

// Handle serves one IPC command against the session.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		snap := c.store.Snapshot()
		resp := ipc.Response{OK: true, State: string(snap.State), SessionID: snap.SessionID, Message: "status"}
		if snap.State == fsm.StateError {
			resp.Message = c.LastError()
		}
		return resp
	case "start":
		return c.respond(c.Start(ctx, parseSource(req.Source)))
	case "stop":
		return c.respond(c.Stop(ctx))
	case "cancel":
		return c.respond(c.Cancel(ctx))
	case "retry":
		return c.respond(c.Retry(ctx))
	case "dismiss":
		return c.respond(c.Dismiss(ctx))
	default:
		snap := c.store.Snapshot()
		return ipc.Response{OK: false, State: string(snap.State), SessionID: snap.SessionID, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) respond(snap Snapshot, err error) ipc.Response {
	if err != nil {
		return ipc.Response{OK: false, State: string(snap.State), SessionID: snap.SessionID, Error: err.Error()}
	}
	return ipc.Response{OK: true, State: string(snap.State), SessionID: snap.SessionID}
}

func parseSource(raw string) Source {
	switch raw {
	case string(SourceWidget):
		return SourceWidget
	case string(SourceGlobalShortcut):
		return SourceGlobalShortcut
	default:
		return SourceMainWindow
	}
}
