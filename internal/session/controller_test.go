package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/stories/internal/fsm"
	"github.com/rbright/stories/internal/ipc"
)

type fakeRecorder struct {
	startErr    error
	stopErr     error
	capture     Capture
	cancelCalls atomic.Int32
}

func (f *fakeRecorder) Start(context.Context) error { return f.startErr }

func (f *fakeRecorder) Stop(context.Context) (Capture, error) {
	return f.capture, f.stopErr
}

func (f *fakeRecorder) Cancel(context.Context) error {
	f.cancelCalls.Add(1)
	return nil
}

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	lastWAV []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastWAV = audio
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTranscriber) lastAudio() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastWAV
}

func (f *fakeTranscriber) setOutcome(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.err = err
}

type fakeTracker struct {
	mu      sync.Mutex
	events  []string
	crashes []string
}

func (f *fakeTracker) Track(eventName string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventName)
}

func (f *fakeTracker) Crash(reason string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crashes = append(f.crashes, reason)
}

func (f *fakeTracker) crashReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.crashes...)
}

func (f *fakeTracker) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeTracker) has(name string) bool {
	for _, n := range f.names() {
		if n == name {
			return true
		}
	}
	return false
}

func newTestController(recorder Recorder, transcriber Transcriber, tracker Tracker) (*Controller, *Store) {
	store := NewStore(nil, nil)
	store.readyRevert = time.Hour
	return NewController(nil, store, recorder, transcriber, tracker), store
}

func TestStopLaunchesTranscription(t *testing.T) {
	recorder := &fakeRecorder{capture: Capture{WAV: []byte("wav-bytes"), Duration: 3 * time.Second}}
	transcriber := &fakeTranscriber{text: "hello world"}
	tracker := &fakeTracker{}
	ctrl, store := newTestController(recorder, transcriber, tracker)

	ctx := context.Background()
	if _, err := ctrl.Start(ctx, SourceWidget); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	waitForStoreState(t, store, fsm.StateReady)
	if got := ctrl.Transcript(); got != "hello world" {
		t.Fatalf("expected transcript retained, got %q", got)
	}
	if !bytes.Equal(transcriber.lastAudio(), []byte("wav-bytes")) {
		t.Fatal("transcriber did not receive captured audio")
	}
	if !tracker.has("recording_started") || !tracker.has("transcription_completed") {
		t.Fatalf("missing lifecycle events, got %v", tracker.names())
	}
}

func TestCancelNeverInvokesTranscriber(t *testing.T) {
	recorder := &fakeRecorder{}
	transcriber := &fakeTranscriber{text: "should never run"}
	tracker := &fakeTracker{}
	ctrl, store := newTestController(recorder, transcriber, tracker)

	ctx := context.Background()
	if _, err := ctrl.Start(ctx, SourceMainWindow); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	snap, err := ctrl.Cancel(ctx)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if snap.State != fsm.StateIdle {
		t.Fatalf("expected idle after cancel, got %s", snap.State)
	}

	// Give any stray goroutine a moment to run before asserting.
	time.Sleep(20 * time.Millisecond)
	if transcriber.callCount() != 0 {
		t.Fatal("cancel must not invoke the transcriber")
	}
	if recorder.cancelCalls.Load() != 1 {
		t.Fatal("expected captured audio to be discarded")
	}
	if tracker.has("transcription_failed") {
		t.Fatal("cancel must not emit transcription_failed")
	}
	if !tracker.has("recording_cancelled") {
		t.Fatalf("expected recording_cancelled, got %v", tracker.names())
	}
	if got := store.Snapshot().State; got != fsm.StateIdle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestSecondStartRejectedAsBusy(t *testing.T) {
	ctrl, _ := newTestController(&fakeRecorder{}, &fakeTranscriber{}, nil)

	ctx := context.Background()
	first, err := ctrl.Start(ctx, SourceMainWindow)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	busy, err := ctrl.Start(ctx, SourceWidget)
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if busy.SessionID != first.SessionID {
		t.Fatal("busy rejection must not change the session id")
	}
}

func TestRetryReusesRetainedCapture(t *testing.T) {
	recorder := &fakeRecorder{capture: Capture{WAV: []byte("retained"), Duration: time.Second}}
	transcriber := &fakeTranscriber{err: errors.New("upstream unavailable")}
	tracker := &fakeTracker{}
	ctrl, store := newTestController(recorder, transcriber, tracker)

	ctx := context.Background()
	if _, err := ctrl.Start(ctx, SourceGlobalShortcut); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitForStoreState(t, store, fsm.StateError)
	if got := ctrl.LastError(); got == "" {
		t.Fatal("expected a retained failure message")
	}

	transcriber.setOutcome("second time lucky", nil)
	if _, err := ctrl.Retry(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	waitForStoreState(t, store, fsm.StateReady)

	if !bytes.Equal(transcriber.lastAudio(), []byte("retained")) {
		t.Fatal("retry did not reuse the retained capture")
	}
	if !tracker.has("transcription_retried") {
		t.Fatalf("expected transcription_retried, got %v", tracker.names())
	}
}

func TestStartCaptureFailureRollsBack(t *testing.T) {
	recorder := &fakeRecorder{startErr: errors.New("no input device")}
	ctrl, store := newTestController(recorder, &fakeTranscriber{}, nil)

	if _, err := ctrl.Start(context.Background(), SourceMainWindow); err == nil {
		t.Fatal("expected start to fail")
	}
	if got := store.Snapshot().State; got != fsm.StateIdle {
		t.Fatalf("expected rollback to idle, got %s", got)
	}
}

func TestHandleCommands(t *testing.T) {
	ctrl, _ := newTestController(&fakeRecorder{}, &fakeTranscriber{text: "ok"}, nil)
	ctx := context.Background()

	resp := ctrl.Handle(ctx, ipc.Request{Command: "status"})
	if !resp.OK || resp.State != string(fsm.StateIdle) {
		t.Fatalf("unexpected status response: %+v", resp)
	}

	resp = ctrl.Handle(ctx, ipc.Request{Command: "start", Source: "widget"})
	if !resp.OK || resp.State != string(fsm.StateRecording) {
		t.Fatalf("unexpected start response: %+v", resp)
	}
	if resp.SessionID == "" {
		t.Fatal("expected session id in start response")
	}

	resp = ctrl.Handle(ctx, ipc.Request{Command: "start", Source: "main"})
	if resp.OK || resp.Error == "" {
		t.Fatalf("expected busy error, got %+v", resp)
	}

	resp = ctrl.Handle(ctx, ipc.Request{Command: "cancel"})
	if !resp.OK || resp.State != string(fsm.StateIdle) {
		t.Fatalf("unexpected cancel response: %+v", resp)
	}

	resp = ctrl.Handle(ctx, ipc.Request{Command: "bogus"})
	if resp.OK || resp.Error == "" {
		t.Fatalf("expected unknown command error, got %+v", resp)
	}
}

func TestRetryAfterCaptureFailureDoesNotReplayOldAudio(t *testing.T) {
	recorder := &fakeRecorder{capture: Capture{WAV: []byte("first-take"), Duration: time.Second}}
	transcriber := &fakeTranscriber{err: errors.New("upstream unavailable")}
	tracker := &fakeTracker{}
	ctrl, store := newTestController(recorder, transcriber, tracker)

	ctx := context.Background()
	if _, err := ctrl.Start(ctx, SourceWidget); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitForStoreState(t, store, fsm.StateError)
	if _, err := ctrl.Dismiss(ctx); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}

	// Second session: capture is lost when the stream stops.
	recorder.stopErr = errors.New("stream torn down")
	if _, err := ctrl.Start(ctx, SourceWidget); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if _, err := ctrl.Stop(ctx); err == nil {
		t.Fatal("expected stop to fail when capture is lost")
	}
	waitForStoreState(t, store, fsm.StateError)

	calls := transcriber.callCount()
	if _, err := ctrl.Retry(ctx); err == nil {
		t.Fatal("expected retry to fail with no captured audio")
	}
	time.Sleep(20 * time.Millisecond)
	if got := transcriber.callCount(); got != calls {
		t.Fatalf("retry transcribed audio from a previous session: %q", transcriber.lastAudio())
	}
	if got := store.Snapshot().State; got != fsm.StateError {
		t.Fatalf("expected error state after failed retry, got %s", got)
	}
	if ctrl.LastError() == "" {
		t.Fatal("expected a user-facing failure message")
	}
}

type panickyTranscriber struct{}

func (panickyTranscriber) Transcribe(context.Context, []byte, time.Duration) (string, error) {
	panic("decoder blew up")
}

func TestTranscriberPanicReportsCrashAndFailsSession(t *testing.T) {
	recorder := &fakeRecorder{capture: Capture{WAV: []byte("wav-bytes"), Duration: time.Second}}
	tracker := &fakeTracker{}
	ctrl, store := newTestController(recorder, panickyTranscriber{}, tracker)

	ctx := context.Background()
	if _, err := ctrl.Start(ctx, SourceMainWindow); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	waitForStoreState(t, store, fsm.StateError)
	reasons := tracker.crashReasons()
	if len(reasons) != 1 || !strings.Contains(reasons[0], "decoder blew up") {
		t.Fatalf("expected one crash report naming the panic, got %v", reasons)
	}
	if ctrl.LastError() == "" {
		t.Fatal("expected a user-facing failure message")
	}
}
