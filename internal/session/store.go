// Package session coordinates recording lifecycle state, actions, and
// the transcription hand-off.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/stories/internal/fsm"
)

// ErrSessionBusy rejects a start while a recording or transcription is
// already active. The caller treats it as a no-op, not a failure.
var ErrSessionBusy = errors.New("recording session already active")

// Source identifies which surface initiated the active session.
type Source string

const (
	SourceMainWindow     Source = "main"
	SourceWidget         Source = "widget"
	SourceGlobalShortcut Source = "shortcut"
)

// Record describes one accepted state transition.
type Record struct {
	From      fsm.State
	To        fsm.State
	At        time.Time
	SessionID string
}

// Snapshot is a read-only copy of the current session.
type Snapshot struct {
	State      fsm.State
	SessionID  string
	Source     Source
	StartedAt  time.Time
	RetryCount int
}

// Store is the single source of truth for session state. One mutex
// serializes every transition; racing starts are ordered by lock
// acquisition and the loser gets ErrSessionBusy.
type Store struct {
	logger *slog.Logger
	notify func(Record)

	mu         sync.Mutex
	emitMu     sync.Mutex
	state      fsm.State
	source     Source
	sessionID  string
	startedAt  time.Time
	retryCount int

	readyRevert time.Duration
	revertTimer *time.Timer
}

// NewStore constructs an idle store. notify, when non-nil, receives one
// Record per accepted transition, in transition order, outside the
// store lock.
func NewStore(logger *slog.Logger, notify func(Record)) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		logger:      logger,
		notify:      notify,
		state:       fsm.StateIdle,
		readyRevert: 2 * time.Second,
	}
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		State:      s.state,
		SessionID:  s.sessionID,
		Source:     s.source,
		StartedAt:  s.startedAt,
		RetryCount: s.retryCount,
	}
}

// Start begins a new recording session with a fresh session id.
func (s *Store) Start(source Source) (Snapshot, error) {
	s.mu.Lock()
	next, err := fsm.Transition(s.state, fsm.EventStart)
	if err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrSessionBusy
	}

	rec := s.applyLocked(next)
	s.sessionID = "rec_" + uuid.NewString()
	s.source = source
	s.startedAt = rec.At
	s.retryCount = 0
	rec.SessionID = s.sessionID
	snap := s.snapshotLocked()
	s.emit(rec)
	return snap, nil
}

// Stop moves an active recording into transcription.
func (s *Store) Stop() (Snapshot, error) {
	return s.step(fsm.EventStop)
}

// Cancel abandons an active recording and returns to idle. It is a
// purely local operation and never waits on the network.
func (s *Store) Cancel() (Snapshot, error) {
	return s.step(fsm.EventCancel)
}

// Retry re-enters transcription after a failure.
func (s *Store) Retry() (Snapshot, error) {
	s.mu.Lock()
	next, err := fsm.Transition(s.state, fsm.EventRetry)
	if err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}

	rec := s.applyLocked(next)
	s.retryCount++
	snap := s.snapshotLocked()
	s.emit(rec)
	return snap, nil
}

// Dismiss acknowledges a failure and returns to idle.
func (s *Store) Dismiss() (Snapshot, error) {
	return s.step(fsm.EventDismiss)
}

// TranscriptionSucceeded applies a successful outcome for sessionID.
// Outcomes from a superseded session are discarded without a
// transition; the return value reports whether the outcome applied.
func (s *Store) TranscriptionSucceeded(sessionID string) bool {
	s.mu.Lock()
	if !s.currentLocked(sessionID) {
		s.mu.Unlock()
		s.logger.Info("stale transcription result discarded", "session_id", sessionID)
		return false
	}
	next, err := fsm.Transition(s.state, fsm.EventSucceed)
	if err != nil {
		s.mu.Unlock()
		return false
	}

	rec := s.applyLocked(next)
	s.scheduleRevertLocked(sessionID)
	s.emit(rec)
	return true
}

// TranscriptionFailed applies a failed outcome for sessionID, subject
// to the same staleness guard as TranscriptionSucceeded.
func (s *Store) TranscriptionFailed(sessionID string) bool {
	s.mu.Lock()
	if !s.currentLocked(sessionID) {
		s.mu.Unlock()
		s.logger.Info("stale transcription failure discarded", "session_id", sessionID)
		return false
	}
	next, err := fsm.Transition(s.state, fsm.EventFail)
	if err != nil {
		s.mu.Unlock()
		return false
	}

	rec := s.applyLocked(next)
	s.emit(rec)
	return true
}

// step applies one event that needs no extra bookkeeping.
func (s *Store) step(event fsm.Event) (Snapshot, error) {
	s.mu.Lock()
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}

	rec := s.applyLocked(next)
	snap := s.snapshotLocked()
	s.emit(rec)
	return snap, nil
}

// applyLocked commits a validated transition and builds its record.
func (s *Store) applyLocked(next fsm.State) Record {
	rec := Record{From: s.state, To: next, At: time.Now(), SessionID: s.sessionID}
	s.state = next
	if next == fsm.StateIdle {
		s.startedAt = time.Time{}
	}
	return rec
}

func (s *Store) currentLocked(sessionID string) bool {
	return sessionID != "" && sessionID == s.sessionID
}

// scheduleRevertLocked arms the Ready auto-revert timer. The revert is
// a store-owned timed transition so it flows through the same
// validation and notification path as user-triggered events.
func (s *Store) scheduleRevertLocked(sessionID string) {
	if s.revertTimer != nil {
		s.revertTimer.Stop()
	}
	s.revertTimer = time.AfterFunc(s.readyRevert, func() {
		s.revert(sessionID)
	})
}

func (s *Store) revert(sessionID string) {
	s.mu.Lock()
	if !s.currentLocked(sessionID) || s.state != fsm.StateReady {
		s.mu.Unlock()
		return
	}
	next, err := fsm.Transition(s.state, fsm.EventRevert)
	if err != nil {
		s.mu.Unlock()
		return
	}

	rec := s.applyLocked(next)
	s.emit(rec)
}

// emit is called with s.mu held and releases it. The emit lock is
// acquired before the state lock is released, so records reach notify
// in commit order and a later transition can never publish first.
func (s *Store) emit(rec Record) {
	s.emitMu.Lock()
	s.mu.Unlock()
	if s.notify != nil {
		s.notify(rec)
	}
	s.emitMu.Unlock()
}
