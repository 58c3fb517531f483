// Package reconcile keeps a surface's view of the session converged
// with the daemon even when push messages are lost.
package reconcile

import (
	"sync"
	"time"

	"github.com/rbright/stories/internal/broadcast"
)

// SyncSource records how a view update arrived.
type SyncSource string

const (
	SourcePushed SyncSource = "pushed"
	SourcePolled SyncSource = "polled"
)

// View is the surface-local copy of the session state.
type View struct {
	LastKnownState string
	SessionID      string
	LastSyncedAt   time.Time
	SyncSource     SyncSource
}

// SurfaceView holds one surface's view. Push and poll deliveries both
// route through the same apply path, so the change callback fires the
// same way regardless of transport.
type SurfaceView struct {
	mu       sync.Mutex
	view     View
	onChange func(View)
}

// NewSurfaceView constructs an idle view. onChange, when non-nil,
// fires outside the lock whenever the state or session changes.
func NewSurfaceView(onChange func(View)) *SurfaceView {
	return &SurfaceView{
		view:     View{LastKnownState: "idle"},
		onChange: onChange,
	}
}

// View returns the current view.
func (s *SurfaceView) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// ApplyPush records a pushed state message.
func (s *SurfaceView) ApplyPush(msg broadcast.Message) {
	s.apply(msg.State, msg.SessionID, SourcePushed)
}

// ApplyPolled records a polled state observation.
func (s *SurfaceView) ApplyPolled(state, sessionID string) {
	s.apply(state, sessionID, SourcePolled)
}

func (s *SurfaceView) apply(state, sessionID string, source SyncSource) {
	s.mu.Lock()
	changed := s.view.LastKnownState != state || s.view.SessionID != sessionID
	s.view.LastSyncedAt = time.Now()
	if changed {
		s.view.LastKnownState = state
		s.view.SessionID = sessionID
		s.view.SyncSource = source
	}
	view := s.view
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(view)
	}
}
