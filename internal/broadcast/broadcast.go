// Package broadcast fans session state pushes out to attached surfaces.
package broadcast

import (
	"log/slog"
	"sync"
)

// KindState is the message kind carried by every state push.
const KindState = "sync-recording-state"

// Message is one push delivered to a surface.
type Message struct {
	Kind      string `json:"kind"`
	State     string `json:"state"`
	SessionID string `json:"sessionId"`
}

// StateMessage builds the push for one accepted transition.
func StateMessage(state, sessionID string) Message {
	return Message{Kind: KindState, State: state, SessionID: sessionID}
}

// Sink receives pushes for one surface. Send must not block; a sink
// that cannot accept a message reports false and the message is lost.
type Sink interface {
	Send(Message) bool
}

// Broadcaster tracks attached surfaces and delivers each transition to
// all of them, at most once, fire and forget. A slow or dead surface
// never blocks the state machine; the polling reconciler covers any
// missed delivery.
type Broadcaster struct {
	logger *slog.Logger

	mu    sync.Mutex
	sinks map[string]Sink
	last  Message
}

func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		logger: logger,
		sinks:  make(map[string]Sink),
		last:   StateMessage("idle", ""),
	}
}

// Attach registers a surface and synchronously delivers the current
// state once, so a fresh surface never waits for the next transition.
func (b *Broadcaster) Attach(surfaceID string, sink Sink) {
	b.mu.Lock()
	b.sinks[surfaceID] = sink
	snapshot := b.last
	b.mu.Unlock()

	if !sink.Send(snapshot) {
		b.logger.Warn("snapshot dropped on attach", "surface_id", surfaceID)
	}
	b.logger.Info("surface attached", "surface_id", surfaceID)
}

// Detach removes a surface from the registry.
func (b *Broadcaster) Detach(surfaceID string) {
	b.mu.Lock()
	delete(b.sinks, surfaceID)
	b.mu.Unlock()
	b.logger.Info("surface detached", "surface_id", surfaceID)
}

// Publish delivers one state message to every attached surface.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.Lock()
	b.last = msg
	targets := make(map[string]Sink, len(b.sinks))
	for id, sink := range b.sinks {
		targets[id] = sink
	}
	b.mu.Unlock()

	for id, sink := range targets {
		if !sink.Send(msg) {
			b.logger.Warn("push dropped", "surface_id", id, "state", msg.State)
		}
	}
}

// ChanSink adapts a buffered channel to the Sink interface, dropping
// messages when the channel is saturated.
type ChanSink chan Message

func (c ChanSink) Send(msg Message) bool {
	select {
	case c <- msg:
		return true
	default:
		return false
	}
}
