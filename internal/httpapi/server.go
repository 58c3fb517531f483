// Package httpapi serves the loopback pull interface for surfaces
// that cannot hold a push subscription.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rbright/stories/internal/executor"
	"github.com/rbright/stories/internal/session"
)

// maxAudioBytes bounds one transcription upload (~1h of 16kHz mono PCM).
const maxAudioBytes = 128 << 20

// SessionSource exposes the current session for the state endpoint.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Transcriber runs one transcription attempt under the deadline policy.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, duration time.Duration) (string, error)
}

type stateResponse struct {
	State     string `json:"state"`
	SessionID string `json:"sessionId"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server is the loopback HTTP API. It carries no auth; config
// validation rejects non-loopback listen addresses.
type Server struct {
	logger      *slog.Logger
	session     SessionSource
	transcriber Transcriber
}

func New(logger *slog.Logger, source SessionSource, transcriber Transcriber) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{logger: logger, session: source, transcriber: transcriber}
}

// Router builds the chi handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/recording/state", s.handleState)
	r.Post("/transcribe", s.handleTranscribe)
	return r
}

// Run serves until ctx cancellation.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleState answers the 2s reconciliation poll. It must stay fast;
// a slow answer is treated as unavailable by the caller.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{State: string(snap.State), SessionID: snap.SessionID})
}

// handleTranscribe runs a one-shot transcription outside the session
// lifecycle. The duration hint drives the adaptive deadline.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	duration := parseDurationSeconds(r.URL.Query().Get("duration_seconds"))

	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_audio", Message: "The upload could not be read."})
		return
	}

	// Outer cap at the surface deadline. The transcriber applies the
	// tighter background deadline inside it, so the upstream call gives
	// up and reports cleanly before this expires.
	ctx, cancel := context.WithTimeout(r.Context(), executor.SurfaceDeadline(duration))
	defer cancel()

	text, err := s.transcriber.Transcribe(ctx, audio, duration)
	if err != nil {
		kind := executor.Classify(err)
		s.logger.Warn("transcribe endpoint failure", "kind", string(kind), "error", err)
		writeJSON(w, statusForKind(kind), errorResponse{Error: string(kind), Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{Text: text})
}

func statusForKind(kind executor.Kind) int {
	switch kind {
	case executor.KindTimeout:
		return http.StatusGatewayTimeout
	case executor.KindInvalidAudio:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func parseDurationSeconds(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
