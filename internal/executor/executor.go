// Package executor runs transcription requests under the adaptive
// deadline policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// fallbackDeadline applies when the capture duration is unknown.
const fallbackDeadline = 150 * time.Second

// Kind classifies a transcription failure.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindUpstreamError Kind = "upstream_error"
	KindInvalidAudio  Kind = "invalid_audio"
)

// Error is a classified transcription failure. Message is plain
// language and safe to surface; Err retains the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Classify extracts the failure kind, defaulting to upstream error.
func Classify(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUpstreamError
}

// BackgroundDeadline is the internal limit on one transcription
// attempt: twice the audio duration plus 30 seconds of headroom, so a
// long recording is never cut off by a flat timeout.
func BackgroundDeadline(d time.Duration) time.Duration {
	if d <= 0 {
		return fallbackDeadline
	}
	return 2*d + 30*time.Second
}

// SurfaceDeadline is the user-facing limit, a minute beyond the
// background one so the user never sees a spinner outlive the request.
func SurfaceDeadline(d time.Duration) time.Duration {
	if d <= 0 {
		return fallbackDeadline
	}
	return 2*d + 90*time.Second
}

// Client performs the actual upstream transcription call.
type Client interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Executor wraps a Client with the deadline policy. Reaching the
// deadline actively cancels the in-flight request; there are no
// automatic retries, the user decides when to spend another attempt.
type Executor struct {
	logger *slog.Logger
	client Client
}

func New(logger *slog.Logger, client Client) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{logger: logger, client: client}
}

// Transcribe runs one attempt with the background deadline derived
// from the capture duration.
func (e *Executor) Transcribe(ctx context.Context, audio []byte, duration time.Duration) (string, error) {
	deadline := BackgroundDeadline(duration)
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	text, err := e.client.Transcribe(ctx, audio)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("transcription timed out", "deadline", deadline, "elapsed", time.Since(start))
			return "", &Error{
				Kind:    KindTimeout,
				Message: "Transcription is taking too long. Your recording is safe. Please try again.",
				Err:     err,
			}
		}
		var te *Error
		if errors.As(err, &te) {
			return "", te
		}
		return "", &Error{
			Kind:    KindUpstreamError,
			Message: "Transcription failed. Your recording is safe. Please try again.",
			Err:     fmt.Errorf("transcribe upstream: %w", err),
		}
	}
	return text, nil
}
