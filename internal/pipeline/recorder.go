// Package pipeline owns the capture half of a recording session:
// device selection, PCM accumulation, and WAV packaging.
package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/stories/internal/audio"
	"github.com/rbright/stories/internal/config"
	"github.com/rbright/stories/internal/session"
)

// Recorder drives one pulse capture at a time.
type Recorder struct {
	cfg    config.Config
	logger *slog.Logger

	mu        sync.Mutex
	selection audio.Selection
	capture   *audio.Capture
}

func NewRecorder(cfg config.Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{cfg: cfg, logger: logger}
}

// Start resolves device selection and begins capturing.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capture != nil {
		return fmt.Errorf("capture already running")
	}

	selection, err := audio.SelectDevice(ctx, r.cfg.Audio.Input, r.cfg.Audio.Fallback)
	if err != nil {
		return err
	}
	if selection.Warning != "" {
		r.logger.Warn(selection.Warning)
	}

	capture, err := audio.StartCapture(ctx, selection.Device)
	if err != nil {
		return err
	}

	r.selection = selection
	r.capture = capture
	r.logger.Info("capture started", "device", selection.Device.ID)
	return nil
}

// Stop ends capture and packages the PCM as a WAV capture.
func (r *Recorder) Stop(_ context.Context) (session.Capture, error) {
	r.mu.Lock()
	capture := r.capture
	r.capture = nil
	r.mu.Unlock()

	if capture == nil {
		return session.Capture{}, fmt.Errorf("no capture running")
	}
	if err := capture.Stop(); err != nil {
		return session.Capture{}, fmt.Errorf("stop capture: %w", err)
	}

	pcm := capture.RawPCM()
	duration := PCMDuration(len(pcm))
	r.logger.Info("capture stopped",
		"device", capture.Device().ID,
		"bytes", capture.BytesCaptured(),
		"duration", duration,
	)
	return session.Capture{WAV: EncodeWAV(pcm), Duration: duration}, nil
}

// Cancel ends capture and discards the audio.
func (r *Recorder) Cancel(_ context.Context) error {
	r.mu.Lock()
	capture := r.capture
	r.capture = nil
	r.mu.Unlock()

	if capture == nil {
		return nil
	}
	r.logger.Info("capture discarded", "device", capture.Device().ID)
	return capture.Stop()
}

// PCMDuration derives the recording length from raw byte count at
// 16kHz mono s16.
func PCMDuration(byteCount int) time.Duration {
	seconds := float64(byteCount) / float64(audio.SampleRate*2)
	return time.Duration(seconds * float64(time.Second))
}

// EncodeWAV wraps raw PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := audio.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(audio.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
