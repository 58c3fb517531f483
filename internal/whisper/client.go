// Package whisper calls the OpenAI-compatible audio transcription API.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rbright/stories/internal/config"
	"github.com/rbright/stories/internal/executor"
)

// Client posts captured audio to the transcription endpoint. Request
// lifetimes are bounded by the caller's context; the http.Client
// itself carries no timeout.
type Client struct {
	logger   *slog.Logger
	http     *http.Client
	endpoint string
	apiKey   string
	model    string
	language string
	prompt   string
}

// New builds a client from resolved configuration. The dictionary
// prompt is computed once here; BuildPrompt warnings are the loader's
// concern.
func New(logger *slog.Logger, cfg config.Config) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	prompt, _, _ := config.BuildPrompt(cfg)
	return &Client{
		logger:   logger,
		http:     &http.Client{},
		endpoint: strings.TrimRight(cfg.Upstream.Endpoint, "/") + "/audio/transcriptions",
		apiKey:   cfg.Upstream.APIKey,
		model:    cfg.Upstream.Model,
		language: cfg.Upstream.Language,
		prompt:   prompt,
	}
}

// Transcribe submits one WAV capture and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", &executor.Error{
			Kind:    executor.KindInvalidAudio,
			Message: "The recording was empty. Check your microphone and try again.",
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio part: %w", err)
	}

	_ = writer.WriteField("model", c.model)
	_ = writer.WriteField("response_format", "json")
	if c.language != "" {
		_ = writer.WriteField("language", c.language)
	}
	if c.prompt != "" {
		_ = writer.WriteField("prompt", c.prompt)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("transcription request rejected",
			"status", resp.StatusCode, "latency", time.Since(start))
		return "", statusError(resp.StatusCode, payload)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", &executor.Error{
			Kind:    executor.KindUpstreamError,
			Message: "The transcription service returned an unreadable response. Please try again.",
			Err:     fmt.Errorf("decode transcription response: %w", err),
		}
	}

	c.logger.Info("transcription response received", "latency", time.Since(start), "chars", len(result.Text))
	return result.Text, nil
}

// statusError translates a provider failure into a plain-language
// message. Raw provider errors never reach the user.
func statusError(status int, payload []byte) error {
	cause := fmt.Errorf("upstream status %d: %s", status, strings.TrimSpace(string(payload)))

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &executor.Error{
			Kind:    executor.KindUpstreamError,
			Message: "The transcription service rejected your API key. Check your configuration.",
			Err:     cause,
		}
	case status == http.StatusPaymentRequired:
		return &executor.Error{
			Kind:    executor.KindUpstreamError,
			Message: "Your transcription account is out of credit.",
			Err:     cause,
		}
	case status == http.StatusRequestEntityTooLarge:
		return &executor.Error{
			Kind:    executor.KindInvalidAudio,
			Message: "The recording is too large to transcribe. Try a shorter recording.",
			Err:     cause,
		}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &executor.Error{
			Kind:    executor.KindInvalidAudio,
			Message: "The recording could not be processed. Check your microphone and try again.",
			Err:     cause,
		}
	case status == http.StatusTooManyRequests:
		return &executor.Error{
			Kind:    executor.KindUpstreamError,
			Message: "The transcription service is busy right now. Please try again in a moment.",
			Err:     cause,
		}
	case status >= 500:
		return &executor.Error{
			Kind:    executor.KindUpstreamError,
			Message: "The transcription service is temporarily unavailable. Please try again.",
			Err:     cause,
		}
	default:
		return &executor.Error{
			Kind:    executor.KindUpstreamError,
			Message: "Transcription failed. Please try again.",
			Err:     cause,
		}
	}
}
