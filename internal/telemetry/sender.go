package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPSender posts batches to /track and crash reports to /crash.
type HTTPSender struct {
	http     *http.Client
	endpoint string
}

func NewHTTPSender(endpoint string) *HTTPSender {
	return &HTTPSender{
		http:     &http.Client{},
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

func (s *HTTPSender) SendBatch(ctx context.Context, events []Event) error {
	payload := struct {
		Events []Event `json:"events"`
	}{Events: events}
	return s.post(ctx, s.endpoint+"/track", payload)
}

func (s *HTTPSender) SendCrash(ctx context.Context, event Event) error {
	return s.post(ctx, s.endpoint+"/crash", event)
}

func (s *HTTPSender) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode telemetry payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint status %d", resp.StatusCode)
	}
	return nil
}
