package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPSenderBatch(t *testing.T) {
	var got struct {
		Events []Event `json:"events"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/track", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL)
	events := []Event{
		{UserID: "u", EventName: "recording_started", Timestamp: time.Now().UTC()},
		{UserID: "u", EventName: "transcription_completed", Timestamp: time.Now().UTC()},
	}
	require.NoError(t, sender.SendBatch(context.Background(), events))
	require.Len(t, got.Events, 2)
	require.Equal(t, "recording_started", got.Events[0].EventName)
}

func TestHTTPSenderCrash(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crash", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL)
	require.NoError(t, sender.SendCrash(context.Background(), Event{EventName: "crash", UserID: "u"}))
	require.Equal(t, "crash", got.EventName)
}

func TestHTTPSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL)
	err := sender.SendBatch(context.Background(), []Event{{EventName: "x"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestLoadOrCreateUserID(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateUserID(dir)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := LoadOrCreateUserID(dir)
	require.NoError(t, err)
	require.Equal(t, id, again, "identity must be stable across runs")
}

func TestLoadOrCreateUserIDReplacesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "identity"), []byte("not-a-uuid"), 0o600))

	id, err := LoadOrCreateUserID(dir)
	require.NoError(t, err)
	require.NotEqual(t, "not-a-uuid", id)
}
