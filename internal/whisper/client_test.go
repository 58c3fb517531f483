package whisper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/stories/internal/config"
	"github.com/rbright/stories/internal/executor"
)

func testConfig(endpoint string) config.Config {
	cfg := config.Default()
	cfg.Upstream.Endpoint = endpoint
	cfg.Upstream.APIKey = "sk-test"
	cfg.Upstream.Model = "whisper-1"
	cfg.Upstream.Language = "en"
	cfg.Dictionary.Enabled = true
	cfg.Dictionary.Words = []string{"Kubernetes", "PostgreSQL"}
	return cfg
}

func TestTranscribeSendsMultipartRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "whisper-1", r.FormValue("model"))
		require.Equal(t, "en", r.FormValue("language"))
		require.Equal(t, "Kubernetes, PostgreSQL", r.FormValue("prompt"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		audio, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, []byte("wav-data"), audio)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello from whisper"}`))
	}))
	defer srv.Close()

	client := New(nil, testConfig(srv.URL))
	text, err := client.Transcribe(context.Background(), []byte("wav-data"))
	require.NoError(t, err)
	require.Equal(t, "hello from whisper", text)
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	client := New(nil, testConfig("http://127.0.0.1:1"))
	_, err := client.Transcribe(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, executor.KindInvalidAudio, executor.Classify(err))
}

func TestTranscribeTranslatesProviderFailures(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		wantKind executor.Kind
		wantMsg  string
	}{
		{"unauthorized", http.StatusUnauthorized, executor.KindUpstreamError, "API key"},
		{"quota exhausted", http.StatusPaymentRequired, executor.KindUpstreamError, "out of credit"},
		{"oversized audio", http.StatusRequestEntityTooLarge, executor.KindInvalidAudio, "too large"},
		{"bad audio", http.StatusBadRequest, executor.KindInvalidAudio, "could not be processed"},
		{"rate limited", http.StatusTooManyRequests, executor.KindUpstreamError, "busy right now"},
		{"server error", http.StatusBadGateway, executor.KindUpstreamError, "temporarily unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"internal provider detail"}}`))
			}))
			defer srv.Close()

			client := New(nil, testConfig(srv.URL))
			_, err := client.Transcribe(context.Background(), []byte("wav"))
			require.Error(t, err)
			require.Equal(t, tc.wantKind, executor.Classify(err))
			require.Contains(t, err.Error(), tc.wantMsg)
			require.NotContains(t, err.Error(), "internal provider detail")
		})
	}
}

func TestTranscribeMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := New(nil, testConfig(srv.URL))
	_, err := client.Transcribe(context.Background(), []byte("wav"))
	require.Error(t, err)
	require.Equal(t, executor.KindUpstreamError, executor.Classify(err))
}
