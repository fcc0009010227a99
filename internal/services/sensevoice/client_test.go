package sensevoice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/services"
)

func writeFakeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFFfakeWAVEdata"), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.ASR{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "FunAudioLLM/SenseVoiceSmall",
	}, logging.NewNop())
}

func TestTranscribeCleansTags(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if model := r.FormValue("model"); model != "FunAudioLLM/SenseVoiceSmall" {
			t.Errorf("model = %q", model)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"<|zh|><|NEUTRAL|> 你好世界 ","language":"zh"}`))
	})

	result, err := client.Transcribe(context.Background(), writeFakeWAV(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "你好世界" {
		t.Fatalf("Text = %q", result.Text)
	}
	if result.Confidence != 1 {
		t.Fatalf("Confidence = %v", result.Confidence)
	}
}

func TestTranscribeEmptyResultIsNotError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":""}`))
	})
	result, err := client.Transcribe(context.Background(), writeFakeWAV(t))
	if err != nil {
		t.Fatalf("silence should not error: %v", err)
	}
	if result.Text != "" || result.Confidence != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTranscribeAuthFailureIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})
	_, err := client.Transcribe(context.Background(), writeFakeWAV(t))
	if !services.IsFatal(err) {
		t.Fatalf("401 should be fatal, got %v", err)
	}
}

func TestTranscribeServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := client.Transcribe(context.Background(), writeFakeWAV(t))
	if !services.IsTransient(err) {
		t.Fatalf("503 should be transient, got %v", err)
	}
}

func TestTranscribeRateLimitIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.Transcribe(context.Background(), writeFakeWAV(t))
	if !services.IsTransient(err) {
		t.Fatalf("429 should be transient, got %v", err)
	}
}

func TestCheckAPIKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	if err := client.CheckAPIKey(context.Background()); err != nil {
		t.Fatalf("CheckAPIKey failed: %v", err)
	}
}

func TestCheckAPIKeyRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	if err := client.CheckAPIKey(context.Background()); !services.IsFatal(err) {
		t.Fatalf("403 should be fatal, got %v", err)
	}
}

func TestCleanTranscript(t *testing.T) {
	cases := map[string]string{
		"<|en|><|HAPPY|>hello":  "hello",
		"plain text":            "plain text",
		"  padded  ":            "padded",
		"<|zh|>你好<|EMO_UNKNOWN|>": "你好",
	}
	for input, want := range cases {
		if got := cleanTranscript(input); got != want {
			t.Errorf("cleanTranscript(%q) = %q, want %q", input, got, want)
		}
	}
}
