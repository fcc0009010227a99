package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.Translation{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "Qwen/Qwen2.5-7B-Instruct",
	}, logging.NewNop())
}

func completion(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestTranslateBatchRoundTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected system+user messages, got %d", len(req.Messages))
		}
		if !strings.Contains(req.Messages[0].Content, "Chinese") {
			t.Errorf("system prompt should name the target language: %q", req.Messages[0].Content)
		}
		if !strings.Contains(req.Messages[1].Content, "1. hello") {
			t.Errorf("user message should be numbered: %q", req.Messages[1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("1. 你好\n2. 世界"))
	})

	got, err := client.TranslateBatch(context.Background(), []string{"hello", "world"}, "zh")
	if err != nil {
		t.Fatalf("TranslateBatch failed: %v", err)
	}
	if len(got) != 2 || got[0] != "你好" || got[1] != "世界" {
		t.Fatalf("unexpected translations: %v", got)
	}
}

func TestTranslateBatchEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty batch")
	})
	got, err := client.TranslateBatch(context.Background(), nil, "zh")
	if err != nil || got != nil {
		t.Fatalf("empty batch should no-op, got %v / %v", got, err)
	}
}

func TestTranslateBatchMalformedCompletionIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("sorry, I cannot help with that"))
	})
	_, err := client.TranslateBatch(context.Background(), []string{"hello"}, "zh")
	if !services.IsTransient(err) {
		t.Fatalf("malformed completion should be transient, got %v", err)
	}
}

func TestTranslateBatchAuthFailureIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := client.TranslateBatch(context.Background(), []string{"hello"}, "zh")
	if !services.IsFatal(err) {
		t.Fatalf("401 should be fatal, got %v", err)
	}
}

func TestParseNumberedVariants(t *testing.T) {
	content := "1. first\n\n2: second\n3. third"
	got, err := parseNumbered(content, 3)
	if err != nil {
		t.Fatalf("parseNumbered failed: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i+1, got[i], want[i])
		}
	}
}

func TestParseNumberedMissingLines(t *testing.T) {
	if _, err := parseNumbered("1. only", 2); err == nil {
		t.Fatal("expected error for missing lines")
	}
}

func TestLanguageName(t *testing.T) {
	cases := map[string]string{
		"zh": "Chinese",
		"en": "English",
		"ja": "Japanese",
		"":   "Chinese",
		"!!": "!!",
	}
	for tag, want := range cases {
		if got := LanguageName(tag); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", tag, got, want)
		}
	}
}
