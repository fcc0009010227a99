package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subgen/internal/api"
	"subgen/internal/task"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTaskListRendersTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[
            {"id":"0123456789ab","fileName":"movie.mp4","status":"processing","stage":"transcribing","progress":42,"subtitles":[{"id":1}]}
        ]}`))
	}))
	defer server.Close()

	out, err := runCommand(t, "--address", server.URL, "task", "list")
	if err != nil {
		t.Fatalf("task list: %v", err)
	}
	for _, want := range []string{"01234567", "movie.mp4", "processing", "42%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestQueueStatusOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"running":2,"waiting":1,"counts":{"processing":2,"pending":1}}}`))
	}))
	defer server.Close()

	out, err := runCommand(t, "--address", server.URL, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "Running: 2") || !strings.Contains(out, "Waiting: 1") {
		t.Fatalf("missing counts:\n%s", out)
	}
	// pending sorts before processing in the canonical order
	if strings.Index(out, "pending") > strings.Index(out, "processing") {
		t.Fatalf("statuses out of order:\n%s", out)
	}
}

func TestTaskActionSurfacesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"error":"task is not running"}`))
	}))
	defer server.Close()

	_, err := runCommand(t, "--address", server.URL, "task", "pause", "abc")
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("err = %v", err)
	}
}

func TestExportWritesFile(t *testing.T) {
	const content = "1\n00:00:01,000 --> 00:00:02,000\nhello\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "out.srt")
	out, err := runCommand(t, "--address", server.URL, "export", "abc", "--output", target)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output missing path:\n%s", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read exported file: %v", err)
	}
	if string(data) != content {
		t.Fatalf("exported content = %q", data)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output missing path:\n%s", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[asr]") {
		t.Fatalf("sample missing asr section:\n%s", data)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init should refuse to overwrite")
	}
}

func TestConfigShowRedactsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte("[asr]\napi_key = \"secret-key-123\"\n"), 0o644)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCommand(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret-key-123") {
		t.Fatalf("api key leaked:\n%s", out)
	}
	if !strings.Contains(out, "secr****") {
		t.Fatalf("redacted key missing:\n%s", out)
	}
}

func TestBuildTaskRows(t *testing.T) {
	rows := buildTaskRows([]api.TaskView{{
		ID:       "abcdefgh1234",
		FileName: "clip.mp4",
		Status:   task.StatusPaused,
		Stage:    task.StageTranslating,
		Progress: 75.4,
	}})
	if len(rows) != 1 {
		t.Fatalf("rows = %v", rows)
	}
	row := rows[0]
	if row[0] != "abcdefgh" || row[2] != "paused" || row[4] != "75%" || row[5] != "0" {
		t.Fatalf("row = %v", row)
	}
}

func TestBuildStatusRowsOrder(t *testing.T) {
	rows := buildStatusRows(map[task.Status]int{
		task.StatusFailed:     1,
		task.StatusPending:    3,
		task.StatusProcessing: 2,
	})
	got := make([]string, len(rows))
	for i, row := range rows {
		got[i] = row[0]
	}
	want := []string{"pending", "processing", "failed"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
