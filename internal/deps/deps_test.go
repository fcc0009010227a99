package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"subgen/internal/config"
)

func stubBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func TestCheckFindsStubbedBinaries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs are not executable on windows")
	}
	dir := t.TempDir()
	stubBinary(t, dir, "ffmpeg")
	stubBinary(t, dir, "ffprobe")
	t.Setenv("PATH", dir)

	cfg := config.Default()
	statuses := Check(ForConfig(&cfg))
	if len(statuses) != 2 {
		t.Fatalf("statuses = %+v", statuses)
	}
	for _, status := range statuses {
		if !status.Available {
			t.Fatalf("%s should be available: %s", status.Name, status.Detail)
		}
		if filepath.Dir(status.Command) != dir {
			t.Fatalf("%s resolved outside stub dir: %s", status.Name, status.Command)
		}
	}
}

func TestCheckReportsMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	statuses := Check([]Requirement{{Name: "FFmpeg", Command: "ffmpeg"}})
	if statuses[0].Available {
		t.Fatal("ffmpeg should be missing")
	}
	if statuses[0].Detail == "" {
		t.Fatal("missing binary should carry a detail message")
	}
}

func TestCheckHonorsConfiguredPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs are not executable on windows")
	}
	dir := t.TempDir()
	custom := stubBinary(t, dir, "ffmpeg-custom")

	cfg := config.Default()
	cfg.Media.FFmpegPath = custom
	reqs := ForConfig(&cfg)
	if reqs[0].Command != custom {
		t.Fatalf("requirement command = %s", reqs[0].Command)
	}
	statuses := Check(reqs[:1])
	if !statuses[0].Available {
		t.Fatalf("custom path should resolve: %s", statuses[0].Detail)
	}
}
