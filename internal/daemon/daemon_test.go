package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"subgen/internal/logging"
	"subgen/internal/registry"
	"subgen/internal/task"
	"subgen/internal/testsupport"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func TestStartStopLifecycle(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}
	if d.Addr() == "" {
		t.Fatal("api address should be bound")
	}

	resp, err := http.Get("http://" + d.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon should be stopped")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	defer first.Close()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}

	second, err := New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	defer second.Close()
	if err := second.Start(ctx); err == nil {
		t.Fatal("second instance should fail to acquire the lock")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	second.Stop()
}

func TestMaintenanceSweep(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()
	cfg := d.cfg

	source := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteFile(t, source, 64)

	live, err := d.Registry().Create(ctx, source, 64, task.Options{})
	if err != nil {
		t.Fatalf("create live task: %v", err)
	}
	done, err := d.Registry().Create(ctx, source, 64, task.Options{})
	if err != nil {
		t.Fatalf("create done task: %v", err)
	}
	old := time.Now().UTC().AddDate(0, 0, -(cfg.Maintenance.CompletedRetentionDays + 1))
	if _, err := d.Registry().Update(ctx, done.ID, func(tk *task.Task) error {
		tk.Status = task.StatusCompleted
		tk.Stage = task.StageCompleted
		tk.CompletedAt = &old
		return nil
	}); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	liveAudio := filepath.Join(cfg.Paths.TempDir, live.ID+".wav")
	doneSegment := filepath.Join(cfg.Paths.TempDir, done.ID+"_seg_0001.wav")
	orphan := filepath.Join(cfg.Paths.TempDir, "deadbeef_burn.srt")
	for _, path := range []string{liveAudio, doneSegment, orphan} {
		testsupport.WriteFile(t, path, 16)
	}

	d.RunMaintenance(ctx)

	if _, err := os.Stat(liveAudio); err != nil {
		t.Fatalf("live task audio should survive: %v", err)
	}
	for _, path := range []string{doneSegment, orphan} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed", path)
		}
	}

	if _, err := d.Registry().Get(done.ID); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("completed task past retention should be pruned, got %v", err)
	}
	if _, err := d.Registry().Get(live.ID); err != nil {
		t.Fatalf("pending task should remain: %v", err)
	}
}
