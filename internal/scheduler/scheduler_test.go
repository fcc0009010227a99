package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"subgen/internal/logging"
	"subgen/internal/media"
	"subgen/internal/pipeline"
	"subgen/internal/progress"
	"subgen/internal/services/sensevoice"
	"subgen/internal/stage"
	"subgen/internal/stages"
	"subgen/internal/task"
	"subgen/internal/testsupport"
)

type fakeTool struct{}

func (fakeTool) Inspect(ctx context.Context, path string) (media.Info, error) {
	return media.Info{DurationSeconds: 10, HasAudio: true, HasVideo: true}, nil
}
func (fakeTool) ExtractAudio(ctx context.Context, sourcePath, wavPath string) error { return nil }
func (fakeTool) ExtractSegment(ctx context.Context, wavPath, outPath string, start, duration float64) error {
	return nil
}
func (fakeTool) Synthesize(ctx context.Context, sourcePath, outPath string, opts media.MixOptions) error {
	return nil
}

type fakeDetector struct {
	spans []media.Span
}

func (f *fakeDetector) DetectFile(path string) ([]media.Span, error) {
	return f.spans, nil
}

// gatedRecognizer blocks every Transcribe call until released.
type gatedRecognizer struct {
	mu      sync.Mutex
	gate    chan struct{}
	started chan struct{}
	calls   int
}

func newGatedRecognizer() *gatedRecognizer {
	return &gatedRecognizer{
		gate:    make(chan struct{}),
		started: make(chan struct{}, 64),
	}
}

func (g *gatedRecognizer) Transcribe(ctx context.Context, wavPath string) (sensevoice.Result, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.started <- struct{}{}
	select {
	case <-g.gate:
		return sensevoice.Result{Text: "line", Confidence: 1}, nil
	case <-ctx.Done():
		return sensevoice.Result{}, ctx.Err()
	}
}

func (g *gatedRecognizer) release() {
	close(g.gate)
}

type noopTranslator struct{}

func (noopTranslator) TranslateBatch(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

func newTestScheduler(t *testing.T, slots int, recognizer stages.Recognizer) (*Scheduler, *stages.Env) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxConcurrentTasks = slots
	cfg.Pipeline.CancelGraceMillis = 100
	cfg.ASR.Workers = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	env := &stages.Env{
		Config:     cfg,
		Registry:   testsupport.MustNewRegistry(t, cfg),
		Bus:        progress.NewBus(),
		Tool:       fakeTool{},
		Detector:   &fakeDetector{spans: []media.Span{{Start: 0, End: 1}, {Start: 2, End: 3}}},
		Recognizer: recognizer,
		Translator: noopTranslator{},
		NetLimiter: stage.NewLimiter(cfg.Pipeline.NetworkSlots),
		Retry: stage.RetryPolicy{
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			Sleep:          func(ctx context.Context, d time.Duration) error { return nil },
		},
		Logger: logging.NewNop(),
	}
	sched := New(env, pipeline.NewRunner(env))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	return sched, env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func createTask(t *testing.T, env *stages.Env, opts task.Options) string {
	t.Helper()
	created, err := env.Registry.Create(context.Background(), "/videos/movie.mp4", 0, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return created.ID
}

func status(t *testing.T, env *stages.Env, id string) task.Status {
	t.Helper()
	got, err := env.Registry.Get(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return got.Status
}

func TestConcurrencyBoundHolds(t *testing.T) {
	recognizer := newGatedRecognizer()
	sched, env := newTestScheduler(t, 2, recognizer)
	ctx := context.Background()

	ids := []string{
		createTask(t, env, task.Options{}),
		createTask(t, env, task.Options{}),
		createTask(t, env, task.Options{}),
	}
	for _, id := range ids {
		if err := sched.Submit(ctx, id); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	// Two tasks reach the blocking recognizer; the third waits in queue.
	<-recognizer.started
	<-recognizer.started

	if got := sched.RunningCount(); got != 2 {
		t.Fatalf("RunningCount = %d, want 2", got)
	}
	if got := status(t, env, ids[2]); got != task.StatusPending {
		t.Fatalf("third task should still be pending, got %s", got)
	}
	processing := env.Registry.List(task.StatusProcessing)
	if len(processing) != 2 {
		t.Fatalf("processing = %d, want 2", len(processing))
	}

	recognizer.release()
	waitFor(t, "all tasks completed", func() bool {
		for _, id := range ids {
			if status(t, env, id) != task.StatusCompleted {
				return false
			}
		}
		return true
	})
}

func TestAdmissionIsSynchronous(t *testing.T) {
	recognizer := newGatedRecognizer()
	sched, env := newTestScheduler(t, 1, recognizer)
	id := createTask(t, env, task.Options{})

	if err := sched.Submit(context.Background(), id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Admission transitions the status before Submit returns.
	if got := status(t, env, id); got != task.StatusProcessing {
		t.Fatalf("status after Submit = %s, want processing", got)
	}
	recognizer.release()
}

func TestPauseFreesSlotAndResumeContinues(t *testing.T) {
	recognizer := newGatedRecognizer()
	sched, env := newTestScheduler(t, 1, recognizer)
	ctx := context.Background()

	first := createTask(t, env, task.Options{})
	second := createTask(t, env, task.Options{})
	if err := sched.Submit(ctx, first); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	if err := sched.Submit(ctx, second); err != nil {
		t.Fatalf("submit second: %v", err)
	}

	<-recognizer.started
	if err := sched.PauseTask(first); err != nil {
		t.Fatalf("pause: %v", err)
	}
	recognizer.release()

	// The paused task yields its slot, the second task admits and runs to
	// completion on the released gate.
	waitFor(t, "first paused", func() bool { return status(t, env, first) == task.StatusPaused })
	waitFor(t, "second completed", func() bool { return status(t, env, second) == task.StatusCompleted })

	calls := recognizer.calls
	if err := sched.ResumeTask(ctx, first); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, "first completed", func() bool { return status(t, env, first) == task.StatusCompleted })

	got, _ := env.Registry.Get(first)
	if len(got.Subtitles) != 2 {
		t.Fatalf("resumed task should end with 2 cues, got %d", len(got.Subtitles))
	}
	// Resume only recognized the segments that were still missing.
	if resumed := recognizer.calls - calls; resumed > 2 {
		t.Fatalf("resume redid finished work: %d extra calls", resumed)
	}
}

func TestPauseRejectsNonProcessing(t *testing.T) {
	sched, env := newTestScheduler(t, 1, newGatedRecognizer())
	id := createTask(t, env, task.Options{})
	if err := sched.PauseTask(id); err == nil {
		t.Fatal("pausing a pending task should error")
	}
}

func TestCancelPendingIsIdempotent(t *testing.T) {
	sched, env := newTestScheduler(t, 1, newGatedRecognizer())
	ctx := context.Background()
	id := createTask(t, env, task.Options{})

	if err := sched.CancelTask(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := status(t, env, id); got != task.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	if err := sched.CancelTask(ctx, id); err != nil {
		t.Fatalf("second cancel should be a no-op: %v", err)
	}
}

func TestNoSpeechFailsTask(t *testing.T) {
	sched, env := newTestScheduler(t, 1, newGatedRecognizer())
	env.Detector = &fakeDetector{}
	ctx := context.Background()
	id := createTask(t, env, task.Options{})

	if err := sched.Submit(ctx, id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "task failed", func() bool { return status(t, env, id) == task.StatusFailed })

	got, _ := env.Registry.Get(id)
	if got.Stage != task.StageFailed || got.Error == "" {
		t.Fatalf("failure not recorded: stage=%s error=%q", got.Stage, got.Error)
	}
	if len(got.Subtitles) != 0 {
		t.Fatalf("no cues expected: %+v", got.Subtitles)
	}
}

// stubbornRecognizer ignores context cancellation until released, which
// forces a cancel to outlive its grace window.
type stubbornRecognizer struct {
	gate    chan struct{}
	started chan struct{}
}

func newStubbornRecognizer() *stubbornRecognizer {
	return &stubbornRecognizer{gate: make(chan struct{}), started: make(chan struct{}, 64)}
}

func (s *stubbornRecognizer) Transcribe(ctx context.Context, wavPath string) (sensevoice.Result, error) {
	s.started <- struct{}{}
	<-s.gate
	return sensevoice.Result{}, context.Canceled
}

func TestAbandonedCancelPublishesOnce(t *testing.T) {
	recognizer := newStubbornRecognizer()
	sched, env := newTestScheduler(t, 1, recognizer)
	ctx := context.Background()
	id := createTask(t, env, task.Options{})

	sub := env.Bus.Subscribe(id, 64)
	defer sub.Close()

	if err := sched.Submit(ctx, id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-recognizer.started

	// The stage never acknowledges, so the grace window expires and the
	// cancel abandons the task.
	if err := sched.CancelTask(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := status(t, env, id); got != task.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}

	close(recognizer.gate)
	waitFor(t, "runner exit", func() bool { return sched.RunningCount() == 0 })

	cancelled := 0
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == progress.KindCancelled {
				cancelled++
			}
			continue
		default:
		}
		break
	}
	if cancelled != 1 {
		t.Fatalf("cancelled events = %d, want 1", cancelled)
	}
}

func TestCancelRunningPreservesSubtitles(t *testing.T) {
	recognizer := newGatedRecognizer()
	sched, env := newTestScheduler(t, 1, recognizer)
	ctx := context.Background()
	id := createTask(t, env, task.Options{})

	if err := sched.Submit(ctx, id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-recognizer.started

	if err := sched.CancelTask(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitFor(t, "task cancelled", func() bool { return status(t, env, id) == task.StatusCancelled })

	got, _ := env.Registry.Get(id)
	if got.Error != "" {
		t.Fatalf("cancel is not a failure: %q", got.Error)
	}
}

func TestQueuePauseAndResume(t *testing.T) {
	recognizer := newGatedRecognizer()
	sched, env := newTestScheduler(t, 2, recognizer)
	ctx := context.Background()

	first := createTask(t, env, task.Options{})
	second := createTask(t, env, task.Options{})
	if err := sched.Submit(ctx, first); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-recognizer.started

	sched.PauseQueue()
	recognizer.release()
	waitFor(t, "first paused", func() bool { return status(t, env, first) == task.StatusPaused })

	// Admissions are closed while the queue is paused.
	if err := sched.Submit(ctx, second); err != nil {
		t.Fatalf("submit while paused: %v", err)
	}
	if got := status(t, env, second); got != task.StatusPending {
		t.Fatalf("second task should wait while queue paused, got %s", got)
	}

	sched.ResumeQueue(ctx)
	waitFor(t, "both completed", func() bool {
		return status(t, env, first) == task.StatusCompleted && status(t, env, second) == task.StatusCompleted
	})
}

func TestStartQueueSubmitsAllPending(t *testing.T) {
	recognizer := newGatedRecognizer()
	recognizer.release()
	sched, env := newTestScheduler(t, 3, recognizer)
	ctx := context.Background()

	ids := []string{
		createTask(t, env, task.Options{}),
		createTask(t, env, task.Options{}),
	}
	if added := sched.StartQueue(ctx); added != 2 {
		t.Fatalf("StartQueue added %d, want 2", added)
	}
	waitFor(t, "all completed", func() bool {
		for _, id := range ids {
			if status(t, env, id) != task.StatusCompleted {
				return false
			}
		}
		return true
	})
}
