package pipeline

import (
	"errors"
	"testing"

	"subgen/internal/logging"
	"subgen/internal/progress"
	"subgen/internal/services"
	"subgen/internal/stages"
	"subgen/internal/subtitle"
	"subgen/internal/task"
	"subgen/internal/testsupport"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	env := &stages.Env{
		Config:   cfg,
		Registry: testsupport.MustNewRegistry(t, cfg),
		Bus:      progress.NewBus(),
		Logger:   logging.NewNop(),
	}
	return NewRunner(env)
}

func processingTask(t *testing.T, r *Runner, opts task.Options) *task.Task {
	t.Helper()
	ctx := t.Context()
	created, err := r.env.Registry.Create(ctx, "/media/clip.mp4", 1024, opts)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.env.Registry.Transition(ctx, created.ID, task.StatusProcessing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	return created
}

func TestPlanSelectsStagesFromOptions(t *testing.T) {
	r := newTestRunner(t)

	// Default config sets no target language, so translation is opt-in.
	base := r.Plan(&task.Task{})
	if len(base) != 4 {
		t.Fatalf("base plan has %d stages, want 4", len(base))
	}

	withLang := r.Plan(&task.Task{Options: task.Options{TargetLang: "fr"}})
	if len(withLang) != 5 {
		t.Fatalf("translate plan has %d stages, want 5", len(withLang))
	}
	if _, ok := withLang[4].(*stages.Translate); !ok {
		t.Fatalf("last stage is %T, want *stages.Translate", withLang[4])
	}

	full := r.Plan(&task.Task{Options: task.Options{TargetLang: "fr", Synthesize: true}})
	if len(full) != 6 {
		t.Fatalf("full plan has %d stages, want 6", len(full))
	}
	if _, ok := full[5].(*stages.Synthesize); !ok {
		t.Fatalf("last stage is %T, want *stages.Synthesize", full[5])
	}
}

func TestPlanFallsBackToConfiguredTarget(t *testing.T) {
	r := newTestRunner(t)
	r.env.Config.Translation.TargetLang = "zh"

	plan := r.Plan(&task.Task{})
	if len(plan) != 5 {
		t.Fatalf("plan has %d stages, want 5 with configured target", len(plan))
	}
}

func TestCompleteStampsTask(t *testing.T) {
	r := newTestRunner(t)
	created := processingTask(t, r, task.Options{})

	sub := r.env.Bus.Subscribe(created.ID, 8)
	defer sub.Close()

	outcome, err := r.complete(created.ID, r.logger)
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("complete = %v, %v", outcome, err)
	}

	got, _ := r.env.Registry.Get(created.ID)
	if got.Status != task.StatusCompleted || got.Progress != 100 {
		t.Fatalf("task = %s %.0f", got.Status, got.Progress)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt should be stamped")
	}

	evt := <-sub.Events()
	if evt.Kind != progress.KindCompleted {
		t.Fatalf("event kind = %s", evt.Kind)
	}
}

func TestFailRecordsCause(t *testing.T) {
	r := newTestRunner(t)
	created := processingTask(t, r, task.Options{})

	cause := services.Wrap(services.ErrFatal, "sensevoice", "transcribe", "bad request", errors.New("400"))
	outcome, err := r.fail(created.ID, cause, r.logger)
	if outcome != OutcomeFailed || !errors.Is(err, services.ErrFatal) {
		t.Fatalf("fail = %v, %v", outcome, err)
	}

	got, _ := r.env.Registry.Get(created.ID)
	if got.Status != task.StatusFailed || got.Stage != task.StageFailed {
		t.Fatalf("task = %s %s", got.Status, got.Stage)
	}
	if got.Error == "" {
		t.Fatal("error message should be recorded")
	}
}

func TestCancelKeepsSubtitles(t *testing.T) {
	r := newTestRunner(t)
	created := processingTask(t, r, task.Options{})
	ctx := t.Context()
	if _, err := r.env.Registry.Update(ctx, created.ID, func(tk *task.Task) error {
		tk.Subtitles = []subtitle.Entry{{ID: 1, Start: 1, End: 2, Text: "kept"}}
		return nil
	}); err != nil {
		t.Fatalf("seed subtitles: %v", err)
	}

	outcome, err := r.cancel(created.ID, r.logger)
	if err != nil || outcome != OutcomeCancelled {
		t.Fatalf("cancel = %v, %v", outcome, err)
	}

	got, _ := r.env.Registry.Get(created.ID)
	if got.Status != task.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.Subtitles) != 1 || got.Subtitles[0].Text != "kept" {
		t.Fatalf("subtitles lost: %+v", got.Subtitles)
	}
}

func TestCancelAlreadyCancelledDoesNotRepublish(t *testing.T) {
	r := newTestRunner(t)
	created := processingTask(t, r, task.Options{})
	ctx := t.Context()
	if _, err := r.env.Registry.Transition(ctx, created.ID, task.StatusCancelled); err != nil {
		t.Fatalf("transition: %v", err)
	}

	sub := r.env.Bus.Subscribe(created.ID, 8)
	defer sub.Close()

	outcome, err := r.cancel(created.ID, r.logger)
	if err != nil || outcome != OutcomeCancelled {
		t.Fatalf("cancel = %v, %v", outcome, err)
	}
	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected %s event for already cancelled task", evt.Kind)
	default:
	}
}

func TestCancelAfterTerminalIsNoop(t *testing.T) {
	r := newTestRunner(t)
	created := processingTask(t, r, task.Options{})
	if _, err := r.complete(created.ID, r.logger); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := r.cancel(created.ID, r.logger); err != nil {
		t.Fatalf("cancel after complete: %v", err)
	}
	got, _ := r.env.Registry.Get(created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("terminal status overwritten: %s", got.Status)
	}
}
