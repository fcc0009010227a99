// Package pipeline drives a task through its ordered stage list and owns the
// terminal bookkeeping: completion, failure, pause, and cancellation.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"subgen/internal/logging"
	"subgen/internal/progress"
	"subgen/internal/services"
	"subgen/internal/stage"
	"subgen/internal/stages"
	"subgen/internal/task"
)

// Outcome is how a pipeline run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePaused    Outcome = "paused"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Runner executes pipelines.
type Runner struct {
	env    *stages.Env
	logger *slog.Logger
}

// NewRunner builds a runner over the stage environment.
func NewRunner(env *stages.Env) *Runner {
	return &Runner{env: env, logger: logging.NewComponentLogger(env.Logger, "pipeline")}
}

// Plan returns the ordered stage list for a task based on its options.
// Translation joins when a target language is set; synthesis when requested.
func (r *Runner) Plan(t *task.Task) []stage.Executor {
	execs := []stage.Executor{
		stages.NewExtract(r.env),
		stages.NewVAD(r.env),
		stages.NewTranscribe(r.env),
		stages.NewGenerate(r.env),
	}
	targetLang := t.Options.TargetLang
	if targetLang == "" {
		targetLang = r.env.Config.Translation.TargetLang
	}
	if targetLang != "" {
		execs = append(execs, stages.NewTranslate(r.env))
	}
	if t.Options.Synthesize {
		execs = append(execs, stages.NewSynthesize(r.env))
	}
	return execs
}

// Run drives the task through its stages. The caller owns the task's
// processing status; Run applies the terminal or paused transition that
// matches the outcome. Cancellation preserves whatever subtitles exist.
func (r *Runner) Run(ctx context.Context, taskID string, cp *stage.Checkpoint) (Outcome, error) {
	t, err := r.env.Registry.Get(taskID)
	if err != nil {
		return OutcomeFailed, err
	}
	logger := r.logger.With(logging.String(logging.FieldTaskID, taskID))

	for _, exec := range r.Plan(t) {
		runErr := exec.Run(ctx, taskID, cp)
		switch {
		case runErr == nil:
			continue
		case errors.Is(runErr, stage.ErrPaused):
			return r.pause(taskID, logger)
		case errors.Is(runErr, context.Canceled) || ctx.Err() != nil:
			return r.cancel(taskID, logger)
		default:
			return r.fail(taskID, runErr, logger)
		}
	}
	return r.complete(taskID, logger)
}

func (r *Runner) complete(taskID string, logger *slog.Logger) (Outcome, error) {
	ctx := context.Background()
	updated, err := r.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		if err := t.Transition(task.StatusCompleted); err != nil {
			return err
		}
		t.EnterStage(task.StageCompleted, "Completed")
		return nil
	})
	if err != nil {
		return OutcomeFailed, err
	}
	r.publish(updated, progress.KindCompleted, "")
	logger.Info("task completed", logging.Int("cues", len(updated.Subtitles)))
	return OutcomeCompleted, nil
}

func (r *Runner) pause(taskID string, logger *slog.Logger) (Outcome, error) {
	ctx := context.Background()
	updated, err := r.env.Registry.Transition(ctx, taskID, task.StatusPaused)
	if err != nil {
		return OutcomeFailed, err
	}
	r.publish(updated, progress.KindPaused, "")
	logger.Info("task paused", logging.String(logging.FieldStage, string(updated.Stage)))
	return OutcomePaused, nil
}

func (r *Runner) cancel(taskID string, logger *slog.Logger) (Outcome, error) {
	ctx := context.Background()
	transitioned := false
	updated, err := r.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		if t.Terminal() {
			return nil
		}
		if err := t.Transition(task.StatusCancelled); err != nil {
			return err
		}
		t.ProgressMessage = "Cancelled"
		transitioned = true
		return nil
	})
	if err != nil {
		return OutcomeFailed, err
	}
	// Already terminal means someone else (an abandoning cancel, a racing
	// completion) published the terminal event; don't repeat it.
	if !transitioned {
		return OutcomeCancelled, nil
	}
	r.publish(updated, progress.KindCancelled, "")
	logger.Info("task cancelled", logging.Int("cues_kept", len(updated.Subtitles)))
	return OutcomeCancelled, nil
}

func (r *Runner) fail(taskID string, cause error, logger *slog.Logger) (Outcome, error) {
	ctx := context.Background()
	message := services.Message(cause)
	updated, err := r.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		if err := t.Transition(task.StatusFailed); err != nil {
			return err
		}
		t.Stage = task.StageFailed
		t.Error = message
		t.ProgressMessage = message
		return nil
	})
	if err != nil {
		return OutcomeFailed, err
	}
	r.publish(updated, progress.KindFailed, message)
	logger.Error("task failed", logging.Error(cause))
	return OutcomeFailed, cause
}

func (r *Runner) publish(t *task.Task, kind progress.Kind, errMessage string) {
	r.env.Bus.Publish(progress.Event{
		TaskID:   t.ID,
		Kind:     kind,
		Stage:    t.Stage,
		Progress: t.Progress,
		Message:  t.ProgressMessage,
		Error:    errMessage,
	})
}
