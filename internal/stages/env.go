// Package stages implements the pipeline stage executors: audio extraction,
// voice activity detection, transcription, subtitle generation, translation,
// and synthesis. Each executor persists its results through the registry so a
// paused task resumes from the persisted data instead of redoing work.
package stages

import (
	"context"
	"log/slog"

	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/media"
	"subgen/internal/progress"
	"subgen/internal/registry"
	"subgen/internal/services/sensevoice"
	"subgen/internal/stage"
	"subgen/internal/task"
)

// Recognizer converts one audio clip into text.
type Recognizer interface {
	Transcribe(ctx context.Context, wavPath string) (sensevoice.Result, error)
}

// Translator converts a batch of lines into the target language.
type Translator interface {
	TranslateBatch(ctx context.Context, lines []string, targetLang string) ([]string, error)
}

// SpeechDetector finds voice-active spans in a WAV file.
type SpeechDetector interface {
	DetectFile(path string) ([]media.Span, error)
}

// Env bundles the dependencies shared by all stage executors.
type Env struct {
	Config     *config.Config
	Registry   *registry.Registry
	Bus        *progress.Bus
	Tool       media.Tool
	Detector   SpeechDetector
	Recognizer Recognizer
	Translator Translator
	// NetLimiter bounds concurrent provider calls across all tasks.
	NetLimiter *stage.Limiter
	Retry      stage.RetryPolicy
	Logger     *slog.Logger
}

// All returns the full ordered executor list. The pipeline runner selects
// the subset a task actually needs from its options.
func (e *Env) All() []stage.Executor {
	return []stage.Executor{
		NewExtract(e),
		NewVAD(e),
		NewTranscribe(e),
		NewGenerate(e),
		NewTranslate(e),
		NewSynthesize(e),
	}
}

func (e *Env) componentLogger(component string) *slog.Logger {
	return logging.NewComponentLogger(e.Logger, component)
}

// enterStage moves the task into a stage and announces it on the bus.
func (e *Env) enterStage(ctx context.Context, taskID string, st task.Stage, message string) (*task.Task, error) {
	updated, err := e.Registry.Update(ctx, taskID, func(t *task.Task) error {
		t.EnterStage(st, message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishProgress(updated, progress.KindProgress)
	return updated, nil
}

// setProgress bumps the task's progress and announces it.
func (e *Env) setProgress(ctx context.Context, taskID string, percent float64, message string, kind progress.Kind) error {
	updated, err := e.Registry.Update(ctx, taskID, func(t *task.Task) error {
		t.SetProgress(percent, message)
		return nil
	})
	if err != nil {
		return err
	}
	e.publishProgress(updated, kind)
	return nil
}

func (e *Env) publishProgress(t *task.Task, kind progress.Kind) {
	e.Bus.Publish(progress.Event{
		TaskID:   t.ID,
		Kind:     kind,
		Stage:    t.Stage,
		Progress: t.Progress,
		Message:  t.ProgressMessage,
	})
}

// stagePassed reports whether the persisted task stage is already past st,
// meaning the stage completed in a previous run.
func stagePassed(t *task.Task, st task.Stage) bool {
	return task.StageFloor(t.Stage) > task.StageFloor(st)
}

// span maps progress within a stage's share of the pipeline. done/total
// scales between the stage floor and the next stage's floor.
func stageSpan(st, next task.Stage, done, total int) float64 {
	floor := task.StageFloor(st)
	ceil := task.StageFloor(next)
	if total <= 0 {
		return floor
	}
	return floor + (ceil-floor)*float64(done)/float64(total)
}
