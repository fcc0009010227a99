package stages

import (
	"context"
	"log/slog"

	"subgen/internal/logging"
	"subgen/internal/stage"
	"subgen/internal/task"
)

// VAD detects voice-active spans in the extracted audio and persists them as
// the task's segment plan.
type VAD struct {
	env    *Env
	logger *slog.Logger
}

func NewVAD(env *Env) *VAD {
	return &VAD{env: env, logger: env.componentLogger("vad")}
}

func (s *VAD) Stage() task.Stage { return task.StageVAD }

func (s *VAD) Run(ctx context.Context, taskID string, cp *stage.Checkpoint) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if len(t.Segments) > 0 || stagePassed(t, task.StageVAD) {
		s.logger.Debug("segments already detected", logging.String(logging.FieldTaskID, taskID))
		return nil
	}
	if err := cp.Check(ctx); err != nil {
		return err
	}

	if _, err := s.env.enterStage(ctx, taskID, task.StageVAD, "Detecting speech"); err != nil {
		return err
	}

	spans, err := s.env.Detector.DetectFile(t.AudioPath)
	if err != nil {
		return err
	}

	segments := make([]task.Segment, 0, len(spans))
	for _, span := range spans {
		segments = append(segments, task.Segment{Start: span.Start, End: span.End})
	}

	_, err = s.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		t.Segments = segments
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("speech detected",
		logging.String(logging.FieldTaskID, taskID),
		logging.Int("segments", len(segments)))
	return nil
}
