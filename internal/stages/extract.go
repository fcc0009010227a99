package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"subgen/internal/logging"
	"subgen/internal/stage"
	"subgen/internal/task"
)

// Extract decodes the source file's audio track into the 16 kHz mono WAV the
// rest of the pipeline works on.
type Extract struct {
	env    *Env
	logger *slog.Logger
}

func NewExtract(env *Env) *Extract {
	return &Extract{env: env, logger: env.componentLogger("extract")}
}

func (s *Extract) Stage() task.Stage { return task.StageExtracting }

func (s *Extract) Run(ctx context.Context, taskID string, cp *stage.Checkpoint) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if t.AudioPath != "" {
		if _, statErr := os.Stat(t.AudioPath); statErr == nil {
			s.logger.Debug("audio already extracted", logging.String(logging.FieldTaskID, taskID))
			return nil
		}
	}
	if err := cp.Check(ctx); err != nil {
		return err
	}

	if _, err := s.env.enterStage(ctx, taskID, task.StageExtracting, "Extracting audio"); err != nil {
		return err
	}

	wavPath := filepath.Join(s.env.Config.Paths.TempDir, fmt.Sprintf("%s.wav", taskID))
	if err := s.env.Tool.ExtractAudio(ctx, t.SourcePath, wavPath); err != nil {
		return err
	}

	_, err = s.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		t.AudioPath = wavPath
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("audio extracted",
		logging.String(logging.FieldTaskID, taskID),
		logging.String("wav", wavPath))
	return nil
}
