package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"subgen/internal/logging"
	"subgen/internal/media"
	"subgen/internal/progress"
	"subgen/internal/stage"
	"subgen/internal/subtitle"
	"subgen/internal/task"
)

// Synthesize renders the final video with subtitles burned in. When a dub
// track exists for the task it is mixed over the original audio at the
// configured volumes.
type Synthesize struct {
	env    *Env
	logger *slog.Logger
}

func NewSynthesize(env *Env) *Synthesize {
	return &Synthesize{env: env, logger: env.componentLogger("synthesize")}
}

func (s *Synthesize) Stage() task.Stage { return task.StageSynthesizing }

func (s *Synthesize) Run(ctx context.Context, taskID string, cp *stage.Checkpoint) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if !t.Options.Synthesize {
		return nil
	}
	if t.OutputPath != "" {
		if _, statErr := os.Stat(t.OutputPath); statErr == nil {
			return nil
		}
	}
	if err := cp.Check(ctx); err != nil {
		return err
	}

	if _, err := s.env.enterStage(ctx, taskID, task.StageSynthesizing, "Rendering video"); err != nil {
		return err
	}

	mode := subtitle.ModeTranslated
	srtPath := filepath.Join(s.env.Config.Paths.TempDir, fmt.Sprintf("%s_burn.srt", taskID))
	if err := os.WriteFile(srtPath, []byte(subtitle.RenderSRT(t.Subtitles, mode)), 0o644); err != nil {
		return fmt.Errorf("write burn subtitles: %w", err)
	}
	defer os.Remove(srtPath)

	outPath := filepath.Join(s.env.Config.Paths.OutputDir, outputName(t.FileName))
	err = s.env.Tool.Synthesize(ctx, t.SourcePath, outPath, media.MixOptions{
		SubtitlePath:   srtPath,
		SubtitleStyle:  t.Options.SubtitleStyle,
		OriginalVolume: t.Options.OriginalVolume,
		DubVolume:      t.Options.DubVolume,
	})
	if err != nil {
		return err
	}

	updated, err := s.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		t.OutputPath = outPath
		t.SetProgress(99, "Video rendered")
		return nil
	})
	if err != nil {
		return err
	}
	s.env.publishProgress(updated, progress.KindSynthesisProgress)
	s.logger.Info("video rendered",
		logging.String(logging.FieldTaskID, taskID),
		logging.String("output", outPath))
	return nil
}

func outputName(fileName string) string {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	if base == "" {
		base = "output"
	}
	return base + "_subtitled.mp4"
}
