package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"subgen/internal/logging"
	"subgen/internal/progress"
	"subgen/internal/services"
	"subgen/internal/stage"
	"subgen/internal/subtitle"
	"subgen/internal/task"
)

// Transcribe recognizes each detected segment with the ASR provider. Segments
// run through a bounded worker pool and results merge into the subtitle list
// in timeline order as they complete. Each recognized segment is persisted
// immediately, so a pause mid-stage loses at most the in-flight segments.
type Transcribe struct {
	env    *Env
	logger *slog.Logger
}

func NewTranscribe(env *Env) *Transcribe {
	return &Transcribe{env: env, logger: env.componentLogger("transcribe")}
}

func (s *Transcribe) Stage() task.Stage { return task.StageTranscribing }

func (s *Transcribe) Run(ctx context.Context, taskID string, cp *stage.Checkpoint) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if stagePassed(t, task.StageTranscribing) {
		return nil
	}
	if err := cp.Check(ctx); err != nil {
		return err
	}

	if _, err := s.env.enterStage(ctx, taskID, task.StageTranscribing, "Transcribing"); err != nil {
		return err
	}

	total := len(t.Segments)
	if total == 0 {
		s.logger.Warn("no speech segments detected", logging.String(logging.FieldTaskID, taskID))
		return services.Wrap(services.ErrInvalidInput, "transcribing", "validate", "no speech segments detected", nil)
	}

	// Segment i owns subtitle ID i+1, so a resumed task can tell which
	// segments are already recognized.
	recognized := make(map[int]struct{}, len(t.Subtitles))
	for _, entry := range t.Subtitles {
		recognized[entry.ID] = struct{}{}
	}
	var pending []int
	for i := range t.Segments {
		if _, ok := recognized[i+1]; !ok {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	workers := s.env.Config.ASR.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		doneCount = total - len(pending)
	)
	jobs := make(chan int)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if failed() {
					continue
				}
				if err := cp.Check(ctx); err != nil {
					fail(err)
					continue
				}
				if err := s.recognizeSegment(ctx, taskID, t, idx, total, &mu, &doneCount); err != nil {
					fail(err)
				}
			}
		}()
	}

dispatch:
	for _, idx := range pending {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (s *Transcribe) recognizeSegment(ctx context.Context, taskID string, t *task.Task, idx, total int, mu *sync.Mutex, doneCount *int) error {
	seg := t.Segments[idx]
	clipPath := filepath.Join(s.env.Config.Paths.TempDir, fmt.Sprintf("%s_seg_%04d.wav", taskID, idx))

	if err := s.env.Tool.ExtractSegment(ctx, t.AudioPath, clipPath, seg.Start, seg.End-seg.Start); err != nil {
		return err
	}
	defer os.Remove(clipPath)

	var text string
	var confidence float64
	err := stage.WithRetry(ctx, s.env.Retry, s.logger, "transcribe segment", func(ctx context.Context) error {
		result, err := s.env.Recognizer.Transcribe(ctx, clipPath)
		if err != nil {
			return err
		}
		text = result.Text
		confidence = result.Confidence
		return nil
	})
	if err != nil {
		return err
	}

	mu.Lock()
	*doneCount++
	done := *doneCount
	mu.Unlock()
	percent := stageSpan(task.StageTranscribing, task.StageGenerating, done, total)

	if text == "" {
		// Silence or noise; nothing to merge but progress still moves.
		return s.env.setProgress(ctx, taskID, percent, fmt.Sprintf("Transcribed %d/%d segments", done, total), progress.KindProgress)
	}

	entry := subtitle.Entry{
		ID:         idx + 1,
		Start:      seg.Start,
		End:        seg.End,
		Text:       text,
		Confidence: confidence,
	}
	updated, err := s.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		t.Subtitles = subtitle.Merge(t.Subtitles, entry)
		t.SetProgress(percent, fmt.Sprintf("Transcribed %d/%d segments", done, total))
		return nil
	})
	if err != nil {
		return err
	}

	s.env.Bus.Publish(progress.Event{
		TaskID:   taskID,
		Kind:     progress.KindSubtitleAdded,
		Stage:    updated.Stage,
		Progress: updated.Progress,
		Message:  updated.ProgressMessage,
		Entry:    &entry,
	})
	return nil
}
