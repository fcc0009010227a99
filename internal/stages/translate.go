package stages

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"subgen/internal/progress"
	"subgen/internal/stage"
	"subgen/internal/task"
)

// Translate sends untranslated cues to the translation provider in batches.
// Batches run through a bounded per-task worker pool and every provider call
// holds a slot on the global network limiter, so many translating tasks
// cannot stampede the provider. Completed batches persist immediately; a
// resumed task only translates what is still missing.
type Translate struct {
	env    *Env
	logger *slog.Logger
}

func NewTranslate(env *Env) *Translate {
	return &Translate{env: env, logger: env.componentLogger("translate")}
}

func (s *Translate) Stage() task.Stage { return task.StageTranslating }

type batch struct {
	ids   []int
	lines []string
}

func (s *Translate) Run(ctx context.Context, taskID string, cp *stage.Checkpoint) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	targetLang := t.Options.TargetLang
	if targetLang == "" {
		targetLang = s.env.Config.Translation.TargetLang
	}
	if targetLang == "" || stagePassed(t, task.StageTranslating) {
		return nil
	}
	if err := cp.Check(ctx); err != nil {
		return err
	}

	if _, err := s.env.enterStage(ctx, taskID, task.StageTranslating, "Translating"); err != nil {
		return err
	}

	batches := buildBatches(t, s.env.Config.Translation.BatchSize)
	if len(batches) == 0 {
		return nil
	}

	workers := s.env.Config.Translation.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(batches) {
		workers = len(batches)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	jobs := make(chan batch)

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

	total := len(batches)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				if failed() {
					continue
				}
				if err := cp.Check(ctx); err != nil {
					fail(err)
					continue
				}
				if err := s.translateBatch(ctx, taskID, b, targetLang); err != nil {
					fail(err)
					continue
				}
				mu.Lock()
				done++
				completed := done
				mu.Unlock()
				percent := stageSpan(task.StageTranslating, task.StageSynthesizing, completed, total)
				if err := s.env.setProgress(ctx, taskID, percent,
					fmt.Sprintf("Translated %d/%d batches", completed, total),
					progress.KindTranslationProgress); err != nil {
					fail(err)
				}
			}
		}()
	}

dispatch:
	for _, b := range batches {
		select {
		case jobs <- b:
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

func (s *Translate) translateBatch(ctx context.Context, taskID string, b batch, targetLang string) error {
	if err := s.env.NetLimiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.env.NetLimiter.Release()

	var translations []string
	err := stage.WithRetry(ctx, s.env.Retry, s.logger, "translate batch", func(ctx context.Context) error {
		out, err := s.env.Translator.TranslateBatch(ctx, b.lines, targetLang)
		if err != nil {
			return err
		}
		translations = out
		return nil
	})
	if err != nil {
		return err
	}
	if len(translations) != len(b.ids) {
		return fmt.Errorf("translation batch returned %d lines, want %d", len(translations), len(b.ids))
	}

	byID := make(map[int]string, len(b.ids))
	for i, id := range b.ids {
		byID[id] = translations[i]
	}
	_, err = s.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		for i := range t.Subtitles {
			translated, ok := byID[t.Subtitles[i].ID]
			if !ok {
				continue
			}
			if t.Subtitles[i].OriginalText == "" {
				t.Subtitles[i].OriginalText = t.Subtitles[i].Text
			}
			t.Subtitles[i].Text = translated
		}
		return nil
	})
	return err
}

// buildBatches groups the cues that still need translation. A cue is pending
// when it has text but no recorded original, which is also what makes resume
// after a pause pick up exactly where it stopped.
func buildBatches(t *task.Task, batchSize int) []batch {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches []batch
	current := batch{}
	for _, entry := range t.Subtitles {
		if entry.Text == "" || entry.Translated() {
			continue
		}
		current.ids = append(current.ids, entry.ID)
		current.lines = append(current.lines, entry.Text)
		if len(current.ids) == batchSize {
			batches = append(batches, current)
			current = batch{}
		}
	}
	if len(current.ids) > 0 {
		batches = append(batches, current)
	}
	return batches
}
