package stages

import (
	"context"
	"log/slog"
	"strings"

	"subgen/internal/logging"
	"subgen/internal/stage"
	"subgen/internal/subtitle"
	"subgen/internal/task"
)

// Generate normalizes the raw recognition results into presentable subtitles:
// whitespace is collapsed, empty cues are dropped, overlapping timings are
// clamped, and long lines are wrapped.
type Generate struct {
	env    *Env
	logger *slog.Logger
}

func NewGenerate(env *Env) *Generate {
	return &Generate{env: env, logger: env.componentLogger("generate")}
}

func (s *Generate) Stage() task.Stage { return task.StageGenerating }

func (s *Generate) Run(ctx context.Context, taskID string, cp *stage.Checkpoint) error {
	t, err := s.env.Registry.Get(taskID)
	if err != nil {
		return err
	}
	if stagePassed(t, task.StageGenerating) {
		return nil
	}
	if err := cp.Check(ctx); err != nil {
		return err
	}

	if _, err := s.env.enterStage(ctx, taskID, task.StageGenerating, "Generating subtitles"); err != nil {
		return err
	}

	maxLen := s.env.Config.Pipeline.MaxSubtitleLength
	var kept int
	_, err = s.env.Registry.Update(ctx, taskID, func(t *task.Task) error {
		t.Subtitles = normalizeEntries(t.Subtitles, maxLen)
		kept = len(t.Subtitles)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("subtitles generated",
		logging.String(logging.FieldTaskID, taskID),
		logging.Int("cues", kept))
	return nil
}

func normalizeEntries(entries []subtitle.Entry, maxLen int) []subtitle.Entry {
	out := make([]subtitle.Entry, 0, len(entries))
	for _, entry := range entries {
		entry.Text = collapseWhitespace(entry.Text)
		if entry.Text == "" {
			continue
		}
		if maxLen > 0 {
			entry.Text = wrapText(entry.Text, maxLen)
		}
		out = append(out, entry)
	}
	subtitle.Sort(out)
	for i := 0; i < len(out)-1; i++ {
		if out[i].End > out[i+1].Start {
			out[i].End = out[i+1].Start
		}
	}
	return out
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// wrapText breaks text into display lines no longer than maxLen runes,
// preferring word boundaries. CJK text has no spaces, so a hard rune split is
// the fallback.
func wrapText(text string, maxLen int) string {
	if len([]rune(text)) <= maxLen {
		return text
	}

	var lines []string
	words := strings.Fields(text)
	if len(words) > 1 {
		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if len([]rune(candidate)) > maxLen && current != "" {
				lines = append(lines, current)
				current = word
				continue
			}
			current = candidate
		}
		if current != "" {
			lines = append(lines, current)
		}
	} else {
		runes := []rune(text)
		for len(runes) > maxLen {
			lines = append(lines, string(runes[:maxLen]))
			runes = runes[maxLen:]
		}
		if len(runes) > 0 {
			lines = append(lines, string(runes))
		}
	}
	return strings.Join(lines, "\n")
}
