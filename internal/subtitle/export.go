package subtitle

import (
	"fmt"
	"strings"
)

// ExportMode selects which text each cue carries on export.
type ExportMode string

const (
	// ModeOriginal exports the pre-translation text when present.
	ModeOriginal ExportMode = "original"
	// ModeTranslated exports the translated (current) text.
	ModeTranslated ExportMode = "translated"
	// ModeBilingual pairs original and translated lines per cue.
	ModeBilingual ExportMode = "bilingual"
	// ModeBilingualTagged is bilingual with [O]/[T] line prefixes.
	ModeBilingualTagged ExportMode = "bilingual_tagged"
)

// ParseExportMode validates a mode string, defaulting to translated.
func ParseExportMode(value string) (ExportMode, error) {
	switch ExportMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeTranslated:
		return ModeTranslated, nil
	case ModeOriginal:
		return ModeOriginal, nil
	case ModeBilingual:
		return ModeBilingual, nil
	case ModeBilingualTagged:
		return ModeBilingualTagged, nil
	default:
		return "", fmt.Errorf("unknown export mode %q", value)
	}
}

// RenderText produces a plain text export, one cue per paragraph, with
// optional timestamps.
func RenderText(entries []Entry, mode ExportMode, includeTimestamps bool) string {
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		if includeTimestamps {
			b.WriteString(fmt.Sprintf("[%s - %s]\n", FormatTimestamp(entry.Start), FormatTimestamp(entry.End)))
		}
		for _, line := range cueLines(entry, mode) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func cueLines(entry Entry, mode ExportMode) []string {
	original := entry.OriginalText
	if original == "" {
		original = entry.Text
	}
	switch mode {
	case ModeOriginal:
		return []string{original}
	case ModeBilingual:
		if !entry.Translated() {
			return []string{entry.Text}
		}
		return []string{entry.OriginalText, entry.Text}
	case ModeBilingualTagged:
		if !entry.Translated() {
			return []string{"[O] " + entry.Text}
		}
		return []string{"[O] " + entry.OriginalText, "[T] " + entry.Text}
	default:
		return []string{entry.Text}
	}
}
