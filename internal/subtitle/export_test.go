package subtitle

import (
	"strings"
	"testing"
)

func TestRenderTextModes(t *testing.T) {
	entries := []Entry{
		{ID: 1, Start: 0, End: 1, Text: "bonjour", OriginalText: "hello"},
		{ID: 2, Start: 2, End: 3, Text: "untranslated"},
	}

	original := RenderText(entries, ModeOriginal, false)
	if !strings.Contains(original, "hello") || strings.Contains(original, "bonjour") {
		t.Fatalf("original mode leaked translation:\n%s", original)
	}

	tagged := RenderText(entries, ModeBilingualTagged, false)
	if !strings.Contains(tagged, "[O] hello") || !strings.Contains(tagged, "[T] bonjour") {
		t.Fatalf("expected tagged lines, got:\n%s", tagged)
	}
	if !strings.Contains(tagged, "[O] untranslated") {
		t.Fatalf("untranslated cue should keep the original tag:\n%s", tagged)
	}
}

func TestRenderTextTimestamps(t *testing.T) {
	entries := []Entry{{ID: 1, Start: 0.5, End: 2.0, Text: "hi"}}
	out := RenderText(entries, ModeTranslated, true)
	if !strings.Contains(out, "[00:00:00,500 - 00:00:02,000]") {
		t.Fatalf("expected timestamp header, got:\n%s", out)
	}
}

func TestParseExportMode(t *testing.T) {
	if mode, err := ParseExportMode(""); err != nil || mode != ModeTranslated {
		t.Fatalf("empty mode: got %q, %v", mode, err)
	}
	if _, err := ParseExportMode("nope"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
