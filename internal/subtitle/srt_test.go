package subtitle

import (
	"strings"
	"testing"
)

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds  float64
		expected string
	}{
		{0, "00:00:00,000"},
		{0.5, "00:00:00,500"},
		{61.25, "00:01:01,250"},
		{3723.007, "01:02:03,007"},
	}
	for _, tc := range cases {
		if got := FormatTimestamp(tc.seconds); got != tc.expected {
			t.Fatalf("FormatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.expected)
		}
	}
}

func TestSRTRoundTrip(t *testing.T) {
	entries := []Entry{
		{ID: 1, Start: 0.5, End: 2.0, Text: "hello world"},
		{ID: 2, Start: 3.0, End: 4.5, Text: "goodbye"},
	}
	content := RenderSRT(entries, ModeTranslated)

	parsed, err := ParseSRT(content)
	if err != nil {
		t.Fatalf("ParseSRT failed: %v", err)
	}
	rendered := RenderSRT(parsed, ModeTranslated)
	if rendered != content {
		t.Fatalf("round trip mismatch:\n%q\nvs\n%q", rendered, content)
	}
}

func TestRenderSRTBilingual(t *testing.T) {
	entries := []Entry{
		{ID: 1, Start: 0, End: 1, Text: "bonjour", OriginalText: "hello"},
	}
	content := RenderSRT(entries, ModeBilingual)
	if !strings.Contains(content, "hello\nbonjour") {
		t.Fatalf("expected paired lines, got:\n%s", content)
	}

	parsed, err := ParseSRT(content)
	if err != nil {
		t.Fatalf("ParseSRT failed: %v", err)
	}
	if len(parsed) != 1 || parsed[0].OriginalText != "hello" || parsed[0].Text != "bonjour" {
		t.Fatalf("unexpected parse result: %#v", parsed)
	}
}

func TestParseSRTRejectsBadTiming(t *testing.T) {
	if _, err := ParseSRT("1\nnot a timing line\ntext\n"); err == nil {
		t.Fatal("expected error for malformed timing line")
	}
}
