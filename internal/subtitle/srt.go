package subtitle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RenderSRT produces SRT content for the entries. Cue indexes start at 1 and
// follow slice order; callers are expected to pass entries sorted by start
// time. Timing uses the fixed `HH:MM:SS,mmm --> HH:MM:SS,mmm` format.
func RenderSRT(entries []Entry, mode ExportMode) string {
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		b.WriteString(FormatTimestamp(entry.Start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(entry.End))
		b.WriteByte('\n')
		for _, line := range cueLines(entry, mode) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ParseSRT reads SRT content back into entries. Cue indexes become entry IDs;
// a single text line stays Text, a second line in a bilingual file is kept as
// the translation with the first line as OriginalText.
func ParseSRT(content string) ([]Entry, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(strings.TrimSpace(content), "\n\n")
	entries := make([]Entry, 0, len(blocks))
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return nil, fmt.Errorf("parse srt: invalid cue index %q", lines[0])
		}
		start, end, err := parseTimingLine(lines[1])
		if err != nil {
			return nil, err
		}
		entry := Entry{ID: id, Start: start, End: end}
		text := lines[2:]
		switch len(text) {
		case 0:
		case 1:
			entry.Text = text[0]
		default:
			entry.OriginalText = text[0]
			entry.Text = strings.Join(text[1:], "\n")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FormatTimestamp renders seconds as an SRT timestamp with millisecond
// precision.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(math.Round(seconds * 1000))
	h := millis / 3_600_000
	millis -= h * 3_600_000
	m := millis / 60_000
	millis -= m * 60_000
	s := millis / 1000
	ms := millis - s*1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp converts an SRT timestamp back to seconds. A period is
// tolerated in place of the standard comma.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

func parseTimingLine(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("parse srt: invalid timing line %q", line)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse srt: %w", err)
	}
	end, err := ParseTimestamp(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse srt: %w", err)
	}
	return start, end, nil
}
