package subtitle

import "sort"

// Entry is one recognized utterance with timing in seconds.
type Entry struct {
	ID           int     `json:"id"`
	Start        float64 `json:"startTime"`
	End          float64 `json:"endTime"`
	Text         string  `json:"text"`
	OriginalText string  `json:"originalText,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// Translated reports whether the entry carries a translation.
func (e Entry) Translated() bool {
	return e.OriginalText != ""
}

// Merge inserts entry into entries keeping the slice sorted by start time.
// Parallel recognition workers complete out of order, so arrival order means
// nothing; an entry whose ID is already present replaces the existing one.
func Merge(entries []Entry, entry Entry) []Entry {
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			sortEntries(entries)
			return entries
		}
	}
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].Start > entry.Start
	})
	entries = append(entries, Entry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = entry
	return entries
}

// Sort orders entries by start time in place.
func Sort(entries []Entry) {
	sortEntries(entries)
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Start < entries[j].Start
	})
}

// Sorted reports whether entries are ordered by start time with no duplicate
// IDs.
func Sorted(entries []Entry) bool {
	seen := make(map[int]struct{}, len(entries))
	for i, entry := range entries {
		if i > 0 && entries[i-1].Start > entry.Start {
			return false
		}
		if _, dup := seen[entry.ID]; dup {
			return false
		}
		seen[entry.ID] = struct{}{}
	}
	return true
}
