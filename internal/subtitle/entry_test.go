package subtitle

import "testing"

func TestMergeKeepsSortedOrder(t *testing.T) {
	var entries []Entry
	entries = Merge(entries, Entry{ID: 2, Start: 3.0, End: 4.5, Text: "second"})
	entries = Merge(entries, Entry{ID: 1, Start: 0.5, End: 2.0, Text: "first"})
	entries = Merge(entries, Entry{ID: 3, Start: 5.0, End: 6.0, Text: "third"})

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !Sorted(entries) {
		t.Fatalf("entries not sorted: %#v", entries)
	}
	if entries[0].Text != "first" || entries[2].Text != "third" {
		t.Fatalf("unexpected order: %#v", entries)
	}
}

func TestMergeReplacesDuplicateID(t *testing.T) {
	entries := []Entry{{ID: 1, Start: 0.5, End: 2.0, Text: "draft"}}
	entries = Merge(entries, Entry{ID: 1, Start: 0.5, End: 2.0, Text: "final"})

	if len(entries) != 1 {
		t.Fatalf("expected duplicate ID to replace, got %d entries", len(entries))
	}
	if entries[0].Text != "final" {
		t.Fatalf("expected replacement text, got %q", entries[0].Text)
	}
}

func TestSortedDetectsDuplicates(t *testing.T) {
	entries := []Entry{
		{ID: 1, Start: 0.5},
		{ID: 1, Start: 1.5},
	}
	if Sorted(entries) {
		t.Fatal("expected duplicate IDs to fail the sorted check")
	}
}
