package transcript

import (
	"testing"
	"time"
)

func TestAppendStampsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	l := NewLog()
	before := time.Now().UTC()
	e := l.Append(Entry{Kind: KindUser, Text: "show me top customers"})
	after := time.Now().UTC()

	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if e.TS.Before(before) || e.TS.After(after) {
		t.Fatalf("timestamp %v outside [%v, %v]", e.TS, before, after)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", l.Len())
	}
}

func TestEntriesPreserveInsertionOrder(t *testing.T) {
	t.Parallel()

	l := NewLog()
	kinds := []string{KindUser, KindThinking, KindPlan, KindProposal, KindExecuting, KindResult, KindComplete}
	for _, k := range kinds {
		l.Append(Entry{Kind: k})
	}

	got := l.Entries()
	if len(got) != len(kinds) {
		t.Fatalf("expected %d entries, got %d", len(kinds), len(got))
	}
	seen := map[string]struct{}{}
	for i, e := range got {
		if e.Kind != kinds[i] {
			t.Fatalf("entry %d: expected kind %s, got %s", i, kinds[i], e.Kind)
		}
		if _, dup := seen[e.ID]; dup {
			t.Fatalf("duplicate entry id %s", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	t.Parallel()

	l := NewLog()
	l.Append(Entry{Kind: KindThinking, Text: "inspecting schema"})

	out := l.Entries()
	out[0].Text = "mutated"
	if l.Entries()[0].Text != "inspecting schema" {
		t.Fatalf("caller mutation leaked into log")
	}
}

func TestClearEmptiesLog(t *testing.T) {
	t.Parallel()

	l := NewLog()
	l.Append(Entry{Kind: KindUser})
	l.Append(Entry{Kind: KindError, Text: "boom"})
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("expected empty log after clear, got %d", l.Len())
	}
	if len(l.Entries()) != 0 {
		t.Fatalf("expected no entries after clear")
	}
}
