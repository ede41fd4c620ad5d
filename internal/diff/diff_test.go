package diff

import (
	"fmt"
	"strings"
	"testing"
)

func TestUnifiedIdentical(t *testing.T) {
	if got := Unified("a", "b", "hello\nworld", "hello\nworld", 3); got != "" {
		t.Fatalf("expected no diff, got:\n%s", got)
	}
}

func TestUnifiedAddition(t *testing.T) {
	got := Unified("a", "b", "line1\nline2", "line1\nline2\nline3", 3)
	if !strings.Contains(got, "+line3") {
		t.Fatalf("expected addition of line3, got:\n%s", got)
	}
	if !strings.HasPrefix(got, "--- a\n+++ b\n@@ -1,2 +1,3 @@\n") {
		t.Fatalf("unexpected header:\n%s", got)
	}
}

func TestUnifiedDeletion(t *testing.T) {
	got := Unified("a", "b", "line1\nline2\nline3", "line1\nline3", 3)
	if !strings.Contains(got, "-line2") {
		t.Fatalf("expected deletion of line2, got:\n%s", got)
	}
}

func TestUnifiedModification(t *testing.T) {
	got := Unified("a", "b", "hello\nworld", "hello\nearth", 3)
	if !strings.Contains(got, "-world") || !strings.Contains(got, "+earth") {
		t.Fatalf("expected modification, got:\n%s", got)
	}
}

func TestUnifiedEmptySides(t *testing.T) {
	if got := Unified("a", "b", "", "new content", 0); !strings.Contains(got, "+new content") {
		t.Fatalf("expected addition, got:\n%s", got)
	}
	if got := Unified("a", "b", "old content", "", 0); !strings.Contains(got, "-old content") {
		t.Fatalf("expected deletion, got:\n%s", got)
	}
}

func TestUnifiedContextTrimsDistantLines(t *testing.T) {
	var old, new []string
	for i := 0; i < 20; i++ {
		old = append(old, "same")
		new = append(new, "same")
	}
	old[2], new[2] = "x", "y"
	old[17], new[17] = "p", "q"

	got := Unified("a", "b", strings.Join(old, "\n"), strings.Join(new, "\n"), 1)
	if n := strings.Count(got, "@@ -"); n != 2 {
		t.Fatalf("expected 2 hunks, got %d:\n%s", n, got)
	}
	if n := strings.Count(got, "\n same"); n != 4 {
		t.Fatalf("expected 4 context lines, got %d:\n%s", n, got)
	}
}

func TestLinesNumbers(t *testing.T) {
	lines := Lines([]string{"a", "b"}, []string{"a", "c", "b"})
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[1].Op != Insert || lines[1].NewNo != 2 || lines[1].OldNo != 0 {
		t.Fatalf("unexpected insert line %+v", lines[1])
	}
	if lines[2].Op != Equal || lines[2].OldNo != 2 || lines[2].NewNo != 3 {
		t.Fatalf("unexpected equal line %+v", lines[2])
	}
	added, removed := Stats(lines)
	if added != 1 || removed != 0 {
		t.Fatalf("stats = +%d -%d", added, removed)
	}
}

func TestLinesLargeInputs(t *testing.T) {
	var old, new []string
	for i := 0; i < 10000; i++ {
		old = append(old, fmt.Sprintf("T%05d passed", i))
		new = append(new, fmt.Sprintf("T%05d passed", i))
	}
	new[5000] = "T05000 failed"

	lines := Lines(old, new)
	added, removed := Stats(lines)
	if added != 1 || removed != 1 {
		t.Fatalf("stats = +%d -%d, want +1 -1", added, removed)
	}
	if len(lines) != 10001 {
		t.Fatalf("expected 10001 lines, got %d", len(lines))
	}
	last := lines[len(lines)-1]
	if last.Op != Equal || last.OldNo != 10000 || last.NewNo != 10000 {
		t.Fatalf("unexpected last line %+v", last)
	}
}

func TestLinesDisjointInputsReplaceBlock(t *testing.T) {
	var old, new []string
	for i := 0; i < 3000; i++ {
		old = append(old, fmt.Sprintf("old %d", i))
		new = append(new, fmt.Sprintf("new %d", i))
	}

	lines := Lines(old, new)
	added, removed := Stats(lines)
	if added != 3000 || removed != 3000 {
		t.Fatalf("stats = +%d -%d", added, removed)
	}
	if lines[0].Op != Delete || lines[3000].Op != Insert || lines[3000].NewNo != 1 {
		t.Fatalf("unexpected block boundaries %+v %+v", lines[0], lines[3000])
	}
}
