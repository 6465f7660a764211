package diff

import (
	"strconv"
	"strings"
	"testing"
)

func TestCompute_SimpleAddition(t *testing.T) {
	oldContent := "line1\nline2\nline3\n"
	newContent := "line1\nline2\nline2.5\nline3\n"

	engine := NewEngine(DefaultContext)
	diff := engine.Compute("old.kicad_pcb", "new.kicad_pcb", oldContent, newContent)

	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}
	if diff.Added != 1 || diff.Removed != 0 {
		t.Errorf("Expected +1 -0, got +%d -%d", diff.Added, diff.Removed)
	}

	hasAddition := false
	for _, line := range diff.Hunks[0].Lines {
		if line.Type == LineAdded && line.Content == "line2.5" {
			hasAddition = true
			if line.NewNum != 3 || line.OldNum != 0 {
				t.Errorf("added line numbered old=%d new=%d", line.OldNum, line.NewNum)
			}
		}
	}
	if !hasAddition {
		t.Error("Expected to find added line 'line2.5'")
	}
}

func TestCompute_SimpleDeletion(t *testing.T) {
	oldContent := "line1\nline2\nline3\nline4\n"
	newContent := "line1\nline2\nline4\n"

	diff := NewEngine(DefaultContext).Compute("a", "b", oldContent, newContent)

	if diff.Added != 0 || diff.Removed != 1 {
		t.Fatalf("Expected +0 -1, got +%d -%d", diff.Added, diff.Removed)
	}
	h := diff.Hunks[0]
	if h.OldStart != 1 || h.OldCount != 4 || h.NewStart != 1 || h.NewCount != 3 {
		t.Errorf("unexpected hunk header %+v", h)
	}
}

func TestCompute_NoChanges(t *testing.T) {
	content := "(kicad_pcb\n  (version 20240108)\n)\n"
	diff := Compute("a", "a", content, content)
	if !diff.Empty() {
		t.Errorf("Expected no hunks, got %d", len(diff.Hunks))
	}
	if diff.Unified() != "" {
		t.Error("Unified of an empty diff should be empty")
	}
}

func TestCompute_DistantChangesSplitHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 30; i++ {
		line := "line" + strconv.Itoa(i)
		oldLines = append(oldLines, line)
		switch i {
		case 2:
			newLines = append(newLines, "changed-top")
		case 25:
			newLines = append(newLines, "changed-bottom")
		default:
			newLines = append(newLines, line)
		}
	}
	oldContent := strings.Join(oldLines, "\n") + "\n"
	newContent := strings.Join(newLines, "\n") + "\n"

	diff := NewEngine(DefaultContext).Compute("a", "b", oldContent, newContent)
	if len(diff.Hunks) != 2 {
		t.Fatalf("Expected 2 hunks, got %d", len(diff.Hunks))
	}
	if diff.Hunks[1].OldStart != 23 {
		t.Errorf("second hunk should start 3 lines before line 26, got %d", diff.Hunks[1].OldStart)
	}
}

func TestCompute_NearbyChangesMerge(t *testing.T) {
	oldContent := "a\nb\nc\nd\ne\nf\ng\nh\n"
	newContent := "a\nB\nc\nd\ne\nf\nG\nh\n"

	diff := NewEngine(DefaultContext).Compute("a", "b", oldContent, newContent)
	if len(diff.Hunks) != 1 {
		t.Fatalf("changes 4 lines apart should share a hunk, got %d", len(diff.Hunks))
	}
}

func TestCompute_ZeroContext(t *testing.T) {
	diff := NewEngine(0).Compute("a", "b", "a\nb\nc\n", "a\nc\n")
	h := diff.Hunks[0]
	// A pure deletion with no context anchors on the line before it.
	if h.OldStart != 2 || h.OldCount != 1 || h.NewStart != 1 || h.NewCount != 0 {
		t.Errorf("unexpected hunk header %+v", h)
	}
}

func TestUnified(t *testing.T) {
	oldContent := "(kicad_pcb\n  (footprint \"R\" (at 10 20))\n)\n"
	newContent := "(kicad_pcb\n  (footprint \"R\" (at 15 20))\n)\n"

	got := Compute("/tmp/board.kicad_pcb", "/tmp/board.kicad_pcb", oldContent, newContent).Unified()
	want := "--- a/tmp/board.kicad_pcb\n" +
		"+++ b/tmp/board.kicad_pcb\n" +
		"@@ -1,3 +1,3 @@\n" +
		" (kicad_pcb\n" +
		"-  (footprint \"R\" (at 10 20))\n" +
		"+  (footprint \"R\" (at 15 20))\n" +
		" )\n"
	if got != want {
		t.Errorf("Unified mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestCache(t *testing.T) {
	engine := NewEngine(DefaultContext)
	oldContent, newContent := "x\ny\n", "x\nz\n"

	first := engine.Compute("one", "one", oldContent, newContent)
	second := engine.Compute("two", "two", oldContent, newContent)

	if second.OldPath != "two" || first.OldPath != "one" {
		t.Error("cached results must carry the caller's paths")
	}
	if len(second.Hunks) != len(first.Hunks) {
		t.Error("cached diff differs from the computed one")
	}

	engine.ClearCache()
	if engine.entries.Load() != 0 {
		t.Error("ClearCache should reset the entry count")
	}
}
