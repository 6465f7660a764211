// Package diff computes line diffs between two renderings of a document,
// using sergi/go-diff for the edit script and a small cache keyed by content
// hashes so repeated previews of the same state are free.
package diff

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in the diff
type Line struct {
	OldNum  int // 1-based line in the old text, 0 for added lines
	NewNum  int // 1-based line in the new text, 0 for removed lines
	Content string
	Type    LineType
}

// Hunk represents a group of changes
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff represents changes to a single file
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
	Added   int
	Removed int
}

// Empty reports whether the two texts were identical.
func (f *FileDiff) Empty() bool { return len(f.Hunks) == 0 }

// DefaultContext is the number of unchanged lines shown around a change.
const DefaultContext = 3

const maxCacheEntries = 256

// Engine provides diff computation with caching
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
	cache   sync.Map // cacheKey -> *FileDiff
	entries atomic.Int64
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine creates a diff engine showing contextLines around each change.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // exact diffs; board files are line-oriented and small
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	return &Engine{dmp: dmp, context: contextLines}
}

// DefaultEngine is a singleton engine for general use
var DefaultEngine = NewEngine(DefaultContext)

// Compute diffs oldText against newText.
func (e *Engine) Compute(oldPath, newPath, oldText, newText string) *FileDiff {
	key := cacheKey{xxhash.Sum64String(oldText), xxhash.Sum64String(newText)}
	if cached, ok := e.cache.Load(key); ok {
		result := *cached.(*FileDiff)
		result.OldPath = oldPath
		result.NewPath = newPath
		return &result
	}

	fd := &FileDiff{OldPath: oldPath, NewPath: newPath}
	if oldText != newText {
		a, b, lineArray := e.dmp.DiffLinesToChars(oldText, newText)
		diffs := e.dmp.DiffMain(a, b, false)
		diffs = e.dmp.DiffCharsToLines(diffs, lineArray)
		ops := toLines(diffs)
		for _, l := range ops {
			switch l.Type {
			case LineAdded:
				fd.Added++
			case LineRemoved:
				fd.Removed++
			}
		}
		fd.Hunks = group(ops, e.context)
	}

	if e.entries.Add(1) > maxCacheEntries {
		e.ClearCache()
	}
	e.cache.Store(key, fd)
	return fd
}

// Compute is a convenience function using the default engine
func Compute(oldPath, newPath, oldText, newText string) *FileDiff {
	return DefaultEngine.Compute(oldPath, newPath, oldText, newText)
}

// ClearCache clears the diff cache
func (e *Engine) ClearCache() {
	e.cache.Range(func(k, _ any) bool {
		e.cache.Delete(k)
		return true
	})
	e.entries.Store(0)
}

// toLines flattens line-level diffs into numbered lines.
func toLines(diffs []diffmatchpatch.Diff) []Line {
	var out []Line
	oldNum, newNum := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if d.Text == "" {
			continue
		}
		for _, content := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldNum++
				newNum++
				out = append(out, Line{OldNum: oldNum, NewNum: newNum, Content: content, Type: LineContext})
			case diffmatchpatch.DiffDelete:
				oldNum++
				out = append(out, Line{OldNum: oldNum, Content: content, Type: LineRemoved})
			case diffmatchpatch.DiffInsert:
				newNum++
				out = append(out, Line{NewNum: newNum, Content: content, Type: LineAdded})
			}
		}
	}
	return out
}

// group cuts lines into hunks, merging changes whose context would overlap.
func group(lines []Line, context int) []Hunk {
	var hunks []Hunk
	i := 0
	for i < len(lines) {
		if lines[i].Type == LineContext {
			i++
			continue
		}
		start := max(0, i-context)

		// Extend past every change reachable within 2*context unchanged lines.
		end := i
		for j := i; j < len(lines); j++ {
			if lines[j].Type != LineContext {
				end = j
				continue
			}
			if j-end > 2*context {
				break
			}
		}
		stop := min(len(lines), end+context+1)

		h := Hunk{Lines: append([]Line(nil), lines[start:stop]...)}
		oldBefore, newBefore := positionsBefore(lines, start)
		for _, l := range h.Lines {
			if l.Type != LineAdded {
				h.OldCount++
			}
			if l.Type != LineRemoved {
				h.NewCount++
			}
		}
		h.OldStart = oldBefore + 1
		if h.OldCount == 0 {
			h.OldStart = oldBefore
		}
		h.NewStart = newBefore + 1
		if h.NewCount == 0 {
			h.NewStart = newBefore
		}
		hunks = append(hunks, h)
		i = stop
	}
	return hunks
}

// positionsBefore returns how many old and new lines precede lines[idx].
func positionsBefore(lines []Line, idx int) (oldN, newN int) {
	for _, l := range lines[:idx] {
		if l.Type != LineAdded {
			oldN++
		}
		if l.Type != LineRemoved {
			newN++
		}
	}
	return oldN, newN
}

// Unified renders the diff in unified format.
func (f *FileDiff) Unified() string {
	if f.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", strings.TrimPrefix(f.OldPath, "/"), strings.TrimPrefix(f.NewPath, "/"))
	for _, h := range f.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				b.WriteByte('+')
			case LineRemoved:
				b.WriteByte('-')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(l.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
