package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"boardedit/internal/apperr"
	"boardedit/internal/boardtest"
	"boardedit/internal/document"
	"boardedit/internal/journal"
	"boardedit/internal/ops"
	"boardedit/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T, mutate ...func(*Options)) (*Manager, *clock) {
	t.Helper()
	c := newClock()
	opts := DefaultOptions()
	opts.IdleTimeout = 10 * time.Minute
	opts.Now = c.Now
	for _, f := range mutate {
		f(&opts)
	}
	return NewManager(opts), c
}

func bind(t *testing.T, kind string, args map[string]any) document.Binder {
	t.Helper()
	b, err := ops.Default().Bind(kind, args)
	require.NoError(t, err)
	return b
}

func move(t *testing.T, ref string, x, y float64) document.Binder {
	return bind(t, ops.KindMoveComponent, map[string]any{"reference": ref, "x": x, "y": y})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestScenarioA(t *testing.T) {
	ctx := context.Background()
	path := boardtest.Write(t)
	m, _ := newManager(t)

	s, err := m.Open(ctx, path)
	require.NoError(t, err)

	_, err = s.Apply(ctx, move(t, "R1", 15, 25))
	require.NoError(t, err)

	p, err := s.Preview(ctx, move(t, "R1", 999, 999))
	require.NoError(t, err)
	projected, ok := p.View.Component("R1")
	require.True(t, ok)
	assert.Equal(t, document.Placement{X: 999, Y: 999, Angle: 90}, projected.At)

	recorded, ok := s.View().Component("R1")
	require.True(t, ok)
	assert.Equal(t, document.Placement{X: 15, Y: 25, Angle: 90}, recorded.At)
	assert.Len(t, s.Records(), 1, "preview must not record")

	require.NoError(t, s.Undo(ctx, 1))
	res, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.False(t, res.Written, "undoing everything leaves nothing to write")
	assert.Equal(t, StateCommitted, s.State())

	ro, err := m.OpenReadOnly(ctx, path)
	require.NoError(t, err)
	assert.False(t, ro.Stale())
	c, ok := ro.Document.Project().Component("R1")
	require.True(t, ok)
	assert.Equal(t, document.Placement{X: 10, Y: 20, Angle: 90}, c.At)
	assert.Equal(t, boardtest.Board, readFile(t, path))
}

func TestScenarioB(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, err := m.Open(ctx, boardtest.Write(t))
	require.NoError(t, err)

	_, err = s.Apply(ctx, move(t, "R1", 11, 21))
	require.NoError(t, err)
	_, err = s.Apply(ctx, move(t, "C1", 31, 21))
	require.NoError(t, err)
	_, err = s.Apply(ctx, bind(t, ops.KindCreateNet, map[string]any{"name": "SDA"}))
	require.NoError(t, err)

	require.NoError(t, s.Undo(ctx, 2))
	assert.Len(t, s.Records(), 3, "undone records stay visible until the next apply")
	assert.Equal(t, 1, s.Applied())

	_, err = s.Apply(ctx, bind(t, ops.KindCreateNet, map[string]any{"name": "SCL"}))
	require.NoError(t, err)

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, ops.KindMoveComponent, records[0].Kind)
	assert.Equal(t, ops.KindCreateNet, records[1].Kind)
	assert.Equal(t, "SCL", records[1].Params["name"])
	assert.Greater(t, records[1].Seq, 3, "sequence numbers are never reused")
	for _, r := range records {
		assert.False(t, r.Undone)
	}

	// The undone records cannot come back.
	require.NoError(t, s.Undo(ctx, 2))
	err = s.Undo(ctx, 1)
	assert.True(t, errors.Is(err, apperr.ErrNothingToUndo), "got %v", err)
	assert.Equal(t, boardtest.Board, s.Text())
}

func TestUndoLawAcrossCatalog(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, err := m.Open(ctx, boardtest.Write(t))
	require.NoError(t, err)

	steps := []document.Binder{
		move(t, "R1", 12.25, 18),
		bind(t, ops.KindRotateComponent, map[string]any{"reference": "C1", "angle": 180}),
		bind(t, ops.KindFlipComponent, map[string]any{"reference": "R1"}),
		bind(t, ops.KindSetProperty, map[string]any{"reference": "C1", "name": "MPN", "value": "GRM188"}),
		bind(t, ops.KindCreateNet, map[string]any{"name": "SDA"}),
		bind(t, ops.KindAssignNet, map[string]any{"reference": "C1", "pad": "3", "net": "SDA"}),
		bind(t, ops.KindRouteTrace, map[string]any{"net": 2, "layer": "F.Cu", "width": 0.3,
			"start_x": 10.8, "start_y": 20, "end_x": 31.3, "end_y": 20}),
		bind(t, ops.KindAddVia, map[string]any{"x": 5, "y": 5, "net": 1}),
		bind(t, ops.KindDeleteTrace, map[string]any{"uuid": boardtest.SegmentUUID}),
		bind(t, ops.KindSetBoardSize, map[string]any{"width": 60, "height": 45}),
		bind(t, ops.KindSetDesignRules, map[string]any{"rules": map[string]any{"mask_clearance": 0.05}}),
		bind(t, ops.KindSetDesignRules, map[string]any{"rules": map[string]any{"mask_clearance": 0.07}}),
		bind(t, ops.KindSetLayerConstraints, map[string]any{"layer": "F.Cu", "min_width": 0.15}),
		bind(t, ops.KindSetLayerConstraints, map[string]any{"layer": "F.Cu", "min_width": 0.2}),
		bind(t, ops.KindAddNetClass, map[string]any{"name": "Power", "nets": []any{"VCC"}}),
		bind(t, ops.KindEditComponent, map[string]any{"reference": "C1", "properties": map[string]any{"Value": "1u", "Voltage": "16V"}}),
		bind(t, ops.KindEditComponent, map[string]any{"reference": "C1", "properties": map[string]any{"Value": "2u2"}}),
		bind(t, ops.KindReplaceComponent, map[string]any{"reference": "C1", "library": "Capacitor_SMD:C_0805_2012Metric"}),
		bind(t, ops.KindDeleteComponent, map[string]any{"reference": "R1"}),
	}
	for i, b := range steps {
		_, err := s.Apply(ctx, b)
		require.NoError(t, err, "step %d", i)
	}
	assert.NotEqual(t, boardtest.Board, s.Text())

	require.NoError(t, s.Undo(ctx, len(steps)))
	assert.Equal(t, boardtest.Board, s.Text())
	assert.True(t, s.Diff().Empty())
}

func TestUndoIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, err := m.Open(ctx, boardtest.Write(t))
	require.NoError(t, err)

	_, err = s.Apply(ctx, move(t, "R1", 1, 2))
	require.NoError(t, err)
	before := s.Text()

	err = s.Undo(ctx, 2)
	require.True(t, errors.Is(err, apperr.ErrNothingToUndo), "got %v", err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, s.ID(), e.Session)
	assert.Equal(t, before, s.Text())
	assert.Equal(t, 1, s.Applied())

	err = s.Undo(ctx, 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
}

func TestRejectedApplyKeepsSessionActive(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, err := m.Open(ctx, boardtest.Write(t))
	require.NoError(t, err)

	_, err = s.Apply(ctx, move(t, "U99", 1, 1))
	require.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
	e, _ := apperr.As(err)
	assert.Equal(t, s.ID(), e.Session)

	_, err = s.Apply(ctx, bind(t, ops.KindCreateZone, map[string]any{
		"net": "NOPE", "layer": "F.Cu", "points": [][2]float64{{0, 0}, {1, 0}, {1, 1}}}))
	require.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)

	assert.Equal(t, StateActive, s.State())
	assert.Empty(t, s.Records())
	assert.Equal(t, boardtest.Board, s.Text())

	_, err = s.Apply(ctx, move(t, "R1", 1, 1))
	assert.NoError(t, err, "session stays usable after a validation error")
}

func TestCancelledContextChangesNothing(t *testing.T) {
	m, _ := newManager(t)
	s, err := m.Open(context.Background(), boardtest.Write(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Apply(ctx, move(t, "R1", 1, 1))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.Open(ctx, boardtest.Write(t))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, s.Records())
	assert.Equal(t, StateActive, s.State())
}

func TestPreviewIsPure(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, err := m.Open(ctx, boardtest.Write(t))
	require.NoError(t, err)

	p, err := s.Preview(ctx, bind(t, ops.KindCreateNet, map[string]any{"name": "SDA"}))
	require.NoError(t, err)
	assert.Equal(t, ops.KindCreateNet, p.Kind)
	assert.Contains(t, p.Text, `(net 3 "SDA")`)
	assert.Equal(t, 1, p.Diff.Added)
	assert.Contains(t, p.Diff.Unified(), `+  (net 3 "SDA")`)
	_, ok := p.View.Net("SDA")
	assert.True(t, ok)

	assert.Equal(t, boardtest.Board, s.Text())
	assert.Empty(t, s.Records())
	_, ok = s.View().Net("SDA")
	assert.False(t, ok)

	_, err = s.Preview(ctx, move(t, "U99", 0, 0))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	// A preview shows exactly what applying the same binder writes, new
	// uuids included.
	b := bind(t, ops.KindSetProperty, map[string]any{"reference": "R1", "name": "MPN", "value": "X1"})
	p, err = s.Preview(ctx, b)
	require.NoError(t, err)
	_, err = s.Apply(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, p.Text, s.Text())
}

func TestPreviewMatchesApplyForEveryKind(t *testing.T) {
	args := map[string]map[string]any{
		ops.KindMoveComponent:       {"reference": "R1", "x": 12.5, "y": 7},
		ops.KindRotateComponent:     {"reference": "C1", "angle": 45},
		ops.KindFlipComponent:       {"reference": "R1"},
		ops.KindDeleteComponent:     {"reference": "C1"},
		ops.KindPlaceComponent:      {"reference": "U1", "library": "Package_SO:SOIC-8", "x": 40, "y": 10},
		ops.KindAddMountingHole:     {"x": 3, "y": 3},
		ops.KindReplaceComponent:    {"reference": "R1", "library": "Resistor_SMD:R_0805_2012Metric"},
		ops.KindSetProperty:         {"reference": "R1", "name": "Tolerance", "value": "1%"},
		ops.KindEditComponent:       {"reference": "C1", "properties": map[string]any{"MPN": "GRM188", "Voltage": "16V"}},
		ops.KindCreateNet:           {"name": "SDA"},
		ops.KindAddNetClass:         {"name": "Power", "nets": []any{"VCC"}},
		ops.KindDeleteNet:           {"name": "VCC"},
		ops.KindAssignNet:           {"reference": "C1", "pad": "3", "net": "VCC"},
		ops.KindRouteTrace:          {"start_x": 10.8, "start_y": 20, "end_x": 31.3, "end_y": 20, "width": 0.3, "net": 2},
		ops.KindAddVia:              {"x": 5, "y": 5, "net": 1},
		ops.KindDeleteTrace:         {"uuid": boardtest.SegmentUUID},
		ops.KindDeleteVia:           {"uuid": boardtest.ViaUUID},
		ops.KindCreateZone:          {"net": "VCC", "layer": "F.Cu", "points": []any{[]any{0, 0}, []any{10, 0}, []any{10, 10}}},
		ops.KindSetBoardSize:        {"width": 100, "height": 80},
		ops.KindSetBoardOutline:     {"points": []any{[]any{0, 0}, []any{60, 0}, []any{30, 45}}},
		ops.KindAddBoardText:        {"text": "v1.2", "x": 2, "y": 38},
		ops.KindSetDesignRules:      {"rules": map[string]any{"mask_clearance": 0.05}},
		ops.KindSetLayerConstraints: {"layer": "F.Cu", "min_width": 0.15},
	}
	kinds := ops.Default().Names()
	require.Len(t, args, len(kinds), "every catalog kind needs a case")

	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			m, _ := newManager(t)
			s, err := m.Open(ctx, boardtest.Write(t))
			require.NoError(t, err)

			a, ok := args[kind]
			require.True(t, ok, "no case for %s", kind)
			b := bind(t, kind, a)

			p, err := s.Preview(ctx, b)
			require.NoError(t, err)
			assert.Equal(t, boardtest.Board, s.Text())

			_, err = s.Apply(ctx, b)
			require.NoError(t, err)
			assert.Equal(t, p.Text, s.Text())
			assert.NotEqual(t, boardtest.Board, s.Text())
		})
	}
}

func TestSingleWriter(t *testing.T) {
	ctx := context.Background()
	path := boardtest.Write(t)
	m, _ := newManager(t)

	first, err := m.Open(ctx, path)
	require.NoError(t, err)

	_, err = m.Open(ctx, path)
	require.True(t, errors.Is(err, apperr.ErrOneWriter), "got %v", err)
	e, _ := apperr.As(err)
	assert.Equal(t, first.ID(), e.Session, "the error names the holder")

	// A relative spelling of the same file is the same slot.
	wd, err := os.Getwd()
	require.NoError(t, err)
	if rel, err := filepath.Rel(wd, path); err == nil {
		_, err = m.Open(ctx, rel)
		assert.True(t, errors.Is(err, apperr.ErrOneWriter), "got %v", err)
	}

	require.NoError(t, first.Rollback(ctx))
	assert.Equal(t, StateRolledBack, first.State())

	second, err := m.Open(ctx, path)
	require.NoError(t, err)
	_, err = second.Apply(ctx, move(t, "R1", 3, 4))
	require.NoError(t, err)
	_, err = second.Commit(ctx)
	require.NoError(t, err)

	third, err := m.Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID()}, m.Active())

	err = first.Rollback(ctx)
	assert.True(t, errors.Is(err, apperr.ErrSessionState), "got %v", err)
}

func TestConcurrentOpensAdmitOneWriter(t *testing.T) {
	ctx := context.Background()
	path := boardtest.Write(t)
	m, _ := newManager(t)

	const openers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		refused int
	)
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Open(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, apperr.ErrOneWriter):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
	assert.Equal(t, openers-1, refused)
}

func TestConcurrentApplySerializes(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	s, err := m.Open(ctx, boardtest.Write(t))
	require.NoError(t, err)

	const writers = 8
	binders := make([]document.Binder, writers)
	for i := range binders {
		binders[i] = bind(t, ops.KindCreateNet, map[string]any{"name": fmt.Sprintf("N%d", i)})
	}

	var wg sync.WaitGroup
	for _, b := range binders {
		wg.Add(1)
		go func(b document.Binder) {
			defer wg.Done()
			if _, err := s.Apply(ctx, b); err != nil {
				t.Errorf("apply: %v", err)
			}
		}(b)
	}
	wg.Wait()

	require.Equal(t, writers, s.Applied())
	seen := map[int]bool{}
	for _, r := range s.Records() {
		assert.False(t, seen[r.Seq], "duplicate seq %d", r.Seq)
		seen[r.Seq] = true
	}
	assert.Len(t, s.View().Nets(), 3+writers)

	require.NoError(t, s.Undo(ctx, writers))
	assert.Equal(t, boardtest.Board, s.Text())
}

func TestCommitWritesAndJournals(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	var events []Event
	m, _ := newManager(t, func(o *Options) {
		o.Journal = j
		o.Sink = EventSinkFunc(func(e Event) { events = append(events, e) })
	})
	path := boardtest.Write(t)
	require.NoError(t, os.Chmod(path, 0600))

	s, err := m.Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Apply(ctx, move(t, "R1", 14, 22))
	require.NoError(t, err)
	_, err = s.Apply(ctx, bind(t, ops.KindCreateNet, map[string]any{"name": "SDA"}))
	require.NoError(t, err)
	require.NoError(t, s.Undo(ctx, 1))
	_, err = s.Apply(ctx, bind(t, ops.KindCreateNet, map[string]any{"name": "SCL"}))
	require.NoError(t, err)
	want := s.Text()

	_, err = m.PathOf(s.ID())
	assert.True(t, errors.Is(err, apperr.ErrSessionState), "uncommitted sessions have no path")

	res, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 2, res.Ops)
	assert.Equal(t, want, readFile(t, path))
	assert.NotZero(t, res.JournalID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0600), info.Mode().Perm(), "commit keeps the file mode")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	got, err := m.PathOf(s.ID())
	require.NoError(t, err)
	assert.Equal(t, path, got)

	history, err := j.History(ctx, path, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, s.ID(), history[0].SessionID)
	assert.Equal(t, []string{ops.KindMoveComponent, ops.KindCreateNet}, history[0].Kinds)
	assert.Equal(t, res.NewHash, history[0].NewHash)

	kinds := make([]string, 0, len(events))
	for _, e := range events {
		k := e.Kind
		if e.Undo {
			k = "undo " + k
		}
		kinds = append(kinds, k)
	}
	assert.Equal(t, []string{"move_component", "create_net", "undo create_net", "create_net"}, kinds)
	assert.Len(t, s.Events(), 2)

	_, err = s.Apply(ctx, move(t, "R1", 1, 1))
	assert.True(t, errors.Is(err, apperr.ErrSessionState), "got %v", err)
	_, err = s.Commit(ctx)
	assert.True(t, errors.Is(err, apperr.ErrSessionState), "got %v", err)
}

// faultyFS fails one commit step on request.
type faultyFS struct {
	OSFS
	mu     sync.Mutex
	failOn string

	// onRename runs just before the rename over the target.
	onRename func()
}

var errInjected = errors.New("injected failure")

func (f *faultyFS) step(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == name {
		return errInjected
	}
	return nil
}

func (f *faultyFS) set(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = name
}

func (f *faultyFS) CreateTemp(dir, pattern string) (File, error) {
	if err := f.step("create"); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: tmp, fs: f}, nil
}

func (f *faultyFS) Rename(oldpath, newpath string) error {
	if f.onRename != nil {
		f.onRename()
	}
	if err := f.step("rename"); err != nil {
		return err
	}
	return os.Rename(oldpath, newpath)
}

type faultyFile struct {
	*os.File
	fs *faultyFS
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if err := f.fs.step("write"); err != nil {
		// Leave a partial temp file behind, as a full disk would.
		n, _ := f.File.Write(p[:len(p)/2])
		return n, err
	}
	return f.File.Write(p)
}

func (f *faultyFile) Sync() error {
	if err := f.fs.step("sync"); err != nil {
		return err
	}
	return f.File.Sync()
}

func TestCommitFailureLeavesFileUntouched(t *testing.T) {
	for _, step := range []string{"create", "write", "sync", "rename"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			fsys := &faultyFS{}
			m, _ := newManager(t, func(o *Options) { o.FS = fsys })
			path := boardtest.Write(t)

			s, err := m.Open(ctx, path)
			require.NoError(t, err)
			_, err = s.Apply(ctx, move(t, "R1", 40, 30))
			require.NoError(t, err)

			fsys.set(step)
			_, err = s.Commit(ctx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrIO), "got %v", err)
			assert.ErrorIs(t, err, errInjected)

			assert.Equal(t, boardtest.Board, readFile(t, path))
			assert.Equal(t, StateActive, s.State())
			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp file must be removed")

			_, err = m.Open(ctx, path)
			assert.True(t, errors.Is(err, apperr.ErrOneWriter), "the slot is still held")

			fsys.set("")
			res, err := s.Commit(ctx)
			require.NoError(t, err, "retry after a failed commit")
			assert.True(t, res.Written)
			assert.Contains(t, readFile(t, path), "(at 40 30 90)")
		})
	}
}

func TestSweepDuringCommitDoesNotExpire(t *testing.T) {
	ctx := context.Background()
	fsys := &faultyFS{}
	m, clk := newManager(t, func(o *Options) { o.FS = fsys })
	path := boardtest.Write(t)

	s, err := m.Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Apply(ctx, move(t, "R1", 40, 30))
	require.NoError(t, err)

	swept := -1
	fsys.onRename = func() {
		clk.Advance(m.opts.IdleTimeout + time.Minute)
		swept = m.Sweep()
	}
	res, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 0, swept)
	assert.Equal(t, StateCommitted, s.State())
	assert.Contains(t, readFile(t, path), "(at 40 30 90)")

	_, held := m.Holder(path)
	assert.False(t, held)
}

func TestCommitSecurityVeto(t *testing.T) {
	ctx := context.Background()
	veto := security.GateFunc(func(path string, intent security.Intent) error {
		if intent == security.Write {
			return apperr.Security(intent.String(), path, errors.New("read-only mount"))
		}
		return nil
	})
	m, _ := newManager(t, func(o *Options) { o.Gate = veto })
	path := boardtest.Write(t)

	s, err := m.Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Apply(ctx, move(t, "R1", 1, 1))
	require.NoError(t, err)

	_, err = s.Commit(ctx)
	assert.True(t, errors.Is(err, apperr.ErrSecurity), "got %v", err)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, boardtest.Board, readFile(t, path))

	require.NoError(t, s.Rollback(ctx))
}

func TestCommitDetectsExternalChange(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	path := boardtest.Write(t)

	s, err := m.Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Apply(ctx, move(t, "R1", 1, 1))
	require.NoError(t, err)

	external := boardtest.Board + "\n"
	require.NoError(t, os.WriteFile(path, []byte(external), 0644))

	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, ErrExternalChange)
	assert.True(t, errors.Is(err, apperr.ErrIO))
	assert.Equal(t, external, readFile(t, path))
	assert.Equal(t, StateActive, s.State())

	// With detection off the session wins.
	m2, _ := newManager(t, func(o *Options) { o.DetectExternalChanges = false })
	require.NoError(t, s.Rollback(ctx))
	s2, err := m2.Open(ctx, path)
	require.NoError(t, err)
	_, err = s2.Apply(ctx, move(t, "R1", 2, 2))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(boardtest.Board), 0644))
	_, err = s2.Commit(ctx)
	require.NoError(t, err)
	assert.Contains(t, readFile(t, path), "(at 2 2 90)")
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	m, c := newManager(t)
	path := boardtest.Write(t)

	s, err := m.Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Apply(ctx, move(t, "R1", 1, 1))
	require.NoError(t, err)

	c.Advance(9 * time.Minute)
	_, err = s.Apply(ctx, move(t, "R1", 2, 2))
	require.NoError(t, err, "activity resets the idle clock")

	c.Advance(11 * time.Minute)
	_, err = s.Apply(ctx, move(t, "R1", 3, 3))
	assert.True(t, errors.Is(err, apperr.ErrExpiredSession), "got %v", err)
	assert.Equal(t, StateExpired, s.State())
	_, err = s.Commit(ctx)
	assert.True(t, errors.Is(err, apperr.ErrExpiredSession), "got %v", err)
	assert.Equal(t, boardtest.Board, readFile(t, path), "expiry never commits")

	next, err := m.Open(ctx, path)
	require.NoError(t, err, "expiry releases the slot")
	require.NoError(t, next.Rollback(ctx))
}

func TestSweepAndOpenExpireIdleHolders(t *testing.T) {
	ctx := context.Background()
	m, c := newManager(t)
	pathA := boardtest.Write(t)
	pathB := boardtest.Write(t)

	a, err := m.Open(ctx, pathA)
	require.NoError(t, err)
	b, err := m.Open(ctx, pathB)
	require.NoError(t, err)

	c.Advance(5 * time.Minute)
	assert.Equal(t, 0, m.Sweep())
	_, err = b.Apply(ctx, move(t, "R1", 1, 1))
	require.NoError(t, err)

	c.Advance(6 * time.Minute)
	assert.Equal(t, 1, m.Sweep(), "only the idle session expires")
	assert.Equal(t, StateExpired, a.State())
	assert.Equal(t, StateActive, b.State())
	assert.Equal(t, []string{b.ID()}, m.Active())

	// Open expires an idle holder on the spot.
	c.Advance(11 * time.Minute)
	_, err = m.Open(ctx, pathB)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, b.State())

	got, err := m.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
	require.NoError(t, m.Forget(a.ID()))
	_, err = m.Get(a.ID())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	_, err := m.Open(ctx, filepath.Join(t.TempDir(), "missing.kicad_pcb"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)

	broken := boardtest.WriteText(t, "broken.kicad_pcb", "(kicad_pcb (version 1)")
	_, err = m.Open(ctx, broken)
	assert.True(t, errors.Is(err, apperr.ErrSyntax), "got %v", err)
	_, ok := m.Holder(broken)
	assert.False(t, ok, "a failed open holds no slot")

	gate, err := security.NewRootGate([]string{t.TempDir()}, nil)
	require.NoError(t, err)
	guarded, _ := newManager(t, func(o *Options) { o.Gate = gate })
	_, err = guarded.Open(ctx, boardtest.Write(t))
	assert.True(t, errors.Is(err, apperr.ErrSecurity), "got %v", err)

	_, err = m.Get("nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = m.PathOf("nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestOpenReadOnlyWarnsWhenStale(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	path := boardtest.Write(t)

	s, err := m.Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Apply(ctx, move(t, "R1", 1, 1))
	require.NoError(t, err)

	ro, err := m.OpenReadOnly(ctx, path)
	require.NoError(t, err)
	assert.True(t, ro.Stale())
	assert.Equal(t, s.ID(), ro.Holder)
	c, _ := ro.Document.Project().Component("R1")
	assert.Equal(t, 10.0, c.At.X, "read-only opens never see uncommitted edits")

	// Neither side sees the other.
	assert.Equal(t, boardtest.Board, ro.Document.Text())
	assert.NotEqual(t, boardtest.Board, s.Text())
}

func TestMaxSessions(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, func(o *Options) { o.MaxSessions = 1 })

	s, err := m.Open(ctx, boardtest.Write(t))
	require.NoError(t, err)
	_, err = m.Open(ctx, boardtest.Write(t))
	assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)

	require.NoError(t, s.Rollback(ctx))
	_, err = m.Open(ctx, boardtest.Write(t))
	assert.NoError(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "rolled_back", StateRolledBack.String())
	assert.Equal(t, "expired", StateExpired.String())
	assert.Equal(t, "unknown", State(42).String())
}
