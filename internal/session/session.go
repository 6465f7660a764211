package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"boardedit/internal/apperr"
	"boardedit/internal/diff"
	"boardedit/internal/document"
	"boardedit/internal/logging"
	"boardedit/internal/sexp"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Record is one applied operation in a session log.
type Record struct {
	Seq         int
	Kind        string
	Description string
	Params      map[string]any
	Targets     []sexp.NodeID
	At          time.Time
	Undone      bool
	Strategy    document.Strategy

	inverse document.Inverse
}

// Session is one transaction over one file. All methods are safe for
// concurrent use; calls on the same session are serialized.
type Session struct {
	mu sync.Mutex
	m  *Manager

	id       string
	path     string
	original string
	base     *document.Document // as opened; never mutated
	work     *document.Document

	records []Record
	live    int // records[:live] are applied, the rest are undone
	nextSeq int

	state    atomic.Int32
	opened   time.Time
	lastUsed atomic.Int64 // unix nanos

	// committing is set while Commit holds mu; such sessions never expire.
	committing atomic.Bool

	audit *logging.AuditLogger

	description string
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Path returns the absolute path of the target file.
func (s *Session) Path() string { return s.path }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Opened returns when the session started.
func (s *Session) Opened() time.Time { return s.opened }

// SetDescription sets the note journaled with the commit.
func (s *Session) SetDescription(desc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description = desc
}

// begin checks that s may run op. s.mu must be held.
func (s *Session) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.m.opts.Now()
	s.m.mu.Lock()
	s.m.expireIfIdle(s, now)
	s.m.mu.Unlock()

	switch st := s.State(); st {
	case StateActive:
		s.lastUsed.Store(now.UnixNano())
		return nil
	case StateExpired:
		return apperr.Expired(op, s.id)
	default:
		return apperr.SessionState(op, s.id, st.String())
	}
}

// tag attaches the session id to taxonomy errors.
func (s *Session) tag(err error) error {
	if e, ok := apperr.As(err); ok && e.Session == "" {
		return e.WithSession(s.id)
	}
	return err
}

// Apply binds and applies an operation to the working copy. A rejected
// operation leaves the session ACTIVE with nothing recorded. Records undone
// earlier are dropped: history is linear.
func (s *Session) Apply(ctx context.Context, bind document.Binder) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "apply"); err != nil {
		return Record{}, err
	}

	op, err := bind(s.work)
	if err != nil {
		s.audit.OpApplied("", "", err)
		return Record{}, s.tag(err)
	}
	inv, err := s.work.Mutate(op)
	if err != nil {
		s.audit.OpApplied(op.Kind(), op.Describe(), err)
		return Record{}, s.tag(err)
	}

	if dropped := len(s.records) - s.live; dropped > 0 {
		logging.SessionDebug("session %s: dropping %d undone records", s.id, dropped)
	}
	s.records = s.records[:s.live]
	s.nextSeq++
	rec := Record{
		Seq:         s.nextSeq,
		Kind:        op.Kind(),
		Description: op.Describe(),
		Params:      op.Params(),
		Targets:     op.Targets(),
		At:          s.m.opts.Now(),
		Strategy:    inv.Strategy,
		inverse:     inv,
	}
	s.records = append(s.records, rec)
	s.live++

	s.audit.OpApplied(rec.Kind, rec.Description, nil)
	s.m.opts.Sink.Publish(Event{Session: s.id, Seq: rec.Seq, Kind: rec.Kind, Params: rec.Params, At: rec.At})
	return rec, nil
}

// Preview reports what applying an operation would produce. Neither the
// working copy nor the log change.
type Preview struct {
	Kind        string
	Description string
	View        *document.View
	Text        string
	Diff        *diff.FileDiff
}

// Preview applies bind to a throwaway copy of the working tree.
func (s *Session) Preview(ctx context.Context, bind document.Binder) (*Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "preview"); err != nil {
		return nil, err
	}

	scratch := s.work.Clone()
	op, err := bind(scratch)
	if err != nil {
		return nil, s.tag(err)
	}
	if _, err := scratch.Mutate(op); err != nil {
		return nil, s.tag(err)
	}
	text := scratch.Text()
	return &Preview{
		Kind:        op.Kind(),
		Description: op.Describe(),
		View:        scratch.Project(),
		Text:        text,
		Diff:        diff.Compute(s.path, s.path, s.work.Text(), text),
	}, nil
}

// Undo reverts the last n applied operations, newest first. It is all or
// nothing: asking for more than are applied fails with NothingToUndoError
// and changes nothing.
func (s *Session) Undo(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "undo"); err != nil {
		return err
	}
	if n < 1 {
		return apperr.Validation("undo", "n", "n must be at least 1, got %d", n).WithSession(s.id)
	}
	if n > s.live {
		return apperr.NothingToUndo(s.id, n, s.live)
	}

	backup := s.work.Clone()
	for i := 0; i < n; i++ {
		rec := &s.records[s.live-1-i]
		if err := s.work.Revert(rec.inverse); err != nil {
			s.work = backup
			logging.SessionError("session %s: undo of #%d failed: %v", s.id, rec.Seq, err)
			return s.tag(err)
		}
	}

	now := s.m.opts.Now()
	for i := 0; i < n; i++ {
		s.live--
		rec := &s.records[s.live]
		rec.Undone = true
		s.m.opts.Sink.Publish(Event{Session: s.id, Seq: rec.Seq, Kind: rec.Kind, Params: rec.Params, Undo: true, At: now})
	}
	s.audit.Undo(n)
	return nil
}

// Rollback discards the session and releases the file.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "rollback"); err != nil {
		return err
	}
	if !s.m.finish(s, StateRolledBack) {
		return apperr.SessionState("rollback", s.id, s.State().String())
	}
	s.audit.Rollback(s.live)
	logging.Session("session %s rolled back (%d operations discarded)", s.id, s.live)
	return nil
}

// View returns the projection of the working copy.
func (s *Session) View() *document.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.work.Project()
}

// BaseView returns the projection of the file as it was opened.
func (s *Session) BaseView() *document.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.Project()
}

// Text prints the working copy.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.work.Text()
}

// Diff compares the opened file with the working copy.
func (s *Session) Diff() *diff.FileDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return diff.Compute(s.path, s.path, s.original, s.work.Text())
}

// Records returns the log, undone records included until the next Apply
// drops them.
func (s *Session) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Applied returns how many records are currently applied.
func (s *Session) Applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Events returns the replayable log of applied operations.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]Event, 0, s.live)
	for _, rec := range s.records[:s.live] {
		events = append(events, Event{Session: s.id, Seq: rec.Seq, Kind: rec.Kind, Params: rec.Params, At: rec.At})
	}
	return events
}

// ErrExternalChange reports that the target file changed on disk after the
// session opened it.
var ErrExternalChange = errors.New("file changed on disk since the session opened it")
