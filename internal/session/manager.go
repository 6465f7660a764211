// Package session implements editing sessions over board files: a working
// copy with an undo log that ends in an atomic commit or a rollback, and a
// manager that enforces one writer per file and expires idle sessions.
//
// The package starts no goroutines. Expiry is evaluated lazily whenever a
// session or its file is touched, and on explicit Sweep calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"boardedit/internal/apperr"
	"boardedit/internal/config"
	"boardedit/internal/document"
	"boardedit/internal/journal"
	"boardedit/internal/logging"
	"boardedit/internal/security"

	"github.com/google/uuid"
)

// Journal records successful commits.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Options configures a Manager. Zero values fall back to DefaultOptions.
type Options struct {
	IdleTimeout           time.Duration
	MaxSessions           int // 0 means unlimited
	TempPattern           string
	DetectExternalChanges bool
	Fsync                 bool
	IndentUnit            string

	Gate    security.Gate
	FS      FileSystem
	Journal Journal // nil disables commit history
	Sink    EventSink
	Now     func() time.Time
	NewID   func() string
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:           30 * time.Minute,
		TempPattern:           ".boardedit-*.tmp",
		DetectExternalChanges: true,
		Fsync:                 true,
		Gate:                  security.AllowAll,
		FS:                    OSFS{},
		Sink:                  nopSink{},
		Now:                   time.Now,
		NewID:                 uuid.NewString,
	}
}

// OptionsFromConfig maps the session, commit, format and security sections.
// The journal is opened by the caller, who owns its lifetime.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	gate, err := cfg.Gate()
	if err != nil {
		return Options{}, fmt.Errorf("security: %w", err)
	}
	opts := DefaultOptions()
	opts.IdleTimeout = cfg.GetIdleTimeout()
	opts.MaxSessions = cfg.Session.MaxSessions
	opts.TempPattern = cfg.Commit.TempPattern
	opts.DetectExternalChanges = cfg.Commit.DetectExternalChanges
	opts.Fsync = cfg.Commit.Fsync
	opts.IndentUnit = cfg.Format.Indent
	opts.Gate = gate
	return opts, nil
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = d.IdleTimeout
	}
	if o.TempPattern == "" {
		o.TempPattern = d.TempPattern
	}
	if o.Gate == nil {
		o.Gate = d.Gate
	}
	if o.FS == nil {
		o.FS = d.FS
	}
	if o.Sink == nil {
		o.Sink = d.Sink
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.NewID == nil {
		o.NewID = d.NewID
	}
	return o
}

// Manager owns every session of the process.
//
// Lock order: a session's mu before the manager's mu, never the reverse.
type Manager struct {
	mu       sync.Mutex
	opts     Options
	sessions map[string]*Session
	writers  map[string]string // absolute path -> ACTIVE session id
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	logging.Session("session manager ready: idle_timeout=%s max_sessions=%d", opts.IdleTimeout, opts.MaxSessions)
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		writers:  make(map[string]string),
	}
}

// Open starts an ACTIVE session on path. It fails with OneWriterError while
// another ACTIVE session holds the file.
func (m *Manager) Open(ctx context.Context, path string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperr.IO("open", path, err)
	}

	// Cheap early refusal; the claim below is the authoritative check.
	if holder, ok := m.holder(abs); ok {
		return nil, apperr.OneWriter(abs, holder)
	}

	doc, data, err := m.load(abs)
	if err != nil {
		return nil, err
	}

	now := m.opts.Now()
	s := &Session{
		m:        m,
		id:       m.opts.NewID(),
		path:     abs,
		original: string(data),
		base:     doc,
		work:     doc.Clone(),
		opened:   now,
	}
	s.lastUsed.Store(now.UnixNano())
	s.audit = logging.AuditWithSession(s.id, abs)

	m.mu.Lock()
	if holder, ok := m.holderLocked(abs, now); ok {
		m.mu.Unlock()
		return nil, apperr.OneWriter(abs, holder)
	}
	if m.opts.MaxSessions > 0 && len(m.writers) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, apperr.Validation("open", "max_sessions", "%d sessions already active", len(m.writers))
	}
	m.sessions[s.id] = s
	m.writers[abs] = s.id
	m.mu.Unlock()

	s.audit.SessionOpen(false)
	logging.Session("opened session %s on %s (%d bytes)", s.id, abs, len(data))
	return s, nil
}

// ReadOnly is a parsed snapshot taken outside any session.
type ReadOnly struct {
	Document *document.Document
	// Holder is the ACTIVE session on the file when the snapshot was taken.
	Holder string
}

// Stale reports whether an uncommitted session may make the snapshot out of
// date.
func (r *ReadOnly) Stale() bool { return r.Holder != "" }

// OpenReadOnly parses path without claiming the writer slot.
func (m *Manager) OpenReadOnly(ctx context.Context, path string) (*ReadOnly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperr.IO("open", path, err)
	}
	doc, _, err := m.load(abs)
	if err != nil {
		return nil, err
	}
	r := &ReadOnly{Document: doc}
	if holder, ok := m.holder(abs); ok {
		r.Holder = holder
		logging.SessionWarn("read-only open of %s while session %s is active; contents may be stale", abs, holder)
	}
	logging.AuditWithSession("", abs).SessionOpen(true)
	return r, nil
}

// load performs the security READ check and parses the file.
func (m *Manager) load(abs string) (*document.Document, []byte, error) {
	if err := m.opts.Gate.ValidatePath(abs, security.Read); err != nil {
		logging.AuditWithSession("", abs).SecurityBlock(security.Read.String(), err)
		return nil, nil, err
	}
	data, err := m.opts.FS.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperr.NotFound("open", abs, err)
		}
		return nil, nil, apperr.IO("open", abs, err)
	}
	var opts []document.Option
	if m.opts.IndentUnit != "" {
		opts = append(opts, document.WithIndentUnit(m.opts.IndentUnit))
	}
	doc, err := document.Parse(abs, data, opts...)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// Get returns a session by id, including finished ones.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.SessionNotFound(id)
	}
	m.expireIfIdle(s, m.opts.Now())
	return s, nil
}

// PathOf returns the committed file of a session. Only COMMITTED sessions
// have a path other collaborators may act on.
func (m *Manager) PathOf(id string) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}
	if st := s.State(); st != StateCommitted {
		return "", apperr.SessionState("path_of", id, st.String())
	}
	return s.path, nil
}

// Holder returns the ACTIVE session on path, if any.
func (m *Manager) Holder(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	return m.holder(abs)
}

func (m *Manager) holder(abs string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holderLocked(abs, m.opts.Now())
}

// holderLocked expires an idle holder before reporting it. m.mu must be held.
func (m *Manager) holderLocked(abs string, now time.Time) (string, bool) {
	id, ok := m.writers[abs]
	if !ok {
		return "", false
	}
	if s := m.sessions[id]; s != nil && m.expireIfIdle(s, now) {
		return "", false
	}
	return id, true
}

// Sweep expires every idle ACTIVE session and returns how many it expired.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Now()
	n := 0
	for _, s := range m.sessions {
		if m.expireIfIdle(s, now) {
			n++
		}
	}
	if n > 0 {
		logging.Session("sweep expired %d sessions", n)
	}
	return n
}

// Forget drops a finished session from the table.
func (m *Manager) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return apperr.SessionNotFound(id)
	}
	if st := s.State(); st == StateActive {
		return apperr.SessionState("forget", id, st.String())
	}
	delete(m.sessions, id)
	return nil
}

// Active returns the ids of ACTIVE sessions, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Now()
	ids := make([]string, 0, len(m.writers))
	for abs := range m.writers {
		if id, ok := m.holderLocked(abs, now); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// expireIfIdle moves an idle ACTIVE session to EXPIRED and frees its slot.
// A session in the middle of a commit is left alone. m.mu must be held.
func (m *Manager) expireIfIdle(s *Session, now time.Time) bool {
	if s.committing.Load() {
		return false
	}
	idle := now.Sub(time.Unix(0, s.lastUsed.Load()))
	if idle <= m.opts.IdleTimeout {
		return false
	}
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateExpired)) {
		return false
	}
	m.releaseLocked(s)
	s.audit.Expire(idle)
	logging.Session("session %s expired after %s idle", s.id, idle.Round(time.Second))
	return true
}

// finish moves s from ACTIVE to a terminal state and frees its slot.
func (m *Manager) finish(s *Session, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.state.CompareAndSwap(int32(StateActive), int32(to)) {
		return false
	}
	m.releaseLocked(s)
	return true
}

func (m *Manager) releaseLocked(s *Session) {
	if m.writers[s.path] == s.id {
		delete(m.writers, s.path)
	}
}
