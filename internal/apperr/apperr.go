// Package apperr defines the closed error taxonomy shared by the parser,
// document, operation and session layers.
//
// Every failure that crosses a package boundary is an *Error with a Kind and
// whatever structured context the failing layer knew (path, offset, node,
// parameter, session). Callers branch with errors.Is against the sentinels
// below and render text only at the outer boundary.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Kind tags an error with its taxonomy class.
type Kind string

const (
	KindSyntax         Kind = "syntax"
	KindNotFound       Kind = "not_found"
	KindIO             Kind = "io"
	KindSecurity       Kind = "security"
	KindValidation     Kind = "validation"
	KindOneWriter      Kind = "one_writer"
	KindNothingToUndo  Kind = "nothing_to_undo"
	KindSessionState   Kind = "session_state"
	KindExpiredSession Kind = "expired_session"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrSyntax         = &Error{Kind: KindSyntax}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrIO             = &Error{Kind: KindIO}
	ErrSecurity       = &Error{Kind: KindSecurity}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrOneWriter      = &Error{Kind: KindOneWriter}
	ErrNothingToUndo  = &Error{Kind: KindNothingToUndo}
	ErrSessionState   = &Error{Kind: KindSessionState}
	ErrExpiredSession = &Error{Kind: KindExpiredSession}
)

// NoOffset marks an Error without a source position.
const NoOffset = -1

// Error is the single concrete error type of the module.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "parse", "commit", "move_component"
	Path    string // file path, when one is involved
	Offset  int    // byte offset into the source (syntax errors), NoOffset otherwise
	Node    uint64 // offending node id, 0 when not applicable
	Param   string // offending parameter name
	Session string // session id
	Msg     string
	Err     error // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Offset > NoOffset && e.Kind == KindSyntax {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind so wrapped and decorated errors still compare
// equal to their class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Op == ""
}

// MarshalLogObject lets callers log an error with zap.Object and keep every
// structured field.
func (e *Error) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", string(e.Kind))
	if e.Op != "" {
		enc.AddString("op", e.Op)
	}
	if e.Path != "" {
		enc.AddString("path", e.Path)
	}
	if e.Offset > NoOffset {
		enc.AddInt("offset", e.Offset)
	}
	if e.Node != 0 {
		enc.AddUint64("node", e.Node)
	}
	if e.Param != "" {
		enc.AddString("param", e.Param)
	}
	if e.Session != "" {
		enc.AddString("session", e.Session)
	}
	if e.Msg != "" {
		enc.AddString("msg", e.Msg)
	}
	if e.Err != nil {
		enc.AddString("cause", e.Err.Error())
	}
	return nil
}

// KindOf returns the Kind of err, or "" if err is not from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As is a shorthand for errors.As into *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// Syntax reports malformed input at a byte offset.
func Syntax(offset int, format string, args ...any) *Error {
	return &Error{Kind: KindSyntax, Op: "parse", Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing file or session.
func NotFound(op, path string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Path: path, Offset: NoOffset, Err: err}
}

// SessionNotFound reports an unknown session id.
func SessionNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Op: "session", Session: id, Offset: NoOffset, Msg: "no such session"}
}

// IO wraps a filesystem failure.
func IO(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Offset: NoOffset, Err: err}
}

// Security wraps a veto from the path gate.
func Security(op, path string, err error) *Error {
	return &Error{Kind: KindSecurity, Op: op, Path: path, Offset: NoOffset, Err: err}
}

// Validation reports an unmet operation precondition.
func Validation(op, param string, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Param: param, Offset: NoOffset, Msg: fmt.Sprintf(format, args...)}
}

// ValidationAt is Validation with an offending node id.
func ValidationAt(op string, node uint64, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Node: node, Offset: NoOffset, Msg: fmt.Sprintf(format, args...)}
}

// OneWriter reports a conflicting session open.
func OneWriter(path, holder string) *Error {
	return &Error{
		Kind:    KindOneWriter,
		Op:      "open",
		Path:    path,
		Session: holder,
		Offset:  NoOffset,
		Msg:     fmt.Sprintf("session %s already holds the writer slot", holder),
	}
}

// NothingToUndo reports an undo request the log cannot satisfy.
func NothingToUndo(session string, requested, available int) *Error {
	return &Error{
		Kind:    KindNothingToUndo,
		Op:      "undo",
		Session: session,
		Offset:  NoOffset,
		Msg:     fmt.Sprintf("requested %d, %d available", requested, available),
	}
}

// SessionState reports an operation on a session that is no longer ACTIVE.
func SessionState(op, session, state string) *Error {
	return &Error{
		Kind:    KindSessionState,
		Op:      op,
		Session: session,
		Offset:  NoOffset,
		Msg:     fmt.Sprintf("session is %s", state),
	}
}

// Expired reports an operation on a session that timed out.
func Expired(op, session string) *Error {
	return &Error{Kind: KindExpiredSession, Op: op, Session: session, Offset: NoOffset, Msg: "session expired"}
}

// WithPath returns a copy of e carrying path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// WithSession returns a copy of e carrying a session id.
func (e *Error) WithSession(id string) *Error {
	c := *e
	c.Session = id
	return &c
}
