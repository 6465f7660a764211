package logging

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one entry of the session audit trail.
type AuditEventType string

const (
	AuditSessionOpen   AuditEventType = "session_open"
	AuditSessionExpire AuditEventType = "session_expire"
	AuditOpApply       AuditEventType = "op_apply"
	AuditOpReject      AuditEventType = "op_reject"
	AuditUndo          AuditEventType = "undo"
	AuditRollback      AuditEventType = "rollback"
	AuditCommit        AuditEventType = "commit"
	AuditCommitFail    AuditEventType = "commit_fail"
	AuditSecurityBlock AuditEventType = "security_block"
)

// AuditEvent is one structured audit entry.
type AuditEvent struct {
	Timestamp  time.Time
	EventType  AuditEventType
	SessionID  string
	Path       string
	Target     string // operation kind, or the thing acted on
	Success    bool
	DurationMs int64
	Error      string
	Message    string
	Fields     map[string]interface{}
}

// AuditLogger writes audit events to the audit category.
type AuditLogger struct {
	sessionID string
	path      string
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger { return &AuditLogger{} }

// AuditWithSession creates an audit logger scoped to a session
func AuditWithSession(sessionID, path string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID, path: path}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	if event.Path == "" {
		event.Path = a.path
	}

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.Time("at", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session", event.SessionID))
	}
	if event.Path != "" {
		fields = append(fields, zap.String("path", event.Path))
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", event.DurationMs))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Fields) > 0 {
		fields = append(fields, zap.Any("fields", event.Fields))
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	Get(CategoryAudit).Zap().Info(msg, fields...)
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// SessionOpen logs a session start
func (a *AuditLogger) SessionOpen(readOnly bool) {
	a.Log(AuditEvent{
		EventType: AuditSessionOpen,
		Success:   true,
		Fields:    map[string]interface{}{"read_only": readOnly},
	})
}

// OpApplied logs an applied or rejected operation
func (a *AuditLogger) OpApplied(kind, description string, err error) {
	e := AuditEvent{EventType: AuditOpApply, Target: kind, Success: err == nil, Message: description}
	if err != nil {
		e.EventType = AuditOpReject
		e.Error = err.Error()
	}
	a.Log(e)
}

// Undo logs an undo of n operations
func (a *AuditLogger) Undo(n int) {
	a.Log(AuditEvent{EventType: AuditUndo, Success: true, Fields: map[string]interface{}{"count": n}})
}

// Rollback logs a discarded session
func (a *AuditLogger) Rollback(discarded int) {
	a.Log(AuditEvent{EventType: AuditRollback, Success: true, Fields: map[string]interface{}{"discarded": discarded}})
}

// Commit logs a commit attempt
func (a *AuditLogger) Commit(ops int, bytes int, durationMs int64, err error) {
	e := AuditEvent{
		EventType:  AuditCommit,
		Success:    err == nil,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"ops": ops, "bytes": bytes},
	}
	if err != nil {
		e.EventType = AuditCommitFail
		e.Error = err.Error()
	}
	a.Log(e)
}

// Expire logs an idle expiry
func (a *AuditLogger) Expire(idle time.Duration) {
	a.Log(AuditEvent{EventType: AuditSessionExpire, Success: true, DurationMs: idle.Milliseconds()})
}

// SecurityBlock logs a path refused by the security gate
func (a *AuditLogger) SecurityBlock(intent string, err error) {
	a.Log(AuditEvent{EventType: AuditSecurityBlock, Target: intent, Error: err.Error()})
}
