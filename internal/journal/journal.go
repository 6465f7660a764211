// Package journal keeps a history of committed sessions in SQLite.
// Undo history is not persisted; the journal only records what reached disk.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"boardedit/internal/logging"

	_ "modernc.org/sqlite"
)

// Entry is one committed session.
type Entry struct {
	ID          int64
	SessionID   string
	Path        string
	CommittedAt time.Time
	Kinds       []string // operation kinds in apply order
	OldHash     uint64   // fingerprint of the file before the commit
	NewHash     uint64   // fingerprint of the written file
	Bytes       int
	Description string
}

// Ops returns the number of operations in the commit.
func (e Entry) Ops() int { return len(e.Kinds) }

// Journal is the commit history store.
type Journal struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens (creating if needed) the journal database at path.
// ":memory:" gives a private in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is per connection, and writes
	// are serialized by mu anyway.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, dbPath: path}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.JournalDebug("journal opened at %s", path)
	return j, nil
}

func (j *Journal) initialize() error {
	commitsTable := `
	CREATE TABLE IF NOT EXISTS commits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		path TEXT NOT NULL,
		committed_at INTEGER NOT NULL,
		kinds TEXT NOT NULL DEFAULT '[]',
		old_hash TEXT NOT NULL,
		new_hash TEXT NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_commits_path ON commits(path);
	CREATE INDEX IF NOT EXISTS idx_commits_session ON commits(session_id);
	`
	if _, err := j.db.Exec(commitsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return RunMigrations(j.db)
}

// Path returns the database location.
func (j *Journal) Path() string { return j.dbPath }

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a commit and returns its id.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.CommittedAt.IsZero() {
		e.CommittedAt = time.Now()
	}
	kinds := e.Kinds
	if kinds == nil {
		kinds = []string{}
	}
	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return 0, fmt.Errorf("failed to encode kinds: %w", err)
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO commits (session_id, path, committed_at, kinds, old_hash, new_hash, bytes, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Path, e.CommittedAt.UnixNano(), string(kindsJSON),
		formatHash(e.OldHash), formatHash(e.NewHash), e.Bytes, e.Description,
	)
	if err != nil {
		logging.JournalWarn("failed to record commit of %s: %v", e.Path, err)
		return 0, fmt.Errorf("failed to record commit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.JournalDebug("recorded commit %d: session=%s path=%s ops=%d", id, e.SessionID, e.Path, len(kinds))
	return id, nil
}

// History returns the most recent commits, newest first. An empty path
// returns commits for every file; limit <= 0 means 50.
func (j *Journal) History(ctx context.Context, path string, limit int) ([]Entry, error) {
	timer := logging.StartTimer(logging.CategoryJournal, "History")
	defer timer.Stop()

	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session_id, path, committed_at, kinds, old_hash, new_hash, bytes, description
		FROM commits`
	args := []any{}
	if path != "" {
		query += ` WHERE path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			at                int64
			kinds, oldH, newH string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Path, &at, &kinds, &oldH, &newH, &e.Bytes, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		e.CommittedAt = time.Unix(0, at)
		if err := json.Unmarshal([]byte(kinds), &e.Kinds); err != nil {
			logging.JournalWarn("commit %d has unreadable kinds: %v", e.ID, err)
		}
		e.OldHash, _ = strconv.ParseUint(oldH, 16, 64)
		e.NewHash, _ = strconv.ParseUint(newH, 16, 64)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// formatHash stores hashes as hex text; SQLite integers are signed.
func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
