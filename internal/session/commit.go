package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/journal"
	"boardedit/internal/logging"
	"boardedit/internal/security"

	"github.com/cespare/xxhash/v2"
)

// CommitResult describes a finished commit.
type CommitResult struct {
	Path      string
	Written   bool // false when the working copy matched the opened file
	Bytes     int
	Ops       int
	OldHash   uint64
	NewHash   uint64
	JournalID int64 // 0 without a journal or when recording failed
	Duration  time.Duration
}

// Commit publishes the working copy: print, re-parse, security WRITE check,
// external change check, then a temp file in the target directory renamed
// over the target. Any failure leaves the session ACTIVE and the file
// untouched. A working copy identical to the opened file is committed
// without writing.
func (s *Session) Commit(ctx context.Context) (*CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "commit"); err != nil {
		return nil, err
	}
	s.committing.Store(true)
	defer s.committing.Store(false)

	start := time.Now()
	text := s.work.Text()
	res := &CommitResult{
		Path:    s.path,
		Bytes:   len(text),
		Ops:     s.live,
		OldHash: s.base.Fingerprint(),
		NewHash: xxhash.Sum64String(text),
	}

	if text == s.original {
		if !s.m.finish(s, StateCommitted) {
			return nil, apperr.SessionState("commit", s.id, s.State().String())
		}
		res.Duration = time.Since(start)
		logging.Commit("session %s committed with no changes; %s not written", s.id, s.path)
		s.audit.Commit(s.live, 0, res.Duration.Milliseconds(), nil)
		return res, nil
	}

	if err := s.publish(text); err != nil {
		err = s.tag(err)
		s.audit.Commit(s.live, len(text), time.Since(start).Milliseconds(), err)
		logging.CommitWarn("commit of session %s failed: %v", s.id, err)
		return nil, err
	}

	if !s.m.finish(s, StateCommitted) {
		// Only reachable if the session was closed while the file was written.
		logging.CommitError("session %s wrote %s but is %s", s.id, s.path, s.State())
		return nil, apperr.SessionState("commit", s.id, s.State().String())
	}
	res.Written = true
	res.Duration = time.Since(start)

	if j := s.m.opts.Journal; j != nil {
		id, err := j.Record(ctx, journal.Entry{
			SessionID:   s.id,
			Path:        s.path,
			CommittedAt: s.m.opts.Now(),
			Kinds:       s.kinds(),
			OldHash:     res.OldHash,
			NewHash:     res.NewHash,
			Bytes:       res.Bytes,
			Description: s.description,
		})
		if err != nil {
			logging.JournalWarn("commit of %s succeeded but was not journaled: %v", s.path, err)
		}
		res.JournalID = id
	}

	s.audit.Commit(s.live, res.Bytes, res.Duration.Milliseconds(), nil)
	logging.Commit("session %s committed %d operations to %s (%d bytes, %s)", s.id, s.live, s.path, res.Bytes, res.Duration)
	return res, nil
}

// publish validates text and atomically replaces the target with it.
func (s *Session) publish(text string) error {
	timer := logging.StartTimer(logging.CategoryCommit, "publish "+s.path)
	defer timer.Stop()

	if _, err := document.Parse(s.path, []byte(text)); err != nil {
		return fmt.Errorf("printed document does not re-parse: %w", err)
	}

	if err := s.m.opts.Gate.ValidatePath(s.path, security.Write); err != nil {
		s.audit.SecurityBlock(security.Write.String(), err)
		return err
	}

	fsys := s.m.opts.FS
	if s.m.opts.DetectExternalChanges {
		current, err := fsys.ReadFile(s.path)
		if err != nil {
			return apperr.IO("commit", s.path, err)
		}
		if xxhash.Sum64(current) != s.base.Fingerprint() {
			return apperr.IO("commit", s.path, ErrExternalChange)
		}
	}

	return writeAtomic(fsys, s.path, text, s.m.opts.TempPattern, s.m.opts.Fsync)
}

// writeAtomic writes text to a temp file beside path and renames it over
// path. The temp file is removed on every failure.
func writeAtomic(fsys FileSystem, path, text, pattern string, sync bool) (err error) {
	mode := fs.FileMode(0644)
	if info, statErr := fsys.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return apperr.IO("commit", path, statErr)
	}

	tmp, err := fsys.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return apperr.IO("commit", path, fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		if rmErr := fsys.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logging.CommitWarn("failed to remove temp file %s: %v", tmpName, rmErr)
		}
	}()

	if _, err = tmp.Write([]byte(text)); err != nil {
		return apperr.IO("commit", path, fmt.Errorf("write temp file: %w", err))
	}
	if sync {
		if err = tmp.Sync(); err != nil {
			return apperr.IO("commit", path, fmt.Errorf("sync temp file: %w", err))
		}
	}
	if err = tmp.Chmod(mode); err != nil {
		return apperr.IO("commit", path, fmt.Errorf("chmod temp file: %w", err))
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return apperr.IO("commit", path, fmt.Errorf("close temp file: %w", err))
	}
	if err = fsys.Rename(tmpName, path); err != nil {
		return apperr.IO("commit", path, fmt.Errorf("rename temp file: %w", err))
	}
	logging.CommitDebug("replaced %s via %s", path, filepath.Base(tmpName))
	return nil
}

// kinds lists the applied operation kinds in order. s.mu must be held.
func (s *Session) kinds() []string {
	out := make([]string, 0, s.live)
	for _, rec := range s.records[:s.live] {
		out = append(out, rec.Kind)
	}
	return out
}
