// Package security decides which files a session may read and write.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"boardedit/internal/apperr"
	"boardedit/internal/logging"
)

// Intent is what the caller is about to do with a path.
type Intent int

const (
	Read Intent = iota
	Write
)

func (i Intent) String() string {
	if i == Write {
		return "write"
	}
	return "read"
}

// Gate vetoes file access. A non-nil error aborts the calling operation
// before it touches any state.
type Gate interface {
	ValidatePath(path string, intent Intent) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(path string, intent Intent) error

// ValidatePath calls f.
func (f GateFunc) ValidatePath(path string, intent Intent) error { return f(path, intent) }

// AllowAll accepts every path.
var AllowAll Gate = GateFunc(func(string, Intent) error { return nil })

var (
	ErrNullByte     = errors.New("path contains a NUL byte")
	ErrOutsideRoots = errors.New("path is outside the allowed roots")
	ErrExtension    = errors.New("file extension is not allowed")
	ErrNotRegular   = errors.New("path is not a regular file")
)

// DefaultExtensions are the KiCad text formats the editor understands.
var DefaultExtensions = []string{
	".kicad_pcb", ".kicad_sch", ".kicad_mod", ".kicad_sym", ".kicad_wks", ".kicad_dru", ".kicad_pro",
}

// RootGate admits files with an allowed extension that resolve, symlinks
// included, to a location under one of its roots. A gate without roots
// checks extensions only.
type RootGate struct {
	roots      []string
	extensions []string
}

// NewRootGate resolves roots once. Empty extensions means DefaultExtensions.
func NewRootGate(roots, extensions []string) (*RootGate, error) {
	g := &RootGate{extensions: extensions}
	if len(g.extensions) == 0 {
		g.extensions = DefaultExtensions
	}
	for _, root := range roots {
		resolved, err := resolve(root)
		if err != nil {
			return nil, fmt.Errorf("invalid root %q: %w", root, err)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("invalid root %q: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root %q is not a directory", root)
		}
		g.roots = append(g.roots, resolved)
	}
	return g, nil
}

// Roots returns the resolved roots.
func (g *RootGate) Roots() []string { return append([]string(nil), g.roots...) }

// ValidatePath implements Gate.
func (g *RootGate) ValidatePath(path string, intent Intent) error {
	err := g.check(path, intent)
	if err != nil {
		logging.SecurityWarn("blocked %s of %s: %v", intent, path, err)
		return apperr.Security(intent.String(), path, err)
	}
	logging.SecurityDebug("allowed %s of %s", intent, path)
	return nil
}

func (g *RootGate) check(path string, intent Intent) error {
	if strings.IndexByte(path, 0) >= 0 {
		return ErrNullByte
	}
	if !g.extensionAllowed(path) {
		return fmt.Errorf("%w: %q", ErrExtension, filepath.Ext(path))
	}

	resolved, err := resolve(path)
	if err != nil {
		return err
	}
	if info, err := os.Lstat(resolved); err == nil && !info.Mode().IsRegular() {
		return ErrNotRegular
	}
	if len(g.roots) == 0 {
		return nil
	}
	for _, root := range g.roots {
		if within(root, resolved) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOutsideRoots, resolved)
}

func (g *RootGate) extensionAllowed(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range g.extensions {
		if strings.HasSuffix(name, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// resolve returns the absolute, symlink-free form of path. A file that does
// not exist yet is resolved through its directory.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", err
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
