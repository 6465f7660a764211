// Package logging provides categorized logging for boardedit on top of zap.
// Each subsystem logs through its own named child logger; categories can be
// switched off individually. Until Configure or Use is called every logger is
// a no-op, so library callers pay nothing for logging they did not ask for.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // CLI startup, config loading
	CategoryParse       Category = "parse"       // Lexing and parsing
	CategoryDocument    Category = "document"    // Document mutation and projection
	CategoryOps         Category = "ops"         // Operation binding and registry
	CategorySession     Category = "session"     // Session lifecycle
	CategoryCommit      Category = "commit"      // Commit pipeline and file writes
	CategorySecurity    Category = "security"    // Path gate decisions
	CategoryJournal     Category = "journal"     // Commit journal store
	CategoryWatch       Category = "watch"       // File watching
	CategoryPerformance Category = "performance" // Timers
	CategoryAudit       Category = "audit"       // Session audit trail
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // console or json
	File       string          // empty means stderr
	Categories map[string]bool // missing categories are enabled
}

// Logger wraps a sugared zap logger for one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Configure builds the process logger from opts.
func Configure(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch opts.Format {
	case "", "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		cfg.Encoding = "json"
	default:
		return fmt.Errorf("invalid log format %q", opts.Format)
	}

	cfg.OutputPaths = []string{"stderr"}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{opts.File}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	install(logger, opts.Categories)
	Get(CategoryBoot).Debug("logging configured: level=%s format=%s file=%q", level, cfg.Encoding, opts.File)
	return nil
}

// Use installs an already built zap logger, e.g. zaptest.NewLogger in tests.
func Use(logger *zap.Logger) {
	install(logger, nil)
}

func install(logger *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = logger
	categories = cats
	loggers = make(map[Category]*Logger)
}

// Reset returns every logger to a no-op.
func Reset() {
	install(zap.NewNop(), nil)
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	z := base.Named(string(category))
	if categories != nil {
		if enabled, exists := categories[string(category)]; exists && !enabled {
			z = zap.NewNop()
		}
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Zap exposes the structured logger behind l.
func (l *Logger) Zap() *zap.Logger { return l.sugar.Desugar() }

// With returns a logger carrying fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.Desugar().With(fields...).Sugar()}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

func ParseDebug(format string, args ...interface{}) { Get(CategoryParse).Debug(format, args...) }

func Document(format string, args ...interface{}) { Get(CategoryDocument).Info(format, args...) }
func DocumentDebug(format string, args ...interface{}) { Get(CategoryDocument).Debug(format, args...) }

func Ops(format string, args ...interface{}) { Get(CategoryOps).Info(format, args...) }
func OpsDebug(format string, args ...interface{}) { Get(CategoryOps).Debug(format, args...) }

func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }
func SessionWarn(format string, args ...interface{}) { Get(CategorySession).Warn(format, args...) }
func SessionError(format string, args ...interface{}) { Get(CategorySession).Error(format, args...) }

func Commit(format string, args ...interface{}) { Get(CategoryCommit).Info(format, args...) }
func CommitDebug(format string, args ...interface{}) { Get(CategoryCommit).Debug(format, args...) }
func CommitWarn(format string, args ...interface{}) { Get(CategoryCommit).Warn(format, args...) }
func CommitError(format string, args ...interface{}) { Get(CategoryCommit).Error(format, args...) }

func SecurityDebug(format string, args ...interface{}) { Get(CategorySecurity).Debug(format, args...) }
func SecurityWarn(format string, args ...interface{}) { Get(CategorySecurity).Warn(format, args...) }

func Journal(format string, args ...interface{}) { Get(CategoryJournal).Info(format, args...) }
func JournalDebug(format string, args ...interface{}) { Get(CategoryJournal).Debug(format, args...) }
func JournalWarn(format string, args ...interface{}) { Get(CategoryJournal).Warn(format, args...) }

func Watch(format string, args ...interface{}) { Get(CategoryWatch).Info(format, args...) }
func WatchDebug(format string, args ...interface{}) { Get(CategoryWatch).Debug(format, args...) }
func WatchWarn(format string, args ...interface{}) { Get(CategoryWatch).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(CategoryPerformance).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
