// Package logging wires decred/slog subsystem loggers to stdout and a
// rotating log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

type LogConfig struct {
	// LogFile is the rotated log path. Empty disables file output.
	LogFile string
	// DebugLevel is one of trace, debug, info, warn, error, critical, off.
	DebugLevel string
	// MaxLogFiles is how many rolled files are kept.
	MaxLogFiles int
	// MaxLogSizeKB is the roll threshold.
	MaxLogSizeKB int64
	// Stdout receives a copy of every line. Nil means os.Stdout; use
	// io.Discard to silence it.
	Stdout io.Writer
}

// LogBackend hands out one slog.Logger per subsystem, all sharing a level.
type LogBackend struct {
	mu      sync.Mutex
	backend *slog.Backend
	rotator *rotator.Rotator
	level   slog.Level
	loggers map[string]slog.Logger
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	lvl, ok := slog.LevelFromString(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return 0, fmt.Errorf("unknown debug level: %q", s)
	}
	return lvl, nil
}

func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	level := slog.LevelInfo
	if cfg.DebugLevel != "" {
		var err error
		if level, err = ParseLevel(cfg.DebugLevel); err != nil {
			return nil, err
		}
	}

	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}

	var r *rotator.Rotator
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		maxRolls := cfg.MaxLogFiles
		if maxRolls <= 0 {
			maxRolls = 3
		}
		sizeKB := cfg.MaxLogSizeKB
		if sizeKB <= 0 {
			sizeKB = 10 * 1024
		}
		var err error
		r, err = rotator.New(cfg.LogFile, sizeKB, false, maxRolls)
		if err != nil {
			return nil, fmt.Errorf("create log rotator: %w", err)
		}
		out = io.MultiWriter(out, r)
	}

	return &LogBackend{
		backend: slog.NewBackend(out),
		rotator: r,
		level:   level,
		loggers: make(map[string]slog.Logger),
	}, nil
}

// Logger returns the logger for subsystem, creating it on first use.
func (b *LogBackend) Logger(subsystem string) slog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.loggers[subsystem]; ok {
		return l
	}
	l := b.backend.Logger(subsystem)
	l.SetLevel(b.level)
	b.loggers[subsystem] = l
	return l
}

// SetLevel changes the level of every logger handed out so far and of
// future ones.
func (b *LogBackend) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = lvl
	for _, l := range b.loggers {
		l.SetLevel(lvl)
	}
	return nil
}

func (b *LogBackend) Level() slog.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

func (b *LogBackend) Close() error {
	if b.rotator == nil {
		return nil
	}
	return b.rotator.Close()
}
