package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// PointerName is the stable name in the log directory that always
	// resolves to the newest run's file.
	PointerName = "slowmo.log"
	runLogGlob  = "slowmo-*.log"
)

// Options describes how New builds a logger.
type Options struct {
	Level  string
	Format string
	// Console receives every record once; nil means os.Stdout.
	Console io.Writer
	// Quiet disables the console sink.
	Quiet bool
	// FilePath is the per-run log file. Empty means console only.
	FilePath    string
	Development bool
	// RunID, when set, is attached to every record as run_id.
	RunID string
}

// New constructs a slog logger writing to the console and the run file.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	addSource := opts.Development || level <= slog.LevelDebug

	out, err := openSinks(opts)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "json":
		handler = newJSONHandler(out, level, addSource)
	case "console", "":
		handler = newConsoleHandler(out, level, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	logger := slog.New(handler)
	if opts.RunID != "" {
		logger = logger.With(String(FieldRunID, opts.RunID))
	}
	return logger, nil
}

// RunLogPath names the log file for a run started at started.
func RunLogPath(dir string, started time.Time) string {
	stamp := started.UTC().Format("20060102T150405.000Z")
	return filepath.Join(dir, "slowmo-"+stamp+".log")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openSinks(opts Options) (io.Writer, error) {
	var sinks []io.Writer
	if !opts.Quiet {
		console := opts.Console
		if console == nil {
			console = os.Stdout
		}
		sinks = append(sinks, console)
	}
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		sinks = append(sinks, file)
	}
	if len(sinks) == 0 {
		return io.Discard, nil
	}
	return fanout(sinks), nil
}

var droppedWrites atomic.Int64

// fanout writes each record to every sink. A failing sink never reports an
// error upstream and never stops the remaining sinks from receiving it.
type fanout []io.Writer

func (f fanout) Write(p []byte) (int, error) {
	for _, w := range f {
		if _, err := w.Write(p); err != nil {
			droppedWrites.Add(1)
		}
	}
	return len(p), nil
}

// DroppedWrites reports how many sink writes failed since start.
func DroppedWrites() int64 {
	return droppedWrites.Load()
}
