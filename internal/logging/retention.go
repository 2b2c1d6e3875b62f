package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneRunLogs removes per-run log files in dir whose modification time is
// older than retentionDays. keep (the current run's file) and the pointer are
// never removed. It returns the number of files deleted; retentionDays <= 0
// disables pruning.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, keep string) int {
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, runLogGlob))
	if err != nil {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	pruned := 0
	for _, path := range matches {
		if path == keep {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "old run log not removed", "log_retention_failed",
				String(FieldPath, path),
				Error(err),
				String(FieldErrorHint, "check ownership of paths.log_dir"),
				String(FieldImpact, "the file stays on disk"),
			)
			continue
		}
		pruned++
	}
	if pruned > 0 && logger != nil {
		logger.Info("old run logs pruned",
			String(FieldEventType, "log_pruned"),
			Int("files", pruned),
			Int("retention_days", retentionDays),
		)
	}
	return pruned
}
