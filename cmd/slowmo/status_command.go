package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"slowmo/internal/config"
	"slowmo/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check engine binaries, directories and whether a daemon holds the lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := writeStatusReport(out, cfg, ctx.configPath, ctx.configExists, colorize)
			if problems > 0 {
				return fmt.Errorf("%d check(s) failed", problems)
			}
			return nil
		},
	}
}

// writeStatusReport prints every section and returns the number of failed
// required checks.
func writeStatusReport(out io.Writer, cfg *config.Config, configPath string, configExists bool, colorize bool) int {
	problems := 0

	fmt.Fprintln(out, renderSectionHeader("Configuration", colorize))
	if configExists {
		fmt.Fprintln(out, renderStatusLine("Config file", statusOK, configPath, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Config file", statusInfo, "not found, using defaults ("+configPath+")", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Time stretch", statusInfo, fmt.Sprintf("%gx, bullet time %s", cfg.Processing.TimeStretch, yesNo(cfg.Processing.ApplyBulletTime)), colorize))
	if strings.TrimSpace(cfg.Processing.TemplatePath) != "" {
		fmt.Fprintln(out, renderStatusLine("Template", statusInfo, cfg.Processing.TemplatePath, colorize))
	}

	if topic := cfg.Notifications.NtfyTopic; topic != "" {
		fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, topic, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, "disabled", colorize))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Engine", colorize))
	for _, status := range preflight.CheckSystemDeps(cfg) {
		switch {
		case status.Available:
			fmt.Fprintln(out, renderStatusLine(status.Name, statusOK, status.Command, colorize))
		case status.Optional:
			fmt.Fprintln(out, renderStatusLine(status.Name, statusWarn, status.Detail, colorize))
		default:
			problems++
			fmt.Fprintln(out, renderStatusLine(status.Name, statusError, status.Detail, colorize))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Directories", colorize))
	for _, result := range preflight.RunAll(cfg) {
		if result.Passed {
			fmt.Fprintln(out, renderStatusLine(result.Name, statusOK, result.Detail, colorize))
			continue
		}
		problems++
		fmt.Fprintln(out, renderStatusLine(result.Name, statusError, result.Detail, colorize))
	}
	if cfg.Paths.ProcessedDir == "" {
		fmt.Fprintln(out, renderStatusLine("Processed directory", statusInfo, "disabled, originals stay in the input directory", colorize))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
	kind, message := daemonLockState(cfg.LockPath(), cfg.PIDPath())
	fmt.Fprintln(out, renderStatusLine("Instance lock", kind, message, colorize))
	if cfg.Metrics.Bind != "" {
		fmt.Fprintln(out, renderStatusLine("Metrics", statusInfo, "http://"+cfg.Metrics.Bind+"/metrics", colorize))
	}
	return problems
}

// daemonLockState probes the instance lock without holding it. The pid file
// is only trusted while the lock is held.
func daemonLockState(lockPath, pidPath string) (statusKind, string) {
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return statusWarn, fmt.Sprintf("cannot probe %s: %v", lockPath, err)
	}
	if locked {
		_ = lock.Unlock()
		return statusInfo, "not running"
	}
	if pid, ok := readPID(pidPath); ok {
		return statusOK, fmt.Sprintf("running (pid %d)", pid)
	}
	return statusOK, "running (" + lockPath + ")"
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
