package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"slowmo/internal/config"
	"slowmo/internal/daemon"
	"slowmo/internal/deps"
	"slowmo/internal/history"
	"slowmo/internal/ledger"
	"slowmo/internal/lifecycle"
	"slowmo/internal/logging"
	"slowmo/internal/metrics"
	"slowmo/internal/monitor"
	"slowmo/internal/notifications"
	"slowmo/internal/platform"
	"slowmo/internal/preflight"
	"slowmo/internal/render"
	"slowmo/internal/render/ffmpeg"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel    string
	Development bool
	// ConfigPath is reported in the startup record.
	ConfigPath string
}

// Run starts the slowmo daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	logPath := logging.RunLogPath(cfg.Paths.LogDir, time.Now())

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    logPath,
		Development: opts.Development,
		RunID:       runID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logStartup(logger, cfg, opts.ConfigPath, logPath)
	logDependencySnapshot(logger, cfg)

	if failed := preflight.Failed(preflight.RunAll(cfg)); len(failed) > 0 {
		for _, result := range failed {
			logging.ErrorWithContext(logger, "directory check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "create the directory or fix its permissions"),
			)
		}
		return fmt.Errorf("preflight failed: %s", failed[0].Detail)
	}

	m := metrics.New()
	d, err := daemon.New(cfg, m, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// Everything below touches files shared with a running instance.
	if err := d.Lock(); err != nil {
		logging.ErrorWithContext(logger, "daemon start refused", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other slowmo instance first"),
		)
		return err
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		logging.WarnWithContext(logger, "log pointer not updated", "log_pointer_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "slowmo logs shows an older run"),
		)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	journal, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Error("open history journal", logging.Error(err))
		return err
	}
	defer journal.Close()

	notifier := notifications.NewService(cfg)
	mon := buildMonitor(cfg, runID, journal, m, notifier, logger)

	if err := d.Start(signalCtx, mon); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.bind"),
		)
		return err
	}
	if err := notifier.Publish(signalCtx, notifications.EventDaemonStarted, notifications.Payload{"input_dir": cfg.Paths.InputDir}); err != nil {
		logging.WarnWithContext(logger, "startup notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
		)
	}

	<-signalCtx.Done()
	logger.Info("slowmo daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	logger.Info("run summary",
		logging.String(logging.FieldEventType, "run_summary"),
		logging.Int("handled", mon.Ledger().Len()),
		logging.Int64("dropped_log_writes", logging.DroppedWrites()),
	)
	return nil
}

// buildMonitor wires the engine, orchestrator, lifecycle manager and ledger.
func buildMonitor(cfg *config.Config, runID string, journal monitor.Journal, m *metrics.Metrics, notifier monitor.Notifier, logger *slog.Logger) *monitor.Monitor {
	ffprobe := deps.ResolveFFprobe(cfg.Engine.FFmpegBinary, cfg.Engine.FFprobeBinary)
	engine := ffmpeg.New(ffmpeg.Options{
		FFmpegBinary:  cfg.Engine.FFmpegBinary,
		FFprobeBinary: ffprobe.Command,
		VideoCodec:    cfg.Engine.VideoCodec,
		CRF:           cfg.Engine.CRF,
		Preset:        cfg.Engine.Preset,
		Logger:        logger,
	})
	orchestrator := render.NewOrchestrator(engine, render.Settings{
		InputDir:        cfg.Paths.InputDir,
		OutputDir:       cfg.Paths.OutputDir,
		TimeStretch:     cfg.Processing.TimeStretch,
		ApplyBulletTime: cfg.Processing.ApplyBulletTime,
		TemplatePath:    cfg.Processing.TemplatePath,
	}, logger)

	handled := ledger.New()
	manager := lifecycle.NewManager(lifecycle.Options{
		Marker:       cfg.Processing.Marker,
		ProcessedDir: cfg.Paths.ProcessedDir,
		Platform:     platform.Default(),
		Ledger:       handled,
		Logger:       logger,
	})

	opts := monitor.Options{
		InputDir:      cfg.Paths.InputDir,
		Marker:        cfg.Processing.Marker,
		PollInterval:  cfg.CheckInterval(),
		RenderTimeout: cfg.RenderTimeout(),
		MaxAttempts:   cfg.Engine.MaxAttempts,
		RunID:         runID,
		Ledger:        handled,
		Renderer:      orchestrator,
		Lifecycle:     manager,
		Journal:       journal,
		Notifier:      notifier,
		Logger:        logger,
	}
	if m != nil {
		opts.Observer = m
	}
	return monitor.New(opts)
}

// logStartup records where this run reads and writes; it replaces a separate
// startup debug file.
func logStartup(logger *slog.Logger, cfg *config.Config, configPath, logPath string) {
	processed := cfg.Paths.ProcessedDir
	if processed == "" {
		processed = "(disabled)"
	}
	logger.Info("slowmo starting",
		logging.String(logging.FieldEventType, "startup"),
		logging.String("platform", runtime.GOOS+"/"+runtime.GOARCH),
		logging.String("fs_capabilities", platform.Default().Name()),
		logging.String("go_version", runtime.Version()),
		logging.String("config_path", configPath),
		logging.String("log_path", logPath),
	)
	logger.Debug("resolved directories",
		logging.String(logging.FieldEventType, "startup_paths"),
		logging.String("input_dir", cfg.Paths.InputDir),
		logging.String("output_dir", cfg.Paths.OutputDir),
		logging.String("processed_dir", processed),
		logging.String("log_dir", cfg.Paths.LogDir),
		logging.String("state_dir", cfg.Paths.StateDir),
		logging.Float64("time_stretch", cfg.Processing.TimeStretch),
		logging.Bool("apply_bullet_time", cfg.Processing.ApplyBulletTime),
		logging.Duration("check_interval", cfg.CheckInterval()),
		logging.String("marker", cfg.Processing.Marker),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.PointerName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := preflight.CheckSystemDeps(cfg)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("template_configured", strings.TrimSpace(cfg.Processing.TemplatePath) != ""),
		logging.Bool("metrics_enabled", cfg.Metrics.Bind != ""),
	}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "engine binary missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set engine."+strings.ToLower(missing.Name)+"_binary"),
			logging.String(logging.FieldImpact, "every render fails until the binary is available"),
		)
	}
}
