package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"slowmo/internal/config"
	"slowmo/internal/logging"
	"slowmo/internal/metrics"
)

// Loop is the background work the daemon runs, normally a monitor.Monitor.
type Loop interface {
	Run(ctx context.Context) error
	Busy() bool
}

// Daemon owns the lock file, the monitor goroutine and the metrics server.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	loop    Loop
	metrics *metrics.Metrics

	lockPath string
	lock     *flock.Flock
	server   *metrics.Server

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Busy         bool
	LockFilePath string
	HistoryPath  string
	MetricsAddr  string
}

// New constructs a daemon. m may be nil when metrics are disabled.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		metrics:  m,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// ErrAlreadyRunning reports that another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another slowmo daemon instance is already running")

// Lock acquires the single-instance lock without starting anything, so the
// caller can claim shared files (log pointer, pid file) only once it owns the
// instance. Calling Lock again while holding it is a no-op.
func (d *Daemon) Lock() error {
	if d.lock.Locked() {
		return nil
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}
	return nil
}

// Start acquires the daemon lock if Lock was not called, starts the metrics
// endpoint when configured, and launches loop.
func (d *Daemon) Start(ctx context.Context, loop Loop) error {
	if loop == nil {
		return errors.New("daemon requires a monitor loop")
	}
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.Lock(); err != nil {
		return err
	}

	if bind := d.cfg.Metrics.Bind; bind != "" && d.metrics != nil {
		server, err := metrics.Listen(bind, d.metrics, d.logger)
		if err != nil {
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
		d.server = server
		go func() {
			if err := server.Serve(); err != nil {
				logging.WarnWithContext(d.logger, "metrics endpoint stopped", "metrics_serve_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check metrics.bind"),
					logging.String(logging.FieldImpact, "processing continues without /metrics"),
				)
			}
		}()
	}

	d.loop = loop
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan error, 1)
	go func() {
		d.done <- loop.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("slowmo daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop cancels the monitor, waits for the current tick to finish and shuts
// the metrics endpoint down. The lock stays held until Close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		if err := <-d.done; err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("monitor loop ended with error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "monitor_failed"),
				logging.String(logging.FieldErrorHint, "check earlier log lines"),
			)
		}
		d.done = nil
	}
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Debug("metrics shutdown incomplete", logging.Error(err))
		}
		cancel()
		d.server = nil
	}
	d.running.Store(false)
	d.logger.Info("slowmo daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon if it is running and releases the instance lock.
func (d *Daemon) Close() error {
	d.Stop()
	if !d.lock.Locked() {
		return nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start is refused"),
			logging.String(logging.FieldImpact, "the next start may be refused"),
		)
		return err
	}
	return nil
}

// Status reports the daemon's runtime state.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		HistoryPath:  d.cfg.HistoryPath(),
	}
	if d.loop != nil {
		status.Busy = d.loop.Busy()
	}
	if d.server != nil {
		status.MetricsAddr = d.server.Addr()
	}
	return status
}
