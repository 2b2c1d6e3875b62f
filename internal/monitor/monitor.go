// Package monitor polls the input directory and dispatches at most one render
// per tick.
//
// A Monitor owns the run's dedup ledger and its busy flag. Ticks never
// overlap: a tick that starts while another is still running returns at once.
// Everything that goes wrong for a single file is handled inside the tick; a
// panic is recovered and logged so the next tick runs normally.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"slowmo/internal/history"
	"slowmo/internal/ledger"
	"slowmo/internal/lifecycle"
	"slowmo/internal/logging"
	"slowmo/internal/media"
	"slowmo/internal/notifications"
	"slowmo/internal/render"
	"slowmo/internal/scanner"
)

// AnomalyAttemptsExhausted is raised when a file has failed the engine
// engine.max_attempts times in this run and is no longer retried.
const AnomalyAttemptsExhausted = "render_attempts_exhausted"

// DefaultEffectRetryInterval is how long a file whose effect was unavailable
// waits before it is dispatched again.
const DefaultEffectRetryInterval = 5 * time.Minute

// Renderer produces a render outcome for one source file.
type Renderer interface {
	Render(ctx context.Context, file media.SourceFile) render.Outcome
}

// Lifecycle marks and relocates rendered files.
type Lifecycle interface {
	Complete(file media.SourceFile) lifecycle.RelocationState
	Relocate(file media.SourceFile) lifecycle.RelocationState
	ProcessedConfigured() bool
}

// Journal records dispatches. Failures are logged, never fatal.
type Journal interface {
	Record(ctx context.Context, entry history.Entry) (int64, error)
}

// Observer receives counters for the metrics endpoint.
type Observer interface {
	TickCompleted(result string)
	SetBusy(busy bool)
	Dispatched(outcome string, elapsed time.Duration)
	LifecycleFinished(terminal string, anomalies []string)
	Anomaly(kind string)
	RelocationRetried(result string)
	SetLedgerSize(n int)
}

// Notifier pushes operator alerts. Delivery failures are logged, never fatal.
type Notifier interface {
	Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error
}

// Options wires a Monitor.
type Options struct {
	InputDir      string
	Marker        string
	PollInterval  time.Duration
	RenderTimeout time.Duration
	MaxAttempts   int
	RunID         string

	// EffectRetryInterval defers a file after EffectUnavailable; zero means
	// DefaultEffectRetryInterval.
	EffectRetryInterval time.Duration

	Ledger    *ledger.Ledger
	Renderer  Renderer
	Lifecycle Lifecycle
	Journal   Journal
	Observer  Observer
	Notifier  Notifier
	Logger    *slog.Logger
}

// Monitor is the explicit per-run state of the watcher.
type Monitor struct {
	opts      Options
	ledger    *ledger.Ledger
	renderer  Renderer
	lifecycle Lifecycle
	journal   Journal
	observer  Observer
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	scan      func(inputDir, marker string, handled scanner.Handled) (scanner.Result, error)

	busy atomic.Bool

	// attempts counts engine failures per identity.
	attempts      map[string]int
	// effectWarned holds identities already reported as effect-unavailable.
	effectWarned  map[string]bool
	// effectRetryAt defers effect-unavailable identities until the given time.
	effectRetryAt map[string]time.Time
}

// New builds a Monitor. A nil Ledger gets a fresh one.
func New(opts Options) *Monitor {
	if opts.Ledger == nil {
		opts.Ledger = ledger.New()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.EffectRetryInterval <= 0 {
		opts.EffectRetryInterval = DefaultEffectRetryInterval
	}
	return &Monitor{
		opts:          opts,
		ledger:        opts.Ledger,
		renderer:      opts.Renderer,
		lifecycle:     opts.Lifecycle,
		journal:       opts.Journal,
		observer:      opts.Observer,
		notifier:      opts.Notifier,
		logger:        logging.NewComponentLogger(opts.Logger, "monitor"),
		now:           time.Now,
		scan:          scanner.Scan,
		attempts:      make(map[string]int),
		effectWarned:  make(map[string]bool),
		effectRetryAt: make(map[string]time.Time),
	}
}

// Ledger exposes the run's ledger for status reporting.
func (m *Monitor) Ledger() *ledger.Ledger {
	return m.ledger
}

// Busy reports whether a tick is in progress.
func (m *Monitor) Busy() bool {
	return m.busy.Load()
}

// Run ticks immediately, then every poll interval, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		logging.String(logging.FieldEventType, "monitor_started"),
		logging.String("input_dir", m.opts.InputDir),
		logging.Duration("interval", m.opts.PollInterval),
	)
	m.Tick(ctx)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped",
				logging.String(logging.FieldEventType, "monitor_stopped"),
				logging.Int("handled", m.ledger.Len()),
			)
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one scan-relocate-dispatch pass.
func (m *Monitor) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !m.busy.CompareAndSwap(false, true) {
		m.logger.Debug("tick skipped; previous tick still running")
		m.observe(func(o Observer) { o.TickCompleted("skipped_busy") })
		return
	}
	m.observe(func(o Observer) { o.SetBusy(true) })
	result := "completed"
	defer func() {
		m.busy.Store(false)
		m.observe(func(o Observer) {
			o.SetBusy(false)
			o.SetLedgerSize(m.ledger.Len())
			o.TickCompleted(result)
		})
	}()
	defer func() {
		if r := recover(); r != nil {
			result = "panicked"
			logging.ErrorWithContext(m.logger, "tick panicked; monitor continues", "tick_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this with the log file"),
			)
		}
	}()

	m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) {
	scan, err := m.scan(m.opts.InputDir, m.opts.Marker, m.ledger)
	if err != nil {
		logging.WarnWithContext(m.logger, "input directory scan failed", "scan_failed",
			logging.String(logging.FieldPath, m.opts.InputDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that paths.input_dir exists and is readable"),
			logging.String(logging.FieldImpact, "no files are processed until the scan succeeds"),
		)
		return
	}
	if scan.Skipped > 0 {
		m.logger.Debug("scan skipped entries", logging.Int("skipped", scan.Skipped))
	}

	if m.lifecycle.ProcessedConfigured() {
		for _, file := range scan.MarkedButUnrelocated {
			if ctx.Err() != nil {
				return
			}
			m.retryRelocation(ctx, file)
		}
	}

	if ctx.Err() != nil {
		return
	}
	if file, ok := m.nextCandidate(scan.Candidates); ok {
		m.dispatch(ctx, file)
	}
}

// nextCandidate returns the first candidate not deferred by an earlier
// EffectUnavailable, so one waiting file never blocks the rest.
func (m *Monitor) nextCandidate(candidates []media.SourceFile) (media.SourceFile, bool) {
	now := m.now()
	deferred := 0
	for _, file := range candidates {
		if retryAt, ok := m.effectRetryAt[file.Identity]; ok && now.Before(retryAt) {
			deferred++
			continue
		}
		if deferred > 0 {
			m.logger.Debug("candidates deferred", logging.Int("deferred", deferred))
		}
		return file, true
	}
	return media.SourceFile{}, false
}

func (m *Monitor) retryRelocation(ctx context.Context, file media.SourceFile) {
	started := m.now()
	state := m.lifecycle.Relocate(file)
	outcome := "relocated"
	if !state.Relocated {
		outcome = lifecycle.StateStuckMarked.String()
	}
	m.observe(func(o Observer) {
		o.RelocationRetried(outcome)
		for _, a := range state.Anomalies {
			o.Anomaly(string(a))
		}
	})
	// Stuck retries repeat every tick; only resolutions are journaled.
	if !state.Relocated {
		return
	}
	m.record(ctx, history.Entry{
		Kind:       history.KindRelocation,
		SourcePath: file.Path,
		Identity:   file.Identity,
		Outcome:    outcome,
		FinalPath:  state.CurrentPath,
		Terminal:   state.Terminal.String(),
		Anomalies:  anomalyNames(state.Anomalies),
		StartedAt:  started,
		FinishedAt: m.now(),
	})
}

func (m *Monitor) dispatch(ctx context.Context, file media.SourceFile) {
	logger := m.logger.With(logging.String(logging.FieldIdentity, file.Identity))
	m.ledger.MarkHandled(file.Identity)
	logger.Info("source selected",
		logging.String(logging.FieldEventType, "source_selected"),
		logging.String(logging.FieldPath, file.Path),
		logging.Int64("bytes", file.Size),
	)

	started := m.now()
	outcome := m.render(logging.WithIdentity(ctx, file.Identity), file)
	elapsed := m.now().Sub(started)
	delete(m.effectRetryAt, file.Identity)
	if outcome.Kind == render.EffectUnavailable {
		m.effectUnavailable(ctx, logger, file, outcome, started, elapsed)
		return
	}
	delete(m.effectWarned, file.Identity)
	m.observe(func(o Observer) { o.Dispatched(outcome.Kind.String(), elapsed) })

	entry := history.Entry{
		Kind:       history.KindRender,
		SourcePath: file.Path,
		Identity:   file.Identity,
		Outcome:    outcome.Kind.String(),
		OutputPath: outcome.OutputPath,
		Detail:     outcome.Detail,
		StartedAt:  started,
	}

	switch outcome.Kind {
	case render.Succeeded:
		delete(m.attempts, file.Identity)
		logger.Info("render succeeded",
			logging.String(logging.FieldEventType, "render_succeeded"),
			logging.String("output", outcome.OutputPath),
			logging.Duration("elapsed", elapsed),
		)
		state := m.lifecycle.Complete(file)
		entry.FinalPath = state.CurrentPath
		entry.Terminal = state.Terminal.String()
		entry.Anomalies = anomalyNames(state.Anomalies)
		m.observe(func(o Observer) { o.LifecycleFinished(state.Terminal.String(), entry.Anomalies) })
		m.notify(ctx, notifications.EventRenderCompleted, notifications.Payload{
			"file":    file.Path,
			"output":  outcome.OutputPath,
			"elapsed": elapsed.Round(time.Second).String(),
		})
		if len(entry.Anomalies) > 0 {
			m.notify(ctx, notifications.EventAnomaly, notifications.Payload{
				"file":      file.Path,
				"anomalies": strings.Join(entry.Anomalies, ", "),
			})
		}
	default:
		if exhausted := m.engineFailure(logger, file, outcome); exhausted {
			entry.Anomalies = []string{AnomalyAttemptsExhausted}
			m.notify(ctx, notifications.EventAttemptsExhausted, notifications.Payload{
				"file":     file.Path,
				"attempts": strconv.Itoa(m.attempts[file.Identity]),
				"detail":   outcome.Detail,
			})
		}
	}

	entry.FinishedAt = m.now()
	m.record(ctx, entry)
}

func (m *Monitor) render(ctx context.Context, file media.SourceFile) render.Outcome {
	if m.opts.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.RenderTimeout)
		defer cancel()
	}
	return m.renderer.Render(ctx, file)
}

// effectUnavailable releases the identity so the file is picked up again once
// the effect exists, deferring it by the effect retry interval. It does not
// count as an engine failure. Only the first occurrence per identity is
// alerted, counted, journaled and pushed; repeats log at DEBUG.
func (m *Monitor) effectUnavailable(ctx context.Context, logger *slog.Logger, file media.SourceFile, outcome render.Outcome, started time.Time, elapsed time.Duration) {
	m.ledger.Forget(file.Identity)
	retryAt := m.now().Add(m.opts.EffectRetryInterval)
	m.effectRetryAt[file.Identity] = retryAt
	if m.effectWarned[file.Identity] {
		logger.Debug("effect still unavailable",
			logging.String(logging.FieldPath, file.Path),
			logging.Duration("retry_in", m.opts.EffectRetryInterval),
		)
		return
	}
	m.effectWarned[file.Identity] = true
	logging.ErrorWithContext(logger, "required effect unavailable; source left untouched", "effect_unavailable",
		logging.String(logging.FieldPath, file.Path),
		logging.String("detail", outcome.Detail),
		logging.Duration("retry_in", m.opts.EffectRetryInterval),
		logging.Alert("effect_unavailable"),
		logging.String(logging.FieldErrorHint, "install an ffmpeg build with the minterpolate filter or set processing.apply_bullet_time = false"),
	)
	m.observe(func(o Observer) { o.Dispatched(outcome.Kind.String(), elapsed) })
	m.notify(ctx, notifications.EventEffectUnavailable, notifications.Payload{
		"file":   file.Path,
		"detail": outcome.Detail,
	})
	m.record(ctx, history.Entry{
		Kind:       history.KindRender,
		SourcePath: file.Path,
		Identity:   file.Identity,
		Outcome:    outcome.Kind.String(),
		Detail:     outcome.Detail,
		StartedAt:  started,
		FinishedAt: m.now(),
	})
}

// engineFailure releases the identity for a later retry until the attempt
// budget is spent. It reports whether the budget is now exhausted.
func (m *Monitor) engineFailure(logger *slog.Logger, file media.SourceFile, outcome render.Outcome) bool {
	m.attempts[file.Identity]++
	attempt := m.attempts[file.Identity]
	if attempt < m.opts.MaxAttempts {
		m.ledger.Forget(file.Identity)
		logging.WarnWithContext(logger, "render failed; will retry", "render_failed",
			logging.String(logging.FieldPath, file.Path),
			logging.String("detail", outcome.Detail),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", m.opts.MaxAttempts),
			logging.String(logging.FieldErrorHint, "check the engine diagnostics in detail"),
			logging.String(logging.FieldImpact, "the file is retried on a later tick"),
		)
		return false
	}
	logging.WarnWithContext(logger, "render failed; giving up for this run", "render_attempts_exhausted",
		logging.String(logging.FieldPath, file.Path),
		logging.String("detail", outcome.Detail),
		logging.Int("attempt", attempt),
		logging.Alert(AnomalyAttemptsExhausted),
		logging.String(logging.FieldErrorHint, "inspect or remove the file; it is retried after a restart"),
		logging.String(logging.FieldImpact, "the file stays in the input directory unrendered"),
	)
	m.observe(func(o Observer) { o.Anomaly(AnomalyAttemptsExhausted) })
	return true
}

func (m *Monitor) record(ctx context.Context, entry history.Entry) {
	if m.journal == nil {
		return
	}
	entry.RunID = m.opts.RunID
	// A cancelled tick still journals what it did.
	if _, err := m.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(m.logger, "history journal write failed", "history_write_failed",
			logging.String(logging.FieldIdentity, entry.Identity),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory"),
			logging.String(logging.FieldImpact, "processing continues; the history table misses this entry"),
		)
	}
}

func (m *Monitor) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(m.logger, "notification delivery failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
		)
	}
}

func (m *Monitor) observe(fn func(Observer)) {
	if m.observer != nil {
		fn(m.observer)
	}
}

func anomalyNames(anomalies []lifecycle.Anomaly) []string {
	if len(anomalies) == 0 {
		return nil
	}
	names := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		names = append(names, string(a))
	}
	return names
}
