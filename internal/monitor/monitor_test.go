package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"slowmo/internal/history"
	"slowmo/internal/ledger"
	"slowmo/internal/lifecycle"
	"slowmo/internal/media"
	"slowmo/internal/notifications"
	"slowmo/internal/render"
	"slowmo/internal/scanner"
)

type fakeRenderer struct {
	outcome func(file media.SourceFile) render.Outcome
	calls   []string
	ctxs    []context.Context
}

func (f *fakeRenderer) Render(ctx context.Context, file media.SourceFile) render.Outcome {
	f.calls = append(f.calls, file.Name)
	f.ctxs = append(f.ctxs, ctx)
	if f.outcome == nil {
		return render.Outcome{Kind: render.Succeeded, OutputPath: "/out/" + file.Name}
	}
	return f.outcome(file)
}

func (f *fakeRenderer) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeJournal struct {
	entries []history.Entry
	err     error
}

func (f *fakeJournal) Record(_ context.Context, entry history.Entry) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.entries = append(f.entries, entry)
	return int64(len(f.entries)), nil
}

type fakeObserver struct {
	ticks      map[string]int
	dispatches map[string]int
	anomalies  map[string]int
	relocation map[string]int
	terminal   map[string]int
	ledgerSize int
	busy       bool
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{
		ticks:      map[string]int{},
		dispatches: map[string]int{},
		anomalies:  map[string]int{},
		relocation: map[string]int{},
		terminal:   map[string]int{},
	}
}

func (f *fakeObserver) TickCompleted(result string)                { f.ticks[result]++ }
func (f *fakeObserver) SetBusy(busy bool)                          { f.busy = busy }
func (f *fakeObserver) Dispatched(outcome string, _ time.Duration) { f.dispatches[outcome]++ }
func (f *fakeObserver) Anomaly(kind string)                        { f.anomalies[kind]++ }
func (f *fakeObserver) RelocationRetried(result string)            { f.relocation[result]++ }
func (f *fakeObserver) SetLedgerSize(n int)                        { f.ledgerSize = n }
func (f *fakeObserver) LifecycleFinished(terminal string, anomalies []string) {
	f.terminal[terminal]++
	for _, a := range anomalies {
		f.anomalies[a]++
	}
}

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type fakeNotifier struct {
	sent []published
	err  error
}

func (f *fakeNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	f.sent = append(f.sent, published{event: event, payload: payload})
	return f.err
}

func (f *fakeNotifier) count(event notifications.Event) int {
	n := 0
	for _, p := range f.sent {
		if p.event == event {
			n++
		}
	}
	return n
}

type harness struct {
	input     string
	processed string
	renderer  *fakeRenderer
	journal   *fakeJournal
	observer  *fakeObserver
	notifier  *fakeNotifier
	ledger    *ledger.Ledger
	monitor   *Monitor
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		input:     filepath.Join(base, "in"),
		processed: filepath.Join(base, "done"),
		renderer:  &fakeRenderer{},
		journal:   &fakeJournal{},
		observer:  newFakeObserver(),
		notifier:  &fakeNotifier{},
		ledger:    ledger.New(),
	}
	if err := os.MkdirAll(h.input, 0o755); err != nil {
		t.Fatal(err)
	}
	manager := lifecycle.NewManager(lifecycle.Options{
		Marker:       "_processed",
		ProcessedDir: h.processed,
		Ledger:       h.ledger,
	})
	h.monitor = New(Options{
		InputDir:    h.input,
		Marker:      "_processed",
		MaxAttempts: maxAttempts,
		RunID:       "run-test",
		Ledger:      h.ledger,
		Renderer:    h.renderer,
		Lifecycle:   manager,
		Journal:     h.journal,
		Observer:    h.observer,
		Notifier:    h.notifier,
	})
	return h
}

func (h *harness) drop(t *testing.T, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(h.input, name)
	if err := os.WriteFile(path, []byte("footage"), 0o644); err != nil {
		t.Fatal(err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestTickRendersMarksAndRelocates(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "a.mp4", time.Minute)
	ctx := context.Background()

	h.monitor.Tick(ctx)

	if fileExists(filepath.Join(h.input, "a.mp4")) {
		t.Fatal("expected a.mp4 to leave the input directory")
	}
	if !fileExists(filepath.Join(h.processed, "a_processed.mp4")) {
		t.Fatal("expected a_processed.mp4 in processed directory")
	}
	if len(h.journal.entries) != 1 {
		t.Fatalf("expected one journal entry, got %d", len(h.journal.entries))
	}
	entry := h.journal.entries[0]
	if entry.Outcome != "succeeded" || entry.Terminal != "relocated" || entry.RunID != "run-test" {
		t.Fatalf("unexpected journal entry: %+v", entry)
	}
	if h.observer.terminal["relocated"] != 1 || h.observer.dispatches["succeeded"] != 1 {
		t.Fatalf("unexpected observer state: %+v", h.observer)
	}
	if h.notifier.count(notifications.EventRenderCompleted) != 1 || h.notifier.count(notifications.EventAnomaly) != 0 {
		t.Fatalf("unexpected notifications: %+v", h.notifier.sent)
	}

	h.monitor.Tick(ctx)
	if len(h.renderer.calls) != 1 {
		t.Fatalf("expected a single render, got %v", h.renderer.calls)
	}
}

func TestTickDispatchesOneCandidateOldestFirst(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "new.mp4", time.Minute)
	h.drop(t, "old.mov", time.Hour)
	h.drop(t, "notes.txt", 2*time.Hour)
	ctx := context.Background()

	h.monitor.Tick(ctx)
	if len(h.renderer.calls) != 1 || h.renderer.calls[0] != "old.mov" {
		t.Fatalf("expected old.mov first, got %v", h.renderer.calls)
	}
	for i := 0; i < 3; i++ {
		h.monitor.Tick(ctx)
	}
	if len(h.renderer.calls) != 2 || h.renderer.count("new.mp4") != 1 || h.renderer.count("old.mov") != 1 {
		t.Fatalf("expected each video rendered once, got %v", h.renderer.calls)
	}
	if !fileExists(filepath.Join(h.input, "notes.txt")) {
		t.Fatal("non-video file must be left alone")
	}
}

func TestAtMostOnceWhenMarkingFails(t *testing.T) {
	h := newHarness(t, 3)
	path := h.drop(t, "locked.mp4", time.Minute)
	// Without relocation and with marking impossible, the original stays put.
	if err := os.Chmod(h.input, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(h.input, 0o755) })
	if f, err := os.Create(filepath.Join(h.input, "probe")); err == nil {
		f.Close()
		t.Skip("directory permissions are not enforced for this user")
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		h.monitor.Tick(ctx)
	}
	if h.renderer.count("locked.mp4") != 1 {
		t.Fatalf("expected exactly one render, got %v", h.renderer.calls)
	}
	if !fileExists(path) {
		t.Fatal("original must survive")
	}
	if h.observer.anomalies[string(lifecycle.AnomalyUnmarked)] != 1 {
		t.Fatalf("expected unmarked anomaly, got %v", h.observer.anomalies)
	}
}

func TestEffectUnavailableLeavesFileRetriable(t *testing.T) {
	h := newHarness(t, 1)
	clock := time.Now()
	h.monitor.now = func() time.Time { return clock }
	path := h.drop(t, "c.mp4", time.Minute)
	h.renderer.outcome = func(media.SourceFile) render.Outcome {
		return render.Outcome{Kind: render.EffectUnavailable, Detail: "no minterpolate"}
	}
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		h.monitor.Tick(ctx)
	}
	if h.renderer.count("c.mp4") != 1 {
		t.Fatalf("expected the file deferred after one attempt, got %d", h.renderer.count("c.mp4"))
	}
	if !fileExists(path) || fileExists(filepath.Join(h.input, "c_processed.mp4")) {
		t.Fatal("source must stay unmarked in input")
	}
	if h.ledger.Len() != 0 {
		t.Fatalf("identity must not stay handled, ledger has %d", h.ledger.Len())
	}

	clock = clock.Add(DefaultEffectRetryInterval)
	h.monitor.Tick(ctx)
	if h.renderer.count("c.mp4") != 2 {
		t.Fatalf("expected a retry once the interval passed, got %d", h.renderer.count("c.mp4"))
	}
	if len(h.journal.entries) != 1 || h.journal.entries[0].Outcome != "effect_unavailable" {
		t.Fatalf("expected one journal row, got %+v", h.journal.entries)
	}
	if h.observer.dispatches["effect_unavailable"] != 1 {
		t.Fatalf("expected one counted dispatch, got %v", h.observer.dispatches)
	}
	if h.notifier.count(notifications.EventEffectUnavailable) != 1 {
		t.Fatalf("expected one effect notification, got %+v", h.notifier.sent)
	}
	if h.observer.anomalies[AnomalyAttemptsExhausted] != 0 {
		t.Fatal("effect unavailability must not consume render attempts")
	}

	h.renderer.outcome = nil
	clock = clock.Add(DefaultEffectRetryInterval)
	h.monitor.Tick(ctx)
	if fileExists(path) || !fileExists(filepath.Join(h.processed, "c_processed.mp4")) {
		t.Fatal("expected the file processed once the effect is available")
	}
}

func TestDeferredFileDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "c.mp4", 2*time.Minute)
	h.drop(t, "d.mp4", time.Minute)
	h.renderer.outcome = func(file media.SourceFile) render.Outcome {
		if file.Name == "c.mp4" {
			return render.Outcome{Kind: render.EffectUnavailable, Detail: "no minterpolate"}
		}
		return render.Outcome{Kind: render.Succeeded, OutputPath: "/out/" + file.Name}
	}
	ctx := context.Background()

	h.monitor.Tick(ctx)
	h.monitor.Tick(ctx)

	if len(h.renderer.calls) != 2 || h.renderer.calls[1] != "d.mp4" {
		t.Fatalf("expected d.mp4 dispatched while c.mp4 waits, got %v", h.renderer.calls)
	}
	if !fileExists(filepath.Join(h.processed, "d_processed.mp4")) {
		t.Fatal("expected d.mp4 relocated")
	}
}

func TestEngineFailureRetriesUpToLimit(t *testing.T) {
	h := newHarness(t, 2)
	path := h.drop(t, "broken.mp4", time.Minute)
	h.renderer.outcome = func(media.SourceFile) render.Outcome {
		return render.Outcome{Kind: render.EngineFailure, Detail: "exit status 1"}
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.monitor.Tick(ctx)
	}

	if h.renderer.count("broken.mp4") != 2 {
		t.Fatalf("expected two attempts, got %v", h.renderer.calls)
	}
	if !fileExists(path) {
		t.Fatal("failed source must stay in input")
	}
	identity := h.journal.entries[0].Identity
	if !h.ledger.IsHandled(identity) {
		t.Fatal("exhausted identity must stay handled")
	}
	if len(h.journal.entries) != 2 {
		t.Fatalf("expected two journal entries, got %d", len(h.journal.entries))
	}
	if len(h.journal.entries[0].Anomalies) != 0 || len(h.journal.entries[1].Anomalies) != 1 {
		t.Fatalf("expected exhaustion anomaly on the last attempt only: %+v", h.journal.entries)
	}
	if h.observer.anomalies[AnomalyAttemptsExhausted] != 1 {
		t.Fatalf("expected exhausted anomaly counted once, got %v", h.observer.anomalies)
	}
	if h.notifier.count(notifications.EventAttemptsExhausted) != 1 {
		t.Fatalf("expected one exhaustion notification, got %+v", h.notifier.sent)
	}
	if got := h.notifier.sent[0].payload["attempts"]; got != "2" {
		t.Fatalf("attempts payload = %q", got)
	}
}

func TestNotificationFailureDoesNotStopProcessing(t *testing.T) {
	h := newHarness(t, 3)
	h.notifier.err = errors.New("ntfy down")
	h.drop(t, "a.mp4", time.Minute)

	h.monitor.Tick(context.Background())

	if !fileExists(filepath.Join(h.processed, "a_processed.mp4")) {
		t.Fatal("expected the render to complete despite the notifier")
	}
	if len(h.journal.entries) != 1 {
		t.Fatalf("expected the dispatch journaled, got %d", len(h.journal.entries))
	}
}

func TestEngineFailureThenSuccess(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "flaky.mp4", time.Minute)
	failures := 1
	h.renderer.outcome = func(file media.SourceFile) render.Outcome {
		if failures > 0 {
			failures--
			return render.Outcome{Kind: render.EngineFailure, Detail: "transient"}
		}
		return render.Outcome{Kind: render.Succeeded, OutputPath: "/out/" + file.Name}
	}
	ctx := context.Background()
	h.monitor.Tick(ctx)
	h.monitor.Tick(ctx)
	h.monitor.Tick(ctx)

	if h.renderer.count("flaky.mp4") != 2 {
		t.Fatalf("expected failure then success, got %v", h.renderer.calls)
	}
	if !fileExists(filepath.Join(h.processed, "flaky_processed.mp4")) {
		t.Fatal("expected relocation after the successful retry")
	}
	if len(h.monitor.attempts) != 0 {
		t.Fatal("attempt counter must reset after success")
	}
}

func TestPanicClearsBusyFlag(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "p.mp4", time.Minute)
	panics := true
	h.renderer.outcome = func(file media.SourceFile) render.Outcome {
		if panics {
			panics = false
			panic("engine bug")
		}
		return render.Outcome{Kind: render.Succeeded, OutputPath: "/out/" + file.Name}
	}
	ctx := context.Background()

	h.monitor.Tick(ctx)
	if h.monitor.Busy() || h.observer.busy {
		t.Fatal("busy flag must be cleared after a panic")
	}
	if h.observer.ticks["panicked"] != 1 {
		t.Fatalf("expected panicked tick recorded, got %v", h.observer.ticks)
	}

	// The identity stays handled after a panic, so the file is not retried.
	h.monitor.Tick(ctx)
	if len(h.renderer.calls) != 1 {
		t.Fatalf("expected no second render, got %v", h.renderer.calls)
	}
	if h.observer.ticks["completed"] != 1 {
		t.Fatalf("expected the next tick to complete, got %v", h.observer.ticks)
	}
}

func TestTickSkipsWhileBusy(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "a.mp4", time.Minute)
	h.monitor.busy.Store(true)

	h.monitor.Tick(context.Background())

	if len(h.renderer.calls) != 0 {
		t.Fatal("busy monitor must not dispatch")
	}
	if h.observer.ticks["skipped_busy"] != 1 {
		t.Fatalf("expected skipped tick, got %v", h.observer.ticks)
	}
}

func TestTickHonoursCancellation(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "a.mp4", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.monitor.Tick(ctx)
	if len(h.renderer.calls) != 0 {
		t.Fatal("cancelled monitor must not dispatch")
	}
}

func TestRenderTimeoutBoundsEngineCall(t *testing.T) {
	h := newHarness(t, 3)
	h.monitor.opts.RenderTimeout = time.Minute
	h.drop(t, "a.mp4", time.Minute)

	h.monitor.Tick(context.Background())
	if len(h.renderer.ctxs) != 1 {
		t.Fatal("expected one render")
	}
	if _, ok := h.renderer.ctxs[0].Deadline(); !ok {
		t.Fatal("expected render context with deadline")
	}

	unbounded := newHarness(t, 3)
	unbounded.drop(t, "b.mp4", time.Minute)
	unbounded.monitor.Tick(context.Background())
	if _, ok := unbounded.renderer.ctxs[0].Deadline(); ok {
		t.Fatal("expected no deadline without render_timeout")
	}
}

func TestJournalFailureDoesNotStopProcessing(t *testing.T) {
	h := newHarness(t, 3)
	h.journal.err = errors.New("disk full")
	h.drop(t, "a.mp4", time.Minute)

	h.monitor.Tick(context.Background())
	if !fileExists(filepath.Join(h.processed, "a_processed.mp4")) {
		t.Fatal("expected relocation despite journal failure")
	}
}

func TestScanFailureIsContained(t *testing.T) {
	h := newHarness(t, 3)
	h.monitor.scan = func(string, string, scanner.Handled) (scanner.Result, error) {
		return scanner.Result{}, errors.New("permission denied")
	}
	h.monitor.Tick(context.Background())
	if h.observer.ticks["completed"] != 1 || h.monitor.Busy() {
		t.Fatalf("scan failure must end the tick cleanly: %v", h.observer.ticks)
	}
}

type scriptedLifecycle struct {
	relocations []bool
	relocated   []string
}

func (s *scriptedLifecycle) Complete(file media.SourceFile) lifecycle.RelocationState {
	return lifecycle.RelocationState{OriginalPath: file.Path, CurrentPath: file.Path}
}

func (s *scriptedLifecycle) Relocate(file media.SourceFile) lifecycle.RelocationState {
	s.relocated = append(s.relocated, file.Name)
	ok := len(s.relocations) > 0 && s.relocations[0]
	if len(s.relocations) > 0 {
		s.relocations = s.relocations[1:]
	}
	state := lifecycle.RelocationState{OriginalPath: file.Path, CurrentPath: file.Path, Marked: true, Terminal: lifecycle.StateStuckMarked}
	if ok {
		state.Relocated = true
		state.Terminal = lifecycle.StateRelocated
		state.CurrentPath = "/done/" + file.Name
	} else {
		state.Anomalies = []lifecycle.Anomaly{lifecycle.AnomalyStuckMarked}
	}
	return state
}

func (s *scriptedLifecycle) ProcessedConfigured() bool { return true }

func TestStuckMarkedFilesAreRetriedEveryTick(t *testing.T) {
	h := newHarness(t, 3)
	h.drop(t, "s_processed.mp4", time.Minute)
	script := &scriptedLifecycle{relocations: []bool{false, false, true}}
	h.monitor.lifecycle = script
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.monitor.Tick(ctx)
	}

	if len(script.relocated) != 3 {
		t.Fatalf("expected a relocation attempt per tick, got %v", script.relocated)
	}
	if len(h.renderer.calls) != 0 {
		t.Fatal("marked files must never be rendered")
	}
	if h.observer.relocation["stuck_marked"] != 2 || h.observer.relocation["relocated"] != 1 {
		t.Fatalf("unexpected relocation counters: %v", h.observer.relocation)
	}
	if len(h.journal.entries) != 1 || h.journal.entries[0].Kind != history.KindRelocation {
		t.Fatalf("expected only the resolved relocation journaled: %+v", h.journal.entries)
	}
}

func TestUnreachableProcessedDirAlertsOnce(t *testing.T) {
	h := newHarness(t, 3)
	if err := os.WriteFile(h.processed, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.drop(t, "s_processed.mp4", time.Minute)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		h.monitor.Tick(ctx)
	}

	if h.observer.relocation["stuck_marked"] != 50 {
		t.Fatalf("expected a relocation attempt per tick, got %v", h.observer.relocation)
	}
	if got := h.observer.anomalies[string(lifecycle.AnomalyStuckMarked)]; got != 1 {
		t.Fatalf("stuck anomaly counted %d times", got)
	}
	if len(h.journal.entries) != 0 {
		t.Fatalf("stuck retries must not be journaled: %+v", h.journal.entries)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, 3)
	h.monitor.opts.PollInterval = 10 * time.Millisecond
	h.drop(t, "a.mp4", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	h.renderer.outcome = func(file media.SourceFile) render.Outcome {
		cancel()
		return render.Outcome{Kind: render.Succeeded, OutputPath: "/out/" + file.Name}
	}

	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	if len(h.renderer.calls) != 1 {
		t.Fatalf("expected the immediate tick to render once, got %v", h.renderer.calls)
	}
}
