package render

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slowmo/internal/media"
)

type fakeEngine struct {
	footage      Footage
	importErr    error
	template     *Composition
	templateErr  error
	effectErr    error
	executeErr   error
	status       JobStatus
	calls        []string
	created      *CompositionSpec
	updated      *CompositionSpec
	stretch      float64
	effectParams map[string]string
	released     int
	queued       string
}

func (f *fakeEngine) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeEngine) ImportMedia(_ context.Context, path string) (Footage, error) {
	f.record("import")
	if f.importErr != nil {
		return Footage{}, f.importErr
	}
	footage := f.footage
	footage.Path = path
	return footage, nil
}

func (f *fakeEngine) OpenTemplate(context.Context, string) (*Composition, error) {
	f.record("template")
	return f.template, f.templateErr
}

func (f *fakeEngine) CreateComposition(_ context.Context, spec CompositionSpec) (Composition, error) {
	f.record("create")
	f.created = &spec
	return Composition{ID: "comp-new", CompositionSpec: spec}, nil
}

func (f *fakeEngine) UpdateComposition(_ context.Context, comp Composition, spec CompositionSpec) (Composition, error) {
	f.record("update")
	f.updated = &spec
	name := comp.Name
	comp.CompositionSpec = spec
	comp.Name = name
	return comp, nil
}

func (f *fakeEngine) SetLayerSource(_ context.Context, comp Composition, footage Footage) (Layer, error) {
	f.record("layer")
	return Layer{ID: "layer-1", CompositionID: comp.ID, FootageID: footage.ID}, nil
}

func (f *fakeEngine) SetLayerTimeStretch(_ context.Context, _ Layer, percent float64) error {
	f.record("stretch")
	f.stretch = percent
	return nil
}

func (f *fakeEngine) ApplyEffect(_ context.Context, _ Layer, _ string, params map[string]string) error {
	f.record("effect")
	f.effectParams = params
	return f.effectErr
}

func (f *fakeEngine) EnqueueRender(_ context.Context, _ Composition, outputPath string) (JobHandle, error) {
	f.record("enqueue")
	f.queued = outputPath
	return JobHandle{ID: "job-1", OutputPath: outputPath}, nil
}

func (f *fakeEngine) ExecuteRenderQueue(context.Context) error {
	f.record("execute")
	return f.executeErr
}

func (f *fakeEngine) Status(JobHandle) JobStatus {
	return f.status
}

func (f *fakeEngine) ReleaseAll() {
	f.released++
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		footage: Footage{ID: "footage-1", Width: 1920, Height: 1080, FrameRate: 30, Duration: 4 * time.Second},
		status:  JobStatus{State: StatusDone},
	}
}

func testSource(dir string) media.SourceFile {
	path := filepath.Join(dir, "in", "clip.mov")
	return media.SourceFile{Path: path, Name: "clip.mov", Ext: ".mov", Identity: path}
}

func newTestOrchestrator(engine Engine, base string, settings Settings) *Orchestrator {
	settings.InputDir = filepath.Join(base, "in")
	if settings.OutputDir == "" {
		settings.OutputDir = filepath.Join(base, "out")
	}
	o := NewOrchestrator(engine, settings, nil)
	o.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local) }
	return o
}

func TestRenderSucceeds(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 300, ApplyBulletTime: true})

	outcome := o.Render(context.Background(), testSource(base))

	if outcome.Kind != Succeeded {
		t.Fatalf("expected success, got %+v", outcome)
	}
	want := filepath.Join(base, "out", "clip_2024-03-09_14-05-07.mp4")
	if outcome.OutputPath != want || engine.queued != want {
		t.Fatalf("output = %q (queued %q), want %q", outcome.OutputPath, engine.queued, want)
	}
	if engine.created == nil || engine.created.Duration != 12*time.Second {
		t.Fatalf("expected stretched composition, got %+v", engine.created)
	}
	if engine.created.Width != 1920 || engine.created.Height != 1080 || engine.created.FrameRate != 30 {
		t.Fatalf("composition must mirror footage, got %+v", engine.created)
	}
	if engine.created.PixelAspect != 1.0 {
		t.Fatalf("expected square pixel fallback, got %v", engine.created.PixelAspect)
	}
	if engine.stretch != 300 {
		t.Fatalf("unexpected stretch %v", engine.stretch)
	}
	if engine.effectParams["mode"] != "timestretching" {
		t.Fatalf("unexpected effect params %v", engine.effectParams)
	}
	if engine.released != 1 {
		t.Fatalf("expected ReleaseAll once, got %d", engine.released)
	}
}

func TestRenderEffectUnavailableStopsBeforeQueue(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	engine.effectErr = ErrEffectUnavailable
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 300, ApplyBulletTime: true})

	outcome := o.Render(context.Background(), testSource(base))

	if outcome.Kind != EffectUnavailable {
		t.Fatalf("expected effect unavailable, got %+v", outcome)
	}
	for _, call := range engine.calls {
		if call == "enqueue" || call == "execute" {
			t.Fatalf("render must not be queued, calls %v", engine.calls)
		}
	}
	if engine.released != 1 {
		t.Fatal("expected release after effect failure")
	}
}

func TestRenderSkipsEffectWhenDisabled(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	engine.effectErr = ErrEffectUnavailable
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 200})

	if outcome := o.Render(context.Background(), testSource(base)); outcome.Kind != Succeeded {
		t.Fatalf("expected success without effect, got %+v", outcome)
	}
	for _, call := range engine.calls {
		if call == "effect" {
			t.Fatal("effect applied although disabled")
		}
	}
}

func TestRenderStatusOtherThanDoneFails(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	engine.status = JobStatus{State: StatusFailed, Detail: "encoder exploded"}
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 300})

	outcome := o.Render(context.Background(), testSource(base))
	if outcome.Kind != EngineFailure || !strings.Contains(outcome.Detail, "encoder exploded") {
		t.Fatalf("expected engine failure with detail, got %+v", outcome)
	}
	if engine.released != 1 {
		t.Fatal("expected release after failure")
	}
}

func TestRenderImportAndExecuteErrors(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	engine.importErr = errors.New("unreadable")
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 300})
	if outcome := o.Render(context.Background(), testSource(base)); outcome.Kind != EngineFailure {
		t.Fatalf("expected engine failure on import, got %+v", outcome)
	}

	engine = newFakeEngine()
	engine.executeErr = context.DeadlineExceeded
	o = newTestOrchestrator(engine, base, Settings{TimeStretch: 300})
	if outcome := o.Render(context.Background(), testSource(base)); outcome.Kind != EngineFailure {
		t.Fatalf("expected engine failure on execute, got %+v", outcome)
	}
}

func TestRenderRejectsOutputInsideInput(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 300, OutputDir: filepath.Join(base, "in", "out")})

	outcome := o.Render(context.Background(), testSource(base))
	if outcome.Kind != EngineFailure || !strings.Contains(outcome.Detail, "rejected") {
		t.Fatalf("expected rejection, got %+v", outcome)
	}
	if len(engine.calls) != 0 {
		t.Fatalf("engine must not be called, got %v", engine.calls)
	}
}

func TestRenderReusesTemplateComposition(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	engine.template = &Composition{ID: "tmpl-1", CompositionSpec: CompositionSpec{Name: "Master", Width: 640, Height: 480, FrameRate: 24}}
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 300, TemplatePath: "/tmpl.toml"})

	if outcome := o.Render(context.Background(), testSource(base)); outcome.Kind != Succeeded {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if engine.created != nil {
		t.Fatal("expected template composition reused, not created")
	}
	if engine.updated == nil || engine.updated.Width != 1920 || engine.updated.FrameRate != 30 {
		t.Fatalf("template composition must be resized to footage, got %+v", engine.updated)
	}
}

func TestRenderFallsBackWhenTemplateFails(t *testing.T) {
	base := t.TempDir()
	engine := newFakeEngine()
	engine.templateErr = errors.New("missing")
	o := newTestOrchestrator(engine, base, Settings{TimeStretch: 300, TemplatePath: "/nope.toml"})

	if outcome := o.Render(context.Background(), testSource(base)); outcome.Kind != Succeeded {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if engine.created == nil {
		t.Fatal("expected new composition after template failure")
	}
}
