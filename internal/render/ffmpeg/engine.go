// Package ffmpeg implements the render engine on top of the ffprobe and
// ffmpeg binaries.
//
// Project items (footage, compositions, layers, jobs) are plain in-memory
// records; nothing touches disk until ExecuteRenderQueue runs one ffmpeg
// process per queued job. The time stretch becomes a setpts filter and the
// bullet-time effect becomes motion-compensated minterpolate.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"slowmo/internal/logging"
	"slowmo/internal/media/ffprobe"
	"slowmo/internal/render"
)

const (
	interpolationFilter = "minterpolate"
	defaultPixelFormat  = "yuv420p"
)

// Options configures an Engine.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	VideoCodec    string
	CRF           int
	Preset        string
	Runner        Runner
	Logger        *slog.Logger
}

type outputSettings struct {
	codec       string
	crf         int
	preset      string
	pixelFormat string
}

type compositionItem struct {
	comp    render.Composition
	layerID string
	output  outputSettings
}

type layerItem struct {
	layer       render.Layer
	footage     render.Footage
	stretch     float64
	interpolate bool
}

type job struct {
	handle render.JobHandle
	compID string
}

// Engine is a render.Engine backed by ffmpeg. It is not safe for concurrent
// use; the monitor drives one render at a time.
type Engine struct {
	opts     Options
	runner   Runner
	logger   *slog.Logger
	defaults outputSettings

	footage  map[string]render.Footage
	comps    map[string]*compositionItem
	layers   map[string]*layerItem
	queue    []job
	statuses map[string]render.JobStatus

	filtersProbed  bool
	interpolatable bool
}

var _ render.Engine = (*Engine)(nil)

// New returns an Engine. Empty binaries default to ffmpeg and ffprobe on PATH.
func New(opts Options) *Engine {
	if strings.TrimSpace(opts.FFmpegBinary) == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(opts.FFprobeBinary) == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	e := &Engine{
		opts:   opts,
		runner: runner,
		logger: logging.NewComponentLogger(opts.Logger, "ffmpeg"),
		defaults: outputSettings{
			codec:       fallback(opts.VideoCodec, "libx264"),
			crf:         opts.CRF,
			preset:      fallback(opts.Preset, "medium"),
			pixelFormat: defaultPixelFormat,
		},
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.footage = make(map[string]render.Footage)
	e.comps = make(map[string]*compositionItem)
	e.layers = make(map[string]*layerItem)
	e.queue = nil
	e.statuses = make(map[string]render.JobStatus)
}

// ImportMedia probes path with ffprobe and records it as footage.
func (e *Engine) ImportMedia(ctx context.Context, path string) (render.Footage, error) {
	stdout, stderr, err := e.runner.Run(ctx, e.opts.FFprobeBinary, ffprobe.Args(path)...)
	if err != nil {
		return render.Footage{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, tail(stderr, 3))
	}
	result, err := ffprobe.Parse(stdout)
	if err != nil {
		return render.Footage{}, err
	}
	video, ok := result.PrimaryVideo()
	if !ok {
		return render.Footage{}, fmt.Errorf("ffprobe %s: no video stream", path)
	}
	seconds := result.DurationSeconds()
	if seconds <= 0 {
		return render.Footage{}, fmt.Errorf("ffprobe %s: unknown duration", path)
	}
	rate := video.FrameRate()
	if rate <= 0 {
		return render.Footage{}, fmt.Errorf("ffprobe %s: unknown frame rate", path)
	}
	footage := render.Footage{
		ID:          uuid.NewString(),
		Path:        path,
		Width:       video.Width,
		Height:      video.Height,
		FrameRate:   rate,
		PixelAspect: video.PixelAspect(),
		Duration:    time.Duration(seconds * float64(time.Second)),
	}
	e.footage[footage.ID] = footage
	return footage, nil
}

// OpenTemplate loads the TOML template at path and returns its first
// composition, or nil when it declares none.
func (e *Engine) OpenTemplate(_ context.Context, path string) (*render.Composition, error) {
	tmpl, err := loadTemplate(path)
	if err != nil {
		return nil, err
	}
	if len(tmpl.Compositions) == 0 {
		return nil, nil
	}
	first := tmpl.Compositions[0]
	output := e.defaults
	output.codec = fallback(first.VideoCodec, output.codec)
	output.preset = fallback(first.Preset, output.preset)
	output.pixelFormat = fallback(first.PixelFormat, output.pixelFormat)
	if first.CRF != nil {
		output.crf = *first.CRF
	}
	comp := render.Composition{ID: uuid.NewString(), CompositionSpec: render.CompositionSpec{Name: first.Name}}
	e.comps[comp.ID] = &compositionItem{comp: comp, output: output}
	return &comp, nil
}

func (e *Engine) CreateComposition(_ context.Context, spec render.CompositionSpec) (render.Composition, error) {
	comp := render.Composition{ID: uuid.NewString(), CompositionSpec: spec}
	e.comps[comp.ID] = &compositionItem{comp: comp, output: e.defaults}
	return comp, nil
}

// UpdateComposition applies spec's geometry and length; the name stays.
func (e *Engine) UpdateComposition(_ context.Context, comp render.Composition, spec render.CompositionSpec) (render.Composition, error) {
	item, ok := e.comps[comp.ID]
	if !ok {
		return render.Composition{}, fmt.Errorf("unknown composition %s", comp.ID)
	}
	name := item.comp.Name
	item.comp.CompositionSpec = spec
	if name != "" {
		item.comp.Name = name
	}
	return item.comp, nil
}

func (e *Engine) SetLayerSource(_ context.Context, comp render.Composition, footage render.Footage) (render.Layer, error) {
	item, ok := e.comps[comp.ID]
	if !ok {
		return render.Layer{}, fmt.Errorf("unknown composition %s", comp.ID)
	}
	if _, ok := e.footage[footage.ID]; !ok {
		return render.Layer{}, fmt.Errorf("unknown footage %s", footage.ID)
	}
	if layer, ok := e.layers[item.layerID]; ok {
		layer.footage = footage
		layer.layer.FootageID = footage.ID
		return layer.layer, nil
	}
	layer := render.Layer{ID: uuid.NewString(), CompositionID: comp.ID, FootageID: footage.ID}
	e.layers[layer.ID] = &layerItem{layer: layer, footage: footage, stretch: 100}
	item.layerID = layer.ID
	return layer, nil
}

func (e *Engine) SetLayerTimeStretch(_ context.Context, layer render.Layer, percent float64) error {
	item, ok := e.layers[layer.ID]
	if !ok {
		return fmt.Errorf("unknown layer %s", layer.ID)
	}
	if percent <= 0 {
		return fmt.Errorf("time stretch must be positive, got %v", percent)
	}
	item.stretch = percent
	return nil
}

// ApplyEffect enables motion interpolation for the bullet-time effect. The
// ffmpeg build is probed once for the minterpolate filter.
func (e *Engine) ApplyEffect(ctx context.Context, layer render.Layer, effect string, _ map[string]string) error {
	item, ok := e.layers[layer.ID]
	if !ok {
		return fmt.Errorf("unknown layer %s", layer.ID)
	}
	if effect != render.EffectBulletTime {
		return fmt.Errorf("%w: %s", render.ErrEffectUnavailable, effect)
	}
	available, err := e.interpolationAvailable(ctx)
	if err != nil {
		return err
	}
	if !available {
		return fmt.Errorf("%w: %s has no %s filter", render.ErrEffectUnavailable, e.opts.FFmpegBinary, interpolationFilter)
	}
	item.interpolate = true
	return nil
}

func (e *Engine) interpolationAvailable(ctx context.Context) (bool, error) {
	if e.filtersProbed {
		return e.interpolatable, nil
	}
	stdout, stderr, err := e.runner.Run(ctx, e.opts.FFmpegBinary, "-hide_banner", "-filters")
	if err != nil {
		return false, fmt.Errorf("list ffmpeg filters: %w: %s", err, tail(stderr, 3))
	}
	e.interpolatable = hasFilter(stdout, interpolationFilter)
	e.filtersProbed = true
	return e.interpolatable, nil
}

// hasFilter scans `ffmpeg -filters` output, where the filter name is the
// second column of each entry.
func hasFilter(listing []byte, name string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

func (e *Engine) EnqueueRender(_ context.Context, comp render.Composition, outputPath string) (render.JobHandle, error) {
	item, ok := e.comps[comp.ID]
	if !ok {
		return render.JobHandle{}, fmt.Errorf("unknown composition %s", comp.ID)
	}
	if _, ok := e.layers[item.layerID]; !ok {
		return render.JobHandle{}, fmt.Errorf("composition %s has no layer", comp.ID)
	}
	handle := render.JobHandle{ID: uuid.NewString(), OutputPath: outputPath}
	e.queue = append(e.queue, job{handle: handle, compID: comp.ID})
	e.statuses[handle.ID] = render.JobStatus{State: render.StatusPending}
	return handle, nil
}

// ExecuteRenderQueue renders every pending job in order. A failed job does
// not stop the queue; its status carries the ffmpeg diagnostics.
func (e *Engine) ExecuteRenderQueue(ctx context.Context) error {
	pending := e.queue
	e.queue = nil
	for _, j := range pending {
		if err := ctx.Err(); err != nil {
			e.statuses[j.handle.ID] = render.JobStatus{State: render.StatusFailed, Detail: err.Error()}
			continue
		}
		e.statuses[j.handle.ID] = render.JobStatus{State: render.StatusRendering}
		e.statuses[j.handle.ID] = e.runJob(ctx, j)
	}
	return ctx.Err()
}

func (e *Engine) runJob(ctx context.Context, j job) render.JobStatus {
	comp := e.comps[j.compID]
	layer := e.layers[comp.layerID]
	args := buildArgs(comp, layer, j.handle.OutputPath)

	if _, err := os.Lstat(j.handle.OutputPath); err == nil {
		return render.JobStatus{State: render.StatusFailed, Detail: "output already exists: " + j.handle.OutputPath}
	}

	started := time.Now()
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug("ffmpeg started", logging.String("args", strings.Join(args, " ")))
	_, stderr, err := e.runner.Run(ctx, e.opts.FFmpegBinary, args...)
	if err != nil {
		removePartial(j.handle.OutputPath)
		return render.JobStatus{State: render.StatusFailed, Detail: fmt.Sprintf("%v: %s", err, tail(stderr, 5))}
	}
	info, statErr := os.Stat(j.handle.OutputPath)
	if statErr != nil || info.Size() == 0 {
		removePartial(j.handle.OutputPath)
		return render.JobStatus{State: render.StatusFailed, Detail: "ffmpeg exited cleanly but produced no output"}
	}
	logger.Debug("ffmpeg finished",
		logging.String(logging.FieldPath, j.handle.OutputPath),
		logging.Duration("elapsed", time.Since(started)),
		logging.Int64("bytes", info.Size()),
	)
	return render.JobStatus{State: render.StatusDone}
}

func removePartial(path string) {
	_ = os.Remove(path)
}

func (e *Engine) Status(handle render.JobHandle) render.JobStatus {
	status, ok := e.statuses[handle.ID]
	if !ok {
		return render.JobStatus{State: render.StatusFailed, Detail: "unknown job " + handle.ID}
	}
	return status
}

// ReleaseAll drops every project item. The filter probe result survives.
func (e *Engine) ReleaseAll() {
	e.reset()
}

// buildArgs assembles one ffmpeg invocation. Audio is dropped: a stretched
// soundtrack is not useful output.
func buildArgs(comp *compositionItem, layer *layerItem, outputPath string) []string {
	spec := comp.comp.CompositionSpec
	rate := formatFloat(spec.FrameRate)

	filters := []string{fmt.Sprintf("setpts=%s*PTS", formatFloat(layer.stretch/100))}
	if layer.interpolate {
		filters = append(filters, fmt.Sprintf("%s=fps=%s:mi_mode=mci:mc_mode=aobmc:vsbmc=1", interpolationFilter, rate))
	}
	filters = append(filters,
		"fps="+rate,
		fmt.Sprintf("scale=%d:%d", spec.Width, spec.Height),
		"setsar="+formatFloat(spec.PixelAspect),
	)

	output := comp.output
	args := []string{
		"-hide_banner", "-nostdin", "-n",
		"-loglevel", "error",
		"-i", layer.footage.Path,
		"-vf", strings.Join(filters, ","),
		"-an",
		"-c:v", output.codec,
		"-crf", strconv.Itoa(output.crf),
		"-preset", output.preset,
		"-pix_fmt", output.pixelFormat,
	}
	if spec.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(spec.Duration.Seconds(), 'f', 3, 64))
	}
	return append(args, outputPath)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
