// Package render turns a source file into a render request, drives an Engine
// through it, and interprets the engine's terminal status as an Outcome.
//
// Composition geometry always mirrors the footage: a template contributes its
// composition and output settings, never its frame size or rate.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slowmo/internal/logging"
	"slowmo/internal/media"
)

// Settings are the render parameters taken from configuration.
type Settings struct {
	InputDir        string
	OutputDir       string
	TimeStretch     float64
	ApplyBulletTime bool
	TemplatePath    string
}

// Orchestrator renders one source at a time against an Engine.
type Orchestrator struct {
	engine   Engine
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator returns an Orchestrator for engine.
func NewOrchestrator(engine Engine, settings Settings, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "render"),
		now:      time.Now,
	}
}

// Render runs the full engine sequence for file. Engine-side project items
// are released before it returns, whatever the outcome.
func (o *Orchestrator) Render(ctx context.Context, file media.SourceFile) Outcome {
	logger := o.logger.With(logging.String(logging.FieldIdentity, file.Identity))
	req := NewRequest(file, o.settings, o.now())
	if err := req.Validate(o.settings.InputDir); err != nil {
		return engineFailure("request rejected: " + err.Error())
	}

	defer o.engine.ReleaseAll()

	footage, err := o.engine.ImportMedia(ctx, file.Path)
	if err != nil {
		return engineFailure(fmt.Sprintf("import media: %v", err))
	}
	logger.Debug("footage imported",
		logging.Int("width", footage.Width),
		logging.Int("height", footage.Height),
		logging.Float64("frame_rate", footage.FrameRate),
		logging.Duration("duration", footage.Duration),
	)

	pixelAspect := footage.PixelAspect
	if pixelAspect <= 0 {
		pixelAspect = 1.0
	}
	spec := CompositionSpec{
		Name:        "BulletTime_" + file.Name,
		Width:       footage.Width,
		Height:      footage.Height,
		PixelAspect: pixelAspect,
		FrameRate:   footage.FrameRate,
		Duration:    req.TargetDuration(footage),
	}

	comp, err := o.composition(ctx, logger, req, spec)
	if err != nil {
		return engineFailure(err.Error())
	}

	layer, err := o.engine.SetLayerSource(ctx, comp, footage)
	if err != nil {
		return engineFailure(fmt.Sprintf("set layer source: %v", err))
	}
	if err := o.engine.SetLayerTimeStretch(ctx, layer, req.TimeStretch); err != nil {
		return engineFailure(fmt.Sprintf("set time stretch: %v", err))
	}

	if req.EffectRequired {
		params := map[string]string{"mode": "timestretching"}
		if err := o.engine.ApplyEffect(ctx, layer, EffectBulletTime, params); err != nil {
			if errors.Is(err, ErrEffectUnavailable) {
				return effectUnavailable(err.Error())
			}
			return engineFailure(fmt.Sprintf("apply effect: %v", err))
		}
	}

	job, err := o.engine.EnqueueRender(ctx, comp, req.OutputPath)
	if err != nil {
		return engineFailure(fmt.Sprintf("enqueue render: %v", err))
	}
	logger.Info("render started",
		logging.String(logging.FieldEventType, "render_started"),
		logging.String("output", req.OutputPath),
		logging.Float64("time_stretch", req.TimeStretch),
	)
	if err := o.engine.ExecuteRenderQueue(ctx); err != nil {
		return engineFailure(fmt.Sprintf("execute render queue: %v", err))
	}

	status := o.engine.Status(job)
	if status.State != StatusDone {
		detail := "render status " + status.State.String()
		if status.Detail != "" {
			detail += ": " + status.Detail
		}
		return engineFailure(detail)
	}
	return succeeded(req.OutputPath)
}

// composition reuses the template's first composition when one loads and
// falls back to a new composition otherwise.
func (o *Orchestrator) composition(ctx context.Context, logger *slog.Logger, req Request, spec CompositionSpec) (Composition, error) {
	if req.TemplatePath != "" {
		tmpl, err := o.engine.OpenTemplate(ctx, req.TemplatePath)
		switch {
		case err != nil:
			logging.WarnWithContext(logger, "template not loaded; creating a fresh composition", "template_unavailable",
				logging.String(logging.FieldPath, req.TemplatePath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check processing.template_path"),
				logging.String(logging.FieldImpact, "render uses default output settings"),
			)
		case tmpl != nil:
			comp, err := o.engine.UpdateComposition(ctx, *tmpl, spec)
			if err != nil {
				return Composition{}, fmt.Errorf("update composition: %w", err)
			}
			return comp, nil
		default:
			logger.Debug("template has no composition", logging.String(logging.FieldPath, req.TemplatePath))
		}
	}
	comp, err := o.engine.CreateComposition(ctx, spec)
	if err != nil {
		return Composition{}, fmt.Errorf("create composition: %w", err)
	}
	return comp, nil
}
