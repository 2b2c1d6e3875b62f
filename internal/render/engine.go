package render

import (
	"context"
	"errors"
	"time"
)

// EffectBulletTime is the frame-interpolation effect applied on top of the
// time stretch.
const EffectBulletTime = "bullet_time"

// ErrEffectUnavailable is returned by ApplyEffect when the engine does not
// provide the requested effect.
var ErrEffectUnavailable = errors.New("effect unavailable")

// Footage is what the engine reports about an imported source.
type Footage struct {
	ID          string
	Path        string
	Width       int
	Height      int
	FrameRate   float64
	PixelAspect float64
	Duration    time.Duration
}

// CompositionSpec is the frame geometry and length of a composition.
type CompositionSpec struct {
	Name        string
	Width       int
	Height      int
	PixelAspect float64
	FrameRate   float64
	Duration    time.Duration
}

// Composition is an engine-side project item.
type Composition struct {
	ID string
	CompositionSpec
}

// Layer places footage inside a composition.
type Layer struct {
	ID            string
	CompositionID string
	FootageID     string
}

// JobHandle identifies a queued render.
type JobHandle struct {
	ID         string
	OutputPath string
}

// Status is the engine's view of a render job.
type Status int

const (
	StatusPending Status = iota
	StatusRendering
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRendering:
		return "rendering"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobStatus is a status plus whatever diagnostic the engine kept.
type JobStatus struct {
	State  Status
	Detail string
}

// Engine is the rendering capability the orchestrator drives. Project items
// live until ReleaseAll.
type Engine interface {
	ImportMedia(ctx context.Context, path string) (Footage, error)
	// OpenTemplate returns the first composition of the template at path,
	// or nil when the template holds none.
	OpenTemplate(ctx context.Context, path string) (*Composition, error)
	CreateComposition(ctx context.Context, spec CompositionSpec) (Composition, error)
	UpdateComposition(ctx context.Context, comp Composition, spec CompositionSpec) (Composition, error)
	// SetLayerSource replaces the source of the composition's first layer,
	// adding one when the composition is empty.
	SetLayerSource(ctx context.Context, comp Composition, footage Footage) (Layer, error)
	SetLayerTimeStretch(ctx context.Context, layer Layer, percent float64) error
	ApplyEffect(ctx context.Context, layer Layer, effect string, params map[string]string) error
	EnqueueRender(ctx context.Context, comp Composition, outputPath string) (JobHandle, error)
	ExecuteRenderQueue(ctx context.Context) error
	Status(job JobHandle) JobStatus
	ReleaseAll()
}
