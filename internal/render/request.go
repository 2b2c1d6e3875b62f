package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"slowmo/internal/media"
	"slowmo/internal/pathutil"
)

// OutputTimestampLayout is embedded in output names; second resolution keeps
// reprocessing attempts from colliding.
const OutputTimestampLayout = "2006-01-02_15-04-05"

// ErrOutputInsideInput rejects a request whose output would be picked up by
// the scanner as a new source.
var ErrOutputInsideInput = errors.New("output path inside input directory")

// Request is one render derived from a source file.
type Request struct {
	Source         media.SourceFile
	OutputPath     string
	TimeStretch    float64
	EffectRequired bool
	TemplatePath   string
}

// NewRequest derives the render request for file at time now.
func NewRequest(file media.SourceFile, settings Settings, now time.Time) Request {
	name := fmt.Sprintf("%s_%s.mp4", file.Base(), now.Format(OutputTimestampLayout))
	return Request{
		Source:         file,
		OutputPath:     filepath.Join(settings.OutputDir, name),
		TimeStretch:    settings.TimeStretch,
		EffectRequired: settings.ApplyBulletTime,
		TemplatePath:   settings.TemplatePath,
	}
}

// Validate checks the request against the input directory.
func (r Request) Validate(inputDir string) error {
	if r.TimeStretch <= 0 {
		return fmt.Errorf("time stretch must be positive, got %v", r.TimeStretch)
	}
	if pathutil.IsWithin(inputDir, r.OutputPath) {
		return fmt.Errorf("%w: %s", ErrOutputInsideInput, r.OutputPath)
	}
	return nil
}

// TargetDuration is the stretched length of footage.
func (r Request) TargetDuration(footage Footage) time.Duration {
	return time.Duration(float64(footage.Duration) * r.TimeStretch / 100)
}
