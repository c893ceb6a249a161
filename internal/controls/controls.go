// Package controls holds the user-adjustable render settings: the zoom and
// speed range controls and the viewport the canvas is sized to.
package controls

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidControl is returned for values a control cannot accept.
var ErrInvalidControl = errors.New("invalid control value")

// MaxViewportSide bounds each canvas dimension.
const MaxViewportSide = 8192

// Range describes a numeric range control.
type Range struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max" validate:"gtfield=Min"`
	Step    float64 `json:"step" yaml:"step" validate:"gt=0"`
	Default float64 `json:"default" yaml:"default"`
}

// Clamp limits v to the range and snaps it to the nearest step from Min.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	if r.Step > 0 {
		steps := math.Round((v - r.Min) / r.Step)
		v = r.Min + steps*r.Step
		// Snapping can overshoot Max when the span is not a whole number of steps
		if v > r.Max {
			v -= r.Step
		}
		// Trim float noise such as 1.2000000000000002
		v = math.Round(v*1e9) / 1e9
	}
	return v
}

// DefaultZoom and DefaultSpeed are the ranges used when none are configured.
var (
	DefaultZoom  = Range{Min: 0.5, Max: 3, Step: 0.1, Default: 1}
	DefaultSpeed = Range{Min: 1, Max: 60, Step: 1, Default: 30}
)

// RenderConfig is the per-frame snapshot of the controls.
type RenderConfig struct {
	Zoom  float64 `json:"zoom"`
	Speed float64 `json:"speed"`
}

// Viewport is the canvas size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks that both sides are positive and bounded.
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("%w: viewport %dx%d must be positive", ErrInvalidControl, v.Width, v.Height)
	}
	if v.Width > MaxViewportSide || v.Height > MaxViewportSide {
		return fmt.Errorf("%w: viewport %dx%d exceeds %d", ErrInvalidControl, v.Width, v.Height, MaxViewportSide)
	}
	return nil
}

// Controls is the shared, concurrency-safe state behind the UI controls.
type Controls struct {
	mu        sync.RWMutex
	zoomRange Range
	speedRng  Range
	config    RenderConfig
	viewport  Viewport
	overlays  bool
}

// New creates Controls with the given ranges, their defaults selected, and
// the given initial viewport.
func New(zoom, speed Range, viewport Viewport) *Controls {
	return &Controls{
		zoomRange: zoom,
		speedRng:  speed,
		config: RenderConfig{
			Zoom:  zoom.Clamp(zoom.Default),
			Speed: speed.Clamp(speed.Default),
		},
		viewport: viewport,
		overlays: true,
	}
}

// Snapshot returns the current render config.
func (c *Controls) Snapshot() RenderConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Viewport returns the current canvas size.
func (c *Controls) Viewport() Viewport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewport
}

// Ranges returns the zoom and speed ranges.
func (c *Controls) Ranges() (zoom, speed Range) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zoomRange, c.speedRng
}

// SetZoom sets the zoom, clamped to its range, and returns the stored value.
func (c *Controls) SetZoom(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: zoom %v", ErrInvalidControl, v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Zoom = c.zoomRange.Clamp(v)
	return c.config.Zoom, nil
}

// SetSpeed sets the speed, clamped to its range, and returns the stored value.
func (c *Controls) SetSpeed(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: speed %v", ErrInvalidControl, v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Speed = c.speedRng.Clamp(v)
	return c.config.Speed, nil
}

// SetViewport resizes the canvas. It takes effect on the next redraw.
func (c *Controls) SetViewport(v Viewport) error {
	if err := v.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
	return nil
}

// SetRanges replaces both ranges and re-clamps the current values.
func (c *Controls) SetRanges(zoom, speed Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zoomRange = zoom
	c.speedRng = speed
	c.config.Zoom = zoom.Clamp(c.config.Zoom)
	c.config.Speed = speed.Clamp(c.config.Speed)
}

// OverlaysEnabled reports whether landmark overlays are drawn.
func (c *Controls) OverlaysEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overlays
}

// SetOverlaysEnabled turns landmark overlays on or off.
func (c *Controls) SetOverlaysEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays = enabled
}
