package kaleido

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/kaleido/internal/capture"
	"github.com/ayusman/kaleido/internal/controls"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/latest"
)

// DefaultRefreshRate stands in for the display refresh rate.
const DefaultRefreshRate = 60

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Refresher produces one tick per display refresh. Stop releases it.
type Refresher interface {
	C() <-chan time.Time
	Stop()
}

type tickerRefresher struct{ t *time.Ticker }

func (r tickerRefresher) C() <-chan time.Time { return r.t.C }
func (r tickerRefresher) Stop()               { r.t.Stop() }

// NewTickerRefresher ticks hz times per second.
func NewTickerRefresher(hz int) Refresher {
	if hz <= 0 {
		hz = DefaultRefreshRate
	}
	return tickerRefresher{t: time.NewTicker(time.Second / time.Duration(hz))}
}

// Sink receives each redrawn canvas. The canvas is reused by the next
// redraw, so a sink must finish with it (encode or copy) before returning.
type Sink func(canvas *image.RGBA, scene Scene)

// Sources are the latest-value cells the loop reads on every redraw.
type Sources struct {
	Frames *latest.Slot[capture.Frame]
	Faces  *latest.Slot[detector.FaceResult]
	Hands  *latest.Slot[detector.HandResult]
}

// LoopConfig configures a Loop. Zero fields take defaults.
type LoopConfig struct {
	Sources   Sources
	Controls  *controls.Controls
	Sink      Sink
	Clock     Clock
	Throttle  Throttle
	Refresher func() Refresher
	Logger    *logrus.Entry
}

// Stats describes the loop's activity so far.
type Stats struct {
	Ticks          uint64        `json:"ticks"`
	Redraws        uint64        `json:"redraws"`
	LastRenderTime time.Duration `json:"last_render_time"`
	Viewport       string        `json:"viewport"`
}

// Loop is the render loop: once per refresh tick it asks the throttle
// whether to redraw and, if so, paints one frame from whatever the sources
// currently hold. It never waits on detection.
type Loop struct {
	config   LoopConfig
	renderer *Renderer
	canvas   *image.RGBA
	start    time.Time
	started  bool
	log      *logrus.Entry

	ticks      atomic.Uint64
	redraws    atomic.Uint64
	lastRender atomic.Int64
	size       atomic.Value
}

// NewLoop creates a Loop.
func NewLoop(config LoopConfig) *Loop {
	if config.Clock == nil {
		config.Clock = SystemClock
	}
	if config.Throttle == nil {
		config.Throttle = &IntervalThrottle{}
	}
	if config.Refresher == nil {
		config.Refresher = func() Refresher { return NewTickerRefresher(DefaultRefreshRate) }
	}
	if config.Logger == nil {
		config.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.Sources.Frames == nil {
		config.Sources.Frames = &latest.Slot[capture.Frame]{}
	}
	if config.Sources.Faces == nil {
		config.Sources.Faces = &latest.Slot[detector.FaceResult]{}
	}
	if config.Sources.Hands == nil {
		config.Sources.Hands = &latest.Slot[detector.HandResult]{}
	}

	l := &Loop{
		config:   config,
		renderer: NewRenderer(),
		log:      config.Logger.WithField("component", "render"),
	}
	l.size.Store("")
	return l
}

// Run ticks until ctx is done. Every tick re-arms, whether or not it redrew.
func (l *Loop) Run(ctx context.Context) error {
	refresher := l.config.Refresher()
	defer refresher.Stop()

	l.log.Debug("render loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("render loop stopped")
			return ctx.Err()
		case <-refresher.C():
			l.Tick(l.config.Clock.Now())
		}
	}
}

// Tick is one refresh callback. It returns true if it redrew.
func (l *Loop) Tick(now time.Time) bool {
	if !l.started {
		l.start = now
		l.started = true
	}
	l.ticks.Add(1)

	cfg := l.snapshot()
	if !l.config.Throttle.Ready(now.Sub(l.start), cfg.Speed) {
		return false
	}

	l.Redraw(cfg.Zoom)
	return true
}

// Redraw paints one frame immediately, bypassing the throttle. Like Tick it
// must not run concurrently with the loop.
func (l *Loop) Redraw(zoom float64) *image.RGBA {
	began := time.Now()

	canvas := l.canvasFor(l.viewport())
	scene := Scene{Zoom: zoom}
	if f := l.config.Sources.Frames.Load(); f != nil {
		scene.Frame = f.Image
	}
	if l.overlaysEnabled() {
		scene.Faces = l.config.Sources.Faces.Load()
		scene.Hands = l.config.Sources.Hands.Load()
	}

	l.renderer.Render(canvas, scene)
	if l.config.Sink != nil {
		l.config.Sink(canvas, scene)
	}

	l.redraws.Add(1)
	l.lastRender.Store(int64(time.Since(began)))
	return canvas
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:          l.ticks.Load(),
		Redraws:        l.redraws.Load(),
		LastRenderTime: time.Duration(l.lastRender.Load()),
		Viewport:       l.size.Load().(string),
	}
}

func (l *Loop) snapshot() controls.RenderConfig {
	if l.config.Controls == nil {
		return controls.RenderConfig{Zoom: controls.DefaultZoom.Default, Speed: controls.DefaultSpeed.Default}
	}
	return l.config.Controls.Snapshot()
}

func (l *Loop) viewport() controls.Viewport {
	if l.config.Controls == nil {
		return controls.Viewport{Width: capture.DefaultWidth, Height: capture.DefaultHeight}
	}
	return l.config.Controls.Viewport()
}

func (l *Loop) overlaysEnabled() bool {
	return l.config.Controls == nil || l.config.Controls.OverlaysEnabled()
}

// canvasFor returns the canvas, reallocating it when the viewport changed
// since the last redraw.
func (l *Loop) canvasFor(v controls.Viewport) *image.RGBA {
	if l.canvas != nil && l.canvas.Bounds().Dx() == v.Width && l.canvas.Bounds().Dy() == v.Height {
		return l.canvas
	}
	l.canvas = image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	size := image.Pt(v.Width, v.Height).String()
	l.size.Store(size)
	l.log.WithField("viewport", size).Debug("canvas resized")
	return l.canvas
}
