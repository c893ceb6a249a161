// Package app wires the camera, landmark detectors, render loop and output
// hubs into the running kaleidoscope.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/kaleido/internal/capture"
	"github.com/ayusman/kaleido/internal/config"
	"github.com/ayusman/kaleido/internal/controls"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/kaleido"
	"github.com/ayusman/kaleido/internal/latest"
	"github.com/ayusman/kaleido/internal/logging"
)

// CameraRetryInterval is how long the capture loop waits before trying to
// open a camera that failed to open.
const CameraRetryInterval = 5 * time.Second

// Encoder turns a rendered canvas into JPEG bytes.
type Encoder func(img image.Image) ([]byte, error)

// Config holds the collaborators of an App. Nil fields are built from
// Settings.
type Config struct {
	Settings  *config.Config
	Camera    capture.Camera
	Face      detector.Detector
	Hands     detector.Detector
	Encoder   Encoder
	Refresher func() kaleido.Refresher
	Logger    *logrus.Logger
}

// EncodedFrame is one JPEG-encoded kaleidoscope frame.
type EncodedFrame struct {
	JPEG      []byte
	Seq       uint64
	Timestamp time.Time
}

// Overlay is the landmark state drawn with one frame.
type Overlay struct {
	Seq   uint64                 `json:"seq"`
	Zoom  float64                `json:"zoom"`
	Faces []detector.LandmarkSet `json:"faces"`
	Hands []detector.LandmarkSet `json:"hands"`
}

// App is the running kaleidoscope.
type App struct {
	settings *config.Config
	camera   capture.Camera
	controls *controls.Controls
	encode   Encoder
	log      *logrus.Logger

	frames latest.Slot[capture.Frame]
	faces  latest.Slot[detector.FaceResult]
	hands  latest.Slot[detector.HandResult]

	loop     *kaleido.Loop
	video    *Hub[EncodedFrame]
	overlays *Hub[Overlay]
	workers  []*worker

	cameraState cameraState
	started     time.Time

	seq          atomic.Uint64
	encodeErrors rate.Sometimes

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	released bool
}

// New creates an App. Detectors that cannot be loaded are replaced by
// detector.Disabled so the kaleidoscope still renders raw video.
func New(cfg Config) *App {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	a := &App{
		settings: settings,
		camera:   cfg.Camera,
		controls: controls.New(settings.Render.Zoom, settings.Render.Speed, settings.Render.Viewport),
		encode:   cfg.Encoder,
		log:      logger,
		video:    NewHub[EncodedFrame](),
		overlays: NewHub[Overlay](),

		encodeErrors: rate.Sometimes{Interval: errorLogInterval},
	}
	a.controls.SetOverlaysEnabled(settings.Render.Overlays)

	if a.camera == nil {
		cam := settings.Camera
		a.camera = capture.NewCameraWithSize(cam.Device, cam.Width, cam.Height)
	}
	a.camera.SetFPS(settings.Camera.FPS)
	a.cameraState.device = settings.Camera.Device

	if a.encode == nil {
		quality := settings.Render.JPEGQuality
		a.encode = func(img image.Image) ([]byte, error) {
			return capture.EncodeJPEG(img, quality)
		}
	}

	face := cfg.Face
	if face == nil {
		face = a.loadDetector(settings.Detectors.Face)
	}
	hands := cfg.Hands
	if hands == nil {
		hands = a.loadDetector(settings.Detectors.Hands)
	}
	a.workers = []*worker{
		newWorker(detector.KindFace, face, func(sets []detector.LandmarkSet, ts int64) {
			a.faces.Store(&detector.FaceResult{Faces: sets, Timestamp: ts})
		}, logging.Component(logger, "detector").WithField("kind", detector.KindFace)),
		newWorker(detector.KindHands, hands, func(sets []detector.LandmarkSet, ts int64) {
			a.hands.Store(&detector.HandResult{Hands: sets, Timestamp: ts})
		}, logging.Component(logger, "detector").WithField("kind", detector.KindHands)),
	}

	refresher := cfg.Refresher
	if refresher == nil {
		hz := settings.Render.RefreshRate
		refresher = func() kaleido.Refresher { return kaleido.NewTickerRefresher(hz) }
	}
	a.loop = kaleido.NewLoop(kaleido.LoopConfig{
		Sources: kaleido.Sources{
			Frames: &a.frames,
			Faces:  &a.faces,
			Hands:  &a.hands,
		},
		Controls:  a.controls,
		Sink:      a.publish,
		Refresher: refresher,
		Logger:    logrus.NewEntry(logger),
	})

	return a
}

// loadDetector starts the MediaPipe service for c, or returns a Disabled
// detector explaining why it could not.
func (a *App) loadDetector(c detector.Config) detector.Detector {
	log := logging.Component(a.log, "detector").WithField("kind", c.Kind)

	if !a.settings.Detectors.Enabled {
		log.Info("detector disabled by configuration")
		return detector.Disabled{Kind: c.Kind, Reason: errors.New("disabled by configuration")}
	}

	mp, err := detector.NewMediaPipeDetector(c)
	if err != nil {
		log.WithError(err).Warn("MediaPipe not available, overlays disabled")
		return detector.Disabled{Kind: c.Kind, Reason: err}
	}
	log.WithField("args", mp.Args()).Info("using MediaPipe detection")
	return mp
}

// Start opens the camera and starts the capture, detection and render
// goroutines. A camera that fails to open is recorded in the status and
// retried; Start itself only fails if the app is already running.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return errors.New("app already started")
	}
	if a.released {
		return errors.New("app already stopped")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = time.Now()

	a.openCamera(logging.Component(a.log, "capture"))

	a.wg.Add(2 + len(a.workers))
	go func() {
		defer a.wg.Done()
		a.runCapture(ctx)
	}()
	for _, w := range a.workers {
		go func() {
			defer a.wg.Done()
			w.run(ctx)
		}()
	}
	go func() {
		defer a.wg.Done()
		if err := a.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.WithError(err).Error("render loop stopped")
		}
	}()

	logging.Component(a.log, "app").Info("kaleidoscope started")
	return nil
}

// Stop cancels every goroutine, waits for them, and releases the camera and
// detectors. It also releases an App that was never started. It is safe to
// call more than once; a stopped App cannot be restarted.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		a.wg.Wait()
	}
	if a.released {
		return
	}
	a.released = true

	a.video.Close()
	a.overlays.Close()

	if err := a.camera.Close(); err != nil {
		a.log.WithError(err).Warn("error closing camera")
	}
	for _, w := range a.workers {
		if err := w.detector.Close(); err != nil {
			w.log.WithError(err).Warn("error closing detector")
		}
	}

	logging.Component(a.log, "app").Info("kaleidoscope stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Controls returns the shared render controls.
func (a *App) Controls() *controls.Controls {
	return a.controls
}

// Video returns the hub of encoded frames.
func (a *App) Video() *Hub[EncodedFrame] {
	return a.video
}

// Overlays returns the hub of per-frame landmark overlays.
func (a *App) Overlays() *Hub[Overlay] {
	return a.overlays
}

// Loop returns the render loop.
func (a *App) Loop() *kaleido.Loop {
	return a.loop
}

// ApplySettings applies the live-reloadable parts of a new configuration:
// the control ranges and the overlay toggle.
func (a *App) ApplySettings(s *config.Config) {
	a.controls.SetRanges(s.Render.Zoom, s.Render.Speed)
	a.controls.SetOverlaysEnabled(s.Render.Overlays)
	logging.Component(a.log, "app").Info("control ranges updated")
}

// Snapshot renders one frame immediately from the current sources and
// returns it JPEG encoded. It must not be called while the app is running.
func (a *App) Snapshot() ([]byte, error) {
	if a.Running() {
		return nil, errors.New("snapshot while running")
	}
	canvas := a.loop.Redraw(a.controls.Snapshot().Zoom)
	data, err := a.encode(canvas)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// CaptureOnce opens the camera if needed and stores one frame as the
// current source. Used by one-shot rendering.
func (a *App) CaptureOnce() error {
	if !a.camera.IsOpen() {
		if err := a.openCamera(logging.Component(a.log, "capture")); err != nil {
			return err
		}
	}
	frame, err := a.camera.ReadFrame()
	if err != nil {
		return err
	}
	a.frames.Store(frame)
	return nil
}

// DetectOnce runs every detector once on the current frame and stores
// the results.
func (a *App) DetectOnce(ctx context.Context) {
	frame := a.frames.Load()
	if frame == nil {
		return
	}
	for _, w := range a.workers {
		w.detect(ctx, frame)
	}
}
