package app

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/kaleido/internal/capture"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/kaleido"
	"github.com/ayusman/kaleido/internal/latest"
	"github.com/ayusman/kaleido/internal/logging"
)

// errorLogInterval bounds how often a repeating runtime error is logged.
const errorLogInterval = 5 * time.Second

// cameraState tracks what the status endpoint reports about the camera.
type cameraState struct {
	mu        sync.Mutex
	device    int
	open      bool
	err       error
	frames    uint64
	lastFrame time.Time
}

func (s *cameraState) opened(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = err == nil
	s.err = err
}

func (s *cameraState) readFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *cameraState) frame(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.lastFrame = at
	s.err = nil
}

// openCamera opens the camera and records the outcome. Only the first
// failure of a run is logged at error level; retries log at debug.
func (a *App) openCamera(log *logrus.Entry) error {
	err := a.camera.Open()

	a.cameraState.mu.Lock()
	failedBefore := a.cameraState.err != nil && !a.cameraState.open
	a.cameraState.mu.Unlock()
	a.cameraState.opened(err)

	switch {
	case err == nil:
		log.WithField("device", a.cameraState.device).Info("camera opened")
	case failedBefore:
		log.WithError(err).Debug("camera still unavailable")
	default:
		log.WithError(err).Error("camera could not be opened, rendering black frames")
	}
	return err
}

// runCapture reads frames at the camera frame rate into the frame slot and
// offers each to the detector workers. A closed camera is retried every
// CameraRetryInterval.
func (a *App) runCapture(ctx context.Context) {
	log := logging.Component(a.log, "capture")
	ticker := time.NewTicker(time.Second / time.Duration(max(1, a.camera.FPS())))
	defer ticker.Stop()

	sometimes := rate.Sometimes{Interval: errorLogInterval}
	lastAttempt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !a.camera.IsOpen() {
				if now.Sub(lastAttempt) >= CameraRetryInterval {
					lastAttempt = now
					_ = a.openCamera(log)
				}
				continue
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				a.cameraState.readFailed(err)
				sometimes.Do(func() { log.WithError(err).Warn("error reading frame") })
				continue
			}

			a.cameraState.frame(now)
			a.frames.Store(frame)
			for _, w := range a.workers {
				w.offer(frame)
			}
		}
	}
}

// publish is the render loop sink. The overlay is always published; the
// canvas is only encoded when someone is watching the stream.
func (a *App) publish(canvas *image.RGBA, scene kaleido.Scene) {
	seq := a.seq.Add(1)

	ov := &Overlay{Seq: seq, Zoom: scene.Zoom}
	if scene.Faces != nil {
		ov.Faces = scene.Faces.Faces
	}
	if scene.Hands != nil {
		ov.Hands = scene.Hands.Hands
	}
	a.overlays.Publish(ov)

	if a.video.Subscribers() == 0 {
		return
	}
	data, err := a.encode(canvas)
	if err != nil {
		a.encodeErrors.Do(func() {
			logging.Component(a.log, "render").WithError(err).Warn("failed to encode frame")
		})
		return
	}
	a.video.Publish(&EncodedFrame{JPEG: data, Seq: seq, Timestamp: time.Now()})
}

// worker feeds the newest captured frame to one detector and stores its
// results. Frames that arrive while a detection is running replace each
// other, so a slow detector only ever sees the latest frame.
type worker struct {
	kind     detector.Kind
	detector detector.Detector
	store    func(sets []detector.LandmarkSet, timestamp int64)
	box      *latest.Mailbox[capture.Frame]
	log      *logrus.Entry
	disabled bool

	sometimes rate.Sometimes
	runs      atomic.Uint64
	failures  atomic.Uint64

	mu      sync.Mutex
	lastErr error
}

func newWorker(kind detector.Kind, d detector.Detector, store func([]detector.LandmarkSet, int64), log *logrus.Entry) *worker {
	w := &worker{
		kind:      kind,
		detector:  d,
		store:     store,
		box:       latest.NewMailbox[capture.Frame](),
		log:       log,
		sometimes: rate.Sometimes{Interval: errorLogInterval},
	}
	if off, ok := d.(detector.Disabled); ok {
		w.disabled = true
		w.lastErr = off.Reason
		if w.lastErr == nil {
			w.lastErr = detector.ErrDetectorUnavailable
		}
	}
	return w
}

func (w *worker) offer(frame *capture.Frame) {
	if w.disabled {
		return
	}
	w.box.Publish(frame)
}

func (w *worker) run(ctx context.Context) {
	defer w.box.Close()
	if w.disabled {
		return
	}
	for {
		frame, ok := w.box.Receive(ctx)
		if !ok {
			return
		}
		w.detect(ctx, frame)
	}
}

// detect runs one detection. On error the previous result stays in place.
func (w *worker) detect(ctx context.Context, frame *capture.Frame) {
	if w.disabled {
		return
	}
	sets, err := w.detector.Detect(ctx, frame)
	w.runs.Add(1)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.failures.Add(1)
		w.setErr(err)
		w.sometimes.Do(func() {
			entry := w.log.WithError(err)
			if errors.Is(err, detector.ErrDetectorUnavailable) {
				entry.Warn("detector unavailable")
				return
			}
			entry.Warn("detection failed")
		})
		return
	}
	w.setErr(nil)
	w.store(sets, frame.Timestamp)
}

func (w *worker) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastErr = err
}

func (w *worker) status() DetectorStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	drops, _ := w.box.Stats()
	s := DetectorStatus{
		Kind:      w.kind,
		Available: !w.disabled && !errors.Is(w.lastErr, detector.ErrDetectorUnavailable),
		Runs:      w.runs.Load(),
		Failures:  w.failures.Load(),
		Dropped:   drops,
	}
	if w.lastErr != nil {
		s.Error = w.lastErr.Error()
	}
	return s
}
