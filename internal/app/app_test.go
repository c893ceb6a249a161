package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/kaleido/internal/capture"
	"github.com/ayusman/kaleido/internal/config"
	"github.com/ayusman/kaleido/internal/controls"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/logging"
)

func jpegEncoder(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func redFrames(n int) []*image.RGBA {
	frames := make([]*image.RGBA, n)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
		frames[i] = img
	}
	return frames
}

type fixture struct {
	app    *App
	camera *capture.MockCamera
	face   *detector.MockDetector
	hands  *detector.MockDetector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings := config.Default()
	settings.Render.Viewport = controls.Viewport{Width: 96, Height: 64}

	f := &fixture{
		camera: capture.NewMockCamera(redFrames(3), true),
		face:   detector.NewMockDetector(),
		hands:  detector.NewMockDetector(),
	}
	f.face.SetLandmarks([]detector.LandmarkSet{detector.SyntheticFace(0.5, 0.5, 0.2, 0.25)})
	f.hands.SetLandmarks([]detector.LandmarkSet{detector.OpenPalm(0.3, 0.8), detector.OpenPalm(0.7, 0.8)})

	f.app = New(Config{
		Settings: settings,
		Camera:   f.camera,
		Face:     f.face,
		Hands:    f.hands,
		Encoder:  jpegEncoder,
		Logger:   logging.Discard(),
	})
	t.Cleanup(f.app.Stop)
	return f
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextFrame(t *testing.T, sub *Subscription[EncodedFrame]) image.Image {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	frame, ok := sub.Next(ctx)
	if !ok {
		t.Fatal("no encoded frame received")
	}
	img, err := jpeg.Decode(bytes.NewReader(frame.JPEG))
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return img
}

func TestApp_Pipeline(t *testing.T) {
	f := newFixture(t)

	if err := f.app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.app.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	sub := f.app.Video().Subscribe()
	defer sub.Close()

	img := nextFrame(t, sub)
	if img.Bounds() != image.Rect(0, 0, 96, 64) {
		t.Errorf("frame bounds = %v, want viewport 96x64", img.Bounds())
	}

	waitFor(t, "both detectors to produce results", func() bool {
		ov := f.app.Overlays().Latest()
		return ov != nil && len(ov.Faces) == 1 && len(ov.Hands) == 2
	})

	status := f.app.Status()
	if !status.Running || !status.Camera.Open || status.Camera.Frames == 0 {
		t.Errorf("camera status = %+v", status.Camera)
	}
	if len(status.Detectors) != 2 {
		t.Fatalf("detectors = %+v", status.Detectors)
	}
	for _, d := range status.Detectors {
		if !d.Available || d.Runs == 0 {
			t.Errorf("detector status = %+v", d)
		}
	}
	if status.Render.Redraws == 0 || status.Stream.Published == 0 {
		t.Errorf("render/stream status = %+v / %+v", status.Render, status.Stream)
	}

	f.app.Stop()
	if f.app.Running() {
		t.Error("Running() after Stop")
	}
	if f.camera.IsOpen() {
		t.Error("camera still open after Stop")
	}
	f.app.Stop()
}

func TestApp_CameraFailure(t *testing.T) {
	f := newFixture(t)
	f.camera.FailOpen(errors.New("permission denied"))

	if err := f.app.Start(context.Background()); err != nil {
		t.Fatalf("Start() should not fail on camera errors, got %v", err)
	}

	sub := f.app.Video().Subscribe()
	defer sub.Close()
	img := nextFrame(t, sub)

	r, g, b, _ := img.At(48, 32).RGBA()
	if r>>8 > 16 || g>>8 > 16 || b>>8 > 16 {
		t.Errorf("center pixel = %v, want black without a camera", img.At(48, 32))
	}

	status := f.app.Status()
	if status.Camera.Open || !strings.Contains(status.Camera.Error, "permission denied") {
		t.Errorf("camera status = %+v", status.Camera)
	}
}

func TestApp_DisabledDetectors(t *testing.T) {
	settings := config.Default()
	settings.Detectors.Enabled = false
	settings.Render.Viewport = controls.Viewport{Width: 32, Height: 32}

	a := New(Config{
		Settings: settings,
		Camera:   capture.NewMockCamera(redFrames(1), true),
		Encoder:  jpegEncoder,
		Logger:   logging.Discard(),
	})
	defer a.Stop()

	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "a redraw", func() bool { return a.Overlays().Latest() != nil })

	ov := a.Overlays().Latest()
	if ov.Faces != nil || ov.Hands != nil {
		t.Errorf("overlays present with detectors disabled: %+v", ov)
	}
	for _, d := range a.Status().Detectors {
		if d.Available || d.Error == "" {
			t.Errorf("detector status = %+v, want unavailable with a reason", d)
		}
	}
}

func TestApp_DetectorErrorKeepsLastResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.CaptureOnce(); err != nil {
		t.Fatal(err)
	}
	f.app.DetectOnce(ctx)

	before := f.app.hands.Load()
	if before == nil || len(before.Hands) != 2 {
		t.Fatalf("hands = %+v", before)
	}

	f.hands.SetError(errors.New("service crashed"))
	f.app.DetectOnce(ctx)

	if f.app.hands.Load() != before {
		t.Error("a failed detection replaced the last result")
	}

	var hands DetectorStatus
	for _, d := range f.app.Status().Detectors {
		if d.Kind == detector.KindHands {
			hands = d
		}
	}
	if hands.Failures != 1 || hands.Error != "service crashed" {
		t.Errorf("hands status = %+v", hands)
	}
}

func TestApp_EmptyDetectionReplacesResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.CaptureOnce(); err != nil {
		t.Fatal(err)
	}
	f.app.DetectOnce(ctx)

	f.hands.SetLandmarks(nil)
	f.app.DetectOnce(ctx)

	got := f.app.hands.Load()
	if got == nil || len(got.Hands) != 0 {
		t.Errorf("hands = %+v, want an empty result", got)
	}
}

func TestApp_Snapshot(t *testing.T) {
	f := newFixture(t)

	if err := f.app.CaptureOnce(); err != nil {
		t.Fatal(err)
	}
	f.app.DetectOnce(context.Background())

	data, err := f.app.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 96, 64) {
		t.Errorf("snapshot bounds = %v", img.Bounds())
	}
}

func TestApp_ApplySettings(t *testing.T) {
	f := newFixture(t)

	s := config.Default()
	s.Render.Speed = controls.Range{Min: 1, Max: 10, Step: 1, Default: 5}
	s.Render.Overlays = false
	f.app.ApplySettings(s)

	if got := f.app.Controls().Snapshot().Speed; got != 10 {
		t.Errorf("speed after narrowing range = %v, want clamped to 10", got)
	}
	if f.app.Controls().OverlaysEnabled() {
		t.Error("overlays still enabled")
	}
}
