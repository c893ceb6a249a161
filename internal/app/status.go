package app

import (
	"time"

	"github.com/ayusman/kaleido/internal/controls"
	"github.com/ayusman/kaleido/internal/detector"
	"github.com/ayusman/kaleido/internal/kaleido"
)

// Status is a point-in-time view of the whole pipeline.
type Status struct {
	Running   bool                  `json:"running"`
	StartedAt time.Time             `json:"started_at"`
	Camera    CameraStatus          `json:"camera"`
	Detectors []DetectorStatus      `json:"detectors"`
	Render    kaleido.Stats         `json:"render"`
	Controls  controls.RenderConfig `json:"controls"`
	Viewport  controls.Viewport     `json:"viewport"`
	Overlays  bool                  `json:"overlays"`
	Stream    HubStats              `json:"stream"`
}

// CameraStatus reports the camera. Error holds the last open or read
// failure and clears once a frame is read.
type CameraStatus struct {
	Device    int       `json:"device"`
	Open      bool      `json:"open"`
	Error     string    `json:"error,omitempty"`
	Frames    uint64    `json:"frames"`
	LastFrame time.Time `json:"last_frame"`
}

// DetectorStatus reports one detector worker.
type DetectorStatus struct {
	Kind      detector.Kind `json:"kind"`
	Available bool          `json:"available"`
	Error     string        `json:"error,omitempty"`
	Runs      uint64        `json:"runs"`
	Failures  uint64        `json:"failures"`
	Dropped   uint64        `json:"dropped"`
}

// Status returns the current status.
func (a *App) Status() Status {
	a.mu.Lock()
	running := a.cancel != nil
	started := a.started
	a.mu.Unlock()

	a.cameraState.mu.Lock()
	cam := CameraStatus{
		Device:    a.cameraState.device,
		Open:      a.cameraState.open && a.camera.IsOpen(),
		Frames:    a.cameraState.frames,
		LastFrame: a.cameraState.lastFrame,
	}
	if a.cameraState.err != nil {
		cam.Error = a.cameraState.err.Error()
	}
	a.cameraState.mu.Unlock()

	dets := make([]DetectorStatus, len(a.workers))
	for i, w := range a.workers {
		dets[i] = w.status()
	}

	return Status{
		Running:   running,
		StartedAt: started,
		Camera:    cam,
		Detectors: dets,
		Render:    a.loop.Stats(),
		Controls:  a.controls.Snapshot(),
		Viewport:  a.controls.Viewport(),
		Overlays:  a.controls.OverlaysEnabled(),
		Stream:    a.video.Stats(),
	}
}
