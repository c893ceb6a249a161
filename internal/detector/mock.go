package detector

import (
	"context"
	"math"
	"sync"

	"github.com/ayusman/kaleido/internal/capture"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	sets  []LandmarkSet
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetLandmarks sets the landmark sets that will be returned by Detect.
func (m *MockDetector) SetLandmarks(sets []LandmarkSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = sets
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured landmark sets or error.
func (m *MockDetector) Detect(ctx context.Context, frame *capture.Frame) ([]LandmarkSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.sets, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Disabled is a Detector that never finds anything. It stands in for a
// detector whose backend failed to load, so its overlay stays absent.
type Disabled struct {
	Kind   Kind
	Reason error
}

// Detect always returns ErrDetectorUnavailable.
func (d Disabled) Detect(ctx context.Context, frame *capture.Frame) ([]LandmarkSet, error) {
	return nil, ErrDetectorUnavailable
}

// Close is a no-op.
func (d Disabled) Close() error {
	return nil
}

// SyntheticFace returns a refined face mesh whose points all lie on an
// ellipse centered at (cx, cy), so every outline and eye index resolves.
func SyntheticFace(cx, cy, rx, ry float64) LandmarkSet {
	face := make(LandmarkSet, NumFaceLandmarksRefined)
	for i := range face {
		a := 2 * math.Pi * float64(i) / float64(len(face))
		face[i] = Landmark{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a)}
	}

	// Place the outline on the rim and the eyes as small rings inside it
	for i, idx := range FaceOutline {
		a := 2 * math.Pi * float64(i) / float64(len(FaceOutline)-1)
		face[idx] = Landmark{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a)}
	}
	placeRing(face, LeftEye, cx-rx/2.5, cy-ry/4, rx/6, ry/10)
	placeRing(face, RightEye, cx+rx/2.5, cy-ry/4, rx/6, ry/10)
	return face
}

func placeRing(set LandmarkSet, indices []int, cx, cy, rx, ry float64) {
	for i, idx := range indices {
		a := 2 * math.Pi * float64(i) / float64(len(indices))
		set[idx] = Landmark{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a)}
	}
}

// OpenPalm returns 21 hand landmarks of an open right palm with its wrist at
// (wx, wy), in normalized image coordinates.
func OpenPalm(wx, wy float64) LandmarkSet {
	offsets := [NumHandLandmarks][2]float64{
		Wrist:     {0, 0},
		ThumbCMC:  {0.05, -0.05},
		ThumbMCP:  {0.12, -0.10},
		ThumbIP:   {0.18, -0.15},
		ThumbTip:  {0.23, -0.20},
		IndexMCP:  {0.05, -0.12},
		IndexPIP:  {0.07, -0.25},
		IndexDIP:  {0.08, -0.35},
		IndexTip:  {0.08, -0.45},
		MiddleMCP: {0, -0.14},
		MiddlePIP: {0, -0.28},
		MiddleDIP: {0, -0.40},
		MiddleTip: {0, -0.52},
		RingMCP:   {-0.05, -0.12},
		RingPIP:   {-0.07, -0.25},
		RingDIP:   {-0.08, -0.35},
		RingTip:   {-0.08, -0.45},
		PinkyMCP:  {-0.10, -0.10},
		PinkyPIP:  {-0.13, -0.20},
		PinkyDIP:  {-0.15, -0.30},
		PinkyTip:  {-0.16, -0.38},
	}

	hand := make(LandmarkSet, NumHandLandmarks)
	for i, o := range offsets {
		hand[i] = Landmark{X: wx + o[0]*0.5, Y: wy + o[1]*0.5}
	}
	return hand
}
