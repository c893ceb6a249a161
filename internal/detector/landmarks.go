// Package detector defines the face and hand landmark capability consumed by
// the kaleidoscope, and its MediaPipe-backed implementation.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist            = 0
	ThumbCMC         = 1
	ThumbMCP         = 2
	ThumbIP          = 3
	ThumbTip         = 4
	IndexMCP         = 5
	IndexPIP         = 6
	IndexDIP         = 7
	IndexTip         = 8
	MiddleMCP        = 9
	MiddlePIP        = 10
	MiddleDIP        = 11
	MiddleTip        = 12
	RingMCP          = 13
	RingPIP          = 14
	RingDIP          = 15
	RingTip          = 16
	PinkyMCP         = 17
	PinkyPIP         = 18
	PinkyDIP         = 19
	PinkyTip         = 20
	NumHandLandmarks = 21
)

// Face mesh sizes. Refinement adds iris points after the base mesh.
const (
	NumFaceLandmarks        = 468
	NumFaceLandmarksRefined = 478
)

// FaceOutline traces the jaw and forehead of the face mesh. The first index
// is repeated at the end.
var FaceOutline = []int{
	10, 338, 297, 332, 284, 251, 389, 356, 454,
	323, 361, 288, 397, 365, 379, 378, 400, 377, 152,
	148, 176, 149, 150, 136, 172, 58, 132, 93,
	234, 127, 162, 21, 54, 103, 67, 109, 10,
}

// Eye contours. Each repeats one lower-lid index (153 and 373), which is
// kept as-is.
var (
	LeftEye  = []int{33, 160, 158, 133, 153, 144, 145, 153}
	RightEye = []int{362, 385, 387, 263, 373, 380, 374, 373}
)

// Landmark is a point normalized to [0,1] of the source image width and height.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LandmarkSet is one detected subject's landmarks in model order.
type LandmarkSet []Landmark

// Select returns the landmarks at the given indices, in order. It reports
// false if any index is out of range for this set.
func (s LandmarkSet) Select(indices []int) (LandmarkSet, bool) {
	out := make(LandmarkSet, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(s) {
			return nil, false
		}
		out[i] = s[idx]
	}
	return out, true
}

// FaceResult is one complete face detection pass. It is never mutated after
// it has been published.
type FaceResult struct {
	Faces     []LandmarkSet `json:"faces"`
	Timestamp int64         `json:"timestamp"`
}

// HandResult is one complete hand detection pass. A hand's position in Hands
// is its hand index.
type HandResult struct {
	Hands     []LandmarkSet `json:"hands"`
	Timestamp int64         `json:"timestamp"`
}
