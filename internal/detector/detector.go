package detector

import (
	"context"
	"errors"

	"github.com/ayusman/kaleido/internal/capture"
)

// ErrDetectorUnavailable is returned when the detection backend cannot be loaded.
var ErrDetectorUnavailable = errors.New("detector unavailable")

// Kind selects which landmark model a detector runs.
type Kind string

const (
	KindFace  Kind = "face"
	KindHands Kind = "hands"
)

// Detector defines the interface for landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns one landmark set per
	// detected subject. Returns an empty slice if nothing is detected.
	Detect(ctx context.Context, frame *capture.Frame) ([]LandmarkSet, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for a detector.
type Config struct {
	Kind Kind `yaml:"-"`

	// MaxSubjects is the maximum number of faces or hands to detect.
	MaxSubjects int `yaml:"max_subjects" validate:"min=1,max=4"`

	// RefineLandmarks enables iris refinement (face only).
	RefineLandmarks bool `yaml:"refine_landmarks"`

	// ModelComplexity selects the hand model variant (hands only).
	ModelComplexity int `yaml:"model_complexity" validate:"min=0,max=1"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `yaml:"min_detection_confidence" validate:"gte=0,lte=1"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `yaml:"min_tracking_confidence" validate:"gte=0,lte=1"`
}

// DefaultFaceConfig returns the face mesh settings: one face, refined
// landmarks, 0.5 detection and tracking confidence.
func DefaultFaceConfig() Config {
	return Config{
		Kind:            KindFace,
		MaxSubjects:     1,
		RefineLandmarks: true,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

// DefaultHandConfig returns the hand settings: two hands, model complexity 1,
// 0.5 detection and tracking confidence.
func DefaultHandConfig() Config {
	return Config{
		Kind:            KindHands,
		MaxSubjects:     2,
		ModelComplexity: 1,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
