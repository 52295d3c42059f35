package pose

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrEmptyFrame = errors.New("frame has no keypoints")
var ErrBadLandmark = errors.New("landmark index out of range")
var ErrBadConfidence = errors.New("keypoint confidence out of range")

// Landmark indices follow the 33-point full-body pose convention.
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	LeftAnkle     = 27
	RightAnkle    = 28

	LandmarkCount = 33
)

// Keypoint is one landmark position in normalized image coordinates:
// x grows rightward, y grows downward, z is relative depth.
type Keypoint struct {
	Index      int     `json:"index"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Confidence float64 `json:"confidence"`
}

// Frame is one capture of landmarks keyed by index.
type Frame struct {
	Keypoints map[int]Keypoint
	At        time.Time
}

// NewFrame validates raw keypoints and builds a frame. A keypoint with an
// index outside [0, LandmarkCount) or a confidence outside [0,1] rejects the
// whole frame.
func NewFrame(kps []Keypoint, at time.Time) (Frame, error) {
	if len(kps) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	m := make(map[int]Keypoint, len(kps))
	for _, kp := range kps {
		if kp.Index < 0 || kp.Index >= LandmarkCount {
			return Frame{}, fmt.Errorf("%w: %d", ErrBadLandmark, kp.Index)
		}
		if kp.Confidence < 0 || kp.Confidence > 1 {
			return Frame{}, fmt.Errorf("%w: %v at landmark %d", ErrBadConfidence, kp.Confidence, kp.Index)
		}
		m[kp.Index] = kp
	}
	return Frame{Keypoints: m, At: at}, nil
}

// Landmark returns the keypoint at index when present with at least min
// confidence. Dim or missing landmarks report ok=false so rules can skip
// themselves instead of failing.
func (f Frame) Landmark(index int, min float64) (Keypoint, bool) {
	kp, ok := f.Keypoints[index]
	if !ok || kp.Confidence < min {
		return Keypoint{}, false
	}
	return kp, true
}

// Dist is the planar distance between two keypoints. Depth is ignored:
// classification rules work on the image plane.
func Dist(a, b Keypoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// MidX is the horizontal midpoint of two keypoints.
func MidX(a, b Keypoint) float64 {
	return (a.X + b.X) / 2
}
