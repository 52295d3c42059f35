package classify

import (
	"math"
	"slices"

	"github.com/punchcam/backend/internal/engine"
	"github.com/punchcam/backend/internal/pose"
)

// Geometry tunables, in normalized image units.
const (
	extensionMin    = 0.8  // straight-line / path ratio above which an arm counts as extended
	forwardMargin   = 0.05 // wrist must lead the shoulder horizontally by this much
	faceRadius      = 0.25 // block: wrist distance to the nose
	guardTolerance  = 0.10 // guard: wrist-to-elbow height difference
	hookTravelMin   = 0.12 // hook: horizontal wrist travel across the window
	hookTolerance   = 0.12 // hook: wrist stays near shoulder height
	uppercutRiseMin = 0.12 // uppercut: upward wrist travel across the window
	dodgeTravelMin  = 0.10 // dodge: lateral torso midpoint travel
)

// Classifier turns keypoint frames into move candidates with pure geometry.
// It holds no per-player state; the caller owns the History.
type Classifier struct {
	minVisibility float64
}

// New builds a classifier. minVisibility is the landmark confidence floor
// below which a rule skips itself for the frame.
func New(minVisibility float64) *Classifier {
	return &Classifier{minVisibility: minVisibility}
}

// Ready reports whether the classifier can evaluate frames.
func (c *Classifier) Ready() bool { return c != nil }

// Classify pushes the frame into the history window and evaluates every
// rule against it. Candidates come back ordered by descending confidence;
// anything under its move's emit threshold is dropped rather than scored
// low. Exclusivity between candidates is the arbiter's job, not ours.
func (c *Classifier) Classify(h *History, f pose.Frame) []engine.MoveCandidate {
	h.Push(f)

	var out []engine.MoveCandidate
	emit := func(mt engine.MoveType, conf float64) {
		if conf > 1 {
			conf = 1
		}
		if conf < mt.Threshold() {
			return
		}
		out = append(out, engine.MoveCandidate{Type: mt, Confidence: conf, At: f.At})
	}

	emit(engine.MoveJab, c.armExtension(f, pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist))
	emit(engine.MoveCross, c.armExtension(f, pose.RightShoulder, pose.RightElbow, pose.RightWrist))
	emit(engine.MoveBlock, c.blockScore(f))
	emit(engine.MoveGuard, c.guardScore(f))

	if old, ok := h.Oldest(); ok && h.Len() >= 2 {
		emit(engine.MoveHook, max(
			c.hookScore(old, f, pose.LeftShoulder, pose.LeftWrist),
			c.hookScore(old, f, pose.RightShoulder, pose.RightWrist),
		))
		emit(engine.MoveUppercut, max(
			c.uppercutScore(old, f, pose.LeftShoulder, pose.LeftWrist),
			c.uppercutScore(old, f, pose.RightShoulder, pose.RightWrist),
		))
		emit(engine.MoveDodge, max(
			c.dodgeScore(old, f, pose.LeftShoulder, pose.RightShoulder),
			c.dodgeScore(old, f, pose.LeftHip, pose.RightHip),
		))
	}

	slices.SortFunc(out, func(a, b engine.MoveCandidate) int {
		if a.Confidence != b.Confidence {
			if a.Confidence > b.Confidence {
				return -1
			}
			return 1
		}
		return b.Type.Priority() - a.Type.Priority()
	})
	return out
}

// armExtension scores a punch as straight shoulder-to-wrist distance over
// the shoulder-elbow-wrist path. A fully extended arm approaches 1.
func (c *Classifier) armExtension(f pose.Frame, shoulder, elbow, wrist int) float64 {
	s, ok := f.Landmark(shoulder, c.minVisibility)
	if !ok {
		return 0
	}
	e, ok := f.Landmark(elbow, c.minVisibility)
	if !ok {
		return 0
	}
	w, ok := f.Landmark(wrist, c.minVisibility)
	if !ok {
		return 0
	}

	path := pose.Dist(s, e) + pose.Dist(e, w)
	if path == 0 {
		return 0
	}
	ratio := pose.Dist(s, w) / path
	if ratio <= extensionMin {
		return 0
	}
	if math.Abs(w.X-s.X) < forwardMargin {
		// Extended straight down or up, not a punch.
		return 0
	}
	return ratio
}

// blockScore wants both fists in front of the face. One fist up is a weak
// block, still above the emit floor.
func (c *Classifier) blockScore(f pose.Frame) float64 {
	nose, ok := f.Landmark(pose.Nose, c.minVisibility)
	if !ok {
		return 0
	}
	lw, okL := f.Landmark(pose.LeftWrist, c.minVisibility)
	rw, okR := f.Landmark(pose.RightWrist, c.minVisibility)
	if !okL || !okR {
		return 0
	}

	left := pose.Dist(lw, nose) < faceRadius
	right := pose.Dist(rw, nose) < faceRadius
	switch {
	case left && right:
		return 0.9
	case left || right:
		return 0.6
	default:
		return 0
	}
}

// guardScore wants both wrists near elbow height and tucked inside the
// shoulder span.
func (c *Classifier) guardScore(f pose.Frame) float64 {
	ls, ok := f.Landmark(pose.LeftShoulder, c.minVisibility)
	if !ok {
		return 0
	}
	rs, ok := f.Landmark(pose.RightShoulder, c.minVisibility)
	if !ok {
		return 0
	}
	le, ok := f.Landmark(pose.LeftElbow, c.minVisibility)
	if !ok {
		return 0
	}
	re, ok := f.Landmark(pose.RightElbow, c.minVisibility)
	if !ok {
		return 0
	}
	lw, ok := f.Landmark(pose.LeftWrist, c.minVisibility)
	if !ok {
		return 0
	}
	rw, ok := f.Landmark(pose.RightWrist, c.minVisibility)
	if !ok {
		return 0
	}

	if math.Abs(lw.Y-le.Y) > guardTolerance || math.Abs(rw.Y-re.Y) > guardTolerance {
		return 0
	}
	lo := math.Min(ls.X, rs.X)
	hi := math.Max(ls.X, rs.X)
	if lw.X < lo || lw.X > hi || rw.X < lo || rw.X > hi {
		return 0
	}
	return 0.8
}

// hookScore measures horizontal wrist travel across the window while the
// wrist holds near shoulder height.
func (c *Classifier) hookScore(old, cur pose.Frame, shoulder, wrist int) float64 {
	s, ok := cur.Landmark(shoulder, c.minVisibility)
	if !ok {
		return 0
	}
	w, ok := cur.Landmark(wrist, c.minVisibility)
	if !ok {
		return 0
	}
	w0, ok := old.Landmark(wrist, c.minVisibility)
	if !ok {
		return 0
	}

	if math.Abs(w.Y-s.Y) > hookTolerance {
		return 0
	}
	travel := math.Abs(w.X - w0.X)
	if travel < hookTravelMin {
		return 0
	}
	return math.Min(1, 0.6+(travel-hookTravelMin)*2)
}

// uppercutScore measures upward wrist travel (y shrinks upward) ending
// above the shoulder.
func (c *Classifier) uppercutScore(old, cur pose.Frame, shoulder, wrist int) float64 {
	s, ok := cur.Landmark(shoulder, c.minVisibility)
	if !ok {
		return 0
	}
	w, ok := cur.Landmark(wrist, c.minVisibility)
	if !ok {
		return 0
	}
	w0, ok := old.Landmark(wrist, c.minVisibility)
	if !ok {
		return 0
	}

	if w.Y >= s.Y {
		return 0
	}
	rise := w0.Y - w.Y
	if rise < uppercutRiseMin {
		return 0
	}
	return math.Min(1, 0.6+(rise-uppercutRiseMin)*2)
}

// dodgeScore measures lateral travel of the midpoint between two torso
// landmarks (shoulders or hips).
func (c *Classifier) dodgeScore(old, cur pose.Frame, left, right int) float64 {
	l, ok := cur.Landmark(left, c.minVisibility)
	if !ok {
		return 0
	}
	r, ok := cur.Landmark(right, c.minVisibility)
	if !ok {
		return 0
	}
	l0, ok := old.Landmark(left, c.minVisibility)
	if !ok {
		return 0
	}
	r0, ok := old.Landmark(right, c.minVisibility)
	if !ok {
		return 0
	}

	travel := math.Abs(pose.MidX(l, r) - pose.MidX(l0, r0))
	if travel < dodgeTravelMin {
		return 0
	}
	return math.Min(1, 0.5+(travel-dodgeTravelMin)*2)
}
