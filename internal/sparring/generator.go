// Package sparring drives synthetic pose streams against a running server,
// standing in for a camera client during development and load checks.
package sparring

import (
	"fmt"

	"github.com/punchcam/backend/internal/pose"
)

// Pattern names accepted by NewGenerator.
const (
	PatternIdle     = "idle"
	PatternJab      = "jab"
	PatternCross    = "cross"
	PatternHook     = "hook"
	PatternUppercut = "uppercut"
	PatternBlock    = "block"
	PatternGuard    = "guard"
	PatternDodge    = "dodge"
	PatternMixed    = "mixed"
)

// mixedOrder is the segment rotation for the mixed pattern.
var mixedOrder = []string{
	PatternJab, PatternBlock, PatternCross, PatternGuard,
	PatternHook, PatternUppercut, PatternDodge, PatternIdle,
}

// mixedSegment is frames per move before rotating. It stays comfortably
// above the server's default history window so motion moves can complete
// against their own postures rather than the previous segment's.
const mixedSegment = 16

// Patterns lists the accepted pattern names.
func Patterns() []string {
	return []string{
		PatternIdle, PatternJab, PatternCross, PatternHook,
		PatternUppercut, PatternBlock, PatternGuard, PatternDodge,
		PatternMixed,
	}
}

// Generator produces one keypoint set per step following a named pattern.
// Motion moves alternate postures so the server's history window sees the
// travel; strikes recover between repetitions so they clear the cooldown.
type Generator struct {
	pattern string
	step    int
}

func NewGenerator(pattern string) (*Generator, error) {
	for _, p := range Patterns() {
		if p == pattern {
			return &Generator{pattern: pattern}, nil
		}
	}
	return nil, fmt.Errorf("unknown pattern %q (have %v)", pattern, Patterns())
}

// Next advances one step and returns the frame's keypoints.
func (g *Generator) Next() []pose.Keypoint {
	step := g.step
	g.step++
	return frameFor(g.pattern, step)
}

func frameFor(pattern string, step int) []pose.Keypoint {
	switch pattern {
	case PatternJab:
		// Strike every fourth frame, recover between. The slight downward
		// angle keeps the extension from reading as horizontal swing travel.
		if step%4 == 0 {
			return override(stance(),
				kp(pose.LeftElbow, 0.25, 0.42),
				kp(pose.LeftWrist, 0.10, 0.48),
			)
		}
		return stance()

	case PatternCross:
		if step%4 == 0 {
			return override(stance(),
				kp(pose.RightElbow, 0.75, 0.42),
				kp(pose.RightWrist, 0.90, 0.48),
			)
		}
		return stance()

	case PatternBlock:
		return override(stance(),
			kp(pose.LeftWrist, 0.45, 0.25),
			kp(pose.RightWrist, 0.55, 0.25),
		)

	case PatternGuard:
		return override(stance(),
			kp(pose.LeftWrist, 0.46, 0.50),
			kp(pose.RightWrist, 0.54, 0.50),
		)

	case PatternHook:
		if step%2 == 0 {
			return override(stance(),
				kp(pose.LeftElbow, 0.33, 0.46),
				kp(pose.LeftWrist, 0.22, 0.38),
			)
		}
		return override(stance(),
			kp(pose.LeftElbow, 0.52, 0.40),
			kp(pose.LeftWrist, 0.45, 0.33),
		)

	case PatternUppercut:
		if step%2 == 0 {
			return override(stance(),
				kp(pose.LeftElbow, 0.40, 0.50),
				kp(pose.LeftWrist, 0.44, 0.55),
			)
		}
		return override(stance(),
			kp(pose.LeftElbow, 0.40, 0.40),
			kp(pose.LeftWrist, 0.44, 0.28),
		)

	case PatternDodge:
		if step%2 == 0 {
			return shift(stance(), -0.10)
		}
		return shift(stance(), 0.10)

	case PatternMixed:
		active := mixedOrder[(step/mixedSegment)%len(mixedOrder)]
		return frameFor(active, step)

	default: // idle
		return stance()
	}
}

// stance is a relaxed upright posture: arms hanging, wrists just outside
// the hips. Nothing in it trips a rule on its own.
func stance() []pose.Keypoint {
	return []pose.Keypoint{
		kp(pose.Nose, 0.50, 0.20),
		kp(pose.LeftShoulder, 0.42, 0.35),
		kp(pose.RightShoulder, 0.58, 0.35),
		kp(pose.LeftElbow, 0.38, 0.50),
		kp(pose.RightElbow, 0.62, 0.50),
		kp(pose.LeftWrist, 0.46, 0.62),
		kp(pose.RightWrist, 0.54, 0.62),
		kp(pose.LeftHip, 0.44, 0.65),
		kp(pose.RightHip, 0.56, 0.65),
	}
}

func kp(index int, x, y float64) pose.Keypoint {
	return pose.Keypoint{Index: index, X: x, Y: y, Confidence: 0.95}
}

func override(body []pose.Keypoint, kps ...pose.Keypoint) []pose.Keypoint {
	for _, o := range kps {
		for i := range body {
			if body[i].Index == o.Index {
				body[i] = o
				break
			}
		}
	}
	return body
}

func shift(body []pose.Keypoint, dx float64) []pose.Keypoint {
	for i := range body {
		body[i].X += dx
	}
	return body
}
