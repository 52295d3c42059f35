package engine

import "time"

type MoveType string

const (
	MoveJab      MoveType = "jab"
	MoveCross    MoveType = "cross"
	MoveHook     MoveType = "hook"
	MoveUppercut MoveType = "uppercut"
	MoveBlock    MoveType = "block"
	MoveGuard    MoveType = "guard"
	MoveDodge    MoveType = "dodge"
)

// MoveCandidate is a classifier proposal. Produced once, arbitrated once,
// then discarded.
type MoveCandidate struct {
	Type       MoveType
	Confidence float64
	At         time.Time
}

func ParseMoveType(s string) (MoveType, bool) {
	switch MoveType(s) {
	case MoveJab, MoveCross, MoveHook, MoveUppercut, MoveBlock, MoveGuard, MoveDodge:
		return MoveType(s), true
	default:
		return "", false
	}
}

func (m MoveType) Offensive() bool {
	switch m {
	case MoveJab, MoveCross, MoveHook, MoveUppercut:
		return true
	default:
		return false
	}
}

// Damage is the nominal damage before confidence and defense scaling.
func (m MoveType) Damage() int {
	switch m {
	case MoveJab:
		return 10
	case MoveCross:
		return 15
	case MoveHook:
		return 20
	case MoveUppercut:
		return 25
	default:
		return 0
	}
}

// BlockEffectiveness is the share of incoming damage a blocking opponent
// absorbs. Heavier strikes are easier to read and block.
func (m MoveType) BlockEffectiveness() float64 {
	switch m {
	case MoveJab:
		return 0.3
	case MoveCross:
		return 0.5
	case MoveHook:
		return 0.7
	case MoveUppercut:
		return 0.8
	default:
		return 0
	}
}

// Threshold is the minimum classifier confidence for a candidate to be
// emitted at all.
func (m MoveType) Threshold() float64 {
	switch m {
	case MoveJab, MoveCross:
		return 0.7
	case MoveHook, MoveUppercut:
		return 0.6
	case MoveBlock, MoveGuard, MoveDodge:
		return 0.5
	default:
		return 1
	}
}

// Priority breaks confidence ties between simultaneous candidates:
// offensive moves rank above defensive ones, heavier strikes first.
// Zero means the type is unknown and must be discarded.
func (m MoveType) Priority() int {
	switch m {
	case MoveUppercut:
		return 7
	case MoveHook:
		return 6
	case MoveCross:
		return 5
	case MoveJab:
		return 4
	case MoveBlock:
		return 3
	case MoveDodge:
		return 2
	case MoveGuard:
		return 1
	default:
		return 0
	}
}
