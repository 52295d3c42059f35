package engine

import "time"

// Arbitrate decides which of a frame's candidates, if any, becomes the
// player's accepted move. A player inside their cooldown window accepts
// nothing, whatever the candidates look like; otherwise the
// highest-confidence candidate wins, with ties broken by move priority.
// Unknown types and below-threshold confidences are discarded.
func Arbitrate(p Player, candidates []MoveCandidate, at time.Time, cooldown time.Duration) (MoveCandidate, bool) {
	if !p.LastMoveAt.IsZero() && at.Sub(p.LastMoveAt) < cooldown {
		return MoveCandidate{}, false
	}

	var best MoveCandidate
	found := false
	for _, c := range candidates {
		if c.Type.Priority() == 0 {
			continue
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		if c.Confidence < c.Type.Threshold() {
			continue
		}
		if !found || beats(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

func beats(a, b MoveCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Type.Priority() > b.Type.Priority()
}
