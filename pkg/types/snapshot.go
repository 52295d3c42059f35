package types

import (
	"time"

	"github.com/punchcam/backend/internal/engine"
)

// GameSnapshot is the full session state as clients see it. Every broadcast
// carries one; Version increases with each committed change so clients can
// discard stale frames arriving out of order.
type GameSnapshot struct {
	Version            int                       `json:"version"`
	State              string                    `json:"state"`
	CurrentRound       int                       `json:"current_round"`
	MaxRounds          int                       `json:"max_rounds"`
	RoundTimeRemaining int                       `json:"round_time_remaining"`
	WinnerID           string                    `json:"winner_id,omitempty"`
	Players            map[string]PlayerSnapshot `json:"players"`
	GameStartTime      float64                   `json:"game_start_time,omitempty"`
	LastUpdateTime     float64                   `json:"last_update_time,omitempty"`
}

type PlayerSnapshot struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Health       int     `json:"health"`
	Score        int     `json:"score"`
	LastMove     string  `json:"last_move,omitempty"`
	LastMoveTime float64 `json:"last_move_time,omitempty"`
	IsBlocking   bool    `json:"is_blocking"`
	IsDodging    bool    `json:"is_dodging"`
}

// MoveCandidate is the wire form of a classified move.
type MoveCandidate struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
}

// NewGameSnapshot freezes an engine state for the wire.
func NewGameSnapshot(version int, s engine.State) GameSnapshot {
	snap := GameSnapshot{
		Version:            version,
		State:              string(s.Phase),
		CurrentRound:       s.Round,
		MaxRounds:          s.Rules.MaxRounds,
		RoundTimeRemaining: s.TimeLeft,
		WinnerID:           s.WinnerID,
		Players:            make(map[string]PlayerSnapshot, len(s.Players)),
		GameStartTime:      UnixSeconds(s.StartedAt),
		LastUpdateTime:     UnixSeconds(s.UpdatedAt),
	}
	for id, p := range s.Players {
		snap.Players[id] = PlayerSnapshot{
			ID:           p.ID,
			Name:         p.Name,
			Health:       p.Health,
			Score:        p.Score,
			LastMove:     string(p.LastMove),
			LastMoveTime: UnixSeconds(p.LastMoveAt),
			IsBlocking:   p.Blocking,
			IsDodging:    p.Dodging,
		}
	}
	return snap
}

// NewMoveCandidates converts engine candidates for the wire.
func NewMoveCandidates(cands []engine.MoveCandidate) []MoveCandidate {
	out := make([]MoveCandidate, len(cands))
	for i, c := range cands {
		out[i] = MoveCandidate{
			Type:       string(c.Type),
			Confidence: c.Confidence,
			Timestamp:  UnixSeconds(c.At),
		}
	}
	return out
}

// UnixSeconds encodes a time as fractional seconds since the epoch, the
// timestamp form every wire message uses. Zero times encode as 0.
func UnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnixSeconds is the inverse of UnixSeconds; 0 decodes to the zero time.
func FromUnixSeconds(f float64) time.Time {
	if f == 0 {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
