package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/punchcam/backend/internal/engine"
	"github.com/punchcam/backend/internal/pose"
)

// Control verbs carried by game_action messages.
const (
	ActionStartGame  = "start_game"
	ActionPauseGame  = "pause_game"
	ActionResumeGame = "resume_game"
	ActionResetGame  = "reset_game"
	ActionLeaveGame  = "leave_game"
)

// Error codes carried by error messages.
const (
	CodeInvalidInput   = "invalid_input"
	CodeUnknownType    = "unknown_type"
	CodeRegisterFailed = "register_failed"
	CodeInternal       = "internal"
)

// PoseData is an inbound frame: raw keypoints, optionally with candidates
// the client already classified on its side.
type PoseData struct {
	Keypoints []pose.Keypoint `json:"keypoints"`
	Moves     []MoveCandidate `json:"moves,omitempty"`
	Timestamp float64         `json:"timestamp"`
	PlayerID  string          `json:"player_id,omitempty"`
}

// Frame converts the payload into a validated pose frame. The embedded
// timestamp wins; a zero timestamp falls back to the given time.
func (p PoseData) Frame(fallback time.Time) (pose.Frame, error) {
	at := FromUnixSeconds(p.Timestamp)
	if p.Timestamp == 0 {
		at = fallback
	}
	return pose.NewFrame(p.Keypoints, at)
}

// Candidates converts any pre-classified moves into engine candidates.
// Unknown move names are dropped so newer clients can speak a wider
// vocabulary; a confidence outside [0,1] rejects the whole set as
// malformed input.
func (p PoseData) Candidates(fallback time.Time) ([]engine.MoveCandidate, error) {
	if len(p.Moves) == 0 {
		return nil, nil
	}
	out := make([]engine.MoveCandidate, 0, len(p.Moves))
	for _, m := range p.Moves {
		if m.Confidence < 0 || m.Confidence > 1 {
			return nil, fmt.Errorf("move %q confidence %v out of range", m.Type, m.Confidence)
		}
		mt, ok := engine.ParseMoveType(m.Type)
		if !ok {
			continue
		}
		at := FromUnixSeconds(m.Timestamp)
		if m.Timestamp == 0 {
			at = fallback
		}
		out = append(out, engine.MoveCandidate{Type: mt, Confidence: m.Confidence, At: at})
	}
	return out, nil
}

// PoseDetection is the broadcast mirror of an accepted frame: what the
// classifier saw and what it proposed.
type PoseDetection struct {
	PlayerID  string          `json:"player_id"`
	Keypoints []pose.Keypoint `json:"keypoints,omitempty"`
	Moves     []MoveCandidate `json:"moves"`
	Timestamp float64         `json:"timestamp"`
}

// GameAction is an inbound control request.
type GameAction struct {
	ActionType string          `json:"action_type"`
	PlayerID   string          `json:"player_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Welcome is the first message on a new connection.
type Welcome struct {
	ConnectionID string       `json:"connection_id"`
	PlayerID     string       `json:"player_id"`
	Snapshot     GameSnapshot `json:"snapshot"`
}

// Ping and Pong echo the sender's timestamp for round-trip measurement.
type Ping struct {
	Timestamp float64 `json:"timestamp"`
}

type Pong struct {
	Timestamp float64 `json:"timestamp"`
}

// ErrorPayload reports a rejected message back to its sender.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
