// Package types defines the wire contract between the game server and its
// clients: the message envelope, the payloads it carries, and the session
// snapshot clients render from.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Server
const (
	MsgPoseData   = "pose_data"
	MsgGameAction = "game_action"
	MsgPing       = "ping"
)

// Server -> Client
const (
	MsgWelcome       = "welcome"
	MsgGameUpdate    = "game_update"
	MsgPoseDetection = "pose_detection"
	MsgPong          = "pong"
	MsgError         = "error"
)

var (
	ErrEmptyMessage = errors.New("types: empty message")
	ErrMissingType  = errors.New("types: envelope has no type")
	ErrEmptyPayload = errors.New("types: envelope has no payload")
)

// Envelope wraps every message in both directions. Data stays raw until the
// receiver knows, from Type, what to decode it into.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals a payload into a framed envelope. A nil payload produces
// an envelope with no data field, which is valid for bare signals.
func Encode(kind string, payload any) ([]byte, error) {
	if kind == "" {
		return nil, ErrMissingType
	}
	e := Envelope{Type: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		e.Data = data
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses the outer frame only.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyMessage
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return e, nil
}

// DecodePayload unmarshals an envelope's data into the payload type the
// caller picked from the envelope's Type.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%w for %q", ErrEmptyPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return out, nil
}
