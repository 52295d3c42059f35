// Package ws bridges websocket connections to the session controller and
// the broker: it classifies inbound pose frames, forwards control actions,
// and pumps broker outboxes back to the socket.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchcam/backend/internal/broker"
	"github.com/punchcam/backend/internal/classify"
	"github.com/punchcam/backend/internal/engine"
	"github.com/punchcam/backend/internal/session"
	"github.com/punchcam/backend/pkg/metrics"
	"github.com/punchcam/backend/pkg/types"
)

type Config struct {
	// HistorySize is the per-connection frame window the motion rules see.
	HistorySize int
	OutboxSize  int
	// ReadTimeout doubles as the connection's liveness deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	defaultHistorySize  = 10
	defaultOutboxSize   = 32
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

type Gateway struct {
	ctrl       *session.Controller
	broker     *broker.Broker
	classifier *classify.Classifier
	cfg        Config
	log        *zap.Logger
}

func NewGateway(ctrl *session.Controller, br *broker.Broker, cl *classify.Classifier, cfg Config, log *zap.Logger) *Gateway {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Gateway{ctrl: ctrl, broker: br, classifier: cl, cfg: cfg, log: log}
}

func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("player")
		name := r.URL.Query().Get("name")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		var snap types.GameSnapshot
		if playerID != "" {
			regReply := make(chan session.RegisterResult, 1)
			g.ctrl.Inbox() <- session.Register{PlayerID: playerID, Name: name, Reply: regReply}
			reg := <-regReply
			if reg.Err != nil {
				g.log.Info("player rejected",
					zap.String("player", playerID),
					zap.Error(reg.Err))
				payload, encErr := types.Encode(types.MsgError, types.ErrorPayload{
					Code:    types.CodeRegisterFailed,
					Message: reg.Err.Error(),
				})
				if encErr == nil {
					writeCtx, cancel := context.WithTimeout(r.Context(), g.cfg.WriteTimeout)
					_ = conn.Write(writeCtx, websocket.MessageText, payload)
					cancel()
				}
				conn.Close(websocket.StatusPolicyViolation, "register failed")
				return
			}
			snap = reg.Snapshot
		} else {
			// Spectator: no roster slot, just the current picture.
			snapReply := make(chan types.GameSnapshot, 1)
			g.ctrl.Inbox() <- session.GetSnapshot{Reply: snapReply}
			snap = <-snapReply
		}

		connID := uuid.NewString()
		welcome, err := types.Encode(types.MsgWelcome, types.Welcome{
			ConnectionID: connID,
			PlayerID:     playerID,
			Snapshot:     snap,
		})
		if err != nil {
			g.log.Error("encode welcome", zap.Error(err))
			conn.Close(websocket.StatusInternalError, "welcome failed")
			return
		}

		outbox := make(chan []byte, g.cfg.OutboxSize)
		g.broker.Inbox() <- broker.Register{
			ConnID:     connID,
			PlayerID:   playerID,
			PlayerName: name,
			Outbox:     outbox,
			Hello:      welcome,
		}
		defer func() { g.broker.Inbox() <- broker.Unregister{ConnID: connID} }()

		// Writer: the broker is the only party closing the outbox, so the
		// range ends exactly when the connection is dropped server-side.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for payload := range outbox {
				ctx, cancel := context.WithTimeout(writeCtx, g.cfg.WriteTimeout)
				err := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
		}()

		g.readLoop(r.Context(), conn, connID, playerID)
	}
}

func (g *Gateway) readLoop(parent context.Context, conn *websocket.Conn, connID, playerID string) {
	history := classify.NewHistory(g.cfg.HistorySize)

	for {
		ctx, cancel := context.WithTimeout(parent, g.cfg.ReadTimeout)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			g.log.Debug("read loop done",
				zap.String("conn", connID),
				zap.Error(err))
			return
		}

		g.broker.Inbox() <- broker.Touch{ConnID: connID}

		env, err := types.DecodeEnvelope(data)
		if err != nil {
			g.sendError(connID, types.CodeInvalidInput, "malformed envelope")
			continue
		}

		switch env.Type {
		case types.MsgPoseData:
			g.handlePose(connID, playerID, env, history)

		case types.MsgGameAction:
			g.handleAction(connID, playerID, env)

		case types.MsgPing:
			ping, _ := types.DecodePayload[types.Ping](env)
			payload, err := types.Encode(types.MsgPong, types.Pong{Timestamp: ping.Timestamp})
			if err != nil {
				g.log.Error("encode pong", zap.Error(err))
				continue
			}
			g.broker.Inbox() <- broker.Send{ConnID: connID, Payload: payload}

		default:
			g.sendError(connID, types.CodeUnknownType, "unknown message type")
		}
	}
}

// handlePose turns one pose_data message into candidates for the arbiter.
// Keypoints always win: when a frame is present the server classifies it and
// ignores whatever the client claims to have detected. Pre-classified moves
// are honored only on frameless messages, after validation.
func (g *Gateway) handlePose(connID, playerID string, env types.Envelope, history *classify.History) {
	pd, err := types.DecodePayload[types.PoseData](env)
	if err != nil {
		metrics.RecordFrameRejected()
		g.sendError(connID, types.CodeInvalidInput, "malformed pose_data")
		return
	}
	now := time.Now()

	actor := pd.PlayerID
	if actor == "" {
		actor = playerID
	}
	if actor == "" {
		g.sendError(connID, types.CodeInvalidInput, "pose_data from a spectator needs a player_id")
		return
	}

	var candidates []engine.MoveCandidate
	if len(pd.Keypoints) > 0 {
		frame, err := pd.Frame(now)
		if err != nil {
			metrics.RecordFrameRejected()
			g.sendError(connID, types.CodeInvalidInput, err.Error())
			return
		}
		start := time.Now()
		candidates = g.classifier.Classify(history, frame)
		metrics.RecordClassifyLatency(float64(time.Since(start).Microseconds()) / 1000)
		metrics.RecordFrameProcessed()
		for _, c := range candidates {
			metrics.RecordMoveCandidate(string(c.Type))
		}
	} else if len(pd.Moves) == 0 {
		g.sendError(connID, types.CodeInvalidInput, "pose_data carries neither keypoints nor moves")
		return
	} else {
		candidates, err = pd.Candidates(now)
		if err != nil {
			metrics.RecordFrameRejected()
			g.sendError(connID, types.CodeInvalidInput, err.Error())
			return
		}
	}
	if len(candidates) == 0 {
		return
	}

	g.ctrl.Inbox() <- session.SubmitMoves{
		PlayerID:   actor,
		Keypoints:  pd.Keypoints,
		Candidates: candidates,
		At:         now,
	}
}

func (g *Gateway) handleAction(connID, playerID string, env types.Envelope) {
	action, err := types.DecodePayload[types.GameAction](env)
	if err != nil {
		g.sendError(connID, types.CodeInvalidInput, "malformed game_action")
		return
	}
	target := action.PlayerID
	if target == "" {
		target = playerID
	}

	reply := make(chan error, 1)
	g.ctrl.Inbox() <- session.Control{Action: action.ActionType, PlayerID: target, Reply: reply}
	if err := <-reply; err != nil {
		g.sendError(connID, types.CodeInvalidInput, err.Error())
	}
}

func (g *Gateway) sendError(connID, code, message string) {
	payload, err := types.Encode(types.MsgError, types.ErrorPayload{Code: code, Message: message})
	if err != nil {
		g.log.Error("encode error payload", zap.Error(err))
		return
	}
	g.broker.Inbox() <- broker.Send{ConnID: connID, Payload: payload}
}
