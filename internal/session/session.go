// Package session runs the single authoritative match. One goroutine owns
// the engine state, applies commands in arrival order, drives the round
// clock, and publishes every committed change to the sync layer.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/punchcam/backend/internal/engine"
	"github.com/punchcam/backend/internal/pose"
	"github.com/punchcam/backend/pkg/metrics"
	"github.com/punchcam/backend/pkg/types"
)

type Msg interface{ isSessionMsg() }

// Register adds or reattaches a player. The reply carries the snapshot the
// caller should greet the client with.
type Register struct {
	PlayerID string
	Name     string
	Reply    chan RegisterResult
}

func (Register) isSessionMsg() {}

type RegisterResult struct {
	Snapshot types.GameSnapshot
	Err      error
}

type Unregister struct{ PlayerID string }

func (Unregister) isSessionMsg() {}

// SubmitMoves offers one frame's candidates to the arbiter. Reply is
// optional; leave it nil to fire and forget.
type SubmitMoves struct {
	PlayerID   string
	Keypoints  []pose.Keypoint
	Candidates []engine.MoveCandidate
	At         time.Time
	Reply      chan SubmitResult
}

func (SubmitMoves) isSessionMsg() {}

type SubmitResult struct {
	Accepted bool
	Move     engine.MoveType
	Snapshot types.GameSnapshot
}

// Control carries a game_action verb. Reply is optional.
type Control struct {
	Action   string
	PlayerID string
	Reply    chan error
}

func (Control) isSessionMsg() {}

type GetSnapshot struct{ Reply chan types.GameSnapshot }

func (GetSnapshot) isSessionMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

// View mirrors internal state for tests without data races.
type View struct {
	Version int
	State   engine.State
}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// Sink receives encoded broadcast batches in commit order.
type Sink interface {
	Publish(batch [][]byte)
}

type Config struct {
	// TickInterval is the wall-clock length of one game second. Defaults to
	// a real second; tests shrink it to compress rounds.
	TickInterval time.Duration
}

type Controller struct {
	inbox   chan Msg
	state   engine.State
	version int
	sink    Sink
	log     *zap.Logger
	tick    time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewController(parent context.Context, cfg Config, initial engine.State, sink Sink, log *zap.Logger) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		inbox:  make(chan Msg, 64),
		state:  initial,
		sink:   sink,
		log:    log,
		tick:   cfg.TickInterval,
		ctx:    ctx,
		cancel: cancel,
	}
	go c.loop()
	return c
}

func (c *Controller) Inbox() chan<- Msg { return c.inbox }

func (c *Controller) loop() {
	clock := time.NewTicker(c.tick)
	defer clock.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-clock.C:
			c.onTick(time.Now())

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Register:
				c.onRegister(msg)
			case Unregister:
				c.onUnregister(msg)
			case SubmitMoves:
				c.onSubmit(msg)
			case Control:
				c.onControl(msg)
			case GetSnapshot:
				msg.Reply <- types.NewGameSnapshot(c.version, c.state)
			case GetView:
				msg.Reply <- View{Version: c.version, State: c.state}
			case Shutdown:
				c.cancel()
				return
			}
		}
	}
}

func (c *Controller) commit(ns engine.State) {
	c.state = ns
	c.version++
}

// onTick advances the round clock by one game second. Outside of Playing
// the clock idles, which is what keeps a paused timer drift-free.
func (c *Controller) onTick(now time.Time) {
	if c.state.Phase != engine.PhasePlaying {
		return
	}
	events, ns, err := engine.Apply(c.state, engine.Command{Type: engine.CmdTick, At: now})
	if err != nil {
		c.log.Warn("tick rejected", zap.Error(err))
		return
	}
	c.commit(ns)
	c.noteEvents(events)
	c.broadcastUpdate()
}

func (c *Controller) onRegister(msg Register) {
	events, ns, err := engine.Apply(c.state, engine.Command{
		Type:     engine.CmdRegister,
		PlayerID: msg.PlayerID,
		Name:     msg.Name,
		At:       time.Now(),
	})
	if err != nil {
		c.log.Warn("register rejected",
			zap.String("player", msg.PlayerID),
			zap.Error(err))
		if msg.Reply != nil {
			msg.Reply <- RegisterResult{Err: err}
		}
		return
	}
	c.commit(ns)
	c.noteEvents(events)
	c.broadcastUpdate()
	if msg.Reply != nil {
		msg.Reply <- RegisterResult{Snapshot: types.NewGameSnapshot(c.version, c.state)}
	}
}

func (c *Controller) onUnregister(msg Unregister) {
	events, ns, err := engine.Apply(c.state, engine.Command{
		Type:     engine.CmdUnregister,
		PlayerID: msg.PlayerID,
		At:       time.Now(),
	})
	if err != nil {
		c.log.Debug("unregister rejected",
			zap.String("player", msg.PlayerID),
			zap.Error(err))
		return
	}
	c.commit(ns)
	c.noteEvents(events)
	c.broadcastUpdate()
}

func (c *Controller) onSubmit(msg SubmitMoves) {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	result := SubmitResult{}

	events, ns, err := engine.Apply(c.state, engine.Command{
		Type:       engine.CmdMoves,
		PlayerID:   msg.PlayerID,
		Candidates: msg.Candidates,
		At:         at,
	})
	switch {
	case err != nil:
		c.log.Debug("moves rejected",
			zap.String("player", msg.PlayerID),
			zap.Error(err))
	case len(events) == 0:
		// Legal but silent: cooldown or nothing over threshold.
		metrics.RecordMoveRejected()
	default:
		c.commit(ns)
		c.noteEvents(events)
		landed := events[0]
		result.Accepted = true
		result.Move = landed.Move
		c.broadcastMove(msg, at)
	}

	if msg.Reply != nil {
		result.Snapshot = types.NewGameSnapshot(c.version, c.state)
		msg.Reply <- result
	}
}

func (c *Controller) onControl(msg Control) {
	var cmdType engine.CommandType
	switch msg.Action {
	case types.ActionStartGame:
		cmdType = engine.CmdStart
	case types.ActionPauseGame:
		cmdType = engine.CmdPause
	case types.ActionResumeGame:
		cmdType = engine.CmdResume
	case types.ActionResetGame:
		cmdType = engine.CmdReset
	case types.ActionLeaveGame:
		cmdType = engine.CmdUnregister
	default:
		err := fmt.Errorf("unknown action %q", msg.Action)
		if msg.Reply != nil {
			msg.Reply <- err
		}
		return
	}

	events, ns, err := engine.Apply(c.state, engine.Command{
		Type:     cmdType,
		PlayerID: msg.PlayerID,
		At:       time.Now(),
	})
	if err != nil {
		c.log.Info("control rejected",
			zap.String("action", msg.Action),
			zap.String("player", msg.PlayerID),
			zap.Error(err))
	} else {
		c.commit(ns)
		c.noteEvents(events)
		c.broadcastUpdate()
	}
	if msg.Reply != nil {
		msg.Reply <- err
	}
}

// noteEvents logs and counts committed events. Runs after commit, so the
// state it reads is the post-event one.
func (c *Controller) noteEvents(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtPlayerJoined, engine.EvtPlayerLeft, engine.EvtMatchReset:
			metrics.UpdatePlayerCount(len(c.state.Players))
			c.log.Info(string(ev.Type),
				zap.String("player", ev.PlayerID),
				zap.Int("players", len(c.state.Players)))
		case engine.EvtMoveLanded:
			metrics.RecordMoveAccepted(string(ev.Move))
			c.log.Info("move landed",
				zap.String("player", ev.PlayerID),
				zap.String("move", string(ev.Move)),
				zap.Float64("confidence", ev.Confidence),
				zap.Int("damage", ev.Damage))
		case engine.EvtRoundEnded:
			metrics.RecordRoundCompleted()
			c.log.Info("round ended",
				zap.Int("round", ev.Round),
				zap.String("leader", ev.PlayerID))
		case engine.EvtKnockout:
			metrics.RecordKnockout()
			c.log.Info("knockout",
				zap.String("down", ev.PlayerID),
				zap.String("by", ev.TargetID))
		case engine.EvtMatchFinished:
			c.log.Info("match finished",
				zap.String("winner", ev.PlayerID),
				zap.Int("round", ev.Round))
		case engine.EvtMatchStarted:
			c.log.Info("match started", zap.Int("round", ev.Round))
		case engine.EvtMatchPaused, engine.EvtMatchResumed:
			c.log.Info(string(ev.Type))
		}
	}
}

// broadcastMove publishes the classification result and the state it
// produced as one batch, pose_detection first, so every client applies
// them in commit order.
func (c *Controller) broadcastMove(msg SubmitMoves, at time.Time) {
	detection := types.PoseDetection{
		PlayerID:  msg.PlayerID,
		Keypoints: msg.Keypoints,
		Moves:     types.NewMoveCandidates(msg.Candidates),
		Timestamp: types.UnixSeconds(at),
	}
	first, err := types.Encode(types.MsgPoseDetection, detection)
	if err != nil {
		c.log.Error("encode pose_detection", zap.Error(err))
		c.broadcastUpdate()
		return
	}
	second, err := types.Encode(types.MsgGameUpdate, types.NewGameSnapshot(c.version, c.state))
	if err != nil {
		c.log.Error("encode game_update", zap.Error(err))
		return
	}
	metrics.RecordBroadcast(types.MsgPoseDetection)
	metrics.RecordBroadcast(types.MsgGameUpdate)
	c.sink.Publish([][]byte{first, second})
}

func (c *Controller) broadcastUpdate() {
	payload, err := types.Encode(types.MsgGameUpdate, types.NewGameSnapshot(c.version, c.state))
	if err != nil {
		c.log.Error("encode game_update", zap.Error(err))
		return
	}
	metrics.RecordBroadcast(types.MsgGameUpdate)
	c.sink.Publish([][]byte{payload})
}
