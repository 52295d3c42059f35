package sparring

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/pterm/pterm"
	"go.uber.org/multierr"

	"github.com/punchcam/backend/pkg/types"
)

// Config shapes one sparring session.
type Config struct {
	URL      string // base URL, e.g. ws://localhost:8000
	PlayerID string
	Name     string
	Pattern  string
	Rate     float64 // frames per second
	Duration time.Duration
	Start    bool // send start_game after joining
	Verbose  bool
}

// Stats counts what the session sent and saw.
type Stats struct {
	FramesSent int
	Detections int
	Updates    int
	Pongs      int
	Errors     int
	Final      *types.GameSnapshot
}

const (
	defaultRate     = 10.0
	defaultDuration = 10 * time.Second
	dialTimeout     = 5 * time.Second
	writeTimeout    = 2 * time.Second
	pingInterval    = 5 * time.Second
	lingerDelay     = 300 * time.Millisecond
)

// Run joins the server, streams the pattern for the configured duration,
// and reports what came back.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	var stats Stats

	gen, err := NewGenerator(cfg.Pattern)
	if err != nil {
		return stats, err
	}
	if cfg.Rate <= 0 {
		cfg.Rate = defaultRate
	}
	if cfg.Duration <= 0 {
		cfg.Duration = defaultDuration
	}

	dialURL := fmt.Sprintf("%s/ws/game?player=%s&name=%s",
		strings.TrimRight(cfg.URL, "/"),
		url.QueryEscape(cfg.PlayerID),
		url.QueryEscape(cfg.Name))

	pterm.Info.Printfln("dialing %s", dialURL)
	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, dialURL, nil)
	if err != nil {
		return stats, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	welcome, err := awaitWelcome(ctx, conn)
	if err != nil {
		return stats, err
	}
	pterm.Success.Printfln("joined as %s (connection %s)",
		pterm.LightCyan(welcome.PlayerID), welcome.ConnectionID)

	if cfg.Start {
		if err := write(ctx, conn, types.MsgGameAction, types.GameAction{
			ActionType: types.ActionStartGame,
		}); err != nil {
			return stats, fmt.Errorf("start game: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readerDone := make(chan error, 1)
	go func() { readerDone <- readLoop(runCtx, conn, &stats, cfg.Verbose) }()

	sendErr := sendLoop(runCtx, conn, gen, &stats, cfg)

	// Let the tail of the broadcast stream arrive before tearing down.
	time.Sleep(lingerDelay)
	cancel()
	readErr := quietClose(<-readerDone)

	return stats, multierr.Combine(sendErr, readErr)
}

func awaitWelcome(ctx context.Context, conn *websocket.Conn) (types.Welcome, error) {
	readCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return types.Welcome{}, fmt.Errorf("await welcome: %w", err)
	}
	env, err := types.DecodeEnvelope(data)
	if err != nil {
		return types.Welcome{}, err
	}
	if env.Type != types.MsgWelcome {
		return types.Welcome{}, fmt.Errorf("expected %s, got %s", types.MsgWelcome, env.Type)
	}
	return types.DecodePayload[types.Welcome](env)
}

func sendLoop(ctx context.Context, conn *websocket.Conn, gen *Generator, stats *Stats, cfg Config) error {
	frames := time.NewTicker(time.Duration(float64(time.Second) / cfg.Rate))
	defer frames.Stop()
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	deadline := time.NewTimer(cfg.Duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil

		case <-pings.C:
			if err := write(ctx, conn, types.MsgPing, types.Ping{
				Timestamp: types.UnixSeconds(time.Now()),
			}); err != nil {
				return fmt.Errorf("ping: %w", err)
			}

		case <-frames.C:
			err := write(ctx, conn, types.MsgPoseData, types.PoseData{
				Keypoints: gen.Next(),
				Timestamp: types.UnixSeconds(time.Now()),
			})
			if err != nil {
				return fmt.Errorf("send frame: %w", err)
			}
			stats.FramesSent++
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, stats *Stats, verbose bool) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		env, err := types.DecodeEnvelope(data)
		if err != nil {
			return err
		}

		switch env.Type {
		case types.MsgGameUpdate:
			snap, err := types.DecodePayload[types.GameSnapshot](env)
			if err != nil {
				return err
			}
			stats.Updates++
			stats.Final = &snap
			if verbose {
				pterm.Info.Printfln("v%d %s round %d, %ds left | %s",
					snap.Version, snap.State, snap.CurrentRound,
					snap.RoundTimeRemaining, scoreline(snap))
			}

		case types.MsgPoseDetection:
			det, err := types.DecodePayload[types.PoseDetection](env)
			if err != nil {
				return err
			}
			stats.Detections++
			if verbose && len(det.Moves) > 0 {
				pterm.Info.Printfln("%s threw %s (%.2f)",
					det.PlayerID, det.Moves[0].Type, det.Moves[0].Confidence)
			}

		case types.MsgPong:
			stats.Pongs++

		case types.MsgError:
			perr, err := types.DecodePayload[types.ErrorPayload](env)
			if err != nil {
				return err
			}
			stats.Errors++
			pterm.Warning.Printfln("server: %s (%s)", perr.Message, perr.Code)
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, kind string, payload any) error {
	data, err := types.Encode(kind, payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// quietClose maps the expected teardown errors to nil.
func quietClose(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return err
}

// scoreline renders every player as "name 92hp 8pts", sorted by id so the
// line is stable between updates.
func scoreline(snap types.GameSnapshot) string {
	parts := make([]string, 0, len(snap.Players))
	for _, id := range slices.Sorted(maps.Keys(snap.Players)) {
		p := snap.Players[id]
		parts = append(parts, fmt.Sprintf("%s %dhp %dpts", p.Name, p.Health, p.Score))
	}
	return strings.Join(parts, " vs ")
}
