package engine

import (
	"errors"
	"time"
)

var ErrMatchRunning = errors.New("match already running")
var ErrNotPlaying = errors.New("match not playing")
var ErrNotPaused = errors.New("match not paused")
var ErrNoPlayers = errors.New("no players registered")
var ErrRosterFull = errors.New("roster full")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhasePaused   Phase = "paused"
	PhaseFinished Phase = "finished"
)

const (
	DefaultHealth     = 100
	KnockoutBonus     = 50
	RoundWinBonus     = 25
	DefaultRosterSize = 2
)

type Player struct {
	ID         string
	Name       string
	Health     int
	Score      int
	LastMove   MoveType
	LastMoveAt time.Time
	Blocking   bool
	Dodging    bool
	// DefenseAt is when the active defensive flag was set; zero when neutral.
	DefenseAt time.Time
}

type Rules struct {
	MaxRounds    int
	RoundTimeSec int
	MoveCooldown time.Duration
	FlagDecay    time.Duration
	RosterSize   int
}

type State struct {
	Phase     Phase
	Round     int
	TimeLeft  int // seconds remaining in the current round
	Players   map[string]Player
	WinnerID  string
	StartedAt time.Time
	UpdatedAt time.Time
	Rules     Rules
}

type CommandType string

const (
	CmdStart      CommandType = "Start"
	CmdPause      CommandType = "Pause"
	CmdResume     CommandType = "Resume"
	CmdReset      CommandType = "Reset"
	CmdRegister   CommandType = "Register"
	CmdUnregister CommandType = "Unregister"
	CmdTick       CommandType = "Tick"
	CmdMoves      CommandType = "Moves"
)

type Command struct {
	Type       CommandType
	PlayerID   string
	Name       string
	Candidates []MoveCandidate
	At         time.Time
}

type EventType string

const (
	EvtMatchStarted  EventType = "MatchStarted"
	EvtMatchPaused   EventType = "MatchPaused"
	EvtMatchResumed  EventType = "MatchResumed"
	EvtMatchReset    EventType = "MatchReset"
	EvtMatchFinished EventType = "MatchFinished"
	EvtPlayerJoined  EventType = "PlayerJoined"
	EvtPlayerLeft    EventType = "PlayerLeft"
	EvtMoveLanded    EventType = "MoveLanded"
	EvtRoundEnded    EventType = "RoundEnded"
	EvtKnockout      EventType = "Knockout"
)

type Event struct {
	Type       EventType
	PlayerID   string
	TargetID   string
	Move       MoveType
	Confidence float64
	Damage     int
	Round      int
}

// Apply runs one command against the state and returns the events it
// produced plus the successor state. The input state is never mutated; on
// error it is returned unchanged. Empty events with a nil error means the
// command was legal but changed nothing worth broadcasting.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdRegister:
		return applyRegister(s, cmd)
	case CmdUnregister:
		return applyUnregister(s, cmd)
	case CmdStart:
		return applyStart(s, cmd)
	case CmdPause:
		if s.Phase != PhasePlaying {
			return nil, s, ErrNotPlaying
		}
		ns := clone(s)
		ns.Phase = PhasePaused
		ns.UpdatedAt = cmd.At
		return []Event{{Type: EvtMatchPaused}}, ns, nil
	case CmdResume:
		if s.Phase != PhasePaused {
			return nil, s, ErrNotPaused
		}
		ns := clone(s)
		ns.Phase = PhasePlaying
		ns.UpdatedAt = cmd.At
		return []Event{{Type: EvtMatchResumed}}, ns, nil
	case CmdReset:
		return applyReset(s, cmd)
	case CmdTick:
		return applyTick(s, cmd)
	case CmdMoves:
		return applyMoves(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyRegister(s State, cmd Command) ([]Event, State, error) {
	ns := clone(s)
	if p, ok := ns.Players[cmd.PlayerID]; ok {
		// Re-registration keeps the player's stats so a reconnect
		// mid-match does not erase the fight.
		if cmd.Name != "" {
			p.Name = cmd.Name
			ns.Players[cmd.PlayerID] = p
		}
		ns.UpdatedAt = cmd.At
		return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID}}, ns, nil
	}
	if len(ns.Players) >= s.Rules.RosterSize {
		return nil, s, ErrRosterFull
	}
	name := cmd.Name
	if name == "" {
		name = cmd.PlayerID
	}
	ns.Players[cmd.PlayerID] = Player{ID: cmd.PlayerID, Name: name, Health: DefaultHealth}
	ns.UpdatedAt = cmd.At
	return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID}}, ns, nil
}

func applyUnregister(s State, cmd Command) ([]Event, State, error) {
	if _, ok := s.Players[cmd.PlayerID]; !ok {
		return nil, s, ErrUnknownPlayer
	}
	ns := clone(s)
	delete(ns.Players, cmd.PlayerID)
	ns.UpdatedAt = cmd.At
	return []Event{{Type: EvtPlayerLeft, PlayerID: cmd.PlayerID}}, ns, nil
}

func applyStart(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseWaiting {
		return nil, s, ErrMatchRunning
	}
	if len(s.Players) == 0 {
		return nil, s, ErrNoPlayers
	}
	ns := clone(s)
	for id, p := range ns.Players {
		ns.Players[id] = Player{ID: p.ID, Name: p.Name, Health: DefaultHealth}
	}
	ns.Phase = PhasePlaying
	ns.Round = 1
	ns.TimeLeft = ns.Rules.RoundTimeSec
	ns.WinnerID = ""
	ns.StartedAt = cmd.At
	ns.UpdatedAt = cmd.At
	return []Event{{Type: EvtMatchStarted, Round: 1}}, ns, nil
}

func applyReset(s State, cmd Command) ([]Event, State, error) {
	ns := NewState(s.Rules)
	// Registered identities survive a reset; only their stats return to
	// defaults, so connected clients keep fighting under the same id.
	for id, p := range s.Players {
		ns.Players[id] = Player{ID: p.ID, Name: p.Name, Health: DefaultHealth}
	}
	ns.UpdatedAt = cmd.At
	return []Event{{Type: EvtMatchReset}}, ns, nil
}

func applyTick(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhasePlaying {
		return nil, s, ErrNotPlaying
	}
	ns := clone(s)
	decayFlags(&ns, cmd.At)
	ns.TimeLeft--
	ns.UpdatedAt = cmd.At
	if ns.TimeLeft > 0 {
		return nil, ns, nil
	}
	return endRound(ns, cmd)
}

// endRound settles the expired round: bonus to the leader, flags cleared,
// then either the next round or the final verdict.
func endRound(ns State, cmd Command) ([]Event, State, error) {
	leader := leaderID(ns)
	if leader != "" {
		p := ns.Players[leader]
		p.Score += RoundWinBonus
		ns.Players[leader] = p
	}
	for id, p := range ns.Players {
		p.Blocking = false
		p.Dodging = false
		p.DefenseAt = time.Time{}
		ns.Players[id] = p
	}
	events := []Event{{Type: EvtRoundEnded, PlayerID: leader, Round: ns.Round}}

	if ns.Round < ns.Rules.MaxRounds {
		ns.Round++
		ns.TimeLeft = ns.Rules.RoundTimeSec
		return events, ns, nil
	}
	ns.Phase = PhaseFinished
	ns.TimeLeft = 0
	ns.WinnerID = leader
	events = append(events, Event{Type: EvtMatchFinished, PlayerID: leader, Round: ns.Round})
	return events, ns, nil
}

func applyMoves(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhasePlaying {
		return nil, s, ErrNotPlaying
	}
	attacker, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, s, ErrUnknownPlayer
	}
	accepted, ok := Arbitrate(attacker, cmd.Candidates, cmd.At, s.Rules.MoveCooldown)
	if !ok {
		return nil, s, nil
	}

	ns := clone(s)
	p := ns.Players[cmd.PlayerID]
	p.LastMove = accepted.Type
	p.LastMoveAt = cmd.At

	event := Event{
		Type:       EvtMoveLanded,
		PlayerID:   cmd.PlayerID,
		Move:       accepted.Type,
		Confidence: accepted.Confidence,
		Round:      ns.Round,
	}

	if !accepted.Type.Offensive() {
		switch accepted.Type {
		case MoveBlock:
			p.Blocking = true
			p.Dodging = false
			p.DefenseAt = cmd.At
		case MoveDodge:
			p.Dodging = true
			p.Blocking = false
			p.DefenseAt = cmd.At
		case MoveGuard:
			p.Blocking = false
			p.Dodging = false
			p.DefenseAt = time.Time{}
		}
		ns.Players[cmd.PlayerID] = p
		ns.UpdatedAt = cmd.At
		return []Event{event}, ns, nil
	}

	events := []Event{}
	if oppID, found := opponentOf(ns, cmd.PlayerID); found {
		opp := ns.Players[oppID]
		dmg := damageDealt(accepted, opp)
		opp.Health = clampHealth(opp.Health - dmg)
		p.Score += dmg
		event.TargetID = oppID
		event.Damage = dmg
		events = append(events, event)

		if opp.Health == 0 {
			p.Score += KnockoutBonus
			ns.Phase = PhaseFinished
			ns.WinnerID = cmd.PlayerID
			events = append(events,
				Event{Type: EvtKnockout, PlayerID: oppID, TargetID: cmd.PlayerID, Round: ns.Round},
				Event{Type: EvtMatchFinished, PlayerID: cmd.PlayerID, Round: ns.Round},
			)
		}
		ns.Players[oppID] = opp
	} else {
		// Shadowboxing: the move registers but nothing to hit.
		events = append(events, event)
	}
	ns.Players[cmd.PlayerID] = p
	ns.UpdatedAt = cmd.At
	return events, ns, nil
}

func damageDealt(c MoveCandidate, opp Player) int {
	base := float64(c.Type.Damage()) * c.Confidence
	switch {
	case opp.Dodging:
		return 0
	case opp.Blocking:
		return int(base * (1 - c.Type.BlockEffectiveness()))
	default:
		return int(base)
	}
}

func decayFlags(ns *State, now time.Time) {
	for id, p := range ns.Players {
		if !p.Blocking && !p.Dodging {
			continue
		}
		if now.Sub(p.DefenseAt) >= ns.Rules.FlagDecay {
			p.Blocking = false
			p.Dodging = false
			p.DefenseAt = time.Time{}
			ns.Players[id] = p
		}
	}
}

// leaderID picks the round/match leader: most health, then most score.
// Empty string means a dead-even draw.
func leaderID(s State) string {
	best := ""
	tied := false
	for id, p := range s.Players {
		if best == "" {
			best = id
			continue
		}
		b := s.Players[best]
		switch {
		case p.Health > b.Health || (p.Health == b.Health && p.Score > b.Score):
			best = id
			tied = false
		case p.Health == b.Health && p.Score == b.Score:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return best
}

func opponentOf(s State, id string) (string, bool) {
	for other := range s.Players {
		if other != id {
			return other, true
		}
	}
	return "", false
}

func clampHealth(h int) int {
	if h < 0 {
		return 0
	}
	if h > DefaultHealth {
		return DefaultHealth
	}
	return h
}

func clone(s State) State {
	ns := s
	ns.Players = make(map[string]Player, len(s.Players))
	for id, p := range s.Players {
		ns.Players[id] = p
	}
	return ns
}
