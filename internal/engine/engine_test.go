package engine

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func playingState() State {
	s := NewState(DefaultRules())
	s.Players["p1"] = Player{ID: "p1", Name: "Southpaw", Health: DefaultHealth}
	s.Players["p2"] = Player{ID: "p2", Name: "Orthodox", Health: DefaultHealth}
	s.Phase = PhasePlaying
	s.StartedAt = t0
	return s
}

func candidate(mt MoveType, conf float64) MoveCandidate {
	return MoveCandidate{Type: mt, Confidence: conf, At: t0}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		name    string
		phase   Phase
		players int
		cmd     CommandType
		wantErr error
		want    Phase
	}{
		{name: "start from waiting", phase: PhaseWaiting, players: 2, cmd: CmdStart, want: PhasePlaying},
		{name: "start without players", phase: PhaseWaiting, players: 0, cmd: CmdStart, wantErr: ErrNoPlayers},
		{name: "start while playing", phase: PhasePlaying, players: 2, cmd: CmdStart, wantErr: ErrMatchRunning},
		{name: "start while paused", phase: PhasePaused, players: 2, cmd: CmdStart, wantErr: ErrMatchRunning},
		{name: "start while finished", phase: PhaseFinished, players: 2, cmd: CmdStart, wantErr: ErrMatchRunning},
		{name: "pause while playing", phase: PhasePlaying, players: 2, cmd: CmdPause, want: PhasePaused},
		{name: "pause while waiting", phase: PhaseWaiting, players: 2, cmd: CmdPause, wantErr: ErrNotPlaying},
		{name: "resume while paused", phase: PhasePaused, players: 2, cmd: CmdResume, want: PhasePlaying},
		{name: "resume while playing", phase: PhasePlaying, players: 2, cmd: CmdResume, wantErr: ErrNotPaused},
		{name: "reset while playing", phase: PhasePlaying, players: 2, cmd: CmdReset, want: PhaseWaiting},
		{name: "reset while finished", phase: PhaseFinished, players: 2, cmd: CmdReset, want: PhaseWaiting},
		{name: "reset while waiting", phase: PhaseWaiting, players: 0, cmd: CmdReset, want: PhaseWaiting},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(DefaultRules())
			s.Phase = tc.phase
			for i := 0; i < tc.players; i++ {
				id := string(rune('a' + i))
				s.Players[id] = Player{ID: id, Health: DefaultHealth}
			}

			_, ns, err := Apply(s, Command{Type: tc.cmd, At: t0})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if ns.Phase != tc.phase {
					t.Fatalf("rejected command must not change phase: %v -> %v", tc.phase, ns.Phase)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if ns.Phase != tc.want {
				t.Fatalf("want phase %v, got %v", tc.want, ns.Phase)
			}
		})
	}
}

func TestStart_ResetsPlayerStats(t *testing.T) {
	s := NewState(DefaultRules())
	s.Players["p1"] = Player{ID: "p1", Health: 40, Score: 90, Blocking: true}

	events, ns, err := Apply(s, Command{Type: CmdStart, At: t0})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtMatchStarted) {
		t.Fatalf("expected EvtMatchStarted")
	}
	p := ns.Players["p1"]
	if p.Health != DefaultHealth || p.Score != 0 || p.Blocking {
		t.Fatalf("expected default stats after start, got %+v", p)
	}
	if ns.Round != 1 || ns.TimeLeft != ns.Rules.RoundTimeSec {
		t.Fatalf("expected round 1 with a fresh timer, got round=%d timeLeft=%d", ns.Round, ns.TimeLeft)
	}
	if ns.StartedAt != t0 {
		t.Fatalf("expected startedAt stamped")
	}
}

func TestRegister_RosterCapAndReconnect(t *testing.T) {
	s := NewState(DefaultRules())

	for _, id := range []string{"p1", "p2"} {
		var err error
		_, s, err = Apply(s, Command{Type: CmdRegister, PlayerID: id, At: t0})
		if err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	_, _, err := Apply(s, Command{Type: CmdRegister, PlayerID: "p3", At: t0})
	if !errors.Is(err, ErrRosterFull) {
		t.Fatalf("want ErrRosterFull, got %v", err)
	}

	// Reconnect under the same id keeps the fight.
	p := s.Players["p1"]
	p.Health = 37
	s.Players["p1"] = p
	_, ns, err := Apply(s, Command{Type: CmdRegister, PlayerID: "p1", Name: "Rocky", At: t0})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if ns.Players["p1"].Health != 37 || ns.Players["p1"].Name != "Rocky" {
		t.Fatalf("re-register should keep stats and update name, got %+v", ns.Players["p1"])
	}
}

func TestUnregister(t *testing.T) {
	s := playingState()
	events, ns, err := Apply(s, Command{Type: CmdUnregister, PlayerID: "p2", At: t0})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtPlayerLeft) {
		t.Fatalf("expected EvtPlayerLeft")
	}
	if _, ok := ns.Players["p2"]; ok {
		t.Fatalf("p2 should be gone")
	}

	_, _, err = Apply(s, Command{Type: CmdUnregister, PlayerID: "ghost", At: t0})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("want ErrUnknownPlayer, got %v", err)
	}
}

func TestMoves_JabDealsScaledDamage(t *testing.T) {
	s := playingState()
	at := t0.Add(time.Second)

	events, ns, err := Apply(s, Command{
		Type:       CmdMoves,
		PlayerID:   "p1",
		Candidates: []MoveCandidate{candidate(MoveJab, 0.85)},
		At:         at,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	landed, ok := FindEvent(events, EvtMoveLanded)
	if !ok {
		t.Fatalf("expected EvtMoveLanded")
	}
	if landed.Move != MoveJab || landed.Damage != 8 || landed.TargetID != "p2" {
		t.Fatalf("unexpected landed event: %+v", landed)
	}
	if got := ns.Players["p2"].Health; got != 92 {
		t.Fatalf("want defender health 92, got %d", got)
	}
	if got := ns.Players["p1"].Score; got != 8 {
		t.Fatalf("want attacker score 8, got %d", got)
	}
	if ns.Players["p1"].LastMove != MoveJab || !ns.Players["p1"].LastMoveAt.Equal(at) {
		t.Fatalf("last move not recorded: %+v", ns.Players["p1"])
	}
}

func TestMoves_BlockAndDodgeScaleDamage(t *testing.T) {
	cases := []struct {
		name       string
		blocking   bool
		dodging    bool
		move       MoveType
		conf       float64
		wantDamage int
	}{
		{name: "jab into block", blocking: true, move: MoveJab, conf: 0.85, wantDamage: 5},
		{name: "uppercut into block", blocking: true, move: MoveUppercut, conf: 1.0, wantDamage: 5},
		{name: "cross into dodge", dodging: true, move: MoveCross, conf: 0.9, wantDamage: 0},
		{name: "hook into open guard", move: MoveHook, conf: 1.0, wantDamage: 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := playingState()
			opp := s.Players["p2"]
			opp.Blocking = tc.blocking
			opp.Dodging = tc.dodging
			opp.DefenseAt = t0
			s.Players["p2"] = opp

			events, ns, err := Apply(s, Command{
				Type:       CmdMoves,
				PlayerID:   "p1",
				Candidates: []MoveCandidate{candidate(tc.move, tc.conf)},
				At:         t0.Add(time.Second),
			})
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			landed, _ := FindEvent(events, EvtMoveLanded)
			if landed.Damage != tc.wantDamage {
				t.Fatalf("want damage %d, got %d", tc.wantDamage, landed.Damage)
			}
			if got := ns.Players["p2"].Health; got != DefaultHealth-tc.wantDamage {
				t.Fatalf("want health %d, got %d", DefaultHealth-tc.wantDamage, got)
			}
		})
	}
}

func TestMoves_CooldownAcceptsExactlyOne(t *testing.T) {
	s := playingState()

	_, s1, err := Apply(s, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveJab, 0.9)},
		At:         t0,
	})
	if err != nil {
		t.Fatalf("first move: %v", err)
	}

	// 100ms later, well inside the 300ms cooldown.
	events, s2, err := Apply(s1, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveCross, 0.99)},
		At:         t0.Add(100 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events inside cooldown, got %+v", events)
	}
	if s2.Players["p2"].Health != s1.Players["p2"].Health {
		t.Fatalf("cooldown must not change state")
	}

	// After the cooldown the next move lands.
	events, _, err = Apply(s1, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveCross, 0.99)},
		At:         t0.Add(400 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("third move: %v", err)
	}
	if !ContainsEvent(events, EvtMoveLanded) {
		t.Fatalf("expected a landed move after cooldown")
	}
}

func TestMoves_KnockoutFinishesMatch(t *testing.T) {
	s := playingState()
	opp := s.Players["p2"]
	opp.Health = 8
	s.Players["p2"] = opp

	events, ns, err := Apply(s, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveJab, 0.9)},
		At:         t0.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtKnockout) || !ContainsEvent(events, EvtMatchFinished) {
		t.Fatalf("expected knockout and finish events, got %+v", events)
	}
	if ns.Phase != PhaseFinished || ns.WinnerID != "p1" {
		t.Fatalf("want finished with winner p1, got phase=%v winner=%q", ns.Phase, ns.WinnerID)
	}
	if ns.Players["p2"].Health != 0 {
		t.Fatalf("health must clamp at 0, got %d", ns.Players["p2"].Health)
	}
	// Score counts the 9 damage dealt plus the knockout bonus.
	if got := ns.Players["p1"].Score; got != 9+KnockoutBonus {
		t.Fatalf("want attacker score %d, got %d", 9+KnockoutBonus, got)
	}
}

func TestMoves_DefensiveFlagsAreExclusive(t *testing.T) {
	s := playingState()

	_, s1, err := Apply(s, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveBlock, 0.9)},
		At:         t0,
	})
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	p := s1.Players["p1"]
	if !p.Blocking || p.Dodging {
		t.Fatalf("after block want blocking only, got %+v", p)
	}

	_, s2, err := Apply(s1, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveDodge, 0.9)},
		At:         t0.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("dodge: %v", err)
	}
	p = s2.Players["p1"]
	if p.Blocking || !p.Dodging {
		t.Fatalf("after dodge want dodging only, got %+v", p)
	}

	_, s3, err := Apply(s2, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveGuard, 0.9)},
		At:         t0.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	p = s3.Players["p1"]
	if p.Blocking || p.Dodging {
		t.Fatalf("guard must clear both flags, got %+v", p)
	}
}

func TestMoves_RejectedOutsidePlaying(t *testing.T) {
	s := playingState()
	s.Phase = PhasePaused

	_, _, err := Apply(s, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveJab, 0.9)},
		At:         t0,
	})
	if !errors.Is(err, ErrNotPlaying) {
		t.Fatalf("want ErrNotPlaying, got %v", err)
	}
}

func TestMoves_ShadowboxingWithoutOpponent(t *testing.T) {
	s := NewState(DefaultRules())
	s.Players["p1"] = Player{ID: "p1", Health: DefaultHealth}
	s.Phase = PhasePlaying

	events, ns, err := Apply(s, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveHook, 0.8)},
		At:         t0,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtMoveLanded) {
		t.Fatalf("move should register without an opponent")
	}
	if ns.Players["p1"].Score != 0 {
		t.Fatalf("no damage dealt means no score, got %d", ns.Players["p1"].Score)
	}
}

func TestTick_CountsDownAndRollsRounds(t *testing.T) {
	s := playingState()
	s.TimeLeft = 2

	_, s1, err := Apply(s, Command{Type: CmdTick, At: t0.Add(time.Second)})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if s1.TimeLeft != 1 || s1.Round != 1 {
		t.Fatalf("want timeLeft=1 round=1, got timeLeft=%d round=%d", s1.TimeLeft, s1.Round)
	}

	// Give p1 the round on health.
	p := s1.Players["p2"]
	p.Health = 80
	s1.Players["p2"] = p

	events, s2, err := Apply(s1, Command{Type: CmdTick, At: t0.Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !ContainsEvent(events, EvtRoundEnded) {
		t.Fatalf("expected EvtRoundEnded")
	}
	if s2.Phase != PhasePlaying || s2.Round != 2 || s2.TimeLeft != s2.Rules.RoundTimeSec {
		t.Fatalf("want round 2 with fresh timer, got %+v", s2)
	}
	if got := s2.Players["p1"].Score; got != RoundWinBonus {
		t.Fatalf("round leader should earn %d, got %d", RoundWinBonus, got)
	}
}

func TestTick_FinalRoundFinishesMatch(t *testing.T) {
	s := playingState()
	s.Round = s.Rules.MaxRounds
	s.TimeLeft = 1
	p := s.Players["p2"]
	p.Health = 61
	s.Players["p2"] = p

	events, ns, err := Apply(s, Command{Type: CmdTick, At: t0})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !ContainsEvent(events, EvtMatchFinished) {
		t.Fatalf("expected EvtMatchFinished")
	}
	if ns.Phase != PhaseFinished || ns.WinnerID != "p1" || ns.TimeLeft != 0 {
		t.Fatalf("want finished winner p1, got phase=%v winner=%q", ns.Phase, ns.WinnerID)
	}
	if ns.Round != ns.Rules.MaxRounds {
		t.Fatalf("round index must never pass maxRounds, got %d", ns.Round)
	}
}

func TestTick_DrawLeavesNoWinner(t *testing.T) {
	s := playingState()
	s.Round = s.Rules.MaxRounds
	s.TimeLeft = 1

	_, ns, err := Apply(s, Command{Type: CmdTick, At: t0})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ns.WinnerID != "" {
		t.Fatalf("identical players should draw, got winner %q", ns.WinnerID)
	}
	if ns.Players["p1"].Score != 0 || ns.Players["p2"].Score != 0 {
		t.Fatalf("no round bonus on a draw")
	}
}

func TestTick_DecaysDefensiveFlags(t *testing.T) {
	s := playingState()
	p := s.Players["p1"]
	p.Blocking = true
	p.DefenseAt = t0
	s.Players["p1"] = p

	// Inside the decay window the flag holds.
	_, s1, err := Apply(s, Command{Type: CmdTick, At: t0.Add(time.Second)})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !s1.Players["p1"].Blocking {
		t.Fatalf("flag should survive inside the decay window")
	}

	_, s2, err := Apply(s1, Command{Type: CmdTick, At: t0.Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if s2.Players["p1"].Blocking || s2.Players["p1"].Dodging {
		t.Fatalf("flag should decay back to neutral")
	}
}

func TestTick_RejectedOutsidePlaying(t *testing.T) {
	for _, phase := range []Phase{PhaseWaiting, PhasePaused, PhaseFinished} {
		s := playingState()
		s.Phase = phase
		_, _, err := Apply(s, Command{Type: CmdTick, At: t0})
		if !errors.Is(err, ErrNotPlaying) {
			t.Fatalf("phase %v: want ErrNotPlaying, got %v", phase, err)
		}
	}
}

func TestPauseResume_TimerFrozen(t *testing.T) {
	s := playingState()
	s.TimeLeft = 137

	_, paused, err := Apply(s, Command{Type: CmdPause, At: t0})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, resumed, err := Apply(paused, Command{Type: CmdResume, At: t0.Add(10 * time.Second)})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.TimeLeft != 137 {
		t.Fatalf("timer must not drift across pause/resume, got %d", resumed.TimeLeft)
	}
}

func TestReset_RestoresDefaultsKeepsIdentities(t *testing.T) {
	s := playingState()
	s.Round = 3
	s.TimeLeft = 12
	s.WinnerID = "p1"
	p := s.Players["p1"]
	p.Health = 14
	p.Score = 220
	p.Dodging = true
	s.Players["p1"] = p

	events, ns, err := Apply(s, Command{Type: CmdReset, At: t0})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !ContainsEvent(events, EvtMatchReset) {
		t.Fatalf("expected EvtMatchReset")
	}
	if ns.Phase != PhaseWaiting || ns.Round != 1 || ns.WinnerID != "" {
		t.Fatalf("want fresh waiting state, got %+v", ns)
	}
	got := ns.Players["p1"]
	if got.Health != DefaultHealth || got.Score != 0 || got.Dodging || got.Name != "Southpaw" {
		t.Fatalf("want default stats under the same identity, got %+v", got)
	}
}

func TestHealth_NeverLeavesRange(t *testing.T) {
	s := playingState()
	opp := s.Players["p2"]
	opp.Health = 3
	s.Players["p2"] = opp

	_, ns, err := Apply(s, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveUppercut, 1.0)},
		At:         t0,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h := ns.Players["p2"].Health; h < 0 || h > DefaultHealth {
		t.Fatalf("health out of range: %d", h)
	}
}

func TestApply_InputStateUntouched(t *testing.T) {
	s := playingState()
	_, _, err := Apply(s, Command{
		Type: CmdMoves, PlayerID: "p1",
		Candidates: []MoveCandidate{candidate(MoveJab, 0.9)},
		At:         t0,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Players["p2"].Health != DefaultHealth {
		t.Fatalf("Apply must not mutate its input state")
	}
}

func TestApply_UnsupportedCommand(t *testing.T) {
	s := NewState(DefaultRules())
	_, _, err := Apply(s, Command{Type: CommandType("Moonwalk"), At: t0})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("want ErrUnsupportedCommand, got %v", err)
	}
}
