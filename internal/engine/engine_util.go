package engine

import "time"

func DefaultRules() Rules {
	return Rules{
		MaxRounds:    3,
		RoundTimeSec: 180,
		MoveCooldown: 300 * time.Millisecond,
		FlagDecay:    1500 * time.Millisecond,
		RosterSize:   DefaultRosterSize,
	}
}

// NewState builds the initial waiting-room state. The round counter and
// timer are pre-seeded so a snapshot taken before start already shows the
// shape of the match.
func NewState(rules Rules) State {
	return State{
		Phase:    PhaseWaiting,
		Round:    1,
		TimeLeft: rules.RoundTimeSec,
		Players:  map[string]Player{},
		Rules:    rules,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FindEvent returns the first event of the given type.
func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
