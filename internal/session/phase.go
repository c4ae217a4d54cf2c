package session

import "fmt"

// Phase is the gameplay phase of one room.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseCountdown
	PhaseActive
	PhaseFinished
	PhaseDestroyed
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseCountdown:
		return "countdown"
	case PhaseActive:
		return "active"
	case PhaseFinished:
		return "finished"
	case PhaseDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name in JSON diagnostics.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseWaiting; candidate <= PhaseDestroyed; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
