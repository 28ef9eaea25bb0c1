package types

import "fmt"

// ConversationPhase represents where a consultation currently is in its
// lifecycle. It drives phase-aware re-ranking of retrieved candidates.
type ConversationPhase string

const (
	PhaseOpening ConversationPhase = "OPENING"
	PhaseMiddle  ConversationPhase = "MIDDLE"
	PhaseClosing ConversationPhase = "CLOSING"
)

// AllConversationPhases returns all valid conversation phases
func AllConversationPhases() []ConversationPhase {
	return []ConversationPhase{
		PhaseOpening,
		PhaseMiddle,
		PhaseClosing,
	}
}

// IsValid checks if the conversation phase is valid
func (p ConversationPhase) IsValid() bool {
	switch p {
	case PhaseOpening, PhaseMiddle, PhaseClosing:
		return true
	default:
		return false
	}
}

// String returns the string representation of the conversation phase
func (p ConversationPhase) String() string {
	return string(p)
}

// ParseConversationPhase parses a string into a ConversationPhase
func ParseConversationPhase(s string) (ConversationPhase, error) {
	phase := ConversationPhase(s)
	if !phase.IsValid() {
		return "", fmt.Errorf("invalid conversation phase: %s", s)
	}
	return phase, nil
}
