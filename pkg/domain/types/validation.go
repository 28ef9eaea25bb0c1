package types

import "fmt"

// ValidationSource identifies which stage produced a validation result
type ValidationSource string

const (
	// SourceRuleBased means a deterministic rule check decided the result.
	// Rule-based failures are certain: confidence 1.0, never escalated.
	SourceRuleBased ValidationSource = "RULE_BASED"

	// SourceJudgeConsensus means the result came from multi-judge consensus.
	SourceJudgeConsensus ValidationSource = "JUDGE_CONSENSUS"
)

// IsValid checks if the validation source is valid
func (s ValidationSource) IsValid() bool {
	switch s {
	case SourceRuleBased, SourceJudgeConsensus:
		return true
	default:
		return false
	}
}

// String returns the string representation of the validation source
func (s ValidationSource) String() string {
	return string(s)
}

// ValidationState is a state of the validator's two-stage pipeline
type ValidationState string

const (
	StatePending        ValidationState = "PENDING"
	StateRuleCheck      ValidationState = "RULE_CHECK"
	StateJudgeConsensus ValidationState = "JUDGE_CONSENSUS"
	StateApproved       ValidationState = "APPROVED"
	StateRejected       ValidationState = "REJECTED"
	StateEscalated      ValidationState = "ESCALATED"
)

// AllValidationStates returns all valid validation states
func AllValidationStates() []ValidationState {
	return []ValidationState{
		StatePending,
		StateRuleCheck,
		StateJudgeConsensus,
		StateApproved,
		StateRejected,
		StateEscalated,
	}
}

// IsValid checks if the validation state is valid
func (s ValidationState) IsValid() bool {
	switch s {
	case StatePending, StateRuleCheck, StateJudgeConsensus,
		StateApproved, StateRejected, StateEscalated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state ends the validation pipeline
func (s ValidationState) IsTerminal() bool {
	switch s {
	case StateApproved, StateRejected, StateEscalated:
		return true
	default:
		return false
	}
}

// String returns the string representation of the validation state
func (s ValidationState) String() string {
	return string(s)
}

// ParseValidationState parses a string into a ValidationState
func ParseValidationState(s string) (ValidationState, error) {
	state := ValidationState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid validation state: %s", s)
	}
	return state, nil
}
