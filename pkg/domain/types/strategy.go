package types

import "fmt"

// ValidationStrategy selects when compliance validation runs relative to
// delivering guidance text to the customer.
type ValidationStrategy string

const (
	// StrategyPreStream validates fully before any text is delivered.
	StrategyPreStream ValidationStrategy = "PRE_STREAM"

	// StrategyPostStream delivers immediately and validates afterward.
	// Trades safety for latency: delivered text cannot be unsent.
	StrategyPostStream ValidationStrategy = "POST_STREAM"

	// StrategyHybrid consults the validation cache; an approved hit streams
	// immediately while validation re-runs in the background, anything else
	// falls back to PRE_STREAM for the turn.
	StrategyHybrid ValidationStrategy = "HYBRID"
)

// AllValidationStrategies returns all valid validation strategies
func AllValidationStrategies() []ValidationStrategy {
	return []ValidationStrategy{
		StrategyPreStream,
		StrategyPostStream,
		StrategyHybrid,
	}
}

// IsValid checks if the validation strategy is valid
func (s ValidationStrategy) IsValid() bool {
	switch s {
	case StrategyPreStream, StrategyPostStream, StrategyHybrid:
		return true
	default:
		return false
	}
}

// Normalize returns the strategy, treating empty as StrategyPreStream.
// The safest timing is the default.
func (s ValidationStrategy) Normalize() ValidationStrategy {
	if s == "" {
		return StrategyPreStream
	}
	return s
}

// String returns the string representation of the validation strategy
func (s ValidationStrategy) String() string {
	return string(s)
}

// ParseValidationStrategy parses a string into a ValidationStrategy
func ParseValidationStrategy(s string) (ValidationStrategy, error) {
	strategy := ValidationStrategy(s)
	if !strategy.IsValid() {
		return "", fmt.Errorf("invalid validation strategy: %s", s)
	}
	return strategy, nil
}
