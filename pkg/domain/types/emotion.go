package types

import "fmt"

// EmotionLabel is a coarse classification of the customer's emotional
// state, inferred from recent turns by the conversational state tracker.
type EmotionLabel string

const (
	EmotionNeutral    EmotionLabel = "NEUTRAL"
	EmotionPositive   EmotionLabel = "POSITIVE"
	EmotionNegative   EmotionLabel = "NEGATIVE"
	EmotionAnxious    EmotionLabel = "ANXIOUS"
	EmotionFrustrated EmotionLabel = "FRUSTRATED"
)

// AllEmotionLabels returns all valid emotion labels
func AllEmotionLabels() []EmotionLabel {
	return []EmotionLabel{
		EmotionNeutral,
		EmotionPositive,
		EmotionNegative,
		EmotionAnxious,
		EmotionFrustrated,
	}
}

// IsValid checks if the emotion label is valid
func (e EmotionLabel) IsValid() bool {
	switch e {
	case EmotionNeutral, EmotionPositive, EmotionNegative,
		EmotionAnxious, EmotionFrustrated:
		return true
	default:
		return false
	}
}

// String returns the string representation of the emotion label
func (e EmotionLabel) String() string {
	return string(e)
}

// ParseEmotionLabel parses a string into an EmotionLabel
func ParseEmotionLabel(s string) (EmotionLabel, error) {
	label := EmotionLabel(s)
	if !label.IsValid() {
		return "", fmt.Errorf("invalid emotion label: %s", s)
	}
	return label, nil
}
