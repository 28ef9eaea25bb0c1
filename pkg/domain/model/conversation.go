package model

import (
	"time"

	"github.com/advisory-lab/themis/pkg/domain/types"
)

// TurnRole identifies the author of a conversation turn
type TurnRole string

const (
	RoleCustomer TurnRole = "customer"
	RoleAdvisor  TurnRole = "advisor"
)

// Turn is a single message in the conversation history
type Turn struct {
	Role      TurnRole
	Text      string `masq:"secret"`
	Timestamp time.Time
}

// EmotionEvolution records a detected shift between the previous customer
// turn's state and the current one. Evolution claims are inherently less
// certain than point-in-time claims, so Confidence is discounted relative
// to the current turn's own confidence.
type EmotionEvolution struct {
	From       types.EmotionLabel
	To         types.EmotionLabel
	Confidence float64
}

// EmotionalState is the tracker's classification of the customer's current
// emotional state with its confidence.
type EmotionalState struct {
	Label      types.EmotionLabel
	Confidence float64
	Evolution  *EmotionEvolution
}

// ConversationalContext is computed fresh each turn and never persisted.
// It feeds the re-ranker's situational scoring.
type ConversationalContext struct {
	Phase           types.ConversationPhase
	EmotionalState  *EmotionalState
	TurnsCount      int
	CustomerProfile *CustomerProfile
}

// Usable reports whether the context carries enough signal for
// conversational re-ranking. An absent or incomplete context makes the
// re-ranker fall back to pure similarity ordering.
func (c *ConversationalContext) Usable() bool {
	return c != nil && c.Phase.IsValid()
}
