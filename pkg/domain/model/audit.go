package model

import (
	"time"

	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/google/uuid"
)

// TurnID identifies one customer turn through the whole pipeline. UUID v7
// keeps audit records time-ordered.
type TurnID string

// NewTurnID generates a new UUID v7 TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.Must(uuid.NewV7()).String())
}

// TurnAudit is the per-turn record persisted for regulatory audit. Its
// shape is a hard contract with the admin reporting surface.
type TurnAudit struct {
	TurnID              TurnID
	CustomerID          string
	Strategy            types.ValidationStrategy
	GuidanceDelivered   bool
	DeliveredText       string `masq:"secret"`
	ValidationResult    *ValidationResult
	RetrievedContextIDs []string
	RefinementAttempted bool
	EscalationTicketID  string
	StartedAt           time.Time
	CompletedAt         time.Time
}
