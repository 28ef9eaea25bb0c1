package usecase

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrGenerationFailed means no guidance candidate could be produced,
	// including the refinement retry.
	ErrGenerationFailed = goerr.New("guidance generation failed")

	// ErrRefinementExhausted means the single refinement attempt was spent
	// and the refined text still failed validation.
	ErrRefinementExhausted = goerr.New("refinement attempt exhausted")

	// ErrEscalationFailed means neither the review queue nor the durable
	// fallback log accepted the escalation. This is an operational
	// emergency: an escalation has been lost.
	ErrEscalationFailed = goerr.New("escalation could not be recorded")
)
