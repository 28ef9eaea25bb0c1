package interfaces

import (
	"context"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
)

// ReviewRequest is an escalation handed to the human review queue
type ReviewRequest struct {
	TurnID       model.TurnID
	CustomerID   string
	GuidanceText string `masq:"secret"`
	Result       *model.ValidationResult
	Priority     types.Severity
}

// ReviewQueue routes low-confidence or ambiguous verdicts to humans.
// Only a human action can clear a judge-consensus escalation.
type ReviewQueue interface {
	// Enqueue submits the request and returns a ticket ID
	Enqueue(ctx context.Context, req *ReviewRequest) (string, error)
}
