package interfaces

import (
	"context"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// GenerationRequest carries everything the guidance generator needs for
// one attempt. PriorIssues is non-empty only on the refinement retry.
type GenerationRequest struct {
	CustomerMessage string `masq:"secret"`
	Profile         *model.CustomerProfile
	Context         *model.RetrievedContext
	PriorIssues     []model.ValidationIssue
}

// Generation is one generated guidance candidate. Rationale is the
// generation-side reasoning passed through to judges.
type Generation struct {
	Text      string `masq:"secret"`
	Rationale string
}

// Generator produces guidance text from retrieved context. The upstream
// LLM is a black box behind this interface.
type Generator interface {
	Generate(ctx context.Context, req *GenerationRequest) (*Generation, error)
}
