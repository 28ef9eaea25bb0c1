package interfaces

import (
	"context"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// RuleRepository defines the interface for Rule persistence. Rule
// confidence is mutated by the external learning process only.
type RuleRepository interface {
	// Create creates a new rule
	Create(ctx context.Context, r *model.Rule) (*model.Rule, error)

	// Get retrieves a rule by ID
	Get(ctx context.Context, id model.RuleID) (*model.Rule, error)

	// FindByEmbedding performs vector similarity search using cosine
	// distance. minConfidence filters candidates BEFORE ranking so the
	// limit always returns the best eligible rules, never a best-N list
	// filtered down afterward.
	FindByEmbedding(ctx context.Context, embedding []float32, limit int, minConfidence float64) ([]*model.Rule, error)
}
