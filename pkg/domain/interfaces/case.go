package interfaces

import (
	"context"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// CaseRepository defines the interface for Case persistence. Cases are
// written by the offline learning process; this core only creates them in
// tests and development seeding.
type CaseRepository interface {
	// Create creates a new case
	Create(ctx context.Context, c *model.Case) (*model.Case, error)

	// Get retrieves a case by ID
	Get(ctx context.Context, id model.CaseID) (*model.Case, error)

	// FindByEmbedding performs vector similarity search using cosine
	// distance. Cases without an embedding are excluded from the pool.
	FindByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*model.Case, error)
}
