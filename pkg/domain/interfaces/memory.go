package interfaces

import (
	"context"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// MemoryRepository defines the interface for MemoryNode persistence
type MemoryRepository interface {
	// Create creates a new memory node
	Create(ctx context.Context, node *model.MemoryNode) (*model.MemoryNode, error)

	// Get retrieves a memory node by ID
	Get(ctx context.Context, id model.MemoryID) (*model.MemoryNode, error)

	// List retrieves all memory nodes, most recent first
	List(ctx context.Context) ([]*model.MemoryNode, error)

	// FindByEmbedding performs vector similarity search using cosine
	// distance. Nodes without an embedding are excluded from the pool.
	// Ties on similarity break by most recent CreatedAt.
	FindByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*model.MemoryNode, error)

	// TouchAccess updates LastAccessedAt for the given nodes. This is the
	// only mutation this core performs on the collection.
	TouchAccess(ctx context.Context, ids []model.MemoryID, at time.Time) error
}
