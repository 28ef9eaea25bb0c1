package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type memoryNodeRepository struct {
	mu    sync.RWMutex
	nodes map[model.MemoryID]*model.MemoryNode
}

func newMemoryNodeRepository() *memoryNodeRepository {
	return &memoryNodeRepository{
		nodes: make(map[model.MemoryID]*model.MemoryNode),
	}
}

func copyMemoryNode(n *model.MemoryNode) *model.MemoryNode {
	copied := &model.MemoryNode{
		ID:             n.ID,
		Description:    n.Description,
		Importance:     n.Importance,
		CreatedAt:      n.CreatedAt,
		LastAccessedAt: n.LastAccessedAt,
	}
	if n.Embedding != nil {
		copied.Embedding = make([]float32, len(n.Embedding))
		copy(copied.Embedding, n.Embedding)
	}
	return copied
}

func (r *memoryNodeRepository) Create(ctx context.Context, node *model.MemoryNode) (*model.MemoryNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyMemoryNode(node)
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.nodes[created.ID] = created
	return copyMemoryNode(created), nil
}

func (r *memoryNodeRepository) Get(ctx context.Context, id model.MemoryID) (*model.MemoryNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, exists := r.nodes[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory node not found", goerr.V("memoryID", id))
	}

	return copyMemoryNode(node), nil
}

func (r *memoryNodeRepository) List(ctx context.Context) ([]*model.MemoryNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.MemoryNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		result = append(result, copyMemoryNode(n))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *memoryNodeRepository) FindByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*model.MemoryNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		node  *model.MemoryNode
		score float64
	}

	var candidates []scored
	for _, n := range r.nodes {
		if len(n.Embedding) == 0 {
			continue
		}
		s := cosineSimilarity(embedding, n.Embedding)
		candidates = append(candidates, scored{node: copyMemoryNode(n), score: s})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// Tie-break: most recent first
		return candidates[i].node.CreatedAt.After(candidates[j].node.CreatedAt)
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	result := make([]*model.MemoryNode, limit)
	for i := 0; i < limit; i++ {
		result[i] = candidates[i].node
	}

	return result, nil
}

func (r *memoryNodeRepository) TouchAccess(ctx context.Context, ids []model.MemoryID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if node, exists := r.nodes[id]; exists {
			node.LastAccessedAt = at
		}
	}

	return nil
}
