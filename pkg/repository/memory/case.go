package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type caseRepository struct {
	mu    sync.RWMutex
	cases map[model.CaseID]*model.Case
}

func newCaseRepository() *caseRepository {
	return &caseRepository{
		cases: make(map[model.CaseID]*model.Case),
	}
}

func copyCase(c *model.Case) *model.Case {
	copied := &model.Case{
		ID:            c.ID,
		SituationText: c.SituationText,
		GuidanceText:  c.GuidanceText,
		TaskType:      c.TaskType,
		HasEmbedding:  c.HasEmbedding,
		CreatedAt:     c.CreatedAt,
	}
	if c.Embedding != nil {
		copied.Embedding = make([]float32, len(c.Embedding))
		copy(copied.Embedding, c.Embedding)
	}
	if c.Outcome != nil {
		copied.Outcome = make(map[string]any, len(c.Outcome))
		for k, v := range c.Outcome {
			copied.Outcome[k] = v
		}
	}
	return copied
}

func (r *caseRepository) Create(ctx context.Context, c *model.Case) (*model.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyCase(c)
	if created.ID == "" {
		created.ID = model.NewCaseID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	created.HasEmbedding = len(created.Embedding) > 0

	r.cases[created.ID] = created
	return copyCase(created), nil
}

func (r *caseRepository) Get(ctx context.Context, id model.CaseID) (*model.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.cases[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "case not found", goerr.V("caseID", id))
	}

	return copyCase(c), nil
}

func (r *caseRepository) FindByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*model.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		c     *model.Case
		score float64
	}

	var candidates []scored
	for _, c := range r.cases {
		if !c.HasEmbedding || len(c.Embedding) == 0 {
			continue
		}
		s := cosineSimilarity(embedding, c.Embedding)
		candidates = append(candidates, scored{c: copyCase(c), score: s})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].c.CreatedAt.After(candidates[j].c.CreatedAt)
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	result := make([]*model.Case, limit)
	for i := 0; i < limit; i++ {
		result[i] = candidates[i].c
	}

	return result, nil
}
