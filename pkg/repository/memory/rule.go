package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type ruleRepository struct {
	mu    sync.RWMutex
	rules map[model.RuleID]*model.Rule
}

func newRuleRepository() *ruleRepository {
	return &ruleRepository{
		rules: make(map[model.RuleID]*model.Rule),
	}
}

func copyRule(r *model.Rule) *model.Rule {
	copied := &model.Rule{
		ID:            r.ID,
		PrincipleText: r.PrincipleText,
		Domain:        r.Domain,
		Confidence:    r.Confidence,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.SupportingEvidence != nil {
		copied.SupportingEvidence = make([]string, len(r.SupportingEvidence))
		copy(copied.SupportingEvidence, r.SupportingEvidence)
	}
	if r.Embedding != nil {
		copied.Embedding = make([]float32, len(r.Embedding))
		copy(copied.Embedding, r.Embedding)
	}
	return copied
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.Rule) (*model.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyRule(rule)
	if created.ID == "" {
		created.ID = model.NewRuleID()
	}
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	if created.UpdatedAt.IsZero() {
		created.UpdatedAt = now
	}

	r.rules[created.ID] = created
	return copyRule(created), nil
}

func (r *ruleRepository) Get(ctx context.Context, id model.RuleID) (*model.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, exists := r.rules[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "rule not found", goerr.V("ruleID", id))
	}

	return copyRule(rule), nil
}

func (r *ruleRepository) FindByEmbedding(ctx context.Context, embedding []float32, limit int, minConfidence float64) ([]*model.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		rule  *model.Rule
		score float64
	}

	// The confidence filter applies before ranking so limit returns the
	// best eligible rules.
	var candidates []scored
	for _, rule := range r.rules {
		if len(rule.Embedding) == 0 {
			continue
		}
		if rule.Confidence < minConfidence {
			continue
		}
		s := cosineSimilarity(embedding, rule.Embedding)
		candidates = append(candidates, scored{rule: copyRule(rule), score: s})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rule.CreatedAt.After(candidates[j].rule.CreatedAt)
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	result := make([]*model.Rule, limit)
	for i := 0; i < limit; i++ {
		result[i] = candidates[i].rule
	}

	return result, nil
}
