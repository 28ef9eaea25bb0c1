package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type auditRepository struct {
	mu      sync.RWMutex
	records map[model.TurnID]*model.TurnAudit
}

func newAuditRepository() *auditRepository {
	return &auditRepository{
		records: make(map[model.TurnID]*model.TurnAudit),
	}
}

func copyAudit(a *model.TurnAudit) *model.TurnAudit {
	copied := *a
	if a.RetrievedContextIDs != nil {
		copied.RetrievedContextIDs = make([]string, len(a.RetrievedContextIDs))
		copy(copied.RetrievedContextIDs, a.RetrievedContextIDs)
	}
	return &copied
}

func (r *auditRepository) Put(ctx context.Context, audit *model.TurnAudit) error {
	if audit.TurnID == "" {
		return goerr.New("audit record requires a turn ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[audit.TurnID] = copyAudit(audit)
	return nil
}

func (r *auditRepository) Get(ctx context.Context, turnID model.TurnID) (*model.TurnAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[turnID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "audit record not found", goerr.V("turnID", turnID))
	}

	return copyAudit(record), nil
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]*model.TurnAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.TurnAudit, 0, len(r.records))
	for _, a := range r.records {
		result = append(result, copyAudit(a))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}
