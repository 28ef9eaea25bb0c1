package usecase

import (
	"context"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// GetAudit returns the audit record for one turn
func (uc *UseCases) GetAudit(ctx context.Context, turnID model.TurnID) (*model.TurnAudit, error) {
	return uc.repo.Audit().Get(ctx, turnID)
}

// ListRecentAudits returns the most recent audit records, newest first
func (uc *UseCases) ListRecentAudits(ctx context.Context, limit int) ([]*model.TurnAudit, error) {
	return uc.repo.Audit().ListRecent(ctx, limit)
}
