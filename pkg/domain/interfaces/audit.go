package interfaces

import (
	"context"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// AuditRepository defines the interface for per-turn audit records
type AuditRepository interface {
	// Put persists an audit record. Records are write-once per turn; a
	// later Put for the same turn ID overwrites (post-stream validation
	// completes the record after delivery).
	Put(ctx context.Context, audit *model.TurnAudit) error

	// Get retrieves an audit record by turn ID
	Get(ctx context.Context, turnID model.TurnID) (*model.TurnAudit, error)

	// ListRecent retrieves the most recent audit records
	ListRecent(ctx context.Context, limit int) ([]*model.TurnAudit, error)
}
