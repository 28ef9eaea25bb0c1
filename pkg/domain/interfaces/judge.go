package interfaces

import (
	"context"

	"github.com/advisory-lab/themis/pkg/domain/model"
)

// Judge is one independent compliance evaluator. Concrete judges are
// provider variants selected by configuration; the validator only sees
// this interface.
type Judge interface {
	// Name identifies the judge in verdict details and logs
	Name() string

	// Evaluate scores a candidate guidance text against the guidance vs.
	// advice boundary. rationale is the generation-side reasoning handed
	// to the judge for context.
	Evaluate(ctx context.Context, guidance string, profile *model.CustomerProfile, rationale string) (*model.JudgeVerdict, error)
}
