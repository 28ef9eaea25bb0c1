package model

import (
	"time"

	"github.com/google/uuid"
)

// CaseID is a UUID-based identifier for Case
type CaseID string

// NewCaseID generates a new UUID v4 CaseID
func NewCaseID() CaseID {
	return CaseID(uuid.New().String())
}

// OutcomeQualityKey is the outcome map key holding the recorded quality
// score in [0,1] for a past consultation.
const OutcomeQualityKey = "quality"

// NeutralQuality is used when a case has no recorded outcome. A case we
// know nothing about is neither boosted nor penalized.
const NeutralQuality = 0.5

// Case is a past consultation excerpt paired with the guidance given and
// its optional recorded outcome. Immutable once embedded; created by the
// offline learning process.
type Case struct {
	ID            CaseID
	SituationText string `masq:"secret"`
	GuidanceText  string `masq:"secret"`
	TaskType      string
	Embedding     []float32
	Outcome       map[string]any
	HasEmbedding  bool
	CreatedAt     time.Time
}

// QualityScore returns the recorded outcome quality clamped to [0,1], or
// NeutralQuality when no outcome (or no usable quality value) is recorded.
func (c *Case) QualityScore() float64 {
	if c.Outcome == nil {
		return NeutralQuality
	}

	v, ok := c.Outcome[OutcomeQualityKey]
	if !ok {
		return NeutralQuality
	}

	var q float64
	switch n := v.(type) {
	case float64:
		q = n
	case float32:
		q = float64(n)
	case int:
		q = float64(n)
	case int64:
		q = float64(n)
	default:
		return NeutralQuality
	}

	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}
