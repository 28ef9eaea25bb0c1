package model

import (
	"time"

	"github.com/google/uuid"
)

// RuleID is a UUID-based identifier for Rule
type RuleID string

// NewRuleID generates a new UUID v4 RuleID
func NewRuleID() RuleID {
	return RuleID(uuid.New().String())
}

// Rule is a distilled, reusable guidance principle. Confidence moves as
// evidence accumulates, but that mutation belongs to the external learning
// process; this core only reads rules.
type Rule struct {
	ID                 RuleID
	PrincipleText      string
	Domain             string
	Confidence         float64 // 0..1
	SupportingEvidence []string
	Embedding          []float32
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasEmbedding reports whether the rule is eligible for vector search
func (r *Rule) HasEmbedding() bool {
	return len(r.Embedding) > 0
}
