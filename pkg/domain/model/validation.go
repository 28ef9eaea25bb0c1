package model

import (
	"time"

	"github.com/advisory-lab/themis/pkg/domain/types"
)

// ValidationIssue is a single problem found while validating guidance text
type ValidationIssue struct {
	Type        types.IssueType
	Description string
	Severity    types.Severity
}

// JudgeVerdict is one judge's evaluation of a guidance text. Raw prompts
// and completions are logged separately for later reconciliation.
type JudgeVerdict struct {
	JudgeName  string
	Passed     bool
	Confidence float64 // 0..1
	Issues     []ValidationIssue
	Reasoning  string
}

// ValidationResult is the validator's verdict for one guidance text.
// Results are immutable: a new validation attempt produces a new result.
type ValidationResult struct {
	Passed              bool
	Confidence          float64 // 0..1
	Source              types.ValidationSource
	State               types.ValidationState
	Issues              []ValidationIssue
	RequiresHumanReview bool
	JudgeDetails        []JudgeVerdict
	CreatedAt           time.Time
}

// NewRuleBasedRejection builds the result for a failed deterministic rule
// check. Rule violations are certain, not ambiguous: confidence is 1.0 and
// human review is never requested.
func NewRuleBasedRejection(issues []ValidationIssue) *ValidationResult {
	return &ValidationResult{
		Passed:              false,
		Confidence:          1.0,
		Source:              types.SourceRuleBased,
		State:               types.StateRejected,
		Issues:              issues,
		RequiresHumanReview: false,
		CreatedAt:           time.Now().UTC(),
	}
}

// NewConsensusResult builds the result of a judge consensus round, applying
// the confidence gate: below the threshold the result is escalated to human
// review regardless of the vote.
func NewConsensusResult(passed bool, confidence float64, issues []ValidationIssue, details []JudgeVerdict, threshold float64) *ValidationResult {
	r := &ValidationResult{
		Passed:       passed,
		Confidence:   confidence,
		Source:       types.SourceJudgeConsensus,
		Issues:       issues,
		JudgeDetails: details,
		CreatedAt:    time.Now().UTC(),
	}

	if confidence < threshold {
		r.RequiresHumanReview = true
		r.State = types.StateEscalated
		return r
	}

	if passed {
		r.State = types.StateApproved
	} else {
		r.State = types.StateRejected
	}
	return r
}

// Approved reports whether the guidance may be delivered without further
// action.
func (r *ValidationResult) Approved() bool {
	return r.State == types.StateApproved
}
