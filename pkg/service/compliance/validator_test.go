package compliance_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/service/compliance"
	"github.com/m-mizutani/gt"
)

type mockJudge struct {
	name    string
	verdict *model.JudgeVerdict
	err     error
	calls   atomic.Int64
}

func (j *mockJudge) Name() string { return j.name }

func (j *mockJudge) Evaluate(ctx context.Context, guidance string, profile *model.CustomerProfile, rationale string) (*model.JudgeVerdict, error) {
	j.calls.Add(1)
	if j.err != nil {
		return nil, j.err
	}
	v := *j.verdict
	v.JudgeName = j.name
	return &v, nil
}

func passingJudge(name string, confidence float64) *mockJudge {
	return &mockJudge{name: name, verdict: &model.JudgeVerdict{Passed: true, Confidence: confidence}}
}

func failingJudge(name string, confidence float64, issues ...model.ValidationIssue) *mockJudge {
	return &mockJudge{name: name, verdict: &model.JudgeVerdict{Passed: false, Confidence: confidence, Issues: issues}}
}

func newValidator(t *testing.T, judges []*mockJudge, opts ...compliance.ValidatorOption) *compliance.Validator {
	t.Helper()

	checker, err := compliance.NewRuleChecker()
	gt.NoError(t, err).Required()

	panel := make([]interfaces.Judge, len(judges))
	for i, j := range judges {
		panel[i] = j
	}

	v, err := compliance.NewValidator(checker, panel, opts...)
	gt.NoError(t, err).Required()
	return v
}

const compliantGuidance = "Generally speaking, diversified funds spread risk across many holdings."

func TestValidateRuleRejection(t *testing.T) {
	judges := []*mockJudge{passingJudge("a", 0.99), passingJudge("b", 0.99), passingJudge("c", 0.99)}
	v := newValidator(t, judges)

	result, err := v.Validate(context.Background(), "You should buy this fund today.", nil, "")
	gt.NoError(t, err).Required()

	gt.Value(t, result.State).Equal(types.StateRejected)
	gt.Value(t, result.Source).Equal(types.SourceRuleBased)
	gt.Value(t, result.Confidence).Equal(1.0)
	gt.Bool(t, result.RequiresHumanReview).False()

	// A deterministic rejection never reaches the panel.
	for _, j := range judges {
		gt.Value(t, j.calls.Load()).Equal(int64(0))
	}
}

func TestValidateConsensus(t *testing.T) {
	t.Run("unanimous pass approves", func(t *testing.T) {
		v := newValidator(t, []*mockJudge{
			passingJudge("a", 0.97),
			passingJudge("b", 0.95),
			passingJudge("c", 0.93),
		})

		result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.NoError(t, err).Required()

		gt.Value(t, result.State).Equal(types.StateApproved)
		gt.Value(t, result.Source).Equal(types.SourceJudgeConsensus)
		gt.Bool(t, result.Approved()).True()
		gt.Array(t, result.JudgeDetails).Length(3)
	})

	t.Run("majority fail rejects", func(t *testing.T) {
		issue := model.ValidationIssue{
			Type:        types.IssueUnsupportedClaim,
			Description: "return figure has no source",
			Severity:    types.SeverityHigh,
		}
		v := newValidator(t, []*mockJudge{
			failingJudge("a", 0.95, issue),
			failingJudge("b", 0.92, issue),
			passingJudge("c", 0.96),
		})

		result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.NoError(t, err).Required()

		gt.Value(t, result.State).Equal(types.StateRejected)
		gt.Bool(t, result.Passed).False()
	})

	t.Run("tie fails by default", func(t *testing.T) {
		v := newValidator(t, []*mockJudge{
			passingJudge("a", 0.95),
			failingJudge("b", 0.95),
		}, compliance.WithQuorum(2))

		result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.NoError(t, err).Required()
		gt.Bool(t, result.Passed).False()
	})

	t.Run("tie passes when configured", func(t *testing.T) {
		v := newValidator(t, []*mockJudge{
			passingJudge("a", 0.95),
			failingJudge("b", 0.95),
		}, compliance.WithQuorum(2), compliance.WithTiePasses(true))

		result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.NoError(t, err).Required()
		gt.Bool(t, result.Passed).True()
	})

	t.Run("low mean confidence escalates despite a passing vote", func(t *testing.T) {
		v := newValidator(t, []*mockJudge{
			passingJudge("a", 0.95),
			passingJudge("b", 0.92),
			passingJudge("c", 0.40),
		})

		result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.NoError(t, err).Required()

		gt.Value(t, result.State).Equal(types.StateEscalated)
		gt.Bool(t, result.RequiresHumanReview).True()
		gt.Bool(t, result.Approved()).False()
		gt.Bool(t, result.Confidence < compliance.DefaultConfidenceThreshold).True()
	})

	t.Run("verdicts are ordered by judge name", func(t *testing.T) {
		v := newValidator(t, []*mockJudge{
			passingJudge("charlie", 0.95),
			passingJudge("alpha", 0.95),
			passingJudge("bravo", 0.95),
		})

		result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.NoError(t, err).Required()

		gt.Array(t, result.JudgeDetails).Length(3)
		gt.Value(t, result.JudgeDetails[0].JudgeName).Equal("alpha")
		gt.Value(t, result.JudgeDetails[1].JudgeName).Equal("bravo")
		gt.Value(t, result.JudgeDetails[2].JudgeName).Equal("charlie")
	})
}

func TestValidateIssueMerge(t *testing.T) {
	shared := model.ValidationIssue{
		Type:        types.IssueBoundaryConcern,
		Description: "reads close to a personal recommendation",
	}
	low := shared
	low.Severity = types.SeverityLow
	high := shared
	high.Severity = types.SeverityHigh
	distinct := model.ValidationIssue{
		Type:        types.IssueUnsupportedClaim,
		Description: "performance figure unsupported",
		Severity:    types.SeverityMedium,
	}

	v := newValidator(t, []*mockJudge{
		failingJudge("a", 0.95, low),
		failingJudge("b", 0.95, high, distinct),
		failingJudge("c", 0.95, low),
	})

	result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
	gt.NoError(t, err).Required()

	// Duplicate issues collapse to one entry carrying the worst severity.
	gt.Array(t, result.Issues).Length(2)
	for _, issue := range result.Issues {
		if issue.Type == types.IssueBoundaryConcern {
			gt.Value(t, issue.Severity).Equal(types.SeverityHigh)
		}
	}
}

func TestValidateQuorum(t *testing.T) {
	t.Run("below quorum returns unavailable", func(t *testing.T) {
		v := newValidator(t, []*mockJudge{
			passingJudge("a", 0.95),
			{name: "b", err: errors.New("upstream timeout")},
			{name: "c", err: errors.New("upstream timeout")},
		})

		_, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, compliance.ErrValidatorUnavailable)).True()
	})

	t.Run("degraded panel above quorum still decides", func(t *testing.T) {
		v := newValidator(t, []*mockJudge{
			passingJudge("a", 0.95),
			passingJudge("b", 0.93),
			{name: "c", err: errors.New("upstream timeout")},
		})

		result, err := v.Validate(context.Background(), compliantGuidance, nil, "")
		gt.NoError(t, err).Required()

		gt.Value(t, result.State).Equal(types.StateApproved)
		gt.Array(t, result.JudgeDetails).Length(2)
	})
}

func TestValidatorConfiguration(t *testing.T) {
	checker, err := compliance.NewRuleChecker()
	gt.NoError(t, err).Required()

	panel := []interfaces.Judge{passingJudge("a", 0.9)}

	t.Run("requires judges", func(t *testing.T) {
		_, err := compliance.NewValidator(checker, nil)
		gt.Error(t, err)
	})

	t.Run("rejects out-of-range threshold", func(t *testing.T) {
		_, err := compliance.NewValidator(checker, panel, compliance.WithConfidenceThreshold(1.5))
		gt.Error(t, err)
	})

	t.Run("rejects quorum above panel size", func(t *testing.T) {
		_, err := compliance.NewValidator(checker, panel, compliance.WithQuorum(2))
		gt.Error(t, err)
	})
}
