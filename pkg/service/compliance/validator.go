package compliance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrValidatorUnavailable is returned when too few judges respond to form
// a quorum. The caller must treat this as a failure to validate, never as
// a pass.
var ErrValidatorUnavailable = goerr.New("validator unavailable: judge quorum not reached")

const (
	DefaultConfidenceThreshold = 0.9
	DefaultJudgeTimeout        = 20 * time.Second
)

// Validator runs the two-stage compliance pipeline: a deterministic rule
// check first, then multi-judge consensus only for text that survives it.
type Validator struct {
	ruleChecker         *RuleChecker
	judges              []interfaces.Judge
	confidenceThreshold float64
	tiePasses           bool
	judgeTimeout        time.Duration
	quorum              int
}

// ValidatorOption is a functional option for Validator configuration
type ValidatorOption func(*Validator)

// WithConfidenceThreshold sets the consensus confidence below which
// results escalate to human review
func WithConfidenceThreshold(t float64) ValidatorOption {
	return func(v *Validator) {
		v.confidenceThreshold = t
	}
}

// WithTiePasses controls how a tied judge vote resolves. The default is
// fail-safe: a tie fails.
func WithTiePasses(tiePasses bool) ValidatorOption {
	return func(v *Validator) {
		v.tiePasses = tiePasses
	}
}

// WithJudgeTimeout sets the shared deadline for one consensus round
func WithJudgeTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.judgeTimeout = d
	}
}

// WithQuorum overrides the minimum number of responding judges. The
// default is a majority of the panel.
func WithQuorum(q int) ValidatorOption {
	return func(v *Validator) {
		v.quorum = q
	}
}

// NewValidator creates a Validator over the given rule checker and judge
// panel
func NewValidator(ruleChecker *RuleChecker, judges []interfaces.Judge, opts ...ValidatorOption) (*Validator, error) {
	if ruleChecker == nil {
		return nil, goerr.New("rule checker is required")
	}
	if len(judges) == 0 {
		return nil, goerr.New("at least one judge is required")
	}

	v := &Validator{
		ruleChecker:         ruleChecker,
		judges:              judges,
		confidenceThreshold: DefaultConfidenceThreshold,
		judgeTimeout:        DefaultJudgeTimeout,
		quorum:              len(judges)/2 + 1,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.confidenceThreshold < 0 || v.confidenceThreshold > 1 {
		return nil, goerr.New("confidence threshold must be in [0, 1]", goerr.V("threshold", v.confidenceThreshold))
	}
	if v.quorum < 1 || v.quorum > len(v.judges) {
		return nil, goerr.New("quorum must be between 1 and the panel size",
			goerr.V("quorum", v.quorum), goerr.V("judges", len(v.judges)))
	}
	if v.judgeTimeout <= 0 {
		return nil, goerr.New("judge timeout must be positive")
	}

	return v, nil
}

// Validate runs the full pipeline over one guidance text. A rule-check
// failure rejects without consulting the judges. rationale is the
// generation-side reasoning passed through to the judges.
func (v *Validator) Validate(ctx context.Context, guidance string, profile *model.CustomerProfile, rationale string) (*model.ValidationResult, error) {
	if issues := v.ruleChecker.Check(guidance, profile); len(issues) > 0 {
		logging.From(ctx).Info("guidance rejected by rule check", "issues", len(issues))
		return model.NewRuleBasedRejection(issues), nil
	}

	verdicts, err := v.runJudges(ctx, guidance, profile, rationale)
	if err != nil {
		return nil, err
	}

	passed, confidence, issues := consensus(verdicts, v.tiePasses)
	result := model.NewConsensusResult(passed, confidence, issues, dereference(verdicts), v.confidenceThreshold)

	logging.From(ctx).Info("judge consensus complete",
		"judges", len(verdicts),
		"passed", result.Passed,
		"confidence", result.Confidence,
		"state", result.State.String(),
	)

	return result, nil
}

// runJudges fans the evaluation out to the whole panel under one shared
// deadline. A failed or timed-out judge is dropped; below quorum the
// round fails with ErrValidatorUnavailable.
func (v *Validator) runJudges(ctx context.Context, guidance string, profile *model.CustomerProfile, rationale string) ([]*model.JudgeVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, v.judgeTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		verdicts []*model.JudgeVerdict
		wg       sync.WaitGroup
	)

	for _, judge := range v.judges {
		wg.Add(1)
		go func(j interfaces.Judge) {
			defer wg.Done()

			verdict, err := j.Evaluate(ctx, guidance, profile, rationale)
			if err != nil {
				logging.From(ctx).Warn("judge evaluation failed",
					"judge", j.Name(),
					"error", err.Error(),
				)
				return
			}

			mu.Lock()
			verdicts = append(verdicts, verdict)
			mu.Unlock()
		}(judge)
	}

	wg.Wait()

	// Completion order is nondeterministic; sort by name so audit records
	// are stable.
	sort.Slice(verdicts, func(i, j int) bool {
		return verdicts[i].JudgeName < verdicts[j].JudgeName
	})

	if len(verdicts) < v.quorum {
		return nil, goerr.Wrap(ErrValidatorUnavailable, "insufficient judge responses",
			goerr.V("responded", len(verdicts)),
			goerr.V("quorum", v.quorum),
			goerr.V("panel", len(v.judges)))
	}

	return verdicts, nil
}

func dereference(verdicts []*model.JudgeVerdict) []model.JudgeVerdict {
	out := make([]model.JudgeVerdict, len(verdicts))
	for i, v := range verdicts {
		out[i] = *v
	}
	return out
}
