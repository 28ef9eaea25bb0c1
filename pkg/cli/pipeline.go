package cli

import (
	"fmt"

	"github.com/advisory-lab/themis/pkg/cli/config"
	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/service/compliance"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// buildValidator assembles the two-stage validator from the policy and
// one LLM client. Judges are independent panel members sharing the
// provider; their prompts and votes stay separate.
func buildValidator(policy *config.Policy, llmClient gollem.LLMClient) (*compliance.Validator, error) {
	ruleChecker, err := compliance.NewRuleChecker(policy.RuleCheckerOptions()...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build rule checker")
	}

	judges := make([]interfaces.Judge, 0, policy.Validator.Judges)
	for i := 0; i < policy.Validator.Judges; i++ {
		judge, err := compliance.NewJudge(fmt.Sprintf("judge-%d", i+1), llmClient)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build judge")
		}
		judges = append(judges, judge)
	}

	timeout, err := policy.JudgeTimeout()
	if err != nil {
		return nil, err
	}

	return compliance.NewValidator(ruleChecker, judges,
		compliance.WithConfidenceThreshold(policy.Validator.ConfidenceThreshold),
		compliance.WithTiePasses(policy.Validator.TiePasses),
		compliance.WithQuorum(policy.Validator.Quorum),
		compliance.WithJudgeTimeout(timeout),
	)
}
