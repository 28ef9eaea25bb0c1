package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/advisory-lab/themis/pkg/cli/config"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/service/compliance"
	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var policyPath string
	var text string
	var flagList string
	var rulesOnly bool
	var geminiCfg config.Gemini

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Path to the TOML validation policy file (built-in defaults when omitted)",
			Sources:     cli.EnvVars("THEMIS_POLICY"),
			Destination: &policyPath,
		},
		&cli.StringFlag{
			Name:        "text",
			Usage:       "Guidance text to validate (reads stdin when omitted)",
			Destination: &text,
		},
		&cli.StringFlag{
			Name:        "flags",
			Usage:       "Comma-separated customer profile flags (e.g. high_risk,out_of_scope)",
			Destination: &flagList,
		},
		&cli.BoolFlag{
			Name:        "rules-only",
			Usage:       "Run only the deterministic rule check, skipping judge consensus",
			Destination: &rulesOnly,
		},
	}
	flags = append(flags, geminiCfg.Flags()...)

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate one guidance text against the compliance policy",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			policy, err := config.LoadPolicy(policyPath)
			if err != nil {
				return goerr.Wrap(err, "failed to load validation policy")
			}

			if text == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return goerr.Wrap(err, "failed to read guidance text from stdin")
				}
				text = strings.TrimSpace(string(data))
			}
			if text == "" {
				return goerr.New("guidance text is required (use --text or stdin)")
			}

			profile := &model.CustomerProfile{}
			if flagList != "" {
				profile.Flags = strings.Split(flagList, ",")
				for i := range profile.Flags {
					profile.Flags[i] = strings.TrimSpace(profile.Flags[i])
				}
			}

			if rulesOnly {
				ruleChecker, err := compliance.NewRuleChecker(policy.RuleCheckerOptions()...)
				if err != nil {
					return goerr.Wrap(err, "failed to build rule checker")
				}
				issues := ruleChecker.Check(text, profile)
				if len(issues) > 0 {
					printVerdict(model.NewRuleBasedRejection(issues))
					return goerr.New("guidance failed rule check")
				}
				color.Green("PASS (rule check)")
				return nil
			}

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure LLM client (use --rules-only for offline validation)")
			}

			validator, err := buildValidator(policy, llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to build validator")
			}

			result, err := validator.Validate(ctx, text, profile, "")
			if err != nil {
				return goerr.Wrap(err, "validation failed")
			}

			printVerdict(result)
			if !result.Approved() {
				return goerr.New("guidance not approved", goerr.V("state", result.State.String()))
			}
			return nil
		},
	}
}

func printVerdict(result *model.ValidationResult) {
	switch {
	case result.Approved():
		color.Green("APPROVED")
	case result.RequiresHumanReview:
		color.Yellow("ESCALATED (requires human review)")
	default:
		color.Red("REJECTED")
	}

	fmt.Printf("  source:     %s\n", result.Source)
	fmt.Printf("  confidence: %.2f\n", result.Confidence)

	for _, issue := range result.Issues {
		severity := color.New(color.FgRed)
		switch issue.Severity.Rank() {
		case 1:
			severity = color.New(color.FgCyan)
		case 2:
			severity = color.New(color.FgYellow)
		}
		fmt.Printf("  - [%s] %s: %s\n", severity.Sprint(issue.Severity), issue.Type, issue.Description)
	}

	for _, verdict := range result.JudgeDetails {
		mark := color.GreenString("pass")
		if !verdict.Passed {
			mark = color.RedString("fail")
		}
		fmt.Printf("  %s: %s (%.2f)\n", verdict.JudgeName, mark, verdict.Confidence)
	}
}
