package compliance

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

//go:embed prompt/judge_system.md
var judgeSystemPrompt string

// llmJudge implements interfaces.Judge on top of a gollem LLM client.
// Multiple instances with different names and clients form the consensus
// panel.
type llmJudge struct {
	name      string
	llmClient gollem.LLMClient
}

// NewJudge creates an LLM-backed compliance judge
func NewJudge(name string, llmClient gollem.LLMClient) (interfaces.Judge, error) {
	if name == "" {
		return nil, goerr.New("judge name is required")
	}
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	return &llmJudge{
		name:      name,
		llmClient: llmClient,
	}, nil
}

func (j *llmJudge) Name() string {
	return j.name
}

// Evaluate asks the LLM for a structured verdict on the guidance text.
// The raw prompt and completion are logged at debug level for audit
// reconciliation.
func (j *llmJudge) Evaluate(ctx context.Context, guidance string, profile *model.CustomerProfile, rationale string) (*model.JudgeVerdict, error) {
	userPrompt := buildJudgePrompt(guidance, profile, rationale)
	schema := buildVerdictSchema()

	session, err := j.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(judgeSystemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session", goerr.V("judge", j.name))
	}

	logging.From(ctx).Debug("judge prompt", "judge", j.name, "prompt", userPrompt)

	resp, err := session.GenerateContent(ctx, gollem.Text(userPrompt))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate judge verdict", goerr.V("judge", j.name))
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("judge returned an empty response", goerr.V("judge", j.name))
	}

	logging.From(ctx).Debug("judge completion", "judge", j.name, "completion", resp.Texts[0])

	var raw verdictResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to parse judge verdict",
			goerr.V("judge", j.name),
			goerr.V("response", resp.Texts[0]))
	}

	return raw.toVerdict(j.name), nil
}

// verdictResponse is the wire shape of the structured judge output
type verdictResponse struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Issues     []struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Severity    string `json:"severity"`
	} `json:"issues"`
	Reasoning string `json:"reasoning"`
}

func (r *verdictResponse) toVerdict(name string) *model.JudgeVerdict {
	v := &model.JudgeVerdict{
		JudgeName:  name,
		Passed:     r.Passed,
		Confidence: clamp01(r.Confidence),
		Reasoning:  r.Reasoning,
	}

	for _, issue := range r.Issues {
		sev, err := types.ParseSeverity(strings.ToUpper(issue.Severity))
		if err != nil {
			sev = types.SeverityMedium
		}
		v.Issues = append(v.Issues, model.ValidationIssue{
			Type:        types.IssueType(issue.Type),
			Description: issue.Description,
			Severity:    sev,
		})
	}

	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func buildJudgePrompt(guidance string, profile *model.CustomerProfile, rationale string) string {
	var sb strings.Builder

	sb.WriteString("## Draft guidance to evaluate:\n\n")
	sb.WriteString(guidance)
	sb.WriteString("\n\n")

	if profile != nil {
		sb.WriteString("## Customer profile:\n\n")
		fmt.Fprintf(&sb, "**Segment:** %s\n", profile.Segment)
		if len(profile.Flags) > 0 {
			fmt.Fprintf(&sb, "**Flags:** %s\n", strings.Join(profile.Flags, ", "))
		}
		sb.WriteString("\n")
	}

	if rationale != "" {
		sb.WriteString("## Generation rationale:\n\n")
		sb.WriteString(rationale)
		sb.WriteString("\n")
	}

	return sb.String()
}

// buildVerdictSchema creates the JSON schema for structured output
func buildVerdictSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ComplianceVerdict",
		Description: "Verdict on whether the draft guidance is deliverable",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"passed": {
				Type:        gollem.TypeBoolean,
				Description: "True only if the draft is deliverable as-is",
				Required:    true,
			},
			"confidence": {
				Type:        gollem.TypeNumber,
				Description: "Confidence in the verdict, between 0.0 and 1.0",
				Required:    true,
			},
			"issues": {
				Type:        gollem.TypeArray,
				Description: "Problems found in the draft, empty when it passes cleanly",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"type": {
							Type:        gollem.TypeString,
							Description: "snake_case issue category",
							Required:    true,
						},
						"description": {
							Type:        gollem.TypeString,
							Description: "One-sentence description of the problem",
							Required:    true,
						},
						"severity": {
							Type:        gollem.TypeString,
							Description: "LOW, MEDIUM, HIGH or CRITICAL",
							Required:    true,
						},
					},
				},
			},
			"reasoning": {
				Type:        gollem.TypeString,
				Description: "Brief explanation of the verdict",
				Required:    true,
			},
		},
	}
}
