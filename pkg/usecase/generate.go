package usecase

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

//go:embed prompt/guidance_system.md
var guidanceSystemPrompt string

// gollemGenerator implements interfaces.Generator on a gollem LLM client
type gollemGenerator struct {
	llmClient gollem.LLMClient
}

// NewGenerator creates an LLM-backed guidance generator
func NewGenerator(llmClient gollem.LLMClient) (interfaces.Generator, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &gollemGenerator{llmClient: llmClient}, nil
}

// Generate produces one guidance candidate. A transient provider failure
// is retried once before giving up.
func (g *gollemGenerator) Generate(ctx context.Context, req *interfaces.GenerationRequest) (*interfaces.Generation, error) {
	userPrompt := buildGenerationPrompt(req)
	schema := buildGenerationSchema()

	session, err := g.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(guidanceSystemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(userPrompt))
	if err != nil {
		logging.From(ctx).Warn("guidance generation failed, retrying once", "error", err.Error())
		resp, err = session.GenerateContent(ctx, gollem.Text(userPrompt))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to generate guidance")
		}
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("generator returned an empty response")
	}

	var raw struct {
		Guidance  string `json:"guidance"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(resp.Texts[0]), &raw); err != nil {
		return nil, goerr.Wrap(err, "failed to parse generation response", goerr.V("response", resp.Texts[0]))
	}
	if strings.TrimSpace(raw.Guidance) == "" {
		return nil, goerr.New("generator returned empty guidance text")
	}

	return &interfaces.Generation{
		Text:      raw.Guidance,
		Rationale: raw.Rationale,
	}, nil
}

func buildGenerationPrompt(req *interfaces.GenerationRequest) string {
	var sb strings.Builder

	sb.WriteString("## Customer message:\n\n")
	sb.WriteString(req.CustomerMessage)
	sb.WriteString("\n\n")

	if p := req.Profile; p != nil {
		sb.WriteString("## Customer profile:\n\n")
		fmt.Fprintf(&sb, "**Segment:** %s\n", p.Segment)
		if len(p.Flags) > 0 {
			fmt.Fprintf(&sb, "**Flags:** %s\n", strings.Join(p.Flags, ", "))
		}
		sb.WriteString("\n")
	}

	writeContextSections(&sb, req.Context)

	if len(req.PriorIssues) > 0 {
		sb.WriteString("## Revision required\n\n")
		sb.WriteString("A previous draft failed compliance validation. Rewrite the guidance so that every problem below is resolved while keeping the helpful substance:\n\n")
		for _, issue := range req.PriorIssues {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", issue.Severity, issue.Type, issue.Description)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeContextSections(sb *strings.Builder, rc *model.RetrievedContext) {
	if rc == nil {
		return
	}

	if conv := rc.Conversational; conv.Usable() {
		sb.WriteString("## Conversation state:\n\n")
		fmt.Fprintf(sb, "**Phase:** %s\n", conv.Phase)
		if es := conv.EmotionalState; es != nil {
			fmt.Fprintf(sb, "**Customer emotional state:** %s (confidence %.2f)\n", es.Label, es.Confidence)
			if ev := es.Evolution; ev != nil {
				fmt.Fprintf(sb, "**Emotional shift:** %s to %s\n", ev.From, ev.To)
			}
		}
		sb.WriteString("\n")
	}

	if len(rc.Memories) > 0 {
		sb.WriteString("## What we remember about this customer:\n\n")
		for _, m := range rc.Memories {
			fmt.Fprintf(sb, "- %s\n", m.Description)
		}
		sb.WriteString("\n")
	}

	if len(rc.Cases) > 0 {
		sb.WriteString("## Similar past consultations:\n\n")
		for i, c := range rc.Cases {
			fmt.Fprintf(sb, "### Consultation %d\n", i+1)
			fmt.Fprintf(sb, "**Situation:** %s\n", c.SituationText)
			fmt.Fprintf(sb, "**Guidance given:** %s\n\n", c.GuidanceText)
		}
	}

	if len(rc.Rules) > 0 {
		sb.WriteString("## Principles to follow:\n\n")
		for _, r := range rc.Rules {
			fmt.Fprintf(sb, "- %s\n", r.PrincipleText)
		}
		sb.WriteString("\n")
	}

	if rc.Degraded {
		sb.WriteString("## Note\n\n")
		sb.WriteString("Some context could not be retrieved for this turn. Be conservative: prefer general explanation over anything specific to this customer's history.\n\n")
	}
}

// buildGenerationSchema creates the JSON schema for structured output
func buildGenerationSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "GuidanceDraft",
		Description: "One draft guidance text with its internal rationale",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"guidance": {
				Type:        gollem.TypeString,
				Description: "The draft guidance text, ready to show the customer",
				Required:    true,
			},
			"rationale": {
				Type:        gollem.TypeString,
				Description: "Internal account of how the context shaped the draft",
				Required:    true,
			},
		},
	}
}
