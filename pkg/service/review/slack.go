package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// slackQueue posts escalation tickets to a Slack channel. The ticket ID
// is "<channel>:<message timestamp>", which uniquely addresses the
// message for follow-up.
type slackQueue struct {
	api       *slack.Client
	channelID string
}

// NewSlackQueue creates a ReviewQueue backed by a Slack channel
func NewSlackQueue(token, channelID string) (interfaces.ReviewQueue, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}
	if channelID == "" {
		return nil, goerr.New("Slack channel ID is required")
	}

	return &slackQueue{
		api:       slack.New(token),
		channelID: channelID,
	}, nil
}

func (q *slackQueue) Enqueue(ctx context.Context, req *interfaces.ReviewRequest) (string, error) {
	if req == nil {
		return "", goerr.New("review request is required")
	}

	blocks := buildTicketBlocks(req)
	fallbackText := fmt.Sprintf("Guidance escalated for review: turn %s", req.TurnID)

	channel, timestamp, err := q.api.PostMessageContext(ctx, q.channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fallbackText, false),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post review ticket",
			goerr.V("channelID", q.channelID),
			goerr.V("turnID", req.TurnID))
	}

	return channel + ":" + timestamp, nil
}

func buildTicketBlocks(req *interfaces.ReviewRequest) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, priorityEmoji(req.Priority)+" Guidance review needed", true, false),
		),
	}

	var fields []*slack.TextBlockObject
	fields = append(fields,
		slack.NewTextBlockObject(slack.MarkdownType, "*Turn:*\n"+string(req.TurnID), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Customer:*\n"+req.CustomerID, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Priority:*\n"+req.Priority.String(), false, false),
	)
	if r := req.Result; r != nil {
		fields = append(fields,
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Confidence:*\n%.2f", r.Confidence), false, false),
		)
	}
	blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))

	if req.GuidanceText != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*Draft guidance:*\n>"+truncate(req.GuidanceText, 2500), false, false),
			nil, nil,
		))
	}

	if r := req.Result; r != nil && len(r.Issues) > 0 {
		var lines []string
		for _, issue := range r.Issues {
			lines = append(lines, fmt.Sprintf("• [%s] %s: %s", issue.Severity, issue.Type, issue.Description))
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*Issues:*\n"+strings.Join(lines, "\n"), false, false),
			nil, nil,
		))
	}

	return blocks
}

func priorityEmoji(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return ":rotating_light:"
	case types.SeverityHigh:
		return ":warning:"
	default:
		return ":mag:"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
