package config

import (
	"log/slog"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/service/review"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Review holds CLI flags for the human review queue
type Review struct {
	slackBotToken  string
	slackChannelID string
	fallbackPath   string
}

// Flags returns CLI flags for review queue configuration
func (r *Review) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "review-slack-bot-token",
			Usage:       "Slack Bot User OAuth Token for the review queue",
			Category:    "Review",
			Sources:     cli.EnvVars("THEMIS_REVIEW_SLACK_BOT_TOKEN"),
			Destination: &r.slackBotToken,
		},
		&cli.StringFlag{
			Name:        "review-slack-channel",
			Usage:       "Slack channel ID receiving escalation tickets",
			Category:    "Review",
			Sources:     cli.EnvVars("THEMIS_REVIEW_SLACK_CHANNEL"),
			Destination: &r.slackChannelID,
		},
		&cli.StringFlag{
			Name:        "review-fallback-log",
			Usage:       "Path of the durable JSONL log for escalations the queue could not accept",
			Category:    "Review",
			Value:       "escalations.jsonl",
			Sources:     cli.EnvVars("THEMIS_REVIEW_FALLBACK_LOG"),
			Destination: &r.fallbackPath,
		},
	}
}

// LogValue returns the review configuration as a structured log value
func (r Review) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(r.slackBotToken)),
		slog.String("channel", r.slackChannelID),
		slog.String("fallback", r.fallbackPath),
	)
}

// Configure creates the review queue and fallback log. The queue is nil
// when Slack is not configured; escalations then go straight to the
// fallback log.
func (r *Review) Configure() (interfaces.ReviewQueue, *review.FallbackLog, error) {
	fallback, err := review.NewFallbackLog(r.fallbackPath)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize escalation fallback log")
	}

	if r.slackBotToken == "" || r.slackChannelID == "" {
		logging.Default().Warn("Slack review queue not configured, escalations go to the fallback log only")
		return nil, fallback, nil
	}

	queue, err := review.NewSlackQueue(r.slackBotToken, r.slackChannelID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize Slack review queue")
	}

	logging.Default().Info("Slack review queue enabled", "channel", r.slackChannelID)
	return queue, fallback, nil
}
