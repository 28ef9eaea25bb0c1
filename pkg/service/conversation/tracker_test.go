package conversation_test

import (
	"testing"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/service/conversation"
	"github.com/m-mizutani/gt"
)

func customerTurn(text string) model.Turn {
	return model.Turn{Role: model.RoleCustomer, Text: text}
}

func TestClassification(t *testing.T) {
	tracker, err := conversation.New()
	gt.NoError(t, err).Required()

	tests := []struct {
		name    string
		message string
		want    types.EmotionLabel
	}{
		{"anxious wording", "I'm really worried about losing my savings", types.EmotionAnxious},
		{"frustrated wording", "this is getting ridiculous, nothing works", types.EmotionFrustrated},
		{"positive wording", "thank you, that was really helpful", types.EmotionPositive},
		{"negative wording", "I'm quite disappointed with the outcome", types.EmotionNegative},
		{"plain question", "what is the difference between the two accounts", types.EmotionNeutral},
		{"ambiguous token reads anxious", "I have some concerns about the fees", types.EmotionAnxious},
		{"negated ambiguous token reads neutral", "no concerns from my side about the fees", types.EmotionNeutral},
		{"reinforced ambiguous token reads anxious", "I'm very concerned about the fees", types.EmotionAnxious},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tracker.Track([]model.Turn{customerTurn(tt.message)}, nil, 0)
			gt.Value(t, ctx.EmotionalState.Label).Equal(tt.want)
		})
	}
}

func TestEmotionEvolution(t *testing.T) {
	tracker, err := conversation.New()
	gt.NoError(t, err).Required()

	t.Run("shift between customer turns is recorded with discounted confidence", func(t *testing.T) {
		turns := []model.Turn{
			customerTurn("what are my options for the pension"),
			{Role: model.RoleAdvisor, Text: "here are the options"},
			customerTurn("I'm worried this is the wrong choice"),
		}

		ctx := tracker.Track(turns, nil, 0)
		gt.Value(t, ctx.EmotionalState.Label).Equal(types.EmotionAnxious)

		evo := ctx.EmotionalState.Evolution
		gt.Value(t, evo).NotNil()
		gt.Value(t, evo.From).Equal(types.EmotionNeutral)
		gt.Value(t, evo.To).Equal(types.EmotionAnxious)
		gt.Bool(t, evo.Confidence < ctx.EmotionalState.Confidence).True()
	})

	t.Run("stable state records no evolution", func(t *testing.T) {
		turns := []model.Turn{
			customerTurn("I'm worried about the market"),
			customerTurn("still worried, has anything changed"),
		}

		ctx := tracker.Track(turns, nil, 0)
		gt.Value(t, ctx.EmotionalState.Evolution).Nil()
	})
}

func TestPhase(t *testing.T) {
	tracker, err := conversation.New(conversation.WithPhaseTurns(2, 2))
	gt.NoError(t, err).Required()

	tests := []struct {
		name     string
		turns    int
		expected int
		want     types.ConversationPhase
	}{
		{"first turn is opening", 1, 10, types.PhaseOpening},
		{"boundary turn is opening", 2, 10, types.PhaseOpening},
		{"mid conversation", 5, 10, types.PhaseMiddle},
		{"near the end is closing", 9, 10, types.PhaseClosing},
		{"unknown total never closes", 9, 0, types.PhaseMiddle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := make([]model.Turn, tt.turns)
			for i := range turns {
				turns[i] = customerTurn("a message")
			}

			ctx := tracker.Track(turns, nil, tt.expected)
			gt.Value(t, ctx.Phase).Equal(tt.want)
		})
	}
}

func TestTrackerConfiguration(t *testing.T) {
	t.Run("custom cue table replaces defaults", func(t *testing.T) {
		tracker, err := conversation.New(conversation.WithCueSpecs([]conversation.CueSpec{
			{Pattern: `(?i)\bgutted\b`, Label: types.EmotionNegative, Confidence: 0.9},
		}))
		gt.NoError(t, err).Required()

		ctx := tracker.Track([]model.Turn{customerTurn("honestly I'm gutted about this")}, nil, 0)
		gt.Value(t, ctx.EmotionalState.Label).Equal(types.EmotionNegative)

		// Default cues are gone; formerly matching wording is neutral now.
		ctx = tracker.Track([]model.Turn{customerTurn("this is so frustrating")}, nil, 0)
		gt.Value(t, ctx.EmotionalState.Label).Equal(types.EmotionNeutral)
	})

	t.Run("invalid discount is rejected", func(t *testing.T) {
		_, err := conversation.New(conversation.WithEvolutionDiscount(1.5))
		gt.Error(t, err)
	})
}
