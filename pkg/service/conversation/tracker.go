package conversation

import (
	"regexp"
	"strings"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Cue is one emotional heuristic: when the pattern matches the customer
// utterance, the label applies with the given confidence. Cues are
// evaluated in order and the first match wins.
type Cue struct {
	Pattern    *regexp.Regexp
	Label      types.EmotionLabel
	Confidence float64
}

// CueSpec is the configurable form of a Cue before compilation
type CueSpec struct {
	Pattern    string
	Label      types.EmotionLabel
	Confidence float64
}

const (
	// DefaultEvolutionDiscount is applied to the confidence of an
	// emotional transition. A transition inferred from two independent
	// heuristic matches is weaker evidence than either match alone.
	DefaultEvolutionDiscount = 0.8

	DefaultOpeningTurns = 2
	DefaultClosingTurns = 2

	// ambiguousConfidence is assigned when an ambiguous token resolves
	// through its surrounding negation or reinforcement.
	ambiguousConfidence = 0.55

	neutralConfidence = 0.5
)

// defaultCueSpecs cover the signals the heuristic table handles without
// configuration. Order matters: stronger, more specific signals come
// first so they win over generic ones.
func defaultCueSpecs() []CueSpec {
	return []CueSpec{
		{Pattern: `(?i)\b(furious|fed up|sick of|outrageous|unacceptable)\b`, Label: types.EmotionFrustrated, Confidence: 0.9},
		{Pattern: `(?i)\b(frustrat(ed|ing)|annoy(ed|ing)|ridiculous)\b`, Label: types.EmotionFrustrated, Confidence: 0.8},
		{Pattern: `(?i)\b(worried|anxious|scared|afraid|nervous|panick(ed|ing))\b`, Label: types.EmotionAnxious, Confidence: 0.85},
		{Pattern: `(?i)\b(stress(ed|ful)|uneasy|losing sleep)\b`, Label: types.EmotionAnxious, Confidence: 0.7},
		{Pattern: `(?i)\b(thank(s| you)|great|wonderful|perfect|relieved|glad)\b`, Label: types.EmotionPositive, Confidence: 0.75},
		{Pattern: `(?i)\b(disappoint(ed|ing)|unhappy|upset)\b`, Label: types.EmotionNegative, Confidence: 0.75},
	}
}

// ambiguousTokens require surrounding context to resolve. "concerned" on
// its own reads anxious, but "not concerned" reads neutral and "very
// concerned" reads strongly anxious.
var (
	ambiguousPattern     = regexp.MustCompile(`(?i)\b(concern(s|ed)?|issue(s)?|problem(s)?)\b`)
	negationPattern      = regexp.MustCompile(`(?i)\b(no|not|never|without|don't|doesn't|isn't|aren't)\s+(\w+\s+){0,2}(concern(s|ed)?|issue(s)?|problem(s)?)\b`)
	reinforcementPattern = regexp.MustCompile(`(?i)\b(very|really|extremely|seriously|deeply|so)\s+(concern(s|ed)?|worried)\b`)
)

// Tracker infers the conversation phase from turn counts and the
// customer's emotional state from an ordered heuristic cue table. It
// holds no per-conversation state; callers pass the transcript each turn.
type Tracker struct {
	cues              []Cue
	evolutionDiscount float64
	openingTurns      int
	closingTurns      int
}

// Option is a functional option for Tracker configuration
type Option func(*Tracker)

// WithCueSpecs replaces the default heuristic table
func WithCueSpecs(specs []CueSpec) Option {
	return func(t *Tracker) {
		t.cues = nil
		for _, spec := range specs {
			t.cues = append(t.cues, Cue{
				Pattern:    regexp.MustCompile(spec.Pattern),
				Label:      spec.Label,
				Confidence: spec.Confidence,
			})
		}
	}
}

// WithEvolutionDiscount sets the multiplier applied to transition
// confidence
func WithEvolutionDiscount(d float64) Option {
	return func(t *Tracker) {
		t.evolutionDiscount = d
	}
}

// WithPhaseTurns sets the turn counts that bound the opening and closing
// phases
func WithPhaseTurns(opening, closing int) Option {
	return func(t *Tracker) {
		t.openingTurns = opening
		t.closingTurns = closing
	}
}

// New creates a Tracker. Configured cue patterns are compiled eagerly so
// a bad pattern fails at startup, not mid-conversation.
func New(opts ...Option) (*Tracker, error) {
	t := &Tracker{
		evolutionDiscount: DefaultEvolutionDiscount,
		openingTurns:      DefaultOpeningTurns,
		closingTurns:      DefaultClosingTurns,
	}

	for _, spec := range defaultCueSpecs() {
		t.cues = append(t.cues, Cue{
			Pattern:    regexp.MustCompile(spec.Pattern),
			Label:      spec.Label,
			Confidence: spec.Confidence,
		})
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.evolutionDiscount <= 0 || t.evolutionDiscount > 1 {
		return nil, goerr.New("evolution discount must be in (0, 1]", goerr.V("discount", t.evolutionDiscount))
	}
	if t.openingTurns < 0 || t.closingTurns < 0 {
		return nil, goerr.New("phase turn thresholds must be non-negative")
	}

	return t, nil
}

// Track builds the conversational context for the current turn from the
// transcript so far and the customer profile. The last turn in the
// transcript is the utterance being answered.
func (t *Tracker) Track(turns []model.Turn, profile *model.CustomerProfile, expectedTotal int) *model.ConversationalContext {
	ctx := &model.ConversationalContext{
		Phase:           t.phase(len(turns), expectedTotal),
		TurnsCount:      len(turns),
		CustomerProfile: profile,
	}

	current := t.classify(lastCustomerMessage(turns, 0))
	ctx.EmotionalState = &current

	// Evolution compares the current customer message against the
	// previous one.
	previous := t.classify(lastCustomerMessage(turns, 1))
	if previous.Label != current.Label {
		ctx.EmotionalState.Evolution = &model.EmotionEvolution{
			From:       previous.Label,
			To:         current.Label,
			Confidence: min(previous.Confidence, current.Confidence) * t.evolutionDiscount,
		}
	}

	return ctx
}

// phase maps turn counts onto OPENING, MIDDLE or CLOSING. When the
// expected total is unknown (zero), the conversation never reaches
// CLOSING by count alone.
func (t *Tracker) phase(turnsSoFar, expectedTotal int) types.ConversationPhase {
	if turnsSoFar <= t.openingTurns {
		return types.PhaseOpening
	}
	if expectedTotal > 0 && turnsSoFar > expectedTotal-t.closingTurns {
		return types.PhaseClosing
	}
	return types.PhaseMiddle
}

// classify runs the heuristic table over one message. An unmatched
// message is neutral with baseline confidence.
func (t *Tracker) classify(message string) model.EmotionalState {
	if strings.TrimSpace(message) == "" {
		return model.EmotionalState{Label: types.EmotionNeutral, Confidence: neutralConfidence}
	}

	for _, cue := range t.cues {
		if cue.Pattern.MatchString(message) {
			return model.EmotionalState{Label: cue.Label, Confidence: cue.Confidence}
		}
	}

	if ambiguousPattern.MatchString(message) {
		return resolveAmbiguous(message)
	}

	return model.EmotionalState{Label: types.EmotionNeutral, Confidence: neutralConfidence}
}

// resolveAmbiguous disambiguates tokens like "concerned" using nearby
// negation or reinforcement. Negation wins over reinforcement when both
// appear.
func resolveAmbiguous(message string) model.EmotionalState {
	if negationPattern.MatchString(message) {
		return model.EmotionalState{Label: types.EmotionNeutral, Confidence: ambiguousConfidence}
	}
	if reinforcementPattern.MatchString(message) {
		return model.EmotionalState{Label: types.EmotionAnxious, Confidence: 0.75}
	}
	return model.EmotionalState{Label: types.EmotionAnxious, Confidence: ambiguousConfidence}
}

// lastCustomerMessage returns the text of the nth most recent customer
// turn (0 = latest). Empty string when there is no such turn.
func lastCustomerMessage(turns []model.Turn, nth int) string {
	seen := 0
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != model.RoleCustomer {
			continue
		}
		if seen == nth {
			return turns[i].Text
		}
		seen++
	}
	return ""
}
