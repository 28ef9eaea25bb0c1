package rerank

import (
	"math"
	"sort"
	"strings"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Weights control the composite re-ranking score:
//
//	score = similarity*Similarity + phaseBonus*PhaseMatch + quality*Quality
//
// They must sum to 1.0.
type Weights struct {
	Similarity float64
	PhaseMatch float64
	Quality    float64
}

// DefaultWeights favor raw similarity while letting situational signals
// reorder near-ties.
func DefaultWeights() Weights {
	return Weights{
		Similarity: 0.6,
		PhaseMatch: 0.2,
		Quality:    0.2,
	}
}

const weightSumEpsilon = 1e-6

// Validate checks that the weights sum to 1.0
func (w Weights) Validate() error {
	sum := w.Similarity + w.PhaseMatch + w.Quality
	if math.Abs(sum-1.0) > weightSumEpsilon {
		return goerr.New("re-rank weights must sum to 1.0", goerr.V("sum", sum))
	}
	if w.Similarity < 0 || w.PhaseMatch < 0 || w.Quality < 0 {
		return goerr.New("re-rank weights must be non-negative")
	}
	return nil
}

// Reranker reorders case and rule candidates using conversational context
// on top of raw similarity. It is a pure function of its inputs: same
// candidates, weights and context always produce the same ordering, which
// audit replay depends on.
type Reranker struct {
	weights      Weights
	phaseDomains map[types.ConversationPhase][]string
}

// Option is a functional option for Reranker configuration
type Option func(*Reranker)

// WithPhaseDomains maps each conversation phase to the rule domains that
// count as a phase match
func WithPhaseDomains(m map[types.ConversationPhase][]string) Option {
	return func(r *Reranker) {
		r.phaseDomains = m
	}
}

// New creates a Reranker with validated weights
func New(weights Weights, opts ...Option) (*Reranker, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	r := &Reranker{
		weights: weights,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Rerank reorders the case and rule candidates of the retrieved context
// in place. Memories keep their similarity order. When the conversational
// context is absent or incomplete, candidates keep pure similarity
// ordering; that is graceful degradation, not an error.
func (r *Reranker) Rerank(rc *model.RetrievedContext) {
	if rc == nil {
		return
	}
	if !rc.Conversational.Usable() {
		return
	}

	rc.Cases = r.RerankCases(rc.Cases, rc.QueryEmbedding, rc.Conversational)
	rc.Rules = r.RerankRules(rc.Rules, rc.QueryEmbedding, rc.Conversational)
}

// RerankCases returns the cases reordered by composite score
func (r *Reranker) RerankCases(cases []*model.Case, queryEmbedding []float32, convCtx *model.ConversationalContext) []*model.Case {
	if len(cases) < 2 || !convCtx.Usable() {
		return cases
	}

	reordered := make([]*model.Case, len(cases))
	copy(reordered, cases)

	scores := make(map[model.CaseID]float64, len(reordered))
	for _, c := range reordered {
		similarity := cosineSimilarity(queryEmbedding, c.Embedding)
		phaseBonus := 0.0
		if caseMatchesPhase(c, convCtx.Phase) {
			phaseBonus = 1.0
		}
		scores[c.ID] = r.weights.Similarity*similarity +
			r.weights.PhaseMatch*phaseBonus +
			r.weights.Quality*c.QualityScore()
	}

	sort.SliceStable(reordered, func(i, j int) bool {
		return scores[reordered[i].ID] > scores[reordered[j].ID]
	})

	return reordered
}

// RerankRules returns the rules reordered by composite score. Rule
// quality is its confidence; phase match compares the rule domain against
// the configured domains for the current phase.
func (r *Reranker) RerankRules(rules []*model.Rule, queryEmbedding []float32, convCtx *model.ConversationalContext) []*model.Rule {
	if len(rules) < 2 || !convCtx.Usable() {
		return rules
	}

	reordered := make([]*model.Rule, len(rules))
	copy(reordered, rules)

	scores := make(map[model.RuleID]float64, len(reordered))
	for _, rule := range reordered {
		similarity := cosineSimilarity(queryEmbedding, rule.Embedding)
		phaseBonus := 0.0
		if r.ruleMatchesPhase(rule, convCtx.Phase) {
			phaseBonus = 1.0
		}
		scores[rule.ID] = r.weights.Similarity*similarity +
			r.weights.PhaseMatch*phaseBonus +
			r.weights.Quality*rule.Confidence
	}

	sort.SliceStable(reordered, func(i, j int) bool {
		return scores[reordered[i].ID] > scores[reordered[j].ID]
	})

	return reordered
}

// caseMatchesPhase compares a case's recorded task type against the
// current phase
func caseMatchesPhase(c *model.Case, phase types.ConversationPhase) bool {
	return strings.EqualFold(c.TaskType, phase.String())
}

func (r *Reranker) ruleMatchesPhase(rule *model.Rule, phase types.ConversationPhase) bool {
	for _, domain := range r.phaseDomains[phase] {
		if strings.EqualFold(rule.Domain, domain) {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
