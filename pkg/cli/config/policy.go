package config

import (
	"os"
	"regexp"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/service/cache"
	"github.com/advisory-lab/themis/pkg/service/compliance"
	"github.com/advisory-lab/themis/pkg/service/conversation"
	"github.com/advisory-lab/themis/pkg/service/rerank"
	"github.com/advisory-lab/themis/pkg/service/retrieval"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

// Policy is the validation policy loaded from a TOML file. It carries
// every operator-tunable knob of the pipeline; missing sections take the
// built-in defaults.
type Policy struct {
	Validator    ValidatorPolicy    `toml:"validator"`
	Prohibited   []ProhibitedRule   `toml:"prohibited"`
	Disclosure   []DisclosurePolicy `toml:"disclosure"`
	Signpost     []SignpostPolicy   `toml:"signpost"`
	Rerank       RerankPolicy       `toml:"rerank"`
	Retrieval    RetrievalPolicy    `toml:"retrieval"`
	Conversation ConversationPolicy `toml:"conversation"`
	Cache        CachePolicy        `toml:"cache"`
	Strategy     StrategyPolicy     `toml:"strategy"`
}

// ValidatorPolicy configures the judge panel and consensus
type ValidatorPolicy struct {
	Judges              int     `toml:"judges"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	TiePasses           bool    `toml:"tie_passes"`
	Quorum              int     `toml:"quorum"`
	JudgeTimeout        string  `toml:"judge_timeout"`
}

// ProhibitedRule is one configured directive-language pattern
type ProhibitedRule struct {
	Pattern     string `toml:"pattern"`
	Description string `toml:"description"`
	Severity    string `toml:"severity"`
}

// Validate checks if the ProhibitedRule is valid
func (r *ProhibitedRule) Validate() error {
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return goerr.Wrap(err, "invalid prohibited pattern", goerr.V("pattern", r.Pattern))
	}
	if r.Description == "" {
		return goerr.New("prohibited rule description is required", goerr.V("pattern", r.Pattern))
	}
	if _, err := types.ParseSeverity(r.Severity); err != nil {
		return goerr.Wrap(err, "invalid prohibited rule severity", goerr.V("pattern", r.Pattern))
	}
	return nil
}

// DisclosurePolicy requires phrases for a flagged customer situation
type DisclosurePolicy struct {
	Flag        string   `toml:"flag"`
	Phrases     []string `toml:"phrases"`
	Description string   `toml:"description"`
	Severity    string   `toml:"severity"`
}

// Validate checks if the DisclosurePolicy is valid
func (d *DisclosurePolicy) Validate() error {
	if d.Flag == "" {
		return goerr.New("disclosure flag is required")
	}
	if len(d.Phrases) == 0 {
		return goerr.New("disclosure requires at least one accepted phrase", goerr.V("flag", d.Flag))
	}
	if _, err := types.ParseSeverity(d.Severity); err != nil {
		return goerr.Wrap(err, "invalid disclosure severity", goerr.V("flag", d.Flag))
	}
	return nil
}

// SignpostPolicy requires signposting phrases for a flagged situation
type SignpostPolicy struct {
	Flag        string   `toml:"flag"`
	Phrases     []string `toml:"phrases"`
	Description string   `toml:"description"`
	Severity    string   `toml:"severity"`
}

// Validate checks if the SignpostPolicy is valid
func (s *SignpostPolicy) Validate() error {
	if s.Flag == "" {
		return goerr.New("signpost flag is required")
	}
	if len(s.Phrases) == 0 {
		return goerr.New("signpost requires at least one accepted phrase", goerr.V("flag", s.Flag))
	}
	if _, err := types.ParseSeverity(s.Severity); err != nil {
		return goerr.Wrap(err, "invalid signpost severity", goerr.V("flag", s.Flag))
	}
	return nil
}

// RerankPolicy configures composite re-ranking
type RerankPolicy struct {
	Similarity   float64             `toml:"similarity"`
	PhaseMatch   float64             `toml:"phase_match"`
	Quality      float64             `toml:"quality"`
	PhaseDomains map[string][]string `toml:"phase_domains"`
}

// RetrievalPolicy configures per-collection candidate limits
type RetrievalPolicy struct {
	TopK              int     `toml:"top_k"`
	MinRuleConfidence float64 `toml:"min_rule_confidence"`
}

// ConversationPolicy configures the state tracker
type ConversationPolicy struct {
	EvolutionDiscount float64   `toml:"evolution_discount"`
	OpeningTurns      int       `toml:"opening_turns"`
	ClosingTurns      int       `toml:"closing_turns"`
	Cues              []CueRule `toml:"cue"`
}

// CueRule is one configured emotional heuristic
type CueRule struct {
	Pattern    string  `toml:"pattern"`
	Label      string  `toml:"label"`
	Confidence float64 `toml:"confidence"`
}

// Validate checks if the CueRule is valid
func (c *CueRule) Validate() error {
	if _, err := regexp.Compile(c.Pattern); err != nil {
		return goerr.Wrap(err, "invalid cue pattern", goerr.V("pattern", c.Pattern))
	}
	if _, err := types.ParseEmotionLabel(c.Label); err != nil {
		return goerr.Wrap(err, "invalid cue label", goerr.V("pattern", c.Pattern))
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		return goerr.New("cue confidence must be in (0, 1]", goerr.V("pattern", c.Pattern))
	}
	return nil
}

// CachePolicy configures the hybrid strategy's validation cache
type CachePolicy struct {
	Size int    `toml:"size"`
	TTL  string `toml:"ttl"`
}

// StrategyPolicy selects the default validation strategy and the holding
// message text
type StrategyPolicy struct {
	Default        string `toml:"default"`
	HoldingMessage string `toml:"holding_message"`
}

// DefaultPolicy returns the policy applied when no file is given
func DefaultPolicy() *Policy {
	return &Policy{
		Validator: ValidatorPolicy{
			Judges:              3,
			ConfidenceThreshold: compliance.DefaultConfidenceThreshold,
			TiePasses:           false,
			Quorum:              2,
			JudgeTimeout:        "20s",
		},
		Rerank: RerankPolicy{
			Similarity: 0.6,
			PhaseMatch: 0.2,
			Quality:    0.2,
		},
		Retrieval: RetrievalPolicy{
			TopK:              retrieval.DefaultTopK,
			MinRuleConfidence: retrieval.DefaultMinRuleConfidence,
		},
		Conversation: ConversationPolicy{
			EvolutionDiscount: conversation.DefaultEvolutionDiscount,
			OpeningTurns:      conversation.DefaultOpeningTurns,
			ClosingTurns:      conversation.DefaultClosingTurns,
		},
		Cache: CachePolicy{
			Size: cache.DefaultSize,
			TTL:  "5m",
		},
		Strategy: StrategyPolicy{
			Default: types.StrategyPreStream.String(),
		},
	}
}

// LoadPolicy loads and validates a policy file. Empty path returns the
// default policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(ErrConfigNotFound, "failed to read policy file", goerr.V("path", path))
	}

	policy := DefaultPolicy()
	if err := toml.Unmarshal(data, policy); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML policy", goerr.V("path", path))
	}

	if err := policy.Validate(); err != nil {
		return nil, goerr.Wrap(err, "policy validation failed", goerr.V("path", path))
	}

	return policy, nil
}

// Validate checks if the Policy is valid
func (p *Policy) Validate() error {
	if p.Validator.Judges < 1 {
		return goerr.New("validator requires at least one judge", goerr.V("judges", p.Validator.Judges))
	}
	if p.Validator.Quorum < 1 || p.Validator.Quorum > p.Validator.Judges {
		return goerr.New("quorum must be between 1 and the judge count",
			goerr.V("quorum", p.Validator.Quorum), goerr.V("judges", p.Validator.Judges))
	}
	if p.Validator.ConfidenceThreshold < 0 || p.Validator.ConfidenceThreshold > 1 {
		return goerr.New("confidence threshold must be in [0, 1]",
			goerr.V("threshold", p.Validator.ConfidenceThreshold))
	}
	if _, err := p.JudgeTimeout(); err != nil {
		return err
	}

	for i := range p.Prohibited {
		if err := p.Prohibited[i].Validate(); err != nil {
			return goerr.Wrap(err, "invalid prohibited rule", goerr.V("index", i))
		}
	}

	seenDisclosure := make(map[string]bool)
	for i := range p.Disclosure {
		if err := p.Disclosure[i].Validate(); err != nil {
			return goerr.Wrap(err, "invalid disclosure", goerr.V("index", i))
		}
		if seenDisclosure[p.Disclosure[i].Flag] {
			return goerr.New("duplicate disclosure flag", goerr.V("flag", p.Disclosure[i].Flag))
		}
		seenDisclosure[p.Disclosure[i].Flag] = true
	}

	seenSignpost := make(map[string]bool)
	for i := range p.Signpost {
		if err := p.Signpost[i].Validate(); err != nil {
			return goerr.Wrap(err, "invalid signpost", goerr.V("index", i))
		}
		if seenSignpost[p.Signpost[i].Flag] {
			return goerr.New("duplicate signpost flag", goerr.V("flag", p.Signpost[i].Flag))
		}
		seenSignpost[p.Signpost[i].Flag] = true
	}

	if err := p.RerankWeights().Validate(); err != nil {
		return err
	}
	for phase := range p.Rerank.PhaseDomains {
		if _, err := types.ParseConversationPhase(phase); err != nil {
			return goerr.Wrap(err, "invalid phase in phase_domains", goerr.V("phase", phase))
		}
	}

	if p.Retrieval.TopK < 1 {
		return goerr.New("retrieval top_k must be a positive integer", goerr.V("top_k", p.Retrieval.TopK))
	}

	for i := range p.Conversation.Cues {
		if err := p.Conversation.Cues[i].Validate(); err != nil {
			return goerr.Wrap(err, "invalid conversation cue", goerr.V("index", i))
		}
	}

	if _, err := p.CacheTTL(); err != nil {
		return err
	}

	if p.Strategy.Default != "" {
		if _, err := types.ParseValidationStrategy(p.Strategy.Default); err != nil {
			return goerr.Wrap(err, "invalid default strategy", goerr.V("strategy", p.Strategy.Default))
		}
	}

	return nil
}

// JudgeTimeout parses the configured timeout
func (p *Policy) JudgeTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(p.Validator.JudgeTimeout)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid judge timeout", goerr.V("timeout", p.Validator.JudgeTimeout))
	}
	return d, nil
}

// CacheTTL parses the configured cache TTL
func (p *Policy) CacheTTL() (time.Duration, error) {
	d, err := time.ParseDuration(p.Cache.TTL)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid cache TTL", goerr.V("ttl", p.Cache.TTL))
	}
	return d, nil
}

// RerankWeights converts the rerank section into service weights
func (p *Policy) RerankWeights() rerank.Weights {
	return rerank.Weights{
		Similarity: p.Rerank.Similarity,
		PhaseMatch: p.Rerank.PhaseMatch,
		Quality:    p.Rerank.Quality,
	}
}

// PhaseDomains converts the configured phase-to-domain mapping
func (p *Policy) PhaseDomains() map[types.ConversationPhase][]string {
	if len(p.Rerank.PhaseDomains) == 0 {
		return nil
	}
	out := make(map[types.ConversationPhase][]string, len(p.Rerank.PhaseDomains))
	for phase, domains := range p.Rerank.PhaseDomains {
		out[types.ConversationPhase(phase)] = domains
	}
	return out
}

// RuleCheckerOptions converts the policy's deterministic rule sections
// into rule checker options. Absent sections keep the built-in rules.
func (p *Policy) RuleCheckerOptions() []compliance.RuleCheckerOption {
	var opts []compliance.RuleCheckerOption

	if len(p.Prohibited) > 0 {
		specs := make([]compliance.ProhibitedSpec, len(p.Prohibited))
		for i, r := range p.Prohibited {
			specs[i] = compliance.ProhibitedSpec{
				Pattern:     r.Pattern,
				Description: r.Description,
				Severity:    types.Severity(r.Severity),
			}
		}
		opts = append(opts, compliance.WithProhibitedSpecs(specs))
	}

	if len(p.Disclosure) > 0 {
		rules := make([]compliance.DisclosureRule, len(p.Disclosure))
		for i, d := range p.Disclosure {
			rules[i] = compliance.DisclosureRule{
				Flag:            d.Flag,
				AcceptedPhrases: d.Phrases,
				Description:     d.Description,
				Severity:        types.Severity(d.Severity),
			}
		}
		opts = append(opts, compliance.WithDisclosureRules(rules))
	}

	if len(p.Signpost) > 0 {
		rules := make([]compliance.SignpostRule, len(p.Signpost))
		for i, s := range p.Signpost {
			rules[i] = compliance.SignpostRule{
				Flag:            s.Flag,
				AcceptedPhrases: s.Phrases,
				Description:     s.Description,
				Severity:        types.Severity(s.Severity),
			}
		}
		opts = append(opts, compliance.WithSignpostRules(rules))
	}

	return opts
}

// TrackerOptions converts the conversation section into tracker options
func (p *Policy) TrackerOptions() []conversation.Option {
	opts := []conversation.Option{
		conversation.WithEvolutionDiscount(p.Conversation.EvolutionDiscount),
		conversation.WithPhaseTurns(p.Conversation.OpeningTurns, p.Conversation.ClosingTurns),
	}

	if len(p.Conversation.Cues) > 0 {
		specs := make([]conversation.CueSpec, len(p.Conversation.Cues))
		for i, c := range p.Conversation.Cues {
			specs[i] = conversation.CueSpec{
				Pattern:    c.Pattern,
				Label:      types.EmotionLabel(c.Label),
				Confidence: c.Confidence,
			}
		}
		opts = append(opts, conversation.WithCueSpecs(specs))
	}

	return opts
}

// DefaultStrategy returns the configured default strategy
func (p *Policy) DefaultStrategy() types.ValidationStrategy {
	return types.ValidationStrategy(p.Strategy.Default).Normalize()
}
