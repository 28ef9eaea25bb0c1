package compliance

import (
	"regexp"
	"strings"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// ProhibitedPattern is one directive-language rule. When the compiled
// pattern matches the guidance text, the check fails with the given
// description and severity.
type ProhibitedPattern struct {
	Pattern     *regexp.Regexp
	Description string
	Severity    types.Severity
}

// ProhibitedSpec is the configurable form of a ProhibitedPattern
type ProhibitedSpec struct {
	Pattern     string
	Description string
	Severity    types.Severity
}

// DisclosureRule requires certain phrases in the guidance whenever the
// customer profile carries the flag. Any one of the accepted phrases
// satisfies the requirement.
type DisclosureRule struct {
	Flag            string
	AcceptedPhrases []string
	Description     string
	Severity        types.Severity
}

// SignpostRule requires signposting language for out-of-scope situations
type SignpostRule struct {
	Flag            string
	AcceptedPhrases []string
	Description     string
	Severity        types.Severity
}

// defaultProhibitedSpecs are the directive-language patterns applied when
// no policy file overrides them. They target second-person personal
// recommendation phrasing, not general descriptions of options.
func defaultProhibitedSpecs() []ProhibitedSpec {
	return []ProhibitedSpec{
		{
			Pattern:     `(?i)\byou should (buy|sell|invest|transfer|switch|withdraw|move your)\b`,
			Description: "personal directive: tells the customer what to do with their money",
			Severity:    types.SeverityCritical,
		},
		{
			Pattern:     `(?i)\bI (recommend|advise|suggest) (that )?you\b`,
			Description: "personal recommendation phrasing",
			Severity:    types.SeverityCritical,
		},
		{
			Pattern:     `(?i)\b(the best|your best) (option|choice|investment) (for you )?is\b`,
			Description: "presents one option as the customer's best choice",
			Severity:    types.SeverityHigh,
		},
		{
			Pattern:     `(?i)\bguaranteed (return|profit|growth)\b`,
			Description: "guarantees an outcome",
			Severity:    types.SeverityCritical,
		},
	}
}

func defaultDisclosureRules() []DisclosureRule {
	return []DisclosureRule{
		{
			Flag: model.FlagHighRisk,
			AcceptedPhrases: []string{
				"capital is at risk",
				"value can go down as well as up",
				"you could get back less than you put in",
			},
			Description: "high-risk situation requires an explicit risk disclosure",
			Severity:    types.SeverityCritical,
		},
	}
}

func defaultSignpostRules() []SignpostRule {
	return []SignpostRule{
		{
			Flag: model.FlagOutOfScope,
			AcceptedPhrases: []string{
				"regulated financial adviser",
				"independent financial advice",
				"speak to an adviser",
			},
			Description: "out-of-scope situation requires signposting to regulated advice",
			Severity:    types.SeverityHigh,
		},
	}
}

// RuleChecker runs the deterministic first stage of validation. Checks
// run in a fixed order (prohibited directives, disclosures, signposting)
// and the first failing category short-circuits the rest: one certain
// violation is enough to reject, and the refined text is re-checked in
// full anyway.
type RuleChecker struct {
	prohibited  []ProhibitedPattern
	disclosures []DisclosureRule
	signposts   []SignpostRule
}

// RuleCheckerOption is a functional option for RuleChecker configuration
type RuleCheckerOption func(*RuleChecker)

// WithProhibitedSpecs replaces the default directive-language patterns
func WithProhibitedSpecs(specs []ProhibitedSpec) RuleCheckerOption {
	return func(c *RuleChecker) {
		c.prohibited = nil
		for _, spec := range specs {
			c.prohibited = append(c.prohibited, ProhibitedPattern{
				Pattern:     regexp.MustCompile(spec.Pattern),
				Description: spec.Description,
				Severity:    spec.Severity,
			})
		}
	}
}

// WithDisclosureRules replaces the default disclosure requirements
func WithDisclosureRules(rules []DisclosureRule) RuleCheckerOption {
	return func(c *RuleChecker) {
		c.disclosures = rules
	}
}

// WithSignpostRules replaces the default signposting requirements
func WithSignpostRules(rules []SignpostRule) RuleCheckerOption {
	return func(c *RuleChecker) {
		c.signposts = rules
	}
}

// NewRuleChecker creates a RuleChecker with the built-in policy unless
// overridden
func NewRuleChecker(opts ...RuleCheckerOption) (*RuleChecker, error) {
	c := &RuleChecker{}

	for _, spec := range defaultProhibitedSpecs() {
		c.prohibited = append(c.prohibited, ProhibitedPattern{
			Pattern:     regexp.MustCompile(spec.Pattern),
			Description: spec.Description,
			Severity:    spec.Severity,
		})
	}
	c.disclosures = defaultDisclosureRules()
	c.signposts = defaultSignpostRules()

	for _, opt := range opts {
		opt(c)
	}

	for _, d := range c.disclosures {
		if d.Flag == "" || len(d.AcceptedPhrases) == 0 {
			return nil, goerr.New("disclosure rule requires a flag and at least one accepted phrase")
		}
	}
	for _, s := range c.signposts {
		if s.Flag == "" || len(s.AcceptedPhrases) == 0 {
			return nil, goerr.New("signpost rule requires a flag and at least one accepted phrase")
		}
	}

	return c, nil
}

// Check runs the ordered rule table over the guidance text. A nil return
// means every rule passed.
func (c *RuleChecker) Check(guidance string, profile *model.CustomerProfile) []model.ValidationIssue {
	if issues := c.checkProhibited(guidance); len(issues) > 0 {
		return issues
	}
	if issues := c.checkDisclosures(guidance, profile); len(issues) > 0 {
		return issues
	}
	if issues := c.checkSignposts(guidance, profile); len(issues) > 0 {
		return issues
	}
	return nil
}

func (c *RuleChecker) checkProhibited(guidance string) []model.ValidationIssue {
	var issues []model.ValidationIssue
	for _, p := range c.prohibited {
		if p.Pattern.MatchString(guidance) {
			issues = append(issues, model.ValidationIssue{
				Type:        types.IssueProhibitedDirective,
				Description: p.Description,
				Severity:    p.Severity,
			})
		}
	}
	return issues
}

func (c *RuleChecker) checkDisclosures(guidance string, profile *model.CustomerProfile) []model.ValidationIssue {
	lowered := strings.ToLower(guidance)

	var issues []model.ValidationIssue
	for _, rule := range c.disclosures {
		if !profile.HasFlag(rule.Flag) {
			continue
		}
		if containsAny(lowered, rule.AcceptedPhrases) {
			continue
		}
		issues = append(issues, model.ValidationIssue{
			Type:        types.IssueMissingDisclosure,
			Description: rule.Description,
			Severity:    rule.Severity,
		})
	}
	return issues
}

func (c *RuleChecker) checkSignposts(guidance string, profile *model.CustomerProfile) []model.ValidationIssue {
	lowered := strings.ToLower(guidance)

	var issues []model.ValidationIssue
	for _, rule := range c.signposts {
		if !profile.HasFlag(rule.Flag) {
			continue
		}
		if containsAny(lowered, rule.AcceptedPhrases) {
			continue
		}
		issues = append(issues, model.ValidationIssue{
			Type:        types.IssueMissingSignpost,
			Description: rule.Description,
			Severity:    rule.Severity,
		})
	}
	return issues
}

func containsAny(lowered string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
