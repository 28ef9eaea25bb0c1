package model

// Well-known customer profile flags consumed by the deterministic rule
// checks. Flags originate from the surrounding service layer.
const (
	// FlagHighRisk marks a situation requiring explicit risk disclosures.
	FlagHighRisk = "high_risk"

	// FlagOutOfScope marks a situation outside the guidance boundary where
	// the customer must be signposted to regulated advice.
	FlagOutOfScope = "out_of_scope"

	// FlagVulnerable marks a customer needing extra-careful wording.
	FlagVulnerable = "vulnerable"
)

// CustomerProfile is a point-in-time snapshot of what is known about the
// customer for this turn. It is provided by the caller and never persisted
// by this core.
type CustomerProfile struct {
	CustomerID string
	Segment    string
	Flags      []string
	Attributes map[string]string `masq:"secret"`
}

// HasFlag reports whether the profile carries the given flag
func (p *CustomerProfile) HasFlag(flag string) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
