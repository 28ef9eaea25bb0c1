package types

// IssueType classifies a compliance validation issue. The set is open:
// deterministic rule checks emit the constants below, while judge
// evaluations may report additional provider-defined types.
type IssueType string

const (
	// IssueProhibitedDirective means the guidance contains personal
	// directive language that crosses the guidance/advice boundary.
	IssueProhibitedDirective IssueType = "prohibited_directive"

	// IssueMissingDisclosure means a required disclosure is absent for a
	// flagged customer situation.
	IssueMissingDisclosure IssueType = "missing_disclosure"

	// IssueMissingSignpost means the guidance fails to signpost the
	// customer to regulated advice for an out-of-scope situation.
	IssueMissingSignpost IssueType = "missing_signpost"

	// IssueBoundaryConcern is a judge-reported concern that the guidance
	// leans toward personal recommendation.
	IssueBoundaryConcern IssueType = "boundary_concern"

	// IssueUnsupportedClaim is a judge-reported concern about factual or
	// suitability claims the retrieved context does not support.
	IssueUnsupportedClaim IssueType = "unsupported_claim"
)

// IsKnown reports whether the issue type is one of the built-in constants
func (t IssueType) IsKnown() bool {
	switch t {
	case IssueProhibitedDirective,
		IssueMissingDisclosure,
		IssueMissingSignpost,
		IssueBoundaryConcern,
		IssueUnsupportedClaim:
		return true
	default:
		return false
	}
}

// String returns the string representation of the issue type
func (t IssueType) String() string {
	return string(t)
}
