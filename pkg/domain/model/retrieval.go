package model

// Collection names used by retrieval and audit records
const (
	CollectionMemories = "memories"
	CollectionCases    = "cases"
	CollectionRules    = "rules"
)

// RetrievedContext is the per-request bundle of candidates from the three
// collections plus the conversational context that retrieved them. It is
// consumed once by generation and discarded.
type RetrievedContext struct {
	Memories       []*MemoryNode
	Cases          []*Case
	Rules          []*Rule
	Conversational *ConversationalContext

	// QueryEmbedding is the embedded customer utterance that retrieved the
	// candidates. The re-ranker recomputes raw similarity from it so that
	// re-ranking stays a pure function of its inputs.
	QueryEmbedding []float32

	// Degraded is set when one or more collections failed to retrieve.
	// The remaining collections are still served (partial context beats
	// no context), but the failure is surfaced for audit.
	Degraded            bool
	DegradedCollections []string
}

// IsEmpty reports whether nothing at all was retrieved
func (r *RetrievedContext) IsEmpty() bool {
	return len(r.Memories) == 0 && len(r.Cases) == 0 && len(r.Rules) == 0
}

// ContextIDs returns the IDs of every retrieved record, for the per-turn
// audit record.
func (r *RetrievedContext) ContextIDs() []string {
	ids := make([]string, 0, len(r.Memories)+len(r.Cases)+len(r.Rules))
	for _, m := range r.Memories {
		ids = append(ids, string(m.ID))
	}
	for _, c := range r.Cases {
		ids = append(ids, string(c.ID))
	}
	for _, rule := range r.Rules {
		ids = append(ids, string(rule.ID))
	}
	return ids
}
