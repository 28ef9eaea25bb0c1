package memory

import (
	"github.com/advisory-lab/themis/pkg/domain/interfaces"
)

// Memory is the in-process repository backend used for development and
// tests. Each collection mirrors the Firestore backend's behavior,
// including cosine vector search.
type Memory struct {
	memory *memoryNodeRepository
	cases  *caseRepository
	rules  *ruleRepository
	audit  *auditRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		memory: newMemoryNodeRepository(),
		cases:  newCaseRepository(),
		rules:  newRuleRepository(),
		audit:  newAuditRepository(),
	}
}

func (m *Memory) Memory() interfaces.MemoryRepository {
	return m.memory
}

func (m *Memory) Case() interfaces.CaseRepository {
	return m.cases
}

func (m *Memory) Rule() interfaces.RuleRepository {
	return m.rules
}

func (m *Memory) Audit() interfaces.AuditRepository {
	return m.audit
}

func (m *Memory) Close() error {
	return nil
}
