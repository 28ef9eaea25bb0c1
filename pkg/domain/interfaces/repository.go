package interfaces

// Repository defines the interface for data persistence across the three
// retrieval collections and the audit trail.
type Repository interface {
	Memory() MemoryRepository
	Case() CaseRepository
	Rule() RuleRepository
	Audit() AuditRepository

	Close() error
}
