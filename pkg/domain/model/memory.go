package model

import (
	"time"

	"github.com/google/uuid"
)

// MemoryID is a UUID-based identifier for MemoryNode
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// MemoryNode is an append-only record of prior consultation experience.
// Importance decay is owned by the external learning process; this core
// only reads nodes and touches LastAccessedAt when one is retrieved.
type MemoryNode struct {
	ID             MemoryID
	Description    string `masq:"secret"`
	Importance     float64 // 0..10
	Embedding      []float32
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// HasEmbedding reports whether the node is eligible for vector search.
// Nodes without an embedding degrade out of the candidate pool silently.
func (m *MemoryNode) HasEmbedding() bool {
	return len(m.Embedding) > 0
}
