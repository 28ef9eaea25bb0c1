package model

// EmbeddingDimension is the fixed length of all stored vectors. Every
// collection shares one dimension so a single query embedding can be
// searched against memories, cases and rules.
const EmbeddingDimension = 768
