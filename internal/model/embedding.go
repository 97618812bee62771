package model

// EmbeddingDimensions is the fixed vector width every Embedder, VectorIndex,
// and Registry implementation in this service targets.
const EmbeddingDimensions = 384

// Embedding is a fixed-dimension vector of 32-bit floats. Dimension must
// match EmbeddingDimensions at both insert and query.
type Embedding []float32
