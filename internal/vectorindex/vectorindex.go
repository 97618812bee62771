// Package vectorindex persists source manifests keyed by URN and exposes
// k-nearest vector search with an optional structured filter.
package vectorindex

import (
	"context"
	"errors"

	"github.com/coreason-ai/catalog/internal/model"
)

// Error taxonomy for VectorIndex operations.
var (
	ErrDimensionMismatch = errors.New("vectorindex: embedding dimension mismatch")
	ErrStorageFault      = errors.New("vectorindex: storage fault")
	ErrInvalidFilter     = errors.New("vectorindex: invalid filter")
)

// Index persists SourceManifest records keyed by URN and answers k-nearest
// vector search, optionally constrained by a structured filter.
//
// Upsert semantics: re-registering the same URN replaces the prior record.
// Concurrent upserts of distinct URNs must not lose records; concurrent
// upserts of the same URN yield last-writer-wins.
type Index interface {
	Upsert(ctx context.Context, manifest model.SourceManifest, embedding model.Embedding) error
	Search(ctx context.Context, queryVector model.Embedding, limit int, filter model.SearchFilter) ([]model.SourceManifest, error)
	Healthy(ctx context.Context) error
	Close() error
}
