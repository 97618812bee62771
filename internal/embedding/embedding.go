// Package embedding provides text-to-vector generation for semantic source
// discovery.
//
// Defines the Provider interface and three concrete implementations. The
// interface lets callers swap providers without changing consumers, matching
// the auto-detect pattern used for the broader catalog service's collaborators.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbeddingFailed wraps any failure to produce a vector, including
// ErrNoProvider from NoopProvider.
var ErrEmbeddingFailed = errors.New("embedding: embedding failed")

// ErrNoProvider is returned by NoopProvider to signal that no real embedding
// provider is configured.
var ErrNoProvider = errors.New("embedding: no provider configured (noop)")

// Provider generates vector embeddings from text. All implementations target
// model.EmbeddingDimensions (384).
type Provider interface {
	// Embed generates a single embedding vector from text. Empty or
	// whitespace-only input is valid and must still produce a vector of the
	// declared dimension.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// wrapFailed wraps a provider-specific error as ErrEmbeddingFailed so callers
// can test for the taxonomy kind with errors.Is regardless of provider.
func wrapFailed(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrEmbeddingFailed, provider, err)
}
