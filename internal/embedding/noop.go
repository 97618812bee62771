package embedding

import "context"

// NoopProvider returns ErrNoProvider; no real embedding backend is configured.
// Exercises the broker's embedding-failure path (see broker.DispatchQuery).
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a provider that always fails to embed.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Dimensions returns the configured (unused) embedding size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// Embed returns ErrNoProvider.
func (p *NoopProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, wrapFailed("noop", ErrNoProvider)
}

// EmbedBatch returns ErrNoProvider.
func (p *NoopProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, wrapFailed("noop", ErrNoProvider)
}
