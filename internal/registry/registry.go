// Package registry manages the lifecycle of SourceManifest records: it
// validates, embeds, and upserts them into a VectorIndex.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreason-ai/catalog/internal/embedding"
	"github.com/coreason-ai/catalog/internal/model"
	"github.com/coreason-ai/catalog/internal/vectorindex"
)

// Error taxonomy for registration failures, mapped onto spec.md's §7 error
// table: validation failures are caller errors; embedding (including a
// dimension mismatch) and storage failures are internal errors.
var (
	ErrInvalidManifest = model.ErrInvalidManifest
	ErrEmbeddingFailed = errors.New("registry: embedding failed")
	ErrStorageFailed   = errors.New("registry: storage failed")
)

// Registry registers source manifests: validate, embed, check dimension,
// upsert.
type Registry struct {
	embedder embedding.Provider
	index    vectorindex.Index
	logger   *slog.Logger
}

// New constructs a Registry.
func New(embedder embedding.Provider, index vectorindex.Index, logger *slog.Logger) *Registry {
	return &Registry{embedder: embedder, index: index, logger: logger}
}

// Register validates manifest, embeds its description, and upserts it into
// the vector index. The description is the only field embedded, per
// spec.md §4.1.
func (r *Registry) Register(ctx context.Context, manifest model.SourceManifest) error {
	if err := manifest.Validate(); err != nil {
		return err
	}

	r.logger.Info("registry: registering source", "urn", manifest.URN, "name", manifest.Name)

	vec, err := r.embedder.Embed(ctx, manifest.Description)
	if err != nil {
		r.logger.Error("registry: embedding failed", "urn", manifest.URN, "error", err)
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	if len(vec) != r.embedder.Dimensions() {
		return fmt.Errorf("%w: generated embedding has dimension %d, expected %d",
			ErrEmbeddingFailed, len(vec), r.embedder.Dimensions())
	}

	if err := r.index.Upsert(ctx, manifest, model.Embedding(vec)); err != nil {
		r.logger.Error("registry: storage failed", "urn", manifest.URN, "error", err)
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	r.logger.Info("registry: registered source", "urn", manifest.URN)
	return nil
}

// BatchResult reports the outcome of registering a single manifest within a
// RegisterBatch call.
type BatchResult struct {
	URN   string
	Error error
}

// RegisterBatch registers many manifests in one call, embedding their
// descriptions together via EmbedBatch. Supplements spec.md §4.4, which
// documents only single registration; see SPEC_FULL.md §11.
//
// A single manifest's validation failure does not abort the batch; it is
// recorded in that manifest's BatchResult and the rest proceed.
func (r *Registry) RegisterBatch(ctx context.Context, manifests []model.SourceManifest) []BatchResult {
	results := make([]BatchResult, len(manifests))

	valid := make([]model.SourceManifest, 0, len(manifests))
	validIdx := make([]int, 0, len(manifests))
	for i, m := range manifests {
		if err := m.Validate(); err != nil {
			results[i] = BatchResult{URN: m.URN, Error: err}
			continue
		}
		valid = append(valid, m)
		validIdx = append(validIdx, i)
	}

	if len(valid) == 0 {
		return results
	}

	descriptions := make([]string, len(valid))
	for i, m := range valid {
		descriptions[i] = m.Description
	}

	vecs, err := r.embedder.EmbedBatch(ctx, descriptions)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		for _, i := range validIdx {
			results[i] = BatchResult{URN: manifests[i].URN, Error: wrapped}
		}
		return results
	}

	for j, m := range valid {
		i := validIdx[j]
		if len(vecs[j]) != r.embedder.Dimensions() {
			results[i] = BatchResult{URN: m.URN, Error: fmt.Errorf(
				"%w: generated embedding has dimension %d, expected %d",
				ErrEmbeddingFailed, len(vecs[j]), r.embedder.Dimensions())}
			continue
		}
		if err := r.index.Upsert(ctx, m, model.Embedding(vecs[j])); err != nil {
			results[i] = BatchResult{URN: m.URN, Error: fmt.Errorf("%w: %v", ErrStorageFailed, err)}
			continue
		}
		results[i] = BatchResult{URN: m.URN}
	}

	return results
}
