package catalog

import (
	"context"
	"net/http"
	"time"
)

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the auto-detected
// OpenAI/Ollama/noop provider. Its method set is identical to
// internal/embedding.Provider, so a value satisfying this interface
// satisfies that one too — no adapter is needed to wire it into the broker.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// PolicyEvaluator evaluates a Rego-shaped policy program against an input
// document, returning the program's allow decision.
// When provided via WithPolicyEvaluator, replaces the auto-constructed
// OPA-binary evaluator. Its method set matches internal/broker.PolicyEvaluator
// exactly, so it wires into the broker directly.
type PolicyEvaluator interface {
	EvaluatePolicy(ctx context.Context, program string, input map[string]any, timeout time.Duration) (bool, error)
}

// EventHook receives async notifications about broker and registry
// lifecycle events. Multiple hooks may be registered via multiple
// WithEventHook calls. Hook methods run in goroutines — they must not block
// indefinitely. Hook methods return nothing, and the originating request
// does not wait for them.
type EventHook interface {
	OnQueryDispatched(ctx context.Context, intent string, resp CatalogResponse)
	OnSourceRegistered(ctx context.Context, manifest SourceManifest)
}

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing, before requestID assignment), so it
// sees every request including /health and /metrics.
// Multiple middlewares are applied in registration order (first-registered
// is outermost).
type Middleware func(http.Handler) http.Handler
