// Package catalog is the public API for embedding the Federation Broker
// catalog service.
//
// Enterprise and plugin consumers import this package to construct and run
// the broker without forking it:
//
//	app, err := catalog.New(
//	    catalog.WithVersion(version),
//	    catalog.WithLogger(logger),
//	    catalog.WithEventHook(myAuditHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: catalog (root) imports
// internal/*, but internal/* never imports catalog (root). Public types
// (SourceManifest, CatalogResponse, etc.) are standalone structs with no
// internal imports; conversion helpers (toPublicManifest, toPublicResponse)
// live here because this is the only file that sees both sides of the
// boundary.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/coreason-ai/catalog/internal/broker"
	"github.com/coreason-ai/catalog/internal/config"
	"github.com/coreason-ai/catalog/internal/dispatcher"
	"github.com/coreason-ai/catalog/internal/embedding"
	"github.com/coreason-ai/catalog/internal/model"
	"github.com/coreason-ai/catalog/internal/policy"
	"github.com/coreason-ai/catalog/internal/provenance"
	"github.com/coreason-ai/catalog/internal/registry"
	"github.com/coreason-ai/catalog/internal/server"
	"github.com/coreason-ai/catalog/internal/telemetry"
	"github.com/coreason-ai/catalog/internal/vectorindex"
)

// shutdownTimeout bounds how long graceful shutdown waits for in-flight
// requests to drain before the process exits anyway.
const shutdownTimeout = 10 * time.Second

// App is the catalog service lifecycle. Construct with New(), run with
// Run(). App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	index        vectorindex.Index
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initializes the catalog service: it loads configuration, constructs
// the embedding provider, vector index, policy evaluator, dispatcher, and
// provenance generator, wires them into a Broker and Registry, and builds
// the HTTP server. It does not start accepting connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("catalog starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Embedding provider — external override takes priority over auto-detect.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = o.embeddingProvider
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	index, err := vectorindex.NewQdrantIndex(vectorindex.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
	}, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("qdrant: %w", err)
	}
	if err := index.EnsureCollection(context.Background()); err != nil {
		_ = index.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("qdrant ensure collection: %w", err)
	}

	// Policy evaluator — external override takes priority over the
	// auto-constructed OPA-binary evaluator.
	var policyEval broker.PolicyEvaluator
	var policyHealth server.PolicyHealthChecker
	if o.policyEvaluator != nil {
		policyEval = o.policyEvaluator
		if hc, ok := o.policyEvaluator.(server.PolicyHealthChecker); ok {
			policyHealth = hc
		}
	} else {
		opaEval := policy.NewEvaluator(cfg.OPAPath, logger)
		policyEval = opaEval
		policyHealth = opaEval
	}

	disp := dispatcher.NewWithClient(&http.Client{Timeout: cfg.DispatchTimeout}, logger)
	provenanceGen := provenance.New()

	reg := registry.New(embedder, index, logger)
	brk := broker.New(embedder, index, policyEval, disp, provenanceGen, cfg.PolicyTimeout, logger)

	var brokerSvc server.BrokerService = brk
	var registrySvc server.RegistryService = reg
	if len(o.eventHooks) > 0 {
		brokerSvc = &hookingBroker{inner: brk, hooks: o.eventHooks}
		registrySvc = &hookingRegistry{inner: reg, hooks: o.eventHooks}
	}

	var extraMiddlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		extraMiddlewares = append(extraMiddlewares, func(h http.Handler) http.Handler { return mw(h) })
	}

	srv := server.New(server.Config{
		Broker:              brokerSvc,
		Registry:            registrySvc,
		Index:               index,
		Policy:              policyHealth,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		ExtraMiddlewares:    extraMiddlewares,
	})

	return &App{
		cfg:          cfg,
		index:        index,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then releases the vector index
// connection and the OTEL exporters.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("catalog shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.index.Close()
	_ = a.otelShutdown(context.Background())

	a.logger.Info("catalog stopped")
	return nil
}

// newEmbeddingProvider selects an embedding provider from configuration,
// auto-detecting Ollama reachability before falling back to OpenAI, then
// noop.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when CATALOG_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return p
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
	case "noop":
		logger.Info("embedding provider: noop (semantic discovery disabled)")
		return embedding.NewNoopProvider(dims)
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return embedding.NewNoopProvider(dims)
			}
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return p
		}
		logger.Warn("no embedding provider available, using noop (semantic discovery disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

func ollamaReachable(baseURL string) bool {
	if baseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// toPublicResponse converts an internal CatalogResponse into the curated
// public view handed to EventHook implementations.
func toPublicResponse(r model.CatalogResponse) CatalogResponse {
	results := make([]SourceResult, len(r.AggregatedResults))
	for i, sr := range r.AggregatedResults {
		results[i] = SourceResult{
			SourceURN: sr.SourceURN,
			Status:    ResultStatus(sr.Status),
			LatencyMS: sr.LatencyMS,
		}
	}
	return CatalogResponse{
		QueryID:             r.QueryID.String(),
		AggregatedResults:   results,
		ProvenanceSignature: r.ProvenanceSignature,
		PartialContent:      r.PartialContent,
	}
}

// toPublicManifest converts an internal SourceManifest into the curated
// public view handed to EventHook implementations.
func toPublicManifest(m model.SourceManifest) SourceManifest {
	return SourceManifest{
		URN:         m.URN,
		Name:        m.Name,
		Description: m.Description,
		EndpointURL: m.EndpointURL,
		GeoLocation: m.GeoLocation,
		Sensitivity: Sensitivity(m.Sensitivity),
		OwnerGroup:  m.OwnerGroup,
	}
}

// hookingBroker wraps a server.BrokerService to fan query-dispatch events
// out to registered EventHooks after each query. Hooks run in a detached
// goroutine so a slow or misbehaving hook cannot delay the HTTP response.
type hookingBroker struct {
	inner server.BrokerService
	hooks []EventHook
}

func (h *hookingBroker) DispatchQuery(ctx context.Context, intent string, user model.UserContext, limit int) model.CatalogResponse {
	resp := h.inner.DispatchQuery(ctx, intent, user, limit)
	public := toPublicResponse(resp)
	for _, hook := range h.hooks {
		hook := hook
		go hook.OnQueryDispatched(context.Background(), intent, public)
	}
	return resp
}

// hookingRegistry wraps a server.RegistryService to fan source-registration
// events out to registered EventHooks after each successful registration.
type hookingRegistry struct {
	inner server.RegistryService
	hooks []EventHook
}

func (h *hookingRegistry) Register(ctx context.Context, manifest model.SourceManifest) error {
	if err := h.inner.Register(ctx, manifest); err != nil {
		return err
	}
	public := toPublicManifest(manifest)
	for _, hook := range h.hooks {
		hook := hook
		go hook.OnSourceRegistered(context.Background(), public)
	}
	return nil
}
