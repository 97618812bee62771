// Package broker implements the Federation Broker: the orchestration core
// that turns a natural-language intent into a governed, aggregated,
// provenance-stamped CatalogResponse.
package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/coreason-ai/catalog/internal/dispatcher"
	"github.com/coreason-ai/catalog/internal/embedding"
	"github.com/coreason-ai/catalog/internal/model"
	"github.com/coreason-ai/catalog/internal/policy"
	"github.com/coreason-ai/catalog/internal/provenance"
	"github.com/coreason-ai/catalog/internal/telemetry"
	"github.com/coreason-ai/catalog/internal/vectorindex"
)

const (
	errEmbeddingFailed = "ERROR: Embedding Failed"
	errSearchFailed    = "ERROR: Search Failed"
)

// tracer and metrics are package-level, process-wide instruments,
// grounded on the teacher's internal/server/middleware.go pattern of
// package-var tracer + lazily-registered instrument set rather than
// threading them through every constructor call.
var (
	tracer  = otel.Tracer("catalog/broker")
	metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
)

// GovernanceDecision is the explicit sum type for a candidate's outcome at
// the two-gate filtering stage (spec §9 design note), used for telemetry —
// the silent-drop behavior the broker exposes to callers is unaffected.
type GovernanceDecision int

const (
	Allow GovernanceDecision = iota
	DenyACL
	DenyPolicy
	EvalError
)

func (d GovernanceDecision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyACL:
		return "deny_acl"
	case DenyPolicy:
		return "deny_policy"
	case EvalError:
		return "eval_error"
	default:
		return "unknown"
	}
}

// PolicyEvaluator is the subset of policy.Evaluator the broker depends on,
// so tests can substitute a double.
type PolicyEvaluator interface {
	EvaluatePolicy(ctx context.Context, program string, input map[string]any, timeout time.Duration) (bool, error)
}

// SourceDispatcher is the subset of dispatcher.Dispatcher the broker depends
// on, so tests can substitute a double.
type SourceDispatcher interface {
	Dispatch(ctx context.Context, source model.SourceManifest, intent string) ([]any, error)
}

// Broker orchestrates semantic discovery, two-gate governance, parallel
// dispatch, fail-safe aggregation, and provenance stamping.
type Broker struct {
	embedder      embedding.Provider
	index         vectorindex.Index
	policyEval    PolicyEvaluator
	dispatcher    SourceDispatcher
	provenanceGen *provenance.Generator
	logger        *slog.Logger
	policyTimeout time.Duration
}

// New constructs a Broker from its collaborators, all process-wide shared
// services constructed once and injected (spec §5 "process-wide sharing").
func New(
	embedder embedding.Provider,
	index vectorindex.Index,
	policyEval PolicyEvaluator,
	disp SourceDispatcher,
	provenanceGen *provenance.Generator,
	policyTimeout time.Duration,
	logger *slog.Logger,
) *Broker {
	return &Broker{
		embedder:      embedder,
		index:         index,
		policyEval:    policyEval,
		dispatcher:    disp,
		provenanceGen: provenanceGen,
		policyTimeout: policyTimeout,
		logger:        logger,
	}
}

// candidateOutcome pairs a candidate with its governance decision, recorded
// for telemetry during the filtering stage.
type candidateOutcome struct {
	manifest model.SourceManifest
	decision GovernanceDecision
}

// DispatchQuery runs the Discover-Govern-Dispatch-Aggregate-Stamp pipeline. Every
// failure path returns a CatalogResponse instead of an error — the caller
// never sees a raised error, per spec §4.6 stage 1.
func (b *Broker) DispatchQuery(ctx context.Context, intent string, user model.UserContext, limit int) model.CatalogResponse {
	queryID := uuid.New()
	ctx, span := tracer.Start(ctx, "broker.DispatchQuery", trace.WithAttributes(
		attribute.String("catalog.query_id", queryID.String()),
		attribute.String("catalog.user_id", user.UserID),
	))
	defer span.End()

	b.logger.Info("broker: processing query", "query_id", queryID, "user_id", user.UserID)

	candidates, failSignature, ok := b.discover(ctx, intent, limit)
	if !ok {
		span.SetStatus(codes.Error, failSignature)
		return model.CatalogResponse{
			QueryID:             queryID,
			AggregatedResults:   []model.SourceResult{},
			ProvenanceSignature: failSignature,
			PartialContent:      false,
		}
	}
	metrics.CandidatesDiscovered.Observe(float64(len(candidates)))

	allowed, outcomes := b.filterGovernance(ctx, candidates, user)
	b.logGovernanceTelemetry(queryID, outcomes)
	metrics.CandidatesAllowed.Observe(float64(len(allowed)))

	results := b.dispatchAll(ctx, allowed, intent)

	partial := computePartialContent(results, len(allowed), len(candidates))
	signature := b.provenanceGen.Generate(queryID, results)

	span.SetAttributes(
		attribute.Int("catalog.candidates", len(candidates)),
		attribute.Int("catalog.allowed", len(allowed)),
		attribute.Bool("catalog.partial_content", partial),
	)

	return model.CatalogResponse{
		QueryID:             queryID,
		AggregatedResults:   results,
		ProvenanceSignature: signature,
		PartialContent:      partial,
	}
}

// discover runs the Embedder → VectorIndex.search pipeline. ok is false if
// either stage failed, in which case failSignature holds the literal
// provenance signature the caller must surface.
func (b *Broker) discover(ctx context.Context, intent string, limit int) (candidates []model.SourceManifest, failSignature string, ok bool) {
	vec, err := b.embedder.Embed(ctx, intent)
	if err != nil {
		b.logger.Error("broker: embedding failed", "error", err)
		return nil, errEmbeddingFailed, false
	}

	candidates, err = b.index.Search(ctx, model.Embedding(vec), limit, model.SearchFilter{})
	if err != nil {
		b.logger.Error("broker: search failed", "error", err)
		return nil, errSearchFailed, false
	}

	b.logger.Info("broker: discovered candidates", "count", len(candidates))
	return candidates, "", true
}

// filterGovernance applies the ACL gate then the policy gate, in candidate
// order, returning the allowed sources and a per-candidate decision record
// for telemetry.
func (b *Broker) filterGovernance(ctx context.Context, candidates []model.SourceManifest, user model.UserContext) ([]model.SourceManifest, []candidateOutcome) {
	allowed := make([]model.SourceManifest, 0, len(candidates))
	outcomes := make([]candidateOutcome, 0, len(candidates))

	for _, candidate := range candidates {
		if !policy.CheckAccess(candidate, user) {
			outcomes = append(outcomes, candidateOutcome{candidate, DenyACL})
			continue
		}

		input := map[string]any{
			"subject": map[string]any{
				"user_id": user.UserID,
				"email":   user.Email,
				"groups":  user.Groups,
				"claims":  user.Claims,
			},
			"object": map[string]any{
				"urn":         candidate.URN,
				"geo":         candidate.GeoLocation,
				"sensitivity": string(candidate.Sensitivity),
				"owner":       candidate.OwnerGroup,
			},
			"action": "QUERY",
		}

		allow, err := b.policyEval.EvaluatePolicy(ctx, candidate.AccessPolicy, input, b.policyTimeout)
		if err != nil {
			b.logger.Warn("broker: policy evaluation failed, denying fail-closed", "urn", candidate.URN, "error", err)
			outcomes = append(outcomes, candidateOutcome{candidate, EvalError})
			continue
		}
		if !allow {
			outcomes = append(outcomes, candidateOutcome{candidate, DenyPolicy})
			continue
		}

		outcomes = append(outcomes, candidateOutcome{candidate, Allow})
		allowed = append(allowed, candidate)
	}

	return allowed, outcomes
}

func (b *Broker) logGovernanceTelemetry(queryID uuid.UUID, outcomes []candidateOutcome) {
	counts := map[GovernanceDecision]int{}
	for _, o := range outcomes {
		counts[o.decision]++
		metrics.GovernanceDecisions.WithLabelValues(o.decision.String()).Inc()
	}
	b.logger.Info("broker: governance decisions",
		"query_id", queryID,
		"allow", counts[Allow],
		"deny_acl", counts[DenyACL],
		"deny_policy", counts[DenyPolicy],
		"eval_error", counts[EvalError],
	)
}

// dispatchAll fans out one goroutine per allowed source via errgroup and
// waits for all to complete before returning. Every task reports nil to the
// group regardless of its own dispatch outcome — a source transport failure
// must never cancel its siblings' in-flight requests, so the group's
// error-propagating cancellation is deliberately unused here; errgroup is
// used purely for its Go/Wait bookkeeping over sync.WaitGroup.
func (b *Broker) dispatchAll(ctx context.Context, allowed []model.SourceManifest, intent string) []model.SourceResult {
	if len(allowed) == 0 {
		return []model.SourceResult{}
	}

	results := make([]model.SourceResult, len(allowed))
	g, gCtx := errgroup.WithContext(ctx)

	for i, source := range allowed {
		i, source := i, source
		g.Go(func() error {
			results[i] = b.dispatchOne(gCtx, source, intent)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (b *Broker) dispatchOne(ctx context.Context, source model.SourceManifest, intent string) model.SourceResult {
	ctx, span := tracer.Start(ctx, "dispatcher.Dispatch", trace.WithAttributes(
		attribute.String("catalog.source_urn", source.URN),
	))
	defer span.End()

	start := time.Now()
	data, err := b.dispatcher.Dispatch(ctx, source, intent)
	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		b.logger.Error("broker: dispatch failed", "urn", source.URN, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.DispatchLatency.WithLabelValues(string(model.StatusError)).Observe(latencyMS)
		metrics.DispatchErrors.WithLabelValues(source.URN).Inc()
		return model.SourceResult{
			SourceURN: source.URN,
			Status:    model.StatusError,
			Data:      map[string]any{"error": err.Error()},
			LatencyMS: latencyMS,
		}
	}

	metrics.DispatchLatency.WithLabelValues(string(model.StatusSuccess)).Observe(latencyMS)
	return model.SourceResult{
		SourceURN: source.URN,
		Status:    model.StatusSuccess,
		Data:      data,
		LatencyMS: latencyMS,
	}
}

// computePartialContent implements spec §4.6 stage 5's rule: partial iff
// any result isn't SUCCESS, or fewer sources were allowed than discovered.
func computePartialContent(results []model.SourceResult, allowedCount, candidateCount int) bool {
	for _, r := range results {
		if r.Status != model.StatusSuccess {
			return true
		}
	}
	return allowedCount < candidateCount
}
