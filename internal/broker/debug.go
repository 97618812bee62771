package broker

import (
	"context"

	"github.com/google/uuid"

	"github.com/coreason-ai/catalog/internal/model"
)

// DispatchQueryDebug runs the same pipeline as DispatchQuery, but candidates
// blocked by either governance gate (or dropped fail-closed on a policy
// evaluation error) are surfaced as BLOCKED_BY_POLICY results instead of
// being silently dropped. Supplements spec §9's design note inviting a debug
// mode; not part of the primary API surface (see SPEC_FULL.md §11).
func (b *Broker) DispatchQueryDebug(ctx context.Context, intent string, user model.UserContext, limit int) model.CatalogResponse {
	queryID := uuid.New()
	b.logger.Info("broker: processing debug query", "query_id", queryID, "user_id", user.UserID)

	candidates, failSignature, ok := b.discover(ctx, intent, limit)
	if !ok {
		return model.CatalogResponse{
			QueryID:             queryID,
			AggregatedResults:   []model.SourceResult{},
			ProvenanceSignature: failSignature,
			PartialContent:      false,
		}
	}

	allowed, outcomes := b.filterGovernance(ctx, candidates, user)
	b.logGovernanceTelemetry(queryID, outcomes)

	results := b.dispatchAll(ctx, allowed, intent)

	for _, o := range outcomes {
		if o.decision == Allow {
			continue
		}
		results = append(results, model.SourceResult{
			SourceURN: o.manifest.URN,
			Status:    model.StatusBlockedByPolicy,
			Data:      map[string]any{"reason": o.decision.String()},
		})
	}

	partial := computePartialContent(results, len(allowed), len(candidates))
	signature := b.provenanceGen.Generate(queryID, results)

	return model.CatalogResponse{
		QueryID:             queryID,
		AggregatedResults:   results,
		ProvenanceSignature: signature,
		PartialContent:      partial,
	}
}
