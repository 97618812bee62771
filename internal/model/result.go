package model

import "github.com/google/uuid"

// ResultStatus is the outcome of dispatching a query to a single source.
type ResultStatus string

const (
	StatusSuccess         ResultStatus = "SUCCESS"
	StatusError           ResultStatus = "ERROR"
	StatusBlockedByPolicy ResultStatus = "BLOCKED_BY_POLICY"
	StatusPartialContent  ResultStatus = "PARTIAL_CONTENT"
)

// SourceResult is one source's outcome within a CatalogResponse.
// LatencyMS is measured from the moment dispatch begins for that source to
// the moment its outcome is finalized.
type SourceResult struct {
	SourceURN string       `json:"source_urn"`
	Status    ResultStatus `json:"status"`
	Data      any          `json:"data,omitempty"`
	LatencyMS float64      `json:"latency_ms"`
}

// CatalogResponse is the Broker's aggregate answer to a query.
type CatalogResponse struct {
	QueryID             uuid.UUID      `json:"query_id"`
	AggregatedResults   []SourceResult `json:"aggregated_results"`
	ProvenanceSignature string         `json:"provenance_signature"`
	PartialContent      bool           `json:"partial_content"`
}
