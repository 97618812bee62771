package catalog

// Sensitivity classifies how a source's data must be handled. Mirrors
// internal/model.Sensitivity for use in extension interfaces — no internal
// package imports, so external consumers can implement EventHook without
// pulling in the broker's internal types.
type Sensitivity string

// Recognized sensitivity classes.
const (
	SensitivityPublic    Sensitivity = "PUBLIC"
	SensitivityInternal  Sensitivity = "INTERNAL"
	SensitivityPII       Sensitivity = "PII"
	SensitivityGxPLocked Sensitivity = "GxP_LOCKED"
)

// SourceManifest is the public representation of a registered federated
// source, passed to EventHook.OnSourceRegistered.
type SourceManifest struct {
	URN         string
	Name        string
	Description string
	EndpointURL string
	GeoLocation string
	Sensitivity Sensitivity
	OwnerGroup  string
}

// ResultStatus is the outcome of dispatching a query to a single source.
type ResultStatus string

// Recognized per-source result statuses.
const (
	StatusSuccess         ResultStatus = "SUCCESS"
	StatusError           ResultStatus = "ERROR"
	StatusBlockedByPolicy ResultStatus = "BLOCKED_BY_POLICY"
)

// SourceResult is one source's outcome within a CatalogResponse.
type SourceResult struct {
	SourceURN string
	Status    ResultStatus
	LatencyMS float64
}

// CatalogResponse is the public view of the broker's aggregate answer to a
// query, passed to EventHook.OnQueryDispatched.
type CatalogResponse struct {
	QueryID             string
	AggregatedResults   []SourceResult
	ProvenanceSignature string
	PartialContent      bool
}
