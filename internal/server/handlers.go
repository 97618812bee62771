package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coreason-ai/catalog/internal/model"
	"github.com/coreason-ai/catalog/internal/registry"
	"github.com/coreason-ai/catalog/internal/vectorindex"
)

// BrokerService is the subset of *broker.Broker the HTTP shell depends on.
type BrokerService interface {
	DispatchQuery(ctx context.Context, intent string, user model.UserContext, limit int) model.CatalogResponse
}

// RegistryService is the subset of *registry.Registry the HTTP shell
// depends on.
type RegistryService interface {
	Register(ctx context.Context, manifest model.SourceManifest) error
}

// HealthChecker is the subset of vectorindex.Index the health endpoint
// depends on.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// PolicyHealthChecker is the subset of policy.Evaluator the health endpoint
// depends on. Nil only when a custom policy evaluator without a Healthy
// method is configured; with no OPA path configured, the default evaluator's
// Healthy reports an error and /health answers 503.
type PolicyHealthChecker interface {
	Healthy(ctx context.Context) error
}

// HandlersDeps holds the dependencies Handlers needs to serve requests.
type HandlersDeps struct {
	Broker              BrokerService
	Registry            RegistryService
	Index               HealthChecker
	Policy              PolicyHealthChecker
	Logger              *slog.Logger
	MaxRequestBodyBytes int64
}

// Handlers implements the HTTP API's route bodies.
type Handlers struct {
	broker      BrokerService
	registry    RegistryService
	index       HealthChecker
	policy      PolicyHealthChecker
	logger      *slog.Logger
	maxBodySize int64
}

// NewHandlers constructs Handlers from its dependencies.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		broker:      deps.Broker,
		registry:    deps.Registry,
		index:       deps.Index,
		policy:      deps.Policy,
		logger:      deps.Logger,
		maxBodySize: deps.MaxRequestBodyBytes,
	}
}

// HandleHealth serves GET /health. It reports Qdrant and OPA reachability
// alongside overall status; either dependency being unhealthy degrades the
// response to 503 without preventing the process from reporting the other.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{Status: "ok"}
	degraded := false

	if h.index != nil {
		if err := h.index.Healthy(r.Context()); err != nil {
			resp.Qdrant = "unhealthy: " + err.Error()
			degraded = true
		} else {
			resp.Qdrant = "ok"
		}
	}

	if h.policy != nil {
		if err := h.policy.Healthy(r.Context()); err != nil {
			resp.OPA = "unhealthy: " + err.Error()
			degraded = true
		} else {
			resp.OPA = "ok"
		}
	}

	if degraded {
		resp.Status = "degraded"
		writeJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleRegisterSource serves POST /v1/sources.
func (h *Handlers) HandleRegisterSource(w http.ResponseWriter, r *http.Request) {
	var manifest model.SourceManifest
	if err := decodeJSON(r, &manifest, h.maxBodySize); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeValidationFailed, "invalid request body")
		return
	}

	if err := h.registry.Register(r.Context(), manifest); err != nil {
		h.writeRegisterError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, model.RegisterSourceResponse{
		Status: "registered",
		URN:    manifest.URN,
	})
}

func (h *Handlers) writeRegisterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidManifest):
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeValidationFailed, err.Error())
	case errors.Is(err, registry.ErrEmbeddingFailed),
		errors.Is(err, registry.ErrStorageFailed),
		errors.Is(err, vectorindex.ErrDimensionMismatch),
		errors.Is(err, vectorindex.ErrInvalidFilter):
		h.logger.Error("register source failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, err.Error())
	default:
		h.logger.Error("register source failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to register source")
	}
}

// HandleQuery serves POST /v1/query. The caller's UserContext may arrive in
// the request body or be overridden by an X-User-Context header — the
// header takes precedence, matching a gateway that resolved identity
// upstream of this process (spec.md §6). A header present but unparseable
// is not a request failure: it is logged and the body's user_context is
// used instead.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := decodeJSON(r, &req, h.maxBodySize); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeValidationFailed, "invalid request body")
		return
	}

	if req.Intent == "" {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeValidationFailed, "intent is required")
		return
	}

	user, err := parseUserContextHeader(r)
	if err != nil {
		h.logger.Warn("invalid X-User-Context header, falling back to body", "error", err, "request_id", RequestIDFromContext(r.Context()))
		user = req.UserContext
	} else if user == nil {
		user = req.UserContext
	}
	if user == nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeValidationFailed, "user_context is required")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}

	resp := h.broker.DispatchQuery(r.Context(), req.Intent, *user, limit)
	writeJSON(w, r, http.StatusOK, resp)
}
