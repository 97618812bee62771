package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/coreason-ai/catalog/internal/model"
)

// Config holds the settings needed to connect to a Qdrant cluster.
type Config struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantIndex implements Index backed by Qdrant.
//
// Unlike an index that stores only an opaque ID, the full manifest is stored
// in the point payload and reconstructed on search, because Search must
// return full SourceManifest values (spec §4.2), not just identifiers.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthMu  sync.Mutex
	lastCheck time.Time
	lastErr   error
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vectorindex: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vectorindex: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			// The user specified the REST port; use the gRPC port instead.
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantIndex connects to Qdrant via gRPC.
func NewQdrantIndex(cfg Config, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to qdrant at %s:%d: %v", ErrStorageFault, host, port, err)
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if it doesn't already exist, with
// HNSW params tuned for cosine similarity, and payload indexes on the
// filterable scalar attributes. Idempotent: safe to call repeatedly, and the
// only lazily-guardable construction path in this service (see catalog.New,
// which calls it once at startup).
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection exists: %v", ErrStorageFault, err)
	}
	if exists {
		q.logger.Info("vectorindex: collection already exists", "collection", q.collection)
		return nil
	}

	m := uint64(16)
	efConstruct := uint64(128)

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dims,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %q: %v", ErrStorageFault, q.collection, err)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"geo_location", "sensitivity", "owner_group", "urn"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("%w: create index on %q: %v", ErrStorageFault, field, err)
		}
	}

	q.logger.Info("vectorindex: created collection with payload indexes", "collection", q.collection, "dims", q.dims)
	return nil
}

// pointID derives a stable point identity from the manifest URN, so
// re-registering the same URN replaces the prior record (upsert semantics).
func pointID(urn string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(urn)).String()
}

// manifestPayload is the JSON-serializable view of a manifest stored in a
// Qdrant point's payload.
type manifestPayload struct {
	URN           string         `json:"urn"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	EndpointURL   string         `json:"endpoint_url"`
	SourcePointer map[string]any `json:"source_pointer,omitempty"`
	ACLs          []string       `json:"acls"`
	GeoLocation   string         `json:"geo_location"`
	Sensitivity   string         `json:"sensitivity"`
	OwnerGroup    string         `json:"owner_group"`
	AccessPolicy  string         `json:"access_policy"`
}

func toPayload(m model.SourceManifest) (map[string]any, error) {
	mp := manifestPayload{
		URN:           m.URN,
		Name:          m.Name,
		Description:   m.Description,
		EndpointURL:   m.EndpointURL,
		SourcePointer: m.SourcePointer,
		ACLs:          m.ACLs,
		GeoLocation:   m.GeoLocation,
		Sensitivity:   string(m.Sensitivity),
		OwnerGroup:    m.OwnerGroup,
		AccessPolicy:  m.AccessPolicy,
	}
	raw, err := json.Marshal(mp)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromPayload decodes a manifest out of a Qdrant point's payload fields.
// qdrant.Value doesn't round-trip through encoding/json, so fields are read
// directly from the protobuf Value accessors instead.
func fromPayload(payload map[string]*qdrant.Value) (model.SourceManifest, error) {
	var mp manifestPayload
	if v, ok := payload["urn"]; ok {
		mp.URN = v.GetStringValue()
	}
	if v, ok := payload["name"]; ok {
		mp.Name = v.GetStringValue()
	}
	if v, ok := payload["description"]; ok {
		mp.Description = v.GetStringValue()
	}
	if v, ok := payload["endpoint_url"]; ok {
		mp.EndpointURL = v.GetStringValue()
	}
	if v, ok := payload["geo_location"]; ok {
		mp.GeoLocation = v.GetStringValue()
	}
	if v, ok := payload["sensitivity"]; ok {
		mp.Sensitivity = v.GetStringValue()
	}
	if v, ok := payload["owner_group"]; ok {
		mp.OwnerGroup = v.GetStringValue()
	}
	if v, ok := payload["access_policy"]; ok {
		mp.AccessPolicy = v.GetStringValue()
	}
	if v, ok := payload["acls"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			mp.ACLs = append(mp.ACLs, item.GetStringValue())
		}
	}
	if v, ok := payload["source_pointer"]; ok && v.GetStructValue() != nil {
		mp.SourcePointer = map[string]any{}
		for k, fv := range v.GetStructValue().GetFields() {
			mp.SourcePointer[k] = qdrantValueToAny(fv)
		}
	}

	return model.SourceManifest{
		URN:           mp.URN,
		Name:          mp.Name,
		Description:   mp.Description,
		EndpointURL:   mp.EndpointURL,
		SourcePointer: mp.SourcePointer,
		ACLs:          mp.ACLs,
		GeoLocation:   mp.GeoLocation,
		Sensitivity:   model.Sensitivity(mp.Sensitivity),
		OwnerGroup:    mp.OwnerGroup,
		AccessPolicy:  mp.AccessPolicy,
	}, nil
}

func qdrantValueToAny(v *qdrant.Value) any {
	switch {
	case v == nil:
		return nil
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetBoolValue():
		return true
	default:
		return v.GetDoubleValue()
	}
}


// Upsert writes the manifest under a point ID derived from its URN, so an
// existing record with the same URN is replaced in a single write.
func (q *QdrantIndex) Upsert(ctx context.Context, manifest model.SourceManifest, embedding model.Embedding) error {
	if uint64(len(embedding)) != q.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), q.dims)
	}

	payload, err := toPayload(manifest)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrStorageFault, err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(pointID(manifest.URN)),
				Vectors: qdrant.NewVectorsDense([]float32(embedding)),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrStorageFault, manifest.URN, err)
	}
	return nil
}

// Search queries Qdrant for manifests matching the embedding and optional filter.
func (q *QdrantIndex) Search(ctx context.Context, queryVector model.Embedding, limit int, filter model.SearchFilter) ([]model.SourceManifest, error) {
	if uint64(len(queryVector)) != q.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(queryVector), q.dims)
	}
	if filter.Sensitivity != "" && !filter.Sensitivity.IsValid() {
		return nil, fmt.Errorf("%w: sensitivity %q is not recognized", ErrInvalidFilter, filter.Sensitivity)
	}

	var must []*qdrant.Condition
	if filter.GeoLocation != "" {
		must = append(must, qdrant.NewMatch("geo_location", filter.GeoLocation))
	}
	if filter.Sensitivity != "" {
		must = append(must, qdrant.NewMatch("sensitivity", string(filter.Sensitivity)))
	}
	if filter.OwnerGroup != "" {
		must = append(must, qdrant.NewMatch("owner_group", filter.OwnerGroup))
	}

	qp := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense([]float32(queryVector)),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(must) > 0 {
		qp.Filter = &qdrant.Filter{Must: must}
	}

	scored, err := q.client.Query(ctx, qp)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStorageFault, err)
	}

	manifests := make([]model.SourceManifest, 0, len(scored))
	for _, sp := range scored {
		m, err := fromPayload(sp.GetPayload())
		if err != nil {
			q.logger.Warn("vectorindex: failed to decode payload", "error", err)
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5s to
// avoid a Qdrant round trip on every health check.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	q.healthMu.Lock()
	defer q.healthMu.Unlock()

	if time.Since(q.lastCheck) < 5*time.Second {
		return q.lastErr
	}

	_, err := q.client.HealthCheck(ctx)
	q.lastCheck = time.Now()
	if err != nil {
		q.lastErr = fmt.Errorf("%w: unhealthy: %v", ErrStorageFault, err)
	} else {
		q.lastErr = nil
	}
	return q.lastErr
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
