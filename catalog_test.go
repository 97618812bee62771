package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreason-ai/catalog/internal/model"
)

func TestToPublicResponse(t *testing.T) {
	id := uuid.New()
	internal := model.CatalogResponse{
		QueryID: id,
		AggregatedResults: []model.SourceResult{
			{SourceURN: "urn:catalog:source:billing", Status: model.StatusSuccess, LatencyMS: 12.5},
			{SourceURN: "urn:catalog:source:hr", Status: model.StatusBlockedByPolicy, LatencyMS: 0},
		},
		ProvenanceSignature: "sig-abc",
		PartialContent:      true,
	}

	got := toPublicResponse(internal)

	assert.Equal(t, id.String(), got.QueryID)
	assert.Equal(t, "sig-abc", got.ProvenanceSignature)
	assert.True(t, got.PartialContent)
	require.Len(t, got.AggregatedResults, 2)
	assert.Equal(t, SourceResult{SourceURN: "urn:catalog:source:billing", Status: StatusSuccess, LatencyMS: 12.5}, got.AggregatedResults[0])
	assert.Equal(t, StatusBlockedByPolicy, got.AggregatedResults[1].Status)
}

func TestToPublicManifest(t *testing.T) {
	internal := model.SourceManifest{
		URN:         "urn:catalog:source:billing",
		Name:        "billing",
		Description: "billing records",
		EndpointURL: "sse://billing.internal/mcp",
		GeoLocation: "us-east-1",
		Sensitivity: model.SensitivityPII,
		OwnerGroup:  "eng-team",
	}

	got := toPublicManifest(internal)

	assert.Equal(t, "urn:catalog:source:billing", got.URN)
	assert.Equal(t, SensitivityPII, got.Sensitivity)
	assert.Equal(t, "eng-team", got.OwnerGroup)
}

// --- fakes for hookingBroker / hookingRegistry ---

type fakeBrokerService struct {
	resp model.CatalogResponse
}

func (f *fakeBrokerService) DispatchQuery(_ context.Context, _ string, _ model.UserContext, _ int) model.CatalogResponse {
	return f.resp
}

type fakeRegistryService struct {
	err error
}

func (f *fakeRegistryService) Register(_ context.Context, _ model.SourceManifest) error {
	return f.err
}

type recordingHook struct {
	mu        sync.Mutex
	queries   []CatalogResponse
	manifests []SourceManifest
	done      chan struct{}
}

func newRecordingHook() *recordingHook {
	return &recordingHook{done: make(chan struct{}, 4)}
}

func (h *recordingHook) OnQueryDispatched(_ context.Context, _ string, resp CatalogResponse) {
	h.mu.Lock()
	h.queries = append(h.queries, resp)
	h.mu.Unlock()
	h.done <- struct{}{}
}

func (h *recordingHook) OnSourceRegistered(_ context.Context, m SourceManifest) {
	h.mu.Lock()
	h.manifests = append(h.manifests, m)
	h.mu.Unlock()
	h.done <- struct{}{}
}

func (h *recordingHook) waitForEvent(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hook to fire")
	}
}

func TestHookingBroker_FiresOnQueryDispatched(t *testing.T) {
	hook := newRecordingHook()
	b := &hookingBroker{
		inner: &fakeBrokerService{resp: model.CatalogResponse{ProvenanceSignature: "sig-1"}},
		hooks: []EventHook{hook},
	}

	resp := b.DispatchQuery(context.Background(), "find billing data", model.UserContext{UserID: "u1"}, 10)
	assert.Equal(t, "sig-1", resp.ProvenanceSignature)

	hook.waitForEvent(t)
	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.queries, 1)
	assert.Equal(t, "sig-1", hook.queries[0].ProvenanceSignature)
}

func TestHookingRegistry_FiresOnSourceRegistered(t *testing.T) {
	hook := newRecordingHook()
	r := &hookingRegistry{
		inner: &fakeRegistryService{},
		hooks: []EventHook{hook},
	}

	manifest := model.SourceManifest{URN: "urn:catalog:source:billing", OwnerGroup: "eng-team"}
	err := r.Register(context.Background(), manifest)
	require.NoError(t, err)

	hook.waitForEvent(t)
	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.manifests, 1)
	assert.Equal(t, "urn:catalog:source:billing", hook.manifests[0].URN)
}

func TestHookingRegistry_SkipsHookOnError(t *testing.T) {
	hook := newRecordingHook()
	wantErr := errors.New("storage failed")
	r := &hookingRegistry{
		inner: &fakeRegistryService{err: wantErr},
		hooks: []EventHook{hook},
	}

	err := r.Register(context.Background(), model.SourceManifest{URN: "urn:catalog:source:billing"})
	require.ErrorIs(t, err, wantErr)

	select {
	case <-hook.done:
		t.Fatal("hook should not fire when registration fails")
	case <-time.After(50 * time.Millisecond):
	}
}
