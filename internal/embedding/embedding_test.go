package embedding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreason-ai/catalog/internal/embedding"
)

func TestNoopProvider_ReturnsErrNoProvider(t *testing.T) {
	p := embedding.NewNoopProvider(384)
	assert.Equal(t, 384, p.Dimensions())

	_, err := p.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, embedding.ErrNoProvider)
	require.ErrorIs(t, err, embedding.ErrEmbeddingFailed)

	_, err = p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, embedding.ErrNoProvider)
}

func TestOllamaProvider_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		resp := map[string]any{
			"embeddings": [][]float32{
				make([]float32, 384),
				make([]float32, 384),
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p := embedding.NewOllamaProvider(srv.URL, "nomic-embed-text", 384)
	vecs, err := p.EmbedBatch(context.Background(), []string{"intent one", "intent two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 384)
}

func TestOllamaProvider_Embed_MissingEmbeddingSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer srv.Close()

	p := embedding.NewOllamaProvider(srv.URL, "nomic-embed-text", 384)
	_, err := p.Embed(context.Background(), "intent")
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailed)
}

func TestOllamaProvider_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := embedding.NewOllamaProvider(srv.URL, "nomic-embed-text", 384)
	_, err := p.Embed(context.Background(), "intent")
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailed)
}

func TestOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := embedding.NewOpenAIProvider("", "text-embedding-3-small", 384)
	require.Error(t, err)
}

func TestOpenAIProvider_DefaultsDimensions(t *testing.T) {
	p, err := embedding.NewOpenAIProvider("test-key", "text-embedding-3-small", 0)
	require.NoError(t, err)
	assert.Equal(t, 384, p.Dimensions())
}
