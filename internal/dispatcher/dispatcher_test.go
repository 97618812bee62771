package dispatcher_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreason-ai/catalog/internal/dispatcher"
	"github.com/coreason-ai/catalog/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatch_MultiLineSSEEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\ndata: \"k\":\"v\",\ndata: \"l\":[1,2,3]\ndata: }\n\n"))
	}))
	defer srv.Close()

	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: srv.URL}
	payloads, err := d.Dispatch(context.Background(), source, "find things")
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	payload, ok := payloads[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v", payload["k"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, payload["l"])
}

func TestDispatch_MultipleEventsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"n\":1}\n\ndata: {\"n\":2}\n\n"))
	}))
	defer srv.Close()

	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: srv.URL}
	payloads, err := d.Dispatch(context.Background(), source, "intent")
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, float64(1), payloads[0].(map[string]any)["n"])
	assert.Equal(t, float64(2), payloads[1].(map[string]any)["n"])
}

func TestDispatch_TrailingBufferFlushedWithoutFinalBlankLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {\"n\":7}"))
	}))
	defer srv.Close()

	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: srv.URL}
	payloads, err := d.Dispatch(context.Background(), source, "intent")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
}

func TestDispatch_IgnoresNonDataLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(": comment\nid: 1\nevent: message\nretry: 3000\ndata: {\"n\":9}\n\n"))
	}))
	defer srv.Close()

	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: srv.URL}
	payloads, err := d.Dispatch(context.Background(), source, "intent")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
}

func TestDispatch_UnparsableEventSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: not json\n\ndata: {\"n\":1}\n\n"))
	}))
	defer srv.Close()

	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: srv.URL}
	payloads, err := d.Dispatch(context.Background(), source, "intent")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
}

func TestDispatch_NonSuccessStatusIsTransportStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: srv.URL}
	_, err := d.Dispatch(context.Background(), source, "intent")
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatcher.ErrTransportStatus)
}

func TestDispatch_ConnectionFailureIsTransportIOError(t *testing.T) {
	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: "http://127.0.0.1:1"}
	_, err := d.Dispatch(context.Background(), source, "intent")
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatcher.ErrTransportIO)
}

func TestDispatch_PostsIntentBody(t *testing.T) {
	var gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	d := dispatcher.New(discardLogger())
	defer d.Close()

	source := model.SourceManifest{URN: "urn:coreason:source:test", EndpointURL: srv.URL}
	_, err := d.Dispatch(context.Background(), source, "find invoices")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.JSONEq(t, `{"intent":"find invoices"}`, gotBody)
}
