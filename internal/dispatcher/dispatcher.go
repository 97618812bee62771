// Package dispatcher sends an intent to a federated source over its
// streaming transport and parses the response into an ordered list of
// event payloads.
package dispatcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coreason-ai/catalog/internal/model"
)

// Error taxonomy for dispatch failures, per spec.md §4.5/§7.
var (
	ErrTransportStatus = errors.New("dispatcher: non-success transport status")
	ErrTransportIO     = errors.New("dispatcher: transport I/O failure")
)

const defaultTimeout = 30 * time.Second

var tracer = otel.Tracer("catalog/dispatcher")

// Dispatcher sends an intent to a source's endpoint and parses its SSE
// response into a list of decoded JSON payloads.
type Dispatcher struct {
	client     *http.Client
	ownsClient bool
	logger     *slog.Logger
}

// New constructs a Dispatcher with its own *http.Client, timed out per
// defaultTimeout. Call Close to release it.
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:     &http.Client{Timeout: defaultTimeout},
		ownsClient: true,
		logger:     logger,
	}
}

// NewWithClient constructs a Dispatcher using an externally owned client.
// Close is a no-op in this case — the caller remains responsible for it,
// mirroring the original's `_owns_client` distinction.
func NewWithClient(client *http.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, ownsClient: false, logger: logger}
}

// rewriteURL converts sse:// and sses:// schemes into http:// and https://.
func rewriteURL(endpointURL string) string {
	switch {
	case strings.HasPrefix(endpointURL, "sse://"):
		return "http://" + endpointURL[len("sse://"):]
	case strings.HasPrefix(endpointURL, "sses://"):
		return "https://" + endpointURL[len("sses://"):]
	default:
		return endpointURL
	}
}

// Dispatch POSTs {"intent": intent} to the source's endpoint and returns the
// decoded SSE event payloads in arrival order.
func (d *Dispatcher) Dispatch(ctx context.Context, source model.SourceManifest, intent string) ([]any, error) {
	url := rewriteURL(source.EndpointURL)

	ctx, span := tracer.Start(ctx, "dispatcher.transport", trace.WithAttributes(
		attribute.String("catalog.source_urn", source.URN),
		attribute.String("catalog.endpoint", url),
	))
	defer span.End()

	d.logger.Info("dispatcher: dispatching", "urn", source.URN, "url", url)

	body, err := json.Marshal(map[string]string{"intent": intent})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: encode request body: %v", ErrTransportIO, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: build request: %v", ErrTransportIO, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("dispatcher: network error", "urn", source.URN, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Error("dispatcher: non-success status", "urn", source.URN, "status", resp.StatusCode)
		span.SetStatus(codes.Error, "non-success transport status")
		return nil, fmt.Errorf("%w: status %d from %s", ErrTransportStatus, resp.StatusCode, source.URN)
	}

	return parseSSE(resp.Body, source.URN, d.logger), nil
}

// parseSSE implements the SSE line-parsing state machine: "data:" lines are
// buffered and concatenated, a blank line terminates and decodes the
// buffered event as JSON, and id:/event:/retry:/comment lines are ignored.
// A trailing buffer with no terminating blank line is flushed at EOF.
func parseSSE(body io.Reader, urn string, logger *slog.Logger) []any {
	var results []any
	var buffer []string

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		full := strings.Join(buffer, "")
		buffer = nil

		var data any
		if err := json.Unmarshal([]byte(full), &data); err != nil {
			logger.Warn("dispatcher: failed to parse SSE data", "urn", urn, "data", full)
			return
		}
		results = append(results, data)
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if strings.HasPrefix(line, "data:") {
			content := line[len("data:"):]
			content = strings.TrimPrefix(content, " ")
			buffer = append(buffer, content)
		}
		// id:, event:, retry:, and ":" comment lines are ignored.
	}

	flush()
	return results
}

// Close releases the underlying transport if this Dispatcher owns it.
func (d *Dispatcher) Close() error {
	if d.ownsClient {
		d.client.CloseIdleConnections()
	}
	return nil
}
