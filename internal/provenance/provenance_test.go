package provenance_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreason-ai/catalog/internal/model"
	"github.com/coreason-ai/catalog/internal/provenance"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 123456000, time.UTC)
}

func TestGenerate_Deterministic(t *testing.T) {
	g := provenance.NewWithClock(fixedClock)
	qid := uuid.New()
	results := []model.SourceResult{
		{SourceURN: "urn:coreason:source:eu", Status: model.StatusSuccess},
		{SourceURN: "urn:coreason:source:us", Status: model.StatusSuccess},
	}

	a := g.Generate(qid, results)
	b := g.Generate(qid, results)
	assert.Equal(t, a, b, "two calls with the same inputs and clock must be byte-identical")
}

func TestGenerate_ProvUsedContainsOnlySuccessSortedByURN(t *testing.T) {
	g := provenance.NewWithClock(fixedClock)
	qid := uuid.New()
	results := []model.SourceResult{
		{SourceURN: "urn:coreason:source:zz", Status: model.StatusSuccess},
		{SourceURN: "urn:coreason:source:aa", Status: model.StatusError},
		{SourceURN: "urn:coreason:source:mm", Status: model.StatusSuccess},
	}

	doc := decode(t, g.Generate(qid, results))
	used := findProvUsed(t, doc)
	assert.Equal(t, []any{"urn:coreason:source:mm", "urn:coreason:source:zz"}, used)
}

func TestGenerate_OmitsProvUsedWhenNoSuccess(t *testing.T) {
	g := provenance.NewWithClock(fixedClock)
	qid := uuid.New()
	results := []model.SourceResult{
		{SourceURN: "urn:coreason:source:aa", Status: model.StatusError},
	}

	doc := decode(t, g.Generate(qid, results))
	graph := doc["@graph"].([]any)
	activity := graph[0].(map[string]any)
	_, hasUsed := activity["prov:used"]
	assert.False(t, hasUsed, "prov:used must be absent, not an empty array, when no source succeeded")
}

func TestGenerate_EmptyResultsProducesValidDocument(t *testing.T) {
	g := provenance.NewWithClock(fixedClock)
	doc := decode(t, g.Generate(uuid.New(), nil))
	assert.NotNil(t, doc["@context"])
	assert.Len(t, doc["@graph"], 2)
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func findProvUsed(t *testing.T, doc map[string]any) []any {
	t.Helper()
	graph := doc["@graph"].([]any)
	activity := graph[0].(map[string]any)
	used, ok := activity["prov:used"].([]any)
	require.True(t, ok, "prov:used should be present")
	return used
}
