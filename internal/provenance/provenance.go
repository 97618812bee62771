// Package provenance generates deterministic W3C PROV-O JSON-LD
// chain-of-custody documents for aggregated catalog responses.
package provenance

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/coreason-ai/catalog/internal/model"
)

// provenanceContext is the fixed @context block. Field order is alphabetical
// by JSON key, matching the original's json.dumps(sort_keys=True) output.
type provenanceContext struct {
	Coreason string `json:"coreason"`
	Prov     string `json:"prov"`
	XSD      string `json:"xsd"`
}

// typedValue renders a typed literal, e.g. {"@type": "xsd:dateTime", "@value": "..."}.
// Field order is alphabetical by JSON key ("@type" < "@value").
type typedValue struct {
	Type  string `json:"@type"`
	Value string `json:"@value"`
}

// activityNode is the Activity graph node. ProvUsed is omitted entirely
// (not emitted as an empty array) unless at least one source succeeded.
// Field order is alphabetical by JSON key.
type activityNode struct {
	ID          string     `json:"@id"`
	Type        string     `json:"@type"`
	ProvEndedAt typedValue `json:"prov:endedAtTime"`
	ProvUsed    []string   `json:"prov:used,omitempty"`
}

// entityNode is the response Entity graph node. Field order is alphabetical
// by JSON key ("coreason:queryId" < "prov:wasGeneratedBy").
type entityNode struct {
	ID               string `json:"@id"`
	Type             string `json:"@type"`
	QueryID          string `json:"coreason:queryId"`
	ProvWasGenerated string `json:"prov:wasGeneratedBy"`
}

type document struct {
	Context provenanceContext `json:"@context"`
	Graph   []any             `json:"@graph"`
}

// Generator produces provenance documents.
type Generator struct {
	// now is overridable in tests; production code leaves it nil and falls
	// back to time.Now().
	now func() time.Time
}

// New constructs a Generator.
func New() *Generator {
	return &Generator{}
}

// NewWithClock constructs a Generator using clock in place of time.Now, for
// deterministic tests.
func NewWithClock(clock func() time.Time) *Generator {
	return &Generator{now: clock}
}

// Generate builds the JSON-LD provenance document for a query's results.
// The output is deterministic for a fixed timestamp: struct field order is
// fixed, and the prov:used URN list is sorted.
func (g *Generator) Generate(queryID uuid.UUID, results []model.SourceResult) string {
	now := time.Now
	if g.now != nil {
		now = g.now
	}
	timestamp := now().UTC().Format("2006-01-02T15:04:05.000000Z07:00")

	activityID := fmt.Sprintf("urn:coreason:activity:%s", queryID)
	responseID := fmt.Sprintf("urn:coreason:entity:response:%s", queryID)

	var usedURNs []string
	for _, r := range results {
		if r.Status == model.StatusSuccess {
			usedURNs = append(usedURNs, r.SourceURN)
		}
	}
	sort.Strings(usedURNs)

	activity := activityNode{
		ID:   activityID,
		Type: "prov:Activity",
		ProvEndedAt: typedValue{
			Type:  "xsd:dateTime",
			Value: timestamp,
		},
		ProvUsed: usedURNs,
	}

	entity := entityNode{
		ID:               responseID,
		Type:             "prov:Entity",
		QueryID:          queryID.String(),
		ProvWasGenerated: activityID,
	}

	doc := document{
		Context: provenanceContext{
			Coreason: "https://coreason.ai/provenance#",
			Prov:     "http://www.w3.org/ns/prov#",
			XSD:      "http://www.w3.org/2001/XMLSchema#",
		},
		Graph: []any{activity, entity},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		// Every field is a fixed, marshalable type; this cannot fail.
		panic(fmt.Sprintf("provenance: unexpected marshal failure: %v", err))
	}
	return string(raw)
}
