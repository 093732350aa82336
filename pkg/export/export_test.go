package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"reflect"
	"strings"
	"testing"

	"bionexus/pkg/common"
	"bionexus/pkg/store/memory"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	ctx := context.Background()

	if err := s.UpsertPublication(ctx, common.Publication{
		ID: "pub-1", Title: "Microgravity and Bone", Authors: []string{"K. Ito", "R. Vega"}, Year: 2019, TotalPages: 2,
	}); err != nil {
		t.Fatalf("UpsertPublication() error = %v", err)
	}
	for _, page := range []common.Page{
		{ID: "pub-1_page_001", PublicationID: "pub-1", Number: 1, Text: "intro"},
		{ID: "pub-1_page_002", PublicationID: "pub-1", Number: 2, Text: "results"},
	} {
		if err := s.UpsertPage(ctx, page); err != nil {
			t.Fatalf("UpsertPage() error = %v", err)
		}
	}

	entities := []common.Entity{
		{ID: "organism_aa11", Name: "Mus musculus", Type: common.EntityTypeOrganism, CanonicalID: "NCBITaxon:10090", Confidence: 0.95},
		{ID: "endpoint_bb22", Name: "bone density", Type: common.EntityTypeEndpoint, Confidence: 0.8},
	}
	if err := s.UpsertEntities(ctx, entities); err != nil {
		t.Fatalf("UpsertEntities() error = %v", err)
	}
	if err := s.UpsertMentions(ctx, []common.Mention{
		{EntityID: "organism_aa11", PageID: "pub-1_page_002", Confidence: 0.95},
	}); err != nil {
		t.Fatalf("UpsertMentions() error = %v", err)
	}
	if err := s.UpsertRelationships(ctx, []common.Relationship{
		{SourceID: "organism_aa11", TargetID: "endpoint_bb22", Type: common.RelationHasEndpoint, Confidence: 0.7, Evidence: []string{"femoral density decreased"}},
	}); err != nil {
		t.Fatalf("UpsertRelationships() error = %v", err)
	}
	return s
}

func TestEntityExportRoundTrip(t *testing.T) {
	s := seedStore(t)
	e := NewExporter(s)
	ctx := context.Background()

	var buf bytes.Buffer
	if err := e.EntitiesJSON(ctx, &buf, ""); err != nil {
		t.Fatalf("EntitiesJSON() error = %v", err)
	}

	original, err := s.ListEntities(ctx, "")
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}

	target := memory.NewStore()
	n, err := ImportEntities(ctx, target, &buf)
	if err != nil {
		t.Fatalf("ImportEntities() error = %v", err)
	}
	if n != len(original) {
		t.Errorf("ImportEntities() = %d, want %d", n, len(original))
	}

	imported, err := target.ListEntities(ctx, "")
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	if !reflect.DeepEqual(original, imported) {
		t.Errorf("round trip mismatch:\noriginal %+v\nimported %+v", original, imported)
	}
}

func TestImportRejectsMalformedEntities(t *testing.T) {
	target := memory.NewStore()
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"missing id", `{"entities":[{"name":"x","entity_type":"Organism"}]}`},
		{"unknown type", `{"entities":[{"entity_id":"e1","name":"x","entity_type":"Spaceship"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportEntities(ctx, target, strings.NewReader(tt.body))
			if !common.IsValidation(err) {
				t.Errorf("ImportEntities() error = %v, want validation error", err)
			}
		})
	}
}

func TestEntitiesCSV(t *testing.T) {
	e := NewExporter(seedStore(t))

	var buf bytes.Buffer
	if err := e.EntitiesCSV(context.Background(), &buf, common.EntityTypeOrganism); err != nil {
		t.Fatalf("EntitiesCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("CSV rows = %d, want header + 1 organism", len(records))
	}
	if records[1][1] != "Mus musculus" || records[1][3] != "NCBITaxon:10090" {
		t.Errorf("organism row = %v, want name and canonical id preserved", records[1])
	}
}

func TestGraphJSONContainsAllEdgeKinds(t *testing.T) {
	e := NewExporter(seedStore(t))

	doc, err := e.buildGraph(context.Background())
	if err != nil {
		t.Fatalf("buildGraph() error = %v", err)
	}

	// 1 publication + 2 pages + 2 entities
	if len(doc.Nodes) != 5 {
		t.Errorf("nodes = %d, want 5", len(doc.Nodes))
	}
	kinds := make(map[string]int)
	for _, edge := range doc.Edges {
		kinds[edge.Type]++
	}
	want := map[string]int{
		string(common.RelationPartOf):      2,
		string(common.RelationMentionedIn): 1,
		string(common.RelationHasEndpoint): 1,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("edge kinds = %v, want %v", kinds, want)
	}
}

func TestGraphCypherMergesAndEscapes(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()
	if err := s.UpsertEntities(ctx, []common.Entity{
		{ID: "other_cc33", Name: "O'Neill cylinder", Type: common.EntityTypeOther, Confidence: 0.5},
	}); err != nil {
		t.Fatalf("UpsertEntities() error = %v", err)
	}

	var buf bytes.Buffer
	if err := NewExporter(s).GraphCypher(ctx, &buf); err != nil {
		t.Fatalf("GraphCypher() error = %v", err)
	}
	script := buf.String()

	if !strings.Contains(script, "MERGE (n:Organism {id: 'organism_aa11'})") {
		t.Error("script missing entity MERGE with type label")
	}
	if !strings.Contains(script, "MERGE (a)-[r:HAS_ENDPOINT]->(b)") {
		t.Error("script missing typed relationship MERGE")
	}
	if !strings.Contains(script, `O\'Neill cylinder`) {
		t.Error("script does not escape single quotes")
	}
	if strings.Contains(script, "CREATE ") {
		t.Error("script must use MERGE only so re-runs stay idempotent")
	}
}

func TestFormatsCatalog(t *testing.T) {
	formats := Formats()
	if len(formats) != 6 {
		t.Fatalf("Formats() = %d entries, want 6", len(formats))
	}
	for _, f := range formats {
		if f.Name == "" || f.ContentType == "" {
			t.Errorf("format %+v missing name or content type", f)
		}
	}
}
