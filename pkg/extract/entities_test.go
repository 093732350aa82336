package extract

import (
	"context"
	"testing"

	"bionexus/pkg/ai"
	"bionexus/pkg/common"
)

// fakeAIClient feeds canned structured output into the extractor.
type fakeAIClient struct {
	response extractResponse
	err      error
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if f.err != nil {
		return f.err
	}
	*(out.(*extractResponse)) = f.response
	return nil
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{0}, nil
}

func (f *fakeAIClient) GenerateImageDescription(ctx context.Context, prompt string, image ai.ImageData) (string, error) {
	return "", nil
}

func (f *fakeAIClient) ResetMetrics()               {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestAIEntityExtractor_MapsTypedEntities(t *testing.T) {
	client := &fakeAIClient{response: extractResponse{
		Entities: []extractEntity{
			{Name: "Mus musculus", Type: "Organism", CanonicalID: "NCBITaxon:10090", Confidence: 0.95},
			{Name: "bone densitometer", Type: "Gadget", Confidence: 1.7},
			{Name: "", Type: "Protein", Confidence: 0.8},
		},
	}}

	extractor := NewAIEntityExtractor(client, 0)
	entities, _, err := extractor.ExtractEntities(
		context.Background(),
		common.Publication{Title: "Bone loss in mice"},
		"some page text",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}

	mouse := entities[0]
	if mouse.Type != common.EntityTypeOrganism {
		t.Fatalf("expected Organism, got %s", mouse.Type)
	}
	if mouse.CanonicalID != "NCBITaxon:10090" {
		t.Fatalf("expected canonical ID kept, got %q", mouse.CanonicalID)
	}
	if mouse.ID == "" {
		t.Fatal("expected derived entity ID")
	}

	gadget := entities[1]
	if gadget.Type != common.EntityTypeOther {
		t.Fatalf("unknown type should map to Other, got %s", gadget.Type)
	}
	if gadget.Confidence != 1.0 {
		t.Fatalf("confidence should clamp to 1.0, got %f", gadget.Confidence)
	}
}

func TestAIEntityExtractor_DropsBogusCanonicalIDs(t *testing.T) {
	client := &fakeAIClient{response: extractResponse{
		Entities: []extractEntity{
			{Name: "collagen", Type: "Protein", CanonicalID: "wikipedia.org/collagen", Confidence: 0.8},
		},
	}}

	extractor := NewAIEntityExtractor(client, 0)
	entities, _, err := extractor.ExtractEntities(context.Background(), common.Publication{}, "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entities[0].CanonicalID != "" {
		t.Fatalf("expected bogus canonical ID dropped, got %q", entities[0].CanonicalID)
	}
}

func TestAIEntityExtractor_FiltersRelations(t *testing.T) {
	client := &fakeAIClient{response: extractResponse{
		Entities: []extractEntity{
			{Name: "microgravity", Type: "Condition", Confidence: 0.9},
			{Name: "bone density", Type: "Endpoint", Confidence: 0.85},
		},
		Relationships: []extractRelationship{
			{Source: "microgravity", Target: "bone density", Type: "INVESTIGATES", Confidence: 0.8, Evidence: "we measured bone density under microgravity"},
			{Source: "microgravity", Target: "bone density", Type: "CAUSES", Confidence: 0.8},
			{Source: "unknown entity", Target: "bone density", Type: "MEASURES", Confidence: 0.8},
			{Source: "microgravity", Target: "microgravity", Type: "MEASURES", Confidence: 0.8},
		},
	}}

	extractor := NewAIEntityExtractor(client, 0)
	_, relations, err := extractor.ExtractEntities(context.Background(), common.Publication{}, "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(relations) != 1 {
		t.Fatalf("expected 1 surviving relation, got %d", len(relations))
	}
	rel := relations[0]
	if rel.Type != common.RelationInvestigates {
		t.Fatalf("unexpected relation type: %s", rel.Type)
	}
	if len(rel.Evidence) != 1 {
		t.Fatalf("expected evidence quote, got %v", rel.Evidence)
	}
}

func TestAIEntityExtractor_EmptyPageSkipsModel(t *testing.T) {
	client := &fakeAIClient{err: context.DeadlineExceeded}

	extractor := NewAIEntityExtractor(client, 0)
	entities, relations, err := extractor.ExtractEntities(context.Background(), common.Publication{}, "   ")
	if err != nil {
		t.Fatalf("expected no model call for empty page, got %v", err)
	}
	if entities != nil || relations != nil {
		t.Fatalf("expected nil results, got %v / %v", entities, relations)
	}
}
