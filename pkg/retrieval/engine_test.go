package retrieval

import (
	"context"
	"reflect"
	"testing"

	"bionexus/pkg/common"
	"bionexus/pkg/store"
	"bionexus/pkg/store/memory"
)

type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) EmbedPage(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

// seedCorpus loads two publications: pub-1 page 1 is a strong vector match,
// pub-2 page 1 is only reachable through the "bone density" entity.
func seedCorpus(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	ctx := context.Background()

	pubs := []common.Publication{
		{ID: "pub-1", Title: "Microgravity and Bone", Year: 2019},
		{ID: "pub-2", Title: "Skeletal Endpoints", Year: 2021},
	}
	for _, pub := range pubs {
		if err := s.UpsertPublication(ctx, pub); err != nil {
			t.Fatalf("UpsertPublication() error = %v", err)
		}
	}

	pages := []common.Page{
		{ID: "pub-1_page_001", PublicationID: "pub-1", Number: 1, Text: "Prolonged microgravity exposure reduced femoral bone density in mice."},
		{ID: "pub-1_page_002", PublicationID: "pub-1", Number: 2, Text: "Methods and instrumentation."},
		{ID: "pub-2_page_001", PublicationID: "pub-2", Number: 1, Text: "Bone density was the primary endpoint across all cohorts."},
	}
	for _, page := range pages {
		if err := s.UpsertPage(ctx, page); err != nil {
			t.Fatalf("UpsertPage() error = %v", err)
		}
	}

	embeddings := []common.EmbeddingRecord{
		{PageID: "pub-1_page_001", PublicationID: "pub-1", Vector: []float32{1, 0}, Year: 2019, Snippet: "reduced femoral bone density"},
		{PageID: "pub-1_page_002", PublicationID: "pub-1", Vector: []float32{0, 1}, Year: 2019},
	}
	for _, rec := range embeddings {
		if err := s.UpsertEmbedding(ctx, rec); err != nil {
			t.Fatalf("UpsertEmbedding() error = %v", err)
		}
	}

	entity := common.Entity{
		ID:         common.EntityID("bone density", "", common.EntityTypeEndpoint),
		Name:       "bone density",
		Type:       common.EntityTypeEndpoint,
		Confidence: 0.9,
	}
	if err := s.UpsertEntities(ctx, []common.Entity{entity}); err != nil {
		t.Fatalf("UpsertEntities() error = %v", err)
	}
	mentions := []common.Mention{
		{EntityID: entity.ID, PageID: "pub-2_page_001", Confidence: 0.9},
		{EntityID: entity.ID, PageID: "pub-1_page_001", Confidence: 0.8},
	}
	if err := s.UpsertMentions(ctx, mentions); err != nil {
		t.Fatalf("UpsertMentions() error = %v", err)
	}
	return s
}

func newTestEngine(s *memory.Store) *Engine {
	return &Engine{
		Graph:      s,
		Vector:     s,
		Embed:      &fakeEmbedder{vector: []float32{1, 0}},
		Alpha:      0.7,
		FloorScore: 0.25,
	}
}

func TestSearchBlendsBothSources(t *testing.T) {
	s := seedCorpus(t)
	e := newTestEngine(s)

	results, err := e.Search(context.Background(), "bone density in microgravity", store.SearchFilter{}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}

	// pub-1 page 1 is hit by both sources and must rank first.
	first := results[0]
	if first.PageID != "pub-1_page_001" {
		t.Errorf("top result = %s, want pub-1_page_001", first.PageID)
	}
	if first.VectorScore == 0 || first.GraphScore == 0 {
		t.Errorf("top result scores = vector %v graph %v, want both sources contributing", first.VectorScore, first.GraphScore)
	}
	// The graph-only page must survive into top 2.
	if results[1].PageID != "pub-2_page_001" {
		t.Errorf("second result = %s, want graph-only pub-2_page_001", results[1].PageID)
	}
	if results[1].Title != "Skeletal Endpoints" {
		t.Errorf("second result title = %q, want hydrated publication title", results[1].Title)
	}
	if len(results[1].Entities) != 1 || results[1].Entities[0] != "bone density" {
		t.Errorf("second result entities = %v, want matched entity name", results[1].Entities)
	}
}

func TestGraphOnlyHitsNeverScoreBelowFloor(t *testing.T) {
	s := seedCorpus(t)
	ctx := context.Background()

	// Weaken the graph-only mention so (1-alpha)*confidence < floor.
	if err := s.UpsertPage(ctx, common.Page{ID: "pub-2_page_002", PublicationID: "pub-2", Number: 2, Text: "bone density appendix"}); err != nil {
		t.Fatalf("UpsertPage() error = %v", err)
	}
	entityID := common.EntityID("bone density", "", common.EntityTypeEndpoint)
	if err := s.UpsertMentions(ctx, []common.Mention{{EntityID: entityID, PageID: "pub-2_page_002", Confidence: 0.1}}); err != nil {
		t.Fatalf("UpsertMentions() error = %v", err)
	}

	e := newTestEngine(s)
	results, err := e.Search(ctx, "bone density", store.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	for _, res := range results {
		if res.VectorScore == 0 && res.GraphScore > 0 && res.Score < e.FloorScore {
			t.Errorf("graph-only page %s scored %v, below floor %v", res.PageID, res.Score, e.FloorScore)
		}
	}
}

func TestSearchTieBreaksByYearThenID(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	for _, pub := range []common.Publication{
		{ID: "pub-a", Year: 2015},
		{ID: "pub-b", Year: 2022},
	} {
		if err := s.UpsertPublication(ctx, pub); err != nil {
			t.Fatalf("UpsertPublication() error = %v", err)
		}
	}
	for _, page := range []common.Page{
		{ID: "pub-a_page_001", PublicationID: "pub-a", Number: 1, Text: "identical"},
		{ID: "pub-b_page_001", PublicationID: "pub-b", Number: 1, Text: "identical"},
	} {
		if err := s.UpsertPage(ctx, page); err != nil {
			t.Fatalf("UpsertPage() error = %v", err)
		}
	}
	for _, rec := range []common.EmbeddingRecord{
		{PageID: "pub-a_page_001", PublicationID: "pub-a", Vector: []float32{1, 0}, Year: 2015},
		{PageID: "pub-b_page_001", PublicationID: "pub-b", Vector: []float32{1, 0}, Year: 2022},
	} {
		if err := s.UpsertEmbedding(ctx, rec); err != nil {
			t.Fatalf("UpsertEmbedding() error = %v", err)
		}
	}

	e := newTestEngine(s)
	results, err := e.Search(ctx, "identical pages", store.SearchFilter{}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].PageID != "pub-b_page_001" {
		t.Errorf("top result = %s, want the newer publication on a tied score", results[0].PageID)
	}
}

func TestGraphOnlyTieBreaksByYear(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	// No embeddings at all: both pages are graph-only and land on the
	// floor score, so only the year separates them.
	for _, pub := range []common.Publication{
		{ID: "pub-aaa", Year: 2010},
		{ID: "pub-zzz", Year: 2024},
	} {
		if err := s.UpsertPublication(ctx, pub); err != nil {
			t.Fatalf("UpsertPublication() error = %v", err)
		}
	}
	for _, page := range []common.Page{
		{ID: "pub-aaa_page_001", PublicationID: "pub-aaa", Number: 1, Text: "cortisol levels"},
		{ID: "pub-zzz_page_001", PublicationID: "pub-zzz", Number: 1, Text: "cortisol levels"},
	} {
		if err := s.UpsertPage(ctx, page); err != nil {
			t.Fatalf("UpsertPage() error = %v", err)
		}
	}
	entity := common.Entity{
		ID:         common.EntityID("cortisol", "", common.EntityTypeChemical),
		Name:       "cortisol",
		Type:       common.EntityTypeChemical,
		Confidence: 0.1,
	}
	if err := s.UpsertEntities(ctx, []common.Entity{entity}); err != nil {
		t.Fatalf("UpsertEntities() error = %v", err)
	}
	mentions := []common.Mention{
		{EntityID: entity.ID, PageID: "pub-aaa_page_001", Confidence: 0.1},
		{EntityID: entity.ID, PageID: "pub-zzz_page_001", Confidence: 0.1},
	}
	if err := s.UpsertMentions(ctx, mentions); err != nil {
		t.Fatalf("UpsertMentions() error = %v", err)
	}

	e := newTestEngine(s)
	results, err := e.Search(ctx, "cortisol", store.SearchFilter{}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d results, want 1", len(results))
	}
	if results[0].PublicationID != "pub-zzz" {
		t.Errorf("top result from %s, want the newer pub-zzz on a tied floor score", results[0].PublicationID)
	}
	if results[0].Year != 2024 {
		t.Errorf("Year = %d, want 2024", results[0].Year)
	}
}

func TestSearchAppliesFilter(t *testing.T) {
	s := seedCorpus(t)
	e := newTestEngine(s)

	results, err := e.Search(context.Background(), "bone density", store.SearchFilter{Publications: []string{"pub-2"}}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, res := range results {
		if res.PublicationID != "pub-2" {
			t.Errorf("result %s from %s leaked through the publication filter", res.PageID, res.PublicationID)
		}
	}
	if len(results) == 0 {
		t.Error("Search() returned nothing, want the pub-2 graph hit")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	e := newTestEngine(memory.NewStore())
	if _, err := e.Search(context.Background(), "   ", store.SearchFilter{}, 5); !common.IsValidation(err) {
		t.Errorf("Search() error = %v, want validation error", err)
	}
}

func TestQueryTerms(t *testing.T) {
	got := queryTerms("Bone Density loss")
	want := []string{
		"bone density loss",
		"bone density", "density loss",
		"bone", "density", "loss",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("queryTerms() = %v, want %v", got, want)
	}
}
