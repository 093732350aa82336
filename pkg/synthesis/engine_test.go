package synthesis

import (
	"context"
	"errors"
	"testing"

	"bionexus/pkg/ai"
	"bionexus/pkg/common"
	"bionexus/pkg/retrieval"
	"bionexus/pkg/store"
)

type fakeSearcher struct {
	results []retrieval.Result
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, filter store.SearchFilter, topK int) ([]retrieval.Result, error) {
	return f.results, f.err
}

type fakeAIClient struct {
	completion string
	err        error
	calls      int
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.calls++
	return f.completion, f.err
}

func (f *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAIClient) GenerateImageDescription(ctx context.Context, prompt string, image ai.ImageData) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAIClient) ResetMetrics()               {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func boneLossResults() []retrieval.Result {
	return []retrieval.Result{
		{
			PageID: "pub-1_page_004", PublicationID: "pub-1",
			Title: "Skeletal Adaptation to Spaceflight", Year: 2019, PageNumber: 4,
			Score: 0.91, Text: "Mice exposed to 30 days of microgravity lost 8% femoral bone density.",
			Snippet: "lost 8% femoral bone density",
		},
		{
			PageID: "pub-2_page_002", PublicationID: "pub-2",
			Title: "Countermeasures Review", Year: 2021, PageNumber: 2,
			Score: 0.84, Text: "Resistive exercise partially mitigated bone loss during long missions.",
			Snippet: "resistive exercise partially mitigated bone loss",
		},
		{
			PageID: "pub-3_page_007", PublicationID: "pub-3",
			Title: "Rodent Habitat Hardware", Year: 2017, PageNumber: 7,
			Score: 0.41, Text: "Habitat hardware description.",
		},
	}
}

func newTestEngine(search Searcher, client ai.Client) *Engine {
	return &Engine{
		Search:              search,
		AI:                  client,
		ContextTokens:       6000,
		SimilarityThreshold: 0.35,
		MinEvidencePages:    2,
	}
}

func TestAnswerCitesEvidence(t *testing.T) {
	client := &fakeAIClient{
		completion: "Microgravity exposure reduced femoral bone density by 8% [1]. Resistive exercise partially mitigated the loss [2].",
	}
	e := newTestEngine(&fakeSearcher{results: boneLossResults()}, client)

	answer, err := e.Answer(context.Background(), "What does microgravity do to bone density?", Options{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.InsufficientEvidence {
		t.Error("InsufficientEvidence = true, want false with strong evidence")
	}
	if len(answer.Citations) < 2 {
		t.Fatalf("Citations = %d, want at least 2", len(answer.Citations))
	}
	if answer.Citations[0].PageID != "pub-1_page_004" || answer.Citations[1].PageID != "pub-2_page_002" {
		t.Errorf("citations = [%s %s], want markers mapped to passages in rank order",
			answer.Citations[0].PageID, answer.Citations[1].PageID)
	}
	want := (0.91 + 0.84) / 2
	if diff := answer.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want mean of cited scores %v", answer.Confidence, want)
	}
}

func TestAnswerInsufficientEvidenceSkipsModel(t *testing.T) {
	results := []retrieval.Result{
		{PageID: "pub-1_page_001", PublicationID: "pub-1", Title: "Only Hit", Score: 0.9, Text: "one strong page"},
		{PageID: "pub-2_page_001", PublicationID: "pub-2", Title: "Weak Hit", Score: 0.1, Text: "barely related"},
	}
	client := &fakeAIClient{completion: "should never be called"}
	e := newTestEngine(&fakeSearcher{results: results}, client)

	answer, err := e.Answer(context.Background(), "Any tardigrade data?", Options{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !answer.InsufficientEvidence {
		t.Error("InsufficientEvidence = false, want true with one passing page")
	}
	if client.calls != 0 {
		t.Errorf("model calls = %d, want 0", client.calls)
	}
	if len(answer.Candidates) != 2 {
		t.Fatalf("Candidates = %d, want both publications listed", len(answer.Candidates))
	}
	if answer.Candidates[0].PublicationID != "pub-1" {
		t.Errorf("first candidate = %s, want best-scored pub-1", answer.Candidates[0].PublicationID)
	}
}

func TestAnswerModelFailure(t *testing.T) {
	client := &fakeAIClient{err: errors.New("connection refused")}
	e := newTestEngine(&fakeSearcher{results: boneLossResults()}, client)

	_, err := e.Answer(context.Background(), "What does microgravity do to bone density?", Options{})
	if !errors.Is(err, common.ErrSynthesisUnavailable) {
		t.Errorf("Answer() error = %v, want ErrSynthesisUnavailable", err)
	}
}

func TestAnswerCapsConfidenceWhenModelSignalsInsufficient(t *testing.T) {
	client := &fakeAIClient{
		completion: "Insufficient evidence. The closest material is the habitat description [1].",
	}
	e := newTestEngine(&fakeSearcher{results: boneLossResults()}, client)

	answer, err := e.Answer(context.Background(), "Did any study measure tail regeneration?", Options{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !answer.InsufficientEvidence {
		t.Error("InsufficientEvidence = false, want true when the model says so")
	}
	if answer.Confidence > lowConfidenceCeiling {
		t.Errorf("Confidence = %v, want capped at %v", answer.Confidence, lowConfidenceCeiling)
	}
	if len(answer.Candidates) == 0 {
		t.Error("Candidates empty, want retrieval sources listed")
	}
}

func TestAnswerHonorsContextWindowOverride(t *testing.T) {
	client := &fakeAIClient{
		completion: "Bone density dropped [1], and exercise helped [2].",
	}
	e := newTestEngine(&fakeSearcher{results: boneLossResults()}, client)

	// A budget this small fits only the first passage, so the [2] marker
	// points at nothing and must be dropped.
	answer, err := e.Answer(context.Background(), "What does microgravity do to bone density?", Options{
		ContextTokens: 5,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(answer.Citations) != 1 {
		t.Fatalf("Citations = %d, want 1 with a single budgeted passage", len(answer.Citations))
	}
	if answer.Citations[0].PageID != "pub-1_page_004" {
		t.Errorf("citation = %s, want the top-ranked passage", answer.Citations[0].PageID)
	}
}

func TestAnswerOmitsCitationsWhenDisabled(t *testing.T) {
	client := &fakeAIClient{
		completion: "Microgravity reduced bone density [1], exercise mitigated it [2].",
	}
	e := newTestEngine(&fakeSearcher{results: boneLossResults()}, client)

	include := false
	answer, err := e.Answer(context.Background(), "What does microgravity do to bone density?", Options{
		IncludeCitations: &include,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(answer.Citations) != 0 {
		t.Errorf("Citations = %d, want none when disabled", len(answer.Citations))
	}
	want := (0.91 + 0.84) / 2
	if diff := answer.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want %v computed from the cited passages regardless", answer.Confidence, want)
	}
}

func TestParseCitationsDropsOutOfRange(t *testing.T) {
	passages := boneLossResults()[:2]
	got := parseCitations("claim [1], bogus [7], repeat [1], other [2]", passages)
	if len(got) != 2 {
		t.Fatalf("parseCitations() = %d citations, want 2", len(got))
	}
	if got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("indices = [%d %d], want [1 2]", got[0].Index, got[1].Index)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	e := newTestEngine(&fakeSearcher{}, &fakeAIClient{})
	if _, err := e.Answer(context.Background(), "", Options{}); !common.IsValidation(err) {
		t.Errorf("Answer() error = %v, want validation error", err)
	}
}
