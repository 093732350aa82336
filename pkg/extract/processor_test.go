package extract

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"bionexus/internal/util"
	"bionexus/pkg/common"
)

type fakeReader struct {
	texts  map[int]string
	images map[int][]byte
}

func (r *fakeReader) PageCount(ctx context.Context) (int, error) {
	return len(r.texts), nil
}

func (r *fakeReader) PageText(ctx context.Context, n int) (string, error) {
	return r.texts[n], nil
}

func (r *fakeReader) PageImage(ctx context.Context, n int) ([]byte, error) {
	if img, ok := r.images[n]; ok {
		return img, nil
	}
	return []byte("png"), nil
}

type fakeTextExtractor struct {
	calls atomic.Int32
}

func (f *fakeTextExtractor) ExtractPageText(ctx context.Context, png []byte) (string, error) {
	f.calls.Add(1)
	return "ocr text", nil
}

type fakeEntityExtractor struct {
	failPage      string
	withRelations bool
}

func (f *fakeEntityExtractor) ExtractEntities(
	ctx context.Context,
	pub common.Publication,
	pageText string,
) ([]common.Entity, []common.Relationship, error) {
	if f.failPage != "" && pageText == f.failPage {
		return nil, nil, common.Validation("page", "unparseable")
	}
	entity := common.Entity{
		Name:       "Mus musculus",
		Type:       common.EntityTypeOrganism,
		Confidence: 0.9,
	}
	entity.ID = common.EntityID(entity.Name, "", entity.Type)

	var relations []common.Relationship
	if f.withRelations {
		relations = []common.Relationship{{
			SourceID:   entity.ID,
			TargetID:   common.EntityID("bone density", "", common.EntityTypeEndpoint),
			Type:       common.RelationInvestigates,
			Confidence: 0.8,
			Evidence:   []string{"mice were examined for femoral bone loss"},
		}}
	}
	return []common.Entity{entity}, relations, nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) EmbedPage(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestProcessor(text TextExtractor, entities EntityExtractor) *Processor {
	p := NewProcessor(text, entities, &fakeEmbedder{}, 2)
	p.Backoff = util.BackoffConfig{MaxTries: 1, Initial: time.Millisecond}
	return p
}

func TestProcessor_ProcessAllPages(t *testing.T) {
	reader := &fakeReader{texts: map[int]string{
		1: "page one text",
		2: "page two text",
		3: "page three text",
	}}
	pub := common.Publication{ID: "pub_abc123", Title: "Test Publication"}

	proc := newTestProcessor(&fakeTextExtractor{}, &fakeEntityExtractor{})
	total, out, err := proc.Process(context.Background(), pub, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 pages, got %d", total)
	}

	results := make(map[int]*common.PageResult)
	for outcome := range out {
		if outcome.Err != nil {
			t.Fatalf("unexpected page error: %v", outcome.Err)
		}
		results[outcome.Result.Page.Number] = outcome.Result
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	page2 := results[2]
	if page2.Page.ID != common.PageID("pub_abc123", 2) {
		t.Fatalf("unexpected page ID: %s", page2.Page.ID)
	}
	if len(page2.Mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(page2.Mentions))
	}
	if page2.Mentions[0].PageID != page2.Page.ID {
		t.Fatalf("mention page ID mismatch: %s", page2.Mentions[0].PageID)
	}
	if len(page2.Embedding) != 3 {
		t.Fatalf("expected embedding, got %v", page2.Embedding)
	}
}

func TestProcessor_PageFailureIsContained(t *testing.T) {
	reader := &fakeReader{texts: map[int]string{
		1: "fine",
		2: "poison",
		3: "fine too",
	}}
	pub := common.Publication{ID: "pub_abc123"}

	proc := newTestProcessor(&fakeTextExtractor{}, &fakeEntityExtractor{failPage: "poison"})
	_, out, err := proc.Process(context.Background(), pub, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ok, failed int
	for outcome := range out {
		if outcome.Err != nil {
			failed++
			var pageErr *common.PageError
			if !errors.As(outcome.Err, &pageErr) {
				t.Fatalf("expected PageError, got %v", outcome.Err)
			}
			if pageErr.PageNumber != 2 {
				t.Fatalf("expected failure on page 2, got %d", pageErr.PageNumber)
			}
			continue
		}
		ok++
	}
	if ok != 2 || failed != 1 {
		t.Fatalf("expected 2 ok / 1 failed, got %d / %d", ok, failed)
	}
}

func TestProcessor_OCRFallbackForScannedPages(t *testing.T) {
	reader := &fakeReader{texts: map[int]string{1: ""}}
	pub := common.Publication{ID: "pub_abc123"}

	ocr := &fakeTextExtractor{}
	proc := newTestProcessor(ocr, &fakeEntityExtractor{})
	_, out, err := proc.Process(context.Background(), pub, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for outcome := range out {
		if outcome.Err != nil {
			t.Fatalf("unexpected page error: %v", outcome.Err)
		}
		if outcome.Result.Page.Text != "ocr text" {
			t.Fatalf("expected OCR text, got %q", outcome.Result.Page.Text)
		}
	}
	if ocr.calls.Load() != 1 {
		t.Fatalf("expected 1 OCR call, got %d", ocr.calls.Load())
	}
}

func TestProcessor_RelationEvidenceNamesThePage(t *testing.T) {
	reader := &fakeReader{texts: map[int]string{1: "body text"}}
	proc := newTestProcessor(&fakeTextExtractor{}, &fakeEntityExtractor{withRelations: true})

	_, out, err := proc.Process(context.Background(), common.Publication{ID: "pub_rel"}, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for outcome := range out {
		if outcome.Err != nil {
			t.Fatalf("unexpected page error: %v", outcome.Err)
		}
		if len(outcome.Result.Relations) != 1 {
			t.Fatalf("expected 1 relation, got %d", len(outcome.Result.Relations))
		}
		evidence := outcome.Result.Relations[0].Evidence
		if len(evidence) != 2 {
			t.Fatalf("expected quote plus page id, got %v", evidence)
		}
		if evidence[0] != "mice were examined for femoral bone loss" {
			t.Fatalf("quote lost from evidence: %v", evidence)
		}
		if evidence[1] != common.PageID("pub_rel", 1) {
			t.Fatalf("expected page id in evidence, got %v", evidence)
		}
	}
}

func TestProcessor_EmptyDocument(t *testing.T) {
	reader := &fakeReader{texts: map[int]string{}}
	proc := newTestProcessor(&fakeTextExtractor{}, &fakeEntityExtractor{})

	_, _, err := proc.Process(context.Background(), common.Publication{ID: "pub_x"}, reader)
	if !common.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseFigures(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []common.Figure
	}{
		{
			name: "no captions",
			text: "plain body text without captions",
			want: nil,
		},
		{
			name: "figure and table",
			text: "intro\nFigure 1. Bone density over time.\nbody\nTable 2: Measured endpoints.",
			want: []common.Figure{
				{Kind: common.FigureKindFigure, Caption: "Figure 1. Bone density over time."},
				{Kind: common.FigureKindTable, Caption: "Table 2: Measured endpoints."},
			},
		},
		{
			name: "abbreviated figure",
			text: "Fig. 3 Microgravity exposure setup",
			want: []common.Figure{
				{Kind: common.FigureKindFigure, Caption: "Fig. 3 Microgravity exposure setup"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFigures(tt.text)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeImageSink struct {
	stored map[string][]byte
}

func (f *fakeImageSink) StorePageImage(ctx context.Context, pubID string, pageNumber int, png []byte) (string, error) {
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	key := fmt.Sprintf("pages/%s/%03d.png", pubID, pageNumber)
	f.stored[key] = png
	return key, nil
}

func TestProcessor_ArchivesRenderedPages(t *testing.T) {
	reader := &fakeReader{
		texts:  map[int]string{1: "text layer page", 2: ""},
		images: map[int][]byte{2: []byte("rendered scan")},
	}
	sink := &fakeImageSink{}
	proc := newTestProcessor(&fakeTextExtractor{}, &fakeEntityExtractor{})
	proc.Images = sink

	_, out, err := proc.Process(context.Background(), common.Publication{ID: "pub_img"}, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys := make(map[int]string)
	for outcome := range out {
		if outcome.Err != nil {
			t.Fatalf("unexpected page error: %v", outcome.Err)
		}
		keys[outcome.Result.Page.Number] = outcome.Result.Page.ImageKey
	}

	if keys[1] != "" {
		t.Fatalf("text-layer page should not be archived, got key %q", keys[1])
	}
	if keys[2] != "pages/pub_img/002.png" {
		t.Fatalf("unexpected image key: %q", keys[2])
	}
	if string(sink.stored["pages/pub_img/002.png"]) != "rendered scan" {
		t.Fatalf("sink did not receive the rendered page")
	}
}
