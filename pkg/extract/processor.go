package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"bionexus/internal/util"
	"bionexus/pkg/common"
	"bionexus/pkg/loader"
	pdfloader "bionexus/pkg/loader/pdf"
	"bionexus/pkg/logger"
)

// PageReader yields the pages of one scanned document.
type PageReader interface {
	PageCount(ctx context.Context) (int, error)
	// PageText returns the embedded text layer of the page (1-based), or
	// an empty string when the page is a pure scan.
	PageText(ctx context.Context, n int) (string, error)
	PageImage(ctx context.Context, n int) ([]byte, error)
}

// pdfPageReader reads pages out of raw PDF bytes, using the embedded text
// layer when present and rendering to PNG otherwise.
type pdfPageReader struct {
	raw []byte
}

// NewPDFPageReader wraps raw PDF bytes as a PageReader.
func NewPDFPageReader(raw []byte) PageReader {
	return &pdfPageReader{raw: raw}
}

func (r *pdfPageReader) PageCount(ctx context.Context) (int, error) {
	if n, err := pdfloader.PageCount(r.raw); err == nil && n > 0 {
		return n, nil
	}
	return loader.PdfPageCount(ctx, r.raw)
}

func (r *pdfPageReader) PageText(ctx context.Context, n int) (string, error) {
	text, err := pdfloader.PageText(r.raw, n)
	if err != nil {
		// A broken text layer is not fatal; the page falls through to OCR.
		return "", nil
	}
	return text, nil
}

func (r *pdfPageReader) PageImage(ctx context.Context, n int) ([]byte, error) {
	return loader.RenderPdfPage(ctx, r.raw, n)
}

// PageOutcome carries either a processed page or the error that sank it.
// Errors are tagged with their page number via common.PageError.
type PageOutcome struct {
	Result *common.PageResult
	Err    error
}

// ImageSink stores rendered page images and returns the object key under
// which they were stored.
type ImageSink interface {
	StorePageImage(ctx context.Context, pubID string, pageNumber int, png []byte) (string, error)
}

// Processor runs the per-page pipeline: text acquisition (text layer or
// OCR), entity extraction, and embedding. Pages are processed concurrently
// up to Parallel and emitted as they finish.
type Processor struct {
	Text     TextExtractor
	Entities EntityExtractor
	Embed    Embedder
	// Images receives the rendered image of every OCR'd page. Optional.
	Images ImageSink

	Parallel int
	Backoff  util.BackoffConfig
}

// NewProcessor creates a Processor with bounded page concurrency.
func NewProcessor(text TextExtractor, entities EntityExtractor, embed Embedder, parallel int) *Processor {
	if parallel <= 0 {
		parallel = 2
	}
	return &Processor{
		Text:     text,
		Entities: entities,
		Embed:    embed,
		Parallel: parallel,
		Backoff:  util.DefaultBackoff,
	}
}

// Process walks every page of the document and returns the page count plus
// a channel of outcomes. The channel is closed once all pages have been
// attempted or the context is canceled. A failed page never aborts its
// siblings.
func (p *Processor) Process(
	ctx context.Context,
	pub common.Publication,
	reader PageReader,
) (int, <-chan PageOutcome, error) {
	total, err := reader.PageCount(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("count pages: %w", err)
	}
	if total == 0 {
		return 0, nil, common.Validation("document", "document has no pages")
	}

	out := make(chan PageOutcome, total)

	go func() {
		defer close(out)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(p.Parallel)
		for pageNum := 1; pageNum <= total; pageNum++ {
			n := pageNum
			g.Go(func() error {
				if gCtx.Err() != nil {
					return nil
				}
				result, err := p.processPage(gCtx, pub, reader, n)
				if err != nil {
					out <- PageOutcome{Err: &common.PageError{PageNumber: n, Err: err}}
					return nil
				}
				out <- PageOutcome{Result: result}
				return nil
			})
		}
		g.Wait()
	}()

	return total, out, nil
}

func (p *Processor) processPage(
	ctx context.Context,
	pub common.Publication,
	reader PageReader,
	pageNum int,
) (*common.PageResult, error) {
	text, png, err := p.pageText(ctx, reader, pageNum)
	if err != nil {
		return nil, fmt.Errorf("page text: %w", err)
	}

	page := common.Page{
		ID:            common.PageID(pub.ID, pageNum),
		PublicationID: pub.ID,
		Number:        pageNum,
		Text:          text,
		Figures:       parseFigures(text),
	}
	if p.Images != nil && png != nil {
		key, err := p.Images.StorePageImage(ctx, pub.ID, pageNum, png)
		if err != nil {
			logger.Warn("[Extract] page image store failed", "page", page.ID, "err", err)
		} else {
			page.ImageKey = key
		}
	}

	var (
		entities  []common.Entity
		relations []common.Relationship
		embedding []float32
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return util.RetryBackoffErr(gCtx, p.Backoff, retryTransient, func(ctx context.Context) error {
			var err error
			entities, relations, err = p.Entities.ExtractEntities(ctx, pub, text)
			return err
		})
	})
	g.Go(func() error {
		return util.RetryBackoffErr(gCtx, p.Backoff, retryTransient, func(ctx context.Context) error {
			var err error
			embedding, err = p.Embed.EmbedPage(ctx, text)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Evidence lists carry the supporting quote plus the page it came
	// from, so unioned evidence stays traceable after graph merges.
	for i := range relations {
		relations[i].Evidence = append(relations[i].Evidence, page.ID)
	}

	mentions := make([]common.Mention, 0, len(entities))
	for _, entity := range entities {
		mentions = append(mentions, common.Mention{
			EntityID:   entity.ID,
			PageID:     page.ID,
			Confidence: entity.Confidence,
		})
	}

	return &common.PageResult{
		Page:      page,
		Entities:  entities,
		Mentions:  mentions,
		Relations: relations,
		Embedding: embedding,
	}, nil
}

// pageText prefers the embedded text layer and falls back to OCR on the
// rendered page. The rendered image is returned alongside the text so it
// can be archived.
func (p *Processor) pageText(ctx context.Context, reader PageReader, pageNum int) (string, []byte, error) {
	if text, err := reader.PageText(ctx, pageNum); err == nil && strings.TrimSpace(text) != "" {
		return text, nil, nil
	}

	png, err := reader.PageImage(ctx, pageNum)
	if err != nil {
		return "", nil, fmt.Errorf("render page: %w", err)
	}

	text, err := util.RetryBackoff(ctx, p.Backoff, retryTransient, func(ctx context.Context) (string, error) {
		return p.Text.ExtractPageText(ctx, png)
	})
	if err != nil {
		return "", nil, err
	}
	return text, png, nil
}

// retryTransient keeps validation failures from burning retry attempts;
// everything else (network, model hiccups, timeouts) gets retried.
func retryTransient(err error) bool {
	return !common.IsValidation(err)
}

var figureCaptionPattern = regexp.MustCompile(`(?mi)^\s*(figure|fig\.?|table)\s+\d+[.:]?\s*(.*)$`)

// parseFigures detects figure and table captions in the page text.
func parseFigures(text string) []common.Figure {
	matches := figureCaptionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	figures := make([]common.Figure, 0, len(matches))
	for _, m := range matches {
		kind := common.FigureKindFigure
		if strings.EqualFold(m[1], "table") {
			kind = common.FigureKindTable
		}
		figures = append(figures, common.Figure{
			Kind:    kind,
			Caption: strings.TrimSpace(m[0]),
		})
	}
	return figures
}
