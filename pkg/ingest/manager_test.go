package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"bionexus/internal/util"
	"bionexus/pkg/ai"
	"bionexus/pkg/common"
	"bionexus/pkg/extract"
	"bionexus/pkg/store/memory"
	"bionexus/pkg/writer"
)

type fakeLoader struct {
	content   map[string][]byte
	failUntil map[string]int
	calls     map[string]*atomic.Int32
	// gate blocks a document's load until its channel closes, letting
	// tests observe a job mid-run.
	gate map[string]chan struct{}
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		content:   make(map[string][]byte),
		failUntil: make(map[string]int),
		calls:     make(map[string]*atomic.Int32),
	}
}

func (l *fakeLoader) add(id string, content []byte) {
	l.content[id] = content
	l.calls[id] = &atomic.Int32{}
}

func (l *fakeLoader) GetFileBytes(ctx context.Context, doc common.Document) ([]byte, error) {
	if ch, ok := l.gate[doc.ID]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	counter, ok := l.calls[doc.ID]
	if !ok {
		return nil, errors.New("unknown document")
	}
	n := counter.Add(1)
	if int(n) <= l.failUntil[doc.ID] {
		return nil, common.Transient("load", errors.New("endpoint unreachable"))
	}
	return l.content[doc.ID], nil
}

func (l *fakeLoader) GetBase64(ctx context.Context, doc common.Document) (ai.ImageData, error) {
	return ai.ImageData{}, errors.New("not implemented")
}

// fakeProcessor emits a fixed number of pages per document based on the
// raw content, with optional page failures.
type fakeProcessor struct {
	pages     map[string]int
	failPages map[string]int
}

func (p *fakeProcessor) Process(ctx context.Context, pub common.Publication, reader extract.PageReader) (int, <-chan extract.PageOutcome, error) {
	raw, _ := reader.PageImage(ctx, 0)
	key := string(raw)
	total, ok := p.pages[key]
	if !ok || total == 0 {
		return 0, nil, common.Validation("document", "document has no pages")
	}

	out := make(chan extract.PageOutcome, total)
	failing := p.failPages[key]
	for n := 1; n <= total; n++ {
		if n == failing {
			out <- extract.PageOutcome{Err: &common.PageError{PageNumber: n, Err: errors.New("unreadable scan")}}
			continue
		}
		out <- extract.PageOutcome{Result: &common.PageResult{
			Page: common.Page{
				ID:            common.PageID(pub.ID, n),
				PublicationID: pub.ID,
				Number:        n,
				Text:          "page text",
			},
			Embedding: []float32{0.1, 0.2},
		}}
	}
	close(out)
	return total, out, nil
}

// rawReader hands the raw bytes back so the fake processor can key on them.
type rawReader struct{ raw []byte }

func (r *rawReader) PageCount(ctx context.Context) (int, error)          { return 0, nil }
func (r *rawReader) PageText(ctx context.Context, n int) (string, error) { return "", nil }
func (r *rawReader) PageImage(ctx context.Context, n int) ([]byte, error) {
	return r.raw, nil
}

type testEnv struct {
	manager *Manager
	store   *memory.Store
	loader  *fakeLoader
	proc    *fakeProcessor
}

func newTestEnv() *testEnv {
	s := memory.NewStore()
	l := newFakeLoader()
	p := &fakeProcessor{pages: make(map[string]int), failPages: make(map[string]int)}
	m := NewManager(NewManagerParams{
		Jobs:         s,
		Graph:        s,
		Loader:       l,
		Processor:    p,
		Writer:       writer.NewWriter(s, s),
		ParallelDocs: 2,
		Backoff:      util.BackoffConfig{MaxTries: 3, Initial: time.Millisecond, Max: time.Millisecond},
		NewReader:    func(raw []byte) extract.PageReader { return &rawReader{raw: raw} },
	})
	return &testEnv{manager: m, store: s, loader: l, proc: p}
}

func (e *testEnv) addDocument(id string, pages int) common.Document {
	content := []byte("content-" + id)
	e.loader.add(id, content)
	e.proc.pages[string(content)] = pages
	return common.Document{ID: id, Path: id + ".pdf"}
}

func TestRunContainsDocumentFailures(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	docs := []common.Document{
		e.addDocument("d-1", 2),
		e.addDocument("d-2", 0), // no pages, fails validation
		e.addDocument("d-3", 3),
	}

	jobID, err := e.manager.Submit(ctx, docs, common.ModeFull)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := e.manager.Run(ctx, jobID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, err := e.manager.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if job.State != common.JobCompleted {
		t.Errorf("State = %s, want completed despite one failed document", job.State)
	}
	if job.Processed != 2 || job.Failed != 1 {
		t.Errorf("Processed/Failed = %d/%d, want 2/1", job.Processed, job.Failed)
	}
	if p := job.Progress(); p != 1.0 {
		t.Errorf("Progress() = %v, want 1.0 at terminal state", p)
	}

	for _, doc := range job.Documents {
		switch doc.Document.ID {
		case "d-2":
			if doc.State != common.DocFailed || doc.Error == "" {
				t.Errorf("d-2 state = %s error = %q, want failed with message", doc.State, doc.Error)
			}
		default:
			if doc.State != common.DocProcessed {
				t.Errorf("%s state = %s, want processed", doc.Document.ID, doc.State)
			}
			if doc.PublicationID == "" {
				t.Errorf("%s has no publication id", doc.Document.ID)
			}
		}
	}

	stats, err := e.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Pages != 5 {
		t.Errorf("Pages = %d, want 5 committed across surviving documents", stats.Pages)
	}
}

func TestRunCountsFailedPages(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	doc := e.addDocument("d-1", 4)
	e.proc.failPages["content-d-1"] = 3

	jobID, err := e.manager.Submit(ctx, []common.Document{doc}, common.ModeFull)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := e.manager.Run(ctx, jobID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, _ := e.manager.Status(ctx, jobID)
	if job.Processed != 1 {
		t.Errorf("Processed = %d, want 1 (document survives a bad page)", job.Processed)
	}
	got := job.Documents[0]
	if got.State != common.DocProcessed || got.Pages != 4 || got.FailedPages != 1 {
		t.Errorf("document = state %s pages %d failed %d, want processed 4 1", got.State, got.Pages, got.FailedPages)
	}
	if got.Error == "" {
		t.Error("document error is empty, want the first page failure recorded")
	}
}

func TestRetriesTransientLoadFailures(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	doc := e.addDocument("d-1", 1)
	e.loader.failUntil["d-1"] = 2 // first two attempts fail, third succeeds

	jobID, err := e.manager.Submit(ctx, []common.Document{doc}, common.ModeFull)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := e.manager.Run(ctx, jobID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, _ := e.manager.Status(ctx, jobID)
	if job.Processed != 1 || job.Failed != 0 {
		t.Errorf("Processed/Failed = %d/%d, want 1/0 after transient retries", job.Processed, job.Failed)
	}
	if calls := e.loader.calls["d-1"].Load(); calls != 3 {
		t.Errorf("loader calls = %d, want 3", calls)
	}
}

func TestStatusProgressNonDecreasingDuringRun(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	ids := []string{"d-1", "d-2", "d-3"}
	gates := make(map[string]chan struct{}, len(ids))
	docs := make([]common.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, e.addDocument(id, 1))
		gates[id] = make(chan struct{})
	}
	e.loader.gate = gates

	jobID, err := e.manager.Submit(ctx, docs, common.ModeFull)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.manager.Run(ctx, jobID) }()

	observed := []float64{0}
	pollUntil := func(target float64) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			job, err := e.manager.Status(ctx, jobID)
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			p := job.Progress()
			if last := observed[len(observed)-1]; p < last {
				t.Fatalf("progress went backwards: %v after %v", p, last)
			}
			observed = append(observed, p)
			if p >= target {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("progress stuck at %v, want %v", p, target)
			case <-time.After(time.Millisecond):
			}
		}
	}

	// Release the documents one at a time and watch the polled progress
	// climb through each step.
	close(gates["d-1"])
	pollUntil(1.0 / 3)
	close(gates["d-2"])
	pollUntil(2.0 / 3)
	close(gates["d-3"])
	pollUntil(1.0)

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	job, err := e.manager.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if p := job.Progress(); p != 1.0 {
		t.Errorf("Progress() = %v, want exactly 1.0 at terminal state", p)
	}
	if job.State != common.JobCompleted {
		t.Errorf("State = %s, want completed", job.State)
	}
}

func TestCancelSkipsPendingDocuments(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	docs := []common.Document{e.addDocument("d-1", 1), e.addDocument("d-2", 1)}
	jobID, err := e.manager.Submit(ctx, docs, common.ModeFull)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := e.manager.Cancel(ctx, jobID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := e.manager.Run(ctx, jobID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, _ := e.manager.Status(ctx, jobID)
	if job.State != common.JobCanceled {
		t.Errorf("State = %s, want canceled (completion must not overwrite it)", job.State)
	}
	for _, doc := range job.Documents {
		if doc.State != common.DocSkipped {
			t.Errorf("%s state = %s, want skipped", doc.Document.ID, doc.State)
		}
	}
}

func TestSubmitRejectsUnknownMode(t *testing.T) {
	e := newTestEnv()
	if _, err := e.manager.Submit(context.Background(), nil, "turbo"); !common.IsValidation(err) {
		t.Errorf("Submit() error = %v, want validation error", err)
	}
}

func writeFile(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644)
}

func TestSubmitResolvesSampleCorpus(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		if err := writeFile(dir, name); err != nil {
			t.Fatalf("writeFile(%s) error = %v", name, err)
		}
	}
	t.Setenv("CORPUS_DIR", dir)
	t.Setenv("INGEST_SAMPLE_SIZE", "2")

	docs, err := ResolveCorpus(common.ModeSample)
	if err != nil {
		t.Fatalf("ResolveCorpus() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("ResolveCorpus() returned %d documents, want 2", len(docs))
	}
	if docs[0].ID != "a" || docs[1].ID != "b" {
		t.Errorf("sample = [%s %s], want lexicographic [a b]", docs[0].ID, docs[1].ID)
	}
}
