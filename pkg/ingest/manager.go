// Package ingest runs ingestion jobs: it fans a job's documents out over a
// bounded worker pool, drives the page pipeline for each one, and records
// per-document outcomes so a single bad scan never sinks the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"bionexus/internal/util"
	"bionexus/pkg/ai"
	"bionexus/pkg/common"
	"bionexus/pkg/extract"
	"bionexus/pkg/loader"
	"bionexus/pkg/logger"
	"bionexus/pkg/store"
)

// PageProcessor drives the per-page pipeline for one document.
type PageProcessor interface {
	Process(ctx context.Context, pub common.Publication, reader extract.PageReader) (int, <-chan extract.PageOutcome, error)
}

// Committer persists one processed page.
type Committer interface {
	Commit(ctx context.Context, res common.PageResult) error
}

// NewManagerParams configures a Manager. Jobs, Graph, Loader, Processor,
// and Writer are required; AI is optional and enables bibliographic
// metadata extraction from the leading pages.
type NewManagerParams struct {
	Jobs      store.JobStore
	Graph     store.GraphStore
	Loader    loader.FileLoader
	Processor PageProcessor
	Writer    Committer
	AI        ai.Client

	// ParallelDocs bounds how many documents are in flight at once.
	ParallelDocs int
	Backoff      util.BackoffConfig
	// NewReader builds a PageReader from raw document bytes. Defaults to
	// the PDF reader.
	NewReader func(raw []byte) extract.PageReader
}

// Manager owns the lifecycle of ingest jobs. All shared state lives in the
// JobStore, so the HTTP server and the worker can run as separate
// processes.
type Manager struct {
	jobs      store.JobStore
	graph     store.GraphStore
	loader    loader.FileLoader
	processor PageProcessor
	writer    Committer
	ai        ai.Client

	parallel  int
	backoff   util.BackoffConfig
	newReader func(raw []byte) extract.PageReader
}

// NewManager creates a Manager with bounded document concurrency.
func NewManager(params NewManagerParams) *Manager {
	if params.ParallelDocs <= 0 {
		params.ParallelDocs = util.GetEnvInt("INGEST_PARALLEL_DOCS", 2)
	}
	if params.Backoff.MaxTries == 0 {
		params.Backoff = util.DefaultBackoff
	}
	if params.NewReader == nil {
		params.NewReader = extract.NewPDFPageReader
	}
	return &Manager{
		jobs:      params.Jobs,
		graph:     params.Graph,
		loader:    params.Loader,
		processor: params.Processor,
		writer:    params.Writer,
		ai:        params.AI,
		parallel:  params.ParallelDocs,
		backoff:   params.Backoff,
		newReader: params.NewReader,
	}
}

// Submit registers a new pending job over the given documents and returns
// its ID. An empty document list resolves the default corpus for the mode.
// Submit never starts processing; Run does.
func (m *Manager) Submit(ctx context.Context, docs []common.Document, mode common.IngestMode) (string, error) {
	if mode != common.ModeSample && mode != common.ModeFull {
		return "", common.Validation("mode", "must be sample or full")
	}
	if len(docs) == 0 {
		var err error
		docs, err = ResolveCorpus(mode)
		if err != nil {
			return "", err
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("nanoid: %w", err)
	}
	jobID := "job_" + id

	job := common.IngestJob{
		ID:    jobID,
		Mode:  mode,
		State: common.JobPending,
		Total: len(docs),
	}
	for _, doc := range docs {
		job.Documents = append(job.Documents, common.JobDocument{
			JobID:    jobID,
			Document: doc,
			State:    common.DocPending,
		})
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return "", common.Transient("create job", err)
	}

	logger.Info("[Ingest] job submitted", "job", jobID, "mode", mode, "documents", len(docs))
	return jobID, nil
}

// Status returns the current job record including document outcomes.
func (m *Manager) Status(ctx context.Context, jobID string) (common.IngestJob, error) {
	return m.jobs.GetJob(ctx, jobID)
}

// Cancel requests cooperative cancellation. Documents already in flight
// finish and are counted; no further documents are scheduled.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	return m.jobs.SetJobState(ctx, jobID, common.JobCanceled, "")
}

// Run executes a submitted job to completion. Documents are independent:
// each one is retried on transient failures and its outcome recorded
// regardless of its siblings. Run returns once every document has been
// attempted or skipped.
func (m *Manager) Run(ctx context.Context, jobID string) error {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State == common.JobCompleted || job.State == common.JobFailed {
		return nil
	}
	// On an already-canceled job this transition is ignored and every
	// pending document drains into skipped below.
	if err := m.jobs.SetJobState(ctx, jobID, common.JobRunning, ""); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for _, doc := range job.Documents {
		if doc.State != common.DocPending {
			continue
		}
		doc := doc
		g.Go(func() error {
			if m.canceled(gCtx, jobID) {
				doc.State = common.DocSkipped
				doc.Error = "job canceled"
				return m.jobs.UpdateJobDocument(gCtx, doc)
			}

			doc.State = common.DocProcessing
			if err := m.jobs.UpdateJobDocument(gCtx, doc); err != nil {
				return err
			}
			outcome := m.processDocument(gCtx, doc)
			return m.jobs.UpdateJobDocument(gCtx, outcome)
		})
	}
	if err := g.Wait(); err != nil {
		_ = m.jobs.SetJobState(ctx, jobID, common.JobFailed, err.Error())
		return err
	}

	// A canceled job is already terminal; the transition below is ignored.
	if err := m.jobs.SetJobState(ctx, jobID, common.JobCompleted, ""); err != nil {
		return err
	}
	final, err := m.jobs.GetJob(ctx, jobID)
	if err == nil {
		logger.Info("[Ingest] job finished",
			"job", jobID, "state", final.State,
			"processed", final.Processed, "failed", final.Failed)
	}
	return nil
}

func (m *Manager) canceled(ctx context.Context, jobID string) bool {
	job, err := m.jobs.GetJob(ctx, jobID)
	return err == nil && job.State == common.JobCanceled
}

// processDocument runs one document end to end and returns its outcome.
// It never returns an error: failures become the document's state.
func (m *Manager) processDocument(ctx context.Context, doc common.JobDocument) common.JobDocument {
	raw, err := util.RetryBackoff(ctx, m.backoff, common.IsTransient, func(ctx context.Context) ([]byte, error) {
		return m.loader.GetFileBytes(ctx, doc.Document)
	})
	if err != nil {
		return failDocument(doc, fmt.Errorf("load document: %w", err))
	}

	pub := common.Publication{
		ID:    common.PublicationID(doc.Document.Path, raw),
		Title: doc.Document.Title,
	}
	if err := m.graph.UpsertPublication(ctx, pub); err != nil {
		return failDocument(doc, fmt.Errorf("create publication: %w", err))
	}
	doc.PublicationID = pub.ID

	total, outcomes, err := m.processor.Process(ctx, pub, m.newReader(raw))
	if err != nil {
		return failDocument(doc, err)
	}
	doc.Pages = total

	var (
		committed    int
		firstPageErr error
		frontTexts   = make(map[int]string)
	)
	for outcome := range outcomes {
		if outcome.Err != nil {
			doc.FailedPages++
			if firstPageErr == nil {
				firstPageErr = outcome.Err
			}
			logger.Warn("[Ingest] page failed", "job", doc.JobID, "doc", doc.Document.ID, "err", outcome.Err)
			continue
		}

		res := *outcome.Result
		err := util.RetryBackoffErr(ctx, m.backoff, common.IsTransient, func(ctx context.Context) error {
			return m.writer.Commit(ctx, res)
		})
		if err != nil {
			doc.FailedPages++
			if firstPageErr == nil {
				firstPageErr = &common.PageError{PageNumber: res.Page.Number, Err: err}
			}
			logger.Warn("[Ingest] page commit failed", "job", doc.JobID, "doc", doc.Document.ID, "page", res.Page.Number, "err", err)
			continue
		}
		committed++
		if res.Page.Number <= metadataPages {
			frontTexts[res.Page.Number] = res.Page.Text
		}
	}

	if committed == 0 {
		if firstPageErr == nil {
			firstPageErr = errors.New("no pages committed")
		}
		return failDocument(doc, firstPageErr)
	}

	m.fillMetadata(ctx, pub, frontTexts)

	doc.State = common.DocProcessed
	if firstPageErr != nil {
		doc.Error = firstPageErr.Error()
	}
	return doc
}

const metadataPages = 3

// fillMetadata asks the model for bibliographic fields from the front
// matter. Best effort: the graph keeps whatever was already there.
func (m *Manager) fillMetadata(ctx context.Context, pub common.Publication, frontTexts map[int]string) {
	if m.ai == nil || len(frontTexts) == 0 {
		return
	}
	texts := make([]string, 0, metadataPages)
	for n := 1; n <= metadataPages; n++ {
		if text, ok := frontTexts[n]; ok {
			texts = append(texts, text)
		}
	}
	if err := extract.ExtractPublicationMetadata(ctx, m.ai, &pub, texts); err != nil {
		logger.Warn("[Ingest] metadata extraction failed", "pub", pub.ID, "err", err)
		return
	}
	if err := m.graph.UpsertPublication(ctx, pub); err != nil {
		logger.Warn("[Ingest] metadata upsert failed", "pub", pub.ID, "err", err)
	}
}

func failDocument(doc common.JobDocument, err error) common.JobDocument {
	doc.State = common.DocFailed
	doc.Error = err.Error()
	return doc
}
