// Package writer commits processed page results to the graph and vector
// stores. Every write path merges by natural key, so committing the same
// page twice, or from two workers at once, converges on one state.
package writer

import (
	"context"
	"errors"
	"strings"

	"bionexus/pkg/common"
	"bionexus/pkg/logger"
	"bionexus/pkg/store"
)

const snippetMax = 480

// Writer persists page results across the graph and vector stores.
type Writer struct {
	Graph  store.GraphStore
	Vector store.VectorStore
}

// NewWriter creates a Writer over the given stores.
func NewWriter(graph store.GraphStore, vector store.VectorStore) *Writer {
	return &Writer{Graph: graph, Vector: vector}
}

// Commit validates and persists one page result: the page row, its
// entities, mention and relationship edges, and the page embedding. The
// publication row must exist before pages are committed against it.
func (w *Writer) Commit(ctx context.Context, res common.PageResult) error {
	if err := validate(res); err != nil {
		return err
	}

	if err := w.Graph.UpsertPage(ctx, res.Page); err != nil {
		return common.Transient("upsert page", err)
	}
	if err := w.Graph.BumpPublicationPages(ctx, res.Page.PublicationID, res.Page.Number); err != nil {
		return common.Transient("bump publication pages", err)
	}
	if err := w.Graph.UpsertEntities(ctx, res.Entities); err != nil {
		return common.Transient("upsert entities", err)
	}
	if err := w.Graph.UpsertMentions(ctx, res.Mentions); err != nil {
		return common.Transient("upsert mentions", err)
	}
	if err := w.Graph.UpsertRelationships(ctx, res.Relations); err != nil {
		return common.Transient("upsert relationships", err)
	}

	if len(res.Embedding) == 0 {
		logger.Debug("page committed without embedding", "page", res.Page.ID)
		return nil
	}

	rec := common.EmbeddingRecord{
		PageID:        res.Page.ID,
		PublicationID: res.Page.PublicationID,
		Vector:        res.Embedding,
		HasFigures:    len(res.Page.Figures) > 0,
		Snippet:       Snippet(res.Page.Text, snippetMax),
	}
	pub, err := w.Graph.GetPublication(ctx, res.Page.PublicationID)
	if err == nil {
		rec.Year = pub.Year
	} else if !errors.Is(err, common.ErrNotFound) {
		return common.Transient("load publication", err)
	}
	if err := w.Vector.UpsertEmbedding(ctx, rec); err != nil {
		return common.Transient("upsert embedding", err)
	}
	return nil
}

func validate(res common.PageResult) error {
	switch {
	case res.Page.ID == "":
		return common.Validation("page_id", "missing")
	case res.Page.PublicationID == "":
		return common.Validation("pub_id", "missing")
	case res.Page.Number < 1:
		return common.Validation("page_number", "must be positive")
	}
	for _, entity := range res.Entities {
		if entity.ID == "" || entity.Name == "" {
			return common.Validation("entity", "missing id or name")
		}
		if !entity.Type.Valid() {
			return common.Validation("entity_type", "unknown type "+string(entity.Type))
		}
	}
	for _, mention := range res.Mentions {
		if mention.PageID != res.Page.ID {
			return common.Validation("mention", "page mismatch")
		}
	}
	for _, rel := range res.Relations {
		if rel.SourceID == "" || rel.TargetID == "" || rel.SourceID == rel.TargetID {
			return common.Validation("relationship", "invalid endpoints")
		}
	}
	return nil
}

// Snippet returns the leading portion of text, whitespace-collapsed and cut
// at a word boundary, for display next to search hits.
func Snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndexByte(text[:max], ' ')
	if cut <= 0 {
		cut = max
	}
	return text[:cut]
}
