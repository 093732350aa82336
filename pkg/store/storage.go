package store

import (
	"context"

	"bionexus/pkg/common"
)

// SearchFilter narrows vector and graph candidate retrieval.
type SearchFilter struct {
	YearFrom   int
	YearTo     int
	HasFigures *bool
	// Publications restricts results to the given publication IDs.
	Publications []string
}

// MatchEmbedding reports whether an embedding record passes the filter.
func (f SearchFilter) MatchEmbedding(rec common.EmbeddingRecord) bool {
	if f.YearFrom > 0 && rec.Year < f.YearFrom {
		return false
	}
	if f.YearTo > 0 && (rec.Year == 0 || rec.Year > f.YearTo) {
		return false
	}
	if f.HasFigures != nil && rec.HasFigures != *f.HasFigures {
		return false
	}
	if len(f.Publications) > 0 {
		found := false
		for _, id := range f.Publications {
			if id == rec.PublicationID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// VectorHit is one page returned from similarity search, with similarity
// in [0,1] (1 = identical direction).
type VectorHit struct {
	Record     common.EmbeddingRecord
	Similarity float64
}

// MentionHit is one page reached through the graph: an entity matched a
// query term and the page mentions it. Year is the publication year so
// rankers can tie-break without loading the publication.
type MentionHit struct {
	PageID        string
	PublicationID string
	EntityID      string
	Year          int
	Confidence    float64
}

// Stats summarizes the stored corpus.
type Stats struct {
	Publications   int            `json:"publications"`
	Pages          int            `json:"pages"`
	Entities       int            `json:"entities"`
	Mentions       int            `json:"mentions"`
	Relationships  int            `json:"relationships"`
	EntitiesByType map[string]int `json:"entities_by_type"`
}

// GraphStore persists publications, pages, entities, and the typed edges
// between them. All writes merge by natural key so reruns and concurrent
// duplicate jobs converge instead of duplicating nodes.
type GraphStore interface {
	UpsertPublication(ctx context.Context, pub common.Publication) error
	GetPublication(ctx context.Context, id string) (common.Publication, error)
	ListPublications(ctx context.Context) ([]common.Publication, error)
	// BumpPublicationPages raises TotalPages to at least n.
	BumpPublicationPages(ctx context.Context, id string, n int) error
	// DeletePublication removes a publication with its pages, mentions,
	// and embeddings. Entities stay; they may be shared across the corpus.
	DeletePublication(ctx context.Context, id string) error

	UpsertPage(ctx context.Context, page common.Page) error
	GetPage(ctx context.Context, id string) (common.Page, error)
	ListPages(ctx context.Context, publicationID string) ([]common.Page, error)

	UpsertEntities(ctx context.Context, entities []common.Entity) error
	GetEntity(ctx context.Context, id string) (common.Entity, error)
	ListEntities(ctx context.Context, entityType common.EntityType) ([]common.Entity, error)
	// FindEntitiesByNames resolves normalized names to stored entities.
	FindEntitiesByNames(ctx context.Context, names []string) ([]common.Entity, error)

	UpsertMentions(ctx context.Context, mentions []common.Mention) error
	// PagesMentioning returns mention edges for the given entities.
	PagesMentioning(ctx context.Context, entityIDs []string, filter SearchFilter) ([]MentionHit, error)
	ListMentions(ctx context.Context) ([]common.Mention, error)

	UpsertRelationships(ctx context.Context, relations []common.Relationship) error
	ListRelationships(ctx context.Context) ([]common.Relationship, error)

	Stats(ctx context.Context) (Stats, error)
}

// VectorStore holds one embedding per page and answers nearest-neighbor
// queries over them.
type VectorStore interface {
	UpsertEmbedding(ctx context.Context, rec common.EmbeddingRecord) error
	Search(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]VectorHit, error)
}

// JobStore persists ingest jobs. There is no ambient job singleton; the
// server and worker processes share state through this interface.
type JobStore interface {
	CreateJob(ctx context.Context, job common.IngestJob) error
	GetJob(ctx context.Context, id string) (common.IngestJob, error)
	ListJobs(ctx context.Context) ([]common.IngestJob, error)
	// SetJobState transitions the job; transitions out of a terminal state
	// are ignored.
	SetJobState(ctx context.Context, id string, state common.JobState, errMsg string) error
	// UpdateJobDocument records one document outcome and bumps the
	// matching job counter atomically.
	UpdateJobDocument(ctx context.Context, doc common.JobDocument) error
}
