// Package memory provides in-memory GraphStore, VectorStore, and JobStore
// implementations. They back tests and single-process deployments without
// Postgres; semantics mirror the pgx implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bionexus/pkg/common"
	"bionexus/pkg/store"
)

// Store implements store.GraphStore, store.VectorStore, and store.JobStore
// over process-local maps.
type Store struct {
	mu sync.RWMutex

	publications map[string]common.Publication
	pages        map[string]common.Page
	entities     map[string]common.Entity
	// mentions keyed by entityID|pageID
	mentions map[string]common.Mention
	// relations keyed by sourceID|targetID|type
	relations map[string]common.Relationship
	// embeddings keyed by pageID
	embeddings map[string]common.EmbeddingRecord

	jobs map[string]common.IngestJob
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		publications: make(map[string]common.Publication),
		pages:        make(map[string]common.Page),
		entities:     make(map[string]common.Entity),
		mentions:     make(map[string]common.Mention),
		relations:    make(map[string]common.Relationship),
		embeddings:   make(map[string]common.EmbeddingRecord),
		jobs:         make(map[string]common.IngestJob),
	}
}

func (s *Store) UpsertPublication(ctx context.Context, pub common.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.publications[pub.ID]
	if !ok {
		if pub.CreatedAt.IsZero() {
			pub.CreatedAt = time.Now().UTC()
		}
		pub.UpdatedAt = pub.CreatedAt
		s.publications[pub.ID] = pub
		return nil
	}

	// merge: fill fields the stored row is missing, keep the larger page count
	if pub.Title != "" {
		existing.Title = pub.Title
	}
	if len(pub.Authors) > 0 {
		existing.Authors = pub.Authors
	}
	if pub.Abstract != "" {
		existing.Abstract = pub.Abstract
	}
	if pub.Year != 0 {
		existing.Year = pub.Year
	}
	if len(pub.FundingSources) > 0 {
		existing.FundingSources = pub.FundingSources
	}
	if pub.TotalPages > existing.TotalPages {
		existing.TotalPages = pub.TotalPages
	}
	existing.UpdatedAt = time.Now().UTC()
	s.publications[pub.ID] = existing
	return nil
}

func (s *Store) GetPublication(ctx context.Context, id string) (common.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub, ok := s.publications[id]
	if !ok {
		return common.Publication{}, common.ErrNotFound
	}
	return pub, nil
}

func (s *Store) ListPublications(ctx context.Context) ([]common.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Publication, 0, len(s.publications))
	for _, pub := range s.publications {
		out = append(out, pub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) BumpPublicationPages(ctx context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.publications[id]
	if !ok {
		return common.ErrNotFound
	}
	if n > pub.TotalPages {
		pub.TotalPages = n
		pub.UpdatedAt = time.Now().UTC()
		s.publications[id] = pub
	}
	return nil
}

func (s *Store) DeletePublication(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.publications[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.publications, id)

	for pageID, page := range s.pages {
		if page.PublicationID != id {
			continue
		}
		delete(s.pages, pageID)
		delete(s.embeddings, pageID)
		for key, mention := range s.mentions {
			if mention.PageID == pageID {
				delete(s.mentions, key)
			}
		}
	}
	return nil
}

func (s *Store) UpsertPage(ctx context.Context, page common.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pages[page.ID] = page
	return nil
}

func (s *Store) GetPage(ctx context.Context, id string) (common.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, ok := s.pages[id]
	if !ok {
		return common.Page{}, common.ErrNotFound
	}
	return page, nil
}

func (s *Store) ListPages(ctx context.Context, publicationID string) ([]common.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Page, 0)
	for _, page := range s.pages {
		if page.PublicationID == publicationID {
			out = append(out, page)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) UpsertEntities(ctx context.Context, entities []common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entity := range entities {
		existing, ok := s.entities[entity.ID]
		if !ok {
			s.entities[entity.ID] = entity
			continue
		}
		// keep the higher confidence, fill a missing canonical ID
		if entity.Confidence > existing.Confidence {
			existing.Confidence = entity.Confidence
		}
		if existing.CanonicalID == "" && entity.CanonicalID != "" {
			existing.CanonicalID = entity.CanonicalID
		}
		for k, v := range entity.Metadata {
			if existing.Metadata == nil {
				existing.Metadata = make(map[string]string)
			}
			existing.Metadata[k] = v
		}
		s.entities[entity.ID] = existing
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		return common.Entity{}, common.ErrNotFound
	}
	return entity, nil
}

func (s *Store) ListEntities(ctx context.Context, entityType common.EntityType) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Entity, 0, len(s.entities))
	for _, entity := range s.entities {
		if entityType != "" && entity.Type != entityType {
			continue
		}
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindEntitiesByNames(ctx context.Context, names []string) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[common.NormalizeName(name)] = struct{}{}
	}

	out := make([]common.Entity, 0)
	for _, entity := range s.entities {
		if _, ok := wanted[common.NormalizeName(entity.Name)]; ok {
			out = append(out, entity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func mentionKey(m common.Mention) string {
	return m.EntityID + "|" + m.PageID
}

func (s *Store) UpsertMentions(ctx context.Context, mentions []common.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mention := range mentions {
		key := mentionKey(mention)
		if existing, ok := s.mentions[key]; ok && existing.Confidence >= mention.Confidence {
			continue
		}
		s.mentions[key] = mention
	}
	return nil
}

func (s *Store) PagesMentioning(ctx context.Context, entityIDs []string, filter store.SearchFilter) ([]store.MentionHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = struct{}{}
	}

	out := make([]store.MentionHit, 0)
	for _, mention := range s.mentions {
		if _, ok := wanted[mention.EntityID]; !ok {
			continue
		}
		page, ok := s.pages[mention.PageID]
		if !ok {
			continue
		}
		if len(filter.Publications) > 0 {
			found := false
			for _, id := range filter.Publications {
				if id == page.PublicationID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		// Year and figure filters need the embedding record; a page
		// without one cannot be rejected on them.
		if rec, ok := s.embeddings[mention.PageID]; ok {
			f := filter
			f.Publications = nil
			if !f.MatchEmbedding(rec) {
				continue
			}
		}
		out = append(out, store.MentionHit{
			PageID:        mention.PageID,
			PublicationID: page.PublicationID,
			EntityID:      mention.EntityID,
			Year:          s.publications[page.PublicationID].Year,
			Confidence:    mention.Confidence,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

func (s *Store) ListMentions(ctx context.Context) ([]common.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Mention, 0, len(s.mentions))
	for _, mention := range s.mentions {
		out = append(out, mention)
	}
	sort.Slice(out, func(i, j int) bool { return mentionKey(out[i]) < mentionKey(out[j]) })
	return out, nil
}

func relationKey(r common.Relationship) string {
	return common.RelationshipKey(r.SourceID, r.TargetID, r.Type)
}

func (s *Store) UpsertRelationships(ctx context.Context, relations []common.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rel := range relations {
		key := relationKey(rel)
		existing, ok := s.relations[key]
		if !ok {
			s.relations[key] = rel
			continue
		}
		if rel.Confidence > existing.Confidence {
			existing.Confidence = rel.Confidence
		}
		existing.Evidence = store.DedupeStrings(append(existing.Evidence, rel.Evidence...))
		s.relations[key] = existing
	}
	return nil
}

func (s *Store) ListRelationships(ctx context.Context) ([]common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Relationship, 0, len(s.relations))
	for _, rel := range s.relations {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return relationKey(out[i]) < relationKey(out[j]) })
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[string]int)
	for _, entity := range s.entities {
		byType[string(entity.Type)]++
	}
	return store.Stats{
		Publications:   len(s.publications),
		Pages:          len(s.pages),
		Entities:       len(s.entities),
		Mentions:       len(s.mentions),
		Relationships:  len(s.relations),
		EntitiesByType: byType,
	}, nil
}

func (s *Store) UpsertEmbedding(ctx context.Context, rec common.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[rec.PageID] = rec
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, filter store.SearchFilter, limit int) ([]store.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]store.VectorHit, 0, len(s.embeddings))
	for _, rec := range s.embeddings {
		if !filter.MatchEmbedding(rec) {
			continue
		}
		hits = append(hits, store.VectorHit{
			Record:     rec,
			Similarity: store.CosineSimilarity(vector, rec.Vector),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Record.PageID < hits[j].Record.PageID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// cloneDocuments detaches the Documents slice so stored jobs and returned
// jobs never share a backing array. Without it a status reader holding a
// previously returned job would race with worker-side document updates.
func cloneDocuments(docs []common.JobDocument) []common.JobDocument {
	if docs == nil {
		return nil
	}
	out := make([]common.JobDocument, len(docs))
	copy(out, docs)
	return out
}

func (s *Store) CreateJob(ctx context.Context, job common.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	job.Documents = cloneDocuments(job.Documents)
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (common.IngestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return common.IngestJob{}, common.ErrNotFound
	}
	job.Documents = cloneDocuments(job.Documents)
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]common.IngestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.IngestJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.Documents = cloneDocuments(job.Documents)
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetJobState(ctx context.Context, id string, state common.JobState, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if job.State.Terminal() {
		return nil
	}
	job.State = state
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return nil
}

func (s *Store) UpdateJobDocument(ctx context.Context, doc common.JobDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[doc.JobID]
	if !ok {
		return common.ErrNotFound
	}
	job.Documents = cloneDocuments(job.Documents)

	found := false
	for i := range job.Documents {
		if job.Documents[i].Document.ID != doc.Document.ID {
			continue
		}
		found = true
		prev := job.Documents[i].State
		job.Documents[i] = doc
		// counters only move forward, once per document
		if prev != common.DocProcessed && doc.State == common.DocProcessed {
			job.Processed++
		}
		if (doc.State == common.DocFailed || doc.State == common.DocSkipped) &&
			prev != common.DocFailed && prev != common.DocSkipped {
			job.Failed++
		}
		break
	}
	if !found {
		return common.ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[doc.JobID] = job
	return nil
}
