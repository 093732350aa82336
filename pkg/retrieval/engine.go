// Package retrieval answers search queries over the ingested corpus by
// blending two candidate sources: nearest-neighbor page embeddings and
// graph traversal from entities named in the query.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"bionexus/internal/util"
	"bionexus/pkg/common"
	"bionexus/pkg/logger"
	"bionexus/pkg/store"
)

// Result is one ranked page. Score is the blended rank value; the
// per-source scores are kept for explainability and synthesis confidence.
type Result struct {
	PageID        string   `json:"page_id"`
	PublicationID string   `json:"pub_id"`
	Title         string   `json:"title,omitempty"`
	Year          int      `json:"year,omitempty"`
	PageNumber    int      `json:"page_number"`
	Score         float64  `json:"score"`
	VectorScore   float64  `json:"vector_score"`
	GraphScore    float64  `json:"graph_score"`
	Snippet       string   `json:"snippet,omitempty"`
	Text          string   `json:"-"`
	Entities      []string `json:"entities,omitempty"`
	HasFigures    bool     `json:"has_figures"`
}

// Embedder turns the query into the same vector space as page embeddings.
type Embedder interface {
	EmbedPage(ctx context.Context, text string) ([]float32, error)
}

// candidateFactor widens the vector candidate pool before blending so
// graph hits can displace weak vector hits without starving the list.
const candidateFactor = 4

// maxTermWords bounds the n-gram length used to match entity names in the
// query.
const maxTermWords = 3

// Engine runs hybrid retrieval. Alpha weights the vector score against the
// graph score; FloorScore guarantees graph-only hits a minimum rank value
// so exact entity matches are never drowned out by marginal vector noise.
type Engine struct {
	Graph  store.GraphStore
	Vector store.VectorStore
	Embed  Embedder

	Alpha      float64
	FloorScore float64
}

// NewEngine creates an Engine with env-tunable blend parameters.
func NewEngine(graph store.GraphStore, vector store.VectorStore, embed Embedder) *Engine {
	return &Engine{
		Graph:      graph,
		Vector:     vector,
		Embed:      embed,
		Alpha:      envFloat("RETRIEVAL_ALPHA", 0.7),
		FloorScore: envFloat("RETRIEVAL_GRAPH_FLOOR", 0.25),
	}
}

func envFloat(key string, defaultValue float64) float64 {
	if util.GetEnv(key) == "" {
		return defaultValue
	}
	return util.GetEnvNumeric(key, 0)
}

// Search returns the topK pages for the query. Vector and graph candidates
// are gathered in parallel; pages reached by both sources rank by the
// blended score, graph-only pages never score below the floor. Ties break
// by year (newer first) then publication and page ID so results are
// deterministic.
func (e *Engine) Search(ctx context.Context, query string, filter store.SearchFilter, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, common.Validation("query", "missing")
	}
	if topK <= 0 {
		topK = 10
	}

	var (
		vectorHits []store.VectorHit
		graphHits  []store.MentionHit
		matched    map[string]common.Entity
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := e.Embed.EmbedPage(gCtx, query)
		if err != nil {
			return common.Transient("embed query", err)
		}
		vectorHits, err = e.Vector.Search(gCtx, vec, filter, topK*candidateFactor)
		if err != nil {
			return common.Transient("vector search", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		matched, graphHits, err = e.graphCandidates(gCtx, query, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := e.blend(vectorHits, graphHits)
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.PublicationID != b.PublicationID {
			return a.PublicationID < b.PublicationID
		}
		return a.PageID < b.PageID
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}

	if err := e.hydrate(ctx, merged, matched); err != nil {
		return nil, err
	}
	logger.Debug("[Retrieval] search done",
		"query", query, "vector", len(vectorHits), "graph", len(graphHits), "returned", len(merged))
	return merged, nil
}

// graphCandidates matches query n-grams against entity names, then walks
// mentions out to pages.
func (e *Engine) graphCandidates(
	ctx context.Context,
	query string,
	filter store.SearchFilter,
) (map[string]common.Entity, []store.MentionHit, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil, nil
	}

	entities, err := e.Graph.FindEntitiesByNames(ctx, terms)
	if err != nil {
		return nil, nil, common.Transient("match entities", err)
	}
	if len(entities) == 0 {
		return nil, nil, nil
	}

	matched := make(map[string]common.Entity, len(entities))
	ids := make([]string, 0, len(entities))
	for _, entity := range entities {
		matched[entity.ID] = entity
		ids = append(ids, entity.ID)
	}

	hits, err := e.Graph.PagesMentioning(ctx, ids, filter)
	if err != nil {
		return nil, nil, common.Transient("traverse mentions", err)
	}
	return matched, hits, nil
}

// blend combines both candidate sets into scored results. Pages found by
// both sources get alpha*vector + (1-alpha)*graph; graph-only pages get at
// least the floor.
func (e *Engine) blend(vectorHits []store.VectorHit, graphHits []store.MentionHit) []Result {
	byPage := make(map[string]*Result)

	for _, hit := range vectorHits {
		byPage[hit.Record.PageID] = &Result{
			PageID:        hit.Record.PageID,
			PublicationID: hit.Record.PublicationID,
			Year:          hit.Record.Year,
			VectorScore:   hit.Similarity,
			Snippet:       hit.Record.Snippet,
			HasFigures:    hit.Record.HasFigures,
		}
	}

	// Graph strength per page: noisy-OR over the distinct matched
	// entities, so a page mentioning two query entities outranks a page
	// mentioning one.
	type graphAgg struct {
		miss     float64
		entities []string
	}
	graphByPage := make(map[string]*graphAgg)
	for _, hit := range graphHits {
		agg, ok := graphByPage[hit.PageID]
		if !ok {
			agg = &graphAgg{miss: 1}
			graphByPage[hit.PageID] = agg
		}
		agg.miss *= 1 - clamp01(hit.Confidence)
		agg.entities = append(agg.entities, hit.EntityID)
		// Year must be set before ranking; the year tie-break runs on the
		// blended slice, not on the hydrated one.
		if res, ok := byPage[hit.PageID]; !ok {
			byPage[hit.PageID] = &Result{PageID: hit.PageID, PublicationID: hit.PublicationID, Year: hit.Year}
		} else if res.Year == 0 {
			res.Year = hit.Year
		}
	}

	out := make([]Result, 0, len(byPage))
	for pageID, res := range byPage {
		if agg, ok := graphByPage[pageID]; ok {
			res.GraphScore = 1 - agg.miss
			sort.Strings(agg.entities)
			res.Entities = agg.entities
		}
		res.Score = e.Alpha*res.VectorScore + (1-e.Alpha)*res.GraphScore
		if res.VectorScore == 0 && res.GraphScore > 0 && res.Score < e.FloorScore {
			res.Score = e.FloorScore
		}
		out = append(out, *res)
	}
	return out
}

// hydrate fills page text, snippet, and publication metadata on the final
// ranked slice.
func (e *Engine) hydrate(ctx context.Context, results []Result, matched map[string]common.Entity) error {
	pubs := make(map[string]common.Publication)
	for i := range results {
		page, err := e.Graph.GetPage(ctx, results[i].PageID)
		if err != nil {
			return common.Transient("load page", err)
		}
		results[i].Text = page.Text
		results[i].PageNumber = page.Number
		if results[i].Snippet == "" {
			results[i].Snippet = snippet(page.Text)
		}
		if len(page.Figures) > 0 {
			results[i].HasFigures = true
		}

		pub, ok := pubs[page.PublicationID]
		if !ok {
			pub, err = e.Graph.GetPublication(ctx, page.PublicationID)
			if err != nil {
				return common.Transient("load publication", err)
			}
			pubs[page.PublicationID] = pub
		}
		results[i].Title = pub.Title
		if results[i].Year == 0 {
			results[i].Year = pub.Year
		}

		// Surface entity names instead of opaque ids when we know them.
		for j, id := range results[i].Entities {
			if entity, ok := matched[id]; ok {
				results[i].Entities[j] = entity.Name
			}
		}
	}
	return nil
}

func snippet(text string) string {
	const max = 280
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

// queryTerms expands the query into contiguous word n-grams, longest
// first, for exact-match entity lookup.
func queryTerms(query string) []string {
	words := strings.Fields(common.NormalizeName(query))
	terms := make([]string, 0, len(words)*maxTermWords)
	for size := maxTermWords; size >= 1; size-- {
		for i := 0; i+size <= len(words); i++ {
			terms = append(terms, strings.Join(words[i:i+size], " "))
		}
	}
	return store.DedupeStrings(terms)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
