package pgx

import (
	"context"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"bionexus/pkg/common"
	"bionexus/pkg/store"
)

func (s *Store) UpsertEmbedding(ctx context.Context, rec common.EmbeddingRecord) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO embeddings (page_id, pub_id, embedding, year, has_figures, snippet)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (page_id) DO UPDATE SET
			embedding   = EXCLUDED.embedding,
			year        = EXCLUDED.year,
			has_figures = EXCLUDED.has_figures,
			snippet     = EXCLUDED.snippet
	`, rec.PageID, rec.PublicationID, pgvector.NewVector(rec.Vector), rec.Year, rec.HasFigures, rec.Snippet)
	return err
}

func (s *Store) Search(ctx context.Context, vector []float32, filter store.SearchFilter, limit int) ([]store.VectorHit, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, nil
	}

	query := `
		SELECT page_id, pub_id, embedding, year, has_figures, snippet,
			1 - (embedding <=> $1) AS similarity
		FROM embeddings
		WHERE embedding IS NOT NULL
	`
	args := []any{pgvector.NewVector(vector)}
	idx := 2
	if filter.YearFrom > 0 {
		query += ` AND year >= $` + strconv.Itoa(idx)
		args = append(args, filter.YearFrom)
		idx++
	}
	if filter.YearTo > 0 {
		query += ` AND year > 0 AND year <= $` + strconv.Itoa(idx)
		args = append(args, filter.YearTo)
		idx++
	}
	if filter.HasFigures != nil {
		query += ` AND has_figures = $` + strconv.Itoa(idx)
		args = append(args, *filter.HasFigures)
		idx++
	}
	if len(filter.Publications) > 0 {
		query += ` AND pub_id = ANY($` + strconv.Itoa(idx) + `)`
		args = append(args, filter.Publications)
		idx++
	}
	query += ` ORDER BY embedding <=> $1, page_id LIMIT $` + strconv.Itoa(idx)
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.VectorHit, 0, limit)
	for rows.Next() {
		var (
			hit       store.VectorHit
			embedding pgvector.Vector
		)
		err := rows.Scan(
			&hit.Record.PageID, &hit.Record.PublicationID, &embedding,
			&hit.Record.Year, &hit.Record.HasFigures, &hit.Record.Snippet,
			&hit.Similarity,
		)
		if err != nil {
			return nil, err
		}
		hit.Record.Vector = embedding.Slice()
		out = append(out, hit)
	}
	return out, rows.Err()
}
