package pgx

import (
	"context"
	"encoding/json"
	"errors"

	pgxv5 "github.com/jackc/pgx/v5"

	"bionexus/pkg/common"
)

func (s *Store) UpsertPublication(ctx context.Context, pub common.Publication) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO publications (id, title, authors, abstract, year, funding_sources, total_pages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title           = COALESCE(NULLIF(EXCLUDED.title, ''), publications.title),
			authors         = CASE WHEN cardinality(EXCLUDED.authors) > 0 THEN EXCLUDED.authors ELSE publications.authors END,
			abstract        = COALESCE(NULLIF(EXCLUDED.abstract, ''), publications.abstract),
			year            = CASE WHEN EXCLUDED.year > 0 THEN EXCLUDED.year ELSE publications.year END,
			funding_sources = CASE WHEN cardinality(EXCLUDED.funding_sources) > 0 THEN EXCLUDED.funding_sources ELSE publications.funding_sources END,
			total_pages     = GREATEST(publications.total_pages, EXCLUDED.total_pages),
			updated_at      = now()
	`, pub.ID, pub.Title, pub.Authors, pub.Abstract, pub.Year, pub.FundingSources, pub.TotalPages)
	return err
}

func (s *Store) GetPublication(ctx context.Context, id string) (common.Publication, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, title, authors, abstract, year, funding_sources, total_pages, created_at, updated_at
		FROM publications WHERE id = $1
	`, id)
	return scanPublication(row)
}

func (s *Store) ListPublications(ctx context.Context) ([]common.Publication, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, title, authors, abstract, year, funding_sources, total_pages, created_at, updated_at
		FROM publications ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Publication, 0)
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pub)
	}
	return out, rows.Err()
}

func scanPublication(row pgxv5.Row) (common.Publication, error) {
	var pub common.Publication
	err := row.Scan(
		&pub.ID, &pub.Title, &pub.Authors, &pub.Abstract, &pub.Year,
		&pub.FundingSources, &pub.TotalPages, &pub.CreatedAt, &pub.UpdatedAt,
	)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Publication{}, common.ErrNotFound
	}
	return pub, err
}

func (s *Store) BumpPublicationPages(ctx context.Context, id string, n int) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE publications
		SET total_pages = GREATEST(total_pages, $2), updated_at = now()
		WHERE id = $1
	`, id, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeletePublication relies on ON DELETE CASCADE for pages, mentions, and
// embeddings.
func (s *Store) DeletePublication(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM publications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertPage(ctx context.Context, page common.Page) error {
	figures, err := json.Marshal(page.Figures)
	if err != nil {
		return err
	}
	if page.Figures == nil {
		figures = []byte("[]")
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO pages (id, pub_id, page_number, ocr_text, figures, image_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			ocr_text  = EXCLUDED.ocr_text,
			figures   = EXCLUDED.figures,
			image_key = COALESCE(NULLIF(EXCLUDED.image_key, ''), pages.image_key)
	`, page.ID, page.PublicationID, page.Number, page.Text, figures, page.ImageKey)
	return err
}

func (s *Store) GetPage(ctx context.Context, id string) (common.Page, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, pub_id, page_number, ocr_text, figures, image_key
		FROM pages WHERE id = $1
	`, id)
	return scanPage(row)
}

func (s *Store) ListPages(ctx context.Context, publicationID string) ([]common.Page, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, pub_id, page_number, ocr_text, figures, image_key
		FROM pages WHERE pub_id = $1 ORDER BY page_number
	`, publicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Page, 0)
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, page)
	}
	return out, rows.Err()
}

func scanPage(row pgxv5.Row) (common.Page, error) {
	var (
		page    common.Page
		figures []byte
	)
	err := row.Scan(&page.ID, &page.PublicationID, &page.Number, &page.Text, &figures, &page.ImageKey)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Page{}, common.ErrNotFound
	}
	if err != nil {
		return common.Page{}, err
	}
	if len(figures) > 0 {
		if err := json.Unmarshal(figures, &page.Figures); err != nil {
			return common.Page{}, err
		}
	}
	return page, nil
}
