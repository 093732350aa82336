package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	pgxv5 "github.com/jackc/pgx/v5"

	"bionexus/pkg/common"
	"bionexus/pkg/store"
)

func (s *Store) UpsertEntities(ctx context.Context, entities []common.Entity) error {
	return store.ChunkRange(len(entities), upsertChunk, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		for _, entity := range entities[start:end] {
			metadata, err := json.Marshal(entity.Metadata)
			if err != nil {
				return err
			}
			if entity.Metadata == nil {
				metadata = []byte("{}")
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO entities (id, name, norm_name, type, canonical_id, confidence, metadata)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET
					confidence   = GREATEST(entities.confidence, EXCLUDED.confidence),
					canonical_id = COALESCE(NULLIF(entities.canonical_id, ''), EXCLUDED.canonical_id),
					metadata     = entities.metadata || EXCLUDED.metadata
			`, entity.ID, entity.Name, common.NormalizeName(entity.Name), string(entity.Type), entity.CanonicalID, entity.Confidence, metadata)
			if err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
}

func (s *Store) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, name, type, canonical_id, confidence, metadata
		FROM entities WHERE id = $1
	`, id)
	return scanEntity(row)
}

func (s *Store) ListEntities(ctx context.Context, entityType common.EntityType) ([]common.Entity, error) {
	query := `
		SELECT id, name, type, canonical_id, confidence, metadata
		FROM entities ORDER BY id
	`
	args := []any{}
	if entityType != "" {
		query = `
			SELECT id, name, type, canonical_id, confidence, metadata
			FROM entities WHERE type = $1 ORDER BY id
		`
		args = append(args, string(entityType))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (s *Store) FindEntitiesByNames(ctx context.Context, names []string) ([]common.Entity, error) {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		if n := common.NormalizeName(name); n != "" {
			normalized = append(normalized, n)
		}
	}
	normalized = store.DedupeStrings(normalized)
	if len(normalized) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, name, type, canonical_id, confidence, metadata
		FROM entities WHERE norm_name = ANY($1) ORDER BY id
	`, normalized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntities(rows)
}

func collectEntities(rows pgxv5.Rows) ([]common.Entity, error) {
	out := make([]common.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func scanEntity(row pgxv5.Row) (common.Entity, error) {
	var (
		entity     common.Entity
		entityType string
		metadata   []byte
	)
	err := row.Scan(&entity.ID, &entity.Name, &entityType, &entity.CanonicalID, &entity.Confidence, &metadata)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Entity{}, common.ErrNotFound
	}
	if err != nil {
		return common.Entity{}, err
	}
	entity.Type = common.EntityType(entityType)
	if len(metadata) > 0 && string(metadata) != "{}" {
		if err := json.Unmarshal(metadata, &entity.Metadata); err != nil {
			return common.Entity{}, err
		}
	}
	return entity, nil
}

func (s *Store) UpsertMentions(ctx context.Context, mentions []common.Mention) error {
	return store.ChunkRange(len(mentions), upsertChunk, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		for _, mention := range mentions[start:end] {
			_, err := tx.Exec(ctx, `
				INSERT INTO mentions (entity_id, page_id, confidence)
				VALUES ($1, $2, $3)
				ON CONFLICT (entity_id, page_id) DO UPDATE SET
					confidence = GREATEST(mentions.confidence, EXCLUDED.confidence)
			`, mention.EntityID, mention.PageID, mention.Confidence)
			if err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
}

func (s *Store) PagesMentioning(ctx context.Context, entityIDs []string, filter store.SearchFilter) ([]store.MentionHit, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT m.page_id, p.pub_id, m.entity_id, pub.year, m.confidence
		FROM mentions m
		JOIN pages p ON p.id = m.page_id
		JOIN publications pub ON pub.id = p.pub_id
		LEFT JOIN embeddings e ON e.page_id = m.page_id
		WHERE m.entity_id = ANY($1)
	`
	// Year and figure predicates live on the embedding row; a page without
	// one cannot be rejected on them.
	args := []any{entityIDs}
	idx := 2
	if filter.YearFrom > 0 {
		query += ` AND (e.page_id IS NULL OR e.year >= $` + strconv.Itoa(idx) + `)`
		args = append(args, filter.YearFrom)
		idx++
	}
	if filter.YearTo > 0 {
		query += ` AND (e.page_id IS NULL OR (e.year > 0 AND e.year <= $` + strconv.Itoa(idx) + `))`
		args = append(args, filter.YearTo)
		idx++
	}
	if filter.HasFigures != nil {
		query += ` AND (e.page_id IS NULL OR e.has_figures = $` + strconv.Itoa(idx) + `)`
		args = append(args, *filter.HasFigures)
		idx++
	}
	if len(filter.Publications) > 0 {
		query += ` AND p.pub_id = ANY($` + strconv.Itoa(idx) + `)`
		args = append(args, filter.Publications)
	}
	query += ` ORDER BY m.page_id`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.MentionHit, 0)
	for rows.Next() {
		var hit store.MentionHit
		if err := rows.Scan(&hit.PageID, &hit.PublicationID, &hit.EntityID, &hit.Year, &hit.Confidence); err != nil {
			return nil, err
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (s *Store) ListMentions(ctx context.Context) ([]common.Mention, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT entity_id, page_id, confidence FROM mentions ORDER BY entity_id, page_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Mention, 0)
	for rows.Next() {
		var mention common.Mention
		if err := rows.Scan(&mention.EntityID, &mention.PageID, &mention.Confidence); err != nil {
			return nil, err
		}
		out = append(out, mention)
	}
	return out, rows.Err()
}

func (s *Store) UpsertRelationships(ctx context.Context, relations []common.Relationship) error {
	return store.ChunkRange(len(relations), upsertChunk, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		for _, rel := range relations[start:end] {
			_, err := tx.Exec(ctx, `
				INSERT INTO relationships (source_id, target_id, type, confidence, evidence)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (source_id, target_id, type) DO UPDATE SET
					confidence = GREATEST(relationships.confidence, EXCLUDED.confidence),
					evidence   = ARRAY(
						SELECT DISTINCT quote
						FROM unnest(relationships.evidence || EXCLUDED.evidence) AS quote
					)
			`, rel.SourceID, rel.TargetID, string(rel.Type), rel.Confidence, rel.Evidence)
			if err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
}

func (s *Store) ListRelationships(ctx context.Context) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_id, target_id, type, confidence, evidence
		FROM relationships ORDER BY source_id, target_id, type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Relationship, 0)
	for rows.Next() {
		var (
			rel     common.Relationship
			relType string
		)
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &relType, &rel.Confidence, &rel.Evidence); err != nil {
			return nil, err
		}
		rel.Type = common.RelationType(relType)
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	row := s.conn.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM publications),
			(SELECT count(*) FROM pages),
			(SELECT count(*) FROM entities),
			(SELECT count(*) FROM mentions),
			(SELECT count(*) FROM relationships)
	`)
	if err := row.Scan(&stats.Publications, &stats.Pages, &stats.Entities, &stats.Mentions, &stats.Relationships); err != nil {
		return store.Stats{}, err
	}

	rows, err := s.conn.Query(ctx, `SELECT type, count(*) FROM entities GROUP BY type`)
	if err != nil {
		return store.Stats{}, err
	}
	defer rows.Close()

	stats.EntitiesByType = make(map[string]int)
	for rows.Next() {
		var (
			entityType string
			count      int
		)
		if err := rows.Scan(&entityType, &count); err != nil {
			return store.Stats{}, err
		}
		stats.EntitiesByType[entityType] = count
	}
	return stats, rows.Err()
}
