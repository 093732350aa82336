package pgx

import (
	"context"
	"errors"

	pgxv5 "github.com/jackc/pgx/v5"

	"bionexus/pkg/common"
)

func (s *Store) CreateJob(ctx context.Context, job common.IngestJob) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO ingest_jobs (id, mode, state, total, processed, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, string(job.Mode), string(job.State), job.Total, job.Processed, job.Failed, job.Error)
	if err != nil {
		return err
	}

	for _, doc := range job.Documents {
		_, err := tx.Exec(ctx, `
			INSERT INTO ingest_job_documents (job_id, doc_id, path, title, state, pub_id, pages, failed_pages, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, job.ID, doc.Document.ID, doc.Document.Path, doc.Document.Title,
			string(doc.State), doc.PublicationID, doc.Pages, doc.FailedPages, doc.Error)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetJob(ctx context.Context, id string) (common.IngestJob, error) {
	job, err := scanJob(s.conn.QueryRow(ctx, `
		SELECT id, mode, state, total, processed, failed, error, created_at, updated_at
		FROM ingest_jobs WHERE id = $1
	`, id))
	if err != nil {
		return common.IngestJob{}, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT job_id, doc_id, path, title, state, pub_id, pages, failed_pages, error
		FROM ingest_job_documents WHERE job_id = $1 ORDER BY doc_id
	`, id)
	if err != nil {
		return common.IngestJob{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			doc   common.JobDocument
			state string
		)
		err := rows.Scan(
			&doc.JobID, &doc.Document.ID, &doc.Document.Path, &doc.Document.Title,
			&state, &doc.PublicationID, &doc.Pages, &doc.FailedPages, &doc.Error,
		)
		if err != nil {
			return common.IngestJob{}, err
		}
		doc.State = common.DocumentState(state)
		job.Documents = append(job.Documents, doc)
	}
	return job, rows.Err()
}

func (s *Store) ListJobs(ctx context.Context) ([]common.IngestJob, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, mode, state, total, processed, failed, error, created_at, updated_at
		FROM ingest_jobs ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.IngestJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgxv5.Row) (common.IngestJob, error) {
	var (
		job   common.IngestJob
		mode  string
		state string
	)
	err := row.Scan(
		&job.ID, &mode, &state, &job.Total, &job.Processed, &job.Failed,
		&job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.IngestJob{}, common.ErrNotFound
	}
	if err != nil {
		return common.IngestJob{}, err
	}
	job.Mode = common.IngestMode(mode)
	job.State = common.JobState(state)
	return job, nil
}

func (s *Store) SetJobState(ctx context.Context, id string, state common.JobState, errMsg string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE ingest_jobs
		SET state = $2, error = $3, updated_at = now()
		WHERE id = $1 AND state NOT IN ('completed', 'failed', 'canceled')
	`, id, string(state), errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already terminal; only the former is an error.
		var exists bool
		if err := s.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ingest_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return common.ErrNotFound
		}
	}
	return nil
}

func (s *Store) UpdateJobDocument(ctx context.Context, doc common.JobDocument) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var prev string
	err = tx.QueryRow(ctx, `
		SELECT state FROM ingest_job_documents
		WHERE job_id = $1 AND doc_id = $2 FOR UPDATE
	`, doc.JobID, doc.Document.ID).Scan(&prev)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE ingest_job_documents
		SET state = $3, pub_id = $4, pages = $5, failed_pages = $6, error = $7
		WHERE job_id = $1 AND doc_id = $2
	`, doc.JobID, doc.Document.ID, string(doc.State), doc.PublicationID, doc.Pages, doc.FailedPages, doc.Error)
	if err != nil {
		return err
	}

	// Bump the counter only on the transition into a counted state so
	// repeated updates never inflate progress.
	prevState := common.DocumentState(prev)
	switch {
	case doc.State == common.DocProcessed && prevState != common.DocProcessed:
		_, err = tx.Exec(ctx, `
			UPDATE ingest_jobs SET processed = processed + 1, updated_at = now() WHERE id = $1
		`, doc.JobID)
	case (doc.State == common.DocFailed || doc.State == common.DocSkipped) &&
		prevState != common.DocFailed && prevState != common.DocSkipped:
		_, err = tx.Exec(ctx, `
			UPDATE ingest_jobs SET failed = failed + 1, updated_at = now() WHERE id = $1
		`, doc.JobID)
	default:
		_, err = tx.Exec(ctx, `
			UPDATE ingest_jobs SET updated_at = now() WHERE id = $1
		`, doc.JobID)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
