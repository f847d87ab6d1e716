package postgres

import (
	"context"
	"database/sql"

	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
)

// IngestRunRepo implements ports.IngestRunRepository.
type IngestRunRepo struct {
	db *DB
}

func NewIngestRunRepo(db *DB) *IngestRunRepo {
	return &IngestRunRepo{db: db}
}

// Create inserts a running row and fills in the generated id.
func (r *IngestRunRepo) Create(ctx context.Context, run *domain.IngestRun) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO ingest_runs (source, status, started_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, run.Source, run.Status, run.StartedAt).Scan(&run.ID)
}

// Finish records the outcome of a run.
func (r *IngestRunRepo) Finish(ctx context.Context, run *domain.IngestRun) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE ingest_runs
		SET rows_read = $2, rows_loaded = $3, rows_skipped = $4,
		    status = $5, error = $6, finished_at = $7
		WHERE id = $1
	`, run.ID, run.RowsRead, run.RowsLoaded, run.RowsSkipped,
		run.Status, nilIfEmpty(run.Error), run.FinishedAt)
	return err
}

// Latest returns the most recent runs, newest first.
func (r *IngestRunRepo) Latest(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, source, rows_read, rows_loaded, rows_skipped,
		       status, COALESCE(error, ''), started_at, finished_at
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.IngestRun
	for rows.Next() {
		var run domain.IngestRun
		var finished sql.NullTime
		if err := rows.Scan(
			&run.ID, &run.Source, &run.RowsRead, &run.RowsLoaded, &run.RowsSkipped,
			&run.Status, &run.Error, &run.StartedAt, &finished,
		); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
