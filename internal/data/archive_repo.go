package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/medscribe/medscribe-go/internal/errors"
	"github.com/medscribe/medscribe-go/internal/domain/model"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrArchiveNotConfigured is returned when the note archive is used
	// without a database. The archive is optional; the pipeline treats this
	// as a soft failure.
	ErrArchiveNotConfigured = errors.New("note archive not configured")
	// ErrArchiveJobIDRequired is returned when an archive call omits the job ID.
	ErrArchiveJobIDRequired = errors.New("job_id is required")
)

// NoteArchiveRepo persists finished job results to PostgreSQL. Unlike the
// job store, archived results outlive the 24 hour retention window.
type NoteArchiveRepo struct {
	DB *sql.DB
}

// NewNoteArchiveRepo constructs a NoteArchiveRepo.
func NewNoteArchiveRepo(db *sql.DB) *NoteArchiveRepo {
	return &NoteArchiveRepo{DB: db}
}

// Migrate creates the archive schema if it does not exist.
func (r *NoteArchiveRepo) Migrate(ctx context.Context) error {
	if r == nil || r.DB == nil {
		return ErrArchiveNotConfigured
	}
	const schema = `
		CREATE TABLE IF NOT EXISTS note_archive (
			job_id     TEXT PRIMARY KEY,
			job_type   TEXT NOT NULL,
			result     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate note_archive: %w", err)
	}
	return nil
}

// Save stores or updates the archived result for a given job.
func (r *NoteArchiveRepo) Save(ctx context.Context, jobID string, jobType model.JobType, result []byte) error {
	if r == nil || r.DB == nil {
		return ErrArchiveNotConfigured
	}
	if jobID == "" {
		return ErrArchiveJobIDRequired
	}
	const query = `
		INSERT INTO note_archive (job_id, job_type, result, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (job_id)
		DO UPDATE SET
			job_type = EXCLUDED.job_type,
			result = EXCLUDED.result,
			updated_at = now();`
	if _, err := r.DB.ExecContext(ctx, query, jobID, string(jobType), result); err != nil {
		return fmt.Errorf("save note_archive: %w", apperrors.MapDBError(err))
	}
	return nil
}

// GetByJobID retrieves the archived result for a given job ID.
func (r *NoteArchiveRepo) GetByJobID(ctx context.Context, jobID string) ([]byte, error) {
	if r == nil || r.DB == nil {
		return nil, ErrArchiveNotConfigured
	}
	if jobID == "" {
		return nil, ErrArchiveJobIDRequired
	}
	const query = `
		SELECT result
		FROM note_archive
		WHERE job_id = $1`

	var result []byte
	err := r.DB.QueryRowContext(ctx, query, jobID).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("archived result for job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get note_archive: %w", apperrors.MapDBError(err))
	}
	return result, nil
}
