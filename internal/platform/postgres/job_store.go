package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/store"
)

// PostgresJobStore reads job metadata. It works against a pool or an open
// transaction.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

var _ store.JobStore = (*PostgresJobStore)(nil)

// GetJob returns the job with jobID.
func (s *PostgresJobStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var (
		job                                   domain.Job
		title, company, location, description sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, company, location, url, description
		FROM jobs
		WHERE id = $1`, jobID,
	).Scan(&job.ID, &title, &company, &location, &job.URL, &description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError("job", "get", "query failed", MapError(err))
	}
	job.Title = title.String
	job.Company = company.String
	job.Location = location.String
	job.Description = description.String
	return &job, nil
}
