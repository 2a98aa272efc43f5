package postgres_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/apply-orchestrator/internal/platform/postgres"
	"github.com/phrazzld/apply-orchestrator/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		TableName:      "mirror_records",
		ColumnName:     "status",
		ConstraintName: "mirror_records_status_check",
	}
}

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, r.err }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		errIs   error
		errText string
	}{
		{name: "no rows", err: sql.ErrNoRows, errIs: store.ErrNotFound},
		{name: "unique violation", err: newPgError("23505"), errIs: store.ErrDuplicate},
		{name: "foreign key violation", err: newPgError("23503"), errIs: store.ErrInvalidEntity, errText: "constraint mirror_records_status_check"},
		{name: "check violation", err: newPgError("23514"), errIs: store.ErrInvalidEntity, errText: "mirror_records_status_check"},
		{name: "not null violation", err: newPgError("23502"), errIs: store.ErrInvalidEntity, errText: "column status is required"},
		{name: "unmapped postgres code", err: newPgError("42P01")},
		{name: "plain error", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := postgres.MapError(tt.err)
			if tt.errIs == nil {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.errIs)
			if tt.errText != "" {
				assert.Contains(t, got.Error(), tt.errText)
			}
		})
	}

	assert.NoError(t, postgres.MapError(nil))
}

func TestMapError_KeepsDriverError(t *testing.T) {
	t.Parallel()

	got := postgres.MapError(newPgError("23505"))
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(got, &pgErr))
	assert.Equal(t, "23505", pgErr.Code)
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	assert.NoError(t, postgres.CheckRowsAffected(fakeResult{rows: 1}, "mirror record"))

	err := postgres.CheckRowsAffected(fakeResult{rows: 0}, "mirror record")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "mirror record not found")

	assert.ErrorIs(t, postgres.CheckRowsAffected(fakeResult{rows: 0}, ""), store.ErrNotFound)

	err = postgres.CheckRowsAffected(fakeResult{err: errors.New("driver gone")}, "mirror record")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	assert.Error(t, postgres.CheckRowsAffected(nil, "mirror record"))
}
