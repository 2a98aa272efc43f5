package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/postgres"
	"github.com/phrazzld/apply-orchestrator/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mirrorCols = []string{
	"id", "owner_id", "job_reference", "query", "status", "result", "error", "logs", "is_success",
	"remote_task_id", "session_id", "live_view_url", "staged_files", "completed_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func mirrorRow(id, owner uuid.UUID, status domain.MirrorStatus, completedAt any) *sqlmock.Rows {
	created := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(mirrorCols).AddRow(
		id.String(), owner.String(), "job-1", `{"notes":"remote only"}`, string(status), nil, nil,
		[]byte(`["queued"]`), nil, "task-9", "sess-1", "https://live.example/sess-1",
		[]byte(`["resume.docx"]`), completedAt, created, created,
	)
}

func TestMirrorStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)

	rec, err := domain.NewMirrorRecord(uuid.New(), "job-1", "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO mirror_records").
		WithArgs(rec.ID, rec.OwnerID, "job-1", "", "pending",
			sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("[]"), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("[]"),
			sqlmock.AnyArg(), rec.CreatedAt, rec.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_CreateRejectsInvalidRecord(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)

	err := s.Create(context.Background(), &domain.MirrorRecord{ID: uuid.New(), OwnerID: uuid.New()})

	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	rec, err := domain.NewMirrorRecord(uuid.New(), "job-1", "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO mirror_records").WillReturnError(newPgError("23505"))

	err = s.Create(context.Background(), rec)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestMirrorStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	id, owner := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM mirror_records WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(mirrorRow(id, owner, domain.MirrorStatusInProgress, nil))

	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, owner, rec.OwnerID)
	assert.Equal(t, domain.MirrorStatusInProgress, rec.Status)
	assert.Equal(t, []string{"queued"}, rec.Logs)
	assert.Equal(t, []string{"resume.docx"}, rec.StagedFiles)
	assert.Equal(t, "task-9", rec.RemoteTaskID)
	assert.Equal(t, "https://live.example/sess-1", rec.LiveViewURL)
	assert.Equal(t, domain.Unknown, rec.IsSuccess)
	assert.Nil(t, rec.Error)
	assert.Nil(t, rec.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)

	mock.ExpectQuery("FROM mirror_records").WillReturnRows(sqlmock.NewRows(mirrorCols))

	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrMirrorNotFound)
}

func TestMirrorStore_GetForOwner(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	id, owner := uuid.New(), uuid.New()

	mock.ExpectQuery("WHERE id = \\$1 AND owner_id = \\$2").
		WithArgs(id, owner).
		WillReturnRows(sqlmock.NewRows(mirrorCols))

	_, err := s.GetForOwner(context.Background(), owner, id)
	assert.ErrorIs(t, err, store.ErrMirrorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_TransitionLocksAndUpdates(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM mirror_records WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(mirrorRow(id, uuid.New(), domain.MirrorStatusInProgress, nil))
	mock.ExpectExec("UPDATE mirror_records").
		WithArgs(id, "failed", sql.NullString{String: "boom", Valid: true}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := s.Transition(context.Background(), id, domain.MirrorStatusFailed, "boom")

	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_TransitionTerminalIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	id := uuid.New()
	done := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(mirrorRow(id, uuid.New(), domain.MirrorStatusCompleted, done))
	mock.ExpectCommit()

	changed, err := s.Transition(context.Background(), id, domain.MirrorStatusCompleted, "")

	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_TransitionAwayFromTerminal(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	id := uuid.New()
	done := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(mirrorRow(id, uuid.New(), domain.MirrorStatusStopped, done))
	mock.ExpectRollback()

	changed, err := s.Transition(context.Background(), id, domain.MirrorStatusFailed, "late failure")

	assert.ErrorIs(t, err, domain.ErrMirrorTerminal)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_AppendLog(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	id := uuid.New()

	mock.ExpectExec("jsonb_build_array").
		WithArgs(id, "session opened", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.AppendLog(context.Background(), id, "session opened"))

	mock.ExpectExec("jsonb_build_array").WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.AppendLog(context.Background(), id, "again")
	assert.ErrorIs(t, err, store.ErrMirrorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_UpdateRemote(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	id := uuid.New()

	t.Run("empty update skips the database", func(t *testing.T) {
		require.NoError(t, s.UpdateRemote(context.Background(), id, store.RemoteUpdate{}))
	})

	t.Run("partial update", func(t *testing.T) {
		taskID := "task-42"
		verdict := domain.True
		mock.ExpectExec("UPDATE mirror_records SET").
			WithArgs(id,
				sql.NullString{String: taskID, Valid: true},
				sql.NullString{},
				sql.NullString{},
				nil,
				[]byte(`{"output":"ok"}`),
				true,
				sql.NullBool{Bool: true, Valid: true},
				sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.UpdateRemote(context.Background(), id, store.RemoteUpdate{
			RemoteTaskID: &taskID,
			Result:       []byte(`{"output":"ok"}`),
			IsSuccess:    &verdict,
		})
		require.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorStore_ListByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	s := postgres.NewPostgresMirrorStore(db, nil)
	a, b := uuid.New(), uuid.New()

	rows := mirrorRow(a, uuid.New(), domain.MirrorStatusPending, nil)
	rows.AddRow(
		b.String(), uuid.New().String(), "job-2", "", "pending", nil, nil,
		[]byte(`[]`), nil, nil, nil, nil, []byte(`[]`), nil, time.Now(), time.Now(),
	)
	mock.ExpectQuery("WHERE status = \\$1").
		WithArgs("pending", nil).
		WillReturnRows(rows)

	recs, err := s.ListByStatus(context.Background(), domain.MirrorStatusPending, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, a, recs[0].ID)
	assert.Equal(t, b, recs[1].ID)
	assert.Empty(t, recs[1].RemoteTaskID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
