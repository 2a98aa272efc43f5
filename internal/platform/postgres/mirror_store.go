package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/redact"
	"github.com/phrazzld/apply-orchestrator/internal/store"
)

const mirrorColumns = `id, owner_id, job_reference, query, status, result, error, logs, is_success,
	remote_task_id, session_id, live_view_url, staged_files, completed_at, created_at, updated_at`

// PostgresMirrorStore implements store.MirrorStore using PostgreSQL.
// Status transitions lock the row, so concurrent writers to one record are
// serialised.
type PostgresMirrorStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresMirrorStore creates a new PostgresMirrorStore.
func NewPostgresMirrorStore(db *sql.DB, log *slog.Logger) *PostgresMirrorStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresMirrorStore{
		db:     db,
		logger: log.With("component", "mirror_store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ store.MirrorStore = (*PostgresMirrorStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new mirror record.
func (s *PostgresMirrorStore) Create(ctx context.Context, rec *domain.MirrorRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	logs, err := marshalStrings(rec.Logs)
	if err != nil {
		return err
	}
	staged, err := marshalStrings(rec.StagedFiles)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mirror_records (`+mirrorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID,
		rec.OwnerID,
		rec.JobReference,
		rec.Query,
		string(rec.Status),
		nullJSON(rec.Result),
		nullStringPtr(rec.Error),
		logs,
		nullTristate(rec.IsSuccess),
		nullString(rec.RemoteTaskID),
		nullString(rec.SessionID),
		nullString(rec.LiveViewURL),
		staged,
		rec.CompletedAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create mirror record",
			"mirror_id", rec.ID,
			"error", redact.Error(err))
		return store.NewStoreError("mirror", "create", "insert failed", MapError(err))
	}
	return nil
}

// Get returns the record with id.
func (s *PostgresMirrorStore) Get(ctx context.Context, id uuid.UUID) (*domain.MirrorRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mirrorColumns+` FROM mirror_records WHERE id = $1`, id)
	return s.scanOne(row)
}

// GetForOwner returns the record only if ownerID owns it.
func (s *PostgresMirrorStore) GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*domain.MirrorRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mirrorColumns+` FROM mirror_records WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return s.scanOne(row)
}

// Transition applies domain.MirrorRecord.Transition under a row lock.
func (s *PostgresMirrorStore) Transition(ctx context.Context, id uuid.UUID, status domain.MirrorStatus, errMsg string) (bool, error) {
	var changed bool
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+mirrorColumns+` FROM mirror_records WHERE id = $1 FOR UPDATE`, id)
		rec, err := s.scanOne(row)
		if err != nil {
			return err
		}

		changed, err = rec.Transition(status, errMsg, s.now())
		if err != nil || !changed {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE mirror_records
			SET status = $2, error = $3, completed_at = $4, updated_at = $5
			WHERE id = $1`,
			id, string(rec.Status), nullStringPtr(rec.Error), rec.CompletedAt, rec.UpdatedAt)
		if err != nil {
			return store.NewStoreError("mirror", "transition", "update failed", MapError(err))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// AppendLog appends line to the record's logs.
func (s *PostgresMirrorStore) AppendLog(ctx context.Context, id uuid.UUID, line string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mirror_records
		SET logs = logs || jsonb_build_array($2::text), updated_at = $3
		WHERE id = $1`,
		id, line, s.now())
	if err != nil {
		return store.NewStoreError("mirror", "append_log", "update failed", MapError(err))
	}
	return s.checkFound(result)
}

// UpdateRemote applies a partial update of the remote-facing fields.
func (s *PostgresMirrorStore) UpdateRemote(ctx context.Context, id uuid.UUID, u store.RemoteUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	var staged any
	if u.StagedFiles != nil {
		b, err := marshalStrings(u.StagedFiles)
		if err != nil {
			return err
		}
		staged = b
	}
	var isSuccess any
	if u.IsSuccess != nil {
		isSuccess = nullTristate(*u.IsSuccess)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE mirror_records SET
			remote_task_id = COALESCE($2, remote_task_id),
			session_id     = COALESCE($3, session_id),
			live_view_url  = COALESCE($4, live_view_url),
			staged_files   = COALESCE($5::jsonb, staged_files),
			result         = COALESCE($6::jsonb, result),
			is_success     = CASE WHEN $7 THEN $8::boolean ELSE is_success END,
			updated_at     = $9
		WHERE id = $1`,
		id,
		optString(u.RemoteTaskID),
		optString(u.SessionID),
		optString(u.LiveViewURL),
		staged,
		nullJSON(u.Result),
		u.IsSuccess != nil,
		isSuccess,
		s.now(),
	)
	if err != nil {
		return store.NewStoreError("mirror", "update_remote", "update failed", MapError(err))
	}
	return s.checkFound(result)
}

// ListByStatus returns records in status last updated before olderThan.
func (s *PostgresMirrorStore) ListByStatus(ctx context.Context, status domain.MirrorStatus, olderThan time.Time) ([]*domain.MirrorRecord, error) {
	var cutoff any
	if !olderThan.IsZero() {
		cutoff = olderThan.UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mirrorColumns+` FROM mirror_records
		WHERE status = $1 AND ($2::timestamptz IS NULL OR updated_at < $2::timestamptz)
		ORDER BY created_at`,
		string(status), cutoff)
	if err != nil {
		return nil, store.NewStoreError("mirror", "list", "query failed", MapError(err))
	}
	defer rows.Close()

	var out []*domain.MirrorRecord
	for rows.Next() {
		rec, err := scanMirror(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("mirror", "list", "row iteration failed", MapError(err))
	}
	return out, nil
}

func (s *PostgresMirrorStore) scanOne(row rowScanner) (*domain.MirrorRecord, error) {
	rec, err := scanMirror(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrMirrorNotFound
	}
	return rec, err
}

func (s *PostgresMirrorStore) checkFound(result sql.Result) error {
	if err := CheckRowsAffected(result, "mirror record"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrMirrorNotFound
		}
		return err
	}
	return nil
}

func scanMirror(row rowScanner) (*domain.MirrorRecord, error) {
	var (
		rec                       domain.MirrorRecord
		status                    string
		result                    []byte
		errMsg                    sql.NullString
		logs, staged              []byte
		isSuccess                 sql.NullBool
		remoteTask, session, live sql.NullString
		completedAt               sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.JobReference, &rec.Query, &status, &result, &errMsg, &logs,
		&isSuccess, &remoteTask, &session, &live, &staged, &completedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, store.NewStoreError("mirror", "scan", "scan failed", err)
	}

	rec.Status = domain.MirrorStatus(status)
	if len(result) > 0 {
		rec.Result = result
	}
	if errMsg.Valid {
		rec.Error = &errMsg.String
	}
	if isSuccess.Valid {
		rec.IsSuccess = domain.TristateOf(isSuccess.Bool)
	}
	rec.RemoteTaskID = remoteTask.String
	rec.SessionID = session.String
	rec.LiveViewURL = live.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if rec.Logs, err = unmarshalStrings(logs); err != nil {
		return nil, err
	}
	if rec.StagedFiles, err = unmarshalStrings(staged); err != nil {
		return nil, err
	}
	return &rec, nil
}

func marshalStrings(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode string list: %w", err)
	}
	return b, nil
}

func unmarshalStrings(b []byte) ([]string, error) {
	out := []string{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return out, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func optString(s *string) sql.NullString {
	return nullStringPtr(s)
}

func nullTristate(t domain.Tristate) sql.NullBool {
	switch t {
	case domain.True:
		return sql.NullBool{Bool: true, Valid: true}
	case domain.False:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}
