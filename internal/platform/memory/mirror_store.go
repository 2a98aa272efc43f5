package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/store"
)

// MirrorStore keeps mirror records in a map guarded by a mutex. Callers
// always receive copies.
type MirrorStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.MirrorRecord
	now     func() time.Time
}

// NewMirrorStore returns an empty MirrorStore.
func NewMirrorStore() *MirrorStore {
	return &MirrorStore{
		records: make(map[uuid.UUID]*domain.MirrorRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ store.MirrorStore = (*MirrorStore)(nil)

func (s *MirrorStore) Create(_ context.Context, rec *domain.MirrorRecord) error {
	if err := rec.Validate(); err != nil {
		return store.NewStoreError("mirror", "create", "validation failed", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return store.ErrDuplicate
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MirrorStore) Get(_ context.Context, id uuid.UUID) (*domain.MirrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrMirrorNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MirrorStore) GetForOwner(_ context.Context, ownerID, id uuid.UUID) (*domain.MirrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, store.ErrMirrorNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MirrorStore) Transition(_ context.Context, id uuid.UUID, status domain.MirrorStatus, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false, store.ErrMirrorNotFound
	}
	return rec.Transition(status, errMsg, s.now())
}

func (s *MirrorStore) AppendLog(_ context.Context, id uuid.UUID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.ErrMirrorNotFound
	}
	rec.AppendLog(line, s.now())
	return nil
}

func (s *MirrorStore) UpdateRemote(_ context.Context, id uuid.UUID, u store.RemoteUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.ErrMirrorNotFound
	}
	if u.RemoteTaskID != nil {
		rec.RemoteTaskID = *u.RemoteTaskID
	}
	if u.SessionID != nil {
		rec.SessionID = *u.SessionID
	}
	if u.LiveViewURL != nil {
		rec.LiveViewURL = *u.LiveViewURL
	}
	if u.StagedFiles != nil {
		rec.StagedFiles = slices.Clone(u.StagedFiles)
	}
	if u.Result != nil {
		rec.Result = slices.Clone(u.Result)
	}
	if u.IsSuccess != nil {
		rec.IsSuccess = *u.IsSuccess
	}
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MirrorStore) ListByStatus(_ context.Context, status domain.MirrorStatus, olderThan time.Time) ([]*domain.MirrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.MirrorRecord
	for _, rec := range s.records {
		if rec.Status != status {
			continue
		}
		if !olderThan.IsZero() && !rec.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneRecord(rec *domain.MirrorRecord) *domain.MirrorRecord {
	c := *rec
	c.Result = slices.Clone(rec.Result)
	c.Logs = slices.Clone(rec.Logs)
	c.StagedFiles = slices.Clone(rec.StagedFiles)
	if rec.Error != nil {
		msg := *rec.Error
		c.Error = &msg
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
