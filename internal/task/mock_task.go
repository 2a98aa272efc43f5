package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
)

// MockTask is a Task whose behaviour is set by ExecuteFn.
type MockTask struct {
	TaskID      uuid.UUID
	TaskType    string
	TaskPayload []byte
	ExecuteFn   func(ctx context.Context) error
}

// NewMockTask creates a MockTask for the record id that succeeds immediately.
func NewMockTask(id uuid.UUID) *MockTask {
	return &MockTask{
		TaskID:    id,
		TaskType:  "mock_task",
		ExecuteFn: func(ctx context.Context) error { return nil },
	}
}

func (t *MockTask) ID() uuid.UUID                     { return t.TaskID }
func (t *MockTask) Type() string                      { return t.TaskType }
func (t *MockTask) Payload() []byte                   { return t.TaskPayload }
func (t *MockTask) Execute(ctx context.Context) error { return t.ExecuteFn(ctx) }

// MockTaskFactory implements TaskFactory with optional function overrides.
// Without overrides it returns succeeding MockTasks and records resumed ids.
type MockTaskFactory struct {
	CreateTaskFn func(mirrorID, ownerID uuid.UUID) (Task, error)
	ResumeTaskFn func(rec *domain.MirrorRecord) (Task, error)

	mu      sync.Mutex
	Resumed []uuid.UUID
}

func (f *MockTaskFactory) CreateTask(mirrorID, ownerID uuid.UUID) (Task, error) {
	if f.CreateTaskFn != nil {
		return f.CreateTaskFn(mirrorID, ownerID)
	}
	return NewMockTask(mirrorID), nil
}

func (f *MockTaskFactory) ResumeTask(rec *domain.MirrorRecord) (Task, error) {
	f.mu.Lock()
	f.Resumed = append(f.Resumed, rec.ID)
	f.mu.Unlock()
	if f.ResumeTaskFn != nil {
		return f.ResumeTaskFn(rec)
	}
	return NewMockTask(rec.ID), nil
}

// ResumedIDs returns a copy of the ids passed to ResumeTask.
func (f *MockTaskFactory) ResumedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.Resumed...)
}
