package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/phrazzld/apply-orchestrator/internal/store"
)

// ProfileStore holds applicant profiles keyed by owner.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]domain.Profile
}

// NewProfileStore returns an empty ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[uuid.UUID]domain.Profile)}
}

var _ store.ProfileStore = (*ProfileStore)(nil)

// Put stores p, replacing any profile with the same owner.
func (s *ProfileStore) Put(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.OwnerID] = cloneProfile(p)
}

func (s *ProfileStore) GetProfile(_ context.Context, ownerID uuid.UUID) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[ownerID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	c := cloneProfile(p)
	return &c, nil
}

func cloneProfile(p domain.Profile) domain.Profile {
	p.Skills = slices.Clone(p.Skills)
	p.Experience = slices.Clone(p.Experience)
	p.Education = slices.Clone(p.Education)
	p.Credentials = slices.Clone(p.Credentials)
	if p.Resume != nil {
		r := *p.Resume
		r.Content = slices.Clone(r.Content)
		p.Resume = &r
	}
	return p
}

// JobStore holds job metadata keyed by job id.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

// NewJobStore returns an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]domain.Job)}
}

var _ store.JobStore = (*JobStore)(nil)

// Put stores job.
func (s *JobStore) Put(job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return &job, nil
}
