package repository

import (
	"context"
	"sort"
	"sync"

	"video-narrator/core/models"
)

// MemoryStore is the default process-local job table.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*models.Job
	events  map[string][]models.JobEvent
	eventID int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*models.Job),
		events: make(map[string][]models.JobEvent),
	}
}

func (s *MemoryStore) Insert(_ context.Context, job *models.Job, event models.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	s.appendEvent(event)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Save replaces the stored record wholesale so readers never see a partial write.
func (s *MemoryStore) Save(_ context.Context, job *models.Job, event models.JobEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = job.Clone()
	s.appendEvent(event)
	return nil
}

func (s *MemoryStore) List(_ context.Context, status *models.JobStatus, limit int) ([]*models.Job, error) {
	s.mu.RLock()
	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *MemoryStore) Events(_ context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[jobID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]models.JobEvent(nil), events...), nil
}

func (s *MemoryStore) appendEvent(event models.JobEvent) {
	s.eventID++
	event.ID = s.eventID
	s.events[event.JobID] = append(s.events[event.JobID], event)
}
