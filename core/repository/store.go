package repository

import (
	"context"
	"errors"

	"video-narrator/core/models"
)

var (
	// ErrJobNotFound is returned by stores for unknown job identifiers.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when inserting a duplicate identifier.
	ErrJobExists = errors.New("job already exists")
	// ErrInvalidTransition is returned when a status update would regress a job
	// or touch a terminal one.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobStore persists job records and their transition log.
// Implementations return copies; callers may mutate what they get back.
type JobStore interface {
	Insert(ctx context.Context, job *models.Job, event models.JobEvent) error
	Load(ctx context.Context, id string) (*models.Job, error)
	Save(ctx context.Context, job *models.Job, event models.JobEvent) error
	List(ctx context.Context, status *models.JobStatus, limit int) ([]*models.Job, error)
	Events(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error)
}
