package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"video-narrator/core/models"

	"go.uber.org/zap"
)

// Registry is the single source of truth for job lifecycle state.
// Each job is written only by its own pipeline task; polling readers get copies.
type Registry struct {
	store  JobStore
	logger *zap.Logger
	now    func() time.Time

	// serializes read-modify-write cycles against the store
	mu sync.Mutex
}

// NewRegistry wraps store. A nil logger is replaced with a no-op logger.
func NewRegistry(store JobStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		logger: logger.With(zap.String("component", "registry")),
		now:    time.Now,
	}
}

// Create inserts job with status queued. ID must already be assigned.
func (r *Registry) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("create job: missing id")
	}
	now := r.now()
	job.Status = models.JobStatusQueued
	if job.Message == "" {
		job.Message = "Video queued for processing"
	}
	job.Progress = nil
	job.CreatedAt = now
	job.UpdatedAt = now

	event := models.JobEvent{
		JobID:    job.ID,
		At:       now,
		ToStatus: models.JobStatusQueued,
		Reason:   "job_created",
	}
	if err := r.store.Insert(ctx, job, event); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	r.logger.Info("job created", zap.String("job_id", job.ID))
	return nil
}

// UpdateStatus overwrites status and message and merges artifacts into the
// record. Regressions and writes after a terminal status are rejected.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status models.JobStatus, message string, artifacts ...models.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, err := r.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if !job.Status.CanTransition(status) {
		r.logger.Warn("rejected status transition",
			zap.String("job_id", id),
			zap.String("from", string(job.Status)),
			zap.String("to", string(status)),
		)
		return fmt.Errorf("update job %s from %s to %s: %w", id, job.Status, status, ErrInvalidTransition)
	}

	from := job.Status
	now := r.now()
	if now.Before(job.UpdatedAt) {
		now = job.UpdatedAt
	}
	job.Status = status
	job.Message = message
	job.UpdatedAt = now
	if len(artifacts) > 0 {
		job.Artifacts = models.MergeArtifacts(job.Artifacts, artifacts)
	}

	event := models.JobEvent{
		JobID:      id,
		At:         now,
		FromStatus: &from,
		ToStatus:   status,
		Reason:     message,
	}
	if err := r.store.Save(ctx, job, event); err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}

	r.logger.Debug("job status updated",
		zap.String("job_id", id),
		zap.String("status", string(status)),
		zap.String("message", message),
	)
	return nil
}

// Get returns a copy of the job, or the not_found pseudo-record. It never fails;
// store errors are logged and reported as not_found.
func (r *Registry) Get(ctx context.Context, id string) *models.Job {
	job, err := r.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrJobNotFound) {
			r.logger.Error("load job", zap.String("job_id", id), zap.Error(err))
		}
		return models.NotFoundJob(id)
	}
	return job
}

// List returns recent jobs, newest first.
func (r *Registry) List(ctx context.Context, status *models.JobStatus, limit int) ([]*models.Job, error) {
	return r.store.List(ctx, status, limit)
}

// Events returns the transition log for a job, oldest first.
func (r *Registry) Events(ctx context.Context, id string, limit int) ([]models.JobEvent, error) {
	return r.store.Events(ctx, id, limit)
}
