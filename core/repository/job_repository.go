package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"video-narrator/core/models"
)

// JobRepository is the SQL-backed JobStore (postgres or sqlite)
type JobRepository struct {
	db        *DB
	events    *EventRepository
	artifacts *ArtifactRepository
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{
		db:        db,
		events:    NewEventRepository(db),
		artifacts: NewArtifactRepository(db),
	}
}

// Insert creates the job row and its initial event in one transaction
func (r *JobRepository) Insert(ctx context.Context, job *models.Job, event models.JobEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.db.rebind(`
		INSERT INTO jobs (
			id, status, message, app_name, description, template, source_path, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	_, err = tx.ExecContext(ctx, query,
		job.ID,
		string(job.Status),
		job.Message,
		job.AppName,
		job.Description,
		job.Template,
		job.SourcePath,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrJobExists
		}
		return err
	}

	if err := r.artifacts.upsertArtifacts(ctx, tx, job.ID, job.Artifacts); err != nil {
		return err
	}
	if err := r.events.createEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

// Load retrieves a job and its artifact locations
func (r *JobRepository) Load(ctx context.Context, id string) (*models.Job, error) {
	query := r.db.rebind(`
		SELECT id, status, message, app_name, description, template, source_path, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`)

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	job.Artifacts, err = r.artifacts.GetJobArtifacts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	return job, nil
}

// Save updates status fields, artifact locations and appends the event atomically
func (r *JobRepository) Save(ctx context.Context, job *models.Job, event models.JobEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.db.rebind(`UPDATE jobs SET status = $1, message = $2, updated_at = $3 WHERE id = $4`)
	res, err := tx.ExecContext(ctx, query, string(job.Status), job.Message, job.UpdatedAt.UTC(), job.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}

	if err := r.artifacts.upsertArtifacts(ctx, tx, job.ID, job.Artifacts); err != nil {
		return err
	}
	if err := r.events.createEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

// List lists jobs newest first with an optional status filter
func (r *JobRepository) List(ctx context.Context, status *models.JobStatus, limit int) ([]*models.Job, error) {
	query := `
		SELECT id, status, message, app_name, description, template, source_path, created_at, updated_at
		FROM jobs
	`
	var args []any
	argIndex := 1

	if status != nil {
		query += fmt.Sprintf(" WHERE status = $%d", argIndex)
		args = append(args, string(*status))
		argIndex++
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if job.Artifacts, err = r.artifacts.GetJobArtifacts(ctx, job.ID); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// Events returns the transition log for a job
func (r *JobRepository) Events(ctx context.Context, jobID string, limit int) ([]models.JobEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.events.GetJobEvents(ctx, jobID, limit)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var status string
	if err := row.Scan(
		&job.ID,
		&status,
		&job.Message,
		&job.AppName,
		&job.Description,
		&job.Template,
		&job.SourcePath,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	return &job, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
