package repository

import (
	"context"
	"time"

	"video-narrator/core/models"
)

// ArtifactRepository handles database operations for job artifact locations
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetJobArtifacts retrieves artifact locations for a job
func (r *ArtifactRepository) GetJobArtifacts(ctx context.Context, jobID string) ([]models.Artifact, error) {
	query := r.db.rebind(`
		SELECT type, uri
		FROM job_artifacts
		WHERE job_id = $1
		ORDER BY created_at, type
	`)

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.Artifact
	for rows.Next() {
		var artifact models.Artifact
		if err := rows.Scan(&artifact.Type, &artifact.URI); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

// upsertArtifacts records locations, replacing any previous location of the same type
func (r *ArtifactRepository) upsertArtifacts(ctx context.Context, ex execer, jobID string, artifacts []models.Artifact) error {
	query := r.db.rebind(`
		INSERT INTO job_artifacts (job_id, type, uri, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, type) DO UPDATE SET uri = excluded.uri
	`)

	now := time.Now().UTC()
	for _, artifact := range artifacts {
		if _, err := ex.ExecContext(ctx, query, jobID, string(artifact.Type), artifact.URI, now); err != nil {
			return err
		}
	}
	return nil
}
