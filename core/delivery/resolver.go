// Package delivery finds the best available output file for a job and serves
// it with byte-range support.
package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"video-narrator/core/models"
	"video-narrator/storage"
)

var (
	// ErrArtifactNotFound means no output exists locally or durably for the job.
	ErrArtifactNotFound = errors.New("video not found")
	// ErrStillProcessing means the job is known and running but has produced
	// nothing yet.
	ErrStillProcessing = errors.New("video still processing")
)

// OutputSuffixes are probed in order when the job record names no output.
var OutputSuffixes = []string{
	"_with_narration.mp4",
	"_final.mp4",
	"_professional_complete.mp4",
	"_fallback.mp4",
}

// JobSource returns job snapshots; unknown ids yield the not_found record.
type JobSource interface {
	Get(ctx context.Context, id string) *models.Job
}

// Resolution is where a job's video can be read from. Exactly one of Path and
// ObjectRef is set.
type Resolution struct {
	Job       *models.Job
	Path      string
	ObjectRef string
}

// Resolver locates job outputs.
type Resolver struct {
	jobs      JobSource
	workspace *storage.Workspace
}

// NewResolver creates a resolver over the registry and working directories.
func NewResolver(jobs JobSource, workspace *storage.Workspace) *Resolver {
	return &Resolver{jobs: jobs, workspace: workspace}
}

// Resolve checks, in order: the output location recorded on the job, the known
// output suffixes, any output file containing the job id, and finally the
// durable object reference.
func (r *Resolver) Resolve(ctx context.Context, jobID string) (Resolution, error) {
	if !validID(jobID) {
		return Resolution{}, ErrArtifactNotFound
	}
	job := r.jobs.Get(ctx, jobID)
	res := Resolution{Job: job}

	if p, ok := job.Artifact(models.ArtifactTypeOutput); ok && isFile(p) {
		res.Path = p
		return res, nil
	}
	for _, suffix := range OutputSuffixes {
		if p := r.workspace.OutputPath(jobID, suffix); isFile(p) {
			res.Path = p
			return res, nil
		}
	}
	if files, err := r.workspace.JobFiles(jobID); err == nil {
		for _, f := range files {
			if f.Size > 0 {
				res.Path = f.Path
				return res, nil
			}
		}
	}
	if ref, ok := job.Artifact(models.ArtifactTypeObject); ok {
		res.ObjectRef = ref
		return res, nil
	}

	if job.Status != models.JobStatusNotFound && !job.Status.Terminal() {
		return res, ErrStillProcessing
	}
	return res, ErrArtifactNotFound
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func isFile(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(filepath.Clean(p))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
