package models

import "time"

// Job represents one narrated-video request flowing through the pipeline
type Job struct {
	ID          string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Message     string     `json:"message"`
	Progress    *float64   `json:"progress"` // never populated, kept for client compatibility
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	AppName     string     `json:"appName,omitempty"`
	Description string     `json:"description,omitempty"`
	Template    string     `json:"template,omitempty"`
	SourcePath  string     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusGenerating JobStatus = "generating"
	JobStatusMuxing     JobStatus = "muxing"
	JobStatusUploading  JobStatus = "uploading"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusNotFound   JobStatus = "not_found" // registry-only, never stored
)

// NotFoundMessage is returned with the not_found pseudo-record.
const NotFoundMessage = "Job not found in memory. Check if video was generated."

var statusRank = map[JobStatus]int{
	JobStatusQueued:     0,
	JobStatusProcessing: 1,
	JobStatusGenerating: 2,
	JobStatusMuxing:     3,
	JobStatusUploading:  4,
	JobStatusCompleted:  5,
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a storable status.
func (s JobStatus) Valid() bool {
	if s == JobStatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether a job may move from s to next.
// Repeating the current status is allowed so stages can refresh the message.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	return statusRank[next] >= statusRank[s]
}

// ArtifactType represents where an artifact location points
type ArtifactType string

const (
	ArtifactTypeOutput    ArtifactType = "output"    // local output file
	ArtifactTypeObject    ArtifactType = "object"    // durable storage key
	ArtifactTypePublic    ArtifactType = "public"    // public URL
	ArtifactTypeStreaming ArtifactType = "streaming" // streaming URL
	ArtifactTypeDownload  ArtifactType = "download"  // download URL
)

// Artifact is one typed location recorded on a job
type Artifact struct {
	Type ArtifactType `json:"type"`
	URI  string       `json:"uri"`
}

// Artifact returns the location recorded for typ, if any.
func (j *Job) Artifact(typ ArtifactType) (string, bool) {
	for _, a := range j.Artifacts {
		if a.Type == typ {
			return a.URI, true
		}
	}
	return "", false
}

// MergeArtifacts replaces locations of the same type and keeps the rest.
func MergeArtifacts(existing, updates []Artifact) []Artifact {
	merged := make([]Artifact, 0, len(existing)+len(updates))
	merged = append(merged, existing...)
	for _, u := range updates {
		replaced := false
		for i := range merged {
			if merged[i].Type == u.Type {
				merged[i].URI = u.URI
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, u)
		}
	}
	return merged
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Artifacts != nil {
		c.Artifacts = append([]Artifact(nil), j.Artifacts...)
	}
	return &c
}

// NotFoundJob builds the pseudo-record returned for unknown identifiers.
func NotFoundJob(id string) *Job {
	return &Job{
		ID:        id,
		Status:    JobStatusNotFound,
		Message:   NotFoundMessage,
		UpdatedAt: time.Now(),
	}
}
