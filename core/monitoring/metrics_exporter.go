package monitoring

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"video-narrator/core/models"
)

// JobLister is the registry query the exporter and monitor need
type JobLister interface {
	List(ctx context.Context, status *models.JobStatus, limit int) ([]*models.Job, error)
}

// QueueStats reports scheduler occupancy
type QueueStats interface {
	Running() int
	Queued() int
}

// MetricsExporter renders job and pipeline metrics in the Prometheus text format
type MetricsExporter struct {
	jobs   JobLister
	stages *StageTracker
	queue  QueueStats
}

// NewMetricsExporter creates a new metrics exporter. queue may be nil.
func NewMetricsExporter(jobs JobLister, stages *StageTracker, queue QueueStats) *MetricsExporter {
	return &MetricsExporter{
		jobs:   jobs,
		stages: stages,
		queue:  queue,
	}
}

var exportedStatuses = []models.JobStatus{
	models.JobStatusQueued,
	models.JobStatusProcessing,
	models.JobStatusGenerating,
	models.JobStatusMuxing,
	models.JobStatusUploading,
	models.JobStatusCompleted,
	models.JobStatusFailed,
}

// GetPrometheusMetrics returns metrics in Prometheus format
func (me *MetricsExporter) GetPrometheusMetrics(ctx context.Context) (string, error) {
	jobs, err := me.jobs.List(ctx, nil, 0)
	if err != nil {
		return "", fmt.Errorf("list jobs: %w", err)
	}

	var b strings.Builder

	counts := make(map[models.JobStatus]int, len(exportedStatuses))
	for _, job := range jobs {
		counts[job.Status]++
	}
	b.WriteString("# HELP narrator_jobs Jobs by current status\n")
	b.WriteString("# TYPE narrator_jobs gauge\n")
	for _, status := range exportedStatuses {
		fmt.Fprintf(&b, "narrator_jobs{status=%q} %d\n", status, counts[status])
	}

	if me.queue != nil {
		b.WriteString("# HELP narrator_jobs_running Jobs holding an execution slot\n")
		b.WriteString("# TYPE narrator_jobs_running gauge\n")
		fmt.Fprintf(&b, "narrator_jobs_running %d\n", me.queue.Running())
		b.WriteString("# HELP narrator_jobs_waiting Jobs waiting for an execution slot\n")
		b.WriteString("# TYPE narrator_jobs_waiting gauge\n")
		fmt.Fprintf(&b, "narrator_jobs_waiting %d\n", me.queue.Queued())
	}

	if me.stages == nil {
		return b.String(), nil
	}

	stages := me.stages.Stages()
	b.WriteString("# HELP narrator_stage_duration_seconds Time spent in pipeline stages\n")
	b.WriteString("# TYPE narrator_stage_duration_seconds summary\n")
	for _, s := range stages {
		fmt.Fprintf(&b, "narrator_stage_duration_seconds_sum{stage=%q} %.3f\n", s.Stage, s.Total.Seconds())
		fmt.Fprintf(&b, "narrator_stage_duration_seconds_count{stage=%q} %d\n", s.Stage, s.Count)
	}
	b.WriteString("# HELP narrator_stage_duration_max_seconds Longest observed stage run\n")
	b.WriteString("# TYPE narrator_stage_duration_max_seconds gauge\n")
	for _, s := range stages {
		fmt.Fprintf(&b, "narrator_stage_duration_max_seconds{stage=%q} %.3f\n", s.Stage, s.Max.Seconds())
	}
	b.WriteString("# HELP narrator_stage_failures_total Stage runs that returned an error\n")
	b.WriteString("# TYPE narrator_stage_failures_total counter\n")
	for _, s := range stages {
		fmt.Fprintf(&b, "narrator_stage_failures_total{stage=%q} %d\n", s.Stage, s.Failures)
	}

	fallbacks := me.stages.Fallbacks()
	keys := make([]FallbackKey, 0, len(fallbacks))
	for k := range fallbacks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Stage != keys[j].Stage {
			return keys[i].Stage < keys[j].Stage
		}
		return keys[i].Fallback < keys[j].Fallback
	})
	b.WriteString("# HELP narrator_fallbacks_total Degraded paths taken by pipeline stages\n")
	b.WriteString("# TYPE narrator_fallbacks_total counter\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "narrator_fallbacks_total{stage=%q,fallback=%q} %d\n", k.Stage, k.Fallback, fallbacks[k])
	}

	return b.String(), nil
}
