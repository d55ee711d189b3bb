package monitoring

import (
	"context"
	"strings"
	"testing"
	"time"

	"video-narrator/core/models"
)

type staticJobs []*models.Job

func (s staticJobs) List(context.Context, *models.JobStatus, int) ([]*models.Job, error) {
	return s, nil
}

type fixedQueue struct{ running, queued int }

func (q fixedQueue) Running() int { return q.running }
func (q fixedQueue) Queued() int  { return q.queued }

func TestStageTracker(t *testing.T) {
	st := NewStageTracker()
	st.ObserveStage("clean_video", 2*time.Second, false)
	st.ObserveStage("clean_video", 4*time.Second, true)
	st.ObserveStage("extract_audio", time.Second, false)
	st.ObserveFallback("combine", "copy")
	st.ObserveFallback("combine", "copy")

	stages := st.Stages()
	if len(stages) != 2 || stages[0].Stage != "clean_video" {
		t.Fatalf("stages = %+v", stages)
	}
	clean := stages[0]
	if clean.Count != 2 || clean.Failures != 1 || clean.Total != 6*time.Second || clean.Max != 4*time.Second {
		t.Fatalf("clean stats = %+v", clean)
	}
	if got := st.Fallbacks()[FallbackKey{"combine", "copy"}]; got != 2 {
		t.Fatalf("fallback count = %d", got)
	}
}

func TestPrometheusMetrics(t *testing.T) {
	jobs := staticJobs{
		{ID: "a", Status: models.JobStatusCompleted},
		{ID: "b", Status: models.JobStatusCompleted},
		{ID: "c", Status: models.JobStatusMuxing},
	}
	st := NewStageTracker()
	st.ObserveStage("combine", 1500*time.Millisecond, false)
	st.ObserveFallback("narrate", "none")

	out, err := NewMetricsExporter(jobs, st, fixedQueue{running: 1, queued: 3}).GetPrometheusMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`narrator_jobs{status="completed"} 2`,
		`narrator_jobs{status="muxing"} 1`,
		`narrator_jobs{status="failed"} 0`,
		`narrator_jobs_running 1`,
		`narrator_jobs_waiting 3`,
		`narrator_stage_duration_seconds_sum{stage="combine"} 1.500`,
		`narrator_stage_duration_seconds_count{stage="combine"} 1`,
		`narrator_fallbacks_total{stage="narrate",fallback="none"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q\n%s", want, out)
		}
	}
}

func TestCheckStalledReportsOncePerStall(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := staticJobs{
		{ID: "stuck", Status: models.JobStatusMuxing, UpdatedAt: now.Add(-time.Hour)},
		{ID: "fresh", Status: models.JobStatusProcessing, UpdatedAt: now.Add(-time.Minute)},
		{ID: "done", Status: models.JobStatusCompleted, UpdatedAt: now.Add(-time.Hour)},
	}
	jm := NewJobMonitor(jobs, 15*time.Minute, nil)
	jm.now = func() time.Time { return now }

	stalled := jm.CheckStalled(context.Background())
	if len(stalled) != 1 || stalled[0].ID != "stuck" {
		t.Fatalf("stalled = %+v", stalled)
	}
	if again := jm.CheckStalled(context.Background()); len(again) != 0 {
		t.Fatalf("stall reported twice: %+v", again)
	}

	jobs[0].UpdatedAt = now.Add(-20 * time.Minute)
	if moved := jm.CheckStalled(context.Background()); len(moved) != 1 {
		t.Fatalf("new stall not reported: %+v", moved)
	}
}
