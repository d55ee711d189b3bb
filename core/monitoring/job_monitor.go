package monitoring

import (
	"context"
	"time"

	"video-narrator/core/models"

	"go.uber.org/zap"
)

// JobMonitor warns about jobs whose status has not changed for too long.
// Jobs are never cancelled; the warning is the only action.
type JobMonitor struct {
	jobs      JobLister
	threshold time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	// job id -> UpdatedAt already reported, so each stall is logged once
	reported map[string]time.Time
}

// NewJobMonitor creates a monitor. threshold <= 0 disables it.
func NewJobMonitor(jobs JobLister, threshold time.Duration, logger *zap.Logger) *JobMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := threshold / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return &JobMonitor{
		jobs:      jobs,
		threshold: threshold,
		interval:  interval,
		logger:    logger.With(zap.String("component", "job_monitor")),
		now:       time.Now,
		reported:  make(map[string]time.Time),
	}
}

// Start runs the check loop until ctx is done
func (jm *JobMonitor) Start(ctx context.Context) {
	if jm.threshold <= 0 {
		return
	}
	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jm.CheckStalled(ctx)
		}
	}
}

// CheckStalled logs each non-terminal job idle longer than the threshold and
// returns the ones newly reported.
func (jm *JobMonitor) CheckStalled(ctx context.Context) []*models.Job {
	jobs, err := jm.jobs.List(ctx, nil, 0)
	if err != nil {
		jm.logger.Error("list jobs", zap.Error(err))
		return nil
	}

	now := jm.now()
	var stalled []*models.Job
	active := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job.Status.Terminal() {
			continue
		}
		active[job.ID] = struct{}{}
		idle := now.Sub(job.UpdatedAt)
		if idle < jm.threshold {
			continue
		}
		if at, ok := jm.reported[job.ID]; ok && at.Equal(job.UpdatedAt) {
			continue
		}
		jm.reported[job.ID] = job.UpdatedAt
		jm.logger.Warn("job appears stalled",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Duration("idle", idle.Round(time.Second)),
		)
		stalled = append(stalled, job)
	}
	for id := range jm.reported {
		if _, ok := active[id]; !ok {
			delete(jm.reported, id)
		}
	}
	return stalled
}
