package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"video-narrator/core/models"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Shutdown has begun.
var ErrClosed = errors.New("scheduler: shutting down")

// Runner executes one job to a terminal status.
type Runner interface {
	Run(ctx context.Context, job *models.Job) error
}

// StatusWriter records the failure of a job whose runner panicked.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, message string, artifacts ...models.Artifact) error
}

// Scheduler runs each submitted job in its own goroutine. At most
// maxConcurrent jobs run at once; the rest wait in the queue in arrival order.
type Scheduler struct {
	runner  Runner
	status  StatusWriter
	queue   *JobQueue
	slots   *semaphore.Weighted // nil means unlimited
	logger  *zap.Logger
	wg      sync.WaitGroup
	running atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewScheduler creates a scheduler. maxConcurrent <= 0 disables the limit.
func NewScheduler(runner Runner, status StatusWriter, maxConcurrent int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		runner: runner,
		status: status,
		queue:  NewJobQueue(),
		logger: logger.With(zap.String("component", "scheduler")),
	}
	if maxConcurrent > 0 {
		s.slots = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return s
}

// Submit hands job to the scheduler and returns immediately.
func (s *Scheduler) Submit(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.queue.Enqueue(job)
	s.wg.Add(1)
	go s.dispatch()
	return nil
}

// Queued returns the number of jobs waiting for a slot.
func (s *Scheduler) Queued() int {
	return s.queue.Size()
}

// Running returns the number of jobs currently executing.
func (s *Scheduler) Running() int {
	return int(s.running.Load())
}

// Shutdown stops accepting jobs and waits for queued and running jobs until
// ctx is done. Started jobs are never cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown grace expired with jobs still running",
			zap.Int("running", s.Running()),
			zap.Int("queued", s.Queued()),
		)
		return ctx.Err()
	}
}

// dispatch waits for a slot and then runs the oldest queued job, which is not
// necessarily the job whose submission started this goroutine.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	ctx := context.Background()

	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			s.logger.Error("acquire slot", zap.Error(err))
			return
		}
		defer s.slots.Release(1)
	}

	job := s.queue.PopJob()
	if job == nil {
		return
	}
	s.execute(ctx, job)
}

func (s *Scheduler) execute(ctx context.Context, job *models.Job) {
	s.running.Add(1)
	defer s.running.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			msg := fmt.Sprintf("Processing failed: internal error: %v", r)
			if err := s.status.UpdateStatus(ctx, job.ID, models.JobStatusFailed, msg); err != nil {
				s.logger.Error("record panic failure", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()

	s.logger.Info("job started", zap.String("job_id", job.ID))
	if err := s.runner.Run(ctx, job); err != nil {
		s.logger.Warn("job finished with error", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	s.logger.Info("job finished", zap.String("job_id", job.ID))
}
