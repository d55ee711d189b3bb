package scheduler

import (
	"container/heap"
	"sync"

	"video-narrator/core/models"
)

// JobQueue holds jobs waiting for an execution slot, oldest first
type JobQueue struct {
	mu    sync.Mutex
	items arrivals
	seq   uint64
}

type arrival struct {
	job *models.Job
	seq uint64 // breaks CreatedAt ties in submission order
}

// NewJobQueue creates a new job queue
func NewJobQueue() *JobQueue {
	return &JobQueue{}
}

// Enqueue adds a job to the queue
func (q *JobQueue) Enqueue(job *models.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, arrival{job: job, seq: q.seq})
}

// PopJob removes and returns the oldest job, or nil when empty
func (q *JobQueue) PopJob() *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(arrival).job
}

// Size returns the number of waiting jobs
func (q *JobQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// arrivals is a min-heap on (CreatedAt, seq).
type arrivals []arrival

func (a arrivals) Len() int { return len(a) }

func (a arrivals) Less(i, j int) bool {
	ti, tj := a[i].job.CreatedAt, a[j].job.CreatedAt
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return a[i].seq < a[j].seq
}

func (a arrivals) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

func (a *arrivals) Push(x any) { *a = append(*a, x.(arrival)) }

func (a *arrivals) Pop() any {
	old := *a
	n := len(old)
	item := old[n-1]
	old[n-1] = arrival{}
	*a = old[:n-1]
	return item
}
