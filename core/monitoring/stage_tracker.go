package monitoring

import (
	"sort"
	"sync"
	"time"
)

// StageTracker accumulates pipeline stage timings and fallback decisions
type StageTracker struct {
	stages    map[string]*StageStats
	fallbacks map[FallbackKey]int64
	mu        sync.RWMutex
}

// StageStats tracks timings for a single stage
type StageStats struct {
	Stage    string
	Count    int64
	Failures int64
	Total    time.Duration
	Max      time.Duration
}

// FallbackKey identifies one degraded path taken by a stage
type FallbackKey struct {
	Stage    string
	Fallback string
}

// NewStageTracker creates an empty tracker
func NewStageTracker() *StageTracker {
	return &StageTracker{
		stages:    make(map[string]*StageStats),
		fallbacks: make(map[FallbackKey]int64),
	}
}

// ObserveStage records one completed stage run
func (st *StageTracker) ObserveStage(stage string, elapsed time.Duration, failed bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.stages[stage]
	if !ok {
		s = &StageStats{Stage: stage}
		st.stages[stage] = s
	}
	s.Count++
	s.Total += elapsed
	if elapsed > s.Max {
		s.Max = elapsed
	}
	if failed {
		s.Failures++
	}
}

// ObserveFallback records that stage took a degraded path
func (st *StageTracker) ObserveFallback(stage, fallback string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.fallbacks[FallbackKey{Stage: stage, Fallback: fallback}]++
}

// Stages returns a copy of the stage stats ordered by stage name
func (st *StageTracker) Stages() []StageStats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]StageStats, 0, len(st.stages))
	for _, s := range st.stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Fallbacks returns a copy of the fallback counters
func (st *StageTracker) Fallbacks() map[FallbackKey]int64 {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make(map[FallbackKey]int64, len(st.fallbacks))
	for k, v := range st.fallbacks {
		out[k] = v
	}
	return out
}
