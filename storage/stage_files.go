package storage

import (
	"sync"

	"go.uber.org/zap"
)

// StageFiles tracks the transient files one pipeline run creates so they can be
// released after their last use.
type StageFiles struct {
	ws    *Workspace
	jobID string

	mu    sync.Mutex
	paths []string
}

// Track starts a stage file ledger for jobID.
func (w *Workspace) Track(jobID string) *StageFiles {
	return &StageFiles{ws: w, jobID: jobID}
}

// Add records path and returns it unchanged.
func (s *StageFiles) Add(path string) string {
	if path == "" {
		return path
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.paths {
		if p == path {
			return path
		}
	}
	s.paths = append(s.paths, path)
	return path
}

// Release deletes one tracked file now that nothing reads it anymore.
func (s *StageFiles) Release(path string) {
	s.mu.Lock()
	kept := s.paths[:0]
	found := false
	for _, p := range s.paths {
		if p == path {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	s.paths = kept
	s.mu.Unlock()

	if found {
		s.ws.Remove(path)
	}
}

// Paths returns the files still tracked.
func (s *StageFiles) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Cleanup removes every tracked file except keep.
func (s *StageFiles) Cleanup(keep ...string) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}

	s.mu.Lock()
	var doomed, kept []string
	for _, p := range s.paths {
		if _, ok := keepSet[p]; ok {
			kept = append(kept, p)
			continue
		}
		doomed = append(doomed, p)
	}
	s.paths = kept
	s.mu.Unlock()

	if n := s.ws.Remove(doomed...); n > 0 {
		s.ws.logger.Debug("stage files removed", zap.String("job_id", s.jobID), zap.Int("count", n))
	}
}
