package pipeline

import (
	"sync"
	"time"
)

// StageStatus is the last observed outcome of one stage
type StageStatus struct {
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Errors    int       `json:"errors"`
}

// Stats tracks run counters for the health endpoints. Safe for
// concurrent use.
type Stats struct {
	mu         sync.Mutex
	stages     map[string]*StageStatus
	rowsLoaded int
}

func NewStats() *Stats {
	return &Stats{stages: make(map[string]*StageStatus)}
}

func (s *Stats) RecordStage(stage string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.stages[stage]
	if !ok {
		status = &StageStatus{}
		s.stages[stage] = status
	}
	status.LastRun = time.Now().UTC()
	status.Runs++
	if err != nil {
		status.Errors++
		status.LastError = err.Error()
	} else {
		status.LastError = ""
	}
}

func (s *Stats) RecordRowsLoaded(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsLoaded += n
}

// Snapshot returns a copy of the current counters
func (s *Stats) Snapshot() (map[string]StageStatus, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages := make(map[string]StageStatus, len(s.stages))
	for name, status := range s.stages {
		stages[name] = *status
	}
	return stages, s.rowsLoaded
}

// Healthy reports whether the most recent run of every stage succeeded
func (s *Stats) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, status := range s.stages {
		if status.LastError != "" {
			return false
		}
	}
	return true
}
