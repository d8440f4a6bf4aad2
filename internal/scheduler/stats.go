package scheduler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/skypath/nichebot/internal/discovery"
)

// Counters is one point-in-time view of scheduler activity.
type Counters struct {
	TotalRuns       int            `json:"total_runs"`
	TotalCollected  int            `json:"total_collected"`
	TotalClassified int            `json:"total_classified"`
	NichesUpserted  int            `json:"niches_upserted"`
	SkippedCycles   int            `json:"skipped_cycles"`
	ErrorCount      int            `json:"error_count"`
	ProviderCounts  map[string]int `json:"provider_counts"`
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
}

// Stats tracks scheduler activity for the health endpoint.
type Stats struct {
	mu       sync.RWMutex
	counters Counters
}

// NewStats creates an empty stats tracker.
func NewStats() *Stats {
	return &Stats{counters: Counters{ProviderCounts: make(map[string]int)}}
}

// RecordRun folds one completed run into the counters.
func (s *Stats) RecordRun(result *discovery.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.TotalRuns++
	s.counters.TotalCollected += result.Collected
	s.counters.TotalClassified += result.Classified
	s.counters.NichesUpserted += len(result.Niches)
	for provider, count := range result.ByProvider {
		s.counters.ProviderCounts[provider] += count
	}
	s.counters.LastRun = time.Now()
	s.counters.LastRunDuration = result.Duration.String()
}

// RecordError counts a failed run.
func (s *Stats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.ErrorCount++
}

// RecordSkip counts a cycle skipped because the previous one was still running.
func (s *Stats) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.SkippedCycles++
}

// Snapshot returns a copy safe to serialize.
func (s *Stats) Snapshot() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.counters
	out.ProviderCounts = make(map[string]int, len(s.counters.ProviderCounts))
	for provider, count := range s.counters.ProviderCounts {
		out.ProviderCounts[provider] = count
	}
	return out
}

// JSON renders the current counters for the /stats endpoint.
func (s *Stats) JSON() string {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
