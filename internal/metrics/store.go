package metrics

import (
	"sort"
	"sync"
	"time"
)

// Outcome is how a remote call ended.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeSuppressed Outcome = "suppressed"
)

// RequestMetric records metadata for a single backend call.
type RequestMetric struct {
	Operation string
	Outcome   Outcome
	Latency   time.Duration
	Timestamp time.Time
}

// Store keeps request metrics in memory for the lifetime of the process.
type Store struct {
	mu      sync.Mutex
	records []RequestMetric
	limit   int
}

// NewStore creates a Store that retains at most limit records.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

// Record saves a metric, evicting the oldest one when full.
func (s *Store) Record(m RequestMetric) {
	if s == nil {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) >= s.limit {
		s.records = s.records[1:]
	}
	s.records = append(s.records, m)
}

// OperationUsage aggregates the calls of one operation.
type OperationUsage struct {
	Operation  string
	Total      int
	Failures   int
	Suppressed int
	AvgLatency time.Duration
	LastCalled time.Time
}

// Summary returns per-operation totals ordered by operation name.
func (s *Store) Summary() []OperationUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	byOp := make(map[string]*OperationUsage)
	latency := make(map[string]time.Duration)
	for _, r := range s.records {
		u, ok := byOp[r.Operation]
		if !ok {
			u = &OperationUsage{Operation: r.Operation}
			byOp[r.Operation] = u
		}
		u.Total++
		switch r.Outcome {
		case OutcomeFailure:
			u.Failures++
		case OutcomeSuppressed:
			u.Suppressed++
		}
		latency[r.Operation] += r.Latency
		if r.Timestamp.After(u.LastCalled) {
			u.LastCalled = r.Timestamp
		}
	}

	results := make([]OperationUsage, 0, len(byOp))
	for op, u := range byOp {
		u.AvgLatency = latency[op] / time.Duration(u.Total)
		results = append(results, *u)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Operation < results[j].Operation
	})
	return results
}

// Cleanup removes records older than maxAge and returns how many were dropped.
func (s *Store) Cleanup(maxAge time.Duration) int {
	threshold := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.Timestamp.After(threshold) {
			kept = append(kept, r)
		}
	}
	removed := len(s.records) - len(kept)
	s.records = kept
	return removed
}
