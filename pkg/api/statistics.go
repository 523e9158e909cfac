package api

import (
	"sync"
	"time"

	"github.com/libreseed/pkgverify/internal/report"
)

// Statistics tracks the verifications served since start.
type Statistics struct {
	mu sync.RWMutex

	// TotalVerifications counts every verification that produced a report
	TotalVerifications int64

	// ByStatus counts reports per status
	ByStatus map[report.Status]int64

	// TotalDeclaredBytes is the sum of declared sizes of checked packages
	TotalDeclaredBytes uint64

	// LastVerification is when the most recent report was produced
	LastVerification time.Time
}

// NewStatistics creates a new Statistics with zero values.
func NewStatistics() *Statistics {
	return &Statistics{
		ByStatus: make(map[report.Status]int64),
	}
}

// Record accounts for one report.
func (s *Statistics) Record(r *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalVerifications++
	s.ByStatus[r.Status]++
	s.TotalDeclaredBytes += r.DeclaredBytes
	s.LastVerification = time.Now()
}

// StatisticsSnapshot is an immutable snapshot of Statistics.
type StatisticsSnapshot struct {
	TotalVerifications int64                   `json:"total_verifications"`
	ByStatus           map[report.Status]int64 `json:"by_status"`
	TotalDeclaredBytes uint64                  `json:"total_declared_bytes"`
	LastVerification   *time.Time              `json:"last_verification,omitempty"`
}

// Snapshot returns a thread-safe copy of the current statistics.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatisticsSnapshot{
		TotalVerifications: s.TotalVerifications,
		ByStatus:           make(map[report.Status]int64, len(s.ByStatus)),
		TotalDeclaredBytes: s.TotalDeclaredBytes,
	}
	for status, n := range s.ByStatus {
		snap.ByStatus[status] = n
	}
	if !s.LastVerification.IsZero() {
		last := s.LastVerification
		snap.LastVerification = &last
	}
	return snap
}
