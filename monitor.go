package pagekit

import (
	"sync"
	"time"
)

// Outcome classifies how a resolution ended.
type Outcome string

const (
	OutcomeResolved        Outcome = "resolved"
	OutcomeCached          Outcome = "cached"
	OutcomePageNotFound    Outcome = "page_not_found"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeNoRoles         Outcome = "no_roles"
	OutcomeFailed          Outcome = "failed"
)

// ResolutionMetrics provides resolution performance and failure statistics.
type ResolutionMetrics struct {
	TotalResolutions  int64             `json:"total_resolutions"`
	FailedResolutions int64             `json:"failed_resolutions"`
	ByOutcome         map[Outcome]int64 `json:"by_outcome"`
	AverageDuration   time.Duration     `json:"average_duration"`
	MaxDuration       time.Duration     `json:"max_duration"`
	MinDuration       time.Duration     `json:"min_duration"`
	LastReset         time.Time         `json:"last_reset"`
}

// resolutionMonitor holds the internal resolution monitoring state
type resolutionMonitor struct {
	mu            sync.Mutex
	totalCount    int64
	failureCount  int64
	byOutcome     map[Outcome]int64
	totalDuration time.Duration
	maxDuration   time.Duration
	minDuration   time.Duration
	lastReset     time.Time
}

func newResolutionMonitor() *resolutionMonitor {
	m := &resolutionMonitor{}
	m.resetLocked()
	return m
}

// record records a finished resolution with its duration and outcome
func (m *resolutionMonitor) record(duration time.Duration, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCount++
	m.byOutcome[outcome]++
	if outcome == OutcomeFailed {
		m.failureCount++
	}

	m.totalDuration += duration
	if duration > m.maxDuration {
		m.maxDuration = duration
	}
	if duration < m.minDuration {
		m.minDuration = duration
	}
}

// snapshot returns the current resolution metrics
func (m *resolutionMonitor) snapshot() ResolutionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	byOutcome := make(map[Outcome]int64, len(m.byOutcome))
	for k, v := range m.byOutcome {
		byOutcome[k] = v
	}

	var avg time.Duration
	minDur := m.minDuration
	if m.totalCount > 0 {
		avg = m.totalDuration / time.Duration(m.totalCount)
	} else {
		minDur = 0
	}

	return ResolutionMetrics{
		TotalResolutions:  m.totalCount,
		FailedResolutions: m.failureCount,
		ByOutcome:         byOutcome,
		AverageDuration:   avg,
		MaxDuration:       m.maxDuration,
		MinDuration:       minDur,
		LastReset:         m.lastReset,
	}
}

// reset resets all metrics
func (m *resolutionMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *resolutionMonitor) resetLocked() {
	m.totalCount = 0
	m.failureCount = 0
	m.byOutcome = make(map[Outcome]int64)
	m.totalDuration = 0
	m.maxDuration = 0
	m.minDuration = time.Hour // Initialize to a large value
	m.lastReset = time.Now()
}

// healthy checks if resolution performance is within acceptable thresholds.
func (m *resolutionMonitor) healthy() bool {
	metrics := m.snapshot()

	// If we have very few resolutions, consider it healthy
	if metrics.TotalResolutions < 10 {
		return true
	}

	// Failure rate should be less than 5%
	failureRate := float64(metrics.FailedResolutions) / float64(metrics.TotalResolutions)
	if failureRate > 0.05 {
		return false
	}

	return metrics.AverageDuration <= time.Second
}
