package shared

import (
	"sync"
	"time"
)

// OperationStats tracks outcomes for one named operation
type OperationStats struct {
	Attempts    int64         `json:"attempts"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
	LastFailure time.Time     `json:"last_failure,omitempty"`
	TotalTime   time.Duration `json:"-"`
}

// ServiceMetrics collects per-operation counters for a service. Counters are
// surfaced on the health endpoint for diagnostics only.
type ServiceMetrics struct {
	serviceName string
	mutex       sync.RWMutex
	operations  map[string]*OperationStats
}

// NewServiceMetrics creates a metrics collector for the named service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		serviceName: serviceName,
		operations:  make(map[string]*OperationStats),
	}
}

// RecordOperation records one attempt of the named operation
func (m *ServiceMetrics) RecordOperation(operationName string, success bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stats, exists := m.operations[operationName]
	if !exists {
		stats = &OperationStats{}
		m.operations[operationName] = stats
	}

	stats.Attempts++
	stats.TotalTime += processingTime
	if success {
		stats.Successes++
		stats.LastSuccess = time.Now()
	} else {
		stats.Failures++
		stats.LastFailure = time.Now()
	}
}

// Snapshot returns a copy of all operation counters
func (m *ServiceMetrics) Snapshot() map[string]OperationStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshot := make(map[string]OperationStats, len(m.operations))
	for name, stats := range m.operations {
		snapshot[name] = *stats
	}
	return snapshot
}
