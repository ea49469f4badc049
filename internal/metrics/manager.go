// Package metrics collects timing, counter and success/failure statistics
// for clawkeeper operations, keyed by topic/operation paths. Data is held
// in memory and periodically persisted to a small sqlite database.
package metrics

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxSamples = 1000 // Keep last 1000 samples for percentile calculations
)

// Manager is the process-wide metrics registry.
type Manager struct {
	mu          sync.RWMutex
	root        *MetricNode
	timings     map[string]*TimingMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	active      map[string]time.Time // in-flight timings by key
	keyCounter  uint64

	db       *sql.DB
	stopSave chan struct{}
}

var (
	instance *Manager
	once     sync.Once
)

// GetInstance returns the singleton metrics manager.
func GetInstance() *Manager {
	once.Do(func() {
		instance = &Manager{
			root: &MetricNode{
				Name:     "root",
				Path:     "",
				Children: make(map[string]*MetricNode),
			},
			timings:     make(map[string]*TimingMetric),
			counters:    make(map[string]*CounterMetric),
			successFail: make(map[string]*SuccessFailMetric),
			active:      make(map[string]time.Time),
		}
	})
	return instance
}

// InitPersistence enables sqlite persistence for the singleton. Metrics
// still work in memory when this is never called or when the database
// cannot be opened.
func InitPersistence() {
	GetInstance().initPersistence()
}

// buildPath creates a normalized path from topic and operation.
func buildPath(topic, operation string) string {
	if operation == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, operation)
}

// getOrCreateNode ensures a node exists in the tree. Must be called with m.mu held.
func (m *Manager) getOrCreateNode(path string) *MetricNode {
	parts := strings.Split(path, "/")
	current := m.root

	fullPath := ""
	for _, part := range parts {
		if fullPath == "" {
			fullPath = part
		} else {
			fullPath = fullPath + "/" + part
		}

		if current.Children == nil {
			current.Children = make(map[string]*MetricNode)
		}

		if node, exists := current.Children[part]; exists {
			current = node
		} else {
			newNode := &MetricNode{
				Name:     part,
				Path:     fullPath,
				Children: make(map[string]*MetricNode),
			}
			current.Children[part] = newNode
			current = newNode
		}
	}

	return current
}

// StartTiming begins timing an operation and returns the key for EndTiming.
func (m *Manager) StartTiming(topic, operation string) string {
	path := buildPath(topic, operation)

	counter := atomic.AddUint64(&m.keyCounter, 1)
	key := fmt.Sprintf("%s#%d", path, counter)

	m.mu.Lock()
	m.active[key] = time.Now()
	m.mu.Unlock()

	return key
}

// EndTiming completes timing an operation. Unknown keys are ignored.
func (m *Manager) EndTiming(key string) {
	m.mu.Lock()
	startTime, exists := m.active[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.active, key)
	m.mu.Unlock()

	path := key
	if idx := strings.LastIndex(key, "#"); idx >= 0 {
		path = key[:idx]
	}

	m.RecordDuration(path, "", time.Since(startTime))
}

// RecordDuration records a duration directly.
func (m *Manager) RecordDuration(topic, operation string, duration time.Duration) {
	path := topic
	if operation != "" {
		path = buildPath(topic, operation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{
			samples: make([]time.Duration, 0, maxSamples),
			Min:     duration,
			Max:     duration,
		}
		m.timings[path] = metric

		node := m.getOrCreateNode(path)
		node.Type = TypeTiming
		node.Metric = metric
	}

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration

	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

// IncrementCounter increments a counter by 1.
func (m *Manager) IncrementCounter(topic, operation string) {
	m.AddCounter(topic, operation, 1)
}

// AddCounter adds delta to a counter.
func (m *Manager) AddCounter(topic, operation string, delta int64) {
	path := buildPath(topic, operation)

	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric

		node := m.getOrCreateNode(path)
		node.Type = TypeCounter
		node.Metric = metric
	}

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Value += delta
	metric.Last = time.Now()
}

// RecordSuccess records a successful operation.
func (m *Manager) RecordSuccess(topic, operation string) {
	metric := m.successFailMetric(buildPath(topic, operation))

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Success++
	metric.LastSuccess = time.Now()
}

// RecordFailure records a failed operation with an optional reason.
func (m *Manager) RecordFailure(topic, operation, reason string) {
	metric := m.successFailMetric(buildPath(topic, operation))

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Failures++
	metric.LastFailure = time.Now()

	if reason != "" {
		metric.FailureReasons[reason]++
	}
}

func (m *Manager) successFailMetric(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{
			FailureReasons: make(map[string]int64),
		}
		m.successFail[path] = metric

		node := m.getOrCreateNode(path)
		node.Type = TypeSuccessFail
		node.Metric = metric
	}
	return metric
}

// Snapshot returns a point-in-time view of all metrics, keyed by path.
func (m *Manager) Snapshot() map[string]*MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make(map[string]*MetricSnapshot)

	for path, metric := range m.timings {
		metric.mu.RLock()
		avg := float64(0)
		if metric.Count > 0 {
			avg = float64(metric.Total) / float64(metric.Count) / float64(time.Millisecond)
		}

		snapshot := &MetricSnapshot{
			Path:   path,
			Type:   TypeTiming,
			Health: timingHealth(avg),
			Data: TimingSnapshot{
				Count:  metric.Count,
				AvgMs:  avg,
				MinMs:  float64(metric.Min) / float64(time.Millisecond),
				MaxMs:  float64(metric.Max) / float64(time.Millisecond),
				LastMs: float64(metric.Last) / float64(time.Millisecond),
				P95Ms:  calculatePercentile(metric.samples, 95),
			},
		}
		metric.mu.RUnlock()
		snapshots[path] = snapshot
	}

	for path, metric := range m.counters {
		metric.mu.RLock()
		snapshot := &MetricSnapshot{
			Path:   path,
			Type:   TypeCounter,
			Health: HealthGood,
			Data: CounterSnapshot{
				Value: metric.Value,
			},
		}
		metric.mu.RUnlock()
		snapshots[path] = snapshot
	}

	for path, metric := range m.successFail {
		metric.mu.RLock()
		total := metric.Success + metric.Failures
		successRate := float64(0)
		if total > 0 {
			successRate = float64(metric.Success) / float64(total) * 100
		}

		snapshot := &MetricSnapshot{
			Path:   path,
			Type:   TypeSuccessFail,
			Health: successRateHealth(successRate),
			Data: SuccessFailSnapshot{
				Success:        metric.Success,
				Failures:       metric.Failures,
				SuccessRate:    successRate,
				FailureReasons: metric.FailureReasons,
			},
		}
		metric.mu.RUnlock()
		snapshots[path] = snapshot
	}

	return snapshots
}

// Tree returns the metric tree root.
func (m *Manager) Tree() *MetricNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// calculatePercentile calculates the Nth percentile from samples, in milliseconds.
func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := (len(sorted) * percentile) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return float64(sorted[idx]) / float64(time.Millisecond)
}

// timingHealth classifies an average duration. Operations here shell out to
// the openclaw CLI, so the bar sits well above in-process call budgets.
func timingHealth(avgMs float64) HealthStatus {
	if avgMs > 60000 {
		return HealthCritical
	}
	if avgMs > 5000 {
		return HealthWarning
	}
	return HealthGood
}

// successRateHealth classifies an overall success percentage.
func successRateHealth(rate float64) HealthStatus {
	if rate >= 99 {
		return HealthGood
	}
	if rate >= 90 {
		return HealthWarning
	}
	return HealthCritical
}
