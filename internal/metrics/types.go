package metrics

import (
	"sync"
	"time"
)

// MetricType identifies the kind of metric stored at a path.
type MetricType string

const (
	TypeTiming      MetricType = "timing"
	TypeCounter     MetricType = "counter"
	TypeSuccessFail MetricType = "success_fail"
)

// HealthStatus classifies a metric for display.
type HealthStatus int

const (
	HealthGood HealthStatus = iota
	HealthWarning
	HealthCritical
)

// TimingMetric tracks duration statistics for one operation.
type TimingMetric struct {
	mu        sync.RWMutex
	Count     int64
	Total     time.Duration
	Min       time.Duration
	Max       time.Duration
	Last      time.Duration
	samples   []time.Duration // Ring buffer for percentiles
	sampleIdx int
}

// CounterMetric tracks a monotonically growing value.
type CounterMetric struct {
	mu    sync.RWMutex
	Value int64
	Last  time.Time
}

// SuccessFailMetric tracks success and failure counts per operation.
type SuccessFailMetric struct {
	mu             sync.RWMutex
	Success        int64
	Failures       int64
	LastSuccess    time.Time
	LastFailure    time.Time
	FailureReasons map[string]int64 // reason -> count
}

// MetricNode is one node in the topic/operation tree.
type MetricNode struct {
	Name     string
	Path     string
	Type     MetricType
	Children map[string]*MetricNode
	Metric   interface{}
}

// MetricSnapshot is a point-in-time view of one metric.
type MetricSnapshot struct {
	Path   string       `json:"path"`
	Type   MetricType   `json:"type"`
	Health HealthStatus `json:"health"`
	Data   interface{}  `json:"data"`
}

// TimingSnapshot for JSON serialization.
type TimingSnapshot struct {
	Count  int64   `json:"count"`
	AvgMs  float64 `json:"avg_ms"`
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	LastMs float64 `json:"last_ms"`
	P95Ms  float64 `json:"p95_ms,omitempty"`
}

// CounterSnapshot for JSON serialization.
type CounterSnapshot struct {
	Value int64 `json:"value"`
}

// SuccessFailSnapshot for JSON serialization.
type SuccessFailSnapshot struct {
	Success        int64            `json:"success"`
	Failures       int64            `json:"failures"`
	SuccessRate    float64          `json:"success_rate"`
	FailureReasons map[string]int64 `json:"failure_reasons,omitempty"`
}
