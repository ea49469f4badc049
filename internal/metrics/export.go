package metrics

import (
	"time"
)

// Global functions for dot-import usage

// MetricStart begins timing an operation
func MetricStart(topic, operation string) string {
	return GetInstance().StartTiming(topic, operation)
}

// MetricEnd completes timing an operation
func MetricEnd(key string) {
	GetInstance().EndTiming(key)
}

// MetricDuration records a duration directly
func MetricDuration(topic, operation string, duration time.Duration) {
	GetInstance().RecordDuration(topic, operation, duration)
}

// MetricInc increments a counter by 1
func MetricInc(topic, operation string) {
	GetInstance().IncrementCounter(topic, operation)
}

// MetricAdd adds a value to a counter
func MetricAdd(topic, operation string, delta int64) {
	GetInstance().AddCounter(topic, operation, delta)
}

// MetricSuccess records a successful operation
func MetricSuccess(topic, operation string) {
	GetInstance().RecordSuccess(topic, operation)
}

// MetricFail records a failed operation without reason
func MetricFail(topic, operation string) {
	GetInstance().RecordFailure(topic, operation, "")
}

// MetricFailWithReason records a failed operation with a specific reason
func MetricFailWithReason(topic, operation, reason string) {
	GetInstance().RecordFailure(topic, operation, reason)
}
