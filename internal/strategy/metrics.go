package strategy

import (
	"sync/atomic"
	"time"
)

// AtomicMetrics is the atomic counter set an Instance embeds to implement
// GetMetrics (spec.md §3.1, §4.C): each instance updates its own metrics as
// it processes events rather than being timed from outside by the manager.
type AtomicMetrics struct {
	eventsProcessed  atomic.Uint64
	signalsGenerated atomic.Uint64
	errors           atomic.Uint64
	cumulativeExecNs atomic.Uint64
	maxExecNs        atomic.Uint64
	lastEventTimeNs  atomic.Int64
}

// TimeEvent wraps an OnEvent/OnTimer/OnPositionUpdate body, recording its
// wall-clock cost and bumping EventsProcessed and LastEventTimeNs.
func (m *AtomicMetrics) TimeEvent(fn func()) {
	start := time.Now()
	fn()
	elapsed := uint64(time.Since(start).Nanoseconds())

	m.eventsProcessed.Add(1)
	m.cumulativeExecNs.Add(elapsed)
	m.lastEventTimeNs.Store(start.UnixNano())
	for {
		cur := m.maxExecNs.Load()
		if elapsed <= cur {
			break
		}
		if m.maxExecNs.CompareAndSwap(cur, elapsed) {
			break
		}
	}
}

// RecordSignal bumps SignalsGenerated by one.
func (m *AtomicMetrics) RecordSignal() { m.signalsGenerated.Add(1) }

// RecordError bumps Errors by one.
func (m *AtomicMetrics) RecordError() { m.errors.Add(1) }

// Snapshot returns the current counter values as a Metrics value.
func (m *AtomicMetrics) Snapshot() Metrics {
	return Metrics{
		EventsProcessed:      m.eventsProcessed.Load(),
		SignalsGenerated:     m.signalsGenerated.Load(),
		Errors:               m.errors.Load(),
		CumulativeExecTimeNs: m.cumulativeExecNs.Load(),
		MaxExecTimeNs:        m.maxExecNs.Load(),
		LastEventTimeNs:      m.lastEventTimeNs.Load(),
	}
}

// Summary aggregates per-instance Metrics across the whole manager
// (spec.md §4.C get_metrics_summary).
type Summary struct {
	InstanceCount    int
	EventsProcessed  uint64
	SignalsGenerated uint64
	Errors           uint64
	SignalsDropped   uint64
}
