package bridge

import "sync/atomic"

// Metrics is an atomic snapshot of the bridge's counters (spec.md §4.B).
// Reset is per-counter and not cross-counter consistent, matching the
// open question resolved in DESIGN.md: a reader may observe a mix of
// reset/not-reset counters during a concurrent ResetMetrics call.
type Metrics struct {
	OrdersSubmitted    uint64
	OrdersCancelled    uint64
	EventsPublished    uint64
	OrderQueries       uint64
	MarketSnapshots    uint64
	AvgOrderLatencyNs  int64
	PoolAllocated      int64
	PoolTotalAllocations uint64
}

type metricsState struct {
	ordersSubmitted atomic.Uint64
	ordersCancelled atomic.Uint64
	eventsPublished atomic.Uint64
	orderQueries    atomic.Uint64
	marketSnapshots atomic.Uint64

	// avgOrderLatencyNs is maintained via a numerically-stable running
	// average (Welford-style incremental mean), not a naive sum/count that
	// could overflow under sustained load (spec.md §4.B).
	avgLatencyMu    atomic.Int64 // current mean, nanoseconds
	latencySamples  atomic.Uint64
}

func (m *metricsState) recordLatency(sampleNs int64) {
	n := m.latencySamples.Add(1)
	for {
		old := m.avgLatencyMu.Load()
		newMean := old + (sampleNs-old)/int64(n)
		if m.avgLatencyMu.CompareAndSwap(old, newMean) {
			return
		}
	}
}

func (m *metricsState) snapshot(pool *eventPool) Metrics {
	allocated, totalAlloc := pool.stats()
	return Metrics{
		OrdersSubmitted:      m.ordersSubmitted.Load(),
		OrdersCancelled:      m.ordersCancelled.Load(),
		EventsPublished:      m.eventsPublished.Load(),
		OrderQueries:         m.orderQueries.Load(),
		MarketSnapshots:      m.marketSnapshots.Load(),
		AvgOrderLatencyNs:    m.avgLatencyMu.Load(),
		PoolAllocated:        allocated,
		PoolTotalAllocations: totalAlloc,
	}
}

func (m *metricsState) reset() {
	m.ordersSubmitted.Store(0)
	m.ordersCancelled.Store(0)
	m.eventsPublished.Store(0)
	m.orderQueries.Store(0)
	m.marketSnapshots.Store(0)
	m.avgLatencyMu.Store(0)
	m.latencySamples.Store(0)
}
