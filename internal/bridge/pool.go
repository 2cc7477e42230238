package bridge

import "sync/atomic"

// eventPool is a fixed-capacity free-list of *Event slots. A buffered
// channel used as a semaphore-backed pool is the idiomatic Go shape for
// this (spec.md §4.B "fixed-capacity free-list, heap fallback on
// exhaustion, counted") — get never blocks: an empty pool just falls
// through to a heap allocation.
type eventPool struct {
	slots chan *Event

	allocated         atomic.Int64
	totalAllocations  atomic.Uint64
}

// newEventPool pre-populates capacity pooled *Event values.
func newEventPool(capacity int) *eventPool {
	p := &eventPool{slots: make(chan *Event, capacity)}
	for i := 0; i < capacity; i++ {
		p.slots <- &Event{pooled: true}
	}
	return p
}

// get returns a pooled Event if one is free, otherwise allocates on the
// heap (counted in totalAllocations either way).
func (p *eventPool) get() *Event {
	p.totalAllocations.Add(1)
	select {
	case e := <-p.slots:
		p.allocated.Add(1)
		return e
	default:
		return &Event{pooled: false}
	}
}

// put returns e to the pool once the last subscription has finished
// delivering it. Non-pooled events (allocated on heap fallback) are left
// for the garbage collector.
func (p *eventPool) put(e *Event) {
	if !e.pooled {
		return
	}
	e.ID = 0
	e.Type = ""
	e.Payload = nil
	e.refs.Store(0)
	p.allocated.Add(-1)

	select {
	case p.slots <- e:
	default:
		// Pool capacity shrank or this slot is somehow already accounted
		// for; drop rather than block a delivery-completion path.
	}
}

// release decrements e's matching-subscription countdown and returns it to
// the pool once every subscription that received it has finished delivery
// (spec.md §3.1 "reference-count reaches zero -> returned to pool").
func (p *eventPool) release(e *Event) {
	if e.refs.Add(-1) == 0 {
		p.put(e)
	}
}

// stats returns (currentlyAllocated, lifetimeAllocations).
func (p *eventPool) stats() (int64, uint64) {
	return p.allocated.Load(), p.totalAllocations.Load()
}
