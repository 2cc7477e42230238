package bridge

import (
	"sync"
	"sync/atomic"
)

// EventCallback is invoked by a subscription's dedicated pump goroutine,
// never synchronously from the publisher (spec.md §4.B "never re-entered
// from the caller's thread").
type EventCallback func(*Event)

// subscription is one registered callback with an optional type filter and
// a bounded, drop-oldest-on-overflow delivery lane. Grounded on the
// teacher's websocket.Hub/Client registration+buffered-send-channel idiom,
// generalized from "broadcast to all" to "filtered fan-out with per-sub
// drop accounting".
type subscription struct {
	id       uint64
	hasType  bool
	typ      EventType
	callback EventCallback
	pool     *eventPool

	lane      chan *Event
	dropped   atomic.Uint64
	delivered atomic.Uint64

	closeOnce sync.Once
	done      chan struct{} // closed once the pump goroutine has exited
	stop      chan struct{}
}

func newSubscription(id uint64, hasType bool, typ EventType, cb EventCallback, laneCapacity int, pool *eventPool) *subscription {
	s := &subscription{
		id:       id,
		hasType:  hasType,
		typ:      typ,
		callback: cb,
		pool:     pool,
		lane:     make(chan *Event, laneCapacity),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscription) matches(e *Event) bool {
	if !s.hasType {
		return true
	}
	return s.typ == e.Type
}

// offer enqueues e for delivery, dropping the oldest undelivered event for
// this subscription if the lane is full (spec.md §4.B "Delivery ordering").
// It never blocks the publisher.
func (s *subscription) offer(e *Event) {
	select {
	case s.lane <- e:
		return
	default:
	}
	// Lane full: drop the oldest queued event, then enqueue this one. The
	// dropped event still counts this subscription as done with it.
	select {
	case old := <-s.lane:
		s.dropped.Add(1)
		s.pool.release(old)
	default:
	}
	select {
	case s.lane <- e:
	default:
		s.dropped.Add(1)
		s.pool.release(e)
	}
}

// pump is the dedicated delivery goroutine for this subscription. It runs
// callbacks serially, so events reach this subscription in lane order
// (spec.md §5 ordering guarantee (a)).
func (s *subscription) pump() {
	defer close(s.done)
	for {
		select {
		case e := <-s.lane:
			s.callback(e)
			s.delivered.Add(1)
			s.pool.release(e)
		case <-s.stop:
			return
		}
	}
}

// close stops the pump and blocks until it has exited, guaranteeing no
// further callback invocation after close returns (spec.md §3.1 invariant).
func (s *subscription) close() {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	for {
		select {
		case e := <-s.lane:
			s.dropped.Add(1)
			s.pool.release(e)
		default:
			return
		}
	}
}

// registry is the RCU subscription table: readers (the publish path) load
// the current slice via one atomic pointer read; writers (Subscribe/
// Unsubscribe) clone-modify-swap under a short-lived mutex.
type registry struct {
	mu      sync.Mutex // serializes writers only; readers never take it
	subs    atomic.Pointer[[]*subscription]
	nextID  atomic.Uint64
}

func newRegistry() *registry {
	r := &registry{}
	empty := []*subscription{}
	r.subs.Store(&empty)
	return r
}

// add registers sub under the RCU table; sub's id was already assigned by
// allocID.
func (r *registry) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.subs.Load()
	next := make([]*subscription, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = sub
	r.subs.Store(&next)
}

// remove unregisters the subscription with the given id, if present, and
// closes its pump so no further callback can fire (spec.md §3.1 invariant:
// "after unsubscribe(id) returns, the callback is guaranteed never to be
// invoked again").
func (r *registry) remove(id uint64) bool {
	r.mu.Lock()
	cur := *r.subs.Load()
	idx := -1
	for i, s := range cur {
		if s.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	next := make([]*subscription, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	removed := cur[idx]
	r.subs.Store(&next)
	r.mu.Unlock()

	removed.close()
	return true
}

// removeAll unregisters and closes every subscription.
func (r *registry) removeAll() {
	r.mu.Lock()
	cur := *r.subs.Load()
	empty := []*subscription{}
	r.subs.Store(&empty)
	r.mu.Unlock()

	for _, s := range cur {
		s.close()
	}
}

// snapshot returns the current subscription slice without locking — the
// lock-free read on the publish path (spec.md §4.B "Concurrency").
func (r *registry) snapshot() []*subscription {
	return *r.subs.Load()
}

func (r *registry) allocID() uint64 {
	// Subscription ids are strictly monotonic and never zero (0 means
	// "invalid/none" per spec.md §6), and never reused.
	return r.nextID.Add(1)
}
