package strategy

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"veloz/internal/errs"
	"veloz/internal/logging"
)

// SignalCallback is invoked with the batch drained after a dispatch cycle
// (spec.md §4.C "Signal collection"). If no callback is registered, drained
// batches are dropped and counted per-strategy as SignalsDropped.
type SignalCallback func(batch []OrderIntent)

// handle is the strong-ref-counted wrapper around a running Instance
// (spec.md §3.2, §9 item 1): Unload removes the handle from the registry
// and marks it removed so no new call acquires it; in-flight dispatches
// hold a reference via refs, so a call already in progress when an unload
// races it runs to completion on its own reference.
type handle struct {
	id       string
	cfg      Config
	instance Instance

	mu      sync.Mutex
	refs    int
	removed bool
}

func (h *handle) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return false
	}
	h.refs++
	return true
}

func (h *handle) release() {
	h.mu.Lock()
	h.refs--
	h.mu.Unlock()
}

func (h *handle) markRemoved() {
	h.mu.Lock()
	h.removed = true
	h.mu.Unlock()
}

// Manager is the Strategy Framework: load/unload, dispatch, signal
// collection, hot-reload, and per-instance metrics (spec.md §4.C).
type Manager struct {
	registry *Registry
	log      *logging.Logger

	mu        sync.RWMutex // guards instances: exclusive for Load/Unload, shared for dispatch snapshot
	instances map[string]*handle

	signalsDropped map[string]*uint64mu

	cmdCh chan func()
	done  chan struct{}

	callbackMu sync.RWMutex
	callback   SignalCallback
}

// uint64mu is a tiny mutex-guarded counter; per-strategy drop counts don't
// need to survive strategy unload with atomic.Uint64's no-copy restriction
// getting in the way of map storage, so a pointer-to-struct is used instead.
type uint64mu struct {
	mu sync.Mutex
	n  uint64
}

func (c *uint64mu) add(n uint64) {
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()
}

func (c *uint64mu) load() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// NewManager constructs a Manager backed by registry and starts its single
// dispatch goroutine (spec.md §5 "Strategy dispatch runs on ... a single
// dispatch thread").
func NewManager(registry *Registry, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.New("strategy", false)
	}
	m := &Manager{
		registry:       registry,
		log:            log,
		instances:      make(map[string]*handle),
		signalsDropped: make(map[string]*uint64mu),
		cmdCh:          make(chan func(), 256),
		done:           make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	defer close(m.done)
	for fn := range m.cmdCh {
		fn()
	}
}

// run submits fn to the single dispatch goroutine and blocks until it has
// executed, giving the caller synchronous, in-order semantics.
func (m *Manager) run(fn func()) {
	ack := make(chan struct{})
	m.cmdCh <- func() {
		fn()
		close(ack)
	}
	<-ack
}

// Close stops the dispatch goroutine after draining anything already queued.
func (m *Manager) Close() {
	close(m.cmdCh)
	<-m.done
}

// SetSignalCallback registers the caller-supplied signal callback
// (spec.md §2 "Glue surfaces").
func (m *Manager) SetSignalCallback(cb SignalCallback) {
	m.callbackMu.Lock()
	m.callback = cb
	m.callbackMu.Unlock()
}

// LoadStrategy builds and registers a new instance under a fresh id
// (spec.md §4.C). Returns empty string if no factory matches or
// construction otherwise fails.
func (m *Manager) LoadStrategy(cfg Config) string {
	instance, err := m.registry.Build(cfg)
	if err != nil {
		m.log.Warnf("strategy: load failed for type %s: %v", cfg.Type, err)
		return ""
	}

	id := "strat-" + uuid.NewString()[:8]
	h := &handle{id: id, cfg: cfg, instance: instance}

	m.mu.Lock()
	m.instances[id] = h
	m.signalsDropped[id] = &uint64mu{}
	m.mu.Unlock()

	return id
}

// UnloadStrategy stops dispatch to id and removes it; the id becomes
// unknown. Safe to call concurrently with an in-flight dispatch to the
// same instance (spec.md §3.2).
func (m *Manager) UnloadStrategy(id string) {
	m.mu.Lock()
	h, ok := m.instances[id]
	if ok {
		delete(m.instances, id)
		delete(m.signalsDropped, id)
	}
	m.mu.Unlock()

	if ok {
		h.markRemoved()
	}
}

// snapshot returns the currently registered handles under a shared lock
// (spec.md §5 "reads during dispatch may hold a shared snapshot").
func (m *Manager) snapshot() []*handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*handle, 0, len(m.instances))
	for _, h := range m.instances {
		out = append(out, h)
	}
	return out
}

// DispatchMarketEvent fans ev out to every loaded instance's OnEvent, in
// order within each instance (spec.md §4.C, §5 ordering guarantee (b)).
func (m *Manager) DispatchMarketEvent(ev MarketEvent) {
	m.run(func() {
		for _, h := range m.snapshot() {
			m.callInstance(h, func() { h.instance.OnEvent(ev) })
		}
	})
}

// DispatchPositionUpdate fans pos out to every loaded instance.
func (m *Manager) DispatchPositionUpdate(pos PositionUpdate) {
	m.run(func() {
		for _, h := range m.snapshot() {
			m.callInstance(h, func() { h.instance.OnPositionUpdate(pos) })
		}
	})
}

// DispatchTimer fans a timer tick out to every loaded instance.
func (m *Manager) DispatchTimer(ts time.Time) {
	m.run(func() {
		for _, h := range m.snapshot() {
			m.callInstance(h, func() { h.instance.OnTimer(ts) })
		}
	})
}

// callInstance acquires h's strong ref before calling into the instance and
// releases it after. A racing UnloadStrategy stops later calls but does not
// wait for one already in progress, and that call is not interrupted.
func (m *Manager) callInstance(h *handle, call func()) {
	if !h.acquire() {
		return
	}
	defer h.release()
	call()
}

// ProcessAndRouteSignals drains every loaded instance's outbox, concatenates
// intents into one ordered batch per spec.md §4.C, and invokes the signal
// callback. With no callback registered, the batch is dropped and counted
// per-strategy as signals_dropped.
func (m *Manager) ProcessAndRouteSignals() {
	m.run(func() {
		var batch []OrderIntent
		handles := m.snapshot()
		for _, h := range handles {
			if !h.acquire() {
				continue
			}
			signals := h.instance.GetSignals()
			h.release()
			if len(signals) == 0 {
				continue
			}

			m.callbackMu.RLock()
			cb := m.callback
			m.callbackMu.RUnlock()

			if cb == nil {
				m.mu.RLock()
				counter := m.signalsDropped[h.id]
				m.mu.RUnlock()
				if counter != nil {
					counter.add(uint64(len(signals)))
				}
				continue
			}
			batch = append(batch, signals...)
		}

		m.callbackMu.RLock()
		cb := m.callback
		m.callbackMu.RUnlock()
		if cb != nil && len(batch) > 0 {
			cb(batch)
		}
	})
}

// ReloadParameters hot-reloads params into the running instance id.
// Fails fast with Unsupported if the instance does not support hot-reload
// (spec.md §4.C).
func (m *Manager) ReloadParameters(id string, params map[string]float64) error {
	m.mu.RLock()
	h, ok := m.instances[id]
	m.mu.RUnlock()
	if !ok {
		return errs.New(errs.NotFound, "unknown strategy id").WithDetail("id", id)
	}
	if !h.acquire() {
		return errs.New(errs.NotFound, "strategy id no longer active").WithDetail("id", id)
	}
	defer h.release()

	if !h.instance.SupportsHotReload() {
		return errs.New(errs.Unsupported, "strategy does not support hot-reload").WithDetail("id", id)
	}
	return h.instance.UpdateParameters(params)
}

// GetMetricsSummary aggregates per-instance Metrics across all instances
// (spec.md §4.C), reading a snapshot rather than holding the dispatch lock.
func (m *Manager) GetMetricsSummary() Summary {
	var sum Summary
	for _, h := range m.snapshot() {
		met := h.instance.GetMetrics()
		sum.InstanceCount++
		sum.EventsProcessed += met.EventsProcessed
		sum.SignalsGenerated += met.SignalsGenerated
		sum.Errors += met.Errors
	}

	m.mu.RLock()
	for _, c := range m.signalsDropped {
		sum.SignalsDropped += c.load()
	}
	m.mu.RUnlock()

	return sum
}

// Statuses returns the ids and configs of currently loaded instances, in
// the style of the teacher's Statuses() snapshot-under-lock helper.
func (m *Manager) Statuses() map[string]Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Config, len(m.instances))
	for id, h := range m.instances {
		out[id] = h.cfg
	}
	return out
}
