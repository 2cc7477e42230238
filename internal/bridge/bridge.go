package bridge

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"veloz/internal/errs"
)

// State is the Bridge's lifecycle stage (spec.md §4.B), stored atomically
// so reads never race with a concurrent Start/Stop.
type State int32

const (
	StateIdle State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EngineAdapter is the Bridge's sole collaborator with the external
// matching engine (spec.md §1 treats the engine itself as out of scope).
// A reference AMQP-based implementation lives in bridge/adapteramqp.
type EngineAdapter interface {
	// SubmitOrder forwards a validated order to the engine. It returns once
	// the engine has acknowledged acceptance, not once it fills.
	SubmitOrder(ctx context.Context, order Order) error
	// CancelOrder forwards a cancel request for clientID.
	CancelOrder(ctx context.Context, clientID string) error
	// Start begins any background consumption the adapter needs (e.g. an
	// AMQP consumer loop) and is given a publish callback to report
	// engine-originated updates back into the Bridge.
	Start(ctx context.Context, publish func(EventType, any)) error
	// Stop releases adapter resources. Idempotent.
	Stop() error
}

// Config holds the recognized bridge configuration options (spec.md §6).
type Config struct {
	EventQueueCapacity int
	EnableMetrics      bool
	MaxSubscriptions   int
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		EventQueueCapacity: 256,
		EnableMetrics:      true,
		MaxSubscriptions:   1024,
	}
}

// Bridge is VeloZ's Engine Bridge: order submission, account/market reads,
// and engine event fan-out (spec.md §4.B).
type Bridge struct {
	cfg   Config
	state atomic.Int32

	adapter EngineAdapter

	pool *eventPool
	reg  *registry

	nextEventID atomic.Uint64
	metrics     metricsState

	mirror *mirror

	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// New constructs an uninitialized Bridge.
func New(cfg Config) *Bridge {
	return &Bridge{
		cfg:    cfg,
		pool:   newEventPool(cfg.EventQueueCapacity),
		reg:    newRegistry(),
		mirror: newMirror(),
	}
}

// Initialize wires the EngineAdapter. Called once (spec.md §4.B).
func (b *Bridge) Initialize(ctx context.Context, adapter EngineAdapter) error {
	if !b.state.CompareAndSwap(int32(StateIdle), int32(StateInitialized)) {
		return errs.New(errs.AlreadyRunning, "bridge already initialized")
	}
	b.adapter = adapter
	b.ctx, b.cancel = context.WithCancel(ctx)
	return nil
}

// Start transitions Initialized -> Running and starts the adapter.
func (b *Bridge) Start() error {
	if !b.state.CompareAndSwap(int32(StateInitialized), int32(StateRunning)) {
		if State(b.state.Load()) == StateRunning {
			return errs.New(errs.AlreadyRunning, "bridge already running")
		}
		return errs.New(errs.NotRunning, "bridge must be initialized before start")
	}
	if b.adapter != nil {
		if err := b.adapter.Start(b.ctx, b.publishRaw); err != nil {
			b.state.Store(int32(StateInitialized))
			return errs.Wrap(errs.AdapterError, "engine adapter failed to start", err)
		}
	}
	return nil
}

// Stop is idempotent: it cancels all subscriptions, drains in-flight
// delivery, stops the adapter, and transitions to Stopped.
func (b *Bridge) Stop() error {
	var adapterErr error
	b.stopOnce.Do(func() {
		b.state.Store(int32(StateStopped))
		if b.cancel != nil {
			b.cancel()
		}
		b.reg.removeAll()
		if b.adapter != nil {
			adapterErr = b.adapter.Stop()
		}
	})
	return adapterErr
}

func (b *Bridge) running() bool {
	return State(b.state.Load()) == StateRunning
}

// PlaceOrder validates and forwards an order to the engine adapter
// (spec.md §4.B). Validation happens before any state change or metric
// increment.
func (b *Bridge) PlaceOrder(ctx context.Context, side, symbol string, qty, price float64, clientID string) error {
	if !b.running() {
		return errs.New(errs.NotRunning, "bridge is not running")
	}

	normSide := strings.ToLower(side)
	if normSide != string(SideBuy) && normSide != string(SideSell) {
		return errs.Invalid("side", "must be buy or sell")
	}
	if symbol == "" {
		return errs.Invalid("symbol", "must not be empty")
	}
	if qty <= 0 {
		return errs.Invalid("qty", "must be positive")
	}
	if clientID == "" {
		return errs.Invalid("client_id", "must not be empty")
	}

	order := Order{
		ClientID: clientID,
		Symbol:   symbol,
		Side:     Side(normSide),
		Quantity: qty,
		Price:    price,
		Type:     OrderMarket,
		Status:   OrderStatusSubmitted,
	}
	if price > 0 {
		order.Type = OrderLimit
	}

	start := time.Now()
	if err := b.adapter.SubmitOrder(ctx, order); err != nil {
		return errs.Wrap(errs.AdapterError, "engine rejected order", err)
	}
	b.metrics.recordLatency(time.Since(start).Nanoseconds())

	order.Status = OrderStatusAccepted
	b.mirror.putOrder(order)
	b.metrics.ordersSubmitted.Add(1)

	b.publish(EventOrderUpdate, OrderUpdate{
		ClientID: clientID,
		Symbol:   symbol,
		Side:     Side(normSide),
		Quantity: qty,
		Price:    price,
		Status:   OrderStatusAccepted,
	})
	return nil
}

// CancelOrder validates clientID and forwards a cancel to the engine adapter.
func (b *Bridge) CancelOrder(ctx context.Context, clientID string) error {
	if !b.running() {
		return errs.New(errs.NotRunning, "bridge is not running")
	}
	if clientID == "" {
		return errs.Invalid("client_id", "must not be empty")
	}

	if err := b.adapter.CancelOrder(ctx, clientID); err != nil {
		return errs.Wrap(errs.AdapterError, "engine rejected cancel", err)
	}

	b.mirror.markCancelled(clientID)
	b.metrics.ordersCancelled.Add(1)

	b.publish(EventOrderUpdate, OrderUpdate{
		ClientID: clientID,
		Status:   OrderStatusCancelled,
	})
	return nil
}

// --- Reads (spec.md §4.B) ---

func (b *Bridge) GetOrder(clientID string) (Order, bool) {
	b.metrics.orderQueries.Add(1)
	return b.mirror.getOrder(clientID)
}

func (b *Bridge) GetOrders() []Order {
	b.metrics.orderQueries.Add(1)
	return b.mirror.getOrders()
}

func (b *Bridge) GetPendingOrders() []Order {
	b.metrics.orderQueries.Add(1)
	return b.mirror.getPendingOrders()
}

func (b *Bridge) GetMarketSnapshot(symbol string) (MarketSnapshot, bool) {
	b.metrics.marketSnapshots.Add(1)
	return b.mirror.getMarketSnapshot(symbol)
}

// GetMarketSnapshots returns results in the same order as the input symbols.
func (b *Bridge) GetMarketSnapshots(symbols []string) []MarketSnapshot {
	b.metrics.marketSnapshots.Add(1)
	out := make([]MarketSnapshot, 0, len(symbols))
	for _, sym := range symbols {
		if snap, ok := b.mirror.getMarketSnapshot(sym); ok {
			out = append(out, snap)
		}
	}
	return out
}

func (b *Bridge) GetAccountState() AccountState {
	return b.mirror.getAccountState()
}

func (b *Bridge) GetPositions() []Position {
	return b.mirror.getPositions()
}

func (b *Bridge) GetPosition(symbol string) (Position, bool) {
	return b.mirror.getPosition(symbol)
}

// --- Pub/sub (spec.md §4.B) ---

// SubscribeAll registers cb for every event type.
func (b *Bridge) SubscribeAll(cb EventCallback) uint64 {
	return b.subscribe(false, "", cb)
}

// Subscribe registers cb for one event type only.
func (b *Bridge) Subscribe(typ EventType, cb EventCallback) uint64 {
	return b.subscribe(true, typ, cb)
}

func (b *Bridge) subscribe(hasType bool, typ EventType, cb EventCallback) uint64 {
	id := b.reg.allocID()
	sub := newSubscription(id, hasType, typ, cb, b.cfg.EventQueueCapacity, b.pool)
	b.reg.add(sub)
	return id
}

// Unsubscribe removes one subscription; a no-op on an unknown id
// (spec.md §8 round-trip property).
func (b *Bridge) Unsubscribe(id uint64) {
	b.reg.remove(id)
}

// UnsubscribeAll removes every registration.
func (b *Bridge) UnsubscribeAll() {
	b.reg.removeAll()
}

// Metrics returns an atomic snapshot of the bridge's counters.
func (b *Bridge) Metrics() Metrics {
	return b.metrics.snapshot(b.pool)
}

// ResetMetrics resets counters atomically per-counter (spec.md open
// question, resolved: callable while Running).
func (b *Bridge) ResetMetrics() {
	b.metrics.reset()
}

// publishRaw is handed to the EngineAdapter as its update callback; it
// mirrors the payload into the read-side state before fanning out.
func (b *Bridge) publishRaw(typ EventType, payload any) {
	switch p := payload.(type) {
	case OrderUpdate:
		b.mirror.applyOrderUpdate(p)
	case MarketSnapshot:
		b.mirror.putMarketSnapshot(p)
	case AccountUpdate:
		b.mirror.putAccountState(AccountState{Equity: p.Equity, Cash: p.Cash})
	case PositionUpdate:
		b.mirror.putPosition(Position{Symbol: p.Symbol, Quantity: p.Quantity, AvgPrice: p.AvgPrice})
	}
	b.publish(typ, payload)
}

// publish assigns the event an id, snapshots the subscription table once
// (lock-free read per spec.md §4.B), and fans the event out. The event is
// returned to the pool once every matching subscription's pump has
// delivered it (spec.md §3.1 reference-counted lifecycle).
func (b *Bridge) publish(typ EventType, payload any) {
	e := b.pool.get()
	e.ID = b.nextEventID.Add(1)
	e.Type = typ
	e.Payload = payload

	subs := b.reg.snapshot()
	matching := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s.matches(e) {
			matching = append(matching, s)
		}
	}

	if len(matching) == 0 {
		b.pool.put(e)
		b.metrics.eventsPublished.Add(1)
		return
	}

	e.refs.Store(int32(len(matching)))
	for _, s := range matching {
		s.offer(e)
	}
	b.metrics.eventsPublished.Add(1)
}
