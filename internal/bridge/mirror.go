package bridge

import "sync"

// mirror is the Bridge's in-memory, point-in-time view of engine state,
// grounded on the teacher's state.StateManager: an RWMutex-guarded map
// with copy-out reads so callers never observe a half-updated record and
// never alias the Bridge's internal storage (spec.md §4.B "Reads").
type mirror struct {
	mu sync.RWMutex

	ordersByClientID map[string]Order
	snapshots        map[string]MarketSnapshot
	positions        map[string]Position
	account          AccountState
}

func newMirror() *mirror {
	return &mirror{
		ordersByClientID: make(map[string]Order),
		snapshots:        make(map[string]MarketSnapshot),
		positions:        make(map[string]Position),
	}
}

func (m *mirror) putOrder(o Order) {
	m.mu.Lock()
	m.ordersByClientID[o.ClientID] = o
	m.mu.Unlock()
}

func (m *mirror) applyOrderUpdate(u OrderUpdate) {
	m.mu.Lock()
	existing, ok := m.ordersByClientID[u.ClientID]
	if !ok {
		existing = Order{ClientID: u.ClientID}
	}
	existing.OrderID = u.OrderID
	existing.Symbol = u.Symbol
	if u.Side != "" {
		existing.Side = u.Side
	}
	if u.Quantity != 0 {
		existing.Quantity = u.Quantity
	}
	if u.Price != 0 {
		existing.Price = u.Price
	}
	existing.Status = u.Status
	m.ordersByClientID[u.ClientID] = existing
	m.mu.Unlock()
}

func (m *mirror) markCancelled(clientID string) {
	m.mu.Lock()
	if o, ok := m.ordersByClientID[clientID]; ok {
		o.Status = OrderStatusCancelled
		m.ordersByClientID[clientID] = o
	}
	m.mu.Unlock()
}

// getOrder returns "not present" rather than an error for an unknown id
// (spec.md §4.B).
func (m *mirror) getOrder(clientID string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.ordersByClientID[clientID]
	return o, ok
}

func (m *mirror) getOrders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0, len(m.ordersByClientID))
	for _, o := range m.ordersByClientID {
		out = append(out, o)
	}
	return out
}

func (m *mirror) getPendingOrders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Order
	for _, o := range m.ordersByClientID {
		if o.Status == OrderStatusSubmitted || o.Status == OrderStatusAccepted {
			out = append(out, o)
		}
	}
	return out
}

func (m *mirror) putMarketSnapshot(s MarketSnapshot) {
	m.mu.Lock()
	m.snapshots[s.Symbol] = s
	m.mu.Unlock()
}

func (m *mirror) getMarketSnapshot(symbol string) (MarketSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[symbol]
	return s, ok
}

func (m *mirror) putAccountState(a AccountState) {
	m.mu.Lock()
	m.account = a
	m.mu.Unlock()
}

func (m *mirror) getAccountState() AccountState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account
}

func (m *mirror) putPosition(p Position) {
	m.mu.Lock()
	m.positions[p.Symbol] = p
	m.mu.Unlock()
}

func (m *mirror) getPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

func (m *mirror) getPosition(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	return p, ok
}
