// Package bridge implements VeloZ's Engine Bridge: the in-process
// bidirectional channel between the HTTP gateway and an external matching
// engine, reached through the EngineAdapter interface.
package bridge

import (
	"sync/atomic"
	"time"
)

// EventType is the closed set of bridge event kinds (spec.md §3.1, §6).
type EventType string

const (
	EventOrderUpdate    EventType = "order_update"
	EventMarketSnapshot EventType = "market_snapshot"
	EventAccountUpdate  EventType = "account_update"
	EventPositionUpdate EventType = "position_update"
	EventSystemEvent    EventType = "system_event"
)

// Side is an order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes limit from market orders.
type OrderType string

const (
	OrderLimit  OrderType = "limit"
	OrderMarket OrderType = "market"
)

// OrderStatus is the lifecycle state an OrderUpdate payload reports.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderUpdate reports an order's submission, fill, or cancellation.
type OrderUpdate struct {
	ClientID string
	OrderID  string
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
	Status   OrderStatus
	Reason   string
}

// MarketSnapshot is a point-in-time market read.
type MarketSnapshot struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// AccountUpdate reports a change to account-level balances.
type AccountUpdate struct {
	Equity    float64
	Cash      float64
	Timestamp time.Time
}

// PositionUpdate reports a change to a single symbol's position.
type PositionUpdate struct {
	Symbol   string
	Quantity float64
	AvgPrice float64
}

// SystemEvent carries an operational notice from the engine (connect,
// disconnect, degraded mode, etc).
type SystemEvent struct {
	Kind    string
	Message string
}

// Event is a pooled, tagged-union notification fanned out to subscribers.
// Id is assigned atomically at publish time; zero means "unassigned" on an
// Event not yet published (spec.md §3.1).
type Event struct {
	ID      uint64
	Type    EventType
	Payload any

	pooled bool
	refs   atomic.Int32 // matching-subscription countdown; 0 returns e to the pool
}

// Position is a point-in-time account position snapshot.
type Position struct {
	Symbol   string
	Quantity float64
	AvgPrice float64
}

// AccountState is a point-in-time account snapshot.
type AccountState struct {
	Equity float64
	Cash   float64
}

// Order is the mirror's record of an order the Bridge has seen.
type Order struct {
	ClientID string
	OrderID  string
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
	Type     OrderType
	Status   OrderStatus
}
