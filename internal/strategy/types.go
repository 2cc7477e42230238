// Package strategy implements VeloZ's Strategy Framework: a factory
// registry, a single dispatch loop that routes market/position/timer
// events into running instances, signal collection, and hot-reload.
package strategy

import (
	"time"

	"veloz/internal/errs"
)

// Type is the closed set of strategy categories (spec.md §6); an unknown
// tag encountered from configuration falls back to Custom.
type Type string

const (
	TrendFollowing Type = "trend_following"
	MeanReversion  Type = "mean_reversion"
	Momentum       Type = "momentum"
	Arbitrage      Type = "arbitrage"
	MarketMaking   Type = "market_making"
	Grid           Type = "grid"
	Custom         Type = "custom"
)

// TypeFromString maps a canonical type name to Type, falling back to
// Custom for anything unrecognized.
func TypeFromString(s string) Type {
	switch Type(s) {
	case TrendFollowing, MeanReversion, Momentum, Arbitrage, MarketMaking, Grid, Custom:
		return Type(s)
	default:
		return Custom
	}
}

// RiskCaps are a strategy's immutable risk limits.
type RiskCaps struct {
	MaxPositionSize float64
	PerTradeRisk    float64
	StopTarget      float64
	TakeTarget      float64
}

// Config is the immutable descriptor consumed once at construction
// (spec.md §3.1). Later updates flow through ReloadParameters instead.
type Config struct {
	Name       string
	Type       Type
	Risk       RiskCaps
	Symbols    []string
	Parameters map[string]float64
}

// MarketEvent is a market data tick/bar routed to on-event handlers. The
// indicator math strategies do with it is out of scope (spec.md §1); the
// framework only needs to route it opaquely.
type MarketEvent struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// PositionUpdate is routed to instances on a position change.
type PositionUpdate struct {
	Symbol   string
	Quantity float64
	AvgPrice float64
}

// Side is an order side for a generated OrderIntent.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType distinguishes limit from market order intents.
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// OrderIntent is produced by a strategy and routed by the caller back into
// the Bridge (spec.md §3.1). Validation rejects empty symbol, non-positive
// quantity, and unknown side.
type OrderIntent struct {
	Symbol       string
	Side         Side
	Quantity     float64
	Price        float64
	Type         OrderType
	TimeInForce  string
	StrategyID   string
}

// Validate checks OrderIntent invariants (spec.md §3.1).
func (o OrderIntent) Validate() error {
	if o.Symbol == "" {
		return errs.Invalid("symbol", "must not be empty")
	}
	if o.Quantity <= 0 {
		return errs.Invalid("quantity", "must be positive")
	}
	if o.Side != Buy && o.Side != Sell {
		return errs.Invalid("side", "must be buy or sell")
	}
	return nil
}

// Metrics are a strategy instance's atomic per-instance counters
// (spec.md §3.1, §4.C).
type Metrics struct {
	EventsProcessed       uint64
	SignalsGenerated      uint64
	Errors                uint64
	CumulativeExecTimeNs  uint64
	MaxExecTimeNs         uint64
	LastEventTimeNs       int64
}

// Instance is the contract every strategy factory builds (spec.md §4.C).
type Instance interface {
	GetType() Type
	OnEvent(ev MarketEvent)
	OnTimer(ts time.Time)
	OnPositionUpdate(pos PositionUpdate)
	// GetSignals is a destructive read: the outbox is moved out.
	GetSignals() []OrderIntent
	Reset()
	SupportsHotReload() bool
	UpdateParameters(params map[string]float64) error
	GetMetrics() Metrics
}

// OrderRejectedHandler is an opt-in capability an Instance may implement
// for self-healing (e.g. reset an in-position flag on risk refusal).
type OrderRejectedHandler interface {
	OnOrderRejected(req OrderIntent, reason string)
}

// Factory builds a fresh Instance from an immutable Config.
type Factory func(cfg Config) (Instance, error)
