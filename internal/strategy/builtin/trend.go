package builtin

import (
	"sync"
	"time"

	"veloz/internal/strategy"
)

// TrendFollower is a DEMA25/DEMA50 crossover strategy confirmed by RSI,
// adapted from the teacher's DemaRsiStrategy: buy when the fast DEMA
// crosses above the slow DEMA with RSI > 50, sell on the opposite cross
// with RSI < 50.
type TrendFollower struct {
	cfg strategy.Config

	mu         sync.Mutex
	closes     *strategy.Ring[float64]
	fastPeriod int
	slowPeriod int
	rsiPeriod  int
	inPosition bool
	outbox     []strategy.OrderIntent

	metrics strategy.AtomicMetrics
}

// NewTrendFollower is a strategy.Factory for strategy.TrendFollowing.
func NewTrendFollower(cfg strategy.Config) (strategy.Instance, error) {
	fast := paramInt(cfg.Parameters, "fast_period", 25)
	slow := paramInt(cfg.Parameters, "slow_period", 50)
	rsiP := paramInt(cfg.Parameters, "rsi_period", 14)
	capacity := slow*2 + rsiP + 8
	return &TrendFollower{
		cfg:        cfg,
		closes:     strategy.NewRing[float64](capacity),
		fastPeriod: fast,
		slowPeriod: slow,
		rsiPeriod:  rsiP,
	}, nil
}

func (t *TrendFollower) GetType() strategy.Type { return strategy.TrendFollowing }

func (t *TrendFollower) OnEvent(ev strategy.MarketEvent) {
	t.metrics.TimeEvent(func() { t.onEvent(ev) })
}

func (t *TrendFollower) onEvent(ev strategy.MarketEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closes.Push(ev.Price)
	values := t.closes.Values()

	fastSeries := dema(values, t.fastPeriod)
	slowSeries := dema(values, t.slowPeriod)
	if fastSeries == nil || slowSeries == nil || len(values) < 2 {
		return
	}

	n := len(values)
	fastNow, fastPrev := fastSeries[n-1], fastSeries[n-2]
	slowNow, slowPrev := slowSeries[n-1], slowSeries[n-2]
	r := rsi(values, t.rsiPeriod)

	crossUp := fastPrev <= slowPrev && fastNow > slowNow && r > 50
	crossDown := fastPrev >= slowPrev && fastNow < slowNow && r < 50

	symbol := ev.Symbol
	if symbol == "" && len(t.cfg.Symbols) > 0 {
		symbol = t.cfg.Symbols[0]
	}

	switch {
	case crossUp && !t.inPosition:
		t.inPosition = true
		t.emit(strategy.OrderIntent{
			Symbol:     symbol,
			Side:       strategy.Buy,
			Quantity:   t.positionSize(),
			Type:       strategy.Market,
			StrategyID: t.cfg.Name,
		})
	case crossDown && t.inPosition:
		t.inPosition = false
		t.emit(strategy.OrderIntent{
			Symbol:     symbol,
			Side:       strategy.Sell,
			Quantity:   t.positionSize(),
			Type:       strategy.Market,
			StrategyID: t.cfg.Name,
		})
	}
}

func (t *TrendFollower) emit(intent strategy.OrderIntent) {
	if err := intent.Validate(); err != nil {
		t.metrics.RecordError()
		return
	}
	t.outbox = append(t.outbox, intent)
	t.metrics.RecordSignal()
}

func (t *TrendFollower) positionSize() float64 {
	if t.cfg.Risk.MaxPositionSize > 0 {
		return t.cfg.Risk.MaxPositionSize
	}
	return 1
}

func (t *TrendFollower) OnTimer(ts time.Time) {}

func (t *TrendFollower) OnPositionUpdate(pos strategy.PositionUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inPosition = pos.Quantity > 0
}

func (t *TrendFollower) GetSignals() []strategy.OrderIntent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.outbox
	t.outbox = nil
	return out
}

func (t *TrendFollower) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes.Reset()
	t.inPosition = false
	t.outbox = nil
}

func (t *TrendFollower) SupportsHotReload() bool { return true }

func (t *TrendFollower) UpdateParameters(params map[string]float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := params["fast_period"]; ok && int(v) > 1 {
		t.fastPeriod = int(v)
	}
	if v, ok := params["slow_period"]; ok && int(v) > 1 {
		t.slowPeriod = int(v)
	}
	if v, ok := params["rsi_period"]; ok && int(v) > 1 {
		t.rsiPeriod = int(v)
	}
	return nil
}

func (t *TrendFollower) GetMetrics() strategy.Metrics { return t.metrics.Snapshot() }

func paramInt(params map[string]float64, key string, def int) int {
	if v, ok := params[key]; ok && int(v) > 1 {
		return int(v)
	}
	return def
}
