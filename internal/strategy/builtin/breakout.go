package builtin

import (
	"sync"
	"time"

	"veloz/internal/strategy"
)

// Breakout is a Donchian channel breakout strategy with an optional ATR
// buffer, adapted from the teacher's DonchianBreakoutStrategy: buy when the
// close trades above the rolling high (plus buffer), sell when it trades
// below the rolling low (minus buffer).
type Breakout struct {
	cfg strategy.Config

	mu      sync.Mutex
	closes  *strategy.Ring[float64]
	lookback int
	atrPeriod int
	buffer    float64
	inPosition bool
	outbox     []strategy.OrderIntent

	metrics strategy.AtomicMetrics
}

// NewBreakout is a strategy.Factory for strategy.Grid-family channel
// breakout configurations (registered under strategy.Grid by default; the
// gateway may also register it under a custom Type).
func NewBreakout(cfg strategy.Config) (strategy.Instance, error) {
	lookback := paramInt(cfg.Parameters, "lookback", 20)
	atrPeriod := paramInt(cfg.Parameters, "atr_period", 14)
	buffer := cfg.Parameters["buffer_atr_mult"]
	if buffer < 0 {
		buffer = 0
	}
	capacity := lookback + atrPeriod + 8
	return &Breakout{
		cfg:       cfg,
		closes:    strategy.NewRing[float64](capacity),
		lookback:  lookback,
		atrPeriod: atrPeriod,
		buffer:    buffer,
	}, nil
}

func (b *Breakout) GetType() strategy.Type { return strategy.Grid }

func (b *Breakout) OnEvent(ev strategy.MarketEvent) {
	b.metrics.TimeEvent(func() { b.onEvent(ev) })
}

func (b *Breakout) onEvent(ev strategy.MarketEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closes.Push(ev.Price)
	values := b.closes.Values()
	if len(values) < 2 {
		return
	}

	// The channel spans the closes before the current one; no signal is
	// taken until lookback of them are held (or the ring is full).
	prior := values[:len(values)-1]
	if len(prior) < b.lookback && b.closes.Len() < b.closes.Cap() {
		return
	}
	window := prior
	if len(window) > b.lookback && b.lookback > 1 {
		window = window[len(window)-b.lookback:]
	}
	upper := maxOf(window)
	lower := minOf(window)

	if b.buffer > 0 {
		atr := averageTrueRange(values, b.atrPeriod)
		upper += b.buffer * atr
		lower -= b.buffer * atr
	}

	last := values[len(values)-1]
	symbol := ev.Symbol
	if symbol == "" && len(b.cfg.Symbols) > 0 {
		symbol = b.cfg.Symbols[0]
	}

	switch {
	case last > upper && !b.inPosition:
		b.inPosition = true
		b.emit(strategy.OrderIntent{
			Symbol:     symbol,
			Side:       strategy.Buy,
			Quantity:   b.positionSize(),
			Type:       strategy.Market,
			StrategyID: b.cfg.Name,
		})
	case last < lower && b.inPosition:
		b.inPosition = false
		b.emit(strategy.OrderIntent{
			Symbol:     symbol,
			Side:       strategy.Sell,
			Quantity:   b.positionSize(),
			Type:       strategy.Market,
			StrategyID: b.cfg.Name,
		})
	}
}

// averageTrueRange is a simplified ATR over closes-only history (the
// teacher's version reads precomputed per-bar high/low/ATR fields that
// this framework's opaque MarketEvent does not carry).
func averageTrueRange(closes []float64, period int) float64 {
	if period <= 1 || len(closes) <= period {
		return 0
	}
	start := len(closes) - period - 1
	var sum float64
	for i := start; i < len(closes)-1; i++ {
		tr := closes[i+1] - closes[i]
		if tr < 0 {
			tr = -tr
		}
		sum += tr
	}
	return sum / float64(period)
}

func (b *Breakout) emit(intent strategy.OrderIntent) {
	if err := intent.Validate(); err != nil {
		b.metrics.RecordError()
		return
	}
	b.outbox = append(b.outbox, intent)
	b.metrics.RecordSignal()
}

func (b *Breakout) positionSize() float64 {
	if b.cfg.Risk.MaxPositionSize > 0 {
		return b.cfg.Risk.MaxPositionSize
	}
	return 1
}

func (b *Breakout) OnTimer(ts time.Time) {}

func (b *Breakout) OnPositionUpdate(pos strategy.PositionUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inPosition = pos.Quantity > 0
}

func (b *Breakout) GetSignals() []strategy.OrderIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.outbox
	b.outbox = nil
	return out
}

func (b *Breakout) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes.Reset()
	b.inPosition = false
	b.outbox = nil
}

func (b *Breakout) SupportsHotReload() bool { return true }

func (b *Breakout) UpdateParameters(params map[string]float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := params["lookback"]; ok && int(v) > 1 {
		b.lookback = int(v)
	}
	if v, ok := params["atr_period"]; ok && int(v) > 1 {
		b.atrPeriod = int(v)
	}
	if v, ok := params["buffer_atr_mult"]; ok && v >= 0 {
		b.buffer = v
	}
	return nil
}

func (b *Breakout) GetMetrics() strategy.Metrics { return b.metrics.Snapshot() }
