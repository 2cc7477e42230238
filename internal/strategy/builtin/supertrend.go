package builtin

import (
	"sync"
	"time"

	"veloz/internal/strategy"
)

// Supertrend is a volatility-band trend strategy adapted from the teacher's
// SupertrendStrategy: it tracks a midpoint +/- atrMult*ATR band computed
// from closes-only history (the teacher reads precomputed per-bar
// high/low/Supertrend fields; this framework's opaque MarketEvent carries
// price only, so the bands are derived the same way Breakout derives its
// ATR buffer) and emits a buy when price crosses back above the lower band
// from below, a sell when it crosses back below the upper band from above.
type Supertrend struct {
	cfg strategy.Config

	mu         sync.Mutex
	closes     *strategy.Ring[float64]
	atrLen     int
	mult       float64
	inPosition bool
	outbox     []strategy.OrderIntent

	metrics strategy.AtomicMetrics
}

// NewSupertrend is a strategy.Factory registered under strategy.Momentum.
func NewSupertrend(cfg strategy.Config) (strategy.Instance, error) {
	atrLen := paramInt(cfg.Parameters, "atr_len", 10)
	mult := cfg.Parameters["mult"]
	if mult <= 0 {
		mult = 3.0
	}
	return &Supertrend{
		cfg:    cfg,
		closes: strategy.NewRing[float64](atrLen + 4),
		atrLen: atrLen,
		mult:   mult,
	}, nil
}

func (s *Supertrend) GetType() strategy.Type { return strategy.Momentum }

func (s *Supertrend) OnEvent(ev strategy.MarketEvent) {
	s.metrics.TimeEvent(func() { s.onEvent(ev) })
}

func (s *Supertrend) onEvent(ev strategy.MarketEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes.Push(ev.Price)
	values := s.closes.Values()
	if len(values) < s.atrLen+2 {
		return
	}

	cur := values[len(values)-1]
	prev := values[len(values)-2]
	atrCur := averageTrueRange(values, s.atrLen)
	atrPrev := averageTrueRange(values[:len(values)-1], s.atrLen)

	midCur := (cur + prev) / 2
	midPrev := (values[len(values)-2] + values[len(values)-3]) / 2

	upperCur := midCur + s.mult*atrCur
	lowerCur := midCur - s.mult*atrCur
	upperPrev := midPrev + s.mult*atrPrev
	lowerPrev := midPrev - s.mult*atrPrev

	symbol := ev.Symbol
	if symbol == "" && len(s.cfg.Symbols) > 0 {
		symbol = s.cfg.Symbols[0]
	}

	switch {
	case prev <= lowerPrev && cur > lowerCur && !s.inPosition:
		s.inPosition = true
		s.emit(strategy.OrderIntent{
			Symbol:     symbol,
			Side:       strategy.Buy,
			Quantity:   s.positionSize(),
			Type:       strategy.Market,
			StrategyID: s.cfg.Name,
		})
	case prev >= upperPrev && cur < upperCur && s.inPosition:
		s.inPosition = false
		s.emit(strategy.OrderIntent{
			Symbol:     symbol,
			Side:       strategy.Sell,
			Quantity:   s.positionSize(),
			Type:       strategy.Market,
			StrategyID: s.cfg.Name,
		})
	}
}

func (s *Supertrend) emit(intent strategy.OrderIntent) {
	if err := intent.Validate(); err != nil {
		s.metrics.RecordError()
		return
	}
	s.outbox = append(s.outbox, intent)
	s.metrics.RecordSignal()
}

func (s *Supertrend) positionSize() float64 {
	if s.cfg.Risk.MaxPositionSize > 0 {
		return s.cfg.Risk.MaxPositionSize
	}
	return 1
}

func (s *Supertrend) OnTimer(ts time.Time) {}

func (s *Supertrend) OnPositionUpdate(pos strategy.PositionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inPosition = pos.Quantity > 0
}

func (s *Supertrend) GetSignals() []strategy.OrderIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

func (s *Supertrend) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes.Reset()
	s.inPosition = false
	s.outbox = nil
}

func (s *Supertrend) SupportsHotReload() bool { return true }

func (s *Supertrend) UpdateParameters(params map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := params["atr_len"]; ok && int(v) > 1 {
		s.atrLen = int(v)
	}
	if v, ok := params["mult"]; ok && v > 0 {
		s.mult = v
	}
	return nil
}

func (s *Supertrend) GetMetrics() strategy.Metrics { return s.metrics.Snapshot() }
