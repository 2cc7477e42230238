// Package builtin provides reference Instance implementations that ship
// with the gateway: a DEMA/RSI crossover trend-follower, a Donchian
// channel breakout strategy, and a Supertrend-style volatility-band
// strategy, all adapted from the teacher's bar-indicator strategies to the
// ring-buffer-backed Instance contract.
package builtin

// ema computes an exponential moving average series over closes for the
// given period, oldest-to-newest, seeded by a simple average of the first
// period values (the common EMA warm-up convention).
func ema(closes []float64, period int) []float64 {
	if len(closes) < period || period <= 0 {
		return nil
	}
	out := make([]float64, len(closes))
	var seed float64
	for i := 0; i < period; i++ {
		seed += closes[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	k := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}

// dema is a double EMA: 2*ema(closes) - ema(ema(closes)), reducing lag
// relative to a plain EMA (grounded on the teacher's BidDemas.Dema25/Dema50
// fields).
func dema(closes []float64, period int) []float64 {
	e1 := ema(closes, period)
	if e1 == nil {
		return nil
	}
	trimmed := make([]float64, 0, len(e1))
	for i, v := range e1 {
		if i >= period-1 {
			trimmed = append(trimmed, v)
		}
	}
	e2 := ema(trimmed, period)
	if e2 == nil {
		return nil
	}
	out := make([]float64, len(closes))
	offset := (period - 1) * 2
	for i, v := range e2 {
		idx := offset + i
		if idx >= len(out) {
			break
		}
		out[idx] = 2*e1[offset-(period-1)+i] - v
	}
	return out
}

// rsi computes the Wilder relative strength index over closes for the
// given period, returning 50 (neutral) when there is not enough history.
func rsi(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}
	var gain, loss float64
	start := len(closes) - period - 1
	for i := start; i < len(closes)-1; i++ {
		delta := closes[i+1] - closes[i]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
