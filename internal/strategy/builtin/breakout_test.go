package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veloz/internal/strategy"
)

func TestBreakoutBuysOnUpperBreak(t *testing.T) {
	cfg := strategy.Config{
		Name:       "breakout-1",
		Type:       strategy.Grid,
		Symbols:    []string{"BTC-USD"},
		Parameters: map[string]float64{"lookback": 5},
	}
	inst, err := NewBreakout(cfg)
	require.NoError(t, err)

	prices := []float64{10, 10, 10, 10, 10, 25}
	for _, p := range prices {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: p})
	}

	signals := inst.GetSignals()
	require.Len(t, signals, 1)
	assert.Equal(t, strategy.Buy, signals[0].Side)
}

func TestBreakoutSellsOnLowerBreakAfterEntry(t *testing.T) {
	cfg := strategy.Config{
		Name:       "breakout-1",
		Type:       strategy.Grid,
		Symbols:    []string{"BTC-USD"},
		Parameters: map[string]float64{"lookback": 5},
	}
	inst, err := NewBreakout(cfg)
	require.NoError(t, err)

	up := []float64{10, 10, 10, 10, 10, 25}
	for _, p := range up {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: p})
	}
	require.Len(t, inst.GetSignals(), 1)

	down := []float64{24, 23, 22, 21, 20, 5}
	for _, p := range down {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: p})
	}
	signals := inst.GetSignals()
	require.Len(t, signals, 1)
	assert.Equal(t, strategy.Sell, signals[0].Side)
}

func TestBreakoutNoSignalWithinChannel(t *testing.T) {
	cfg := strategy.Config{Name: "b", Type: strategy.Grid, Symbols: []string{"BTC-USD"}}
	inst, err := NewBreakout(cfg)
	require.NoError(t, err)

	for _, p := range []float64{10, 10.5, 9.8, 10.2, 10.1} {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: p})
	}
	assert.Empty(t, inst.GetSignals())
}

func TestBreakoutUpdateParameters(t *testing.T) {
	cfg := strategy.Config{Name: "b", Type: strategy.Grid}
	inst, err := NewBreakout(cfg)
	require.NoError(t, err)

	require.True(t, inst.SupportsHotReload())
	require.NoError(t, inst.UpdateParameters(map[string]float64{"lookback": 10, "buffer_atr_mult": 0.5}))
}
