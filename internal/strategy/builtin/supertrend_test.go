package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veloz/internal/strategy"
)

func TestSupertrendGetType(t *testing.T) {
	inst, err := NewSupertrend(strategy.Config{Name: "st", Type: strategy.Momentum})
	require.NoError(t, err)
	assert.Equal(t, strategy.Momentum, inst.GetType())
}

func TestSupertrendNoSignalOnFlatPrices(t *testing.T) {
	cfg := strategy.Config{
		Name:       "st-1",
		Type:       strategy.Momentum,
		Symbols:    []string{"BTC-USD"},
		Parameters: map[string]float64{"atr_len": 5},
	}
	inst, err := NewSupertrend(cfg)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: 100})
	}
	assert.Empty(t, inst.GetSignals())
}

func TestSupertrendMetricsTrackEvents(t *testing.T) {
	inst, err := NewSupertrend(strategy.Config{Name: "st", Type: strategy.Momentum})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: float64(100 + i)})
	}
	m := inst.GetMetrics()
	assert.Equal(t, uint64(5), m.EventsProcessed)
}

func TestSupertrendUpdateParameters(t *testing.T) {
	inst, err := NewSupertrend(strategy.Config{Name: "st", Type: strategy.Momentum})
	require.NoError(t, err)

	require.True(t, inst.SupportsHotReload())
	require.NoError(t, inst.UpdateParameters(map[string]float64{"atr_len": 14, "mult": 2.5}))
}

func TestSupertrendResetClearsHistory(t *testing.T) {
	inst, err := NewSupertrend(strategy.Config{Name: "st", Type: strategy.Momentum})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: float64(100 + i)})
	}
	inst.Reset()
	assert.Empty(t, inst.GetSignals())
}
