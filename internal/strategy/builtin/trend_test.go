package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veloz/internal/strategy"
)

func TestTrendFollowerCrossGeneratesBuy(t *testing.T) {
	cfg := strategy.Config{
		Name:       "trend-1",
		Type:       strategy.TrendFollowing,
		Symbols:    []string{"BTC-USD"},
		Parameters: map[string]float64{"fast_period": 2, "slow_period": 3, "rsi_period": 2},
	}
	inst, err := NewTrendFollower(cfg)
	require.NoError(t, err)

	base := time.Now()
	prices := []float64{10, 10, 10, 10, 20, 30, 40, 50}
	for i, p := range prices {
		inst.OnEvent(strategy.MarketEvent{Symbol: "BTC-USD", Price: p, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	signals := inst.GetSignals()
	assert.NotEmpty(t, signals, "expected at least one buy signal from a sustained uptrend")
	for _, s := range signals {
		assert.Equal(t, "BTC-USD", s.Symbol)
		assert.NoError(t, s.Validate())
	}
}

func TestTrendFollowerGetSignalsIsDestructive(t *testing.T) {
	cfg := strategy.Config{Name: "t", Type: strategy.TrendFollowing, Symbols: []string{"ETH-USD"}}
	inst, err := NewTrendFollower(cfg)
	require.NoError(t, err)

	first := inst.GetSignals()
	assert.Empty(t, first)
	second := inst.GetSignals()
	assert.Empty(t, second)
}

func TestTrendFollowerResetClearsHistory(t *testing.T) {
	cfg := strategy.Config{Name: "t", Type: strategy.TrendFollowing, Symbols: []string{"ETH-USD"}}
	inst, err := NewTrendFollower(cfg)
	require.NoError(t, err)

	inst.OnEvent(strategy.MarketEvent{Symbol: "ETH-USD", Price: 100})
	inst.Reset()

	metrics := inst.GetMetrics()
	assert.Equal(t, uint64(1), metrics.EventsProcessed, "Reset clears ring state, not lifetime metrics")
}

func TestTrendFollowerUpdateParameters(t *testing.T) {
	cfg := strategy.Config{Name: "t", Type: strategy.TrendFollowing}
	inst, err := NewTrendFollower(cfg)
	require.NoError(t, err)

	require.True(t, inst.SupportsHotReload())
	require.NoError(t, inst.UpdateParameters(map[string]float64{"fast_period": 5, "slow_period": 10}))
}

func TestTrendFollowerMetricsTrackEvents(t *testing.T) {
	cfg := strategy.Config{Name: "t", Type: strategy.TrendFollowing, Symbols: []string{"ETH-USD"}}
	inst, err := NewTrendFollower(cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		inst.OnEvent(strategy.MarketEvent{Symbol: "ETH-USD", Price: float64(100 + i)})
	}

	metrics := inst.GetMetrics()
	assert.Equal(t, uint64(5), metrics.EventsProcessed)
}
