package strategy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstance is a minimal Instance used to exercise Manager without a
// real indicator strategy.
type fakeInstance struct {
	mu           sync.Mutex
	events       []MarketEvent
	positions    []PositionUpdate
	timers       []time.Time
	outbox       []OrderIntent
	hotReload    bool
	params       map[string]float64
	resetCalls   int
	eventsCount  uint64
}

func (f *fakeInstance) GetType() Type { return Custom }

func (f *fakeInstance) OnEvent(ev MarketEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	f.eventsCount++
	f.outbox = append(f.outbox, OrderIntent{Symbol: ev.Symbol, Side: Buy, Quantity: 1})
}

func (f *fakeInstance) OnTimer(ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers = append(f.timers, ts)
}

func (f *fakeInstance) OnPositionUpdate(pos PositionUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, pos)
}

func (f *fakeInstance) GetSignals() []OrderIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.outbox
	f.outbox = nil
	return out
}

func (f *fakeInstance) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
}

func (f *fakeInstance) SupportsHotReload() bool { return f.hotReload }

func (f *fakeInstance) UpdateParameters(params map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = params
	return nil
}

func (f *fakeInstance) GetMetrics() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Metrics{EventsProcessed: f.eventsCount}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(NewRegistry(), nil)
	t.Cleanup(m.Close)
	return m
}

func loadFake(t *testing.T, m *Manager, hotReload bool) (string, *fakeInstance) {
	t.Helper()
	inst := &fakeInstance{hotReload: hotReload}
	m.registry.Register(Custom, func(cfg Config) (Instance, error) { return inst, nil })
	id := m.LoadStrategy(Config{Name: "t1", Type: Custom})
	require.NotEmpty(t, id)
	return id, inst
}

func TestLoadUnknownTypeFails(t *testing.T) {
	m := newTestManager(t)
	id := m.LoadStrategy(Config{Name: "nope", Type: Custom})
	assert.Empty(t, id)
}

func TestDispatchMarketEventReachesInstance(t *testing.T) {
	m := newTestManager(t)
	_, inst := loadFake(t, m, false)

	m.DispatchMarketEvent(MarketEvent{Symbol: "BTC-USD", Price: 100})

	inst.mu.Lock()
	defer inst.mu.Unlock()
	require.Len(t, inst.events, 1)
	assert.Equal(t, "BTC-USD", inst.events[0].Symbol)
}

func TestDispatchPositionUpdateAndTimer(t *testing.T) {
	m := newTestManager(t)
	_, inst := loadFake(t, m, false)

	m.DispatchPositionUpdate(PositionUpdate{Symbol: "BTC-USD", Quantity: 2})
	m.DispatchTimer(time.Unix(0, 0))

	inst.mu.Lock()
	defer inst.mu.Unlock()
	assert.Len(t, inst.positions, 1)
	assert.Len(t, inst.timers, 1)
}

func TestUnloadStopsDispatch(t *testing.T) {
	m := newTestManager(t)
	id, inst := loadFake(t, m, false)

	m.UnloadStrategy(id)
	m.DispatchMarketEvent(MarketEvent{Symbol: "BTC-USD", Price: 100})

	inst.mu.Lock()
	defer inst.mu.Unlock()
	assert.Empty(t, inst.events)
}

func TestReloadParametersRequiresSupport(t *testing.T) {
	m := newTestManager(t)
	id, _ := loadFake(t, m, false)

	err := m.ReloadParameters(id, map[string]float64{"x": 1})
	require.Error(t, err)
}

func TestReloadParametersAppliesWhenSupported(t *testing.T) {
	m := newTestManager(t)
	id, inst := loadFake(t, m, true)

	err := m.ReloadParameters(id, map[string]float64{"x": 1})
	require.NoError(t, err)

	inst.mu.Lock()
	defer inst.mu.Unlock()
	assert.Equal(t, float64(1), inst.params["x"])
}

func TestReloadParametersUnknownID(t *testing.T) {
	m := newTestManager(t)
	err := m.ReloadParameters("strat-missing", nil)
	require.Error(t, err)
}

func TestProcessAndRouteSignalsInvokesCallback(t *testing.T) {
	m := newTestManager(t)
	_, _ = loadFake(t, m, false)

	var got []OrderIntent
	done := make(chan struct{})
	m.SetSignalCallback(func(batch []OrderIntent) {
		got = batch
		close(done)
	})

	m.DispatchMarketEvent(MarketEvent{Symbol: "BTC-USD", Price: 100})
	m.ProcessAndRouteSignals()

	<-done
	require.Len(t, got, 1)
	assert.Equal(t, "BTC-USD", got[0].Symbol)
}

func TestProcessAndRouteSignalsDropsWithoutCallback(t *testing.T) {
	m := newTestManager(t)
	_, _ = loadFake(t, m, false)

	m.DispatchMarketEvent(MarketEvent{Symbol: "BTC-USD", Price: 100})
	m.ProcessAndRouteSignals()

	summary := m.GetMetricsSummary()
	assert.Equal(t, uint64(1), summary.SignalsDropped)
}

func TestGetMetricsSummaryAggregates(t *testing.T) {
	m := newTestManager(t)
	_, _ = loadFake(t, m, false)

	m.DispatchMarketEvent(MarketEvent{Symbol: "BTC-USD", Price: 100})
	m.DispatchMarketEvent(MarketEvent{Symbol: "BTC-USD", Price: 101})

	summary := m.GetMetricsSummary()
	assert.Equal(t, 1, summary.InstanceCount)
	assert.Equal(t, uint64(2), summary.EventsProcessed)
}
