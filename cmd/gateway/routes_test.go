package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veloz/internal/audit"
	"veloz/internal/bridge"
	"veloz/internal/logging"
	"veloz/internal/metrics"
	"veloz/internal/strategy"
	"veloz/internal/strategy/builtin"
)

// fakeAdapter is a no-op bridge.EngineAdapter for exercising the gateway's
// HTTP surface without a real AMQP broker.
type fakeAdapter struct{}

func (fakeAdapter) SubmitOrder(ctx context.Context, o bridge.Order) error { return nil }
func (fakeAdapter) CancelOrder(ctx context.Context, clientID string) error { return nil }
func (fakeAdapter) Start(ctx context.Context, publish func(bridge.EventType, any)) error {
	return nil
}
func (fakeAdapter) Stop() error { return nil }

func newTestApp(t *testing.T) *app {
	t.Helper()

	dir := t.TempDir()
	log := logging.New("test", false)

	auditPipeline := audit.New(audit.DefaultConfig(dir), log)
	t.Cleanup(auditPipeline.Close)

	br := bridge.New(bridge.DefaultConfig())
	require.NoError(t, br.Initialize(context.Background(), fakeAdapter{}))
	require.NoError(t, br.Start())
	t.Cleanup(func() { _ = br.Stop() })

	registry := strategy.NewRegistry()
	builtin.RegisterAll(registry)
	mgr := strategy.NewManager(registry, log)
	t.Cleanup(mgr.Close)

	return &app{
		log:        log,
		audit:      auditPipeline,
		auditStore: audit.NewStore(dir),
		bridge:     br,
		strategies: mgr,
		metrics:    metrics.New(),
		wsHub:      newWSHub(log),
		auth:       authConfig{jwtSecret: []byte("test-secret"), apiKeys: map[string]string{"k1": "user-1"}},
	}
}

func TestPlaceOrderRoundTrip(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	body := strings.NewReader(`{"symbol":"BTC-USD","side":"buy","quantity":1,"price":100,"client_id":"c1"}`)
	resp, err := http.Post(srv.URL+"/orders", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestPlaceOrderValidationError(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	body := strings.NewReader(`{"symbol":"","side":"buy","quantity":1,"client_id":"c1"}`)
	resp, err := http.Post(srv.URL+"/orders", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoadAndUnloadStrategy(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	body := strings.NewReader(`{"name":"s1","type":"trend_following","symbols":["BTC-USD"]}`)
	resp, err := http.Post(srv.URL+"/strategies", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	id := created["id"]
	require.NotEmpty(t, id)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/strategies/"+id, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
}

func TestMarketSnapshotMissingReturns404(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/market/UNKNOWN-PAIR")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthMiddlewarePopulatesAPIKeyAuth(t *testing.T) {
	a := newTestApp(t)
	seen := make(chan string, 1)
	handler := authMiddleware(a.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := reqctxFrom(r)
		if rc != nil && rc.Auth != nil {
			seen <- rc.Auth.UserID
		} else {
			seen <- ""
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req.Header.Set("X-API-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "user-1", <-seen)
}

func TestAuthMiddlewareAbsentAuthLeavesNil(t *testing.T) {
	a := newTestApp(t)
	seen := make(chan bool, 1)
	handler := authMiddleware(a.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := reqctxFrom(r)
		seen <- rc != nil && rc.Auth == nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, <-seen)
}
