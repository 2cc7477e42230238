// Command gateway is VeloZ's HTTP/SSE boundary: it wires the audit
// pipeline, the engine bridge (with its AMQP adapter), and the strategy
// framework into a single process and serves them over a chi router.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"veloz/internal/audit"
	"veloz/internal/bridge"
	"veloz/internal/bridge/adapteramqp"
	"veloz/internal/logging"
	"veloz/internal/metrics"
	"veloz/internal/strategy"
	"veloz/internal/strategy/builtin"
	"veloz/internal/telemetry"
)

// app bundles the gateway's wired components for the HTTP handlers.
type app struct {
	log        *logging.Logger
	audit      *audit.Pipeline
	auditStore *audit.Store
	bridge     *bridge.Bridge
	strategies *strategy.Manager
	telemetry  *telemetry.Sink
	metrics    *metrics.Registry
	auth       authConfig
	wsHub      *wsHub
}

func main() {
	cfg := loadConfig()
	log := logging.New("gateway", cfg.PrettyLog)

	if err := os.MkdirAll(cfg.AuditLogDir, 0o755); err != nil {
		log.Error("failed to create audit log directory", err)
		os.Exit(1)
	}

	auditCfg := audit.DefaultConfig(cfg.AuditLogDir)
	auditCfg.MaxFileSize = cfg.AuditMaxFileSize
	auditCfg.RetentionDays = cfg.AuditRetentionDays
	auditCfg.QueueCapacity = cfg.AuditQueueCapacity
	auditPipeline := audit.New(auditCfg, log.With("component", "audit"))
	defer auditPipeline.Close()

	retention, err := audit.NewRetentionScheduler(auditPipeline, cfg.RetentionCronSpec)
	if err != nil {
		log.Error("failed to build retention scheduler", err)
	} else {
		retention.Start()
		defer retention.Stop()
	}

	auditStore := audit.NewStore(cfg.AuditLogDir)

	metricsRegistry := metrics.New()

	br := bridge.New(bridge.DefaultConfig())
	adapter := adapteramqp.New(cfg.AMQPURI, log.With("component", "bridge_adapter"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := br.Initialize(ctx, adapter); err != nil {
		log.Error("failed to initialize bridge", err)
		os.Exit(1)
	}
	if err := br.Start(); err != nil {
		log.Error("failed to start bridge", err)
		os.Exit(1)
	}
	defer br.Stop()

	registry := strategy.NewRegistry()
	builtin.RegisterAll(registry)
	stratManager := strategy.NewManager(registry, log.With("component", "strategy"))
	defer stratManager.Close()

	var telemetrySink *telemetry.Sink
	if cfg.TelemetryDSN != "" {
		sink, err := telemetry.New(ctx, cfg.TelemetryDSN, log.With("component", "telemetry"))
		if err != nil {
			log.Warnf("telemetry disabled: %v", err)
		} else {
			telemetrySink = sink
			defer telemetrySink.Close()
		}
	}

	wireStrategySignalsToBridge(stratManager, br, telemetrySink)

	hub := newWSHub(log.With("component", "ws_hub"))
	hubDone := make(chan struct{})
	go hub.run(hubDone)
	unsubscribeHub := hub.subscribeToBridge(br)
	defer func() { unsubscribeHub(); close(hubDone) }()

	a := &app{
		log:        log,
		audit:      auditPipeline,
		auditStore: auditStore,
		bridge:     br,
		strategies: stratManager,
		telemetry:  telemetrySink,
		metrics:    metricsRegistry,
		wsHub:      hub,
		auth: authConfig{
			jwtSecret: []byte(getEnv("VELOZ_JWT_SECRET", "dev-secret-change-me")),
			apiKeys:   map[string]string{},
		},
	}
	registerGatewayMetrics(metricsRegistry, auditPipeline, br, stratManager)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: a.routes(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("gateway listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case t := <-ticker.C:
				stratManager.DispatchTimer(t)
				stratManager.ProcessAndRouteSignals()
			}
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("shutdown signal received")
	case <-gctx.Done():
		log.Warn("a background component failed; shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error during HTTP shutdown", err)
	}

	if err := g.Wait(); err != nil {
		log.Error("background component returned an error", err)
	}

	if err := auditPipeline.Flush(shutdownCtx); err != nil {
		log.Error("failed to flush audit log on shutdown", err)
	}

	log.Info("gateway stopped")
}

// wireStrategySignalsToBridge routes OrderIntents produced by strategies
// into the Bridge's PlaceOrder path, recording each attempt to telemetry
// when enabled.
func wireStrategySignalsToBridge(mgr *strategy.Manager, br *bridge.Bridge, sink *telemetry.Sink) {
	mgr.SetSignalCallback(func(batch []strategy.OrderIntent) {
		for _, intent := range batch {
			side := string(intent.Side)
			clientID := intent.StrategyID + "-" + intent.Symbol
			err := br.PlaceOrder(context.Background(), side, intent.Symbol, intent.Quantity, intent.Price, clientID)
			if sink != nil {
				sink.RecordSignal(intent.StrategyID, intent.Symbol, side, intent.Quantity, intent.Price)
			}
			_ = err // best-effort routing: a rejected intent is dropped, not retried or audited
		}
	})
}

// registerGatewayMetrics exposes the lock-free counters each subsystem
// already maintains as Prometheus gauges (DOMAIN STACK).
func registerGatewayMetrics(reg *metrics.Registry, p *audit.Pipeline, br *bridge.Bridge, mgr *strategy.Manager) {
	reg.GaugeFunc("veloz_audit_pending", "entries queued for the audit writer", nil, func() float64 {
		return float64(p.Stats().PendingCount)
	})
	reg.GaugeFunc("veloz_audit_total_logged", "total audit entries logged", nil, func() float64 {
		return float64(p.Stats().TotalLogged)
	})
	reg.GaugeFunc("veloz_bridge_orders_submitted", "total orders submitted via the bridge", nil, func() float64 {
		return float64(br.Metrics().OrdersSubmitted)
	})
	reg.GaugeFunc("veloz_bridge_avg_order_latency_ns", "running average order submission latency", nil, func() float64 {
		return float64(br.Metrics().AvgOrderLatencyNs)
	})
	reg.GaugeFunc("veloz_strategy_instances", "number of loaded strategy instances", nil, func() float64 {
		return float64(mgr.GetMetricsSummary().InstanceCount)
	})
	reg.GaugeFunc("veloz_strategy_signals_dropped", "signals dropped with no registered callback", nil, func() float64 {
		return float64(mgr.GetMetricsSummary().SignalsDropped)
	})
}
