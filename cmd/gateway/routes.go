package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"veloz/internal/audit"
	"veloz/internal/bridge"
	"veloz/internal/errs"
	"veloz/internal/strategy"
)

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(authMiddleware(a.auth))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", a.handlePlaceOrder)
		r.Get("/", a.handleListOrders)
		r.Get("/pending", a.handlePendingOrders)
		r.Get("/{clientID}", a.handleGetOrder)
		r.Delete("/{clientID}", a.handleCancelOrder)
	})

	r.Route("/market", func(r chi.Router) {
		r.Get("/", a.handleMarketSnapshots)
		r.Get("/{symbol}", a.handleMarketSnapshot)
	})

	r.Get("/account", a.handleAccountState)

	r.Route("/positions", func(r chi.Router) {
		r.Get("/", a.handlePositions)
		r.Get("/{symbol}", a.handlePosition)
	})

	r.Get("/events", a.handleEventStream)
	r.Get("/ws/events", a.wsHub.handleWSEvents)

	r.Route("/strategies", func(r chi.Router) {
		r.Post("/", a.handleLoadStrategy)
		r.Get("/", a.handleListStrategies)
		r.Get("/metrics", a.handleStrategyMetricsSummary)
		r.Delete("/{id}", a.handleUnloadStrategy)
		r.Post("/{id}/reload", a.handleReloadStrategy)
	})

	r.Get("/audit", a.handleQueryAudit)
	r.Get("/audit/{requestID}", a.handleGetAuditByRequestID)

	r.Get("/metrics", a.metrics.Handler().ServeHTTP)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// auditActor records who acted (for the audit trail) based on whatever the
// auth middleware populated, falling back to "anonymous".
func auditActor(r *http.Request) (userID, ip, requestID string) {
	rc := reqctxFrom(r)
	if rc == nil {
		return "anonymous", "", ""
	}
	userID = "anonymous"
	if rc.Auth != nil && rc.Auth.UserID != "" {
		userID = rc.Auth.UserID
	}
	requestID = rc.HeaderTable["X-Request-Id"]
	return userID, rc.ClientIP, requestID
}

type placeOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	ClientID string  `json:"client_id"`
}

func (a *app) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Invalid("body", "malformed JSON"))
		return
	}

	err := a.bridge.PlaceOrder(r.Context(), req.Side, req.Symbol, req.Quantity, req.Price, req.ClientID)

	userID, ip, requestID := auditActor(r)
	action := "place_order"
	if err != nil {
		action = "place_order_rejected"
	}
	a.audit.LogAction(r.Context(), audit.TypeOrder, action, userID, ip, requestID)

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"client_id": req.ClientID, "status": "submitted"})
}

func (a *app) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	err := a.bridge.CancelOrder(r.Context(), clientID)

	userID, ip, requestID := auditActor(r)
	action := "cancel_order"
	if err != nil {
		action = "cancel_order_rejected"
	}
	a.audit.LogAction(r.Context(), audit.TypeOrder, action, userID, ip, requestID)

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client_id": clientID, "status": "cancel_requested"})
}

func (a *app) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	order, ok := a.bridge.GetOrder(clientID)
	if !ok {
		writeError(w, errs.New(errs.NotFound, "order not found").WithDetail("client_id", clientID))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *app) handleListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.bridge.GetOrders())
}

func (a *app) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.bridge.GetPendingOrders())
}

func (a *app) handleMarketSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	snap, ok := a.bridge.GetMarketSnapshot(symbol)
	if !ok {
		writeError(w, errs.New(errs.NotFound, "no snapshot for symbol").WithDetail("symbol", symbol))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *app) handleMarketSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("symbols")
	var symbols []string
	if q != "" {
		symbols = strings.Split(q, ",")
	}
	writeJSON(w, http.StatusOK, a.bridge.GetMarketSnapshots(symbols))
}

func (a *app) handleAccountState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.bridge.GetAccountState())
}

func (a *app) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.bridge.GetPositions())
}

func (a *app) handlePosition(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	pos, ok := a.bridge.GetPosition(symbol)
	if !ok {
		writeError(w, errs.New(errs.NotFound, "no position for symbol").WithDetail("symbol", symbol))
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// handleEventStream streams published bridge events to the client as
// server-sent events until the client disconnects or a write fails.
func (a *app) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New(errs.InvalidInput, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan string, 64)
	id := a.bridge.SubscribeAll(func(ev *bridge.Event) {
		body, err := json.Marshal(ev.Payload)
		if err != nil {
			return
		}
		select {
		case events <- fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, body):
		default:
		}
	})
	defer a.bridge.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-events:
			if _, err := w.Write([]byte(msg)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type loadStrategyRequest struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Symbols    []string           `json:"symbols"`
	Parameters map[string]float64 `json:"parameters"`
	Risk       struct {
		MaxPositionSize float64 `json:"max_position_size"`
		PerTradeRisk    float64 `json:"per_trade_risk"`
		StopTarget      float64 `json:"stop_target"`
		TakeTarget      float64 `json:"take_target"`
	} `json:"risk"`
}

func (a *app) handleLoadStrategy(w http.ResponseWriter, r *http.Request) {
	var req loadStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Invalid("body", "malformed JSON"))
		return
	}

	cfg := strategy.Config{
		Name:    req.Name,
		Type:    strategy.TypeFromString(req.Type),
		Symbols: req.Symbols,
		Risk: strategy.RiskCaps{
			MaxPositionSize: req.Risk.MaxPositionSize,
			PerTradeRisk:    req.Risk.PerTradeRisk,
			StopTarget:      req.Risk.StopTarget,
			TakeTarget:      req.Risk.TakeTarget,
		},
		Parameters: req.Parameters,
	}

	id := a.strategies.LoadStrategy(cfg)
	if id == "" {
		writeError(w, errs.New(errs.InvalidInput, "no factory registered for strategy type").WithDetail("type", req.Type))
		return
	}

	if a.telemetry != nil {
		a.telemetry.RecordRunStart(id, string(cfg.Type), cfg.Symbols, cfg.Parameters)
	}

	userID, ip, requestID := auditActor(r)
	a.audit.LogAction(r.Context(), audit.TypeAccess, "strategy_loaded", userID, ip, requestID)

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *app) handleUnloadStrategy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.strategies.UnloadStrategy(id)

	if a.telemetry != nil {
		a.telemetry.RecordRunStop(id, "stopped")
	}

	userID, ip, requestID := auditActor(r)
	a.audit.LogAction(r.Context(), audit.TypeAccess, "strategy_unloaded", userID, ip, requestID)

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "unloaded"})
}

func (a *app) handleReloadStrategy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var params map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, errs.Invalid("body", "malformed JSON"))
		return
	}

	if err := a.strategies.ReloadParameters(id, params); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "reloaded"})
}

func (a *app) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.strategies.Statuses())
}

func (a *app) handleStrategyMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.strategies.GetMetricsSummary())
}

func (a *app) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		UserID:         q.Get("user_id"),
		IPAddress:      q.Get("ip_address"),
		ActionContains: q.Get("action_contains"),
		RequestID:      q.Get("request_id"),
		DetailsText:    q.Get("details_text"),
		Reverse:        q.Get("reverse") == "true",
	}
	if t := q.Get("type"); t != "" {
		filter.Type = audit.Type(t)
		filter.HasType = true
	}
	if since := q.Get("since"); since != "" {
		if ts, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = ts
		}
	}
	if until := q.Get("until"); until != "" {
		if ts, err := time.Parse(time.RFC3339, until); err == nil {
			filter.Until = ts
		}
	}

	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	page, err := a.auditStore.Query(filter, offset, limit)
	if err != nil {
		writeError(w, errs.Wrap(errs.IoError, "audit query failed", err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *app) handleGetAuditByRequestID(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	entry, err := a.auditStore.GetByRequestID(requestID)
	if err != nil {
		writeError(w, errs.Wrap(errs.IoError, "audit lookup failed", err))
		return
	}
	if entry == nil {
		writeError(w, errs.New(errs.NotFound, "no audit entry for request id").WithDetail("request_id", requestID))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
