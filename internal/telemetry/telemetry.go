// Package telemetry is an optional Postgres-backed sink for strategy run
// and event history. It supplements the NDJSON audit log with queryable,
// relational history of strategy lifecycle and signal activity; it never
// gates or blocks strategy dispatch, matching the teacher's
// fire-and-forget db.Logger idiom.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"veloz/internal/logging"
)

// RunRecord is a row in strategy_runs.
type RunRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	StoppedAt  *time.Time      `json:"stopped_at,omitempty"`
	StrategyID string          `json:"strategy_id"`
	Type       string          `json:"type"`
	Symbols    []string        `json:"symbols"`
	Params     json.RawMessage `json:"params"`
	Status     string          `json:"status"`
}

// EventRecord is a row in strategy_events.
type EventRecord struct {
	StrategyID string          `json:"strategy_id"`
	Timestamp  time.Time       `json:"timestamp"`
	EventType  string          `json:"event_type"`
	Symbol     string          `json:"symbol,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// Sink wraps a pgx pool and provides fire-and-forget strategy telemetry
// writers plus synchronous read helpers (QueryRuns, QueryEvents); no
// gateway route calls the read helpers.
type Sink struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// New creates a connection pool and ensures the telemetry schema exists.
// Returns an error if either step fails; callers should treat telemetry as
// optional and continue running the gateway without it if so configured.
func New(ctx context.Context, dsn string, log *logging.Logger) (*Sink, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("telemetry: pgxpool.New: %w", err)
	}
	s := &Sink{pool: pool, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists strategy_runs (
			id bigserial primary key,
			strategy_id text unique not null,
			started_at timestamptz not null default now(),
			stopped_at timestamptz,
			type text not null,
			symbols text[] not null default '{}',
			params jsonb,
			status text not null default 'running'
		)`,
		`create index if not exists idx_strategy_runs_type on strategy_runs(type, started_at desc)`,
		`create table if not exists strategy_events (
			id bigserial primary key,
			strategy_id text not null,
			ts timestamptz not null default now(),
			event_type text not null,
			symbol text,
			details jsonb
		)`,
		`create index if not exists idx_strategy_events_strategy on strategy_events(strategy_id, ts desc)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("telemetry: ensureSchema: %w", err)
		}
	}
	return nil
}

// RecordRunStart writes a new strategy_runs row. Fire-and-forget: a failure
// is logged, never propagated to the strategy dispatch path.
func (s *Sink) RecordRunStart(strategyID, typ string, symbols []string, params map[string]float64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		var pj []byte
		if params != nil {
			pj, _ = json.Marshal(params)
		}
		_, err := s.pool.Exec(ctx,
			`insert into strategy_runs(strategy_id, type, symbols, params, status) values($1,$2,$3,$4,'running')`,
			strategyID, typ, symbols, pj)
		if err != nil {
			s.log.Warnf("telemetry: record run start failed for %s: %v", strategyID, err)
		}
	}()
}

// RecordRunStop marks a strategy_runs row stopped.
func (s *Sink) RecordRunStop(strategyID, status string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if status == "" {
			status = "stopped"
		}
		_, err := s.pool.Exec(ctx,
			`update strategy_runs set stopped_at = now(), status = $2 where strategy_id = $1`,
			strategyID, status)
		if err != nil {
			s.log.Warnf("telemetry: record run stop failed for %s: %v", strategyID, err)
		}
	}()
}

// RecordEvent writes an arbitrary strategy lifecycle/signal event.
func (s *Sink) RecordEvent(strategyID, eventType, symbol string, details any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		var dj []byte
		if details != nil {
			dj, _ = json.Marshal(details)
		}
		_, err := s.pool.Exec(ctx,
			`insert into strategy_events(strategy_id, event_type, symbol, details) values($1,$2,$3,$4)`,
			strategyID, eventType, symbol, dj)
		if err != nil {
			s.log.Warnf("telemetry: record event failed for %s: %v", strategyID, err)
		}
	}()
}

// RecordSignal is a convenience wrapper around RecordEvent for a generated
// OrderIntent, used by the gateway's signal callback.
func (s *Sink) RecordSignal(strategyID, symbol, side string, quantity, price float64) {
	s.RecordEvent(strategyID, "signal", symbol, map[string]any{
		"side":     side,
		"quantity": quantity,
		"price":    price,
	})
}

// QueryRuns lists strategy runs, optionally filtered by type, newest first.
func (s *Sink) QueryRuns(ctx context.Context, typ string, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`select strategy_id, started_at, stopped_at, type, symbols, coalesce(params, '{}'::jsonb), status
		 from strategy_runs where ($1 = '' or type = $1) order by started_at desc limit $2`,
		typ, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.StoppedAt, &r.Type, &r.Symbols, &r.Params, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryEvents lists events for a single strategy id, newest first.
func (s *Sink) QueryEvents(ctx context.Context, strategyID string, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`select strategy_id, ts, event_type, coalesce(symbol, ''), coalesce(details, '{}'::jsonb)
		 from strategy_events where strategy_id = $1 order by ts desc limit $2`,
		strategyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []EventRecord{}
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.StrategyID, &r.Timestamp, &r.EventType, &r.Symbol, &r.Details); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
