// Package adapteramqp is the reference bridge.EngineAdapter implementation:
// it forwards order place/cancel requests to an external matching engine as
// RabbitMQ trade commands, and turns engine-originated deliveries back into
// bridge.Events. Adapted from the teacher's internal/amqp.Publisher and
// internal/amqp.Consumer (retry-dial connect loop, durable queue declares,
// recover()-guarded consume goroutines).
package adapteramqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"veloz/internal/bridge"
	"veloz/internal/logging"
)

const (
	tradeCommandsQueue = "veloz.trade_commands"
	orderUpdatesQueue  = "veloz.order_updates"
)

// tradeCommand is the wire payload consumed by the external engine.
type tradeCommand struct {
	Command  string  `json:"command"`
	ClientID string  `json:"client_id"`
	Symbol   string  `json:"symbol,omitempty"`
	Side     string  `json:"side,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Price    float64 `json:"price,omitempty"`
}

// orderUpdateMessage is the wire payload the engine publishes back.
type orderUpdateMessage struct {
	ClientID string  `json:"client_id"`
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Status   string  `json:"status"`
	Reason   string  `json:"reason"`
}

// Adapter is the RabbitMQ-backed bridge.EngineAdapter.
type Adapter struct {
	uri string
	log *logging.Logger

	conn *amqp091.Connection
	ch   *amqp091.Channel

	publish func(bridge.EventType, any)
}

// New returns an Adapter that will dial uri on Start.
func New(uri string, log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.New("bridge.adapteramqp", false)
	}
	return &Adapter{uri: uri, log: log}
}

// Start dials RabbitMQ with the teacher's retry-for-a-few-seconds idiom,
// declares the durable queues, and launches the consume goroutine that
// republishes engine acknowledgements as bridge.Events.
func (a *Adapter) Start(ctx context.Context, publish func(bridge.EventType, any)) error {
	a.publish = publish

	var conn *amqp091.Connection
	var err error
	for i := 0; i < 10; i++ {
		conn, err = amqp091.Dial(a.uri)
		if err == nil {
			break
		}
		a.log.Warnf("amqp dial attempt %d failed: %v", i+1, err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return fmt.Errorf("adapteramqp: failed to connect after 10 attempts: %w", err)
	}
	a.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("adapteramqp: failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		a.log.Warnf("adapteramqp: publisher confirms unavailable: %v", err)
	}
	a.ch = ch

	for _, q := range []string{tradeCommandsQueue, orderUpdatesQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("adapteramqp: failed to declare queue %q: %w", q, err)
		}
	}

	return a.startConsumer(ctx)
}

// startConsumer registers a consumer for engine acknowledgements, retrying
// registration a few times (grounded on the teacher's handleFunc retry loop),
// then runs the recover()-guarded drain loop on its own goroutine.
func (a *Adapter) startConsumer(ctx context.Context) error {
	var deliveries <-chan amqp091.Delivery
	var err error
	for retry := 0; retry < 3; retry++ {
		deliveries, err = a.ch.Consume(orderUpdatesQueue, "", true, false, false, false, nil)
		if err == nil {
			break
		}
		a.log.Warnf("adapteramqp: consumer registration attempt %d failed: %v", retry+1, err)
		time.Sleep(time.Second)
	}
	if err != nil {
		return fmt.Errorf("adapteramqp: failed to register consumer: %w", err)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.log.Errorf("adapteramqp: consumer goroutine panicked: %v", r)
			}
		}()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				a.handleDelivery(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (a *Adapter) handleDelivery(d amqp091.Delivery) {
	var msg orderUpdateMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		a.log.Error("adapteramqp: failed to unmarshal order update", err)
		return
	}
	a.publish(bridge.EventOrderUpdate, bridge.OrderUpdate{
		ClientID: msg.ClientID,
		OrderID:  msg.OrderID,
		Symbol:   msg.Symbol,
		Side:     bridge.Side(msg.Side),
		Quantity: msg.Quantity,
		Price:    msg.Price,
		Status:   bridge.OrderStatus(msg.Status),
		Reason:   msg.Reason,
	})
}

// SubmitOrder publishes a place-order trade command.
func (a *Adapter) SubmitOrder(ctx context.Context, o bridge.Order) error {
	return a.publishCommand(ctx, tradeCommand{
		Command:  "submit_order",
		ClientID: o.ClientID,
		Symbol:   o.Symbol,
		Side:     string(o.Side),
		Quantity: o.Quantity,
		Price:    o.Price,
	})
}

// CancelOrder publishes a cancel-order trade command.
func (a *Adapter) CancelOrder(ctx context.Context, clientID string) error {
	return a.publishCommand(ctx, tradeCommand{
		Command:  "cancel_order",
		ClientID: clientID,
	})
}

func (a *Adapter) publishCommand(ctx context.Context, cmd tradeCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("adapteramqp: failed to marshal trade command: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.ch.PublishWithContext(pubCtx, "", tradeCommandsQueue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Stop closes the channel and connection. Idempotent.
func (a *Adapter) Stop() error {
	if a.ch != nil {
		a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
