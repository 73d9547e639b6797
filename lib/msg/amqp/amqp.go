// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/streadway/amqp"

	"github.com/tarancss/chainquery/lib/msg"
)

// Exchange receives the usage events.
const Exchange = "usage"

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	mu   sync.Mutex // guards ch, an amqp.Channel is not safe for concurrent publishing
	ch   *amqp.Channel
}

var _ msg.Broker = (*Amqp)(nil)

// New instantiates a new amqp broker.
func New(uri string) (*Amqp, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to message broker", "broker", "amqp")

	return &Amqp{conn: conn}, nil
}

// Setup declares the "usage" topic exchange the service publishes usage events to.
func (r *Amqp) Setup() error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			slog.Warn("Error closing amqp channel", "error", err)
		}

		r.ch = nil
	}

	return r.conn.Close()
}

// RoutingKey returns the routing key of usage events for route, ie. "usage.v2.metadata.platforms".
func RoutingKey(route string) string {
	route = strings.Trim(route, "/")
	if route == "" {
		return Exchange
	}

	r := strings.NewReplacer("/", ".", "{", "", "}", "")

	return Exchange + "." + r.Replace(route)
}

// PublishUsage publishes e to the "usage" exchange.
func (r *Amqp) PublishUsage(e msg.UsageEvent) error {
	jsonDoc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return err
		}
	}

	m := amqp.Publishing{
		Headers:     amqp.Table{"x-request-id": e.RequestID},
		Body:        jsonDoc,
		ContentType: "application/json",
		Timestamp:   e.Time,
	}

	if err = r.ch.Publish(Exchange, RoutingKey(e.Route), false, false, m); err != nil {
		// a failed publish closes the channel, get a fresh one next time
		r.ch = nil

		return err
	}

	return nil
}
