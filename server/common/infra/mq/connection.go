package mq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchanges and queues of the upload pipeline. Both publisher and
// consumer declare it, so events published before the first indexer starts are kept.
type Topology struct {
	Exchange           string
	DeadLetterExchange string
	Queue              string
	DeadLetterQueue    string
	RoutingKey         string
}

func DefaultTopology(exchange, routingKey string) Topology {
	return Topology{
		Exchange:           exchange,
		DeadLetterExchange: exchange + ".dlx",
		Queue:              "indexer." + routingKey,
		DeadLetterQueue:    "indexer." + routingKey + ".dlq",
		RoutingKey:         routingKey,
	}
}

func NewConnection(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat:  10 * time.Second,
		Properties: amqp.Table{"connection_name": "s4"},
	})
}

// Declare creates the durable exchange, the consumer queue dead-lettering into the DLX, and
// the dead-letter queue. Redeclaring with identical arguments is a no-op on the broker.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange, err)
	}
	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue, "#", t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.DeadLetterQueue, err)
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": t.DeadLetterExchange,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}
	return nil
}
