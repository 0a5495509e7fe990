package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	commonlog "s4/server/common/log"
)

// Disposition tells the consumer how to settle a delivery.
type Disposition int

const (
	// Ack removes the message from the queue.
	Ack Disposition = iota
	// Retry returns the message to the queue for redelivery.
	Retry
	// DeadLetter rejects the message without requeue; the broker routes it to the DLX.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead-letter"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Delivery is the transport-neutral view of one message handed to a Handler.
type Delivery struct {
	MessageID   string
	RoutingKey  string
	Body        []byte
	Redelivered bool
}

type Handler func(ctx context.Context, d Delivery) Disposition

// ErrDeliveriesClosed is returned by Run when the broker closes the channel under us.
var ErrDeliveriesClosed = errors.New("amqp deliveries channel closed")

type ConsumerConfig struct {
	Tag        string
	Prefetch   int
	Workers    int
	RetryDelay time.Duration
}

type Consumer struct {
	conn     *amqp.Connection
	topology Topology
	cfg      ConsumerConfig
}

func NewConsumer(conn *amqp.Connection, topology Topology, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Prefetch < cfg.Workers {
		cfg.Prefetch = cfg.Workers
	}
	return &Consumer{conn: conn, topology: topology, cfg: cfg}
}

// Run consumes until ctx is cancelled (returns nil) or the channel fails (returns error).
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	if err := c.topology.Declare(ch); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(c.topology.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topology.Queue, err)
	}
	commonlog.Infof("consuming %s with %d workers", c.topology.Queue, c.cfg.Workers)
	return dispatch(ctx, deliveries, c.cfg.Workers, c.cfg.RetryDelay, handle)
}

// dispatch fans deliveries out to workers. Messages for different keys are handled in
// parallel; nothing here orders or locks by key.
func dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, workers int, retryDelay time.Duration, handle Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return ErrDeliveriesClosed
					}
					disposition := handle(gctx, Delivery{
						MessageID:   d.MessageId,
						RoutingKey:  d.RoutingKey,
						Body:        d.Body,
						Redelivered: d.Redelivered,
					})
					if disposition == Retry && retryDelay > 0 {
						select {
						case <-gctx.Done():
						case <-time.After(retryDelay):
						}
					}
					if err := settle(d, disposition); err != nil {
						commonlog.Warnf("settle message %s as %s: %v", d.MessageId, disposition, err)
					}
				}
			}
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func settle(d amqp.Delivery, disposition Disposition) error {
	switch disposition {
	case Ack:
		return d.Ack(false)
	case DeadLetter:
		return d.Nack(false, false)
	default:
		return d.Nack(false, true)
	}
}
