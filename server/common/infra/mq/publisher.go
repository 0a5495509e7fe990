package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends JSON events to the topology exchange and waits for the broker's
// publisher confirm, so a nil error means the broker has taken responsibility.
// A broken connection is redialled on the next Publish.
type Publisher struct {
	url      string
	topology Topology
	dial     func(url string) (*amqp.Connection, error)

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string, topology Topology) *Publisher {
	return &Publisher{url: url, topology: topology, dial: NewConnection}
}

// Connect opens the connection eagerly so startup fails fast on a bad URL.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.channelLocked()
	return err
}

func (p *Publisher) Publish(ctx context.Context, routingKey, messageID string, payload any) error {
	msg, err := publishing(routingKey, messageID, payload, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.topology.Exchange, routingKey, false, false, msg)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("await confirm for %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s message %s", routingKey, messageID)
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if err := p.topology.Declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func publishing(routingKey, messageID string, payload any, now time.Time) (amqp.Publishing, error) {
	if messageID == "" {
		return amqp.Publishing{}, errors.New("message id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s payload: %w", routingKey, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         routingKey,
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}
