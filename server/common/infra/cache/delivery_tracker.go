package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTrackerPrefix = "s4:delivery"
	defaultTrackerTTL    = 24 * time.Hour
)

// DeliveryTracker remembers, per message id, whether a message has already been
// applied and how many times delivery has been attempted. Entries expire after ttl.
type DeliveryTracker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewDeliveryTracker(client redis.Cmdable, prefix string, ttl time.Duration) *DeliveryTracker {
	if prefix == "" {
		prefix = defaultTrackerPrefix
	}
	if ttl <= 0 {
		ttl = defaultTrackerTTL
	}
	return &DeliveryTracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *DeliveryTracker) IsDone(ctx context.Context, messageID string) (bool, error) {
	err := t.client.Get(ctx, t.doneKey(messageID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkDone records the message as applied and clears its attempt counter.
func (t *DeliveryTracker) MarkDone(ctx context.Context, messageID string) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, t.doneKey(messageID), 1, t.ttl)
		pipe.Del(ctx, t.attemptsKey(messageID))
		return nil
	})
	return err
}

// Attempt increments and returns the attempt count for the message, starting at 1.
func (t *DeliveryTracker) Attempt(ctx context.Context, messageID string) (int64, error) {
	var incr *redis.IntCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, t.attemptsKey(messageID))
		pipe.Expire(ctx, t.attemptsKey(messageID), t.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (t *DeliveryTracker) doneKey(messageID string) string {
	return t.prefix + ":done:" + messageID
}

func (t *DeliveryTracker) attemptsKey(messageID string) string {
	return t.prefix + ":attempts:" + messageID
}
