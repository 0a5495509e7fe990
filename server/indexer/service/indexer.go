package service

import (
	"context"
	"encoding/json"
	"time"

	"s4/server/common/apperr"
	"s4/server/common/infra/mq"
	commonlog "s4/server/common/log"
	"s4/server/files/domain"
)

const (
	DefaultMaxDeliveries = 5
	DefaultHandleTimeout = 10 * time.Second
	trackerTimeout       = 2 * time.Second
)

type recordWriter interface {
	UpsertIfNewer(ctx context.Context, rec domain.FileRecord) (bool, error)
}

type deliveryTracker interface {
	IsDone(ctx context.Context, messageID string) (bool, error)
	MarkDone(ctx context.Context, messageID string) error
	Attempt(ctx context.Context, messageID string) (int64, error)
}

type Config struct {
	MaxDeliveries int
	HandleTimeout time.Duration
}

// Indexer applies file.uploaded events to the metadata store. It is safe to run any
// number of copies against the same queue: the store's conditional write decides every
// race and the tracker only saves work.
type Indexer struct {
	store         recordWriter
	tracker       deliveryTracker
	maxDeliveries int64
	handleTimeout time.Duration
	now           func() time.Time
}

// NewIndexer builds an Indexer. tracker may be nil.
func NewIndexer(store recordWriter, tracker deliveryTracker, cfg Config) *Indexer {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = DefaultMaxDeliveries
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = DefaultHandleTimeout
	}
	return &Indexer{
		store:         store,
		tracker:       tracker,
		maxDeliveries: int64(cfg.MaxDeliveries),
		handleTimeout: cfg.HandleTimeout,
		now:           time.Now,
	}
}

func (ix *Indexer) Handle(ctx context.Context, d mq.Delivery) mq.Disposition {
	var event domain.UploadEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		commonlog.Errorw("dead-lettering undecodable event", "messageId", d.MessageID, "error", err)
		return mq.DeadLetter
	}
	if err := event.Validate(); err != nil {
		commonlog.Errorw("dead-lettering invalid event", "messageId", d.MessageID, "key", event.Key, "error", err)
		return mq.DeadLetter
	}
	messageID := d.MessageID
	if messageID == "" {
		messageID = event.MessageID()
	}

	if ix.alreadyDone(ctx, messageID) {
		commonlog.Debugf("message %s for %s already applied", messageID, event.Key)
		return mq.Ack
	}

	attemptCtx, cancel := context.WithTimeout(ctx, ix.handleTimeout)
	applied, err := ix.store.UpsertIfNewer(attemptCtx, event.Record(ix.now()))
	cancel()
	if err != nil {
		return ix.failed(ctx, messageID, event.Key, err)
	}

	ix.markDone(ctx, messageID)
	commonlog.Infow("file.uploaded handled", "key", event.Key, "messageId", messageID, "applied", applied, "redelivered", d.Redelivered)
	return mq.Ack
}

func (ix *Indexer) failed(ctx context.Context, messageID, key string, err error) mq.Disposition {
	if ctx.Err() != nil {
		// shutting down; hand the message back without spending an attempt
		return mq.Retry
	}
	if !apperr.Retryable(err) {
		commonlog.Errorw("dead-lettering event the store rejected", "key", key, "messageId", messageID, "error", err)
		return mq.DeadLetter
	}
	attempts := ix.attempt(ctx, messageID)
	if attempts >= ix.maxDeliveries {
		commonlog.Errorw("dead-lettering event after repeated store failures", "key", key, "messageId", messageID, "attempts", attempts, "error", err)
		return mq.DeadLetter
	}
	commonlog.Warnw("store write failed, requeueing", "key", key, "messageId", messageID, "attempts", attempts, "error", err)
	return mq.Retry
}

func (ix *Indexer) alreadyDone(ctx context.Context, messageID string) bool {
	if ix.tracker == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, trackerTimeout)
	defer cancel()
	done, err := ix.tracker.IsDone(ctx, messageID)
	if err != nil {
		commonlog.Warnf("delivery tracker lookup for %s: %v", messageID, err)
		return false
	}
	return done
}

func (ix *Indexer) markDone(ctx context.Context, messageID string) {
	if ix.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, trackerTimeout)
	defer cancel()
	if err := ix.tracker.MarkDone(ctx, messageID); err != nil {
		commonlog.Warnf("delivery tracker mark done for %s: %v", messageID, err)
	}
}

// attempt returns the attempt number for the message; tracker failures count as 1.
func (ix *Indexer) attempt(ctx context.Context, messageID string) int64 {
	if ix.tracker == nil {
		return 1
	}
	ctx, cancel := context.WithTimeout(ctx, trackerTimeout)
	defer cancel()
	n, err := ix.tracker.Attempt(ctx, messageID)
	if err != nil {
		commonlog.Warnf("delivery tracker attempt count for %s: %v", messageID, err)
		return 1
	}
	return n
}
