package service

import (
	"context"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/zeebo/errs"

	"s4/server/common/apperr"
	commonlog "s4/server/common/log"
	"s4/server/files/domain"
)

const (
	DefaultPublishTimeout = 5 * time.Second
	fallbackContentType   = "application/octet-stream"
)

type publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, payload any) error
}

type objectStater interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Notifier turns storage completion records into file.uploaded events on the bus.
// It never writes metadata.
type Notifier struct {
	publisher      publisher
	objects        objectStater
	publishTimeout time.Duration
}

func NewNotifier(publisher publisher, objects objectStater, publishTimeout time.Duration) *Notifier {
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Notifier{publisher: publisher, objects: objects, publishTimeout: publishTimeout}
}

// Dispatch publishes one event per created object. It returns an error if any publish
// failed so the caller's trigger redelivers the batch; duplicates are absorbed downstream.
func (n *Notifier) Dispatch(ctx context.Context, signals []StorageSignal) error {
	var group errs.Group
	published, skipped := 0, 0
	for _, signal := range signals {
		if !signal.ObjectCreated() {
			skipped++
			continue
		}
		event, ok := n.translate(signal)
		if !ok {
			skipped++
			continue
		}
		if event.ContentType == "" || event.UploadCompletedAt.IsZero() {
			if err := n.fillFromObject(ctx, &event); err != nil {
				group.Add(err)
				continue
			}
		}
		if err := event.Validate(); err != nil {
			commonlog.Errorw("dropping storage signal that cannot be indexed", "key", event.Key, "error", err)
			skipped++
			continue
		}
		if err := n.publish(ctx, event); err != nil {
			group.Add(err)
			continue
		}
		published++
	}
	commonlog.Infow("storage signals dispatched", "received", len(signals), "published", published, "skipped", skipped)
	return group.Err()
}

func (n *Notifier) translate(signal StorageSignal) (domain.UploadEvent, bool) {
	key, err := signal.DecodedKey()
	if err != nil {
		commonlog.Errorw("dropping storage signal with undecodable key", "key", signal.Key, "error", err)
		return domain.UploadEvent{}, false
	}
	if err := domain.ValidateKey(key); err != nil {
		commonlog.Errorw("dropping storage signal that cannot be indexed", "key", key, "error", err)
		return domain.UploadEvent{}, false
	}
	return domain.UploadEvent{
		Bucket:            signal.Bucket,
		Key:               key,
		SizeBytes:         signal.SizeBytes,
		ContentType:       signal.ContentType,
		UploadCompletedAt: signal.EventTime.UTC(),
		Sequencer:         domain.NormalizeSequencer(signal.Sequencer),
		ETag:              signal.ETag,
	}, true
}

// fillFromObject completes an event from the stored object. A missing event time is taken
// from the object's LastModified, but only while the object is still the upload the signal
// describes; a redelivered signal then yields the same version and message id.
func (n *Notifier) fillFromObject(ctx context.Context, event *domain.UploadEvent) error {
	info, err := n.objects.StatObject(ctx, event.Bucket, event.Key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return apperr.TransientDependencyFailure.Wrap(err)
		}
		// overwritten or deleted since
		info = minio.ObjectInfo{}
	}
	if event.ContentType == "" {
		event.ContentType = info.ContentType
		if event.ContentType == "" {
			event.ContentType = fallbackContentType
		}
	}
	if event.UploadCompletedAt.IsZero() && !info.LastModified.IsZero() && sameETag(event.ETag, info.ETag) {
		event.UploadCompletedAt = info.LastModified.UTC()
		commonlog.Warnw("storage signal has no event time, using object last-modified", "key", event.Key)
	}
	return nil
}

func sameETag(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return strings.Trim(a, `"`) == strings.Trim(b, `"`)
}

func (n *Notifier) publish(ctx context.Context, event domain.UploadEvent) error {
	ctx, cancel := context.WithTimeout(ctx, n.publishTimeout)
	defer cancel()
	if err := n.publisher.Publish(ctx, domain.EventFileUploaded, event.MessageID(), event); err != nil {
		commonlog.Errorw("publish file.uploaded failed", "key", event.Key, "error", err)
		return apperr.TransientDependencyFailure.Wrap(err)
	}
	return nil
}
