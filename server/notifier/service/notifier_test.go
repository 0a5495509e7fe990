package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s4/server/common/apperr"
	"s4/server/files/domain"
)

var completedAt = time.Date(2026, 10, 15, 7, 59, 58, 120000000, time.UTC)

type published struct {
	routingKey string
	messageID  string
	event      domain.UploadEvent
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey, messageID string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{routingKey: routingKey, messageID: messageID, event: payload.(domain.UploadEvent)})
	return nil
}

type fakeStater struct {
	contentType  string
	etag         string
	lastModified time.Time
	err          error
	calls        int
}

func (f *fakeStater) StatObject(context.Context, string, string, minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.calls++
	if f.err != nil {
		return minio.ObjectInfo{}, f.err
	}
	return minio.ObjectInfo{ContentType: f.contentType, ETag: f.etag, LastModified: f.lastModified}, nil
}

func created(key string) StorageSignal {
	return StorageSignal{
		EventName:   "s3:ObjectCreated:Put",
		Bucket:      "s4-files",
		Key:         key,
		SizeBytes:   2048,
		ContentType: "application/pdf",
		ETag:        "etag-1",
		Sequencer:   "0055AED6DCD90281E5",
		EventTime:   completedAt,
	}
}

func TestDispatchPublishesUploadEvent(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, &fakeStater{}, 0)

	require.NoError(t, n.Dispatch(context.Background(), []StorageSignal{created("alice/report.pdf")}))
	require.Len(t, pub.sent, 1)

	msg := pub.sent[0]
	assert.Equal(t, domain.EventFileUploaded, msg.routingKey)
	assert.Equal(t, "alice/report.pdf", msg.event.Key)
	assert.Equal(t, int64(2048), msg.event.SizeBytes)
	assert.Equal(t, "application/pdf", msg.event.ContentType)
	assert.Equal(t, completedAt, msg.event.UploadCompletedAt)
	assert.Equal(t, msg.event.MessageID(), msg.messageID)
}

func TestDispatchDuplicateSignalsShareMessageID(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, &fakeStater{}, 0)

	signal := created("alice/report.pdf")
	require.NoError(t, n.Dispatch(context.Background(), []StorageSignal{signal, signal}))
	require.Len(t, pub.sent, 2)
	assert.Equal(t, pub.sent[0].messageID, pub.sent[1].messageID)
}

func TestDispatchSkipsAndDecodes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, &fakeStater{}, 0)

	removed := created("alice/old.pdf")
	removed.EventName = "s3:ObjectRemoved:Delete"
	noOwner := created("orphan.pdf")
	badEncoding := created("alice/%zz")

	err := n.Dispatch(context.Background(), []StorageSignal{
		removed,
		noOwner,
		badEncoding,
		created("alice/my+report%281%29.pdf"),
	})
	require.NoError(t, err)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "alice/my report(1).pdf", pub.sent[0].event.Key)
}

func TestDispatchStatsMissingContentType(t *testing.T) {
	pub := &fakePublisher{}
	stater := &fakeStater{contentType: "image/png"}
	n := NewNotifier(pub, stater, 0)

	signal := created("alice/cat.png")
	signal.ContentType = ""
	require.NoError(t, n.Dispatch(context.Background(), []StorageSignal{signal}))
	assert.Equal(t, 1, stater.calls)
	assert.Equal(t, "image/png", pub.sent[0].event.ContentType)
}

func TestDispatchStatMissingObjectFallsBack(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, &fakeStater{err: minio.ErrorResponse{Code: "NoSuchKey"}}, 0)

	signal := created("alice/gone.bin")
	signal.ContentType = ""
	require.NoError(t, n.Dispatch(context.Background(), []StorageSignal{signal}))
	assert.Equal(t, "application/octet-stream", pub.sent[0].event.ContentType)
}

func TestDispatchStatFailureIsReturned(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, &fakeStater{err: errors.New("connection refused")}, 0)

	signal := created("alice/cat.png")
	signal.ContentType = ""
	err := n.Dispatch(context.Background(), []StorageSignal{signal})
	assert.True(t, apperr.TransientDependencyFailure.Has(err))
	assert.Empty(t, pub.sent)
}

func TestDispatchPublishFailureIsReturned(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker nacked")}
	n := NewNotifier(pub, &fakeStater{}, 0)

	err := n.Dispatch(context.Background(), []StorageSignal{created("alice/a.pdf")})
	assert.True(t, apperr.TransientDependencyFailure.Has(err))
}

func TestDispatchMissingEventTimeUsesLastModified(t *testing.T) {
	pub := &fakePublisher{}
	lastModified := time.Date(2026, 10, 15, 7, 59, 59, 0, time.FixedZone("KST", 9*3600))
	stater := &fakeStater{etag: `"etag-1"`, lastModified: lastModified}
	n := NewNotifier(pub, stater, 0)

	signal := created("alice/a.pdf")
	signal.EventTime = time.Time{}
	require.NoError(t, n.Dispatch(context.Background(), []StorageSignal{signal, signal}))

	require.Len(t, pub.sent, 2)
	assert.Equal(t, 2, stater.calls)
	assert.Equal(t, lastModified.UTC(), pub.sent[0].event.UploadCompletedAt)
	assert.Equal(t, "application/pdf", pub.sent[0].event.ContentType)
	assert.Equal(t, pub.sent[0].messageID, pub.sent[1].messageID)
}

func TestDispatchMissingEventTimeForReplacedObjectIsDropped(t *testing.T) {
	pub := &fakePublisher{}
	stater := &fakeStater{etag: "etag-2", lastModified: completedAt.Add(time.Minute)}
	n := NewNotifier(pub, stater, 0)

	signal := created("alice/a.pdf")
	signal.EventTime = time.Time{}
	require.NoError(t, n.Dispatch(context.Background(), []StorageSignal{signal}))
	assert.Empty(t, pub.sent)

	n = NewNotifier(pub, &fakeStater{err: minio.ErrorResponse{Code: "NoSuchKey"}}, 0)
	require.NoError(t, n.Dispatch(context.Background(), []StorageSignal{signal}))
	assert.Empty(t, pub.sent)
}

func TestSignalsFromMinioWebhook(t *testing.T) {
	body := `{
		"EventName": "s3:ObjectCreated:Put",
		"Key": "s4-files/alice/report.pdf",
		"Records": [{
			"eventName": "s3:ObjectCreated:Put",
			"eventTime": "2026-10-15T07:59:58.120Z",
			"s3": {
				"bucket": {"name": "s4-files"},
				"object": {"key": "alice%2Freport.pdf", "size": 2048, "eTag": "etag-1", "contentType": "application/pdf", "sequencer": "17A0"}
			}
		}]
	}`
	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(body), &payload))

	signals := SignalsFromMinio(payload.Records)
	require.Len(t, signals, 1)
	s := signals[0]
	assert.True(t, s.ObjectCreated())
	assert.Equal(t, "s4-files", s.Bucket)
	assert.Equal(t, int64(2048), s.SizeBytes)
	assert.Equal(t, "application/pdf", s.ContentType)
	assert.Equal(t, "17A0", s.Sequencer)
	assert.Equal(t, completedAt, s.EventTime)
	key, err := s.DecodedKey()
	require.NoError(t, err)
	assert.Equal(t, "alice/report.pdf", key)
}

func TestSignalsFromS3Event(t *testing.T) {
	event := events.S3Event{Records: []events.S3EventRecord{{
		EventName: "ObjectCreated:Put",
		EventTime: completedAt,
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: "s4-files"},
			Object: events.S3Object{Key: "alice/report.pdf", Size: 2048, ETag: "etag-1", Sequencer: "17A0"},
		},
	}}}

	signals := SignalsFromS3Event(event)
	require.Len(t, signals, 1)
	assert.True(t, signals[0].ObjectCreated())
	assert.Empty(t, signals[0].ContentType)
	assert.Equal(t, completedAt, signals[0].EventTime)
}

func TestObjectCreated(t *testing.T) {
	assert.True(t, StorageSignal{EventName: "ObjectCreated:CompleteMultipartUpload"}.ObjectCreated())
	assert.True(t, StorageSignal{EventName: "s3:ObjectCreated:Copy"}.ObjectCreated())
	assert.False(t, StorageSignal{EventName: "s3:ObjectAccessed:Get"}.ObjectCreated())
	assert.False(t, StorageSignal{}.ObjectCreated())
}
