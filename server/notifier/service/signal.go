package service

import (
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// StorageSignal is one object-storage completion record, whichever way it arrived.
type StorageSignal struct {
	EventName   string
	Bucket      string
	Key         string // as delivered, still URL-encoded
	SizeBytes   int64
	ContentType string
	ETag        string
	Sequencer   string
	EventTime   time.Time
}

// ObjectCreated reports whether the record announces a completed write. MinIO prefixes
// event names with "s3:", S3 itself does not.
func (s StorageSignal) ObjectCreated() bool {
	return strings.HasPrefix(strings.TrimPrefix(s.EventName, "s3:"), "ObjectCreated:")
}

// DecodedKey undoes the form encoding storage applies to keys in notifications.
func (s StorageSignal) DecodedKey() (string, error) {
	return url.QueryUnescape(s.Key)
}

// WebhookPayload is the body MinIO posts to a webhook target.
type WebhookPayload struct {
	EventName string               `json:"EventName"`
	Key       string               `json:"Key"`
	Records   []notification.Event `json:"Records"`
}

func SignalsFromMinio(records []notification.Event) []StorageSignal {
	signals := make([]StorageSignal, 0, len(records))
	for _, rec := range records {
		eventTime, _ := time.Parse(time.RFC3339Nano, rec.EventTime)
		signals = append(signals, StorageSignal{
			EventName:   rec.EventName,
			Bucket:      rec.S3.Bucket.Name,
			Key:         rec.S3.Object.Key,
			SizeBytes:   rec.S3.Object.Size,
			ContentType: rec.S3.Object.ContentType,
			ETag:        rec.S3.Object.ETag,
			Sequencer:   rec.S3.Object.Sequencer,
			EventTime:   eventTime,
		})
	}
	return signals
}

func SignalsFromS3Event(event events.S3Event) []StorageSignal {
	signals := make([]StorageSignal, 0, len(event.Records))
	for _, rec := range event.Records {
		signals = append(signals, StorageSignal{
			EventName: rec.EventName,
			Bucket:    rec.S3.Bucket.Name,
			Key:       rec.S3.Object.Key,
			SizeBytes: rec.S3.Object.Size,
			ETag:      rec.S3.Object.ETag,
			Sequencer: rec.S3.Object.Sequencer,
			EventTime: rec.EventTime,
		})
	}
	return signals
}
