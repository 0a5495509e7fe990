package domain

import (
	"time"

	"github.com/google/uuid"

	"s4/server/common/apperr"
)

// EventFileUploaded is the bus routing key for UploadEvent.
const EventFileUploaded = "file.uploaded"

// messageNamespace seeds deterministic message ids for upload events.
var messageNamespace = uuid.MustParse("6d1f3c1e-5b7a-4f0e-9a63-2f7b8c4d9e10")

// UploadEvent is published once per completed upload, possibly more than once.
type UploadEvent struct {
	Bucket            string    `json:"bucket,omitempty"`
	Key               string    `json:"key"`
	SizeBytes         int64     `json:"sizeBytes"`
	ContentType       string    `json:"contentType"`
	UploadCompletedAt time.Time `json:"uploadCompletedAt"`
	Sequencer         string    `json:"sequencer,omitempty"`
	ETag              string    `json:"eTag,omitempty"`
}

// MessageID derives the delivery-layer id. Duplicate storage signals for the same upload
// map to the same id, a re-upload of the key maps to a new one.
func (e UploadEvent) MessageID() string {
	version := e.Sequencer
	if version == "" {
		version = e.ETag
	}
	name := e.Bucket + "\x00" + e.Key + "\x00" + version + "\x00" + e.UploadCompletedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(messageNamespace, []byte(name)).String()
}

func (e UploadEvent) Validate() error {
	if err := ValidateKey(e.Key); err != nil {
		return apperr.PermanentEventMalformed.Wrap(err)
	}
	if e.SizeBytes < 0 {
		return apperr.PermanentEventMalformed.New("negative size %d for %q", e.SizeBytes, e.Key)
	}
	if e.UploadCompletedAt.IsZero() {
		return apperr.PermanentEventMalformed.New("uploadCompletedAt missing for %q", e.Key)
	}
	return nil
}

// Record materializes the event as an indexed FileRecord visible from indexedAt.
func (e UploadEvent) Record(indexedAt time.Time) FileRecord {
	return FileRecord{
		Key:               e.Key,
		OwnerID:           OwnerOf(e.Key),
		UploadedAt:        indexedAt.UTC(),
		SizeBytes:         e.SizeBytes,
		ContentType:       e.ContentType,
		Status:            StatusIndexed,
		UploadCompletedAt: e.UploadCompletedAt.UTC(),
		Sequencer:         NormalizeSequencer(e.Sequencer),
		ETag:              e.ETag,
	}
}
