package domain

import (
	"strings"
	"time"

	"s4/server/common/apperr"
)

type Status string

const (
	// StatusPending is never persisted; a missing record means the upload is still in flight.
	StatusPending Status = "PENDING"
	StatusIndexed Status = "INDEXED"
)

// FileRecord is the metadata row for one uploaded object, keyed by Key.
type FileRecord struct {
	Key               string    `json:"key"`
	OwnerID           string    `json:"ownerId"`
	UploadedAt        time.Time `json:"uploadedAt"`
	SizeBytes         int64     `json:"sizeBytes"`
	ContentType       string    `json:"contentType"`
	Status            Status    `json:"status"`
	UploadCompletedAt time.Time `json:"uploadCompletedAt"`
	Sequencer         string    `json:"sequencer,omitempty"`
	ETag              string    `json:"eTag,omitempty"`
}

// NewerThan reports whether r should replace other under last-writer-wins ordering:
// later UploadCompletedAt wins, equal times fall back to the storage sequencer.
// Equal versions are not newer, so replaying the same event changes nothing.
func (r FileRecord) NewerThan(other FileRecord) bool {
	if !r.UploadCompletedAt.Equal(other.UploadCompletedAt) {
		return r.UploadCompletedAt.After(other.UploadCompletedAt)
	}
	return NormalizeSequencer(r.Sequencer) > NormalizeSequencer(other.Sequencer)
}

// SequencerWidth is the width storage sequencers are zero-padded to.
const SequencerWidth = 32

// NormalizeSequencer left-pads a hex sequencer with zeros so that bytewise order matches
// numeric order. Sequencers of different lengths are otherwise not comparable as text.
func NormalizeSequencer(seq string) string {
	if seq == "" {
		return ""
	}
	seq = strings.ToUpper(seq)
	if len(seq) >= SequencerWidth {
		return seq
	}
	return strings.Repeat("0", SequencerWidth-len(seq)) + seq
}

type Method string

const (
	MethodPut Method = "PUT"
	MethodGet Method = "GET"
)

// Capability is a pre-signed URL bound to one key and one method until ExpiresAt.
type Capability struct {
	Key       string    `json:"key"`
	Method    Method    `json:"method"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Permits checks a use of the capability at the given instant.
func (c Capability) Permits(key string, method Method, at time.Time) error {
	if key != c.Key {
		return apperr.InvalidInput.New("capability is scoped to %q, not %q", c.Key, key)
	}
	if method != c.Method {
		return apperr.InvalidInput.New("capability allows %s, not %s", c.Method, method)
	}
	if !at.Before(c.ExpiresAt) {
		return apperr.CapabilityExpired.New("capability for %q expired at %s", c.Key, c.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

func (d Direction) Method() Method {
	if d == DirectionUpload {
		return MethodPut
	}
	return MethodGet
}
