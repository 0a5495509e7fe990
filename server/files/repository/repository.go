// Package repository persists FileRecords. The indexer is the only writer; the gateway
// reads through Get and List.
package repository

import (
	"context"
	"time"

	"s4/server/common/apperr"
	"s4/server/files/domain"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = apperr.NotFound.New("file record")

// Cursor marks the last row of a page in (UploadedAt DESC, Key DESC) order.
type Cursor struct {
	UploadedAt time.Time
	Key        string
}

type Page struct {
	Records []domain.FileRecord
	Next    *Cursor
}

// Store is the metadata table contract.
//
// UpsertIfNewer writes rec unless the stored record for rec.Key is at least as new
// (see domain.FileRecord.NewerThan). The comparison and write are one atomic conditional
// operation in the backing table so concurrent indexers never lose an update.
// List only ever returns records owned by ownerID.
type Store interface {
	UpsertIfNewer(ctx context.Context, rec domain.FileRecord) (applied bool, err error)
	Get(ctx context.Context, key string) (domain.FileRecord, error)
	List(ctx context.Context, ownerID string, after *Cursor, limit int) (Page, error)
	Delete(ctx context.Context, key string) error
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ClampLimit normalises a requested page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// normalize truncates timestamps to the microsecond precision every backend can store
// and pads the sequencer so conditional writes compare it bytewise.
func normalize(rec domain.FileRecord) domain.FileRecord {
	rec.UploadedAt = rec.UploadedAt.UTC().Truncate(time.Microsecond)
	rec.UploadCompletedAt = rec.UploadCompletedAt.UTC().Truncate(time.Microsecond)
	rec.Sequencer = domain.NormalizeSequencer(rec.Sequencer)
	return rec
}

// pageFrom trims a limit+1 result set into a page and its continuation cursor.
func pageFrom(records []domain.FileRecord, limit int) Page {
	if len(records) <= limit {
		return Page{Records: records}
	}
	records = records[:limit]
	last := records[len(records)-1]
	return Page{Records: records, Next: &Cursor{UploadedAt: last.UploadedAt, Key: last.Key}}
}
