package repository

import (
	"context"
	"sort"
	"sync"

	"s4/server/files/domain"
)

// Memory is a process-local Store. The mutex stands in for the table's conditional
// write; it is only suitable for tests and single-process development.
type Memory struct {
	mu      sync.Mutex
	records map[string]domain.FileRecord
}

func NewMemory() *Memory {
	return &Memory{records: map[string]domain.FileRecord{}}
}

func (m *Memory) UpsertIfNewer(_ context.Context, rec domain.FileRecord) (bool, error) {
	rec = normalize(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.records[rec.Key]; ok && !rec.NewerThan(current) {
		return false, nil
	}
	m.records[rec.Key] = rec
	return true, nil
}

func (m *Memory) Get(_ context.Context, key string) (domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return domain.FileRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) List(_ context.Context, ownerID string, after *Cursor, limit int) (Page, error) {
	limit = ClampLimit(limit)

	m.mu.Lock()
	owned := make([]domain.FileRecord, 0)
	for _, rec := range m.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if after != nil && !pastCursor(rec, *after) {
			continue
		}
		owned = append(owned, rec)
	}
	m.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].UploadedAt.Equal(owned[j].UploadedAt) {
			return owned[i].UploadedAt.After(owned[j].UploadedAt)
		}
		return owned[i].Key > owned[j].Key
	})
	if len(owned) > limit+1 {
		owned = owned[:limit+1]
	}
	return pageFrom(owned, limit), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		return ErrNotFound
	}
	delete(m.records, key)
	return nil
}

// Len reports how many records are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// pastCursor reports whether rec comes after c in listing order.
func pastCursor(rec domain.FileRecord, c Cursor) bool {
	if !rec.UploadedAt.Equal(c.UploadedAt) {
		return rec.UploadedAt.Before(c.UploadedAt)
	}
	return rec.Key < c.Key
}
