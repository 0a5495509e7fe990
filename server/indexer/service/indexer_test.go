package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s4/server/common/apperr"
	"s4/server/common/infra/cache"
	"s4/server/common/infra/mq"
	"s4/server/files/domain"
	"s4/server/files/repository"
)

var completedAt = time.Date(2026, 10, 15, 7, 59, 58, 0, time.UTC)

func uploadEvent(key string, completed time.Time, sequencer string, size int64) domain.UploadEvent {
	return domain.UploadEvent{
		Bucket:            "s4-files",
		Key:               key,
		SizeBytes:         size,
		ContentType:       "application/pdf",
		UploadCompletedAt: completed,
		Sequencer:         sequencer,
	}
}

func delivery(t *testing.T, event domain.UploadEvent) mq.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return mq.Delivery{MessageID: event.MessageID(), RoutingKey: domain.EventFileUploaded, Body: body}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newIndexer(store recordWriter, tracker deliveryTracker, maxDeliveries int) *Indexer {
	ix := NewIndexer(store, tracker, Config{MaxDeliveries: maxDeliveries, HandleTimeout: time.Second})
	ix.now = (&clock{now: completedAt}).Now
	return ix
}

func newTracker(t *testing.T) *cache.DeliveryTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewDeliveryTracker(client, "test", time.Hour)
}

type flakyStore struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	inner    *repository.Memory
}

func (f *flakyStore) UpsertIfNewer(ctx context.Context, rec domain.FileRecord) (bool, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return false, f.err
	}
	return f.inner.UpsertIfNewer(ctx, rec)
}

func TestAliceUploadIsIndexed(t *testing.T) {
	store := repository.NewMemory()
	ix := newIndexer(store, newTracker(t), 0)

	d := ix.Handle(context.Background(), delivery(t, uploadEvent("alice/report.pdf", completedAt, "01", 2048)))
	assert.Equal(t, mq.Ack, d)

	rec, err := store.Get(context.Background(), "alice/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.OwnerID)
	assert.Equal(t, domain.StatusIndexed, rec.Status)
	assert.Equal(t, int64(2048), rec.SizeBytes)
	assert.Equal(t, "application/pdf", rec.ContentType)
	assert.True(t, rec.UploadedAt.After(completedAt))

	page, err := store.List(context.Background(), "alice", nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	for name, tracker := range map[string]func(t *testing.T) deliveryTracker{
		"with tracker":    func(t *testing.T) deliveryTracker { return newTracker(t) },
		"without tracker": func(*testing.T) deliveryTracker { return nil },
	} {
		t.Run(name, func(t *testing.T) {
			store := repository.NewMemory()
			ix := newIndexer(store, tracker(t), 0)
			d := delivery(t, uploadEvent("alice/report.pdf", completedAt, "01", 2048))

			require.Equal(t, mq.Ack, ix.Handle(context.Background(), d))
			first, err := store.Get(context.Background(), "alice/report.pdf")
			require.NoError(t, err)

			d.Redelivered = true
			for i := 0; i < 5; i++ {
				require.Equal(t, mq.Ack, ix.Handle(context.Background(), d))
			}
			again, err := store.Get(context.Background(), "alice/report.pdf")
			require.NoError(t, err)
			assert.Equal(t, first, again)
			assert.Equal(t, 1, store.Len())
		})
	}
}

func TestOutOfOrderDeliveriesConverge(t *testing.T) {
	older := uploadEvent("alice/report.pdf", completedAt, "01", 100)
	newer := uploadEvent("alice/report.pdf", completedAt.Add(time.Minute), "02", 200)
	sameTimeHigherSeq := uploadEvent("alice/report.pdf", completedAt.Add(time.Minute), "03", 300)

	orders := [][]domain.UploadEvent{
		{older, newer, sameTimeHigherSeq},
		{sameTimeHigherSeq, newer, older},
		{newer, sameTimeHigherSeq, older},
	}
	for _, order := range orders {
		store := repository.NewMemory()
		ix := newIndexer(store, nil, 0)
		for _, event := range order {
			require.Equal(t, mq.Ack, ix.Handle(context.Background(), delivery(t, event)))
		}
		rec, err := store.Get(context.Background(), "alice/report.pdf")
		require.NoError(t, err)
		assert.Equal(t, int64(300), rec.SizeBytes)
		assert.Equal(t, domain.NormalizeSequencer("03"), rec.Sequencer)
	}
}

func TestConcurrentDeliveriesForDifferentKeys(t *testing.T) {
	store := repository.NewMemory()
	ix := newIndexer(store, nil, 0)

	var wg sync.WaitGroup
	for _, key := range []string{"alice/a", "alice/b", "bob/c", "bob/d", "carol/e"} {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				ix.Handle(context.Background(), delivery(t, uploadEvent(key, completedAt, "01", 1)))
			}(key)
		}
	}
	wg.Wait()
	assert.Equal(t, 5, store.Len())
}

func TestMalformedEventsAreDeadLettered(t *testing.T) {
	store := repository.NewMemory()
	ix := newIndexer(store, nil, 0)

	tests := map[string][]byte{
		"not json":         []byte("{"),
		"no owner":         mustJSON(t, uploadEvent("report.pdf", completedAt, "01", 1)),
		"negative size":    mustJSON(t, uploadEvent("alice/a", completedAt, "01", -1)),
		"no completion":    mustJSON(t, uploadEvent("alice/a", time.Time{}, "01", 1)),
		"traversal in key": mustJSON(t, uploadEvent("alice/../bob/x", completedAt, "01", 1)),
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, mq.DeadLetter, ix.Handle(context.Background(), mq.Delivery{MessageID: "m", Body: body}))
		})
	}
	assert.Zero(t, store.Len())
}

func TestStoreFailuresRetryThenDeadLetter(t *testing.T) {
	store := &flakyStore{failures: 10, err: apperr.TransientDependencyFailure.New("table throttled"), inner: repository.NewMemory()}
	ix := newIndexer(store, newTracker(t), 3)
	d := delivery(t, uploadEvent("alice/report.pdf", completedAt, "01", 1))

	assert.Equal(t, mq.Retry, ix.Handle(context.Background(), d))
	assert.Equal(t, mq.Retry, ix.Handle(context.Background(), d))
	assert.Equal(t, mq.DeadLetter, ix.Handle(context.Background(), d))
}

func TestStoreRecoversBeforeBound(t *testing.T) {
	store := &flakyStore{failures: 1, err: errors.New("connection reset"), inner: repository.NewMemory()}
	ix := newIndexer(store, newTracker(t), 3)
	d := delivery(t, uploadEvent("alice/report.pdf", completedAt, "01", 1))

	assert.Equal(t, mq.Retry, ix.Handle(context.Background(), d))
	assert.Equal(t, mq.Ack, ix.Handle(context.Background(), d))
	assert.Equal(t, 1, store.inner.Len())
}

func TestTrackerOutageCountsAsFirstAttempt(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tracker := cache.NewDeliveryTracker(client, "test", time.Hour)
	mr.Close()

	store := &flakyStore{failures: 100, err: errors.New("down"), inner: repository.NewMemory()}
	ix := newIndexer(store, tracker, 2)
	d := delivery(t, uploadEvent("alice/report.pdf", completedAt, "01", 1))
	for i := 0; i < 3; i++ {
		assert.Equal(t, mq.Retry, ix.Handle(context.Background(), d))
	}
}

func TestNonRetryableStoreErrorIsDeadLettered(t *testing.T) {
	store := &flakyStore{failures: 1, err: apperr.InvalidInput.New("value too long"), inner: repository.NewMemory()}
	ix := newIndexer(store, nil, 5)
	d := delivery(t, uploadEvent("alice/report.pdf", completedAt, "01", 1))
	assert.Equal(t, mq.DeadLetter, ix.Handle(context.Background(), d))
}

func TestShutdownRequeuesWithoutSpendingAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &flakyStore{failures: 1, err: context.Canceled, inner: repository.NewMemory()}
	ix := newIndexer(store, nil, 1)
	assert.Equal(t, mq.Retry, ix.Handle(ctx, delivery(t, uploadEvent("alice/a", completedAt, "01", 1))))
}

func TestMissingMessageIDFallsBackToEventID(t *testing.T) {
	tracker := newTracker(t)
	store := repository.NewMemory()
	ix := newIndexer(store, tracker, 0)

	event := uploadEvent("alice/a", completedAt, "01", 1)
	d := delivery(t, event)
	d.MessageID = ""
	require.Equal(t, mq.Ack, ix.Handle(context.Background(), d))

	done, err := tracker.IsDone(context.Background(), event.MessageID())
	require.NoError(t, err)
	assert.True(t, done)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
