package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-process Backend whose lock honors ctx like the real ones.
type memBackend struct {
	sem chan struct{}

	mu       sync.Mutex
	data     []byte
	writes   int
	writeErr error
}

func newMemBackend() *memBackend {
	return &memBackend{sem: make(chan struct{}, 1)}
}

func (m *memBackend) Lock(ctx context.Context) (func() error, error) {
	select {
	case m.sem <- struct{}{}:
		return func() error { <-m.sem; return nil }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *memBackend) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...), nil
}

func (m *memBackend) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *memBackend) set(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = []byte(data)
}

func (m *memBackend) document(t *testing.T) Document {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var doc Document
	require.NoError(t, json.Unmarshal(m.data, &doc), "persisted document must stay well-formed")
	return doc
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(b Backend, capacity int, clock clockwork.Clock) (*Cache, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	c := New(b, Config{Capacity: capacity, LockTimeout: 50 * time.Millisecond}, clock, testLogger(), m)
	return c, m
}

func entryFor(i int) Entry {
	return Entry{Operation: "search_beach_by_name", Result: json.RawMessage(fmt.Sprintf(`{"i":%d}`, i))}
}

func TestCache_InsertEvictsBeyondCapacity(t *testing.T) {
	backend := newMemBackend()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	cache, m := newTestCache(backend, 20, clock)
	ctx := context.Background()

	for i := range 25 {
		require.NoError(t, cache.Insert(ctx, fmt.Sprintf("k%02d", i), entryFor(i)))
		clock.Advance(time.Second)
	}

	doc := backend.document(t)
	assert.Len(t, doc, 20)
	for i := range 5 {
		assert.NotContains(t, doc, fmt.Sprintf("k%02d", i))
	}
	for i := 5; i < 25; i++ {
		assert.Contains(t, doc, fmt.Sprintf("k%02d", i))
	}
	assert.InDelta(t, 5.0, testutil.ToFloat64(m.CacheEvictions), 0)
}

func TestCache_ReadProtectsFromEviction(t *testing.T) {
	backend := newMemBackend()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	cache, _ := newTestCache(backend, 20, clock)
	ctx := context.Background()

	for i := range 20 {
		require.NoError(t, cache.Insert(ctx, fmt.Sprintf("k%02d", i), entryFor(i)))
		clock.Advance(time.Second)
	}

	got, ok, err := cache.Get(ctx, "k00")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, clock.Now().UTC(), got.LastAccessed)
	clock.Advance(time.Second)

	require.NoError(t, cache.Insert(ctx, "k20", entryFor(20)))

	doc := backend.document(t)
	assert.Len(t, doc, 20)
	assert.Contains(t, doc, "k00")
	assert.NotContains(t, doc, "k01")
}

func TestCache_StalledClockKeepsNewestInsert(t *testing.T) {
	backend := newMemBackend()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	cache, _ := newTestCache(backend, 2, clock)
	ctx := context.Background()

	for _, k := range []string{"b", "c", "a"} {
		require.NoError(t, cache.Insert(ctx, k, entryFor(0)))
	}

	doc := backend.document(t)
	assert.ElementsMatch(t, []string{"a", "c"}, keysOf(doc))
}

func TestCache_StalledClockRefreshProtectsFromEviction(t *testing.T) {
	backend := newMemBackend()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	cache, _ := newTestCache(backend, 2, clock)
	ctx := context.Background()

	require.NoError(t, cache.Insert(ctx, "a", entryFor(1)))
	require.NoError(t, cache.Insert(ctx, "b", entryFor(2)))
	_, ok, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, cache.Insert(ctx, "c", entryFor(3)))

	assert.ElementsMatch(t, []string{"a", "c"}, keysOf(backend.document(t)))
}

func keysOf(doc Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	return keys
}

func TestCache_GetMiss(t *testing.T) {
	backend := newMemBackend()
	cache, m := newTestCache(backend, 20, clockwork.NewFakeClock())

	_, ok, err := cache.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, backend.writes, "a miss on a healthy store writes nothing")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")), 0)
}

func TestCache_GetRefreshPersists(t *testing.T) {
	backend := newMemBackend()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	cache, _ := newTestCache(backend, 20, clock)
	ctx := context.Background()

	require.NoError(t, cache.Insert(ctx, "k", entryFor(1)))
	clock.Advance(time.Hour)
	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, clock.Now().UTC(), backend.document(t)["k"].LastAccessed)
}

func TestCache_RecoversFromCorruption(t *testing.T) {
	for _, garbage := range []string{"{not json", "[1,2,3]", "null", `"text"`, "\x00\x01"} {
		t.Run(fmt.Sprintf("get %q", garbage), func(t *testing.T) {
			backend := newMemBackend()
			backend.set(garbage)
			cache, m := newTestCache(backend, 20, clockwork.NewFakeClock())

			_, ok, err := cache.Get(context.Background(), "k")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, backend.document(t))
			assert.InDelta(t, 1.0, testutil.ToFloat64(m.CacheResets), 0)
		})

		t.Run(fmt.Sprintf("insert %q", garbage), func(t *testing.T) {
			backend := newMemBackend()
			backend.set(garbage)
			cache, _ := newTestCache(backend, 20, clockwork.NewFakeClock())

			require.NoError(t, cache.Insert(context.Background(), "k", entryFor(1)))
			doc := backend.document(t)
			assert.Len(t, doc, 1)
			assert.Contains(t, doc, "k")
		})
	}
}

func TestCache_LockTimeout(t *testing.T) {
	backend := newMemBackend()
	cache, m := newTestCache(backend, 20, clockwork.NewFakeClock())

	unlock, err := backend.Lock(context.Background())
	require.NoError(t, err)

	_, _, err = cache.Get(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CacheLockTimeout), 0)

	err = cache.Insert(context.Background(), "k", entryFor(1))
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	require.NoError(t, unlock())
	require.NoError(t, cache.Insert(context.Background(), "k", entryFor(1)))
}

func TestCache_CallerCancellationIsNotLockTimeout(t *testing.T) {
	backend := newMemBackend()
	cache, _ := newTestCache(backend, 20, clockwork.NewFakeClock())

	unlock, err := backend.Lock(context.Background())
	require.NoError(t, err)
	defer unlock() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = cache.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrLockTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache_WriteFailureReleasesLock(t *testing.T) {
	backend := newMemBackend()
	backend.writeErr = errors.New("disk full")
	cache, _ := newTestCache(backend, 20, clockwork.NewFakeClock())

	err := cache.Insert(context.Background(), "k", entryFor(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	unlock, err := backend.Lock(ctx)
	require.NoError(t, err, "lock must be free after a failed write")
	require.NoError(t, unlock())
}

func TestRemember(t *testing.T) {
	backend := newMemBackend()
	cache, _ := newTestCache(backend, 20, clockwork.NewFakeClock())
	ctx := context.Background()
	q := NewQuery("search_beach_by_location", Float("latitude", 36.85), Float("longitude", -75.98), Int("start", 0), Int("stop", 10))

	calls := 0
	compute := func(context.Context) (domain.SearchResult, error) {
		calls++
		return domain.SearchResult{Order: []string{"a"}, Result: map[string]domain.BeachInfo{"a": {Name: "A"}}}, nil
	}

	first, err := Remember(ctx, cache, q, compute)
	require.NoError(t, err)
	second, err := Remember(ctx, cache, q, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Order, second.Order)
	assert.Equal(t, "A", second.Result["a"].Name)

	stored := backend.document(t)[q.Key()]
	require.NotNil(t, stored)
	assert.Equal(t, "search_beach_by_location", stored.Operation)
	assert.InDelta(t, 36.85, stored.Params["latitude"], 1e-9)
	assert.InDelta(t, 10.0, stored.Params["stop"], 0)
}

func TestRemember_ErrorsAreNotCached(t *testing.T) {
	backend := newMemBackend()
	cache, _ := newTestCache(backend, 20, clockwork.NewFakeClock())
	q := NewQuery("search_beach_by_name", String("name", "Sandbridge"))

	_, err := Remember(context.Background(), cache, q, func(context.Context) (int, error) {
		return 0, errors.New("upstream down")
	})
	require.Error(t, err)

	n, err := cache.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_ConcurrentInsertsAreSerialized(t *testing.T) {
	backend := newMemBackend()
	cache := New(backend, Config{Capacity: 1000, LockTimeout: 5 * time.Second}, clockwork.NewRealClock(), testLogger(), observability.NewMetricsForTesting())

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				assert.NoError(t, cache.Insert(context.Background(), fmt.Sprintf("w%d-%d", w, i), entryFor(i)))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, backend.document(t), 200)
}
