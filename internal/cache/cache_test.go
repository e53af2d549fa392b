package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovarich86/calculadora-cidada/internal/metrics"
	"github.com/tovarich86/calculadora-cidada/internal/provider"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
	"go.uber.org/zap"
)

type countingProvider struct {
	calls   atomic.Int32
	points  []series.RawPoint
	err     error
	release chan struct{}
}

func (p *countingProvider) FetchRawSeries(ctx context.Context) ([]series.RawPoint, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if p.err != nil {
		return nil, &provider.UnavailableError{Provider: p.Name(), Err: p.err}
	}
	return append([]series.RawPoint(nil), p.points...), nil
}

func (p *countingProvider) Name() string { return "counting" }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingStore struct{}

func (failingStore) Load(ctx context.Context) (Entry, bool, error) {
	return Entry{}, false, errors.New("store down")
}

func (failingStore) Save(ctx context.Context, entry Entry, ttl time.Duration) error {
	return errors.New("store down")
}

func (failingStore) Clear(ctx context.Context) error { return errors.New("store down") }

func rawPoints() []series.RawPoint {
	return []series.RawPoint{
		{Code: "202212", Value: "100.00"},
		{Code: "202301", Value: "101.06"},
		{Code: "202302", Value: "101.90"},
	}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func TestGetCachesWithinTTL(t *testing.T) {
	p := &countingProvider{points: rawPoints()}
	clock := newClock()
	c := New(zap.NewNop(), p, WithTTL(time.Hour), WithClock(clock.Now), WithMetrics(metrics.New()))

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	clock.Advance(59 * time.Minute)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.calls.Load())

	loadedAt, ok := c.LoadedAt()
	assert.True(t, ok)
	assert.Equal(t, newClock().Now(), loadedAt)
}

func TestGetReloadsAfterTTL(t *testing.T) {
	p := &countingProvider{points: rawPoints()}
	clock := newClock()
	c := New(zap.NewNop(), p, WithTTL(time.Hour), WithClock(clock.Now))

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestInvalidateUsesStoreWhileFresh(t *testing.T) {
	p := &countingProvider{points: rawPoints()}
	clock := newClock()
	c := New(zap.NewNop(), p, WithTTL(time.Hour), WithClock(clock.Now))

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	c.Invalidate()
	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, int32(1), p.calls.Load(), "a fresh stored entry avoids a provider fetch")
}

func TestRefreshBypassesStore(t *testing.T) {
	p := &countingProvider{points: rawPoints()}
	c := New(zap.NewNop(), p)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	p.points = append(p.points, series.RawPoint{Code: "202303", Value: "102.31"})
	s, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestFailedRefreshKeepsSnapshot(t *testing.T) {
	p := &countingProvider{points: rawPoints()}
	clock := newClock()
	c := New(zap.NewNop(), p, WithClock(clock.Now))

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	p.err = errors.New("connection refused")
	_, err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, provider.ErrUnavailable)

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, int32(2), p.calls.Load(), "Get after a failed refresh is served from the snapshot")

	c.Invalidate()
	s, err = c.Get(context.Background())
	require.NoError(t, err, "the stored rows survive a failed refresh")
	assert.Equal(t, 3, s.Len())
}

func TestOlderLoadDoesNotReplaceNewerSnapshot(t *testing.T) {
	clock := newClock()
	c := New(zap.NewNop(), &countingProvider{}, WithClock(clock.Now))

	newer, err := series.Normalize(rawPoints())
	require.NoError(t, err)
	older, err := series.Normalize(rawPoints()[:1])
	require.NoError(t, err)
	loadedAt := clock.Now()

	assert.Equal(t, 3, c.set(newer, loadedAt).Len())
	assert.Equal(t, 3, c.set(older, loadedAt.Add(-time.Minute)).Len())

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	got, _ := c.LoadedAt()
	assert.Equal(t, loadedAt, got)
}

func TestMalformedStoreEntryIsCleared(t *testing.T) {
	clock := newClock()
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Entry{
		FetchedAt: clock.Now(),
		Points:    []series.RawPoint{{Code: "202313", Value: "1"}},
	}, time.Hour))

	p := &countingProvider{points: rawPoints()}
	c := New(zap.NewNop(), p, WithStore(store), WithClock(clock.Now))

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	entry, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, entry.Points, 3, "the provider rows replace the malformed entry")
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	p := &countingProvider{points: rawPoints(), release: make(chan struct{})}
	c := New(zap.NewNop(), p)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background())
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestProviderFailureIsReported(t *testing.T) {
	p := &countingProvider{err: errors.New("connection refused")}
	c := New(zap.NewNop(), p)

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUnavailable)

	_, ok := c.LoadedAt()
	assert.False(t, ok)
}

func TestMalformedProviderDataIsReported(t *testing.T) {
	p := &countingProvider{points: []series.RawPoint{{Code: "202313", Value: "1"}}}
	c := New(zap.NewNop(), p)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, series.ErrMalformedPeriod)
}

func TestStoreFailureFallsBackToProvider(t *testing.T) {
	p := &countingProvider{points: rawPoints()}
	c := New(zap.NewNop(), p, WithStore(failingStore{}))

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	s, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
}

func TestStaleStoreEntryIsIgnored(t *testing.T) {
	clock := newClock()
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Entry{
		FetchedAt: clock.Now().Add(-48 * time.Hour),
		Points:    []series.RawPoint{{Code: "202001", Value: "1"}},
	}, time.Hour))

	p := &countingProvider{points: rawPoints()}
	c := New(zap.NewNop(), p, WithStore(store), WithClock(clock.Now), WithTTL(24*time.Hour))

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, int32(1), p.calls.Load())
}
