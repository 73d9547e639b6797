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

	"github.com/tarancss/chainquery/lib/fault"
)

func TestGetOrPopulateCoalesces(t *testing.T) {
	c := New[string, []string]("test", time.Minute)

	var calls atomic.Int32

	release := make(chan struct{})
	compute := func(context.Context) ([]string, error) {
		calls.Add(1)
		<-release

		return []string{"a", "b"}, nil
	}

	const callers = 50

	var wg sync.WaitGroup

	results := make([][]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrPopulate(context.Background(), "k", compute)
		}(i)
	}

	// let every caller reach the in-flight population before it completes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"a", "b"}, results[i])
	}

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestGetOrPopulateFailureIsNotStored(t *testing.T) {
	c := New[string, int]("test", time.Minute)
	boom := errors.New("store unavailable")

	var calls atomic.Int32

	release := make(chan struct{})
	failing := func(context.Context) (int, error) {
		calls.Add(1)
		<-release

		return 0, boom
	}

	var wg sync.WaitGroup

	errs := make([]error, 10)

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrPopulate(context.Background(), "k", failing)
		}(i)
	}

	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
		assert.True(t, fault.Is(err, fault.CachePopulation))
	}

	_, ok := c.Get("k")
	assert.False(t, ok)

	// the next access retries
	v, err := c.GetOrPopulate(context.Background(), "k", func(context.Context) (int, error) {
		calls.Add(1)

		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExpiredEntryRepopulatesOnce(t *testing.T) {
	c := New[string, int]("test", 40*time.Millisecond)

	var calls atomic.Int32

	compute := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	v, err := c.GetOrPopulate(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.GetOrPopulate(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "served from cache before expiry")

	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "expired value must not be returned")

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := c.GetOrPopulate(context.Background(), "k", compute)
			assert.NoError(t, err)
			assert.Equal(t, 2, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
}

func TestWaiterCancellationDoesNotAbortPopulation(t *testing.T) {
	c := New[string, string]("test", time.Minute)
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		_, err := c.GetOrPopulate(ctx, "k", func(ctx context.Context) (string, error) {
			<-release

			return "v", ctx.Err()
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)

	require.Eventually(t, func() bool {
		v, ok := c.Get("k")

		return ok && v == "v"
	}, time.Second, 5*time.Millisecond)
}

func put(t *testing.T, c *Cache[string, int], key string, v int) {
	t.Helper()

	_, err := c.GetOrPopulate(context.Background(), key, func(context.Context) (int, error) { return v, nil })
	require.NoError(t, err)
}

func TestInvalidateAndSnapshot(t *testing.T) {
	c := New[string, int]("test", 0)

	put(t, c, "a", 1)
	put(t, c, "b", 2)

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 1, snap["a"].Value)
	assert.Equal(t, "a", snap["a"].Key)
	assert.False(t, snap["a"].CachedAt.IsZero())
	assert.Zero(t, snap["a"].TTL)

	c.Invalidate("a")
	c.Invalidate("b")
	put(t, c, "b", 3)

	// the earlier snapshot is unaffected
	assert.Equal(t, 2, snap["b"].Value)
	assert.Len(t, snap, 2)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestInvalidateDuringPopulation(t *testing.T) {
	c := New[string, string]("test", 0)
	started, release := make(chan struct{}), make(chan struct{})

	done := make(chan string)
	go func() {
		v, _ := c.GetOrPopulate(context.Background(), "k", func(context.Context) (string, error) {
			close(started)
			<-release

			return "stale", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate("k")
	close(release)

	// the waiting caller still gets the value, but it is not kept
	assert.Equal(t, "stale", <-done)
	_, ok := c.Get("k")
	assert.False(t, ok)

	v, err := c.GetOrPopulate(context.Background(), "k", func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	v, ok = c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}
