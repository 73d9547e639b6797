package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New("test", 3)

	var running, peak atomic.Int32

	tasks := make([]*Task[int], 0, 12)

	for i := 0; i < 12; i++ {
		i := i
		tasks = append(tasks, Submit(context.Background(), p, func(context.Context) (int, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)

			return i, nil
		}))
	}

	for i, task := range tasks {
		v, err := task.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, 0, p.Active())
}

func TestSubmitDoesNotBlockCaller(t *testing.T) {
	p := New("test", 1)
	release := make(chan struct{})

	first := Submit(context.Background(), p, func(context.Context) (struct{}, error) {
		<-release

		return struct{}{}, nil
	})

	start := time.Now()
	second := Submit(context.Background(), p, func(context.Context) (string, error) {
		return "ok", nil
	})
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	close(release)

	_, err := first.Wait(context.Background())
	require.NoError(t, err)

	v, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWaitAbandonedByContext(t *testing.T) {
	p := New("test", 1)
	release := make(chan struct{})

	task := Submit(context.Background(), p, func(context.Context) (int, error) {
		<-release

		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)

	v, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestRunPropagatesError(t *testing.T) {
	p := New("test", 2)
	boom := errors.New("boom")

	_, err := Run(context.Background(), p, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCloseWaitsAndRejects(t *testing.T) {
	p := New("test", 2)

	var finished atomic.Bool

	var wg sync.WaitGroup

	wg.Add(1)

	task := Submit(context.Background(), p, func(context.Context) (int, error) {
		wg.Done()
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)

		return 0, nil
	})
	wg.Wait()

	require.NoError(t, p.Close(context.Background()))
	assert.True(t, finished.Load())

	_, err := task.Wait(context.Background())
	require.NoError(t, err)

	_, err = Run(context.Background(), p, func(context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}
