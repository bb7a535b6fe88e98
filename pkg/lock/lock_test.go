package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryAcquire(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, "AAPL", time.Second)
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "AAPL", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.TryAcquire(ctx, "MSFT", time.Second)
	require.NoError(t, err, "keys are independent")
	other()

	release()
	release() // second release is harmless

	again, err := l.TryAcquire(ctx, "AAPL", time.Second)
	require.NoError(t, err)
	again()
}

func TestLocal_AcquireHonoursContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, "k", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "XYZ", 0)
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func TestLocal_ReleasedKeysAreForgotten(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	for _, symbol := range []string{"AAPL", "MSFT", "XYZ"} {
		release, err := l.Acquire(ctx, symbol, 0)
		require.NoError(t, err)
		release()
	}
	assert.Equal(t, 0, l.size())

	held, err := l.TryAcquire(ctx, "AAPL", 0)
	require.NoError(t, err)
	_, err = l.TryAcquire(ctx, "AAPL", 0)
	require.ErrorIs(t, err, ErrNotAcquired)

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(timeout, "AAPL", 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.size(), "the holder keeps its slot")

	held()
	held()
	assert.Equal(t, 0, l.size())
}

func TestLocal_WaiterInheritsSlot(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	first, err := l.Acquire(ctx, "XYZ", 0)
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		release, err := l.Acquire(ctx, "XYZ", 0)
		if err == nil {
			acquired <- release
		}
	}()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.slots["XYZ"] != nil && l.slots["XYZ"].refs == 2
	}, time.Second, time.Millisecond)

	first()
	second := <-acquired
	_, err = l.TryAcquire(ctx, "XYZ", 0)
	assert.ErrorIs(t, err, ErrNotAcquired, "the waiter holds the key after the first release")

	second()
	assert.Equal(t, 0, l.size())
}

func TestLockersImplementInterface(t *testing.T) {
	var _ Locker = (*Local)(nil)
	var _ Locker = (*Redis)(nil)
}
