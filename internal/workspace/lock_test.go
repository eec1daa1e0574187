package workspace

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameName(t *testing.T) {
	locker := NewLocker(t.TempDir(), 5*time.Second)

	var (
		active  int32
		overlap int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "svc")
			if !assert.NoError(t, err) {
				return
			}
			if atomic.AddInt32(&active, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}

	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlap))
}

func TestLockAllowsDifferentNames(t *testing.T) {
	locker := NewLocker(t.TempDir(), time.Second)

	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlockB()
}

func TestLockTimesOut(t *testing.T) {
	locker := NewLocker(t.TempDir(), 150*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "svc")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), "svc")
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestLockExcludesOtherLockersOnSameRoot(t *testing.T) {
	root := t.TempDir()
	first := NewLocker(root, time.Second)
	second := NewLocker(root, 150*time.Millisecond)

	unlock, err := first.Lock(context.Background(), "svc")
	require.NoError(t, err)

	_, err = second.Lock(context.Background(), "svc")
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()

	unlockSecond, err := second.Lock(context.Background(), "svc")
	require.NoError(t, err)
	unlockSecond()
}

func TestLockRejectsUnsafeName(t *testing.T) {
	locker := NewLocker(t.TempDir(), time.Second)

	_, err := locker.Lock(context.Background(), "../svc")
	require.ErrorIs(t, err, ErrUnsafeName)
}
