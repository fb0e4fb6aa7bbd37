package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/policies"
	"stayhub/internal/infra/storage/memory"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	locker := memory.NewKeyedLocker(time.Second)
	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "booking:b-1")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
}

func TestKeyedLockerTimesOut(t *testing.T) {
	locker := memory.NewKeyedLocker(20 * time.Millisecond)
	release, err := locker.Acquire(context.Background(), "property:p-1")
	require.NoError(t, err)
	defer release()

	_, err = locker.Acquire(context.Background(), "property:p-1")
	assert.ErrorIs(t, err, policies.ErrLockTimeout)

	other, err := locker.Acquire(context.Background(), "property:p-2")
	require.NoError(t, err)
	other()
}

func TestKeyedLockerReleaseIsIdempotent(t *testing.T) {
	locker := memory.NewKeyedLocker(20 * time.Millisecond)
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()
	again, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
}
