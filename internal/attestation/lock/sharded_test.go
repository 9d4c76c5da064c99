package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/pkg/platform/sentinel"
)

func TestSharded_SerializesSameKey(t *testing.T) {
	l := NewSharded()
	ctx := context.Background()
	key := "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, key)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestSharded_HonorsContext(t *testing.T) {
	l := NewSharded()
	key := "0xabc"

	release, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, sentinel.ErrLockTimeout)
}

func TestSharded_ReleaseIsIdempotent(t *testing.T) {
	l := NewSharded()
	key := "0xabc"

	release, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := l.Lock(ctx, key)
	require.NoError(t, err)
	second()

	// the double release above must not have freed a slot for a third holder
	third, err := l.Lock(ctx, key)
	require.NoError(t, err)
	defer third()
	blocked, cancelBlocked := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelBlocked()
	_, err = l.Lock(blocked, key)
	assert.ErrorIs(t, err, sentinel.ErrLockTimeout)
}
