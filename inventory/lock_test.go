package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "part:W100")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Empty(t, k.slots, "idle keys are released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlockA, err := k.Lock(ctx, "part:A")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := k.Lock(ctx, "part:B")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancelIsConflict(t *testing.T) {
	// GIVEN: the key is held
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "part:W100")
	require.NoError(t, err)

	// WHEN: a second writer gives up waiting
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "part:W100")

	// THEN
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.True(t, IsRetryable(err))

	unlock()
	unlock()
	assert.Empty(t, k.slots)
}
