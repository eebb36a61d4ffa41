//go:build !integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(newFakeClient())
	l.backoff = time.Millisecond
	key := UserLockKey(42)
	assert.Equal(t, "user_lock:42", key)

	token, ok, err := l.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, l.Unlock(ctx, key, "someone-else"))
	_, ok, _ = l.TryLock(ctx, key, time.Second)
	assert.False(t, ok, "unlock with a foreign token must not release")

	require.NoError(t, l.Unlock(ctx, key, token))
	_, ok, err = l.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	rl := NewRateLimiter(fc)
	key := UserActionKey(7, "start")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, fc.ttl[key])
}
