package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

type identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func TestGetSetDel(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var got identity
	found, err := c.Get(ctx, "auth:abc", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "auth:abc", identity{UserID: "u1", Email: "a@b.c"}, time.Minute))
	found, err = c.Get(ctx, "auth:abc", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "u1", got.UserID)

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "auth:abc", &got)
	require.NoError(t, err)
	assert.False(t, found, "entry should expire")

	require.NoError(t, c.Set(ctx, "k", 1, 0))
	require.NoError(t, c.Del(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestLock(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	unlock, err := c.Lock(ctx, "place:p1", time.Minute)
	require.NoError(t, err)

	_, err = c.Lock(ctx, "place:p1", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	unlock()
	assert.False(t, mr.Exists("lock:place:p1"))

	unlock2, err := c.Lock(ctx, "place:p1", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestLockExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.Lock(ctx, "place:p1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock, err := c.Lock(ctx, "place:p1", time.Second)
	require.NoError(t, err)
	unlock()
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	found, err := c.Get(ctx, "k", new(identity))
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Set(ctx, "k", 1, time.Second))
	assert.NoError(t, c.Ping(ctx))

	unlock, err := c.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	unlock()

	nc, err := New("")
	require.NoError(t, err)
	assert.Nil(t, nc)
}
