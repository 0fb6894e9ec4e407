package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/schoolhub/internal/config"
)

type testStruct struct {
	Plan   string
	Active bool
}

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.RedisConnection{AddressRedis: mr.Addr()}

	cache, err := InitServer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	expected := testStruct{Plan: "student_premium", Active: true}
	require.NoError(t, cache.Set(ctx, SubscriptionUserKey("u1"), expected, time.Minute))

	var actual testStruct
	found, err := cache.Get(ctx, SubscriptionUserKey("u1"), &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, expected, actual)
}

func TestGetNotFound(t *testing.T) {
	cache, _ := setupTestCache(t)

	var out testStruct
	found, err := cache.Get(context.Background(), "no_such_key", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetCorruptedValue(t *testing.T) {
	cache, mr := setupTestCache(t)
	require.NoError(t, mr.Set("broken", "{not json"))

	var out testStruct
	found, err := cache.Get(context.Background(), "broken", &out)
	require.Error(t, err)
	assert.False(t, found)
}

func TestExpiration(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "temp", testStruct{Plan: "free"}, time.Second))
	mr.FastForward(2 * time.Second)

	var out testStruct
	found, err := cache.Get(ctx, "temp", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, SubscriptionUserKey("u1"), testStruct{}, time.Minute))
	require.NoError(t, cache.Set(ctx, SubscriptionTenantKey("t1"), testStruct{}, time.Minute))

	require.NoError(t, cache.Invalidate(ctx, SubscriptionUserKey("u1"), SubscriptionTenantKey("t1")))
	assert.False(t, mr.Exists("subscription:user:u1"))
	assert.False(t, mr.Exists("subscription:tenant:t1"))

	require.NoError(t, cache.Invalidate(ctx))
}

func TestInitServer_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := InitServer(ctx, config.RedisConnection{AddressRedis: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.InitServer")
}
