package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/03aar/review-sub000/internal/domain"
)

func setupTestRedis(t *testing.T) (*CrisisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCrisisCache(client, 10*time.Minute), mr
}

func sampleState() *domain.CrisisState {
	triggered := time.Date(2024, 6, 15, 11, 0, 0, 0, time.UTC)
	return &domain.CrisisState{
		BusinessID:       "biz-1",
		Active:           true,
		NegativeCount24h: 9,
		BaselineDailyAvg: 1,
		Ratio:            9,
		TriggeredAt:      &triggered,
		EvaluatedAt:      triggered,
	}
}

func TestCrisisCache_SetAndGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, sampleState()))
	assert.True(t, mr.Exists("reputation:crisis:biz-1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("reputation:crisis:biz-1"))

	got, err := cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.InCrisis())
	assert.Equal(t, 9, got.NegativeCount24h)
	assert.True(t, sampleState().TriggeredAt.Equal(*got.TriggeredAt))
}

func TestCrisisCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), "biz-unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCrisisCache_Expiry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, sampleState()))
	mr.FastForward(11 * time.Minute)

	got, err := cache.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCrisisCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, sampleState()))
	require.NoError(t, cache.Delete(ctx, "biz-1"))
	assert.False(t, mr.Exists("reputation:crisis:biz-1"))
}

func TestCrisisCache_CorruptValue(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("reputation:crisis:biz-1", "{not json"))

	_, err := cache.Get(context.Background(), "biz-1")
	assert.Error(t, err)
}

func TestCrisisCache_Unavailable(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "biz-1")
	assert.Error(t, err)
}
