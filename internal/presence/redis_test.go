package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestRedisRepository_CheckOutOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRedisRepository(redisClient(t))
	user := "test-" + uuid.NewString()

	applied, err := repo.CheckOut(ctx, user, "2026-03-01", "10:00")
	require.NoError(t, err)
	assert.False(t, applied, "no check-in yet")

	require.NoError(t, repo.SetStatus(ctx, user, "online", 1))
	require.NoError(t, repo.CheckIn(ctx, user, "2026-03-01", "09:00"))
	require.NoError(t, repo.CheckIn(ctx, user, "2026-03-01", "09:30"))

	applied, err = repo.CheckOut(ctx, user, "2026-03-01", "17:00")
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repo.CheckOut(ctx, user, "2026-03-01", "18:00")
	require.NoError(t, err)
	assert.False(t, applied)

	p, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "online", p.Status)
	assert.Equal(t, int64(1), p.LastSeen)
	require.Len(t, p.Attendance, 1)
	assert.Equal(t, "09:00", p.Attendance[0].In)
	assert.Equal(t, "17:00", p.Attendance[0].Out)
}
