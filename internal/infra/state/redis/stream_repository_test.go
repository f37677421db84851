package redisstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

func newTestStreamRepo(t *testing.T, maxLen int, ttl time.Duration) (*RedisStreamRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStreamRepository(client, "wb:", maxLen, ttl), mr
}

func streamSegment(i int) domain.StrokeSegment {
	return domain.StrokeSegment{FromX: float64(i), FromY: float64(i), ToX: float64(i + 1), ToY: float64(i + 1)}
}

func TestRedisStreamRepository_AppendEnforcesLimit(t *testing.T) {
	// Arrange
	repo, _ := newTestStreamRepo(t, 3, time.Minute)
	ctx := context.Background()

	// Act: 填满缓冲区
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, "chan-1", "board-1", "sess-1", streamSegment(i)))
	}
	err := repo.Append(ctx, "chan-1", "board-1", "sess-1", streamSegment(3))

	// Assert: 第 N+1 次追加被拒绝，已有数据不被截断
	assert.ErrorIs(t, err, repository.ErrStreamLimitExceeded)
	segments, drainErr := repo.Drain(ctx, "chan-1", "board-1", "sess-1")
	require.NoError(t, drainErr)
	require.Len(t, segments, 3, "缓冲区长度必须保持在上限")
	for i, seg := range segments {
		assert.Equal(t, streamSegment(i), seg)
	}
}

func TestRedisStreamRepository_AppendRefreshesExpiration(t *testing.T) {
	repo, mr := newTestStreamRepo(t, 10, time.Minute)
	ctx := context.Background()
	key := "wb:draw:chan-1:board-1:sess-1"

	require.NoError(t, repo.Append(ctx, "chan-1", "board-1", "sess-1", streamSegment(0)))
	assert.Equal(t, time.Minute, mr.TTL(key))

	// 滑动窗口：时间过半后再追加，过期时间重新回到整个窗口
	mr.FastForward(30 * time.Second)
	require.NoError(t, repo.Append(ctx, "chan-1", "board-1", "sess-1", streamSegment(1)))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestRedisStreamRepository_DrainIsNonDestructive(t *testing.T) {
	repo, _ := newTestStreamRepo(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "chan-1", "board-1", "sess-1", streamSegment(0)))
	require.NoError(t, repo.Append(ctx, "chan-1", "board-1", "sess-1", streamSegment(1)))

	first, err := repo.Drain(ctx, "chan-1", "board-1", "sess-1")
	require.NoError(t, err)
	second, err := repo.Drain(ctx, "chan-1", "board-1", "sess-1")
	require.NoError(t, err)

	// Drain 不清空缓冲区，重复读取结果一致
	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
}

func TestRedisStreamRepository_ResetClearsBuffer(t *testing.T) {
	repo, mr := newTestStreamRepo(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "chan-1", "board-1", "sess-1", streamSegment(0)))
	require.NoError(t, repo.Reset(ctx, "chan-1", "board-1", "sess-1"))

	segments, err := repo.Drain(ctx, "chan-1", "board-1", "sess-1")
	require.NoError(t, err)
	assert.Empty(t, segments)
	assert.False(t, mr.Exists("wb:draw:chan-1:board-1:sess-1"))
}
