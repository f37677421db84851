package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-whiteboard/internal/codec"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// RedisStreamRepository 是 StreamRepository 接口的 Redis 实现。
// 每个 (channelId, boardId, sessionId) 对应一个 Redis 列表，
// 列表元素是紧凑线格式编码的线段。
type RedisStreamRepository struct {
	client    *redis.Client
	keyPrefix string
	// maxLen 是单个缓冲区允许的线段数上限（ACTIVE_DRAWS_LIMIT）
	maxLen int64
	// ttl 是滑动过期窗口（STREAM_EXPIRE_SECONDS），每次追加都会刷新
	ttl time.Duration
}

// NewRedisStreamRepository 创建 RedisStreamRepository 实例
func NewRedisStreamRepository(client *redis.Client, keyPrefix string, maxLen int, ttl time.Duration) *RedisStreamRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStreamRepository")
	}
	if maxLen <= 0 {
		panic("stream max length must be positive for RedisStreamRepository")
	}
	if ttl <= 0 {
		panic("stream ttl must be positive for RedisStreamRepository")
	}
	return &RedisStreamRepository{
		client:    client,
		keyPrefix: keyPrefix,
		maxLen:    int64(maxLen),
		ttl:       ttl,
	}
}

func (r *RedisStreamRepository) streamKey(channelID, boardID, sessionID string) string {
	return fmt.Sprintf("%sdraw:%s:%s:%s", r.keyPrefix, channelID, boardID, sessionID)
}

// Append 追加一条线段到缓冲区，并刷新滑动过期窗口。
// 缓冲区已达上限时返回 ErrStreamLimitExceeded，不截断已有数据。
func (r *RedisStreamRepository) Append(ctx context.Context, channelID, boardID, sessionID string, segment domain.StrokeSegment) error {
	key := r.streamKey(channelID, boardID, sessionID)

	// 先检查长度再追加。LLen 与 RPush 之间存在竞态窗口，
	// 但上限是软保护（客户端应远早于上限完结记录），轻微超出可接受。
	length, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis: failed to get stream length for key %s: %w", key, err)
	}
	if length >= r.maxLen {
		return repository.ErrStreamLimitExceeded
	}

	payload, err := codec.MarshalSegment(segment)
	if err != nil {
		return err
	}

	// Pipeline 执行 RPush + Expire，每次追加都刷新过期窗口（滑动 TTL）
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, string(payload))
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to append segment to stream %s: %w", key, err)
	}
	return nil
}

// Drain 按插入顺序返回缓冲区内全部线段，不删除数据。
func (r *RedisStreamRepository) Drain(ctx context.Context, channelID, boardID, sessionID string) ([]domain.StrokeSegment, error) {
	key := r.streamKey(channelID, boardID, sessionID)
	entries, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to drain stream %s: %w", key, err)
	}
	segments := make([]domain.StrokeSegment, 0, len(entries))
	for _, entry := range entries {
		seg, err := codec.UnmarshalSegment([]byte(entry))
		if err != nil {
			return nil, fmt.Errorf("redis: corrupt segment in stream %s: %w", key, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// Reset 清空指定键的缓冲区。
func (r *RedisStreamRepository) Reset(ctx context.Context, channelID, boardID, sessionID string) error {
	key := r.streamKey(channelID, boardID, sessionID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to reset stream %s: %w", key, err)
	}
	return nil
}
