package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// 编译期检查接口实现
var _ repository.StateRepository = (*RedisStateRepository)(nil)

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) boardSeqKey(boardID string) string {
	return fmt.Sprintf("%sboard:%s:seq", r.keyPrefix, boardID)
}

func (r *RedisStateRepository) channelPubSubKey(channelID string) string {
	return fmt.Sprintf("%schannel:%s", r.keyPrefix, channelID)
}

func (r *RedisStateRepository) boardPreviewPubSubKey(channelID, boardID string) string {
	return fmt.Sprintf("%sboard-preview:%s%s", r.keyPrefix, channelID, boardID)
}

// previewEvent 是预览更新事件的发布载荷
type previewEvent struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId"`
	BoardID   string `json:"boardId"`
	UpdatedAt int64  `json:"updatedAt"`
}

// NextSeq 原子地分配指定画板的下一个记录序号。
func (r *RedisStateRepository) NextSeq(ctx context.Context, boardID string) (uint64, error) {
	key := r.boardSeqKey(boardID)
	seq, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to allocate next seq for board %s on key %s: %w", boardID, key, err)
	}
	return uint64(seq), nil
}

// PublishPreviewUpdated 将预览更新事件发布到频道与画板预览两个频道键。
func (r *RedisStateRepository) PublishPreviewUpdated(ctx context.Context, channelID, boardID string) error {
	return r.publishBoardEvent(ctx, "preview-updated", channelID, boardID)
}

// PublishRecordSaved 将记录保存事件发布到频道。
func (r *RedisStateRepository) PublishRecordSaved(ctx context.Context, channelID, boardID string) error {
	return r.publishBoardEvent(ctx, "record-saved", channelID, boardID)
}

func (r *RedisStateRepository) publishBoardEvent(ctx context.Context, eventType, channelID, boardID string) error {
	event := previewEvent{
		Type:      eventType,
		ChannelID: channelID,
		BoardID:   boardID,
		UpdatedAt: time.Now().UTC().UnixMilli(),
	}
	payloadBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal %s event for board %s/%s: %w", eventType, channelID, boardID, err)
	}
	payload := string(payloadBytes)

	pipe := r.client.Pipeline()
	pipe.Publish(ctx, r.channelPubSubKey(channelID), payload)
	pipe.Publish(ctx, r.boardPreviewPubSubKey(channelID, boardID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel_id":   channelID,
			"board_id":     boardID,
			"event_type":   eventType,
			"payload_size": len(payload),
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish %s event for board %s/%s: %w", eventType, channelID, boardID, err)
	}
	return nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	// 使用 Pipeline 减少网络往返
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	return count > int64(limit), nil
}
