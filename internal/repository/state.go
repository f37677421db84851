package repository

import (
	"context"
	"time"
)

// StateRepository 定义了与实时状态相关的辅助操作，由 Redis 实现。
type StateRepository interface {
	// NextSeq 原子地分配指定画板的下一个记录序号。
	NextSeq(ctx context.Context, boardID string) (uint64, error)

	// PublishPreviewUpdated 将 "预览已更新" 事件发布到频道的订阅者集合。
	// 发布到 "channel:{channelId}" 和 "board-preview:{channelId}{boardId}"
	// 两个键，载荷为 {channelId, boardId, updatedAt}。
	// 幂等且即发即忘：投递失败由调用方记录日志，不重试。
	PublishPreviewUpdated(ctx context.Context, channelID, boardID string) error

	// PublishRecordSaved 将 "记录已保存" 事件发布到频道。
	PublishRecordSaved(ctx context.Context, channelID, boardID string) error

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 表示超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
