package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// StreamRepository 定义了实时流缓冲区：按 (channelId, boardId, sessionId)
// 分键、只追加、有长度上限和滑动过期窗口的未提交线段列表。
// 通常由 Redis 列表实现。
type StreamRepository interface {
	// Append 追加一条线段。热路径，O(1)，不得阻塞在持久化上。
	// 每次追加都刷新该键的过期窗口（滑动 TTL）。
	// 缓冲区已满时返回 ErrStreamLimitExceeded 而非静默截断，
	// 调用方必须完结记录并调用 Reset。
	Append(ctx context.Context, channelID, boardID, sessionID string, segment domain.StrokeSegment) error

	// Drain 按插入顺序返回全部线段。不删除数据：上层是至多一次投递语义，
	// 显式调用 Reset 才会清空缓冲区。
	Drain(ctx context.Context, channelID, boardID, sessionID string) ([]domain.StrokeSegment, error)

	// Reset 清空指定键的缓冲区。
	Reset(ctx context.Context, channelID, boardID, sessionID string) error
}
