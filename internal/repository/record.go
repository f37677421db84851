package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// RecordRepository 定义了绘制记录（记录日志）的存储和查询。
// 记录的排序一律以 (created_at, seq) 为键，seq 作为次级排序键
// 消除粗粒度时钟下并发写入的同时间戳歧义。
type RecordRepository interface {
	// Save 保存一条新记录到持久化存储。
	Save(ctx context.Context, record *domain.DrawRecord) error

	// LatestActive 获取指定画板上按 (created_at, seq) 降序排列的
	// 最近一条 ACTIVE（未撤销、未归档）记录。
	// 不存在时返回 ErrRecordNotFound。
	LatestActive(ctx context.Context, boardID string) (*domain.DrawRecord, error)

	// EarliestUndone 获取指定画板上按 (created_at, seq) 升序排列的
	// 最早一条 UNDONE（已撤销、未归档）记录。
	// 不存在时返回 ErrRecordNotFound。
	EarliestUndone(ctx context.Context, boardID string) (*domain.DrawRecord, error)

	// SetUndo 切换单条记录的撤销标记。
	SetUndo(ctx context.Context, recordID uint, isUndo bool) error

	// ListActive 获取指定画板上全部 ACTIVE 未归档记录，升序排列。
	// 这是客户端重放画布状态所需的记录集合。
	ListActive(ctx context.Context, boardID string) ([]domain.DrawRecord, error)

	// ListUndone 获取指定画板上全部已撤销且未归档的记录，升序排列。
	ListUndone(ctx context.Context, boardID string) ([]domain.DrawRecord, error)

	// ListOldestNonArchived 获取指定画板上最旧的 limit 条未归档记录
	// （无论撤销状态），升序排列。用于归档溢出。
	ListOldestNonArchived(ctx context.Context, boardID string, limit int) ([]domain.DrawRecord, error)

	// CountNonArchived 统计指定画板上未归档记录的数量。
	CountNonArchived(ctx context.Context, boardID string) (int64, error)

	// ArchiveRecords 批量设置记录的归档标记。记录从不被删除，
	// 其视觉效果由重新生成任务折叠进基底图。
	ArchiveRecords(ctx context.Context, recordIDs []uint) error

	// ListArchivedSince 获取指定画板上序号大于 sinceSeq 的已归档记录，
	// 升序排列。重新生成任务用它取得尚未折叠进基底图的增量。
	ListArchivedSince(ctx context.Context, boardID string, sinceSeq uint64) ([]domain.DrawRecord, error)
}
