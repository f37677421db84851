package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// GormRecordRepository 是 RecordRepository 接口的 GORM 实现
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository 创建 GormRecordRepository 实例
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRecordRepository")
	}
	return &GormRecordRepository{db: db}
}

// Save 实现保存一条新的绘制记录
func (r *GormRecordRepository) Save(ctx context.Context, record *domain.DrawRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("gorm: save draw record (board %s, seq %d): %w", record.BoardID, record.Seq, err)
	}
	return nil
}

// LatestActive 实现获取最近一条 ACTIVE 记录（降序第一条）
func (r *GormRecordRepository) LatestActive(ctx context.Context, boardID string) (*domain.DrawRecord, error) {
	var record domain.DrawRecord
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND is_undo = ? AND is_archived = ?", boardID, false, false).
		Order("created_at DESC, seq DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("gorm: find latest active record for board %s: %w", boardID, err)
	}
	return &record, nil
}

// EarliestUndone 实现获取最早一条 UNDONE 记录（升序第一条）
func (r *GormRecordRepository) EarliestUndone(ctx context.Context, boardID string) (*domain.DrawRecord, error) {
	var record domain.DrawRecord
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND is_undo = ? AND is_archived = ?", boardID, true, false).
		Order("created_at ASC, seq ASC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("gorm: find earliest undone record for board %s: %w", boardID, err)
	}
	return &record, nil
}

// SetUndo 实现切换单条记录的撤销标记
func (r *GormRecordRepository) SetUndo(ctx context.Context, recordID uint, isUndo bool) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DrawRecord{}).
		Where("id = ?", recordID).
		Update("is_undo", isUndo)
	if result.Error != nil {
		return fmt.Errorf("gorm: set undo flag for record %d: %w", recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRecordNotFound
	}
	return nil
}

// ListActive 实现获取全部 ACTIVE 未归档记录（升序）
func (r *GormRecordRepository) ListActive(ctx context.Context, boardID string) ([]domain.DrawRecord, error) {
	var records []domain.DrawRecord
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND is_undo = ? AND is_archived = ?", boardID, false, false).
		Order("created_at ASC, seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list active records for board %s: %w", boardID, err)
	}
	return records, nil
}

// ListUndone 实现获取全部已撤销且未归档的记录（升序）
func (r *GormRecordRepository) ListUndone(ctx context.Context, boardID string) ([]domain.DrawRecord, error) {
	var records []domain.DrawRecord
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND is_undo = ? AND is_archived = ?", boardID, true, false).
		Order("created_at ASC, seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list undone records for board %s: %w", boardID, err)
	}
	return records, nil
}

// ListOldestNonArchived 实现获取最旧的 limit 条未归档记录（升序，无论撤销状态）
func (r *GormRecordRepository) ListOldestNonArchived(ctx context.Context, boardID string, limit int) ([]domain.DrawRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var records []domain.DrawRecord
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND is_archived = ?", boardID, false).
		Order("created_at ASC, seq ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list oldest non-archived records for board %s: %w", boardID, err)
	}
	return records, nil
}

// CountNonArchived 实现统计未归档记录数量
func (r *GormRecordRepository) CountNonArchived(ctx context.Context, boardID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.DrawRecord{}).
		Where("board_id = ? AND is_archived = ?", boardID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count non-archived records for board %s: %w", boardID, err)
	}
	return count, nil
}

// ArchiveRecords 实现批量设置归档标记
func (r *GormRecordRepository) ArchiveRecords(ctx context.Context, recordIDs []uint) error {
	if len(recordIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&domain.DrawRecord{}).
		Where("id IN ?", recordIDs).
		Update("is_archived", true).Error
	if err != nil {
		return fmt.Errorf("gorm: archive records (count %d): %w", len(recordIDs), err)
	}
	return nil
}

// ListArchivedSince 实现获取序号大于 sinceSeq 的已归档记录（升序）
func (r *GormRecordRepository) ListArchivedSince(ctx context.Context, boardID string, sinceSeq uint64) ([]domain.DrawRecord, error) {
	var records []domain.DrawRecord
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND is_archived = ? AND seq > ?", boardID, true, sinceSeq).
		Order("created_at ASC, seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list archived records since seq %d for board %s: %w", sinceSeq, boardID, err)
	}
	return records, nil
}
