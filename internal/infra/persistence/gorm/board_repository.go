package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// GormBoardRepository 是 BoardRepository 接口的 GORM 实现
type GormBoardRepository struct {
	db *gorm.DB
}

// NewGormBoardRepository 创建 GormBoardRepository 实例
func NewGormBoardRepository(db *gorm.DB) *GormBoardRepository {
	if db == nil {
		panic("database connection cannot be nil for GormBoardRepository")
	}
	return &GormBoardRepository{db: db}
}

// Get 实现根据频道与画板 ID 查找画板
func (r *GormBoardRepository) Get(ctx context.Context, channelID, boardID string) (*domain.Board, error) {
	var board domain.Board
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND board_id = ?", channelID, boardID).
		First(&board).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrBoardNotFound
		}
		return nil, fmt.Errorf("gorm: find board %s/%s: %w", channelID, boardID, err)
	}
	return &board, nil
}

// Add 实现在频道内创建新画板
func (r *GormBoardRepository) Add(ctx context.Context, channelID, boardID string) (*domain.Board, error) {
	board := &domain.Board{
		ChannelID: channelID,
		BoardID:   boardID,
	}
	if err := r.db.WithContext(ctx).Create(board).Error; err != nil {
		return nil, fmt.Errorf("gorm: create board %s/%s: %w", channelID, boardID, err)
	}
	return board, nil
}

// LatestBoardID 实现返回频道内最近创建的画板 ID
func (r *GormBoardRepository) LatestBoardID(ctx context.Context, channelID string) (string, error) {
	var board domain.Board
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC, id DESC").
		First(&board).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", repository.ErrBoardNotFound
		}
		return "", fmt.Errorf("gorm: find latest board for channel %s: %w", channelID, err)
	}
	return board.BoardID, nil
}

// UpdateBaseImage 实现原子替换基底图并推进折叠水位线。
// 条件带上 folded_seq 防止并发任务回退水位线。
func (r *GormBoardRepository) UpdateBaseImage(ctx context.Context, channelID, boardID string, image []byte, foldedSeq uint64) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Board{}).
		Where("channel_id = ? AND board_id = ? AND folded_seq < ?", channelID, boardID, foldedSeq).
		Updates(map[string]interface{}{
			"base_image": image,
			"folded_seq": foldedSeq,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: update base image for board %s/%s: %w", channelID, boardID, result.Error)
	}
	// RowsAffected == 0 说明画板不存在或另一个任务已折叠到更高水位线，
	// 两种情况都按未找到处理，由调用方决定是否忽略。
	if result.RowsAffected == 0 {
		return repository.ErrBoardNotFound
	}
	return nil
}

// UpdatePreviewImage 实现替换画板的预览图
func (r *GormBoardRepository) UpdatePreviewImage(ctx context.Context, channelID, boardID string, image []byte) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Board{}).
		Where("channel_id = ? AND board_id = ?", channelID, boardID).
		Update("preview_image", image)
	if result.Error != nil {
		return fmt.Errorf("gorm: update preview image for board %s/%s: %w", channelID, boardID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrBoardNotFound
	}
	return nil
}
