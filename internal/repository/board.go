package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// BoardRepository 定义了画板元数据与合成图像的存储和检索操作。
type BoardRepository interface {
	// Get 根据频道与画板 ID 查找画板。
	// 不存在时返回 ErrBoardNotFound。
	Get(ctx context.Context, channelID, boardID string) (*domain.Board, error)

	// Add 在指定频道内创建一个新画板并返回。
	Add(ctx context.Context, channelID, boardID string) (*domain.Board, error)

	// LatestBoardID 返回频道内最近创建的画板 ID。
	// 频道内没有画板时返回 ErrBoardNotFound。
	LatestBoardID(ctx context.Context, channelID string) (string, error)

	// UpdateBaseImage 用新的基底图原子替换旧图，并推进折叠水位线。
	// 基底图只替换，绝不原地合并。
	UpdateBaseImage(ctx context.Context, channelID, boardID string, image []byte, foldedSeq uint64) error

	// UpdatePreviewImage 替换画板的预览图。
	UpdatePreviewImage(ctx context.Context, channelID, boardID string, image []byte) error
}
