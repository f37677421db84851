package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/render"
	"collaborative-whiteboard/internal/repository"
)

// BoardService 负责画板生命周期与交互式全图合成。
type BoardService struct {
	boardRepo  repository.BoardRepository
	recordRepo repository.RecordRepository
	pool       *render.Pool
}

// NewBoardService 创建 BoardService 实例。
func NewBoardService(boardRepo repository.BoardRepository, recordRepo repository.RecordRepository, pool *render.Pool) *BoardService {
	if boardRepo == nil || recordRepo == nil {
		panic("all repositories must be non-nil for BoardService")
	}
	if pool == nil {
		panic("render pool cannot be nil for BoardService")
	}
	return &BoardService{
		boardRepo:  boardRepo,
		recordRepo: recordRepo,
		pool:       pool,
	}
}

// Add 在频道内创建一个新画板，画板 ID 由服务端生成。
func (s *BoardService) Add(ctx context.Context, channelID string) (*domain.Board, error) {
	if channelID == "" {
		return nil, ErrInvalidRecord
	}
	boardID := uuid.NewString()
	board, err := s.boardRepo.Add(ctx, channelID, boardID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"channel_id": channelID, "board_id": boardID}).
			WithError(err).Error("Failed to create board")
		return nil, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"channel_id": channelID, "board_id": boardID}).Info("Board created")
	return board, nil
}

// Get 查找画板。
func (s *BoardService) Get(ctx context.Context, channelID, boardID string) (*domain.Board, error) {
	board, err := s.boardRepo.Get(ctx, channelID, boardID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return nil, ErrBoardNotFound
		}
		logrus.WithFields(logrus.Fields{"channel_id": channelID, "board_id": boardID}).
			WithError(err).Error("Failed to load board")
		return nil, ErrInternalServer
	}
	return board, nil
}

// LatestBoardID 返回频道内最近创建的画板 ID。
func (s *BoardService) LatestBoardID(ctx context.Context, channelID string) (string, error) {
	boardID, err := s.boardRepo.LatestBoardID(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return "", ErrBoardNotFound
		}
		logrus.WithField("channel_id", channelID).
			WithError(err).Error("Failed to look up latest board")
		return "", ErrInternalServer
	}
	return boardID, nil
}

// RenderFull 以交互优先级合成画板当前的完整画面：基底图叠加全部
// ACTIVE 未归档记录。用户正在等待结果，排队时插到后台任务之前。
// 没有任何记录需要重放时直接返回基底图。
func (s *BoardService) RenderFull(ctx context.Context, channelID, boardID string) ([]byte, error) {
	logCtx := logrus.WithFields(logrus.Fields{"channel_id": channelID, "board_id": boardID})

	board, err := s.Get(ctx, channelID, boardID)
	if err != nil {
		return nil, err
	}
	records, err := s.recordRepo.ListActive(ctx, boardID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list active records for render")
		return nil, ErrInternalServer
	}

	lease, err := s.pool.Acquire(ctx, render.PriorityInteractive)
	if err != nil {
		logCtx.WithError(err).Error("Failed to acquire render surface")
		return nil, ErrInternalServer
	}
	defer lease.Release()

	image, changed, err := lease.Composite(ctx, board.BaseImage, records)
	if err != nil {
		logCtx.WithError(err).Error("Interactive composite failed")
		return nil, ErrInternalServer
	}
	if !changed {
		return board.BaseImage, nil
	}
	return image, nil
}
