package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/codec"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// StreamService 负责实时流缓冲区的业务逻辑：线段在进入缓冲区之前
// 必须通过线格式校验，越界或负坐标一律拒绝，绝不静默截断。
type StreamService struct {
	streamRepo  repository.StreamRepository
	boardWidth  float64
	boardHeight float64
}

// NewStreamService 创建 StreamService 实例。
func NewStreamService(streamRepo repository.StreamRepository, boardWidth, boardHeight float64) *StreamService {
	if streamRepo == nil {
		panic("StreamRepository cannot be nil for StreamService")
	}
	if boardWidth <= 0 || boardHeight <= 0 {
		panic("board dimensions must be positive for StreamService")
	}
	return &StreamService{
		streamRepo:  streamRepo,
		boardWidth:  boardWidth,
		boardHeight: boardHeight,
	}
}

// Append 校验并追加一条线段到会话的流缓冲区。
// 缓冲区满时返回 ErrStreamLimitExceeded，调用方应当先完结记录。
func (s *StreamService) Append(ctx context.Context, channelID, boardID, sessionID string, segment domain.StrokeSegment) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"board_id":   boardID,
		"session_id": sessionID,
	})

	// 1. 线格式校验
	if err := codec.ValidateSegment(segment, s.boardWidth, s.boardHeight); err != nil {
		logCtx.WithError(err).Warn("Rejected out-of-bounds stroke segment")
		return ErrInvalidRecord
	}

	// 2. 追加到缓冲区（热路径，O(1)）
	if err := s.streamRepo.Append(ctx, channelID, boardID, sessionID, segment); err != nil {
		if errors.Is(err, repository.ErrStreamLimitExceeded) {
			logCtx.Warn("Stream buffer limit reached, client must finalize")
			return ErrStreamLimitExceeded
		}
		logCtx.WithError(err).Error("Failed to append segment to stream buffer")
		return ErrInternalServer
	}
	return nil
}

// Drain 按插入顺序返回会话缓冲区中的全部线段，不清空缓冲区。
func (s *StreamService) Drain(ctx context.Context, channelID, boardID, sessionID string) ([]domain.StrokeSegment, error) {
	segments, err := s.streamRepo.Drain(ctx, channelID, boardID, sessionID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"channel_id": channelID,
			"board_id":   boardID,
			"session_id": sessionID,
		}).WithError(err).Error("Failed to drain stream buffer")
		return nil, ErrInternalServer
	}
	return segments, nil
}

// Reset 清空会话缓冲区。完结记录之后、丢弃未提交笔画时调用。
func (s *StreamService) Reset(ctx context.Context, channelID, boardID, sessionID string) error {
	if err := s.streamRepo.Reset(ctx, channelID, boardID, sessionID); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel_id": channelID,
			"board_id":   boardID,
			"session_id": sessionID,
		}).WithError(err).Error("Failed to reset stream buffer")
		return ErrInternalServer
	}
	return nil
}
