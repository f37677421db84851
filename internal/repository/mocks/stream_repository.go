package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-whiteboard/internal/domain"
)

// StreamRepository 是 repository.StreamRepository 的 Mock 实现
type StreamRepository struct {
	mock.Mock
}

func (m *StreamRepository) Append(ctx context.Context, channelID, boardID, sessionID string, segment domain.StrokeSegment) error {
	args := m.Called(ctx, channelID, boardID, sessionID, segment)
	return args.Error(0)
}

func (m *StreamRepository) Drain(ctx context.Context, channelID, boardID, sessionID string) ([]domain.StrokeSegment, error) {
	args := m.Called(ctx, channelID, boardID, sessionID)
	if segs := args.Get(0); segs != nil {
		return segs.([]domain.StrokeSegment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StreamRepository) Reset(ctx context.Context, channelID, boardID, sessionID string) error {
	args := m.Called(ctx, channelID, boardID, sessionID)
	return args.Error(0)
}
