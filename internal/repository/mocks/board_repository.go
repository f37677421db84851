package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-whiteboard/internal/domain"
)

// BoardRepository 是 repository.BoardRepository 的 Mock 实现
type BoardRepository struct {
	mock.Mock
}

func (m *BoardRepository) Get(ctx context.Context, channelID, boardID string) (*domain.Board, error) {
	args := m.Called(ctx, channelID, boardID)
	if board := args.Get(0); board != nil {
		return board.(*domain.Board), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BoardRepository) Add(ctx context.Context, channelID, boardID string) (*domain.Board, error) {
	args := m.Called(ctx, channelID, boardID)
	if board := args.Get(0); board != nil {
		return board.(*domain.Board), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BoardRepository) LatestBoardID(ctx context.Context, channelID string) (string, error) {
	args := m.Called(ctx, channelID)
	return args.String(0), args.Error(1)
}

func (m *BoardRepository) UpdateBaseImage(ctx context.Context, channelID, boardID string, image []byte, foldedSeq uint64) error {
	args := m.Called(ctx, channelID, boardID, image, foldedSeq)
	return args.Error(0)
}

func (m *BoardRepository) UpdatePreviewImage(ctx context.Context, channelID, boardID string, image []byte) error {
	args := m.Called(ctx, channelID, boardID, image)
	return args.Error(0)
}
