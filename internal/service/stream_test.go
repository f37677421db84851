package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/repository/mocks"
	"collaborative-whiteboard/internal/service"
)

func TestStreamService_Append_Success(t *testing.T) {
	// Arrange
	streamRepo := new(mocks.StreamRepository)
	svc := service.NewStreamService(streamRepo, testBoardWidth, testBoardHeight)
	ctx := context.Background()
	segment := domain.StrokeSegment{FromX: 1, FromY: 2, ToX: 3, ToY: 4}

	streamRepo.On("Append", ctx, "chan-1", "board-1", "sess-1", segment).Return(nil).Once()

	// Act
	err := svc.Append(ctx, "chan-1", "board-1", "sess-1", segment)

	// Assert
	require.NoError(t, err)
	streamRepo.AssertExpectations(t)
}

func TestStreamService_Append_RejectsOutOfBounds(t *testing.T) {
	streamRepo := new(mocks.StreamRepository)
	svc := service.NewStreamService(streamRepo, testBoardWidth, testBoardHeight)

	// 超出画板高度的线段必须在进入缓冲区之前被拒绝
	segment := domain.StrokeSegment{FromX: 1, FromY: 2, ToX: 3, ToY: testBoardHeight + 0.1}
	err := svc.Append(context.Background(), "chan-1", "board-1", "sess-1", segment)

	assert.ErrorIs(t, err, service.ErrInvalidRecord)
	streamRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStreamService_Append_MapsLimitError(t *testing.T) {
	streamRepo := new(mocks.StreamRepository)
	svc := service.NewStreamService(streamRepo, testBoardWidth, testBoardHeight)
	ctx := context.Background()
	segment := domain.StrokeSegment{FromX: 0, FromY: 0, ToX: 1, ToY: 1}

	streamRepo.On("Append", ctx, "chan-1", "board-1", "sess-1", segment).
		Return(repository.ErrStreamLimitExceeded).Once()

	err := svc.Append(ctx, "chan-1", "board-1", "sess-1", segment)

	assert.ErrorIs(t, err, service.ErrStreamLimitExceeded, "缓冲区满应映射为业务层限流错误")
}

func TestStreamService_Drain(t *testing.T) {
	streamRepo := new(mocks.StreamRepository)
	svc := service.NewStreamService(streamRepo, testBoardWidth, testBoardHeight)
	ctx := context.Background()
	segments := []domain.StrokeSegment{{ToX: 1, ToY: 1}, {FromX: 1, FromY: 1, ToX: 2, ToY: 2}}

	streamRepo.On("Drain", ctx, "chan-1", "board-1", "sess-1").Return(segments, nil).Once()

	got, err := svc.Drain(ctx, "chan-1", "board-1", "sess-1")

	require.NoError(t, err)
	assert.Equal(t, segments, got, "应按插入顺序返回全部线段")
}

func TestStreamService_Reset(t *testing.T) {
	streamRepo := new(mocks.StreamRepository)
	svc := service.NewStreamService(streamRepo, testBoardWidth, testBoardHeight)
	ctx := context.Background()

	streamRepo.On("Reset", ctx, "chan-1", "board-1", "sess-1").Return(nil).Once()

	require.NoError(t, svc.Reset(ctx, "chan-1", "board-1", "sess-1"))
	streamRepo.AssertExpectations(t)
}
