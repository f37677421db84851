package service_test

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/render"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/repository/mocks"
	"collaborative-whiteboard/internal/service"
)

func newTestPool(t *testing.T) *render.Pool {
	t.Helper()
	pool := render.NewPool(render.Config{
		Width:         int(testBoardWidth),
		Height:        int(testBoardHeight),
		MaxSize:       2,
		IdleTimeout:   time.Minute,
		RenderTimeout: 5 * time.Second,
	})
	t.Cleanup(pool.Close)
	return pool
}

func TestBoardService_Add_GeneratesBoardID(t *testing.T) {
	// Arrange
	boardRepo := new(mocks.BoardRepository)
	recordRepo := new(mocks.RecordRepository)
	svc := service.NewBoardService(boardRepo, recordRepo, newTestPool(t))
	ctx := context.Background()

	boardRepo.On("Add", ctx, "chan-1", mock.AnythingOfType("string")).
		Return(&domain.Board{ChannelID: "chan-1", BoardID: "generated"}, nil).Once()

	// Act
	board, err := svc.Add(ctx, "chan-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "chan-1", board.ChannelID)
	boardRepo.AssertExpectations(t)
}

func TestBoardService_LatestBoardID_NotFound(t *testing.T) {
	boardRepo := new(mocks.BoardRepository)
	recordRepo := new(mocks.RecordRepository)
	svc := service.NewBoardService(boardRepo, recordRepo, newTestPool(t))
	ctx := context.Background()

	boardRepo.On("LatestBoardID", ctx, "empty-chan").
		Return("", repository.ErrBoardNotFound).Once()

	_, err := svc.LatestBoardID(ctx, "empty-chan")

	assert.ErrorIs(t, err, service.ErrBoardNotFound)
}

func TestBoardService_RenderFull_CompositesActiveRecords(t *testing.T) {
	// Arrange
	boardRepo := new(mocks.BoardRepository)
	recordRepo := new(mocks.RecordRepository)
	svc := service.NewBoardService(boardRepo, recordRepo, newTestPool(t))
	ctx := context.Background()

	record := domain.DrawRecord{ID: 1, Seq: 1, Mode: string(domain.ModePen), StrokeStyle: "#ff0000", LineWidth: 4}
	require.NoError(t, record.SetSegments([]domain.StrokeSegment{{FromX: 10, FromY: 10, ToX: 50, ToY: 50}}))

	boardRepo.On("Get", ctx, "chan-1", "board-1").
		Return(&domain.Board{ChannelID: "chan-1", BoardID: "board-1"}, nil).Once()
	recordRepo.On("ListActive", ctx, "board-1").
		Return([]domain.DrawRecord{record}, nil).Once()

	// Act
	image, err := svc.RenderFull(ctx, "chan-1", "board-1")

	// Assert: 返回合成后的 PNG
	require.NoError(t, err)
	require.NotEmpty(t, image)
	decoded, err := png.Decode(bytes.NewReader(image))
	require.NoError(t, err)
	assert.Equal(t, int(testBoardWidth), decoded.Bounds().Dx())
	assert.Equal(t, int(testBoardHeight), decoded.Bounds().Dy())
}

func TestBoardService_RenderFull_ReturnsBaseWhenNoRecords(t *testing.T) {
	boardRepo := new(mocks.BoardRepository)
	recordRepo := new(mocks.RecordRepository)
	svc := service.NewBoardService(boardRepo, recordRepo, newTestPool(t))
	ctx := context.Background()

	base := []byte{0x89, 0x50, 0x4e, 0x47} // 只需按原样透传，无需是合法 PNG
	boardRepo.On("Get", ctx, "chan-1", "board-1").
		Return(&domain.Board{ChannelID: "chan-1", BoardID: "board-1", BaseImage: base}, nil).Once()
	recordRepo.On("ListActive", ctx, "board-1").
		Return([]domain.DrawRecord{}, nil).Once()

	image, err := svc.RenderFull(ctx, "chan-1", "board-1")

	// 无记录可重放时直接返回基底图，不经过合成
	require.NoError(t, err)
	assert.Equal(t, base, image)
}
