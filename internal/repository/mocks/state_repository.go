package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// StateRepository 是 repository.StateRepository 的 Mock 实现
type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) NextSeq(ctx context.Context, boardID string) (uint64, error) {
	args := m.Called(ctx, boardID)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *StateRepository) PublishPreviewUpdated(ctx context.Context, channelID, boardID string) error {
	args := m.Called(ctx, channelID, boardID)
	return args.Error(0)
}

func (m *StateRepository) PublishRecordSaved(ctx context.Context, channelID, boardID string) error {
	args := m.Called(ctx, channelID, boardID)
	return args.Error(0)
}

func (m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}
