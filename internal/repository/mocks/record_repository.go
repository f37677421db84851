// Package mocks 提供仓库接口的 testify Mock 实现，供服务层测试使用。
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-whiteboard/internal/domain"
)

// RecordRepository 是 repository.RecordRepository 的 Mock 实现
type RecordRepository struct {
	mock.Mock
}

func (m *RecordRepository) Save(ctx context.Context, record *domain.DrawRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *RecordRepository) LatestActive(ctx context.Context, boardID string) (*domain.DrawRecord, error) {
	args := m.Called(ctx, boardID)
	if rec := args.Get(0); rec != nil {
		return rec.(*domain.DrawRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) EarliestUndone(ctx context.Context, boardID string) (*domain.DrawRecord, error) {
	args := m.Called(ctx, boardID)
	if rec := args.Get(0); rec != nil {
		return rec.(*domain.DrawRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) SetUndo(ctx context.Context, recordID uint, isUndo bool) error {
	args := m.Called(ctx, recordID, isUndo)
	return args.Error(0)
}

func (m *RecordRepository) ListActive(ctx context.Context, boardID string) ([]domain.DrawRecord, error) {
	args := m.Called(ctx, boardID)
	if recs := args.Get(0); recs != nil {
		return recs.([]domain.DrawRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) ListUndone(ctx context.Context, boardID string) ([]domain.DrawRecord, error) {
	args := m.Called(ctx, boardID)
	if recs := args.Get(0); recs != nil {
		return recs.([]domain.DrawRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) ListOldestNonArchived(ctx context.Context, boardID string, limit int) ([]domain.DrawRecord, error) {
	args := m.Called(ctx, boardID, limit)
	if recs := args.Get(0); recs != nil {
		return recs.([]domain.DrawRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) CountNonArchived(ctx context.Context, boardID string) (int64, error) {
	args := m.Called(ctx, boardID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RecordRepository) ArchiveRecords(ctx context.Context, recordIDs []uint) error {
	args := m.Called(ctx, recordIDs)
	return args.Error(0)
}

func (m *RecordRepository) ListArchivedSince(ctx context.Context, boardID string, sinceSeq uint64) ([]domain.DrawRecord, error) {
	args := m.Called(ctx, boardID, sinceSeq)
	if recs := args.Get(0); recs != nil {
		return recs.([]domain.DrawRecord), args.Error(1)
	}
	return nil, args.Error(1)
}
