package service

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/codec"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// RegenScheduler 是预览重新生成的防抖调度器接口。
// Notify 即发即忘：调度失败不影响交互路径，下一次变更会再次触发。
type RegenScheduler interface {
	NotifyChanged(channelID, boardID, actorID string)
}

// RecordService 负责记录日志（已完结笔画）的业务逻辑：
// 保存、撤销、重做、清屏、归档与快照。所有对单个画板记录日志的
// 变更都由画板级互斥锁串行化。
type RecordService struct {
	recordRepo repository.RecordRepository
	boardRepo  repository.BoardRepository
	streamRepo repository.StreamRepository
	stateRepo  repository.StateRepository
	scheduler  RegenScheduler

	locks       boardLocker
	boardWidth  float64
	boardHeight float64
	activeLimit int // 未归档记录数上限，超出部分按最旧优先归档
}

// NewRecordService 创建 RecordService 实例。
func NewRecordService(
	recordRepo repository.RecordRepository,
	boardRepo repository.BoardRepository,
	streamRepo repository.StreamRepository,
	stateRepo repository.StateRepository,
	scheduler RegenScheduler,
	boardWidth, boardHeight float64,
	activeLimit int,
) *RecordService {
	if recordRepo == nil || boardRepo == nil || streamRepo == nil || stateRepo == nil {
		panic("all repositories must be non-nil for RecordService")
	}
	if scheduler == nil {
		panic("RegenScheduler cannot be nil for RecordService")
	}
	if boardWidth <= 0 || boardHeight <= 0 {
		panic("board dimensions must be positive for RecordService")
	}
	if activeLimit <= 0 {
		activeLimit = 10
	}
	return &RecordService{
		recordRepo:  recordRepo,
		boardRepo:   boardRepo,
		streamRepo:  streamRepo,
		stateRepo:   stateRepo,
		scheduler:   scheduler,
		boardWidth:  boardWidth,
		boardHeight: boardHeight,
		activeLimit: activeLimit,
	}
}

// Save 保存一条已完结的笔画记录。流程：
//  1. 校验绘制选项与全部线段；
//  2. 将该画板上所有 UNDONE 记录归档为空操作（重做自此不可用）；
//  3. 分配序号并持久化新记录（ACTIVE）；
//  4. 归档溢出的最旧记录；
//  5. 发布记录保存事件并调度预览重新生成（防抖）。
func (s *RecordService) Save(ctx context.Context, record *domain.DrawRecord, actorID string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": record.ChannelID,
		"board_id":   record.BoardID,
		"actor_id":   actorID,
	})

	// 1. 校验：任何写入发生之前完成
	if err := s.validateRecord(record); err != nil {
		logCtx.WithError(err).Warn("Rejected invalid draw record")
		return ErrInvalidRecord
	}

	unlock := s.locks.Lock(record.BoardID)
	defer unlock()

	// 画板必须存在
	if _, err := s.boardRepo.Get(ctx, record.ChannelID, record.BoardID); err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return ErrBoardNotFound
		}
		logCtx.WithError(err).Error("Failed to load board before save")
		return ErrInternalServer
	}

	// 2. 保存时间点之后，被撤销的记录永远不再可重做：归档为空操作
	undone, err := s.recordRepo.ListUndone(ctx, record.BoardID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list undone records before save")
		return ErrInternalServer
	}
	if len(undone) > 0 {
		ids := make([]uint, 0, len(undone))
		for _, r := range undone {
			ids = append(ids, r.ID)
		}
		if err := s.recordRepo.ArchiveRecords(ctx, ids); err != nil {
			logCtx.WithError(err).Error("Failed to archive undone records")
			return ErrInternalServer
		}
		logCtx.WithField("archived_undone", len(ids)).Debug("Foreclosed redo history")
	}

	// 3. 分配序号并持久化
	seq, err := s.stateRepo.NextSeq(ctx, record.BoardID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to allocate record seq")
		return ErrInternalServer
	}
	record.Seq = seq
	record.IsUndo = false
	record.IsArchived = false
	if err := s.recordRepo.Save(ctx, record); err != nil {
		logCtx.WithError(err).Error("Failed to persist draw record")
		return ErrInternalServer
	}

	// 4. 归档溢出
	if err := s.archiveOverflow(ctx, record.BoardID, logCtx); err != nil {
		// 记录已保存成功，归档失败只降低折叠效率，不回滚
		logCtx.WithError(err).Error("Failed to archive overflow records after save")
	}

	// 5. 通知：即发即忘
	if err := s.stateRepo.PublishRecordSaved(ctx, record.ChannelID, record.BoardID); err != nil {
		logCtx.WithError(err).Warn("Failed to publish record-saved event")
	}
	s.scheduler.NotifyChanged(record.ChannelID, record.BoardID, actorID)

	logCtx.WithFields(logrus.Fields{"record_id": record.ID, "seq": record.Seq}).Info("Draw record saved")
	return nil
}

// SaveFromStream 完结一次笔画：抽取会话流缓冲区的全部线段生成一条记录，
// 保存成功后清空缓冲区（至多一次投递）。缓冲区为空时返回 ErrEmptyStream。
func (s *RecordService) SaveFromStream(ctx context.Context, channelID, boardID, sessionID, actorID string, opts domain.DrawOptions) (*domain.DrawRecord, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"board_id":   boardID,
		"session_id": sessionID,
	})

	segments, err := s.streamRepo.Drain(ctx, channelID, boardID, sessionID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to drain stream buffer for finalize")
		return nil, ErrInternalServer
	}
	if len(segments) == 0 {
		return nil, ErrEmptyStream
	}

	record := &domain.DrawRecord{ChannelID: channelID, BoardID: boardID}
	record.SetOptions(opts)
	if err := record.SetSegments(segments); err != nil {
		logCtx.WithError(err).Error("Failed to encode drained segments")
		return nil, ErrInternalServer
	}

	if err := s.Save(ctx, record, actorID); err != nil {
		return nil, err
	}

	// 记录已落库；清空失败由滑动 TTL 兜底，只告警不回滚
	if err := s.streamRepo.Reset(ctx, channelID, boardID, sessionID); err != nil {
		logCtx.WithError(err).Warn("Failed to reset stream buffer after finalize")
	}
	return record, nil
}

// Undo 撤销最近一条 ACTIVE 记录（CreatedAt 降序、Seq 降序）。
// 没有可撤销记录时为空操作，返回 (nil, nil)。
func (s *RecordService) Undo(ctx context.Context, channelID, boardID, actorID string) (*domain.DrawRecord, error) {
	return s.toggleUndo(ctx, channelID, boardID, actorID, true)
}

// Redo 恢复最早一条 UNDONE 记录（CreatedAt 升序、Seq 升序）。
// 没有可重做记录时为空操作，返回 (nil, nil)。
func (s *RecordService) Redo(ctx context.Context, channelID, boardID, actorID string) (*domain.DrawRecord, error) {
	return s.toggleUndo(ctx, channelID, boardID, actorID, false)
}

func (s *RecordService) toggleUndo(ctx context.Context, channelID, boardID, actorID string, undo bool) (*domain.DrawRecord, error) {
	op := "redo"
	if undo {
		op = "undo"
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"board_id":   boardID,
		"actor_id":   actorID,
		"op":         op,
	})

	unlock := s.locks.Lock(boardID)
	defer unlock()

	var record *domain.DrawRecord
	var err error
	if undo {
		record, err = s.recordRepo.LatestActive(ctx, boardID)
	} else {
		record, err = s.recordRepo.EarliestUndone(ctx, boardID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			logCtx.Debug("Nothing to toggle, no-op")
			return nil, nil
		}
		logCtx.WithError(err).Error("Failed to locate record to toggle")
		return nil, ErrInternalServer
	}

	if err := s.recordRepo.SetUndo(ctx, record.ID, undo); err != nil {
		logCtx.WithError(err).Error("Failed to toggle record undo flag")
		return nil, ErrInternalServer
	}
	record.IsUndo = undo

	if err := s.stateRepo.PublishRecordSaved(ctx, channelID, boardID); err != nil {
		logCtx.WithError(err).Warn("Failed to publish record event after toggle")
	}
	s.scheduler.NotifyChanged(channelID, boardID, actorID)

	logCtx.WithFields(logrus.Fields{"record_id": record.ID, "seq": record.Seq}).Info("Record toggled")
	return record, nil
}

// Clean 清屏：合成一条覆盖整个画板的橡皮记录并走常规保存流程。
// 清屏因此天然可撤销，且对归档折叠与普通笔画完全一致。
func (s *RecordService) Clean(ctx context.Context, channelID, boardID, actorID string) (*domain.DrawRecord, error) {
	record := &domain.DrawRecord{ChannelID: channelID, BoardID: boardID}
	record.SetOptions(domain.DrawOptions{
		Mode:      domain.ModeEraser,
		LineWidth: math.Max(s.boardWidth, s.boardHeight),
		LineCap:   domain.CapRound,
	})
	// 一条横贯画板中线的线段，线宽保证圆盘覆盖所有角落
	if err := record.SetSegments([]domain.StrokeSegment{{
		FromX: 0,
		FromY: s.boardHeight / 2,
		ToX:   s.boardWidth,
		ToY:   s.boardHeight / 2,
	}}); err != nil {
		logrus.WithError(err).Error("Failed to synthesize clean record")
		return nil, ErrInternalServer
	}
	if err := s.Save(ctx, record, actorID); err != nil {
		return nil, err
	}
	return record, nil
}

// Snapshot 返回客户端重建画布所需的数据：基底图加上全部 ACTIVE 未归档记录。
func (s *RecordService) Snapshot(ctx context.Context, channelID, boardID string) (*domain.BoardSnapshot, error) {
	board, err := s.boardRepo.Get(ctx, channelID, boardID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return nil, ErrBoardNotFound
		}
		logrus.WithFields(logrus.Fields{"channel_id": channelID, "board_id": boardID}).
			WithError(err).Error("Failed to load board for snapshot")
		return nil, ErrInternalServer
	}
	records, err := s.recordRepo.ListActive(ctx, boardID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"channel_id": channelID, "board_id": boardID}).
			WithError(err).Error("Failed to list active records for snapshot")
		return nil, ErrInternalServer
	}
	return &domain.BoardSnapshot{Board: board, Records: records}, nil
}

// archiveOverflow 在未归档记录数超过上限时，按最旧优先归档恰好超出的条数。
// 归档不考虑撤销状态；被归档的 UNDONE 记录在折叠时不贡献任何像素。
func (s *RecordService) archiveOverflow(ctx context.Context, boardID string, logCtx *logrus.Entry) error {
	count, err := s.recordRepo.CountNonArchived(ctx, boardID)
	if err != nil {
		return err
	}
	excess := int(count) - s.activeLimit
	if excess <= 0 {
		return nil
	}

	oldest, err := s.recordRepo.ListOldestNonArchived(ctx, boardID, excess)
	if err != nil {
		return err
	}
	ids := make([]uint, 0, len(oldest))
	for _, r := range oldest {
		ids = append(ids, r.ID)
	}
	if err := s.recordRepo.ArchiveRecords(ctx, ids); err != nil {
		return err
	}
	logCtx.WithField("archived", len(ids)).Debug("Archived overflow records")
	return nil
}

// validateRecord 校验记录的绘制选项与全部线段。
func (s *RecordService) validateRecord(record *domain.DrawRecord) error {
	if record.ChannelID == "" || record.BoardID == "" {
		return errors.New("record channel and board ids are required")
	}
	if err := codec.ValidateOptions(record.Options()); err != nil {
		return err
	}
	segments, err := record.ParseSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return errors.New("record has no segments")
	}
	for _, seg := range segments {
		if err := codec.ValidateSegment(seg, s.boardWidth, s.boardHeight); err != nil {
			return err
		}
	}
	return nil
}
