package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/render"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/tasks"
)

// BoardRegenerateHandler 处理画板重新生成任务：把上次折叠之后归档的
// 记录折叠进基底图，重新生成缩放预览图，然后通知订阅者。
// 后台路径的失败一律记录日志后丢弃（SkipRetry）：下一次画板变更
// 会再次调度，系统自愈，不做任务级重试。
type BoardRegenerateHandler struct {
	boardRepo     repository.BoardRepository
	recordRepo    repository.RecordRepository
	stateRepo     repository.StateRepository
	pool          *render.Pool
	previewWidth  int
	previewHeight int
}

// NewBoardRegenerateHandler 创建 Handler 实例。
func NewBoardRegenerateHandler(
	boardRepo repository.BoardRepository,
	recordRepo repository.RecordRepository,
	stateRepo repository.StateRepository,
	pool *render.Pool,
	previewWidth, previewHeight int,
) *BoardRegenerateHandler {
	if boardRepo == nil || recordRepo == nil || stateRepo == nil {
		panic("all repositories must be non-nil for BoardRegenerateHandler")
	}
	if pool == nil {
		panic("render pool cannot be nil for BoardRegenerateHandler")
	}
	if previewWidth <= 0 {
		previewWidth = 320
	}
	if previewHeight <= 0 {
		previewHeight = 240
	}
	return &BoardRegenerateHandler{
		boardRepo:     boardRepo,
		recordRepo:    recordRepo,
		stateRepo:     stateRepo,
		pool:          pool,
		previewWidth:  previewWidth,
		previewHeight: previewHeight,
	}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *BoardRegenerateHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.BoardRegeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal regenerate task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"task_type":  t.Type(),
		"channel_id": payload.ChannelID,
		"board_id":   payload.BoardID,
	})
	logCtx.Info("Processing board regenerate task...")

	if err := h.regenerate(ctx, payload.ChannelID, payload.BoardID, logCtx); err != nil {
		logCtx.WithError(err).Error("Board regenerate failed, dropping task")
		return fmt.Errorf("regenerate board %s/%s: %v: %w", payload.ChannelID, payload.BoardID, err, asynq.SkipRetry)
	}

	logCtx.Info("Board regenerate task processed successfully")
	return nil
}

func (h *BoardRegenerateHandler) regenerate(ctx context.Context, channelID, boardID string, logCtx *logrus.Entry) error {
	board, err := h.boardRepo.Get(ctx, channelID, boardID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			logCtx.Warn("Board no longer exists, dropping regenerate task")
			return nil
		}
		return fmt.Errorf("load board: %w", err)
	}

	// 上次折叠之后归档的增量记录
	archived, err := h.recordRepo.ListArchivedSince(ctx, boardID, board.FoldedSeq)
	if err != nil {
		return fmt.Errorf("list archived records: %w", err)
	}

	lease, err := h.pool.Acquire(ctx, render.PriorityBackground)
	if err != nil {
		return fmt.Errorf("acquire render surface: %w", err)
	}
	defer lease.Release()

	baseImage := board.BaseImage
	if len(archived) > 0 {
		watermark := archived[len(archived)-1].Seq

		// 水位线绝不越过未归档的记录：被撤销记录在保存时归档（序号偏高），
		// 若水位线直接推进到批次最大序号，序号更低的活跃记录之后因溢出
		// 归档时会落在水位线之下，ListArchivedSince 永远取不到它，
		// 笔画从此丢失。上限取最旧未归档记录的序号减一。
		oldest, err := h.recordRepo.ListOldestNonArchived(ctx, boardID, 1)
		if err != nil {
			return fmt.Errorf("find oldest non-archived record: %w", err)
		}
		if len(oldest) > 0 && oldest[0].Seq <= watermark {
			watermark = oldest[0].Seq - 1
		}

		newBase, changed, err := lease.Composite(ctx, board.BaseImage, archived)
		if err != nil {
			return fmt.Errorf("fold archived records into base: %w", err)
		}
		if changed {
			baseImage = newBase
		}
		// 水位线被缺口卡住时，缺口之上的归档记录会被重复读取直到缺口
		// 归档为止。溢出归档严格按最旧优先，缺口之上只有被撤销的空操作，
		// 重复折叠不改变画面，且折叠本身是幂等的。
		if watermark > board.FoldedSeq {
			if err := h.boardRepo.UpdateBaseImage(ctx, channelID, boardID, baseImage, watermark); err != nil {
				return fmt.Errorf("persist base image: %w", err)
			}
		}
		logCtx.WithFields(logrus.Fields{
			"folded":     len(archived),
			"folded_seq": watermark,
			"changed":    changed,
		}).Debug("Base image fold complete")
	}

	// 预览图反映当前可见状态：新基底叠加全部 ACTIVE 记录
	active, err := h.recordRepo.ListActive(ctx, boardID)
	if err != nil {
		return fmt.Errorf("list active records: %w", err)
	}
	visible, changed, err := lease.Composite(ctx, baseImage, active)
	if err != nil {
		return fmt.Errorf("composite visible state: %w", err)
	}
	if !changed {
		visible = baseImage
	}
	if len(visible) == 0 {
		// 全空画板：既无基底也无记录，无预览可生成
		logCtx.Debug("Board is blank, skipping preview generation")
		return nil
	}

	preview, err := render.ScalePreview(visible, h.previewWidth, h.previewHeight)
	if err != nil {
		return fmt.Errorf("scale preview: %w", err)
	}
	if err := h.boardRepo.UpdatePreviewImage(ctx, channelID, boardID, preview); err != nil {
		return fmt.Errorf("persist preview image: %w", err)
	}

	// 即发即忘：投递失败只记录日志
	if err := h.stateRepo.PublishPreviewUpdated(ctx, channelID, boardID); err != nil {
		logCtx.WithError(err).Warn("Failed to publish preview-updated event")
	}
	return nil
}
