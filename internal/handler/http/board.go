package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
)

// BoardHandler 封装了画板相关的 HTTP 处理逻辑
type BoardHandler struct {
	boardService  *service.BoardService
	recordService *service.RecordService
}

// NewBoardHandler 创建 BoardHandler 实例
func NewBoardHandler(boardService *service.BoardService, recordService *service.RecordService) *BoardHandler {
	if boardService == nil || recordService == nil {
		panic("all services must be non-nil for BoardHandler")
	}
	return &BoardHandler{
		boardService:  boardService,
		recordService: recordService,
	}
}

// actorID 从 Gin 上下文中取出认证中间件设置的用户标识。
// 未认证路由下为空字符串，只影响日志归属。
func actorID(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// AddBoard 处理在频道内创建新画板的请求
// POST /api/boards/:channelId
func (h *BoardHandler) AddBoard(c *gin.Context) {
	channelID := c.Param("channelId")

	board, err := h.boardService.Add(c.Request.Context(), channelID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"board_id":   board.BoardID,
		"actor_id":   actorID(c),
	}).Info("Handler.AddBoard: Board created")
	SuccessResponse(c, http.StatusCreated, gin.H{
		"channelId": board.ChannelID,
		"boardId":   board.BoardID,
		"createdAt": board.CreatedAt,
	})
}

// GetLatestBoard 返回频道内最近创建的画板 ID
// GET /api/boards/:channelId
func (h *BoardHandler) GetLatestBoard(c *gin.Context) {
	channelID := c.Param("channelId")

	boardID, err := h.boardService.LatestBoardID(c.Request.Context(), channelID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"channelId": channelID, "boardId": boardID})
}

// GetSnapshot 返回客户端重建画布所需的快照：基底图元数据加 ACTIVE 记录
// GET /api/boards/:channelId/:boardId
func (h *BoardHandler) GetSnapshot(c *gin.Context) {
	channelID := c.Param("channelId")
	boardID := c.Param("boardId")

	snapshot, err := h.recordService.Snapshot(c.Request.Context(), channelID, boardID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, snapshot)
}

// GetImage 以交互优先级合成并返回画板当前的完整画面（PNG）
// GET /api/boards/:channelId/:boardId/image
func (h *BoardHandler) GetImage(c *gin.Context) {
	channelID := c.Param("channelId")
	boardID := c.Param("boardId")

	image, err := h.boardService.RenderFull(c.Request.Context(), channelID, boardID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if len(image) == 0 {
		// 全空画板没有可返回的图像
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "image/png", image)
}

// FinalizeRequest 定义完结笔画请求的结构体
type FinalizeRequest struct {
	SessionID string             `json:"sessionId" binding:"required"`
	Options   domain.DrawOptions `json:"options" binding:"required"`
}

// FinalizeRecord 完结一次笔画：抽取会话流缓冲区生成记录并保存
// POST /api/boards/:channelId/:boardId/records
func (h *BoardHandler) FinalizeRecord(c *gin.Context) {
	channelID := c.Param("channelId")
	boardID := c.Param("boardId")

	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.FinalizeRecord: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: sessionId and options required")
		return
	}

	record, err := h.recordService.SaveFromStream(
		c.Request.Context(),
		channelID, boardID, req.SessionID, actorID(c),
		req.Options,
	)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, gin.H{"message": "Record saved", "record": record})
}

// Undo 撤销画板上最近一条 ACTIVE 记录
// POST /api/boards/:channelId/:boardId/undo
func (h *BoardHandler) Undo(c *gin.Context) {
	h.toggle(c, true)
}

// Redo 恢复画板上最早一条 UNDONE 记录
// POST /api/boards/:channelId/:boardId/redo
func (h *BoardHandler) Redo(c *gin.Context) {
	h.toggle(c, false)
}

func (h *BoardHandler) toggle(c *gin.Context, undo bool) {
	channelID := c.Param("channelId")
	boardID := c.Param("boardId")

	var record *domain.DrawRecord
	var err error
	if undo {
		record, err = h.recordService.Undo(c.Request.Context(), channelID, boardID, actorID(c))
	} else {
		record, err = h.recordService.Redo(c.Request.Context(), channelID, boardID, actorID(c))
	}
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if record == nil {
		// 空操作：没有可撤销/可恢复的记录
		SuccessResponse(c, http.StatusOK, gin.H{"message": "Nothing to do", "record": nil})
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"record": record})
}

// Clean 清屏：生成一条覆盖整个画板的橡皮记录
// POST /api/boards/:channelId/:boardId/clean
func (h *BoardHandler) Clean(c *gin.Context) {
	channelID := c.Param("channelId")
	boardID := c.Param("boardId")

	record, err := h.recordService.Clean(c.Request.Context(), channelID, boardID, actorID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, gin.H{"message": "Board cleaned", "record": record})
}
