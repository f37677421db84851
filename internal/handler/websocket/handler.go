package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/hub"
	"collaborative-whiteboard/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader     websocket.Upgrader
	hub          *hub.Hub
	boardService *service.BoardService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, boardService *service.BoardService) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if boardService == nil {
		panic("BoardService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:     upgrader,
		hub:          h,
		boardService: boardService,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/channel/:channelId/board/:boardId
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	channelID := c.Param("channelId")
	boardID := c.Param("boardId")
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": channelID,
		"board_id":   boardID,
	})

	// 1. 获取认证用户标识 (由 Auth 中间件设置)
	userID := ""
	if v, ok := c.Get("user_id"); ok {
		userID, _ = v.(string)
	}
	logCtx = logCtx.WithField("user_id", userID)

	// 2. 验证画板存在，升级之前用 HTTP 状态码报告错误
	if _, err := h.boardService.Get(c.Request.Context(), channelID, boardID); err != nil {
		if err == service.ErrBoardNotFound {
			logCtx.Warn("WS Handler: Board not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		} else {
			logCtx.WithError(err).Error("WS Handler: Error validating board")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate board"})
		}
		return
	}

	// 3. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已发送 HTTP 错误响应，这里只记录日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 4. 创建 Client 并注册到 Hub
	client := hub.NewClient(h.hub, conn, channelID, boardID, userID)
	registerMsg := hub.HubMessage{Type: "register", Client: client}
	if !h.hub.QueueMessage(registerMsg) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}

	// 5. 启动客户端的读写 goroutine
	client.Run()
	logCtx.WithField("session_id", client.SessionID()).Info("WS Handler: Client registered and pumps started")
}
