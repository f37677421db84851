package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/codec"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "client_message"
	Client  *Client // 消息关联的客户端
	RawData []byte  // 仅用于 client_message（原始 WebSocket 消息）
}

// clientMessage 是客户端经 WebSocket 发来的消息格式。
// draw 消息携带紧凑线格式的线段；save 消息携带本次笔画的绘制选项。
type clientMessage struct {
	Type    string              `json:"type"` // "draw" | "save"
	Segment []float64           `json:"segment,omitempty"`
	Options *domain.DrawOptions `json:"options,omitempty"`
}

// channelSub 是单个频道的 Redis 订阅状态
type channelSub struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Hub 维护活跃客户端集合并协调消息处理。客户端按频道组织；
// 每个有本地客户端的频道持有一个 Redis 订阅，预览更新等事件
// 经由 Redis PubSub 跨实例扇出到本地客户端。
type Hub struct {
	messageChan chan HubMessage

	// map[channelID]map[*Client]bool
	channels   map[string]map[*Client]bool
	channelsMu sync.RWMutex

	// map[channelID]*channelSub，由 channelsMu 一并保护
	subs map[string]*channelSub

	streamService *service.StreamService
	recordService *service.RecordService
	rdb           *redis.Client
	keyPrefix     string
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(streamService *service.StreamService, recordService *service.RecordService, rdb *redis.Client, keyPrefix string) *Hub {
	if streamService == nil {
		panic("StreamService cannot be nil for Hub")
	}
	if recordService == nil {
		panic("RecordService cannot be nil for Hub")
	}
	if rdb == nil {
		panic("redis client cannot be nil for Hub")
	}
	return &Hub{
		messageChan:   make(chan HubMessage, 512),
		channels:      make(map[string]map[*Client]bool),
		subs:          make(map[string]*channelSub),
		streamService: streamService,
		recordService: recordService,
		rdb:           rdb,
		keyPrefix:     keyPrefix,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "client_message":
			// 异步处理，避免阻塞 Hub 主循环
			go h.handleClientMessage(msg)
		default:
			log.Warnf("Hub: received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// registerClient 处理客户端注册逻辑。频道的第一个客户端到达时
// 建立该频道的 Redis 订阅。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": client.ChannelID(),
		"board_id":   client.BoardID(),
		"session_id": client.SessionID(),
		"action":     "registerClient",
	})

	h.channelsMu.Lock()
	if _, ok := h.channels[client.ChannelID()]; !ok {
		h.channels[client.ChannelID()] = make(map[*Client]bool)
		h.subscribeChannelLocked(client.ChannelID())
		logCtx.Info("Client list created for new channel")
	}
	h.channels[client.ChannelID()][client] = true
	h.channelsMu.Unlock()
	logCtx.Info("Client registered to Hub")
}

// unregisterClient 处理客户端注销逻辑。频道最后一个客户端离开时
// 取消该频道的 Redis 订阅。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": client.ChannelID(),
		"board_id":   client.BoardID(),
		"session_id": client.SessionID(),
		"action":     "unregisterClient",
	})

	h.channelsMu.Lock()
	if clients, ok := h.channels[client.ChannelID()]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.send)
			logCtx.Debug("Client removed from channel map")

			if len(clients) == 0 {
				delete(h.channels, client.ChannelID())
				h.unsubscribeChannelLocked(client.ChannelID())
				logCtx.Info("Channel empty, removed from Hub")
			}
		} else {
			logCtx.Warn("Client not found in channel during unregister")
		}
	} else {
		logCtx.Warn("Channel not found during client unregister")
	}
	h.channelsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")
}

// subscribeChannelLocked 建立频道的 Redis 订阅并启动转发协程。
// 调用方必须持有 channelsMu。
func (h *Hub) subscribeChannelLocked(channelID string) {
	key := fmt.Sprintf("%schannel:%s", h.keyPrefix, channelID)
	pubsub := h.rdb.Subscribe(context.Background(), key)
	sub := &channelSub{pubsub: pubsub, done: make(chan struct{})}
	h.subs[channelID] = sub

	go h.forwardChannelEvents(channelID, sub)
	logrus.WithFields(logrus.Fields{"channel_id": channelID, "key": key}).Info("Channel subscription started")
}

// unsubscribeChannelLocked 关闭频道的 Redis 订阅。
// 调用方必须持有 channelsMu。
func (h *Hub) unsubscribeChannelLocked(channelID string) {
	sub, ok := h.subs[channelID]
	if !ok {
		return
	}
	delete(h.subs, channelID)
	close(sub.done)
	if err := sub.pubsub.Close(); err != nil {
		logrus.WithField("channel_id", channelID).WithError(err).Warn("Failed to close channel subscription")
	}
}

// forwardChannelEvents 将 Redis PubSub 事件转发给频道内的本地客户端。
func (h *Hub) forwardChannelEvents(channelID string, sub *channelSub) {
	ch := sub.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcastToChannel(channelID, []byte(msg.Payload))
		case <-sub.done:
			return
		}
	}
}

// handleClientMessage 异步处理客户端发送的消息
func (h *Hub) handleClientMessage(msg HubMessage) {
	client := msg.Client
	ctx := context.Background()
	logCtx := logrus.WithFields(logrus.Fields{
		"channel_id": client.ChannelID(),
		"board_id":   client.BoardID(),
		"session_id": client.SessionID(),
		"operation":  "handleClientMessage",
	})

	var parsed clientMessage
	if err := json.Unmarshal(msg.RawData, &parsed); err != nil {
		logCtx.WithError(err).Warn("Failed to unmarshal client message")
		client.sendError("malformed message")
		return
	}

	switch parsed.Type {
	case "draw":
		h.handleDraw(ctx, client, parsed, msg.RawData, logCtx)
	case "save":
		h.handleSave(ctx, client, parsed, logCtx)
	default:
		logCtx.Warnf("Unknown client message type: %s", parsed.Type)
		client.sendError("unknown message type")
	}
}

// handleDraw 将线段追加到会话流缓冲区，并把原始消息实时广播给
// 同一画板上的其他客户端。
func (h *Hub) handleDraw(ctx context.Context, client *Client, parsed clientMessage, raw []byte, logCtx *logrus.Entry) {
	segment, err := codec.DecodeSegment(parsed.Segment)
	if err != nil {
		logCtx.WithError(err).Warn("Rejected malformed draw segment")
		client.sendError("invalid segment")
		return
	}

	err = h.streamService.Append(ctx, client.ChannelID(), client.BoardID(), client.SessionID(), segment)
	if err != nil {
		switch err {
		case service.ErrStreamLimitExceeded:
			client.sendError("stream limit exceeded, save your stroke")
		case service.ErrInvalidRecord:
			client.sendError("invalid segment")
		default:
			logCtx.WithError(err).Error("Failed to append segment to stream")
			client.sendError("internal error")
		}
		return
	}

	h.broadcastToBoard(client.ChannelID(), client.BoardID(), raw, client)
}

// handleSave 完结当前会话的笔画：抽取流缓冲区生成记录并保存。
func (h *Hub) handleSave(ctx context.Context, client *Client, parsed clientMessage, logCtx *logrus.Entry) {
	if parsed.Options == nil {
		client.sendError("save requires draw options")
		return
	}

	record, err := h.recordService.SaveFromStream(
		ctx,
		client.ChannelID(), client.BoardID(), client.SessionID(), client.UserID(),
		*parsed.Options,
	)
	if err != nil {
		switch err {
		case service.ErrEmptyStream:
			client.sendError("nothing to save")
		case service.ErrInvalidRecord:
			client.sendError("invalid draw record")
		case service.ErrBoardNotFound:
			client.sendError("board not found")
		default:
			logCtx.WithError(err).Error("Failed to finalize stroke")
			client.sendError("internal error")
		}
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":   "record-saved",
		"record": record,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal record-saved message")
		return
	}
	// 同画板所有客户端（含发送者）都需要这条记录来更新本地状态
	h.broadcastToBoard(client.ChannelID(), client.BoardID(), payload, nil)
	logCtx.WithField("record_id", record.ID).Info("Stroke finalized via websocket")
}

// broadcastToBoard 将消息发送给指定画板的所有客户端，可排除发送者
func (h *Hub) broadcastToBoard(channelID, boardID string, message []byte, sender *Client) {
	h.channelsMu.RLock()
	clients := make([]*Client, 0, len(h.channels[channelID]))
	for client := range h.channels[channelID] {
		if client != sender && client.BoardID() == boardID {
			clients = append(clients, client)
		}
	}
	h.channelsMu.RUnlock()

	h.deliver(clients, message, channelID)
}

// broadcastToChannel 将消息发送给频道内全部客户端（预览更新等频道级事件）
func (h *Hub) broadcastToChannel(channelID string, message []byte) {
	h.channelsMu.RLock()
	clients := make([]*Client, 0, len(h.channels[channelID]))
	for client := range h.channels[channelID] {
		clients = append(clients, client)
	}
	h.channelsMu.RUnlock()

	h.deliver(clients, message, channelID)
}

func (h *Hub) deliver(clients []*Client, message []byte, channelID string) {
	for _, client := range clients {
		// 非阻塞发送，慢客户端直接跳过
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"channel_id": channelID,
				"session_id": client.SessionID(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 true 表示消息成功入队，false 表示队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// StopAllSubscriptions 关闭全部频道订阅，供优雅停机使用。
func (h *Hub) StopAllSubscriptions() {
	h.channelsMu.Lock()
	defer h.channelsMu.Unlock()
	for channelID := range h.subs {
		h.unsubscribeChannelLocked(channelID)
	}
	logrus.WithField("component", "hub").Info("All channel subscriptions stopped")
}
