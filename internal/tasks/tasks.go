package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	TypeBoardRegenerate = "board:regenerate" // 画板基底图与预览图重新生成
)

// BoardRegeneratePayload 是重新生成任务的数据结构。
// 任务只携带画板坐标，记录内容在 Worker 端按需读取，
// 保证延迟执行时使用的总是最新状态。
type BoardRegeneratePayload struct {
	ChannelID string `json:"channelId"`
	BoardID   string `json:"boardId"`
}

// NewBoardRegenerateTask 创建一个画板重新生成任务。
func NewBoardRegenerateTask(channelID, boardID string) (*asynq.Task, error) {
	payload := BoardRegeneratePayload{
		ChannelID: channelID,
		BoardID:   boardID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tasks: failed to marshal regenerate payload: %w", err)
	}
	return asynq.NewTask(TypeBoardRegenerate, payloadBytes, asynq.Queue("low")), nil
}
