package scheduler

import (
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/tasks"
)

// Enqueuer 抽象了任务入队操作，由 *asynq.Client 满足。
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// boardEntry 是单个画板的防抖状态。timer 悬挂期间到达的后续变更
// 只刷新 lastChange，不追加新任务。
type boardEntry struct {
	pending    bool
	lastChange time.Time
	lastActor  string
	timer      *time.Timer
}

// Debouncer 把密集的画板变更合并为稀疏的重新生成任务：
// 每个画板最多悬挂一个定时器，窗口内的 N 次变更只产生一个任务。
type Debouncer struct {
	mu      sync.Mutex
	entries map[string]*boardEntry // key: channelID + "/" + boardID
	client  Enqueuer
	delay   time.Duration
	closed  bool
	log     *logrus.Entry
}

// NewDebouncer 创建防抖调度器。
func NewDebouncer(client Enqueuer, delay time.Duration) *Debouncer {
	if client == nil {
		panic("Enqueuer cannot be nil for Debouncer")
	}
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Debouncer{
		entries: make(map[string]*boardEntry),
		client:  client,
		delay:   delay,
		log:     logrus.WithField("component", "debounce_scheduler"),
	}
}

// NotifyChanged 记录一次画板变更。没有悬挂定时器时启动一个；
// 已有悬挂定时器时只刷新最后变更信息，任务数不增加。
func (d *Debouncer) NotifyChanged(channelID, boardID, actorID string) {
	key := channelID + "/" + boardID

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	entry, ok := d.entries[key]
	if !ok {
		entry = &boardEntry{}
		d.entries[key] = entry
	}
	entry.lastChange = time.Now()
	entry.lastActor = actorID
	if entry.pending {
		return
	}

	entry.pending = true
	entry.timer = time.AfterFunc(d.delay, func() {
		d.fire(key, channelID, boardID)
	})
}

// fire 在防抖窗口到期时入队恰好一个重新生成任务。
// 无论入队成败都先清除 pending 标记，保证后续变更总能再次调度。
func (d *Debouncer) fire(key, channelID, boardID string) {
	d.mu.Lock()
	entry, ok := d.entries[key]
	if !ok || d.closed {
		d.mu.Unlock()
		return
	}
	entry.pending = false
	entry.timer = nil
	actor := entry.lastActor
	d.mu.Unlock()

	logCtx := d.log.WithFields(logrus.Fields{
		"channel_id": channelID,
		"board_id":   boardID,
		"actor_id":   actor,
	})

	task, err := tasks.NewBoardRegenerateTask(channelID, boardID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build regenerate task")
		return
	}
	if _, err := d.client.Enqueue(task); err != nil {
		// 任务丢了也无妨：下一次 NotifyChanged 会重新调度
		logCtx.WithError(err).Error("Failed to enqueue regenerate task")
		return
	}
	logCtx.Debug("Regenerate task enqueued")
}

// Close 停止所有悬挂的定时器。之后的 NotifyChanged 调用不再生效。
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, entry := range d.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	d.entries = nil
	d.log.Info("Debounce scheduler closed")
}
