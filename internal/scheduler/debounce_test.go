package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/tasks"
)

// fakeEnqueuer 记录入队的任务，可配置为总是失败。
type fakeEnqueuer struct {
	mu      sync.Mutex
	tasks   []*asynq.Task
	failAll bool
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("broker unavailable")
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func TestDebouncer_CoalescesBurstIntoOneTask(t *testing.T) {
	// Arrange
	enqueuer := &fakeEnqueuer{}
	d := NewDebouncer(enqueuer, 50*time.Millisecond)
	defer d.Close()

	// Act: 窗口内密集触发
	for i := 0; i < 10; i++ {
		d.NotifyChanged("chan-1", "board-1", "user-a")
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	// Assert: 只应产生一个任务
	require.Equal(t, 1, enqueuer.count(), "窗口内的 10 次变更应合并为 1 个任务")
	assert.Equal(t, tasks.TypeBoardRegenerate, enqueuer.tasks[0].Type())
}

func TestDebouncer_SpacedChangesEachFire(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	d := NewDebouncer(enqueuer, 20*time.Millisecond)
	defer d.Close()

	// 间隔超过防抖窗口的变更各自触发
	for i := 0; i < 3; i++ {
		d.NotifyChanged("chan-1", "board-1", "user-a")
		time.Sleep(80 * time.Millisecond)
	}

	assert.Equal(t, 3, enqueuer.count(), "间隔超过窗口的变更应各产生一个任务")
}

func TestDebouncer_IndependentBoards(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	d := NewDebouncer(enqueuer, 20*time.Millisecond)
	defer d.Close()

	d.NotifyChanged("chan-1", "board-1", "user-a")
	d.NotifyChanged("chan-1", "board-2", "user-a")
	d.NotifyChanged("chan-2", "board-1", "user-b")
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 3, enqueuer.count(), "不同画板的防抖状态应相互独立")
}

func TestDebouncer_EnqueueFailureClearsPending(t *testing.T) {
	// Arrange: 入队总是失败
	enqueuer := &fakeEnqueuer{failAll: true}
	d := NewDebouncer(enqueuer, 20*time.Millisecond)
	defer d.Close()

	d.NotifyChanged("chan-1", "board-1", "user-a")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, enqueuer.count())

	// Act: 恢复 broker 后的下一次变更必须仍能调度
	enqueuer.mu.Lock()
	enqueuer.failAll = false
	enqueuer.mu.Unlock()

	d.NotifyChanged("chan-1", "board-1", "user-a")
	time.Sleep(100 * time.Millisecond)

	// Assert
	assert.Equal(t, 1, enqueuer.count(), "入队失败后 pending 标记必须被清除，系统自愈")
}

func TestDebouncer_CloseStopsScheduling(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	d := NewDebouncer(enqueuer, 20*time.Millisecond)

	d.NotifyChanged("chan-1", "board-1", "user-a")
	d.Close()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, enqueuer.count(), "Close 之后不应再入队任务")
}
