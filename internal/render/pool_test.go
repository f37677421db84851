package render

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"collaborative-whiteboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T, maxSize int) *Pool {
	t.Helper()
	p := NewPool(Config{
		Width:         64,
		Height:        64,
		MaxSize:       maxSize,
		IdleTimeout:   time.Minute,
		RenderTimeout: 5 * time.Second,
	})
	t.Cleanup(p.Close)
	return p
}

func TestPool_NeverExceedsMaxSize(t *testing.T) {
	// Arrange
	pool := testPool(t, 3)
	ctx := context.Background()

	var live int32
	var maxLive int32
	var wg sync.WaitGroup

	// Act: 并发获取远多于上限的租约
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := pool.Acquire(ctx, PriorityBackground)
			require.NoError(t, err)
			n := atomic.AddInt32(&live, 1)
			for {
				prev := atomic.LoadInt32(&maxLive)
				if n <= prev || atomic.CompareAndSwapInt32(&maxLive, prev, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&live, -1)
			lease.Release()
		}()
	}
	wg.Wait()

	// Assert
	assert.LessOrEqual(t, atomic.LoadInt32(&maxLive), int32(3), "存活租约数不应超过池上限")
}

func TestPool_InteractiveServedBeforeBackground(t *testing.T) {
	// Arrange: 占满池
	pool := testPool(t, 1)
	ctx := context.Background()

	holder, err := pool.Acquire(ctx, PriorityBackground)
	require.NoError(t, err)

	order := make(chan string, 2)
	var started sync.WaitGroup
	started.Add(2)

	// 先排队一个 BACKGROUND 等待者
	go func() {
		started.Done()
		lease, err := pool.Acquire(ctx, PriorityBackground)
		require.NoError(t, err)
		order <- "background"
		lease.Release()
	}()
	time.Sleep(20 * time.Millisecond) // 确保 background 先入队

	// 再排队一个 INTERACTIVE 等待者
	go func() {
		started.Done()
		lease, err := pool.Acquire(ctx, PriorityInteractive)
		require.NoError(t, err)
		order <- "interactive"
		lease.Release()
	}()
	started.Wait()
	time.Sleep(20 * time.Millisecond)

	// Act: 释放持有者
	holder.Release()

	// Assert: INTERACTIVE 虽然后到，但先得到画面
	first := <-order
	second := <-order
	assert.Equal(t, "interactive", first, "交互请求应先于先入队的后台请求得到服务")
	assert.Equal(t, "background", second)
}

func TestPool_AcquireCancelledByContext(t *testing.T) {
	pool := testPool(t, 1)
	holder, err := pool.Acquire(context.Background(), PriorityBackground)
	require.NoError(t, err)
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx, PriorityInteractive)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "排队中取消应返回 ctx 错误")
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	pool := testPool(t, 1)
	lease, err := pool.Acquire(context.Background(), PriorityInteractive)
	require.NoError(t, err)

	lease.Release()
	lease.Release() // 第二次释放应是空操作

	// 池容量不应被破坏：仍可获取
	again, err := pool.Acquire(context.Background(), PriorityInteractive)
	require.NoError(t, err)
	again.Release()
}

func TestPool_CompositeAfterReleaseFails(t *testing.T) {
	pool := testPool(t, 1)
	lease, err := pool.Acquire(context.Background(), PriorityInteractive)
	require.NoError(t, err)
	lease.Release()

	_, _, err = lease.Composite(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrLeaseReleased)
}

func TestPool_AcquireAfterCloseFails(t *testing.T) {
	pool := NewPool(Config{Width: 8, Height: 8, MaxSize: 1})
	pool.Close()

	_, err := pool.Acquire(context.Background(), PriorityInteractive)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestLease_CompositeRendersRecords(t *testing.T) {
	// Arrange
	pool := testPool(t, 1)
	lease, err := pool.Acquire(context.Background(), PriorityInteractive)
	require.NoError(t, err)
	defer lease.Release()

	record := domain.DrawRecord{ID: 1, Mode: string(domain.ModePen), StrokeStyle: "#ff0000", LineWidth: 2}
	require.NoError(t, record.SetSegments([]domain.StrokeSegment{{FromX: 0, FromY: 0, ToX: 10, ToY: 10}}))

	// Act
	image, changed, err := lease.Composite(context.Background(), nil, []domain.DrawRecord{record})

	// Assert
	require.NoError(t, err)
	assert.True(t, changed, "重放了记录时 changed 应为 true")
	assert.NotEmpty(t, image, "应返回 PNG 编码结果")
}

func TestLease_CompositeNoRecordsIsNoop(t *testing.T) {
	pool := testPool(t, 1)
	lease, err := pool.Acquire(context.Background(), PriorityInteractive)
	require.NoError(t, err)
	defer lease.Release()

	// 只有已撤销的记录：不应产生任何变化
	undone := domain.DrawRecord{ID: 2, Mode: string(domain.ModePen), LineWidth: 1, IsUndo: true}
	require.NoError(t, undone.SetSegments([]domain.StrokeSegment{{ToX: 5, ToY: 5}}))

	image, changed, err := lease.Composite(context.Background(), nil, []domain.DrawRecord{undone})
	require.NoError(t, err)
	assert.False(t, changed, "无有效记录时应报告无变化")
	assert.Nil(t, image)
}
