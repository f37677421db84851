package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
)

// Priority 表示获取画面时的优先级类别。
type Priority int

const (
	// PriorityBackground 用于计划中的重新生成任务
	PriorityBackground Priority = iota
	// PriorityInteractive 用于用户正在等待结果的交互请求，
	// 画面空出时总是先于 Background 等待者得到服务
	PriorityInteractive
)

var (
	ErrPoolClosed    = errors.New("render: surface pool is closed")
	ErrRenderTimeout = errors.New("render: composite timed out")
	ErrLeaseReleased = errors.New("render: lease already released")
)

// Config 是画面池的配置
type Config struct {
	Width         int           // 画板宽度（像素）
	Height        int           // 画板高度（像素）
	MaxSize       int           // 并发画面数上限
	IdleTimeout   time.Duration // 空闲画面销毁时限
	RenderTimeout time.Duration // 单次合成的时间预算
}

// waiter 表示一个排队等待画面的请求
type waiter struct {
	ch       chan *Surface
	priority Priority
}

// Pool 是有界的合成画面池。画面在 Acquire 与 Release 之间被租约独占；
// 池满时等待者按优先级（而非 FIFO）出队；空闲画面超时销毁以释放内存。
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	idle    []*Surface
	inUse   int
	waiters []*waiter
	closed  bool
	stopCh  chan struct{}
	log     *logrus.Entry
}

// NewPool 创建画面池并启动空闲回收协程
func NewPool(cfg Config) *Pool {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		panic("surface dimensions must be positive for render pool")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 3
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}
	p := &Pool{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		log:    logrus.WithField("component", "render_pool"),
	}
	go p.reapIdle()
	return p
}

// Acquire 获取一个画面租约。池未满时按需创建画面；池满时阻塞排队，
// INTERACTIVE 等待者先于 BACKGROUND 得到服务。ctx 取消时放弃排队。
func (p *Pool) Acquire(ctx context.Context, priority Priority) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// 优先复用空闲画面
	if n := len(p.idle); n > 0 {
		surface := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		p.mu.Unlock()
		return p.newLease(surface), nil
	}

	// 池未满则按需创建
	if p.inUse < p.cfg.MaxSize {
		p.inUse++
		p.mu.Unlock()
		return p.newLease(newSurface(p.cfg.Width, p.cfg.Height)), nil
	}

	// 池满，排队等待
	w := &waiter{ch: make(chan *Surface, 1), priority: priority}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case surface, ok := <-w.ch:
		if !ok {
			return nil, ErrPoolClosed
		}
		return p.newLease(surface), nil
	case <-ctx.Done():
		p.removeWaiter(w)
		// 与并发的 Release 交接竞争：画面可能已经交给了本等待者
		select {
		case surface, ok := <-w.ch:
			if ok {
				p.release(surface, false)
			}
		default:
		}
		return nil, ctx.Err()
	}
}

func (p *Pool) newLease(s *Surface) *Lease {
	return &Lease{pool: p, surface: s}
}

// removeWaiter 将等待者从队列中摘除（ctx 取消路径）
func (p *Pool) removeWaiter(target *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// nextWaiter 按优先级选出下一个应被服务的等待者。
// 同优先级内保持到达顺序。调用方必须持有锁。
func (p *Pool) nextWaiter() *waiter {
	best := -1
	for i, w := range p.waiters {
		if w.priority == PriorityInteractive {
			best = i
			break
		}
		if best == -1 {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	w := p.waiters[best]
	p.waiters = append(p.waiters[:best], p.waiters[best+1:]...)
	return w
}

// release 归还画面。broken 为真时丢弃画面（例如合成超时后画面状态不可信），
// 但等待者仍会得到一个新画面，容量不因此泄漏。
func (p *Pool) release(surface *Surface, broken bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.inUse--
		return
	}

	if w := p.nextWaiter(); w != nil {
		// 直接交接：inUse 计数保持不变
		if broken {
			surface = newSurface(p.cfg.Width, p.cfg.Height)
		}
		w.ch <- surface
		return
	}

	p.inUse--
	if !broken {
		surface.lastUsed = time.Now()
		p.idle = append(p.idle, surface)
	}
}

// reapIdle 周期性销毁超过空闲时限的画面以释放内存
func (p *Pool) reapIdle() {
	interval := p.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			cutoff := time.Now().Add(-p.cfg.IdleTimeout)
			kept := p.idle[:0]
			reaped := 0
			for _, s := range p.idle {
				if s.lastUsed.Before(cutoff) {
					reaped++
					continue
				}
				kept = append(kept, s)
			}
			p.idle = kept
			p.mu.Unlock()
			if reaped > 0 {
				p.log.WithField("reaped", reaped).Debug("Idle surfaces destroyed")
			}
		case <-p.stopCh:
			return
		}
	}
}

// Close 关闭池：唤醒所有等待者并停止回收协程
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	p.idle = nil
	p.mu.Unlock()

	close(p.stopCh)
	for _, w := range waiters {
		close(w.ch)
	}
	p.log.Info("Render pool closed")
}

// Lease 是一次画面获取的作用域句柄。所有退出路径都必须调用 Release；
// Release 幂等，重复调用无副作用。
type Lease struct {
	pool     *Pool
	mu       sync.Mutex
	surface  *Surface
	broken   bool
	released bool
}

// Composite 在租约持有的画面上执行合成，受池的渲染时间预算约束。
// 超时返回 ErrRenderTimeout；此时画面状态不可信，Release 会将其丢弃
// 而不是归还复用，池容量不受影响。
func (l *Lease) Composite(ctx context.Context, base []byte, records []domain.DrawRecord) ([]byte, bool, error) {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil, false, ErrLeaseReleased
	}
	surface := l.surface
	l.mu.Unlock()

	type result struct {
		image   []byte
		changed bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		image, changed, err := surface.composite(base, records)
		done <- result{image, changed, err}
	}()

	timer := time.NewTimer(l.pool.cfg.RenderTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.image, res.changed, res.err
	case <-timer.C:
		l.markBroken()
		return nil, false, ErrRenderTimeout
	case <-ctx.Done():
		l.markBroken()
		return nil, false, ctx.Err()
	}
}

func (l *Lease) markBroken() {
	l.mu.Lock()
	l.broken = true
	l.mu.Unlock()
}

// Release 归还画面。幂等；必须在所有退出路径上调用。
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	surface := l.surface
	broken := l.broken
	l.surface = nil
	l.mu.Unlock()

	l.pool.release(surface, broken)
}
