package service

import "sync"

// boardLocker 为每个画板维护一把互斥锁，串行化记录日志的变更
// （save/undo/redo/clean/archive）。锁按需创建，键为 boardID。
type boardLocker struct {
	locks sync.Map // boardID -> *sync.Mutex
}

func (l *boardLocker) Lock(boardID string) func() {
	v, _ := l.locks.LoadOrStore(boardID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
