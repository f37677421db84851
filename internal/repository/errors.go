package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入或更新的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrStreamLimitExceeded 表示实时流缓冲区已达到长度上限，
	// 调用方必须先完结记录并重置缓冲区
	ErrStreamLimitExceeded = errors.New("repository: stream buffer limit exceeded")
)

// 特定资源的错误 (基于通用错误创建)
var (
	ErrBoardNotFound  = ErrNotFound
	ErrRecordNotFound = ErrNotFound
)
