package service

import "errors"

var (
	ErrBoardNotFound       = errors.New("board not found")
	ErrInvalidRecord       = errors.New("invalid draw record")
	ErrStreamLimitExceeded = errors.New("stream buffer limit exceeded: finalize the record first")
	ErrEmptyStream         = errors.New("stream buffer is empty: nothing to finalize")
	ErrInternalServer      = errors.New("internal server error")
)
