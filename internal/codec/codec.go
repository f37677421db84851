package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"collaborative-whiteboard/internal/domain"
)

// 线格式错误。调用方通常用 errors.Is 判断后映射为业务层的校验错误。
var (
	ErrInvalidSegment = errors.New("codec: invalid stroke segment")
	ErrInvalidOptions = errors.New("codec: invalid draw options")
)

// EncodeSegment 将线段转换为紧凑线格式：恰好 4 个数值 [fromX, fromY, toX, toY]。
func EncodeSegment(seg domain.StrokeSegment) []float64 {
	return []float64{seg.FromX, seg.FromY, seg.ToX, seg.ToY}
}

// DecodeSegment 从紧凑线格式还原线段。数值个数不是 4 或存在负数时拒绝。
func DecodeSegment(vals []float64) (domain.StrokeSegment, error) {
	var seg domain.StrokeSegment
	if len(vals) != 4 {
		return seg, fmt.Errorf("%w: got %d values, want 4", ErrInvalidSegment, len(vals))
	}
	for i, v := range vals {
		if v < 0 {
			return seg, fmt.Errorf("%w: value %d is negative (%v)", ErrInvalidSegment, i, v)
		}
	}
	seg = domain.StrokeSegment{FromX: vals[0], FromY: vals[1], ToX: vals[2], ToY: vals[3]}
	return seg, nil
}

// MarshalSegment 将单个线段编码为 JSON 线格式（用于流缓冲区的列表元素）。
func MarshalSegment(seg domain.StrokeSegment) ([]byte, error) {
	bytes, err := json.Marshal(EncodeSegment(seg))
	if err != nil {
		return nil, fmt.Errorf("codec: failed to marshal segment: %w", err)
	}
	return bytes, nil
}

// UnmarshalSegment 从 JSON 线格式解码单个线段。
func UnmarshalSegment(data []byte) (domain.StrokeSegment, error) {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return domain.StrokeSegment{}, fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	return DecodeSegment(vals)
}

// ValidateSegment 校验线段坐标是否落在画板范围内。
// 超界或负数坐标一律拒绝，绝不静默截断。
func ValidateSegment(seg domain.StrokeSegment, boardWidth, boardHeight float64) error {
	coords := [...]struct {
		name  string
		value float64
		max   float64
	}{
		{"fromX", seg.FromX, boardWidth},
		{"fromY", seg.FromY, boardHeight},
		{"toX", seg.ToX, boardWidth},
		{"toY", seg.ToY, boardHeight},
	}
	for _, c := range coords {
		if c.value < 0 {
			return fmt.Errorf("%w: %s is negative (%v)", ErrInvalidSegment, c.name, c.value)
		}
		if c.value > c.max {
			return fmt.Errorf("%w: %s out of range (%v > %v)", ErrInvalidSegment, c.name, c.value, c.max)
		}
	}
	return nil
}

// ValidateOptions 校验绘制选项：仅允许已知模式与端点样式，线宽必须为正。
func ValidateOptions(opts domain.DrawOptions) error {
	switch opts.Mode {
	case domain.ModePen, domain.ModeEraser:
	default:
		return fmt.Errorf("%w: unknown draw mode %q", ErrInvalidOptions, opts.Mode)
	}
	if opts.LineWidth <= 0 {
		return fmt.Errorf("%w: line width must be positive (%v)", ErrInvalidOptions, opts.LineWidth)
	}
	switch opts.LineCap {
	case domain.CapRound, domain.CapButt, domain.CapSquare, "":
	default:
		return fmt.Errorf("%w: unknown line cap %q", ErrInvalidOptions, opts.LineCap)
	}
	return nil
}
