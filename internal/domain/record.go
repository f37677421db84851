package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DrawMode 表示一条绘制记录的绘制模式。
type DrawMode string

const (
	ModePen    DrawMode = "pen"    // 画笔：source-over 叠加描边
	ModeEraser DrawMode = "eraser" // 橡皮：destination-out 清除像素
)

// LineCap 表示描边端点样式。
type LineCap string

const (
	CapRound  LineCap = "round"
	CapButt   LineCap = "butt"
	CapSquare LineCap = "square"
)

// StrokeSegment 表示一次笔画中的一小段线段，坐标均为非负数，
// 且受画板宽高约束。创建后不可变。
type StrokeSegment struct {
	FromX float64 `json:"fromX"`
	FromY float64 `json:"fromY"`
	ToX   float64 `json:"toX"`
	ToY   float64 `json:"toY"`
}

// DrawOptions 表示附加在记录（而非单个线段）上的绘制选项。
type DrawOptions struct {
	Mode        DrawMode `json:"mode"`
	StrokeStyle string   `json:"strokeStyle"`
	LineWidth   float64  `json:"lineWidth"`
	LineCap     LineCap  `json:"lineCap"`
}

// DrawRecord 表示一次已完结的笔画手势，是撤销/重做与归档的原子单元。
// 仅允许通过切换 IsUndo（撤销/重做）或 IsArchived（归档）来变更，
// 其余字段写入后不再修改。
type DrawRecord struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ChannelID string `gorm:"size:64;index:idx_channel_board;not null" json:"channelId"`
	BoardID   string `gorm:"size:64;index:idx_channel_board;index;not null" json:"boardId"`
	// Seq 是每个画板内单调递增的序号，作为 CreatedAt 的次级排序键，
	// 避免并发写入下时钟粒度过粗导致的同时间戳歧义。
	Seq         uint64    `gorm:"index;not null" json:"seq"`
	Segments    string    `gorm:"type:text;not null" json:"-"` // JSON 编码的线段序列（紧凑线格式）
	Mode        string    `gorm:"size:16;not null" json:"mode"`
	StrokeStyle string    `gorm:"size:32" json:"strokeStyle"`
	LineWidth   float64   `gorm:"not null" json:"lineWidth"`
	LineCap     string    `gorm:"size:16" json:"lineCap"`
	IsUndo      bool      `gorm:"index;not null;default:false" json:"isUndo"`
	IsArchived  bool      `gorm:"index;not null;default:false" json:"isArchived"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// Options 返回记录上携带的绘制选项。
func (r *DrawRecord) Options() DrawOptions {
	return DrawOptions{
		Mode:        DrawMode(r.Mode),
		StrokeStyle: r.StrokeStyle,
		LineWidth:   r.LineWidth,
		LineCap:     LineCap(r.LineCap),
	}
}

// SetOptions 将绘制选项写入记录字段。
func (r *DrawRecord) SetOptions(opts DrawOptions) {
	r.Mode = string(opts.Mode)
	r.StrokeStyle = opts.StrokeStyle
	r.LineWidth = opts.LineWidth
	r.LineCap = string(opts.LineCap)
}

// ParseSegments 将 Segments 字段（JSON 字符串）解析为线段序列。
func (r *DrawRecord) ParseSegments() ([]StrokeSegment, error) {
	if r.Segments == "" || r.Segments == "null" {
		return nil, fmt.Errorf("record segments are empty (record id %d)", r.ID)
	}
	var raw [][]float64
	if err := json.Unmarshal([]byte(r.Segments), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record segments: %w", err)
	}
	segs := make([]StrokeSegment, 0, len(raw))
	for i, vals := range raw {
		if len(vals) != 4 {
			return nil, fmt.Errorf("segment %d has %d values, want 4", i, len(vals))
		}
		segs = append(segs, StrokeSegment{FromX: vals[0], FromY: vals[1], ToX: vals[2], ToY: vals[3]})
	}
	return segs, nil
}

// SetSegments 将线段序列编码为紧凑线格式并写入 Segments 字段。
func (r *DrawRecord) SetSegments(segs []StrokeSegment) error {
	raw := make([][]float64, 0, len(segs))
	for _, s := range segs {
		raw = append(raw, []float64{s.FromX, s.FromY, s.ToX, s.ToY})
	}
	bytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal record segments: %w", err)
	}
	r.Segments = string(bytes)
	return nil
}
