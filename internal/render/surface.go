package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"

	"collaborative-whiteboard/internal/domain"
)

// Surface 是固定分辨率的栅格画面，由工作池管理。
// 在 Acquire 与 Release 之间由租约持有者独占，不允许并发使用。
type Surface struct {
	img      *image.RGBA
	width    int
	height   int
	lastUsed time.Time
}

func newSurface(width, height int) *Surface {
	return &Surface{
		img:      image.NewRGBA(image.Rect(0, 0, width, height)),
		width:    width,
		height:   height,
		lastUsed: time.Now(),
	}
}

// composite 在基底图上按 (created_at, seq) 顺序重放记录的线段。
// 画笔记录做 source-over 描边，橡皮记录做 destination-out 清除。
// 已撤销的记录不贡献任何像素（归档为空操作）。
// 返回 (PNG 编码结果, 是否有记录被重放, 错误)。
func (s *Surface) composite(base []byte, records []domain.DrawRecord) ([]byte, bool, error) {
	if err := s.reset(base); err != nil {
		return nil, false, err
	}

	changed := false
	for i := range records {
		record := &records[i]
		if record.IsUndo {
			continue
		}
		segments, err := record.ParseSegments()
		if err != nil {
			return nil, false, fmt.Errorf("render: record %d has invalid segments: %w", record.ID, err)
		}
		opts := record.Options()
		for _, seg := range segments {
			s.drawSegment(seg, opts)
		}
		changed = true
	}

	if !changed {
		return nil, false, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, s.img); err != nil {
		return nil, false, fmt.Errorf("render: failed to encode composite image: %w", err)
	}
	return buf.Bytes(), true, nil
}

// reset 用基底图填充画面；基底为空时清为全透明。
func (s *Surface) reset(base []byte) error {
	for i := range s.img.Pix {
		s.img.Pix[i] = 0
	}
	if len(base) == 0 {
		return nil
	}
	decoded, err := png.Decode(bytes.NewReader(base))
	if err != nil {
		return fmt.Errorf("render: failed to decode base image: %w", err)
	}
	xdraw.Draw(s.img, s.img.Bounds(), decoded, image.Point{}, xdraw.Src)
	return nil
}

// drawSegment 沿线段步进，以线宽一半为半径逐点盖章。
func (s *Surface) drawSegment(seg domain.StrokeSegment, opts domain.DrawOptions) {
	radius := opts.LineWidth / 2
	if radius < 0.5 {
		radius = 0.5
	}

	dx := seg.ToX - seg.FromX
	dy := seg.ToY - seg.FromY
	length := math.Hypot(dx, dy)
	steps := int(math.Ceil(length)) + 1

	var col color.RGBA
	erase := opts.Mode == domain.ModeEraser
	if !erase {
		col = parseHexColor(opts.StrokeStyle)
	}

	for i := 0; i < steps; i++ {
		t := 0.0
		if steps > 1 {
			t = float64(i) / float64(steps-1)
		}
		s.stamp(seg.FromX+dx*t, seg.FromY+dy*t, radius, col, erase)
	}
}

// stamp 在 (cx, cy) 处画一个半径为 r 的实心圆盘。
// erase 为真时清除像素（destination-out），否则覆盖为给定颜色。
func (s *Surface) stamp(cx, cy, r float64, col color.RGBA, erase bool) {
	minX := int(math.Floor(cx - r))
	maxX := int(math.Ceil(cx + r))
	minY := int(math.Floor(cy - r))
	maxY := int(math.Ceil(cy + r))
	r2 := r * r

	for y := minY; y <= maxY; y++ {
		if y < 0 || y >= s.height {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < 0 || x >= s.width {
				continue
			}
			ddx := float64(x) - cx
			ddy := float64(y) - cy
			if ddx*ddx+ddy*ddy > r2 {
				continue
			}
			if erase {
				s.img.SetRGBA(x, y, color.RGBA{})
			} else {
				s.img.SetRGBA(x, y, col)
			}
		}
	}
}

// parseHexColor 解析 "#RRGGBB" 或 "#RGB" 形式的颜色字符串，解析失败时回退为黑色。
func parseHexColor(style string) color.RGBA {
	col := color.RGBA{A: 0xff}
	if len(style) == 0 || style[0] != '#' {
		return col
	}
	hex := style[1:]
	parse := func(s string) (uint8, bool) {
		var v uint64
		for _, c := range s {
			v <<= 4
			switch {
			case c >= '0' && c <= '9':
				v |= uint64(c - '0')
			case c >= 'a' && c <= 'f':
				v |= uint64(c-'a') + 10
			case c >= 'A' && c <= 'F':
				v |= uint64(c-'A') + 10
			default:
				return 0, false
			}
		}
		return uint8(v), true
	}
	switch len(hex) {
	case 6:
		if r, ok := parse(hex[0:2]); ok {
			col.R = r
		}
		if g, ok := parse(hex[2:4]); ok {
			col.G = g
		}
		if b, ok := parse(hex[4:6]); ok {
			col.B = b
		}
	case 3:
		if r, ok := parse(hex[0:1]); ok {
			col.R = r * 17
		}
		if g, ok := parse(hex[1:2]); ok {
			col.G = g * 17
		}
		if b, ok := parse(hex[2:3]); ok {
			col.B = b * 17
		}
	}
	return col
}

// ScalePreview 将合成图缩放为预览尺寸，返回 PNG 编码结果。
func ScalePreview(composite []byte, width, height int) ([]byte, error) {
	if len(composite) == 0 {
		return nil, fmt.Errorf("render: empty composite image for preview")
	}
	src, err := png.Decode(bytes.NewReader(composite))
	if err != nil {
		return nil, fmt.Errorf("render: failed to decode composite for preview: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("render: failed to encode preview image: %w", err)
	}
	return buf.Bytes(), nil
}
