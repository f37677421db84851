package render

import (
	"bytes"
	"image/png"
	"testing"

	"collaborative-whiteboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func penRecord(t *testing.T, style string, width float64, segs []domain.StrokeSegment) domain.DrawRecord {
	t.Helper()
	r := domain.DrawRecord{Mode: string(domain.ModePen), StrokeStyle: style, LineWidth: width}
	require.NoError(t, r.SetSegments(segs))
	return r
}

func eraserRecord(t *testing.T, width float64, segs []domain.StrokeSegment) domain.DrawRecord {
	t.Helper()
	r := domain.DrawRecord{Mode: string(domain.ModeEraser), LineWidth: width}
	require.NoError(t, r.SetSegments(segs))
	return r
}

func TestSurface_PenDrawsPixels(t *testing.T) {
	s := newSurface(32, 32)
	rec := penRecord(t, "#ff0000", 4, []domain.StrokeSegment{{FromX: 16, FromY: 16, ToX: 16, ToY: 16}})

	encoded, changed, err := s.composite(nil, []domain.DrawRecord{rec})
	require.NoError(t, err)
	assert.True(t, changed)

	img, err := png.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	r, _, _, a := img.At(16, 16).RGBA()
	assert.NotZero(t, a, "画笔落点应不透明")
	assert.Equal(t, uint32(0xffff), r, "画笔颜色应为红色")
}

func TestSurface_EraserClearsPixels(t *testing.T) {
	s := newSurface(32, 32)
	pen := penRecord(t, "#00ff00", 6, []domain.StrokeSegment{{FromX: 16, FromY: 16, ToX: 16, ToY: 16}})
	eraser := eraserRecord(t, 10, []domain.StrokeSegment{{FromX: 16, FromY: 16, ToX: 16, ToY: 16}})

	encoded, changed, err := s.composite(nil, []domain.DrawRecord{pen, eraser})
	require.NoError(t, err)
	assert.True(t, changed)

	img, err := png.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	_, _, _, a := img.At(16, 16).RGBA()
	assert.Zero(t, a, "橡皮经过的像素应被清为透明")
}

func TestSurface_CompositeOnBaseImage(t *testing.T) {
	// 先生成一张带红点的基底图
	s := newSurface(32, 32)
	base, _, err := s.composite(nil, []domain.DrawRecord{
		penRecord(t, "#ff0000", 4, []domain.StrokeSegment{{FromX: 8, FromY: 8, ToX: 8, ToY: 8}}),
	})
	require.NoError(t, err)

	// 在基底之上叠加一个蓝点
	encoded, changed, err := s.composite(base, []domain.DrawRecord{
		penRecord(t, "#0000ff", 4, []domain.StrokeSegment{{FromX: 24, FromY: 24, ToX: 24, ToY: 24}}),
	})
	require.NoError(t, err)
	assert.True(t, changed)

	img, err := png.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	r1, _, _, a1 := img.At(8, 8).RGBA()
	_, _, b2, a2 := img.At(24, 24).RGBA()
	assert.NotZero(t, a1, "基底内容应被保留")
	assert.Equal(t, uint32(0xffff), r1)
	assert.NotZero(t, a2, "新记录应叠加在基底之上")
	assert.Equal(t, uint32(0xffff), b2)
}

func TestSurface_UndoneRecordContributesNothing(t *testing.T) {
	s := newSurface(32, 32)
	undone := penRecord(t, "#ff0000", 4, []domain.StrokeSegment{{FromX: 16, FromY: 16, ToX: 16, ToY: 16}})
	undone.IsUndo = true

	encoded, changed, err := s.composite(nil, []domain.DrawRecord{undone})
	require.NoError(t, err)
	assert.False(t, changed, "已撤销记录不应触发重绘")
	assert.Nil(t, encoded)
}

func TestSurface_InvalidBaseImageFails(t *testing.T) {
	s := newSurface(16, 16)
	_, _, err := s.composite([]byte("not a png"), []domain.DrawRecord{
		penRecord(t, "#000", 1, []domain.StrokeSegment{{ToX: 1, ToY: 1}}),
	})
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		style string
		r     uint8
		g     uint8
		b     uint8
	}{
		{"#ff0000", 0xff, 0x00, 0x00},
		{"#00FF00", 0x00, 0xff, 0x00},
		{"#f0f", 0xff, 0x00, 0xff},
		{"", 0x00, 0x00, 0x00},
		{"blue", 0x00, 0x00, 0x00}, // 非法格式回退为黑色
	}
	for _, tt := range tests {
		col := parseHexColor(tt.style)
		assert.Equal(t, tt.r, col.R, "R of %q", tt.style)
		assert.Equal(t, tt.g, col.G, "G of %q", tt.style)
		assert.Equal(t, tt.b, col.B, "B of %q", tt.style)
		assert.Equal(t, uint8(0xff), col.A)
	}
}

func TestScalePreview(t *testing.T) {
	s := newSurface(64, 64)
	composite, _, err := s.composite(nil, []domain.DrawRecord{
		penRecord(t, "#123456", 8, []domain.StrokeSegment{{FromX: 0, FromY: 0, ToX: 63, ToY: 63}}),
	})
	require.NoError(t, err)

	preview, err := ScalePreview(composite, 16, 16)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(preview))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestScalePreview_EmptyInputFails(t *testing.T) {
	_, err := ScalePreview(nil, 16, 16)
	assert.Error(t, err)
}
