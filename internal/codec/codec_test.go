package codec_test

import (
	"errors"
	"testing"

	"collaborative-whiteboard/internal/codec"
	"collaborative-whiteboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSegment_RoundTrip(t *testing.T) {
	// Arrange
	seg := domain.StrokeSegment{FromX: 1.5, FromY: 2, ToX: 300, ToY: 450.25}

	// Act
	wire := codec.EncodeSegment(seg)
	decoded, err := codec.DecodeSegment(wire)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 300, 450.25}, wire, "线格式应为 4 个数值")
	assert.Equal(t, seg, decoded, "编解码往返应得到原线段")
}

func TestDecodeSegment_WrongArity(t *testing.T) {
	_, err := codec.DecodeSegment([]float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrInvalidSegment), "数值个数不为 4 时应返回 ErrInvalidSegment")
}

func TestDecodeSegment_NegativeValue(t *testing.T) {
	_, err := codec.DecodeSegment([]float64{1, -2, 3, 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrInvalidSegment))
}

func TestUnmarshalSegment_InvalidJSON(t *testing.T) {
	_, err := codec.UnmarshalSegment([]byte(`{"not":"an array"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrInvalidSegment))
}

func TestValidateSegment_Bounds(t *testing.T) {
	// 画板 800x600
	ok := domain.StrokeSegment{FromX: 0, FromY: 0, ToX: 800, ToY: 600}
	assert.NoError(t, codec.ValidateSegment(ok, 800, 600), "边界值本身应合法")

	outX := domain.StrokeSegment{FromX: 0, FromY: 0, ToX: 800.1, ToY: 10}
	err := codec.ValidateSegment(outX, 800, 600)
	require.Error(t, err, "超出画板宽度应被拒绝")
	assert.True(t, errors.Is(err, codec.ErrInvalidSegment))

	neg := domain.StrokeSegment{FromX: -1, FromY: 0, ToX: 10, ToY: 10}
	assert.Error(t, codec.ValidateSegment(neg, 800, 600), "负坐标应被拒绝")
}

func TestValidateOptions(t *testing.T) {
	valid := domain.DrawOptions{Mode: domain.ModePen, StrokeStyle: "#000000", LineWidth: 2, LineCap: domain.CapRound}
	assert.NoError(t, codec.ValidateOptions(valid))

	eraser := domain.DrawOptions{Mode: domain.ModeEraser, LineWidth: 16}
	assert.NoError(t, codec.ValidateOptions(eraser), "橡皮模式允许省略颜色与端点样式")

	badMode := domain.DrawOptions{Mode: "spray", LineWidth: 2}
	err := codec.ValidateOptions(badMode)
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrInvalidOptions), "未知模式应返回 ErrInvalidOptions")

	badWidth := domain.DrawOptions{Mode: domain.ModePen, LineWidth: 0}
	assert.Error(t, codec.ValidateOptions(badWidth), "线宽必须为正")

	badCap := domain.DrawOptions{Mode: domain.ModePen, LineWidth: 1, LineCap: "diamond"}
	assert.Error(t, codec.ValidateOptions(badCap), "未知端点样式应被拒绝")
}
