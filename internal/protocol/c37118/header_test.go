package c37118

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16_CheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), CRC16([]byte("123456789")))
	assert.Equal(t, uint16(0xFFFF), CRC16(nil))
}

func TestParseHeader(t *testing.T) {
	raw := []byte{
		0xAA, 0x31, 0x01, 0x76, // CFG-2, version 1, 374 bytes
		0x1E, 0x36, // idcode 7734
		0x44, 0x85, 0x36, 0x00, // soc
		0x0F, 0x0B, 0x71, 0xB0, // fracsec
	}

	t.Run("完整帧头", func(t *testing.T) {
		h, err := ParseHeader(raw)
		require.NoError(t, err)
		assert.True(t, h.Complete())
		assert.Equal(t, FrameConfig2, h.Type)
		assert.Equal(t, uint8(1), h.Version)
		assert.Equal(t, uint16(374), h.FrameSize)
		assert.Equal(t, uint16(7734), h.IDCode)
		assert.Equal(t, uint32(0x44853600), h.SOC)
		assert.Equal(t, uint8(0x0F), h.TimeQuality)
		assert.Equal(t, uint32(0x0B71B0), h.FracSec)
	})

	t.Run("仅前缀", func(t *testing.T) {
		h, err := ParseHeader(raw[:4])
		require.NoError(t, err)
		assert.False(t, h.Complete())
		assert.Equal(t, uint16(374), h.FrameSize)
		assert.Zero(t, h.IDCode)
	})

	t.Run("不足4字节", func(t *testing.T) {
		_, err := ParseHeader(raw[:3])
		assert.ErrorIs(t, err, ErrTruncatedFrame)
	})

	t.Run("同步字错误", func(t *testing.T) {
		bad := append([]byte{0xAB}, raw[1:]...)
		_, err := ParseHeader(bad)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("未定义帧类型", func(t *testing.T) {
		for _, b1 := range []byte{0x61, 0x71} {
			bad := append([]byte{0xAA, b1}, raw[2:]...)
			_, err := ParseHeader(bad)
			require.ErrorIs(t, err, ErrUnknownEnumValue)
			var ee *EnumError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, "frame_type", ee.Field)
			assert.Equal(t, uint32(b1>>4), ee.Raw)
		}
	})

	t.Run("声明长度过小", func(t *testing.T) {
		bad := append([]byte{0xAA, 0x01, 0x00, 0x0F}, raw[4:]...)
		_, err := ParseHeader(bad)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})
}

func TestFrameTypeString(t *testing.T) {
	assert.Equal(t, "DATA", FrameData.String())
	assert.Equal(t, "CONFIG3", FrameConfig3.String())
	assert.Equal(t, "FrameType(7)", FrameType(7).String())
	assert.True(t, FrameConfig1.IsConfig())
	assert.False(t, FrameCommand.IsConfig())
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "config_required", Kind(ErrConfigRequired))
	assert.Equal(t, "config_mismatch", Kind(ErrConfigDataMismatch))
	assert.Equal(t, "unknown_enum", Kind(&EnumError{Field: "x", Raw: 9}))
	assert.Equal(t, "truncated", Kind(errors.Join(errors.New("ctx"), ErrTruncatedFrame)))
	assert.Equal(t, "other", Kind(errors.New("boom")))
}
