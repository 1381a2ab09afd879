package transfer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/testutil"
)

func sampleDataFrame(t *testing.T) *c37118.DataFrame {
	t.Helper()
	cfg := testutil.SampleConfig(1)
	second := testutil.SampleStation(2)
	second.PhasorUnits[1].Kind = c37118.Current
	cfg.Stations = append(cfg.Stations, second)

	frame := testutil.MustBuildDataFrame(cfg, 1149577200, 250000, testutil.SampleBlock(), testutil.SampleBlock())
	df, err := c37118.ParseDataFrame(frame, cfg, c37118.ParseOptions{})
	require.NoError(t, err)
	return df
}

func TestNewFrame(t *testing.T) {
	f := NewFrame(sampleDataFrame(t))
	assert.InDelta(t, 1149577200.25, f.Timestamp, 1e-6)
	require.Len(t, f.Fields, 4)
	for i, fd := range f.Fields {
		assert.Equal(t, uint16(i), fd.ID)
	}
	assert.InDelta(t, math.Hypot(9000, 9000), f.Fields[1].Magnitude, 1e-9)
	assert.InDelta(t, math.Pi/4, f.Fields[1].Angle, 1e-9)
	assert.Equal(t, UnitVoltage, f.Fields[2].Unit)
	assert.Equal(t, UnitCurrent, f.Fields[3].Unit)
}

func TestEncode(t *testing.T) {
	f := &Frame{
		Timestamp: 1.5,
		Fields:    []PhasorField{{ID: 0, Magnitude: 2, Angle: -1, Unit: UnitCurrent}},
	}

	t.Run("无CRC", func(t *testing.T) {
		b := f.Encode(EncodeOptions{})
		require.Len(t, b, 36)
		assert.Equal(t, []byte{0xAA, 0xFF}, b[:2])
		assert.Equal(t, uint32(36), binary.BigEndian.Uint32(b[2:6]))
		assert.Equal(t, 1.5, math.Float64frombits(binary.BigEndian.Uint64(b[6:14])))
		assert.Equal(t, uint16(1), binary.BigEndian.Uint16(b[14:16]))
		assert.Equal(t, uint16(0x8000), binary.BigEndian.Uint16(b[34:36]))

		got, err := Decode(b)
		require.NoError(t, err)
		assert.Nil(t, got.CRC)
		assert.Equal(t, f.Fields, got.Fields)
	})

	t.Run("带CRC", func(t *testing.T) {
		b := f.Encode(EncodeOptions{CRC: true})
		require.Len(t, b, 38)
		assert.Equal(t, uint32(38), binary.BigEndian.Uint32(b[2:6]))
		assert.Equal(t, c37118.CRC16(b[:36]), binary.BigEndian.Uint16(b[36:]))

		got, err := Decode(b)
		require.NoError(t, err)
		require.NotNil(t, got.CRC)
		assert.Equal(t, c37118.CRC16(b[:36]), *got.CRC)
		assert.Equal(t, f.Timestamp, got.Timestamp)
	})
}

func TestDecode_Errors(t *testing.T) {
	f := NewFrame(sampleDataFrame(t))
	b := f.Encode(EncodeOptions{CRC: true})

	t.Run("截断", func(t *testing.T) {
		_, err := Decode(b[:len(b)-1])
		assert.ErrorIs(t, err, c37118.ErrTruncatedFrame)
		_, err = Decode(b[:4])
		assert.ErrorIs(t, err, c37118.ErrTruncatedFrame)
	})
	t.Run("魔数错误", func(t *testing.T) {
		bad := append([]byte(nil), b...)
		bad[1] = 0xFE
		_, err := Decode(bad)
		assert.ErrorIs(t, err, c37118.ErrMalformedFrame)
	})
	t.Run("CRC错误", func(t *testing.T) {
		bad := append([]byte(nil), b...)
		bad[20] ^= 0x01
		_, err := Decode(bad)
		assert.ErrorIs(t, err, c37118.ErrChecksumMismatch)
	})
	t.Run("计数与长度不符", func(t *testing.T) {
		bad := append([]byte(nil), b...)
		binary.BigEndian.PutUint16(bad[14:16], 3)
		_, err := Decode(bad)
		assert.ErrorIs(t, err, c37118.ErrLengthMismatch)
	})
	t.Run("多余字节", func(t *testing.T) {
		_, err := Decode(append(append([]byte(nil), b...), 0))
		assert.ErrorIs(t, err, c37118.ErrLengthMismatch)
	})
}
