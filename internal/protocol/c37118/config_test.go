package c37118_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/testutil"
)

func sampleConfigBytes(t *testing.T) []byte {
	t.Helper()
	b, err := testutil.SampleConfig(testutil.SampleIDCode).Encode()
	require.NoError(t, err)
	return b
}

// patchFrame 修改帧体后重新计算 CHK
func patchFrame(b []byte, off int, v ...byte) []byte {
	out := append([]byte(nil), b...)
	copy(out[off:], v)
	return testutil.Reseal(out)
}

const (
	stationOff = c37118.HeaderSize + 4 + 2
	formatOff  = stationOff + 16 + 2
	phunitOff  = stationOff + 16 + 2 + 2 + 6 + 19*16
)

func TestParseConfigFrame_RoundTrip(t *testing.T) {
	raw := sampleConfigBytes(t)
	require.Len(t, raw, 374)

	cfg, err := c37118.ParseConfigFrame(raw, c37118.ParseOptions{VerifyCRC: true})
	require.NoError(t, err)

	assert.Equal(t, c37118.FrameConfig2, cfg.Header.Type)
	assert.Equal(t, uint16(374), cfg.Header.FrameSize)
	assert.Equal(t, testutil.SampleIDCode, cfg.IDCode())
	assert.Equal(t, testutil.SampleTimeBase, cfg.TimeBase.Base)
	assert.Equal(t, int16(30), cfg.DataRate)
	assert.Equal(t, binary.BigEndian.Uint16(raw[len(raw)-2:]), cfg.CHK)
	require.Len(t, cfg.Stations, 1)

	st := cfg.Stations[0]
	assert.Equal(t, "Station A", st.Name)
	assert.Equal(t, c37118.Rect, st.PhasorFormat)
	assert.Equal(t, c37118.Integer, st.PhasorType)
	assert.Equal(t, 2, st.PhasorCount)
	assert.Equal(t, 1, st.AnalogCount)
	assert.Equal(t, 1, st.DigitalCount)
	assert.Len(t, st.ChannelNames, st.PhasorCount+st.AnalogCount+16*st.DigitalCount)
	assert.Equal(t, st.ChannelCount(), len(st.ChannelNames))
	assert.Equal(t, []string{"VA", "VB", "ANALOG1", "BREAKER 0"}, st.ChannelNames[:4])
	assert.Equal(t, c37118.PhasorUnit{Kind: c37118.Voltage, Scale: 915527}, st.PhasorUnits[0])
	assert.Equal(t, uint16(0x0000), st.DigitalUnits[0].Normal())
	assert.Equal(t, uint16(0xFFFF), st.DigitalUnits[0].Valid())
	assert.Equal(t, c37118.Freq60Hz, st.NominalFreq)
	assert.Equal(t, uint16(1), st.ConfigCount)

	again, err := cfg.Encode()
	require.NoError(t, err)
	assert.Equal(t, raw, again)

	found, ok := cfg.Station(testutil.SampleIDCode)
	assert.True(t, ok)
	assert.Same(t, st, found)
	_, ok = cfg.Station(1)
	assert.False(t, ok)
}

func TestParseConfigFrame_Names(t *testing.T) {
	cfg := testutil.SampleConfig(1)
	raw := testutil.MustEncodeConfig(cfg)

	// 站名两端带 NUL 与空格，通道名在首个 NUL 处截断
	stn := []byte("\x00 PMU-1 \x00\x00\x00\x00\x00\x00\x00")
	chnam := []byte("IA\x00garbage     ")
	raw = patchFrame(raw, stationOff, stn...)
	raw = patchFrame(raw, stationOff+16+2+2+6, chnam...)

	got, err := c37118.ParseConfigFrame(raw, c37118.ParseOptions{VerifyCRC: true})
	require.NoError(t, err)
	assert.Equal(t, "PMU-1", got.Stations[0].Name)
	assert.Equal(t, "IA", got.Stations[0].ChannelNames[0])
}

func TestParseConfigFrame_Sizes(t *testing.T) {
	cfg := testutil.SampleConfig(testutil.SampleIDCode)
	st := cfg.Stations[0]
	assert.Equal(t, 2+2*4+4+2+2, st.DataSize())
	assert.Equal(t, 34, cfg.DataFrameSize())

	frame := testutil.MustBuildDataFrame(cfg, 1, 0, testutil.SampleBlock())
	assert.Len(t, frame, cfg.DataFrameSize())

	st.PhasorType = c37118.Float
	st.FreqType = c37118.Float
	assert.Equal(t, 2+2*8+8+2+2, st.DataSize())
}

func TestParseConfigFrame_Errors(t *testing.T) {
	raw := sampleConfigBytes(t)

	t.Run("截断", func(t *testing.T) {
		_, err := c37118.ParseConfigFrame(raw[:len(raw)-1], c37118.ParseOptions{})
		assert.ErrorIs(t, err, c37118.ErrTruncatedFrame)
	})

	t.Run("多余字节", func(t *testing.T) {
		_, err := c37118.ParseConfigFrame(append(append([]byte(nil), raw...), 0x00), c37118.ParseOptions{})
		assert.ErrorIs(t, err, c37118.ErrLengthMismatch)
	})

	t.Run("声明长度内残留字节", func(t *testing.T) {
		n := len(raw) - c37118.ChecksumSize
		grown := append(append([]byte(nil), raw[:n]...), 0x00, 0x00, 0x00, 0x00)
		binary.BigEndian.PutUint16(grown[2:4], uint16(len(grown)+c37118.ChecksumSize))
		grown = append(grown, 0x00, 0x00)
		_, err := c37118.ParseConfigFrame(testutil.Reseal(grown), c37118.ParseOptions{})
		assert.ErrorIs(t, err, c37118.ErrLengthMismatch)
	})

	t.Run("通道计数超出帧长", func(t *testing.T) {
		bad := patchFrame(raw, formatOff+2, 0x00, 0x40)
		_, err := c37118.ParseConfigFrame(bad, c37118.ParseOptions{})
		assert.ErrorIs(t, err, c37118.ErrTruncatedFrame)
	})

	t.Run("TIME_BASE为零", func(t *testing.T) {
		bad := patchFrame(raw, c37118.HeaderSize, 0x00, 0x00, 0x00, 0x00)
		_, err := c37118.ParseConfigFrame(bad, c37118.ParseOptions{})
		assert.ErrorIs(t, err, c37118.ErrMalformedFrame)
	})

	t.Run("PHUNIT类型越界", func(t *testing.T) {
		bad := patchFrame(raw, phunitOff, 0x02)
		_, err := c37118.ParseConfigFrame(bad, c37118.ParseOptions{})
		require.ErrorIs(t, err, c37118.ErrUnknownEnumValue)
		var ee *c37118.EnumError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, "station[0].phunit.kind", ee.Field)
		assert.Equal(t, uint32(2), ee.Raw)
	})

	t.Run("ANUNIT类型越界", func(t *testing.T) {
		bad := patchFrame(raw, phunitOff+2*4, 0x03)
		_, err := c37118.ParseConfigFrame(bad, c37118.ParseOptions{})
		assert.ErrorIs(t, err, c37118.ErrUnknownEnumValue)
	})

	t.Run("CHK错误", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[len(bad)-1] ^= 0xFF
		_, err := c37118.ParseConfigFrame(bad, c37118.ParseOptions{VerifyCRC: true})
		assert.ErrorIs(t, err, c37118.ErrChecksumMismatch)

		_, err = c37118.ParseConfigFrame(bad, c37118.ParseOptions{})
		assert.NoError(t, err)
	})

	t.Run("CFG-3不支持", func(t *testing.T) {
		bad := patchFrame(raw, 1, 0x51)
		_, err := c37118.ParseConfigFrame(bad, c37118.ParseOptions{})
		assert.ErrorIs(t, err, c37118.ErrUnexpectedFrameType)
	})
}

func TestParseConfigFrame_SignedAnalogScale(t *testing.T) {
	cfg := testutil.SampleConfig(1)
	cfg.Stations[0].AnalogUnits[0] = c37118.AnalogUnit{Kind: c37118.AnalogRMS, Scale: -1200}
	cfg.Stations[0].NominalFreq = c37118.Freq50Hz

	got, err := c37118.ParseConfigFrame(testutil.MustEncodeConfig(cfg), c37118.ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, c37118.AnalogUnit{Kind: c37118.AnalogRMS, Scale: -1200}, got.Stations[0].AnalogUnits[0])
	assert.Equal(t, c37118.Freq50Hz, got.Stations[0].NominalFreq)
	assert.Equal(t, 50.0, got.Stations[0].NominalFreq.Hz())
}

func TestParseConfigFrame_Trace(t *testing.T) {
	var fields []string
	offsets := map[string]int{}
	opts := c37118.ParseOptions{Trace: func(field string, offset int, _ any) {
		fields = append(fields, field)
		offsets[field] = offset
	}}
	_, err := c37118.ParseConfigFrame(sampleConfigBytes(t), opts)
	require.NoError(t, err)

	assert.Equal(t, "time_base", fields[0])
	assert.Equal(t, "data_rate", fields[len(fields)-1])
	assert.Equal(t, c37118.HeaderSize, offsets["time_base"])
	assert.Equal(t, stationOff, offsets["station[0].stn"])
	assert.Equal(t, 374-4, offsets["data_rate"])
}

func TestConfigFrame_EncodeErrors(t *testing.T) {
	cfg := testutil.SampleConfig(1)
	cfg.Stations[0].ChannelNames = cfg.Stations[0].ChannelNames[:3]
	_, err := cfg.Encode()
	assert.ErrorIs(t, err, c37118.ErrConfigDataMismatch)

	cfg = testutil.SampleConfig(1)
	cfg.Stations[0].Name = "a station name that is too long"
	_, err = cfg.Encode()
	assert.ErrorIs(t, err, c37118.ErrMalformedFrame)

	cfg = testutil.SampleConfig(1)
	cfg.TimeBase.Base = 0
	_, err = cfg.Encode()
	assert.ErrorIs(t, err, c37118.ErrMalformedFrame)
}

func TestPersistConfig(t *testing.T) {
	cfg := testutil.SampleConfig(testutil.SampleIDCode)
	blob, err := c37118.MarshalConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "PMUC", string(blob[:4]))
	assert.Equal(t, byte(1), blob[4])
	assert.True(t, c37118.IsPersisted(blob))
	assert.False(t, c37118.IsPersisted(testutil.MustEncodeConfig(cfg)))

	got, err := c37118.UnmarshalConfig(blob)
	require.NoError(t, err)
	assert.Equal(t, cfg.Stations[0].ChannelNames, got.Stations[0].ChannelNames)
	assert.Equal(t, cfg.TimeBase, got.TimeBase)

	t.Run("魔数错误", func(t *testing.T) {
		bad := append([]byte("XXXX"), blob[4:]...)
		_, err := c37118.UnmarshalConfig(bad)
		assert.ErrorIs(t, err, c37118.ErrMalformedFrame)
	})
	t.Run("版本不支持", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[4] = 9
		_, err := c37118.UnmarshalConfig(bad)
		assert.ErrorIs(t, err, c37118.ErrMalformedFrame)
	})
	t.Run("内容损坏", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[40] ^= 0x01
		_, err := c37118.UnmarshalConfig(bad)
		assert.ErrorIs(t, err, c37118.ErrChecksumMismatch)
	})
	t.Run("过短", func(t *testing.T) {
		_, err := c37118.UnmarshalConfig([]byte("PMU"))
		assert.ErrorIs(t, err, c37118.ErrTruncatedFrame)
	})
}
