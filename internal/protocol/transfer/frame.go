// Package transfer 中继帧：将解码后的相量压缩为定长记录转发给下游订阅者
//
// 布局（大端）：
//
//	AA FF | length u32 | timestamp f64 | count u16 |
//	count × (id u16 | magnitude f64 | angle f64 | unit u16) | [crc u16]
//
// length 为整帧字节数（含可选 CRC）
package transfer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

const (
	magic0 = 0xAA
	magic1 = 0xFF

	fixedSize = 2 + 4 + 8 + 2
	fieldSize = 2 + 8 + 8 + 2
	crcSize   = 2
)

// 单位标志
const (
	UnitVoltage uint16 = 0x0000
	UnitCurrent uint16 = 0x8000
)

// PhasorField 单个相量记录
type PhasorField struct {
	ID        uint16
	Magnitude float64
	// Angle 弧度
	Angle float64
	Unit  uint16
}

// Frame 中继帧
type Frame struct {
	Timestamp float64
	Fields    []PhasorField
	// CRC 仅 Decode 时填充，帧尾无 CRC 时为 nil
	CRC *uint16
}

// EncodeOptions 编码选项
type EncodeOptions struct {
	CRC bool
}

// NewFrame 由数据帧生成中继帧，相量 ID 按站点顺序从 0 连续编号
func NewFrame(df *c37118.DataFrame) *Frame {
	f := &Frame{Timestamp: df.Epoch}
	var id uint16
	for _, p := range df.PMUs {
		for i, ph := range p.Phasors {
			unit := UnitVoltage
			if i < len(p.Station.PhasorUnits) && p.Station.PhasorUnits[i].Kind == c37118.Current {
				unit = UnitCurrent
			}
			f.Fields = append(f.Fields, PhasorField{
				ID:        id,
				Magnitude: ph.Magnitude,
				Angle:     ph.AngleRad,
				Unit:      unit,
			})
			id++
		}
	}
	return f
}

// Size 编码后的字节数
func (f *Frame) Size(opts EncodeOptions) int {
	n := fixedSize + len(f.Fields)*fieldSize
	if opts.CRC {
		n += crcSize
	}
	return n
}

// Encode 编码中继帧
func (f *Frame) Encode(opts EncodeOptions) []byte {
	buf := make([]byte, 0, f.Size(opts))
	buf = append(buf, magic0, magic1)
	buf = binary.BigEndian.AppendUint32(buf, uint32(f.Size(opts)))
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(f.Timestamp))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Fields)))
	for _, fd := range f.Fields {
		buf = binary.BigEndian.AppendUint16(buf, fd.ID)
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(fd.Magnitude))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(fd.Angle))
		buf = binary.BigEndian.AppendUint16(buf, fd.Unit)
	}
	if opts.CRC {
		buf = binary.BigEndian.AppendUint16(buf, c37118.CRC16(buf))
	}
	return buf
}

// Decode 解析中继帧；是否携带 CRC 由 length 与 count 推断
func Decode(b []byte) (*Frame, error) {
	if len(b) < fixedSize {
		return nil, fmt.Errorf("%w: transfer frame needs %d bytes, have %d", c37118.ErrTruncatedFrame, fixedSize, len(b))
	}
	if b[0] != magic0 || b[1] != magic1 {
		return nil, fmt.Errorf("%w: bad transfer magic % X", c37118.ErrMalformedFrame, b[:2])
	}
	length := int(binary.BigEndian.Uint32(b[2:6]))
	if len(b) < length {
		return nil, fmt.Errorf("%w: declared %d bytes, have %d", c37118.ErrTruncatedFrame, length, len(b))
	}
	if len(b) > length {
		return nil, fmt.Errorf("%w: declared %d bytes, got %d", c37118.ErrLengthMismatch, length, len(b))
	}

	f := &Frame{Timestamp: math.Float64frombits(binary.BigEndian.Uint64(b[6:14]))}
	count := int(binary.BigEndian.Uint16(b[14:16]))
	body := fixedSize + count*fieldSize
	switch length {
	case body:
	case body + crcSize:
		want := c37118.CRC16(b[:body])
		got := binary.BigEndian.Uint16(b[body:])
		if want != got {
			return nil, fmt.Errorf("%w: want 0x%04X, got 0x%04X", c37118.ErrChecksumMismatch, want, got)
		}
		f.CRC = &got
	default:
		return nil, fmt.Errorf("%w: %d phasors do not fit %d bytes", c37118.ErrLengthMismatch, count, length)
	}

	f.Fields = make([]PhasorField, count)
	for i := range f.Fields {
		off := fixedSize + i*fieldSize
		f.Fields[i] = PhasorField{
			ID:        binary.BigEndian.Uint16(b[off:]),
			Magnitude: math.Float64frombits(binary.BigEndian.Uint64(b[off+2:])),
			Angle:     math.Float64frombits(binary.BigEndian.Uint64(b[off+10:])),
			Unit:      binary.BigEndian.Uint16(b[off+18:]),
		}
	}
	return f, nil
}
