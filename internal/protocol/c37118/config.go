package c37118

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const nameSize = 16

// TimeBase TIME_BASE 字段：最高字节为标志位（不解释），低 24 位为秒内分辨率
type TimeBase struct {
	Flags uint8
	Base  uint32
}

// Station 配置帧中的单个 PMU 站点描述
type Station struct {
	Name   string
	IDCode uint16

	PhasorFormat PhasorFormat
	PhasorType   NumType
	AnalogType   NumType
	FreqType     NumType

	PhasorCount  int
	AnalogCount  int
	DigitalCount int

	// ChannelNames 顺序：相量、模拟量、每个数字字 16 个位名
	ChannelNames []string
	PhasorUnits  []PhasorUnit
	AnalogUnits  []AnalogUnit
	DigitalUnits []DigitalUnit

	NominalFreq NominalFreq
	ConfigCount uint16
}

// ChannelCount 期望的通道名数量
func (s *Station) ChannelCount() int {
	return s.PhasorCount + s.AnalogCount + 16*s.DigitalCount
}

func width(t NumType) int {
	if t == Float {
		return 4
	}
	return 2
}

// DataSize 该站点在数据帧中占用的字节数（含 STAT）
func (s *Station) DataSize() int {
	return 2 +
		s.PhasorCount*2*width(s.PhasorType) +
		2*width(s.FreqType) +
		s.AnalogCount*width(s.AnalogType) +
		2*s.DigitalCount
}

func (s *Station) format() uint16 {
	return uint16(s.PhasorFormat) |
		uint16(s.PhasorType)<<1 |
		uint16(s.AnalogType)<<2 |
		uint16(s.FreqType)<<3
}

// ConfigFrame CFG-1/CFG-2 配置帧
type ConfigFrame struct {
	Header   Header
	TimeBase TimeBase
	Stations []*Station
	DataRate int16
	CHK      uint16
}

// IDCode 数据流源标识
func (c *ConfigFrame) IDCode() uint16 { return c.Header.IDCode }

// Station 按站点 IDCODE 查找
func (c *ConfigFrame) Station(idcode uint16) (*Station, bool) {
	for _, s := range c.Stations {
		if s.IDCode == idcode {
			return s, true
		}
	}
	return nil, false
}

// DataFrameSize 与该配置匹配的数据帧总长度
func (c *ConfigFrame) DataFrameSize() int {
	n := HeaderSize + ChecksumSize
	for _, s := range c.Stations {
		n += s.DataSize()
	}
	return n
}

// Timestamp 配置帧自身的时间戳
func (c *ConfigFrame) Timestamp() time.Time {
	return timestamp(c.Header.SOC, c.Header.FracSec, c.TimeBase.Base)
}

// ParseConfigFrame 解析 CFG-1/CFG-2 配置帧
func ParseConfigFrame(b []byte, opts ParseOptions) (*ConfigFrame, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if !h.Complete() {
		return nil, fmt.Errorf("%w: config frame shorter than header", ErrTruncatedFrame)
	}
	if h.Type != FrameConfig1 && h.Type != FrameConfig2 {
		return nil, fmt.Errorf("%w: %s is not a CFG-1/CFG-2 frame", ErrUnexpectedFrameType, h.Type)
	}
	body, chk, err := frameBody(b, h, opts.VerifyCRC)
	if err != nil {
		return nil, err
	}

	r := newReader(body, HeaderSize)
	cfg := &ConfigFrame{Header: h, CHK: chk}

	tb := r.u32("time_base")
	cfg.TimeBase = TimeBase{Flags: uint8(tb >> 24), Base: tb & 0x00FFFFFF}
	if r.err == nil && cfg.TimeBase.Base == 0 {
		return nil, fmt.Errorf("%w: zero time base", ErrMalformedFrame)
	}
	opts.trace("time_base", HeaderSize, cfg.TimeBase.Base)

	numPMU := int(r.u16("num_pmu"))
	opts.trace("num_pmu", r.off-2, numPMU)
	if r.err != nil {
		return nil, r.err
	}

	cfg.Stations = make([]*Station, 0, numPMU)
	for i := 0; i < numPMU; i++ {
		st, err := parseStation(r, i, opts)
		if err != nil {
			return nil, err
		}
		cfg.Stations = append(cfg.Stations, st)
	}

	cfg.DataRate = r.i16("data_rate")
	opts.trace("data_rate", r.off-2, cfg.DataRate)
	if err := r.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseStation(r *reader, idx int, opts ParseOptions) (*Station, error) {
	field := func(name string) string { return fmt.Sprintf("station[%d].%s", idx, name) }
	st := &Station{}

	start := r.off
	st.Name = trimName(r.bytes(nameSize, field("stn")))
	opts.trace(field("stn"), start, st.Name)

	st.IDCode = r.u16(field("idcode"))
	opts.trace(field("idcode"), r.off-2, st.IDCode)

	format := r.u16(field("format"))
	opts.trace(field("format"), r.off-2, format)

	st.PhasorCount = int(r.u16(field("phnmr")))
	st.AnalogCount = int(r.u16(field("annmr")))
	st.DigitalCount = int(r.u16(field("dgnmr")))
	if r.err != nil {
		return nil, r.err
	}
	opts.trace(field("counts"), r.off-6, [3]int{st.PhasorCount, st.AnalogCount, st.DigitalCount})

	var err error
	if st.PhasorFormat, err = lookup(phasorFormats, field("format.phasor_format"), uint8(format&0x1)); err != nil {
		return nil, err
	}
	if st.PhasorType, err = lookup(numTypes, field("format.phasor_type"), uint8(format>>1&0x1)); err != nil {
		return nil, err
	}
	if st.AnalogType, err = lookup(numTypes, field("format.analog_type"), uint8(format>>2&0x1)); err != nil {
		return nil, err
	}
	if st.FreqType, err = lookup(numTypes, field("format.freq_type"), uint8(format>>3&0x1)); err != nil {
		return nil, err
	}

	// 先确认剩余字节足够，避免按伪造计数分配巨大切片
	need := st.ChannelCount()*nameSize + (st.PhasorCount+st.AnalogCount+st.DigitalCount)*4 + 4
	if r.remaining() < need {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d left",
			ErrTruncatedFrame, field("channels"), need, r.remaining())
	}

	st.ChannelNames = make([]string, st.ChannelCount())
	for i := range st.ChannelNames {
		off := r.off
		st.ChannelNames[i] = channelName(r.bytes(nameSize, field("chnam")))
		opts.trace(fmt.Sprintf("%s[%d]", field("chnam"), i), off, st.ChannelNames[i])
	}

	st.PhasorUnits = make([]PhasorUnit, st.PhasorCount)
	for i := range st.PhasorUnits {
		u, err := decodePhasorUnit(r.u32(field("phunit")), field("phunit"))
		if err != nil {
			return nil, err
		}
		st.PhasorUnits[i] = u
		opts.trace(fmt.Sprintf("%s[%d]", field("phunit"), i), r.off-4, u)
	}

	st.AnalogUnits = make([]AnalogUnit, st.AnalogCount)
	for i := range st.AnalogUnits {
		u, err := decodeAnalogUnit(r.u32(field("anunit")), field("anunit"))
		if err != nil {
			return nil, err
		}
		st.AnalogUnits[i] = u
		opts.trace(fmt.Sprintf("%s[%d]", field("anunit"), i), r.off-4, u)
	}

	st.DigitalUnits = make([]DigitalUnit, st.DigitalCount)
	for i := range st.DigitalUnits {
		st.DigitalUnits[i] = DigitalUnit{Mask: r.u32(field("digunit"))}
		opts.trace(fmt.Sprintf("%s[%d]", field("digunit"), i), r.off-4, st.DigitalUnits[i].Mask)
	}

	fnom := r.u16(field("fnom"))
	if st.NominalFreq, err = lookup(nominalFreqs, field("fnom"), uint8(fnom&0x1)); err != nil {
		return nil, err
	}
	opts.trace(field("fnom"), r.off-2, st.NominalFreq)

	st.ConfigCount = r.u16(field("cfgcnt"))
	opts.trace(field("cfgcnt"), r.off-2, st.ConfigCount)
	if r.err != nil {
		return nil, r.err
	}
	return st, nil
}

func trimName(b []byte) string {
	return strings.Trim(string(b), "\x00 ")
}

func channelName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}

func appendName(dst []byte, name string) ([]byte, error) {
	if len(name) > nameSize {
		return nil, fmt.Errorf("%w: name %q longer than %d bytes", ErrMalformedFrame, name, nameSize)
	}
	dst = append(dst, name...)
	for i := len(name); i < nameSize; i++ {
		dst = append(dst, ' ')
	}
	return dst, nil
}

// Encode 按线格式编码，重新计算 FRAMESIZE 与 CHK
func (c *ConfigFrame) Encode() ([]byte, error) {
	h := c.Header
	if h.Type != FrameConfig1 && h.Type != FrameConfig2 {
		return nil, fmt.Errorf("%w: cannot encode %s as config frame", ErrUnexpectedFrameType, h.Type)
	}
	if c.TimeBase.Base == 0 || c.TimeBase.Base > 0x00FFFFFF {
		return nil, fmt.Errorf("%w: time base %d out of range", ErrMalformedFrame, c.TimeBase.Base)
	}

	buf := h.appendTo(make([]byte, 0, 64+len(c.Stations)*128))
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.TimeBase.Flags)<<24|c.TimeBase.Base)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Stations)))

	var err error
	for _, st := range c.Stations {
		if buf, err = st.appendTo(buf); err != nil {
			return nil, err
		}
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.DataRate))
	if len(buf)+ChecksumSize > MaxFrameSize {
		return nil, fmt.Errorf("%w: config frame exceeds %d bytes", ErrMalformedFrame, MaxFrameSize)
	}
	return sealFrame(buf), nil
}

func (s *Station) appendTo(buf []byte) ([]byte, error) {
	if len(s.ChannelNames) != s.ChannelCount() {
		return nil, fmt.Errorf("%w: station %d has %d channel names, want %d",
			ErrConfigDataMismatch, s.IDCode, len(s.ChannelNames), s.ChannelCount())
	}
	if len(s.PhasorUnits) != s.PhasorCount || len(s.AnalogUnits) != s.AnalogCount || len(s.DigitalUnits) != s.DigitalCount {
		return nil, fmt.Errorf("%w: station %d unit tables do not match channel counts", ErrConfigDataMismatch, s.IDCode)
	}

	var err error
	if buf, err = appendName(buf, s.Name); err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint16(buf, s.IDCode)
	buf = binary.BigEndian.AppendUint16(buf, s.format())
	buf = binary.BigEndian.AppendUint16(buf, uint16(s.PhasorCount))
	buf = binary.BigEndian.AppendUint16(buf, uint16(s.AnalogCount))
	buf = binary.BigEndian.AppendUint16(buf, uint16(s.DigitalCount))
	for _, n := range s.ChannelNames {
		if buf, err = appendName(buf, n); err != nil {
			return nil, err
		}
	}
	for _, u := range s.PhasorUnits {
		buf = binary.BigEndian.AppendUint32(buf, u.encode())
	}
	for _, u := range s.AnalogUnits {
		buf = binary.BigEndian.AppendUint32(buf, u.encode())
	}
	for _, u := range s.DigitalUnits {
		buf = binary.BigEndian.AppendUint32(buf, u.Mask)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(s.NominalFreq))
	buf = binary.BigEndian.AppendUint16(buf, s.ConfigCount)
	return buf, nil
}
