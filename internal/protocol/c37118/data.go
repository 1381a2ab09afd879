package c37118

import (
	"fmt"
	"time"
)

// TimestampLayout 数据帧时间戳的文本格式（微秒精度，UTC）
const TimestampLayout = "2006/01/02 15:04:05.000000"

// PMU 数据帧中单个站点的测量块
type PMU struct {
	Station  *Station
	Stat     Stat
	Phasors  []Phasor
	Freq     float64
	ROCOF    float64
	Analogs  []Analog
	Digitals []Digital
}

// DataFrame 已按配置帧解码的数据帧
type DataFrame struct {
	Header    Header
	PMUs      []*PMU
	Timestamp time.Time
	Epoch     float64
	Formatted string
	// Config 解码时使用的配置帧，只读引用
	Config *ConfigFrame
}

// ConfigChangePending 任一站点 STAT 置位配置变更
func (d *DataFrame) ConfigChangePending() bool {
	for _, p := range d.PMUs {
		if p.Stat.ConfigChange {
			return true
		}
	}
	return false
}

func timestamp(soc, fracsec, base uint32) time.Time {
	if base == 0 {
		return time.Unix(int64(soc), 0).UTC()
	}
	nanos := uint64(fracsec) * uint64(time.Second) / uint64(base)
	return time.Unix(int64(soc), int64(nanos)).UTC()
}

// ParseDataFrame 使用配置帧解码数据帧
func ParseDataFrame(b []byte, cfg *ConfigFrame, opts ParseOptions) (*DataFrame, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if !h.Complete() {
		return nil, fmt.Errorf("%w: data frame shorter than header", ErrTruncatedFrame)
	}
	if h.Type != FrameData {
		return nil, fmt.Errorf("%w: %s is not a data frame", ErrUnexpectedFrameType, h.Type)
	}
	if h.IDCode != cfg.IDCode() {
		return nil, fmt.Errorf("%w: data idcode %d, config idcode %d", ErrConfigDataMismatch, h.IDCode, cfg.IDCode())
	}
	body, _, err := frameBody(b, h, opts.VerifyCRC)
	if err != nil {
		return nil, err
	}

	df := &DataFrame{
		Header: h,
		Config: cfg,
		PMUs:   make([]*PMU, 0, len(cfg.Stations)),
	}
	df.Timestamp = timestamp(h.SOC, h.FracSec, cfg.TimeBase.Base)
	df.Epoch = float64(h.SOC) + float64(h.FracSec)/float64(cfg.TimeBase.Base)
	df.Formatted = df.Timestamp.Format(TimestampLayout)

	r := newReader(body, HeaderSize)
	for i, st := range cfg.Stations {
		p, err := parsePMU(r, i, st, opts)
		if err != nil {
			return nil, err
		}
		df.PMUs = append(df.PMUs, p)
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return df, nil
}

func parsePMU(r *reader, idx int, st *Station, opts ParseOptions) (*PMU, error) {
	if len(st.ChannelNames) != st.ChannelCount() {
		return nil, fmt.Errorf("%w: station %d has %d channel names, want %d",
			ErrConfigDataMismatch, st.IDCode, len(st.ChannelNames), st.ChannelCount())
	}
	field := func(name string) string { return fmt.Sprintf("pmu[%d].%s", idx, name) }
	p := &PMU{Station: st}

	rawStat := r.u16(field("stat"))
	if r.err != nil {
		return nil, r.err
	}
	stat, err := DecodeStat(rawStat)
	if err != nil {
		return nil, err
	}
	p.Stat = stat
	opts.trace(field("stat"), r.off-2, stat)

	p.Phasors = make([]Phasor, st.PhasorCount)
	for i := range p.Phasors {
		off := r.off
		ph := readPhasor(r, st, i, opts.ApplyScaling, field("phasor"))
		if r.err != nil {
			return nil, r.err
		}
		p.Phasors[i] = ph
		opts.trace(fmt.Sprintf("%s[%d]", field("phasor"), i), off, ph)
	}

	if st.FreqType == Float {
		p.Freq = float64(r.f32(field("freq")))
		p.ROCOF = float64(r.f32(field("dfreq")))
	} else {
		freq := float64(r.i16(field("freq")))
		if opts.ApplyScaling {
			freq = st.NominalFreq.Hz() + freq/1000
		}
		p.Freq = freq
		p.ROCOF = float64(r.i16(field("dfreq"))) / 100
	}
	if r.err != nil {
		return nil, r.err
	}
	opts.trace(field("freq"), r.off-2*width(st.FreqType), p.Freq)
	opts.trace(field("dfreq"), r.off-width(st.FreqType), p.ROCOF)

	p.Analogs = make([]Analog, st.AnalogCount)
	for i := range p.Analogs {
		var v float64
		if st.AnalogType == Float {
			v = float64(r.f32(field("analog")))
		} else {
			v = float64(r.i16(field("analog")))
			if opts.ApplyScaling && i < len(st.AnalogUnits) {
				v *= float64(st.AnalogUnits[i].Scale)
			}
		}
		if r.err != nil {
			return nil, r.err
		}
		p.Analogs[i] = Analog{Name: st.ChannelNames[st.PhasorCount+i], Value: v}
		opts.trace(fmt.Sprintf("%s[%d]", field("analog"), i), r.off-width(st.AnalogType), v)
	}

	base := st.PhasorCount + st.AnalogCount
	p.Digitals = make([]Digital, 0, 16*st.DigitalCount)
	for w := 0; w < st.DigitalCount; w++ {
		word := r.u16(field("digital"))
		if r.err != nil {
			return nil, r.err
		}
		opts.trace(fmt.Sprintf("%s[%d]", field("digital"), w), r.off-2, word)
		for bit := 0; bit < 16; bit++ {
			p.Digitals = append(p.Digitals, Digital{
				Name:  st.ChannelNames[base+16*w+bit],
				Value: word&(0x8000>>bit) != 0,
			})
		}
	}
	return p, nil
}

func readPhasor(r *reader, st *Station, i int, scale bool, field string) Phasor {
	name := st.ChannelNames[i]
	factor := 1.0
	if scale && st.PhasorType == Integer && i < len(st.PhasorUnits) {
		factor = st.PhasorUnits[i].Factor()
	}

	switch {
	case st.PhasorType == Float && st.PhasorFormat == Rect:
		re := float64(r.f32(field))
		im := float64(r.f32(field))
		return rectPhasor(name, re, im)
	case st.PhasorType == Float:
		mag := float64(r.f32(field))
		rad := float64(r.f32(field))
		return polarPhasor(name, mag, rad)
	case st.PhasorFormat == Rect:
		re := float64(r.i16(field)) * factor
		im := float64(r.i16(field)) * factor
		return rectPhasor(name, re, im)
	default:
		mag := float64(r.u16(field)) * factor
		rad := float64(r.i16(field)) / 10000
		return polarPhasor(name, mag, rad)
	}
}
