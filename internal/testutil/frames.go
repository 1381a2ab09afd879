// Package testutil 提供测试用的 C37.118 帧构造器与 PMU 模拟端
package testutil

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

// SampleIDCode 样例数据流 IDCODE
const SampleIDCode uint16 = 7734

// SampleTimeBase 样例 TIME_BASE（微秒分辨率）
const SampleTimeBase uint32 = 1000000

// SampleStation 2 个相量（RECT/INTEGER）、1 个模拟量、1 个数字字
func SampleStation(idcode uint16) *c37118.Station {
	names := []string{"VA", "VB", "ANALOG1"}
	for i := 0; i < 16; i++ {
		names = append(names, fmt.Sprintf("BREAKER %d", i))
	}
	return &c37118.Station{
		Name:         "Station A",
		IDCode:       idcode,
		PhasorFormat: c37118.Rect,
		PhasorType:   c37118.Integer,
		AnalogType:   c37118.Integer,
		FreqType:     c37118.Integer,
		PhasorCount:  2,
		AnalogCount:  1,
		DigitalCount: 1,
		ChannelNames: names,
		PhasorUnits: []c37118.PhasorUnit{
			{Kind: c37118.Voltage, Scale: 915527},
			{Kind: c37118.Voltage, Scale: 915527},
		},
		AnalogUnits:  []c37118.AnalogUnit{{Kind: c37118.AnalogPointOnWave, Scale: 1}},
		DigitalUnits: []c37118.DigitalUnit{{Mask: 0x0000FFFF}},
		NominalFreq:  c37118.Freq60Hz,
		ConfigCount:  1,
	}
}

// SampleConfig 单站点样例配置帧（CFG-2）
func SampleConfig(idcode uint16) *c37118.ConfigFrame {
	return &c37118.ConfigFrame{
		Header: c37118.Header{
			Type:    c37118.FrameConfig2,
			Version: c37118.DefaultVersion,
			IDCode:  idcode,
			SOC:     1149577200,
		},
		TimeBase: c37118.TimeBase{Base: SampleTimeBase},
		Stations: []*c37118.Station{SampleStation(idcode)},
		DataRate: 30,
	}
}

// MustEncodeConfig 编码配置帧，失败时 panic
func MustEncodeConfig(cfg *c37118.ConfigFrame) []byte {
	b, err := cfg.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// Block 单个站点的原始测量值，按站点的编码格式写入
//
// Phasors 每项为 {实部, 虚部} 或 {幅值, 角度原始值}（POLAR/INTEGER 时角度为 rad*10000）
type Block struct {
	Stat     uint16
	Phasors  [][2]float64
	Freq     float64
	DFreq    float64
	Analogs  []float64
	Digitals []uint16
}

// BuildDataFrame 按配置帧布局编码数据帧
func BuildDataFrame(cfg *c37118.ConfigFrame, soc, fracsec uint32, blocks []Block) ([]byte, error) {
	if len(blocks) != len(cfg.Stations) {
		return nil, fmt.Errorf("testutil: %d blocks for %d stations", len(blocks), len(cfg.Stations))
	}
	buf := make([]byte, 0, cfg.DataFrameSize())
	buf = append(buf, c37118.SyncByte, byte(c37118.FrameData)<<4|c37118.DefaultVersion)
	buf = binary.BigEndian.AppendUint16(buf, 0)
	buf = binary.BigEndian.AppendUint16(buf, cfg.IDCode())
	buf = binary.BigEndian.AppendUint32(buf, soc)
	buf = binary.BigEndian.AppendUint32(buf, fracsec)

	for i, st := range cfg.Stations {
		blk := blocks[i]
		if len(blk.Phasors) != st.PhasorCount || len(blk.Analogs) != st.AnalogCount || len(blk.Digitals) != st.DigitalCount {
			return nil, fmt.Errorf("testutil: block %d does not match station %d layout", i, st.IDCode)
		}
		buf = binary.BigEndian.AppendUint16(buf, blk.Stat)
		for _, ph := range blk.Phasors {
			switch {
			case st.PhasorType == c37118.Float:
				buf = appendF32(buf, ph[0])
				buf = appendF32(buf, ph[1])
			case st.PhasorFormat == c37118.Polar:
				buf = binary.BigEndian.AppendUint16(buf, uint16(ph[0]))
				buf = binary.BigEndian.AppendUint16(buf, uint16(int16(ph[1])))
			default:
				buf = binary.BigEndian.AppendUint16(buf, uint16(int16(ph[0])))
				buf = binary.BigEndian.AppendUint16(buf, uint16(int16(ph[1])))
			}
		}
		if st.FreqType == c37118.Float {
			buf = appendF32(buf, blk.Freq)
			buf = appendF32(buf, blk.DFreq)
		} else {
			buf = binary.BigEndian.AppendUint16(buf, uint16(int16(blk.Freq)))
			buf = binary.BigEndian.AppendUint16(buf, uint16(int16(blk.DFreq)))
		}
		for _, a := range blk.Analogs {
			if st.AnalogType == c37118.Float {
				buf = appendF32(buf, a)
			} else {
				buf = binary.BigEndian.AppendUint16(buf, uint16(int16(a)))
			}
		}
		for _, d := range blk.Digitals {
			buf = binary.BigEndian.AppendUint16(buf, d)
		}
	}
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)+c37118.ChecksumSize))
	return binary.BigEndian.AppendUint16(buf, c37118.CRC16(buf)), nil
}

// MustBuildDataFrame BuildDataFrame 的 panic 版本
func MustBuildDataFrame(cfg *c37118.ConfigFrame, soc, fracsec uint32, blocks ...Block) []byte {
	b, err := BuildDataFrame(cfg, soc, fracsec, blocks)
	if err != nil {
		panic(err)
	}
	return b
}

// SampleBlock 对应 SampleStation 的一组测量值：VA=9000∠0，VB=9000+j9000
func SampleBlock() Block {
	return Block{
		Phasors:  [][2]float64{{9000, 0}, {9000, 9000}},
		Freq:     25,
		DFreq:    150,
		Analogs:  []float64{-42},
		Digitals: []uint16{0x8001},
	}
}

// Reseal 修改帧内容后重新计算 CHK
func Reseal(frame []byte) []byte {
	n := len(frame) - c37118.ChecksumSize
	binary.BigEndian.PutUint16(frame[n:], c37118.CRC16(frame[:n]))
	return frame
}

func appendF32(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(float32(v)))
}
