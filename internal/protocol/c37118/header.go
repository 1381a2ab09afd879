package c37118

import (
	"encoding/binary"
	"fmt"
)

// C37.118 公共帧头布局（大端）：
// sync[1]=0xAA | type+version[1] | framesize[2] | idcode[2] | soc[4] | fracsec[4]
const (
	SyncByte       = 0xAA
	HeaderSize     = 14
	ChecksumSize   = 2
	MinFrameSize   = HeaderSize + ChecksumSize
	MaxFrameSize   = 65535
	DefaultVersion = 1

	// PrefixSize 流式读取时确定帧长所需的最少字节数
	PrefixSize = 4
)

// FrameType 帧类型（第二字节 bit6-4）
type FrameType uint8

const (
	FrameData FrameType = iota
	FrameHeader
	FrameConfig1
	FrameConfig2
	FrameCommand
	FrameConfig3
)

var frameTypes = map[uint8]FrameType{
	0: FrameData,
	1: FrameHeader,
	2: FrameConfig1,
	3: FrameConfig2,
	4: FrameCommand,
	5: FrameConfig3,
}

var frameTypeNames = map[FrameType]string{
	FrameData:    "DATA",
	FrameHeader:  "HEADER",
	FrameConfig1: "CONFIG1",
	FrameConfig2: "CONFIG2",
	FrameCommand: "COMMAND",
	FrameConfig3: "CONFIG3",
}

func (t FrameType) String() string {
	if n, ok := frameTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("FrameType(%d)", uint8(t))
}

// IsConfig 是否为配置帧（CFG-1/2/3）
func (t FrameType) IsConfig() bool {
	return t == FrameConfig1 || t == FrameConfig2 || t == FrameConfig3
}

// Header 公共帧头
type Header struct {
	Type      FrameType
	Version   uint8
	FrameSize uint16
	IDCode    uint16
	SOC       uint32
	// FracSec 秒内计数（低 24 位），需结合 TIME_BASE 换算
	FracSec uint32
	// TimeQuality FRACSEC 字段最高字节（闰秒与时间质量标志）
	TimeQuality uint8

	complete bool
}

// Complete 是否已解析到 idcode/soc/fracsec（输入 >= 14 字节）
func (h Header) Complete() bool { return h.complete }

// ParseHeader 解析公共帧头。输入至少 4 字节即可得到类型与帧长，
// 满 14 字节时同时解析 idcode、SOC 与 FRACSEC。
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < PrefixSize {
		return h, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedFrame, PrefixSize, len(b))
	}
	if b[0] != SyncByte {
		return h, fmt.Errorf("%w: bad sync byte 0x%02X", ErrMalformedFrame, b[0])
	}
	ft, err := lookup(frameTypes, "frame_type", (b[1]>>4)&0x07)
	if err != nil {
		return h, err
	}
	h.Type = ft
	h.Version = b[1] & 0x0F
	h.FrameSize = binary.BigEndian.Uint16(b[2:4])
	if h.FrameSize < MinFrameSize {
		return h, fmt.Errorf("%w: declared frame size %d below minimum %d", ErrMalformedFrame, h.FrameSize, MinFrameSize)
	}
	if len(b) >= HeaderSize {
		h.IDCode = binary.BigEndian.Uint16(b[4:6])
		h.SOC = binary.BigEndian.Uint32(b[6:10])
		fs := binary.BigEndian.Uint32(b[10:14])
		h.TimeQuality = uint8(fs >> 24)
		h.FracSec = fs & 0x00FFFFFF
		h.complete = true
	}
	return h, nil
}

// appendTo 追加帧头字节；FrameSize 由调用方事先填好
func (h Header) appendTo(dst []byte) []byte {
	ver := h.Version
	if ver == 0 {
		ver = DefaultVersion
	}
	dst = append(dst, SyncByte, byte(h.Type)<<4|ver&0x0F)
	dst = binary.BigEndian.AppendUint16(dst, h.FrameSize)
	dst = binary.BigEndian.AppendUint16(dst, h.IDCode)
	dst = binary.BigEndian.AppendUint32(dst, h.SOC)
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.TimeQuality)<<24|h.FracSec&0x00FFFFFF)
	return dst
}

// sealFrame 回填 framesize 并追加 CHK
func sealFrame(buf []byte) []byte {
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)+ChecksumSize))
	return binary.BigEndian.AppendUint16(buf, CRC16(buf))
}

// frameBody 校验声明长度与实际长度，返回不含 CHK 的帧体与 CHK 值
func frameBody(b []byte, h Header, verifyCRC bool) ([]byte, uint16, error) {
	size := int(h.FrameSize)
	if len(b) < size {
		return nil, 0, fmt.Errorf("%w: declared %d bytes, have %d", ErrTruncatedFrame, size, len(b))
	}
	if len(b) > size {
		return nil, 0, fmt.Errorf("%w: declared %d bytes, got %d", ErrLengthMismatch, size, len(b))
	}
	body := b[:size-ChecksumSize]
	chk := binary.BigEndian.Uint16(b[size-ChecksumSize:])
	if verifyCRC {
		if want := CRC16(body); want != chk {
			return nil, 0, fmt.Errorf("%w: want 0x%04X, got 0x%04X", ErrChecksumMismatch, want, chk)
		}
	}
	return body, chk, nil
}
