package c37118

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Command 命令帧 CMD 字段
type Command uint16

const (
	CmdDataOff  Command = 0x0001
	CmdDataOn   Command = 0x0002
	CmdHeader   Command = 0x0003
	CmdConfig1  Command = 0x0004
	CmdConfig2  Command = 0x0005
	CmdConfig3  Command = 0x0006
	CmdExtended Command = 0x0008
)

var commandNames = map[string]Command{
	"DATAOFF":  CmdDataOff,
	"DATAON":   CmdDataOn,
	"HEADER":   CmdHeader,
	"CONFIG1":  CmdConfig1,
	"CONFIG2":  CmdConfig2,
	"CONFIG3":  CmdConfig3,
	"EXTENDED": CmdExtended,
}

func (c Command) String() string {
	for n, v := range commandNames {
		if v == c {
			return n
		}
	}
	return fmt.Sprintf("Command(0x%04X)", uint16(c))
}

// commandFrameSize 不含扩展帧数据时的命令帧长度
const commandFrameSize = HeaderSize + 2 + ChecksumSize

// CommandFrame 主站发往 PMU 的命令帧
type CommandFrame struct {
	// Header 仅在 ParseCommandFrame 时填充
	Header   Header
	Command  Command
	IDCode   uint16
	Extended []byte
}

// NewCommandFrame 按命令名构造命令帧，名称不区分大小写
func NewCommandFrame(name string, idcode uint16) (*CommandFrame, error) {
	cmd, ok := commandNames[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, name)
	}
	return &CommandFrame{Command: cmd, IDCode: idcode}, nil
}

// NewExtendedCommandFrame 构造携带扩展数据的 EXTENDED 命令帧
func NewExtendedCommandFrame(idcode uint16, ext []byte) (*CommandFrame, error) {
	if len(ext) > MaxFrameSize-commandFrameSize {
		return nil, fmt.Errorf("%w: extended frame of %d bytes too large", ErrMalformedFrame, len(ext))
	}
	return &CommandFrame{Command: CmdExtended, IDCode: idcode, Extended: append([]byte(nil), ext...)}, nil
}

// Encode 以给定时间编码；fracsec 为完整 32 位 FRACSEC 字（含时间质量字节）
func (c *CommandFrame) Encode(soc, fracsec uint32) []byte {
	h := Header{
		Type:        FrameCommand,
		Version:     DefaultVersion,
		IDCode:      c.IDCode,
		SOC:         soc,
		FracSec:     fracsec & 0x00FFFFFF,
		TimeQuality: uint8(fracsec >> 24),
	}
	buf := h.appendTo(make([]byte, 0, commandFrameSize+len(c.Extended)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Command))
	buf = append(buf, c.Extended...)
	return sealFrame(buf)
}

// Bytes 以当前时间编码，FRACSEC 按微秒计
func (c *CommandFrame) Bytes() []byte {
	now := time.Now()
	return c.Encode(uint32(now.Unix()), uint32(now.Nanosecond()/1000))
}

// ParseCommandFrame 解析命令帧，PMU 模拟端与测试使用
func ParseCommandFrame(b []byte, opts ParseOptions) (*CommandFrame, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if !h.Complete() {
		return nil, fmt.Errorf("%w: command frame shorter than header", ErrTruncatedFrame)
	}
	if h.Type != FrameCommand {
		return nil, fmt.Errorf("%w: %s is not a command frame", ErrUnexpectedFrameType, h.Type)
	}
	body, _, err := frameBody(b, h, opts.VerifyCRC)
	if err != nil {
		return nil, err
	}
	r := newReader(body, HeaderSize)
	code := Command(r.u16("cmd"))
	if r.err != nil {
		return nil, r.err
	}
	opts.trace("cmd", HeaderSize, code)
	known := false
	for _, v := range commandNames {
		if v == code {
			known = true
			break
		}
	}
	if !known {
		return nil, &EnumError{Field: "cmd", Raw: uint32(code)}
	}
	cf := &CommandFrame{Header: h, Command: code, IDCode: h.IDCode}
	if n := r.remaining(); n > 0 {
		if code != CmdExtended {
			return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrLengthMismatch, n, code)
		}
		cf.Extended = append([]byte(nil), r.bytes(n, "extframe")...)
	}
	return cf, nil
}
