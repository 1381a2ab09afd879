package transport

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

// State 分帧状态
type State uint8

const (
	StateAwaitHeader State = iota
	StateAwaitBody
	StateFrameReady
)

func (s State) String() string {
	switch s {
	case StateAwaitHeader:
		return "await_header"
	case StateAwaitBody:
		return "await_body"
	case StateFrameReady:
		return "frame_ready"
	default:
		return "unknown"
	}
}

// Framer 从传输层切分完整的 C37.118 帧
//
// 流式传输：先读 4 字节前缀取得 FRAMESIZE，再读余下部分；同步字错误后
// 下一次读取逐字节搜索 0xAA 重新对齐。
// 报文传输：一个报文即一帧，长度必须与 FRAMESIZE 一致。
type Framer struct {
	t      Transport
	state  State
	resync bool
}

// NewFramer 创建分帧器
func NewFramer(t Transport) *Framer {
	return &Framer{t: t}
}

// State 当前分帧状态
func (f *Framer) State() State { return f.state }

// Transport 底层传输
func (f *Framer) Transport() Transport { return f.t }

// ReadFrame 读取下一个完整帧，返回的字节数恒等于帧头声明的 FRAMESIZE
func (f *Framer) ReadFrame(ctx context.Context) ([]byte, error) {
	f.state = StateAwaitHeader
	var (
		frame []byte
		err   error
	)
	if f.t.Kind() == KindDatagram {
		frame, err = f.readDatagram(ctx)
	} else {
		frame, err = f.readStream(ctx)
	}
	if err != nil {
		f.state = StateAwaitHeader
		return nil, err
	}
	f.state = StateFrameReady
	return frame, nil
}

func (f *Framer) readStream(ctx context.Context) ([]byte, error) {
	var prefix []byte
	if f.resync {
		p, err := f.hunt(ctx)
		if err != nil {
			return nil, err
		}
		prefix = p
	} else {
		p, err := f.t.ReadExact(ctx, c37118.PrefixSize)
		if err != nil {
			return nil, err
		}
		prefix = p
	}

	h, err := c37118.ParseHeader(prefix)
	if err != nil {
		f.resync = true
		return nil, err
	}
	f.resync = false

	f.state = StateAwaitBody
	rest, err := f.t.ReadExact(ctx, int(h.FrameSize)-c37118.PrefixSize)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, h.FrameSize)
	frame = append(frame, prefix...)
	return append(frame, rest...), nil
}

// hunt 丢弃字节直到遇到同步字，返回以同步字开头的 4 字节前缀
func (f *Framer) hunt(ctx context.Context) ([]byte, error) {
	for {
		b, err := f.t.ReadExact(ctx, 1)
		if err != nil {
			return nil, err
		}
		if b[0] != c37118.SyncByte {
			continue
		}
		rest, err := f.t.ReadExact(ctx, c37118.PrefixSize-1)
		if err != nil {
			return nil, err
		}
		return append(b, rest...), nil
	}
}

func (f *Framer) readDatagram(ctx context.Context) ([]byte, error) {
	b, err := f.t.ReadAvailable(ctx, MaxDatagramSize)
	if err != nil {
		return nil, err
	}
	h, err := c37118.ParseHeader(b)
	if err != nil {
		return nil, err
	}
	f.state = StateAwaitBody
	if int(h.FrameSize) != len(b) {
		return nil, fmt.Errorf("%w: datagram of %d bytes declares %d", c37118.ErrLengthMismatch, len(b), h.FrameSize)
	}
	return b, nil
}

// PeekIDCode 读取帧头中的数据流 IDCODE（偏移 4），用于多路复用时选择配置
func PeekIDCode(frame []byte) (uint16, error) {
	if len(frame) < 6 {
		return 0, fmt.Errorf("%w: need 6 bytes for idcode, have %d", c37118.ErrTruncatedFrame, len(frame))
	}
	if frame[0] != c37118.SyncByte {
		return 0, fmt.Errorf("%w: bad sync byte 0x%02X", c37118.ErrMalformedFrame, frame[0])
	}
	return binary.BigEndian.Uint16(frame[4:6]), nil
}
