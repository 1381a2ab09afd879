package testutil

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

// FakePMU 基于 TCP 的 PMU 模拟端：应答 CONFIG 命令，DATAON 后按固定间隔推送数据帧
type FakePMU struct {
	ln       net.Listener
	interval time.Duration

	mu    sync.Mutex
	cfg   *c37118.ConfigFrame
	block Block
	conns map[net.Conn]struct{}

	commands chan c37118.Command
	wg       sync.WaitGroup
}

// NewFakePMU 在 127.0.0.1 随机端口启动模拟端，测试结束自动关闭
func NewFakePMU(t testing.TB, cfg *c37118.ConfigFrame, interval time.Duration) *FakePMU {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fake pmu listen: %v", err)
	}
	p := &FakePMU{
		ln:       ln,
		interval: interval,
		cfg:      cfg,
		block:    SampleBlock(),
		conns:    make(map[net.Conn]struct{}),
		commands: make(chan c37118.Command, 256),
	}
	p.wg.Add(1)
	go p.acceptLoop()
	t.Cleanup(p.Close)
	return p
}

// Addr 监听地址
func (p *FakePMU) Addr() string { return p.ln.Addr().String() }

// Commands 收到的命令序列
func (p *FakePMU) Commands() <-chan c37118.Command { return p.commands }

// SetConfig 替换后续应答与数据帧使用的配置
func (p *FakePMU) SetConfig(cfg *c37118.ConfigFrame) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// SetBlock 替换推送的测量值
func (p *FakePMU) SetBlock(b Block) {
	p.mu.Lock()
	p.block = b
	p.mu.Unlock()
}

// Broadcast 向所有已连接客户端写入原始字节
func (p *FakePMU) Broadcast(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.conns {
		_, _ = c.Write(b)
	}
}

// DropConnections 断开所有客户端
func (p *FakePMU) DropConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.conns {
		_ = c.Close()
	}
}

// Close 停止监听并断开所有连接
func (p *FakePMU) Close() {
	_ = p.ln.Close()
	p.DropConnections()
	p.wg.Wait()
}

func (p *FakePMU) acceptLoop() {
	defer p.wg.Done()
	for {
		c, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns[c] = struct{}{}
		p.mu.Unlock()
		p.wg.Add(1)
		go p.serve(c)
	}
}

func (p *FakePMU) serve(c net.Conn) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.conns, c)
		p.mu.Unlock()
		_ = c.Close()
	}()

	var stop chan struct{}
	halt := func() {
		if stop != nil {
			close(stop)
			stop = nil
		}
	}
	defer halt()

	var writeMu sync.Mutex
	write := func(b []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err := c.Write(b)
		return err
	}

	for {
		frame, err := readFrame(c)
		if err != nil {
			return
		}
		cmd, err := c37118.ParseCommandFrame(frame, c37118.ParseOptions{VerifyCRC: true})
		if err != nil {
			continue
		}
		select {
		case p.commands <- cmd.Command:
		default:
		}

		switch cmd.Command {
		case c37118.CmdConfig1, c37118.CmdConfig2:
			p.mu.Lock()
			cfg := p.cfg
			p.mu.Unlock()
			if err := write(MustEncodeConfig(cfg)); err != nil {
				return
			}
		case c37118.CmdDataOn:
			if stop == nil {
				stop = make(chan struct{})
				go p.stream(write, stop)
			}
		case c37118.CmdDataOff:
			halt()
		}
	}
}

func (p *FakePMU) stream(write func([]byte) error, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	soc := uint32(time.Now().Unix())
	var n uint32
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		p.mu.Lock()
		cfg, blk := p.cfg, p.block
		p.mu.Unlock()

		blocks := make([]Block, len(cfg.Stations))
		for i := range blocks {
			blocks[i] = blk
		}
		frame, err := BuildDataFrame(cfg, soc+n/30, (n%30)*(cfg.TimeBase.Base/30), blocks)
		n++
		if err != nil {
			continue
		}
		if write(frame) != nil {
			return
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	prefix := make([]byte, c37118.PrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	size := int(binary.BigEndian.Uint16(prefix[2:4]))
	if size < c37118.MinFrameSize {
		return nil, io.ErrUnexpectedEOF
	}
	frame := make([]byte, size)
	copy(frame, prefix)
	if _, err := io.ReadFull(r, frame[c37118.PrefixSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}
