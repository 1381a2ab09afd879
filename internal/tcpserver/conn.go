package tcpserver

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// writeQueueSize 每个订阅者的待写帧数
const writeQueueSize = 128

// Conn 订阅者连接：写循环发送中继帧，读循环只用于发现对端关闭
type Conn struct {
	s       *Server
	c       net.Conn
	id      uint64
	writeC  chan []byte
	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

func newConn(s *Server, c net.Conn, id uint64) *Conn {
	return &Conn{
		s:      s,
		c:      c,
		id:     id,
		writeC: make(chan []byte, writeQueueSize),
		done:   make(chan struct{}),
	}
}

func (cc *Conn) ID() uint64 { return cc.id }

func (cc *Conn) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// enqueue 非阻塞入队，b 由调用方保证只读
func (cc *Conn) enqueue(b []byte) bool {
	cc.closeMu.Lock()
	defer cc.closeMu.Unlock()
	if cc.closed {
		return false
	}
	select {
	case cc.writeC <- b:
		return true
	default:
		cc.dropped.Add(1)
		return false
	}
}

// Close 关闭连接与写队列
func (cc *Conn) Close() error {
	cc.closeMu.Lock()
	if cc.closed {
		cc.closeMu.Unlock()
		return nil
	}
	cc.closed = true
	close(cc.writeC)
	cc.closeMu.Unlock()
	return cc.c.Close()
}

// run 启动读/写循环，阻塞直至连接结束
func (cc *Conn) run() {
	defer close(cc.done)
	defer cc.Close()

	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		for msg := range cc.writeC {
			if cc.s.cfg.WriteTimeout > 0 {
				_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
			}
			if _, err := cc.c.Write(msg); err != nil {
				_ = cc.c.Close()
				return
			}
		}
	}()

	// 订阅者不应上行数据，读到的字节直接丢弃
	_, _ = io.Copy(io.Discard, cc.c)
	_ = cc.Close()
	<-doneW
}

// Done 连接关闭通知
func (cc *Conn) Done() <-chan struct{} { return cc.done }
