// Package transport PMU 连接的传输层：流式（TCP/Unix）与报文（UDP/unixgram）两种实现
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
)

var (
	// ErrShortRead 对端在声明长度读满之前关闭
	ErrShortRead = errors.New("short read")
	// ErrTimeout 读超时（配置的读超时或 ctx 截止时间）
	ErrTimeout = errors.New("read timeout")
	// ErrUnsupportedNetwork Dial 收到未知网络类型
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// MaxDatagramSize 单个报文的最大接收长度
const MaxDatagramSize = 65535

// Kind 传输类型
type Kind uint8

const (
	KindStream Kind = iota + 1
	KindDatagram
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindDatagram:
		return "datagram"
	default:
		return "unknown"
	}
}

// Transport 面向帧读取的最小传输能力集合
type Transport interface {
	// ReadExact 读满 n 字节
	ReadExact(ctx context.Context, n int) ([]byte, error)
	// ReadAvailable 单次读取，最多 max 字节
	ReadAvailable(ctx context.Context, max int) ([]byte, error)
	Send(ctx context.Context, b []byte) error
	Close() error
	Kind() Kind
}

// Options 连接参数，零值表示不设超时
type Options struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dial 按网络类型建立连接并选择传输实现
func Dial(ctx context.Context, network, addr string, opts Options) (Transport, error) {
	var kind Kind
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
		kind = KindStream
	case "udp", "udp4", "udp6", "unixgram":
		kind = KindDatagram
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}

	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, addr, err)
	}
	if kind == KindStream {
		return NewStream(conn, opts), nil
	}
	return NewDatagram(conn, opts), nil
}

// NewStream 以已建立的连接构造流式传输
func NewStream(conn net.Conn, opts Options) Transport {
	return &streamTransport{conn: newConn(conn, opts)}
}

// NewDatagram 以已连接的报文套接字构造报文传输
func NewDatagram(conn net.Conn, opts Options) Transport {
	return &datagramTransport{conn: newConn(conn, opts), buf: make([]byte, MaxDatagramSize)}
}

// conn 封装超时与 ctx 取消，两种传输共用
type conn struct {
	c    net.Conn
	opts Options
}

func newConn(c net.Conn, opts Options) conn { return conn{c: c, opts: opts} }

var aLongTimeAgo = time.Unix(1, 0)

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}

func (c conn) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return mapErr(ctx, err)
	}
	if err := c.c.SetReadDeadline(deadline(ctx, c.opts.ReadTimeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.c.SetReadDeadline(aLongTimeAgo) })
	defer stop()
	return mapErr(ctx, fn())
}

func (c conn) write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return mapErr(ctx, err)
	}
	if err := c.c.SetWriteDeadline(deadline(ctx, c.opts.WriteTimeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.c.SetWriteDeadline(aLongTimeAgo) })
	defer stop()
	_, err := c.c.Write(b)
	if err != nil {
		return fmt.Errorf("send: %w", mapErr(ctx, err))
	}
	return nil
}

func mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
		}
		return ctxErr
	}
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return err
}

type streamTransport struct {
	conn conn
}

func (t *streamTransport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, n)
	err := t.conn.read(ctx, func() error {
		_, err := io.ReadFull(t.conn.c, buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *streamTransport) ReadAvailable(ctx context.Context, max int) ([]byte, error) {
	buf := make([]byte, max)
	var n int
	err := t.conn.read(ctx, func() error {
		var err error
		n, err = t.conn.c.Read(buf)
		if n > 0 {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (t *streamTransport) Send(ctx context.Context, b []byte) error { return t.conn.write(ctx, b) }

func (t *streamTransport) Close() error { return t.conn.c.Close() }

func (t *streamTransport) Kind() Kind { return KindStream }

// datagramTransport 每次读取对应一个完整报文
type datagramTransport struct {
	conn conn
	buf  []byte
}

func (t *datagramTransport) recv(ctx context.Context) ([]byte, error) {
	var n int
	err := t.conn.read(ctx, func() error {
		var err error
		n, err = t.conn.c.Read(t.buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return out, nil
}

// ReadExact 报文必须恰好为 n 字节，长短不符均为 ErrLengthMismatch
func (t *datagramTransport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	b, err := t.recv(ctx)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("%w: datagram of %d bytes, want %d", c37118.ErrLengthMismatch, len(b), n)
	}
	return b, nil
}

func (t *datagramTransport) ReadAvailable(ctx context.Context, max int) ([]byte, error) {
	b, err := t.recv(ctx)
	if err != nil {
		return nil, err
	}
	if len(b) > max {
		b = b[:max]
	}
	return b, nil
}

func (t *datagramTransport) Send(ctx context.Context, b []byte) error { return t.conn.write(ctx, b) }

func (t *datagramTransport) Close() error { return t.conn.c.Close() }

func (t *datagramTransport) Kind() Kind { return KindDatagram }
