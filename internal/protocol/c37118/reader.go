package c37118

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader 有界大端游标，越界读返回 ErrTruncatedFrame
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(body []byte, start int) *reader {
	return &reader{buf: body, off: start}
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: %s needs %d bytes at offset %d, %d left",
			ErrTruncatedFrame, field, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u16(field string) uint16 {
	b := r.take(2, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) i16(field string) int16 { return int16(r.u16(field)) }

func (r *reader) u32(field string) uint32 {
	b := r.take(4, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) f32(field string) float32 { return math.Float32frombits(r.u32(field)) }

func (r *reader) bytes(n int, field string) []byte { return r.take(n, field) }

// remaining 未消费字节数
func (r *reader) remaining() int { return len(r.buf) - r.off }

// finish 要求帧体恰好消费完
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if n := r.remaining(); n != 0 {
		return fmt.Errorf("%w: %d unconsumed bytes before CHK", ErrLengthMismatch, n)
	}
	return nil
}
