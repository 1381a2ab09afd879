package c37118

import (
	"bytes"
	"fmt"
)

// 配置帧持久化信封：magic "PMUC" | version(1) | 配置帧线格式
var persistMagic = []byte("PMUC")

const persistVersion = 1

// MarshalConfig 编码为可持久化的字节串
func MarshalConfig(cfg *ConfigFrame) ([]byte, error) {
	wire, err := cfg.Encode()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(persistMagic)+1+len(wire))
	out = append(out, persistMagic...)
	out = append(out, persistVersion)
	return append(out, wire...), nil
}

// UnmarshalConfig 还原 MarshalConfig 的输出，并校验 CHK
func UnmarshalConfig(b []byte) (*ConfigFrame, error) {
	n := len(persistMagic)
	if len(b) < n+1 {
		return nil, fmt.Errorf("%w: persisted config too short", ErrTruncatedFrame)
	}
	if !bytes.Equal(b[:n], persistMagic) {
		return nil, fmt.Errorf("%w: bad persisted config magic %q", ErrMalformedFrame, b[:n])
	}
	if v := b[n]; v != persistVersion {
		return nil, fmt.Errorf("%w: persisted config version %d", ErrMalformedFrame, v)
	}
	return ParseConfigFrame(b[n+1:], ParseOptions{VerifyCRC: true})
}

// IsPersisted b 是否以持久化信封开头
func IsPersisted(b []byte) bool {
	return bytes.HasPrefix(b, persistMagic)
}
