package c37118

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrTruncatedFrame      = errors.New("truncated frame")
	ErrLengthMismatch      = errors.New("frame length mismatch")
	ErrUnknownEnumValue    = errors.New("unknown enum value")
	ErrConfigDataMismatch  = errors.New("data frame does not match config")
	ErrUnsupportedCommand  = errors.New("unsupported command")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrUnexpectedFrameType = errors.New("unexpected frame type")

	// ErrConfigRequired 尚未取得配置帧时收到数据帧
	ErrConfigRequired = fmt.Errorf("%w: no active config frame", ErrConfigDataMismatch)
)

// EnumError 编码字段超出协议定义的取值范围
type EnumError struct {
	Field string
	Raw   uint32
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("unknown enum value: %s=0x%X", e.Field, e.Raw)
}

// Is 使 errors.Is(err, ErrUnknownEnumValue) 成立
func (e *EnumError) Is(target error) bool { return target == ErrUnknownEnumValue }

// Kind 将错误归类为固定的指标标签
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfigRequired):
		return "config_required"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, ErrTruncatedFrame):
		return "truncated"
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrUnknownEnumValue):
		return "unknown_enum"
	case errors.Is(err, ErrConfigDataMismatch):
		return "config_mismatch"
	case errors.Is(err, ErrUnsupportedCommand):
		return "unsupported_command"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, ErrUnexpectedFrameType):
		return "unexpected_type"
	default:
		return "other"
	}
}
