package encoding

import "github.com/pkg/errors"

var (
	// ErrMalformedInput 订单或序列化记录结构校验失败（自成交对、零/越界数量、截断字节）
	ErrMalformedInput = errors.New("malformed input")
	// ErrArithmeticOverflow 定点运算超出可表示范围（含下溢与除零）
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// RecordError 批量解码时单条记录的错误
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return errors.Wrapf(e.Err, "record %d", e.Index).Error()
}

func (e *RecordError) Unwrap() error { return e.Err }

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedInput, format, args...)
}

func overflow(format string, args ...interface{}) error {
	return errors.Wrapf(ErrArithmeticOverflow, format, args...)
}
