package exchange

import (
	"errors"
	"fmt"
)

// 错误分类：
//   - TransportError：网络/超时，允许在 HTTP 层有限次重试
//   - AppError：交易所返回的结构化失败（如余额不足），不重试
//   - MalformedError：响应缺少字段或形状不对，必须上抛，绝不静默取默认值

// TransportError 网络层错误（可重试）
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AppError 交易所应用层错误（不可重试）
type AppError struct {
	Op      string
	Code    int64
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("exchange error: %s: [%d] %s", e.Op, e.Code, e.Message)
}

// MalformedError 响应格式错误。
// 金融字段被静默取默认值比一次失败的周期更糟糕，所以必须上抛。
type MalformedError struct {
	Op    string
	Field string
	Err   error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed exchange response: %s: field %q: %v", e.Op, e.Field, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误是否属于可重试的网络层错误
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAppError 判断错误是否为交易所应用层错误
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}
