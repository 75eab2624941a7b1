package sevenmate

import (
	"errors"
	"fmt"
)

// ErrNotConnected 在控制通道未建立时发送指令
var ErrNotConnected = errors.New("control socket not connected")

// APIError 远端拒绝：传输层失败状态码，或成功状态码内嵌的业务失败
type APIError struct {
	Status  int    // HTTP 状态码，业务层失败时为 0
	Code    int    // 业务错误码（如 car_authority 的 unauthorized_code），无则为 0
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api error: status=%d message=%s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}

// AuthenticationError 凭证无法解析
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("invalid token: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
