package sock

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrPlatformNotSupported 非 Linux/Darwin 平台的占位错误
	ErrPlatformNotSupported = errors.New("sock: platform not supported")

	// ErrResolution 地址无法解析，可用 errors.Is 判断 *ResolutionError
	ErrResolution = errors.New("sock: cannot resolve address")

	// ErrNoUsableAddress 所有候选地址都失败；包装最后一个候选的错误
	ErrNoUsableAddress = errors.New("sock: no usable address")
)

// ResolutionError 携带解析器返回的原始诊断。
type ResolutionError struct {
	Host string
	Port string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("sock: resolve %s: %v", net.JoinHostPort(e.Host, e.Port), e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// SocketError 为单个候选地址上的失败，Op 为 "socket"、"bind"、"listen" 或 "connect"。
// 仅在所有候选都失败时通过 ErrNoUsableAddress 暴露给调用方。
type SocketError struct {
	Op        string
	Candidate Candidate
	Err       error
}

func (e *SocketError) Error() string {
	return "sock: " + e.Op + " " + e.Candidate.String() + ": " + e.Err.Error()
}

func (e *SocketError) Unwrap() error { return e.Err }

// WouldBlock 判断非阻塞 fd 上的 EAGAIN/EWOULDBLOCK。
func WouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}
